package pycurl

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kennygrant/sanitize"
)

// buildMultipart hand-assembles a multipart/form-data body, mirroring the
// teacher's own createMultipartReader/randomBoundary rather than using
// mime/multipart directly, while still producing a standard-compliant wire
// format. String values in o.Data become form fields; o.Files entries
// become file parts with sanitized filenames (github.com/kennygrant/
// sanitize, the teacher's own dependency for exactly this concern).
func buildMultipart(o *Options) (string, *bytes.Buffer, error) {
	boundary, err := randomBoundary()
	if err != nil {
		return "", nil, err
	}

	buf := &bytes.Buffer{}
	for _, k := range sortedDataKeys(o.Data) {
		for _, v := range o.Data[k] {
			writeFormField(buf, boundary, k, v)
		}
	}
	for field, path := range o.Files {
		if err := writeFilePart(buf, boundary, field, path); err != nil {
			return "", nil, err
		}
	}
	fmt.Fprintf(buf, "--%s--\r\n", boundary)

	return "multipart/form-data; boundary=" + boundary, buf, nil
}

// sortedDataKeys gives a deterministic field order for reproducible bodies
// (tests, retries).
func sortedDataKeys(v map[string][]string) []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeFormField(buf *bytes.Buffer, boundary, name, value string) {
	fmt.Fprintf(buf, "--%s\r\n", boundary)
	fmt.Fprintf(buf, "Content-Disposition: form-data; name=%q\r\n\r\n", name)
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func writeFilePart(buf *bytes.Buffer, boundary, field, path string) error {
	data, err := readFile(path)
	if err != nil {
		return err
	}
	filename := sanitize.BaseName(filepath.Base(path))
	fmt.Fprintf(buf, "--%s\r\n", boundary)
	fmt.Fprintf(buf, "Content-Disposition: form-data; name=%q; filename=%q\r\n", field, filename)
	buf.WriteString("Content-Type: application/octet-stream\r\n\r\n")
	buf.Write(data)
	buf.WriteString("\r\n")
	return nil
}

func randomBoundary() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("pycurl: generate multipart boundary: %w", err)
	}
	return fmt.Sprintf("pycurl-session-%x", b[:]), nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pycurl: read file %s: %w", path, err)
	}
	return data, nil
}
