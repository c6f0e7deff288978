package pycurl

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"

	"github.com/gogs/chardet"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/glamas/pycurl-session/pycurl/cookiejar"
)

// Response is the immutable, assembled result of a fetch. Ported from the
// Response Assembler's data model entry.
type Response struct {
	URL            *url.URL
	StatusCode     int
	Header         http.Header
	RawHeaderLines []string
	Body           []byte
	Text           string
	Encoding       string
	ContentType    string
	Cookies        []*cookiejar.Cookie
	Request        *RequestSnapshot
	Meta           map[string]any
}

// AssembleResponse builds a Response from a completed Handle and the raw
// HTTP response, per the Response Assembler's decode chain and Set-Cookie
// parsing rules.
func AssembleResponse(h *Handle, raw *http.Response, body []byte, rawHeaderLines []string) (*Response, error) {
	contentType := raw.Header.Get("Content-Type")

	resp := &Response{
		URL:            raw.Request.URL,
		StatusCode:     raw.StatusCode,
		Header:         raw.Header.Clone(),
		RawHeaderLines: rawHeaderLines,
		Body:           body,
		ContentType:    contentType,
		Request:        h.Req,
		Meta:           h.Meta,
	}

	if strings.HasPrefix(strings.ToLower(contentType), "text") {
		resp.Text, resp.Encoding = decodeBody(body, contentType)
	} else {
		resp.Encoding = "unknown"
	}

	sessionID := h.SessionID
	host := resp.URL.Hostname()
	for _, line := range raw.Header.Values("Set-Cookie") {
		c := cookiejar.ParseSetCookie(line, sessionID, host)
		if c != nil {
			resp.Cookies = append(resp.Cookies, c)
		}
	}

	return resp, nil
}

func looksLikeHTML(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return bytes.HasPrefix(bytes.ToLower(trimmed), []byte("<!doctype")) ||
		bytes.HasPrefix(bytes.ToLower(trimmed), []byte("<html"))
}

// decodeBody implements the charset chain: meta-tag charset, then
// Content-Type header charset, then a chardet sniff (supplementing the
// source's chain, see SPEC_FULL.md §4.D), then UTF-8; unknown yields empty
// text.
func decodeBody(body []byte, contentType string) (text, encoding string) {
	if cs := metaCharset(body); cs != "" {
		if t, ok := decodeWithCharset(body, cs); ok {
			return t, cs
		}
	}
	if _, params, err := parseContentTypeParams(contentType); err == nil {
		if cs := params["charset"]; cs != "" {
			if t, ok := decodeWithCharset(body, cs); ok {
				return t, cs
			}
		}
	}
	if cs := sniffCharset(body); cs != "" {
		if t, ok := decodeWithCharset(body, cs); ok {
			return t, cs
		}
	}
	if t, ok := decodeWithCharset(body, "utf-8"); ok {
		return t, "utf-8"
	}
	return "", "unknown"
}

// metaCharset scans the first 1024 bytes for an HTML <meta charset> or
// http-equiv Content-Type tag, using golang.org/x/net/html's tokenizer
// (the teacher's own HTML dependency) rather than a full parse.
func metaCharset(body []byte) string {
	limit := len(body)
	if limit > 1024 {
		limit = 1024
	}
	z := html.NewTokenizer(bytes.NewReader(body[:limit]))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return ""
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		if string(name) != "meta" || !hasAttr {
			continue
		}
		attrs := map[string]string{}
		for {
			k, v, more := z.TagAttr()
			attrs[strings.ToLower(string(k))] = string(v)
			if !more {
				break
			}
		}
		if cs := attrs["charset"]; cs != "" {
			return strings.ToLower(cs)
		}
		if strings.EqualFold(attrs["http-equiv"], "Content-Type") {
			if _, params, err := parseContentTypeParams(attrs["content"]); err == nil {
				if cs := params["charset"]; cs != "" {
					return strings.ToLower(cs)
				}
			}
		}
	}
}

func parseContentTypeParams(ct string) (string, map[string]string, error) {
	parts := strings.Split(ct, ";")
	params := map[string]string{}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		params[strings.ToLower(strings.TrimSpace(kv[0]))] = strings.Trim(strings.TrimSpace(kv[1]), `"`)
	}
	var mediaType string
	if len(parts) > 0 {
		mediaType = strings.TrimSpace(parts[0])
	}
	return mediaType, params, nil
}

func sniffCharset(body []byte) string {
	d := chardet.NewTextDetector()
	res, err := d.DetectBest(body)
	if err != nil || res == nil {
		return ""
	}
	return strings.ToLower(res.Charset)
}

func decodeWithCharset(body []byte, name string) (string, bool) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return "", false
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}
