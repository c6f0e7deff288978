package pycurl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/glamas/pycurl-session/pycurl/auth"
)

// Options is the per-call request configuration record, the Go realization
// of the Session surface's **options mapping (headers, cookies, auth,
// proxy, cert, params, data, json, files, multipart, timeout,
// allow_redirects, verify, verbose, quote_safe, session_id).
type Options struct {
	Headers        http.Header
	Cookies        map[string]string
	Auth           auth.Authenticator
	Proxy          string
	CertPath       string
	Params         url.Values
	Data           url.Values
	JSON           any
	RawBody        []byte
	Files          map[string]string // field name -> file path
	Multipart      bool
	TimeoutSeconds int
	AllowRedirects bool
	Verify         *bool
	Verbose        bool
	QuoteSafe      string
	SessionID      string
	HTTPVersion    string
	Meta           map[string]any
}

// Option mutates an Options record, following the teacher's
// func(*Collector) options pattern generalized to per-call options.
type Option func(*Options)

// WithHeaders overrides/adds request headers.
func WithHeaders(h http.Header) Option { return func(o *Options) { o.Headers = h } }

// WithCookies supplies call-site cookies, overlaid last (highest priority).
func WithCookies(c map[string]string) Option { return func(o *Options) { o.Cookies = c } }

// WithAuth supplies an explicit Authenticator, bypassing the per-host cache.
func WithAuth(a auth.Authenticator) Option { return func(o *Options) { o.Auth = a } }

// WithProxy configures a proxy URL (scheme://[user:pass@]host:port).
func WithProxy(p string) Option { return func(o *Options) { o.Proxy = p } }

// WithCert sets a CA bundle path for TLS verification.
func WithCert(path string) Option { return func(o *Options) { o.CertPath = path } }

// WithParams appends query parameters.
func WithParams(v url.Values) Option { return func(o *Options) { o.Params = v } }

// WithData sets form-urlencoded body data.
func WithData(v url.Values) Option { return func(o *Options) { o.Data = v } }

// WithJSON sets a JSON body payload.
func WithJSON(v any) Option { return func(o *Options) { o.JSON = v } }

// WithRawBody sets an opaque byte-slice body, taking precedence over
// Data/JSON/Files when non-empty.
func WithRawBody(b []byte) Option { return func(o *Options) { o.RawBody = b } }

// WithFiles attaches file parts (field name -> path) for multipart upload.
func WithFiles(files map[string]string) Option {
	return func(o *Options) { o.Files = files; o.Multipart = true }
}

// WithMultipart forces multipart/form-data encoding even without files.
func WithMultipart(b bool) Option { return func(o *Options) { o.Multipart = b } }

// WithTimeout records a per-request timeout in seconds in
// Options.TimeoutSeconds. PrepareHandle and Do do not read it; every request
// runs under Session.DefaultTimeout.
func WithTimeout(seconds int) Option { return func(o *Options) { o.TimeoutSeconds = seconds } }

// WithAllowRedirects toggles redirect following for this request.
func WithAllowRedirects(b bool) Option { return func(o *Options) { o.AllowRedirects = b } }

// WithVerify toggles TLS certificate verification for this request,
// overriding Session.DefaultVerify. Omitting it leaves the session default
// in effect.
func WithVerify(b bool) Option { return func(o *Options) { o.Verify = &b } }

// WithVerbose records Options.Verbose. Nothing in this package reads it, so
// it does not change what is logged.
func WithVerbose(b bool) Option { return func(o *Options) { o.Verbose = b } }

// WithQuoteSafe overrides the percent-encoding safe-byte set.
func WithQuoteSafe(safe string) Option { return func(o *Options) { o.QuoteSafe = safe } }

// WithSessionID overrides the cookie-jar session id for this request.
func WithSessionID(id string) Option { return func(o *Options) { o.SessionID = id } }

// WithHTTPVersion pins the HTTP protocol version ("1.1" or "2") for this
// request, overriding the transport's negotiated default.
func WithHTTPVersion(v string) Option { return func(o *Options) { o.HTTPVersion = v } }

// WithMeta attaches free-form per-request metadata (recognized keys:
// cookiejar, proxy, dont_redirect, dont_retry, max_retry_times,
// http_version, robots.txt).
func WithMeta(meta map[string]any) Option { return func(o *Options) { o.Meta = meta } }

func newOptions(opts ...Option) *Options {
	o := &Options{
		AllowRedirects: true,
		QuoteSafe:      "/",
	}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// reconstructURL normalizes rawURL: fails on unsupported schemes, lowercases
// the host, strips userinfo (returned separately), and percent-encodes
// path/query via decode-then-encode against safe. Ported from session.py's
// reconstruct_url.
func reconstructURL(rawURL, safe string) (*url.URL, string, string, error) {
	rawURL = strings.ReplaceAll(rawURL, " ", "%20")
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", "", &InvalidRequestError{Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", "", &InvalidRequestError{Reason: "unsupported scheme " + u.Scheme}
	}

	var user, pass string
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
		u.User = nil
	}

	u.Host = strings.ToLower(u.Host)
	u.Path = encodeSafe(decodeBestEffort(u.Path), safe)
	if u.RawQuery != "" {
		u.RawQuery = encodeQuery(u.RawQuery, safe)
	}
	return u, user, pass, nil
}

func decodeBestEffort(s string) string {
	if d, err := url.PathUnescape(s); err == nil {
		return d
	}
	return s
}

func encodeSafe(s, safe string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || strings.IndexByte(safe, c) >= 0 {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

func encodeQuery(rawQuery, safe string) string {
	parts := strings.Split(rawQuery, "&")
	for i, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		k := encodeSafe(decodeBestEffort(kv[0]), safe)
		if len(kv) == 2 {
			v := encodeSafe(decodeBestEffort(kv[1]), safe)
			parts[i] = k + "=" + v
		} else {
			parts[i] = k
		}
	}
	return strings.Join(parts, "&")
}

// mergeParams appends opts.Params onto u's existing query, per the Query
// merge step.
func mergeParams(u *url.URL, params url.Values) {
	if len(params) == 0 {
		return
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
}

// encodedBody returns the Content-Type and body reader for method per the
// Body step's precedence rules.
func encodedBody(method string, o *Options) (contentType string, body *bytes.Buffer, err error) {
	method = strings.ToUpper(method)
	if method == "GET" || method == "HEAD" {
		return "", &bytes.Buffer{}, nil
	}
	if len(o.RawBody) > 0 {
		return "application/octet-stream", bytes.NewBuffer(o.RawBody), nil
	}
	switch method {
	case "POST":
		if o.Multipart || len(o.Files) > 0 {
			return buildMultipart(o)
		}
		if o.JSON != nil {
			return jsonBody(o.JSON)
		}
		if len(o.Data) > 0 {
			return "application/x-www-form-urlencoded", bytes.NewBufferString(o.Data.Encode()), nil
		}
		return "", &bytes.Buffer{}, nil
	case "PUT", "PATCH":
		if len(o.Files) == 1 {
			return rawFileBody(o.Files)
		}
		if o.JSON != nil {
			return jsonBody(o.JSON)
		}
		if len(o.Data) > 0 {
			return "application/x-www-form-urlencoded", bytes.NewBufferString(o.Data.Encode()), nil
		}
		return "application/json", &bytes.Buffer{}, nil
	default:
		if len(o.Files) == 1 {
			return rawFileBody(o.Files)
		}
		if o.JSON != nil {
			return jsonBody(o.JSON)
		}
		if len(o.Data) > 0 {
			return "application/x-www-form-urlencoded", bytes.NewBufferString(o.Data.Encode()), nil
		}
		return "", &bytes.Buffer{}, nil
	}
}

func jsonBody(v any) (string, *bytes.Buffer, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("pycurl: encode json body: %w", err)
	}
	return "application/json", bytes.NewBuffer(b), nil
}

func rawFileBody(files map[string]string) (string, *bytes.Buffer, error) {
	var path string
	for _, p := range files {
		path = p
		break
	}
	data, err := readFile(path)
	if err != nil {
		return "", nil, err
	}
	return "application/octet-stream", bytes.NewBuffer(data), nil
}
