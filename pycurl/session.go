// Package pycurl implements the low-level request/response plumbing: the
// Request Preparer, Response Assembler, Redirect/Retry Engine, Cookie
// Store, and authentication variants. It has no knowledge of spiders,
// middleware, or scheduling — those live in package spider, which imports
// this one. Ported from original_source/pycurl_session/session.py,
// cache.py, auth.go, response.py.
package pycurl

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/proxy"

	"github.com/glamas/pycurl-session/pycurl/auth"
	"github.com/glamas/pycurl-session/pycurl/cookiejar"
	"github.com/glamas/pycurl-session/pycurl/debug"
)

// Session is the library's external surface: Get/Post/Put/Patch/Delete/
// Head/Options plus session-wide configuration setters.
type Session struct {
	mu sync.RWMutex

	DefaultHeaders  http.Header
	DefaultVerify   bool
	DefaultTimeout  time.Duration
	RetryTimes      int
	RetryHTTPCodes  map[int]bool
	Backoff         []time.Duration
	SessionID       string

	store    cookiejar.Store
	logger   zerolog.Logger
	debugger debug.Debugger

	authCache map[string]auth.Authenticator
	proxyURL  string

	client *http.Client
}

// NewSession constructs a Session with an in-memory cookie store and
// sensible defaults, mirroring the teacher's Init() defaulting pattern.
func NewSession() *Session {
	s := &Session{
		DefaultHeaders: http.Header{"User-Agent": []string{"pycurl-session/1.0"}},
		DefaultVerify:  true,
		DefaultTimeout: 30 * time.Second,
		RetryTimes:     3,
		RetryHTTPCodes: DefaultRetryHTTPCodes,
		Backoff:        DefaultBackoff,
		SessionID:      "default",
		store:          cookiejar.NewMemStore(),
		logger:         zerolog.Nop(),
		debugger:       debug.NopDebugger{},
		authCache:      make(map[string]auth.Authenticator),
	}
	s.client = &http.Client{
		Timeout: s.DefaultTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return s
}

// SetCookieStore replaces the session's cookie store.
func (s *Session) SetCookieStore(store cookiejar.Store) { s.mu.Lock(); defer s.mu.Unlock(); s.store = store }

// SetLogger installs a structured logger.
func (s *Session) SetLogger(l zerolog.Logger) { s.mu.Lock(); defer s.mu.Unlock(); s.logger = l }

// SetDebugger installs a debug event sink.
func (s *Session) SetDebugger(d debug.Debugger) { s.mu.Lock(); defer s.mu.Unlock(); s.debugger = d }

// SetRetryTimes configures the retry count and backoff curve.
func (s *Session) SetRetryTimes(times int, backoff []time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RetryTimes = times
	if len(backoff) > 0 {
		s.Backoff = backoff
	}
}

// SetTimeout configures the default per-request timeout.
func (s *Session) SetTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DefaultTimeout = d
	s.client.Timeout = d
}

// SetProxy configures a session-wide default proxy URL.
func (s *Session) SetProxy(proxyURL string) { s.mu.Lock(); defer s.mu.Unlock(); s.proxyURL = proxyURL }

// ClearCookies deletes every cookie for sessionID.
func (s *Session) ClearCookies(ctx context.Context, sessionID string) error {
	return s.store.Clear(ctx, sessionID)
}

// UnsetCookies deletes specific cookies for sessionID.
func (s *Session) UnsetCookies(ctx context.Context, sessionID string, keys []cookiejar.UnsetKey) error {
	return s.store.Unset(ctx, sessionID, keys)
}

// Get issues a GET request.
func (s *Session) Get(ctx context.Context, rawURL string, opts ...Option) (*Response, error) {
	return s.Request(ctx, "GET", rawURL, opts...)
}

// Post issues a POST request.
func (s *Session) Post(ctx context.Context, rawURL string, opts ...Option) (*Response, error) {
	return s.Request(ctx, "POST", rawURL, opts...)
}

// Put issues a PUT request.
func (s *Session) Put(ctx context.Context, rawURL string, opts ...Option) (*Response, error) {
	return s.Request(ctx, "PUT", rawURL, opts...)
}

// Patch issues a PATCH request.
func (s *Session) Patch(ctx context.Context, rawURL string, opts ...Option) (*Response, error) {
	return s.Request(ctx, "PATCH", rawURL, opts...)
}

// Delete issues a DELETE request.
func (s *Session) Delete(ctx context.Context, rawURL string, opts ...Option) (*Response, error) {
	return s.Request(ctx, "DELETE", rawURL, opts...)
}

// Head issues a HEAD request.
func (s *Session) Head(ctx context.Context, rawURL string, opts ...Option) (*Response, error) {
	return s.Request(ctx, "HEAD", rawURL, opts...)
}

// Options issues an OPTIONS request.
func (s *Session) Options(ctx context.Context, rawURL string, opts ...Option) (*Response, error) {
	return s.Request(ctx, "OPTIONS", rawURL, opts...)
}

// Request prepares a handle, performs the fetch, and drives it through the
// Redirect/Retry Engine until a terminal Response or error is reached. This
// is the blocking, single-call convenience path; spider.Scheduler drives the
// same primitives (PrepareHandle/Do/PlanRedirect/PlanRetry) concurrently
// across many handles instead.
func (s *Session) Request(ctx context.Context, method, rawURL string, opts ...Option) (*Response, error) {
	o := newOptions(opts...)
	h, err := s.PrepareHandle(ctx, method, rawURL, o)
	if err != nil {
		return nil, err
	}

	for {
		resp, err := s.Do(ctx, h)
		if err != nil {
			if errno, retryable := ClassifyTransportError(err); retryable {
				if !PlanRetry(h) {
					return nil, fmt.Errorf("pycurl: max retries exceeded: %w", err)
				}
				s.debugger.Event(debug.Event{Type: "retry", URL: h.Req.URL, At: time.Now()})
				sleep(ctx, Backoff(h.Retry, s.Backoff))
				continue
			}
			return nil, &TransportError{Errno: 0, Msg: err.Error()}
		}

		if err := s.saveResponseCookies(ctx, h, resp); err != nil {
			s.logger.Warn().Err(err).Msg("cookie save failed")
		}

		decision, rerr := PlanRedirect(h, resp)
		if rerr != nil {
			return nil, rerr
		}
		if decision.Followed {
			if err := s.ApplyRedirect(ctx, h, decision); err != nil {
				return nil, err
			}
			s.debugger.Event(debug.Event{Type: "redirect", URL: decision.NewURL, At: time.Now()})
			continue
		}

		if ShouldRetryStatus(resp.StatusCode, s.RetryHTTPCodes) {
			if !PlanRetry(h) {
				return resp, nil
			}
			h.reset()
			sleep(ctx, Backoff(h.Retry, s.Backoff))
			continue
		}

		return resp, nil
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ApplyRedirect mutates h to target the redirect decision d: it updates the
// method/URL/referer, clears the body when required, and resets h's
// response accumulator for re-dispatch. On a cross-host redirect it also
// drops the old host's cookies and Authorization header, re-fetching
// cookies scoped to the new URL from the store and re-evaluating auth
// (userinfo on the new URL as Basic, else the per-host auth cache) — unless
// the new host is a subdomain relation of the old one, in which case the
// existing overlay is preserved. Exported so spider.Scheduler can drive the
// same Redirect Engine primitive from outside this package.
func (s *Session) ApplyRedirect(ctx context.Context, h *Handle, d *RedirectDecision) error {
	h.RedirectCount++

	newURL, err := url.Parse(d.NewURL)
	if err != nil {
		return &InvalidRequestError{Reason: "bad redirect url: " + err.Error()}
	}

	oldHost := h.Domain
	newHost := newURL.Hostname()

	var reattachUser, reattachPass string
	hasUserinfo := newURL.User != nil
	if hasUserinfo {
		reattachUser = newURL.User.Username()
		reattachPass, _ = newURL.User.Password()
		newURL.User = nil
	}
	newURLString := newURL.String()

	h.Req.Method = d.NewMethod
	h.Req.URL = newURLString
	h.Req.Referer = d.NewReferer
	if d.ClearBody {
		h.Body = nil
	}

	if d.HostChanged {
		h.Domain = newHost
		if !cookiejar.IsSubdomainRelation(oldHost, newHost) {
			h.Req.Header.Del("Cookie")
			h.Req.Cookies = map[string]string{}
			if stored, serr := s.store.Get(ctx, h.SessionID, newURL, nil); serr == nil && len(stored) > 0 {
				h.Req.Header.Set("Cookie", cookiejar.Format(stored))
				h.Req.Cookies = stored
			}

			h.Req.Header.Del("Authorization")
			if hasUserinfo {
				base := auth.Basic{User: reattachUser, Pass: reattachPass}
				base.Attach(h.Req.Header, h.Req.Method, newURLString)
			} else if cached, ok := s.cachedAuth(newHost); ok {
				cached.Attach(h.Req.Header, h.Req.Method, newURLString)
			}
		}
	}

	h.reset()
	return nil
}

// PrepareHandle runs the Request Preparer's ordered steps and returns a
// configured Handle.
func (s *Session) PrepareHandle(ctx context.Context, method, rawURL string, o *Options) (*Handle, error) {
	u, userinfoUser, userinfoPass, err := reconstructURL(rawURL, o.QuoteSafe)
	if err != nil {
		return nil, err
	}
	mergeParams(u, o.Params)

	verify := s.DefaultVerify
	if o.Verify != nil {
		verify = *o.Verify
	}

	h := &Handle{
		AllowRedirects: o.AllowRedirects,
		MaxRedirects:   DefaultMaxRedirects,
		Verify:         verify,
		CertPath:       o.CertPath,
		SessionID:      o.SessionID,
		HTTPVersion:    o.HTTPVersion,
		Meta:           o.Meta,
	}
	if h.SessionID == "" {
		h.SessionID = s.SessionID
	}
	if h.Meta == nil {
		h.Meta = map[string]any{}
	}
	h.Domain = u.Hostname()

	if o.Proxy != "" {
		spec, err := parseProxySpec(o.Proxy)
		if err != nil {
			return nil, err
		}
		h.Proxy = spec
	} else if s.proxyURL != "" {
		spec, err := parseProxySpec(s.proxyURL)
		if err != nil {
			return nil, err
		}
		h.Proxy = spec
	}

	header := http.Header{}
	for k, v := range s.DefaultHeaders {
		header[k] = append([]string(nil), v...)
	}
	for k, v := range o.Headers {
		header[k] = append([]string(nil), v...)
	}
	header.Set("Host", u.Host)

	var referer string
	if ref := header.Get("Referer"); ref != "" {
		referer = ref
		header.Del("Referer")
	}

	headerCookies := map[string]string{}
	if ck := header.Get("Cookie"); ck != "" {
		headerCookies = parseCookieHeader(ck)
		header.Del("Cookie")
	}

	if userinfoUser != "" {
		base := auth.Basic{User: userinfoUser, Pass: userinfoPass}
		base.Attach(header, method, u.String())
	} else if o.Auth != nil {
		o.Auth.Attach(header, method, u.String())
		s.mu.Lock()
		s.authCache[u.Hostname()] = o.Auth
		s.mu.Unlock()
	} else if cached, ok := s.cachedAuth(u.Hostname()); ok {
		cached.Attach(header, method, u.String())
	}

	stored, err := s.store.Get(ctx, h.SessionID, u, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("cookie lookup failed")
		stored = map[string]string{}
	}
	cookies := map[string]string{}
	for k, v := range stored {
		cookies[k] = v
	}
	for k, v := range headerCookies {
		cookies[k] = v
	}
	for k, v := range o.Cookies {
		cookies[k] = v
	}
	if len(cookies) > 0 {
		header.Set("Cookie", cookiejar.Format(cookies))
	}

	contentType, body, err := encodedBody(method, o)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	if method == "HEAD" {
		h.NoBody = true
	}

	maxRetries := s.RetryTimes
	if mr, ok := o.Meta["max_retry_times"].(int); ok {
		maxRetries = mr
	}
	if dontRetry, _ := o.Meta["dont_retry"].(bool); dontRetry {
		maxRetries = 0
	}
	h.MaxRetries = maxRetries
	h.Body = body
	h.HeaderLines = nil

	h.Req = &RequestSnapshot{
		Method:  strings.ToUpper(method),
		URL:     u.String(),
		Header:  header,
		Cookies: cookies,
		Referer: referer,
	}

	return h, nil
}

func (s *Session) cachedAuth(host string) (auth.Authenticator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.authCache[host]
	return a, ok
}

func parseCookieHeader(v string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(v, ";") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 {
			out[kv[0]] = kv[1]
		}
	}
	return out
}

func parseProxySpec(raw string) (*ProxySpec, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &InvalidRequestError{Reason: "bad proxy url: " + err.Error()}
	}
	spec := &ProxySpec{Scheme: u.Scheme, Host: u.Hostname(), Port: u.Port()}
	if u.User != nil {
		spec.User = u.User.Username()
		spec.Pass, _ = u.User.Password()
	}
	return spec, nil
}

// Do performs the HTTP round trip for h's current request snapshot,
// returning an assembled Response. It does not follow redirects or retry —
// callers (Session.Request, spider.Scheduler) drive PlanRedirect/PlanRetry.
// The body is read from a copy-free view of h.Body, so it is sent again
// unchanged on a retry or a 307/308 redirect.
func (s *Session) Do(ctx context.Context, h *Handle) (*Response, error) {
	var bodyReader io.Reader
	if h.Body != nil && h.Body.Len() > 0 {
		bodyReader = bytes.NewReader(h.Body.Bytes())
	}

	req, err := http.NewRequestWithContext(ctx, h.Req.Method, h.Req.URL, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header = h.Req.Header.Clone()
	if h.Req.Referer != "" {
		req.Header.Set("Referer", h.Req.Referer)
	}

	client := s.clientFor(h)
	s.debugger.Event(debug.Event{Type: "request", URL: h.Req.URL, Method: h.Req.Method, At: time.Now()})

	raw, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer raw.Body.Close()

	body, err := io.ReadAll(raw.Body)
	if err != nil {
		return nil, err
	}

	var rawLines []string
	for k, vs := range raw.Header {
		for _, v := range vs {
			rawLines = append(rawLines, k+": "+v)
		}
	}

	resp, err := AssembleResponse(h, raw, body, rawLines)
	if err != nil {
		return nil, err
	}
	s.debugger.Event(debug.Event{Type: "response", URL: h.Req.URL, Status: resp.StatusCode, At: time.Now()})
	return resp, nil
}

func (s *Session) clientFor(h *Handle) *http.Client {
	if h.Proxy == nil && h.HTTPVersion == "" && h.Verify && h.CertPath == "" {
		return s.client
	}
	transport := &http.Transport{}
	switch h.HTTPVersion {
	case "2":
		transport.ForceAttemptHTTP2 = true
	case "1.1":
		transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}
	if h.Proxy != nil {
		switch h.Proxy.Scheme {
		case "http", "https":
			proxyURL := &url.URL{Scheme: h.Proxy.Scheme, Host: net.JoinHostPort(h.Proxy.Host, h.Proxy.Port)}
			if h.Proxy.User != "" {
				proxyURL.User = url.UserPassword(h.Proxy.User, h.Proxy.Pass)
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		case "socks4", "socks4a", "socks5", "socks5h":
			v4Dialer := &net.Dialer{Resolver: &net.Resolver{PreferGo: true}}
			var auth *proxy.Auth
			if h.Proxy.User != "" {
				auth = &proxy.Auth{User: h.Proxy.User, Password: h.Proxy.Pass}
			}
			dialer, err := proxy.SOCKS5("tcp", net.JoinHostPort(h.Proxy.Host, h.Proxy.Port), auth, v4Dialer)
			if err == nil {
				transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
					return dialer.Dial(network, addr)
				}
			}
		}
	}
	if strings.HasPrefix(h.Req.URL, "https://") {
		transport.TLSClientConfig = s.tlsConfig(h)
	}
	return &http.Client{
		Timeout: s.DefaultTimeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (s *Session) tlsConfig(h *Handle) *tls.Config {
	cfg := &tls.Config{InsecureSkipVerify: !h.Verify}
	if h.CertPath != "" {
		if pem, err := os.ReadFile(h.CertPath); err == nil {
			pool := x509.NewCertPool()
			if pool.AppendCertsFromPEM(pem) {
				cfg.RootCAs = pool
			}
		}
	}
	return cfg
}

// saveResponseCookies persists cookies collected in resp, per the Set-Cookie
// handling contract (§4.D): deletions and saves both pass through Store.Save
// (the deleteSentinel check happens there).
func (s *Session) saveResponseCookies(ctx context.Context, h *Handle, resp *Response) error {
	if len(resp.Cookies) == 0 {
		return nil
	}
	return s.store.Save(ctx, resp.Cookies)
}
