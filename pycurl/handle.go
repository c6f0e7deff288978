package pycurl

import (
	"bytes"
	"net/http"
)

// RequestSnapshot is the canonical, already-prepared request attached to a
// Handle: URL, headers, cookies, and origin_url, frozen at prepare time.
type RequestSnapshot struct {
	Method    string
	URL       string
	Header    http.Header
	Cookies   map[string]string
	Referer   string
	OriginURL string
}

// ProxySpec describes a configured proxy.
type ProxySpec struct {
	Scheme string // http, socks4, socks4a, socks5, socks5h
	Host   string
	Port   string
	User   string
	Pass   string
}

// Handle is the per-in-flight-fetch state: request reference, retry count,
// redirect/proxy/TLS configuration, response accumulators. Reused across
// retries and in-scheme redirects without release; only returned to the
// pool on terminal success/failure. Ported from the "curl handle state"
// data model entry.
type Handle struct {
	Req            *RequestSnapshot
	Retry          int
	MaxRetries     int
	AllowRedirects bool
	RedirectCount  int
	MaxRedirects   int
	NoBody         bool
	Proxy          *ProxySpec
	CertPath       string
	Verify         bool
	Timeout        int64 // nanoseconds, avoids importing time in hot struct
	HeaderLines    []string
	Body           *bytes.Buffer
	SessionID      string
	Domain         string
	TopDomain      string
	HTTPVersion    string
	Meta           map[string]any

	client *http.Client
}

// reset clears the response accumulator before a redirect or retry
// re-dispatch; the handle itself (and its connection affinity) is kept. The
// request body in Body is kept too; ApplyRedirect clears it when a redirect
// rewrites the method.
func (h *Handle) reset() {
	h.HeaderLines = h.HeaderLines[:0]
}

// ResetForRedispatch clears the response accumulator before a re-dispatch of
// the same Handle, for callers outside this package (spider.Scheduler)
// driving PlanRedirect/PlanRetry across package boundaries.
func (h *Handle) ResetForRedispatch() { h.reset() }

// HandlePool is a bounded FIFO of reusable Handles, sized
// max(16, 2*CONCURRENT_REQUESTS) per the Fetcher Core contract.
type HandlePool struct {
	ch chan *Handle
}

// NewHandlePool creates a pool with the given capacity.
func NewHandlePool(capacity int) *HandlePool {
	if capacity < 16 {
		capacity = 16
	}
	return &HandlePool{ch: make(chan *Handle, capacity)}
}

// Get returns a pooled Handle or a freshly allocated one if the pool is
// empty.
func (p *HandlePool) Get() *Handle {
	select {
	case h := <-p.ch:
		return h
	default:
		return &Handle{Body: &bytes.Buffer{}}
	}
}

// Put returns h to the pool, clearing its response state first. A handle
// that would exceed the pool's capacity is simply dropped (Go's GC reclaims
// it; there is no explicit destroy step).
func (p *HandlePool) Put(h *Handle) {
	h.reset()
	h.Req = nil
	h.Retry = 0
	h.RedirectCount = 0
	select {
	case p.ch <- h:
	default:
	}
}
