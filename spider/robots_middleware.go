package spider

import (
	"context"
	"fmt"
	"sync"

	"github.com/glamas/pycurl-session/spider/robotstxt"
)

// RobotsMiddleware lazily fetches and caches /robots.txt per
// (scheme, host, port) and gates requests through CanFetch. Multiple
// Fetcher workers may race on the same host; a sync.Once-per-key wait
// replaces the source's single-threaded short-circuit-pending-requests
// behavior (SPEC_FULL.md §4.H).
type RobotsMiddleware struct {
	settings *Settings
	fetch    func(ctx context.Context, robotsURL string) (*robotstxt.Parser, int, error)

	mu      sync.Mutex
	entries map[string]*robotsEntry
}

type robotsEntry struct {
	once   sync.Once
	parser *robotstxt.Parser
	err    error
}

// NewRobotsMiddleware constructs a RobotsMiddleware. The Scheduler installs
// a fetch function backed by pycurl.Session.Get at wiring time via
// SetFetchFunc; tests may inject a stub the same way.
func NewRobotsMiddleware(settings *Settings) *RobotsMiddleware {
	return &RobotsMiddleware{settings: settings, entries: make(map[string]*robotsEntry)}
}

// SetFetchFunc installs the function used to retrieve robots.txt bodies.
func (m *RobotsMiddleware) SetFetchFunc(fn func(ctx context.Context, robotsURL string) (*robotstxt.Parser, int, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetch = fn
}

func robotsKey(req *Request) string {
	port := req.URL.Port()
	if port == "" {
		if req.URL.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return fmt.Sprintf("%s://%s:%s", req.URL.Scheme, req.URL.Hostname(), port)
}

// ProcessRequest implements RequestMiddleware: disallowed requests return
// Ignore. The Scheduler runs this middleware ahead of Statistics, so a
// request ignored here is not counted.
func (m *RobotsMiddleware) ProcessRequest(ctx context.Context, req *Request, sp Spider) (Control, error) {
	if !m.settings.RobotsTxtObey {
		return Continue(), nil
	}
	if marker, _ := req.Meta[MetaRobotsTxt].(bool); marker {
		// this is the internal robots.txt fetch itself; never gate it.
		return Continue(), nil
	}

	parser, err := m.parserFor(ctx, req)
	if err != nil {
		// fetch failure: fail open, matching "no match -> allow" spirit
		// when the robots document itself is unreachable.
		return Continue(), nil
	}

	ua := m.settings.UserAgent
	if !parser.CanFetch(ua, req.URL.String()) {
		return Ignore(), nil
	}
	return Continue(), nil
}

func (m *RobotsMiddleware) parserFor(ctx context.Context, req *Request) (*robotstxt.Parser, error) {
	key := robotsKey(req)

	m.mu.Lock()
	entry, ok := m.entries[key]
	if !ok {
		entry = &robotsEntry{}
		m.entries[key] = entry
	}
	fetch := m.fetch
	m.mu.Unlock()

	entry.once.Do(func() {
		if fetch == nil {
			entry.err = fmt.Errorf("spider: no robots fetch function configured")
			return
		}
		robotsURL := key + "/robots.txt"
		parser, status, err := fetch(ctx, robotsURL)
		if err != nil {
			entry.err = err
			return
		}
		parser.SetStatus(status)
		entry.parser = parser
	})

	return entry.parser, entry.err
}
