package spider

import (
	"context"
	"fmt"
	"sync"

	"github.com/glamas/pycurl-session/pycurl"
)

// RequestMiddleware is called in forward order before dispatch.
type RequestMiddleware interface {
	ProcessRequest(ctx context.Context, req *Request, sp Spider) (Control, error)
}

// ResponseMiddleware is called in reverse order after fetch.
type ResponseMiddleware interface {
	ProcessResponse(ctx context.Context, req *Request, resp *Response, sp Spider) (Control, error)
}

// ExceptionMiddleware is called on transport failure.
type ExceptionMiddleware interface {
	ProcessException(ctx context.Context, req *Request, perr *pycurl.PerformError, sp Spider) (Control, error)
}

// Middleware is the umbrella type a registry entry must implement at least
// one facet of; callers type-assert for the hooks they need, mirroring the
// teacher's own optional-callback registration style generalized from
// closures to objects (middleware here is a registry of named
// constructors, not one collector's callback slices — design note "Dynamic
// dispatch over middleware").
type Middleware interface{}

// MiddlewareConstructor builds a Middleware from Settings; entries in
// Settings.DownloaderMiddlewares are keys into the registry populated by
// RegisterMiddleware.
type MiddlewareConstructor func(*Settings) (Middleware, error)

var (
	middlewareRegistryMu sync.Mutex
	middlewareRegistry   = map[string]MiddlewareConstructor{}
)

// RegisterMiddleware adds a named middleware constructor to the registry,
// the Go realization of the source's reflective module loading.
func RegisterMiddleware(name string, ctor MiddlewareConstructor) {
	middlewareRegistryMu.Lock()
	defer middlewareRegistryMu.Unlock()
	middlewareRegistry[name] = ctor
}

// BuildMiddleware resolves a registered name into a Middleware instance.
func BuildMiddleware(name string, settings *Settings) (Middleware, error) {
	middlewareRegistryMu.Lock()
	ctor, ok := middlewareRegistry[name]
	middlewareRegistryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("spider: no middleware registered as %q", name)
	}
	return ctor(settings)
}

func init() {
	RegisterMiddleware("statistics", func(s *Settings) (Middleware, error) {
		return NewStatistics(), nil
	})
	RegisterMiddleware("robotstxt", func(s *Settings) (Middleware, error) {
		return NewRobotsMiddleware(s), nil
	})
	RegisterMiddleware("cookies_debug", func(s *Settings) (Middleware, error) {
		return NewCookiesDebug(s.CookiesDebug), nil
	})
}
