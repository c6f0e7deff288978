package spider

import "context"

// Spider is the user-supplied component declaring seeds and parse
// callbacks, the Go realization of the Spider surface (§6). Optional hooks
// (StartRequests, InitSpider, Closed) are checked via the narrower
// interfaces below rather than forcing every concrete spider to implement
// them — the Go analogue of the source's "attribute may or may not exist"
// duck typing.
type Spider interface {
	Name() string
	StartURLs() []string
	Parse(ctx *FetchContext, resp *Response) GenStep
}

// RequestStarter is implemented by spiders with a generator-based seed
// source (the source's start_requests()).
type RequestStarter interface {
	StartRequests() GenStep
}

// SpiderInitializer is implemented by spiders needing async setup before
// the first fetch.
type SpiderInitializer interface {
	InitSpider(ctx context.Context) error
}

// SpiderCloser is implemented by spiders wanting a shutdown notification.
type SpiderCloser interface {
	Closed(reason string)
}

// BaseSpider provides zero-value defaults for the non-required Spider
// methods, so concrete spiders embed it and override only what they need —
// the idiomatic Go embedding analogue of the teacher's "big struct with
// field defaults" style, adapted from one shared struct to an
// interface+embedding pattern since spiders are user-defined types.
type BaseSpider struct {
	SpiderName string
	Seeds      []string
	URLPersist bool
}

// Name implements Spider.
func (b *BaseSpider) Name() string { return b.SpiderName }

// StartURLs implements Spider.
func (b *BaseSpider) StartURLs() []string { return b.Seeds }

// Parse implements Spider with a no-op default; concrete spiders override
// it.
func (b *BaseSpider) Parse(ctx *FetchContext, resp *Response) GenStep { return nil }
