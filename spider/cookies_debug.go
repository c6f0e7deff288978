package spider

import (
	"context"

	"github.com/rs/zerolog"
)

// CookiesDebug logs request/response cookies when enabled, ported from the
// source's Cookies debug middleware.
type CookiesDebug struct {
	enabled bool
	logger  zerolog.Logger
}

// NewCookiesDebug constructs a CookiesDebug middleware.
func NewCookiesDebug(enabled bool) *CookiesDebug {
	return &CookiesDebug{enabled: enabled, logger: zerolog.Nop()}
}

// SetLogger installs the logger used for debug lines.
func (c *CookiesDebug) SetLogger(l zerolog.Logger) { c.logger = l }

// ProcessRequest implements RequestMiddleware.
func (c *CookiesDebug) ProcessRequest(ctx context.Context, req *Request, sp Spider) (Control, error) {
	if c.enabled {
		c.logger.Debug().Str("url", req.URL.String()).Interface("cookies", req.Cookies).Msg("request cookies")
	}
	return Continue(), nil
}

// ProcessResponse implements ResponseMiddleware.
func (c *CookiesDebug) ProcessResponse(ctx context.Context, req *Request, resp *Response, sp Spider) (Control, error) {
	if c.enabled {
		c.logger.Debug().Str("url", resp.URL.String()).Int("num_cookies", len(resp.Cookies)).Msg("response cookies")
	}
	return Continue(), nil
}
