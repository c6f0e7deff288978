package pycurl

import (
	"strings"
)

// redirectStatuses are the statuses the Redirect Engine acts on.
var redirectStatuses = map[int]bool{301: true, 302: true, 303: true, 307: true, 308: true}

// DefaultMaxRedirects is the max redirect chain length; exceeding it returns
// ErrTooManyRedirects without a further fetch.
const DefaultMaxRedirects = 5

// RedirectDecision carries what the Redirect Engine decided to do to a
// Handle so the Fetcher can re-dispatch it.
type RedirectDecision struct {
	Followed    bool
	NewURL      string
	NewMethod   string
	ClearBody   bool
	NewReferer  string
	HostChanged bool
}

// PlanRedirect inspects resp against h and returns the redirect decision, or
// Followed=false if no redirect applies. It never performs I/O; the caller
// re-dispatches h on the returned NewURL. Ported from session.py's
// _response_redirect.
func PlanRedirect(h *Handle, resp *Response) (*RedirectDecision, error) {
	if !h.AllowRedirects {
		return &RedirectDecision{}, nil
	}
	if dontRedirect, _ := h.Meta["dont_redirect"].(bool); dontRedirect {
		return &RedirectDecision{}, nil
	}
	if !redirectStatuses[resp.StatusCode] {
		return &RedirectDecision{}, nil
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return &RedirectDecision{}, nil
	}

	if h.RedirectCount >= DefaultMaxRedirects {
		return nil, &ErrTooManyRedirects{Limit: DefaultMaxRedirects}
	}

	newURL, err := resp.URL.Parse(location)
	if err != nil {
		return nil, &InvalidRequestError{Reason: "bad redirect location: " + err.Error()}
	}

	oldHost := resp.URL.Hostname()
	newHost := newURL.Hostname()
	hostChanged := !strings.EqualFold(oldHost, newHost)

	method := h.Req.Method
	clearBody := false
	switch resp.StatusCode {
	case 303:
		if method != "HEAD" {
			method = "GET"
			clearBody = true
		}
	case 301, 302:
		if method == "POST" {
			method = "GET"
			clearBody = true
		}
	case 307, 308:
		// preserve method and body
	}

	return &RedirectDecision{
		Followed:    true,
		NewURL:      newURL.String(),
		NewMethod:   method,
		ClearBody:   clearBody,
		NewReferer:  resp.URL.String(),
		HostChanged: hostChanged,
	}, nil
}
