// Package cookiejar implements the cookie store: a durable, domain/path
// scoped key-value table of cookies keyed by session, ported from
// pycurl_session's cache.py and session.py save_cookies/get_cookies.
package cookiejar

// Cookie is one stored row. Expires is 0 for a session cookie, otherwise an
// absolute Unix-seconds timestamp.
type Cookie struct {
	SessionID string
	Name      string
	Value     string
	Domain    string
	Path      string
	Expires   int64
}

// CookieKey identifies a row for Delete.
type CookieKey struct {
	SessionID string
	Name      string
	Domain    string
	Path      string
}

// UnsetKey identifies a row for Unset; Path is optional ("" matches any
// stored path for that name/domain).
type UnsetKey struct {
	Name   string
	Domain string
	Path   string
}

// deleteSentinel is the Set-Cookie value that queues deletion instead of a
// save, per the Set-Cookie parsing rule in the response assembler.
const deleteSentinel = "delete"
