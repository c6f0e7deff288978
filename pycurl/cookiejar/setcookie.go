package cookiejar

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// ParseSetCookie parses one Set-Cookie header value into a Cookie scoped to
// sessionID and defaultDomain (the response host, used when the header
// carries no Domain attribute). Recognized attributes: path=, domain=,
// expires= (RFC 6265 date syntax), max-age= (overrides expires), version=
// (ignored). Ported from session.py's save_cookies token handling, but
// replacing its aggressive expires string-mutation with an explicit RFC
// 6265 §5.1.1 date parser (parseCookieDate) per the spec's resolved open
// question.
func ParseSetCookie(raw, sessionID, defaultDomain string) *Cookie {
	parts := strings.Split(raw, ";")
	if len(parts) == 0 {
		return nil
	}

	nameValue := strings.SplitN(strings.TrimSpace(parts[0]), "=", 2)
	if len(nameValue) != 2 {
		return nil
	}

	c := &Cookie{
		SessionID: sessionID,
		Name:      strings.TrimSpace(nameValue[0]),
		Value:     strings.TrimSpace(nameValue[1]),
		Domain:    defaultDomain,
		Path:      "/",
	}

	var maxAgeSeen bool
	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		kv := strings.SplitN(attr, "=", 2)
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		var val string
		if len(kv) == 2 {
			val = strings.TrimSpace(kv[1])
		}

		switch key {
		case "path":
			if val != "" {
				c.Path = val
			}
		case "domain":
			if val != "" {
				c.Domain = val
			}
		case "expires":
			if !maxAgeSeen {
				if t, ok := parseCookieDate(val); ok {
					c.Expires = t.Unix()
				}
			}
		case "max-age":
			if secs, err := strconv.Atoi(val); err == nil {
				c.Expires = time.Now().Add(time.Duration(secs) * time.Second).Unix()
				maxAgeSeen = true
			}
		case "version":
			// ignored, per contract
		}
	}

	return c
}

// cookieDateLayouts enumerates the RFC 6265 §5.1.1 date-token syntaxes this
// parser accepts, including both 2- and 4-digit years per the spec's
// explicit boundary-behavior requirement.
var cookieDateLayouts = []string{
	"Mon, 02 Jan 2006 15:04:05 MST",
	"Mon, 02-Jan-2006 15:04:05 MST",
	"Mon, 02 Jan 06 15:04:05 MST",
	"Mon, 02-Jan-06 15:04:05 MST",
	"Monday, 02-Jan-06 15:04:05 MST",
	"02 Jan 2006 15:04:05 MST",
	"02-Jan-2006 15:04:05 MST",
	"02 Jan 06 15:04:05 MST",
	"02-Jan-06 15:04:05 MST",
}

// parseCookieDate attempts every recognized layout, defaulting a missing
// zone token to GMT (the overwhelming common case, and the one the source
// assumed implicitly). Invalid values return ok=false, and the caller then
// leaves Expires at 0 (a session cookie). No warning is logged for an
// invalid value.
func parseCookieDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range cookieDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	// retry with an explicit GMT suffix for inputs that omitted a zone.
	withZone := s + " GMT"
	for _, layout := range cookieDateLayouts {
		if t, err := time.Parse(layout, withZone); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Format renders a cookie map as the single Cookie header value the Request
// Preparer emits: "k=v; k2=v2", in stable key order.
func Format(cookies map[string]string) string {
	if len(cookies) == 0 {
		return ""
	}
	keys := make([]string, 0, len(cookies))
	for k := range cookies {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(cookies[k])
	}
	return b.String()
}
