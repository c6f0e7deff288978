package cookiejar

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// candidateDomains computes the registrable ("top") domain for host via the
// public suffix list and every progressively shorter dotted suffix down to
// it, in both plain and dot-prefixed forms — matching the dot-prefixed
// Domain convention cookies carry after Set-Cookie (".example.test").
// This resolves the spec's open question in favor of a PSL-based rule,
// replacing the source's naive last-two-labels split.
func candidateDomains(host string) []string {
	host = strings.ToLower(host)
	top, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// host is itself a public suffix or a single label; fall back to
		// treating the whole host as its own top domain.
		top = host
	}

	var out []string
	labels := strings.Split(host, ".")
	topLabels := strings.Split(top, ".")
	for i := 0; i <= len(labels)-len(topLabels); i++ {
		suffix := strings.Join(labels[i:], ".")
		out = append(out, suffix, "."+suffix)
		if suffix == top {
			break
		}
	}
	if len(out) == 0 {
		out = append(out, host, "."+host)
	}
	return out
}

// IsSubdomainRelation reports whether a and b are the same host or one is a
// subdomain of the other, used by the Redirect Engine to decide whether to
// preserve the cookie overlay across a cross-host redirect.
func IsSubdomainRelation(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return true
	}
	return strings.HasSuffix(a, "."+b) || strings.HasSuffix(b, "."+a)
}

// effectiveHost strips a port from a URL's Host/Hostname, mirroring the
// registrable-domain computation operating on bare hostnames.
func effectiveHost(u *url.URL) string {
	return strings.ToLower(u.Hostname())
}
