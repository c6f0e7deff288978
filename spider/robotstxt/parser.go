// Package robotstxt parses robots.txt and answers CanFetch, ported
// line-for-line from original_source/pycurl_session/spider/
// robotstxtparser.py's RobotFileParser: an ORDERED per-user-agent rule list
// (never split into separate allow/disallow lists), first-match-wins
// pattern matching, and the %2F-preserving percent-decode used for path
// normalization.
package robotstxt

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Rule is one (pattern, allow) entry in a declared order.
type Rule struct {
	Pattern string
	Allow   bool
}

type ruleSet struct {
	rules       []Rule
	crawlDelay  int
	requestRate [2]int
}

// Parser holds the parsed rule sets for every declared User-agent, keyed
// internally by a generated id (mirroring the source's uuid.uuid4() rule-
// set keys) plus the default "*" set.
type Parser struct {
	userAgents map[string]string // lowercased UA token -> ruleset id
	ruleSets   map[string]*ruleSet
	defaultSet *ruleSet
	sitemaps   []string

	disallowAll bool
	allowAll    bool
	fetched     bool
}

// New returns an empty Parser; call Parse with the raw robots.txt body.
func New() *Parser {
	return &Parser{
		userAgents: map[string]string{},
		ruleSets:   map[string]*ruleSet{},
		defaultSet: &ruleSet{},
	}
}

// SetStatus records the HTTP status of the robots.txt fetch: 401/403 means
// disallow-all, any other 4xx means allow-all, matching can_fetch's prior-
// fetch-status rule.
func (p *Parser) SetStatus(status int) {
	switch {
	case status == 401 || status == 403:
		p.disallowAll = true
	case status >= 400 && status < 500:
		p.allowAll = true
	}
	p.fetched = true
}

// Parse ingests the raw robots.txt body.
func (p *Parser) Parse(raw string) {
	p.fetched = true
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	lines := strings.Split(raw, "\n")

	var lastLineWasUA bool
	var currentID string

	for _, line := range lines {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 {
			continue
		}
		field := strings.ToLower(strings.TrimSpace(kv[0]))
		data := unquotePath(strings.TrimSpace(kv[1]))

		switch field {
		case "useragent", "user-agent":
			if !lastLineWasUA {
				currentID = uuid.NewString()
				p.userAgents[strings.ToLower(data)] = currentID
				p.ruleSets[currentID] = &ruleSet{}
				lastLineWasUA = true
			} else {
				p.userAgents[strings.ToLower(data)] = currentID
			}
		case "disallow":
			lastLineWasUA = false
			if rs := p.ruleSets[currentID]; rs != nil {
				rs.rules = append(rs.rules, Rule{Pattern: data, Allow: false})
			}
		case "allow":
			lastLineWasUA = false
			if rs := p.ruleSets[currentID]; rs != nil {
				rs.rules = append(rs.rules, Rule{Pattern: data, Allow: true})
			}
		case "crawl-delay":
			lastLineWasUA = false
			if n, err := strconv.Atoi(strings.TrimSpace(data)); err == nil {
				if rs := p.ruleSets[currentID]; rs != nil {
					rs.crawlDelay = n
				}
			}
		case "request-rate":
			lastLineWasUA = false
			nums := strings.SplitN(data, "/", 2)
			if len(nums) == 2 {
				a, err1 := strconv.Atoi(strings.TrimSpace(nums[0]))
				b, err2 := strconv.Atoi(strings.TrimSpace(nums[1]))
				if err1 == nil && err2 == nil {
					if rs := p.ruleSets[currentID]; rs != nil {
						rs.requestRate = [2]int{a, b}
					}
				}
			}
		case "sitemap":
			lastLineWasUA = false
			p.sitemaps = append(p.sitemaps, data)
		}
	}

	if id, ok := p.userAgents["*"]; ok {
		p.defaultSet = p.ruleSets[id]
		delete(p.ruleSets, id)
		delete(p.userAgents, "*")
	}
}

// CanFetch answers whether ua may fetch rawURL.
func (p *Parser) CanFetch(ua, rawURL string) bool {
	if p.disallowAll {
		return false
	}
	if p.allowAll {
		return true
	}
	if !p.fetched {
		return false
	}

	path := pathOf(rawURL)
	path = unquotePath(path)

	rs := p.ruleSetFor(ua)
	if rs == nil {
		return true
	}
	for _, rule := range rs.rules {
		if pathMatch(rule.Pattern, path) {
			return rule.Allow
		}
	}
	return true
}

func (p *Parser) ruleSetFor(ua string) *ruleSet {
	ua = strings.ToLower(ua)
	var matchUA string
	var matchLen int
	for token := range p.userAgents {
		if strings.Contains(ua, token) && len(token) >= matchLen {
			matchLen = len(token)
			matchUA = token
		}
	}
	if matchUA != "" {
		return p.ruleSets[p.userAgents[matchUA]]
	}
	return p.defaultSet
}

// CrawlDelay returns the crawl-delay for ua, or 0 if none declared.
func (p *Parser) CrawlDelay(ua string) int {
	if ua == "*" {
		return p.defaultSet.crawlDelay
	}
	if id, ok := p.userAgents[strings.ToLower(ua)]; ok {
		return p.ruleSets[id].crawlDelay
	}
	return 0
}

// RequestRate returns the request-rate for ua, or the zero value if none
// declared.
func (p *Parser) RequestRate(ua string) [2]int {
	if ua == "*" {
		return p.defaultSet.requestRate
	}
	if id, ok := p.userAgents[strings.ToLower(ua)]; ok {
		return p.ruleSets[id].requestRate
	}
	return [2]int{}
}

// Sitemaps returns the declared sitemap URLs.
func (p *Parser) Sitemaps() []string {
	out := make([]string, len(p.sitemaps))
	copy(out, p.sitemaps)
	return out
}

func pathOf(rawURL string) string {
	// robots.txt matching only cares about path+query+fragment; avoid a
	// full url.Parse since the input may already be just a path.
	if i := strings.Index(rawURL, "://"); i >= 0 {
		rest := rawURL[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return rest[j:]
		}
		return "/"
	}
	return rawURL
}

// unquotePath percent-decodes everything except %2F/%2f, via the same
// newline-substitution trick as the source.
func unquotePath(path string) string {
	path = strings.ReplaceAll(path, "%2F", "\n")
	path = strings.ReplaceAll(path, "%2f", "\n")
	path = unquote(path)
	return strings.ReplaceAll(path, "\n", "%2F")
}

func unquote(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if n, err := strconv.ParseInt(s[i+1:i+3], 16, 16); err == nil {
				b.WriteByte(byte(n))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// pathMatch implements the pattern-match rule: patterns containing '*' or
// ending in '$' compile to a regexp; otherwise match is a plain prefix.
func pathMatch(pattern, path string) bool {
	if strings.Contains(pattern, "*") || strings.HasSuffix(pattern, "$") {
		anchor := ""
		p := pattern
		if strings.HasSuffix(p, "$") {
			anchor = "$"
			p = p[:len(p)-1]
		}
		p = collapseStars(p)
		parts := strings.Split(p, "*")
		quoted := make([]string, len(parts))
		for i, part := range parts {
			quoted[i] = regexp.QuoteMeta(part)
		}
		expr := "^" + strings.Join(quoted, ".*") + anchor
		re, err := regexp.Compile(expr)
		if err != nil {
			return false
		}
		return re.MatchString(path)
	}
	return strings.HasPrefix(path, pattern)
}

func collapseStars(s string) string {
	for strings.Contains(s, "**") {
		s = strings.ReplaceAll(s, "**", "*")
	}
	return s
}
