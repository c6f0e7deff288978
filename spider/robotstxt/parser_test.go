package robotstxt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderedFirstMatchWins(t *testing.T) {
	p := New()
	p.Parse("User-agent: *\nDisallow: /private\nAllow: /private/public\n")
	assert.False(t, p.CanFetch("anybot", "https://example.test/private/secret"))
	assert.True(t, p.CanFetch("anybot", "https://example.test/private/public"))
}

func TestAllowBeforeDisallowWins(t *testing.T) {
	p := New()
	p.Parse("User-agent: *\nAllow: /a\nDisallow: /a\n")
	assert.True(t, p.CanFetch("anybot", "https://example.test/a"))
}

func TestWildcardBoundaryTrailingSlashNotMatched(t *testing.T) {
	p := New()
	p.Parse("User-agent: *\nDisallow: /a*b$\n")
	assert.False(t, p.CanFetch("anybot", "https://example.test/axxb"))
	assert.True(t, p.CanFetch("anybot", "https://example.test/axxb/"))
}

func TestPercentEncodedSlashPreserved(t *testing.T) {
	p := New()
	p.Parse("User-agent: *\nDisallow: /a%2Fb\n")
	assert.False(t, p.CanFetch("anybot", "https://example.test/a%2Fb"))
	assert.True(t, p.CanFetch("anybot", "https://example.test/a/b"))
}

func TestUserAgentLongestMatchWins(t *testing.T) {
	p := New()
	p.Parse("User-agent: bot\nDisallow: /bot-only\n\nUser-agent: specialbot\nAllow: /bot-only\n")
	assert.True(t, p.CanFetch("specialbot/1.0", "https://example.test/bot-only"))
	assert.False(t, p.CanFetch("otherbot/1.0 (bot)", "https://example.test/bot-only"))
}

func TestDisallowAllOn403(t *testing.T) {
	p := New()
	p.SetStatus(403)
	assert.False(t, p.CanFetch("anybot", "https://example.test/anything"))
}

func TestAllowAllOnOther4xx(t *testing.T) {
	p := New()
	p.SetStatus(404)
	assert.True(t, p.CanFetch("anybot", "https://example.test/anything"))
}

func TestUnfetchedDisallowsEverything(t *testing.T) {
	p := New()
	assert.False(t, p.CanFetch("anybot", "https://example.test/anything"))
}

func TestCrawlDelayAndSitemaps(t *testing.T) {
	p := New()
	p.Parse("User-agent: *\nCrawl-delay: 10\nSitemap: https://example.test/sitemap.xml\n")
	assert.Equal(t, 10, p.CrawlDelay("*"))
	assert.Equal(t, []string{"https://example.test/sitemap.xml"}, p.Sitemaps())
}
