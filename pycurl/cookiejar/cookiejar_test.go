package cookiejar

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestMemStoreSaveAndGetRoundTrip(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	err := store.Save(ctx, []*Cookie{
		{SessionID: "s1", Name: "sid", Value: "1", Domain: ".example.test", Path: "/"},
	})
	require.NoError(t, err)

	cookies, err := store.Get(ctx, "s1", mustURL(t, "https://a.example.test/path"), nil)
	require.NoError(t, err)
	assert.Equal(t, "1", cookies["sid"])

	cookies, err = store.Get(ctx, "s1", mustURL(t, "https://other.test/path"), nil)
	require.NoError(t, err)
	assert.Empty(t, cookies)
}

func TestMemStoreDeleteSentinel(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, []*Cookie{
		{SessionID: "s1", Name: "sid", Value: "1", Domain: "a.test", Path: "/"},
	}))
	require.NoError(t, store.Save(ctx, []*Cookie{
		{SessionID: "s1", Name: "sid", Value: "delete", Domain: "a.test", Path: "/"},
	}))

	cookies, err := store.Get(ctx, "s1", mustURL(t, "https://a.test/"), nil)
	require.NoError(t, err)
	_, present := cookies["sid"]
	assert.False(t, present)
}

func TestPathPrefixScoping(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, []*Cookie{
		{SessionID: "s1", Name: "a", Value: "1", Domain: "a.test", Path: "/admin"},
		{SessionID: "s1", Name: "b", Value: "2", Domain: "a.test", Path: "/"},
	}))

	cookies, err := store.Get(ctx, "s1", mustURL(t, "https://a.test/public"), nil)
	require.NoError(t, err)
	assert.Equal(t, "2", cookies["b"])
	_, hasA := cookies["a"]
	assert.False(t, hasA)

	cookies, err = store.Get(ctx, "s1", mustURL(t, "https://a.test/admin/x"), nil)
	require.NoError(t, err)
	assert.Equal(t, "1", cookies["a"])
	assert.Equal(t, "2", cookies["b"])
}

func TestCandidateDomainsScoping(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	require.NoError(t, store.Save(ctx, []*Cookie{
		{SessionID: "s", Name: "sid", Value: "1", Domain: ".example.test", Path: "/"},
	}))

	got, err := store.Get(ctx, "s", mustURL(t, "https://b.example.test/path"), nil)
	require.NoError(t, err)
	assert.Equal(t, "1", got["sid"])

	got, err = store.Get(ctx, "s", mustURL(t, "https://other.test/path"), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseSetCookieExpiresAndMaxAge(t *testing.T) {
	c := ParseSetCookie("sid=1; Domain=.example.test; Path=/; Max-Age=60", "s", "example.test")
	require.NotNil(t, c)
	assert.Equal(t, "sid", c.Name)
	assert.Equal(t, ".example.test", c.Domain)
	assert.Greater(t, c.Expires, int64(0))
}

func TestParseSetCookieExpires2And4DigitYear(t *testing.T) {
	c4 := ParseSetCookie("sid=1; Expires=Wed, 21 Oct 2026 07:28:00 GMT", "s", "a.test")
	require.NotNil(t, c4)
	assert.Greater(t, c4.Expires, int64(0))

	c2 := ParseSetCookie("sid=1; Expires=Wed, 21-Oct-26 07:28:00 GMT", "s", "a.test")
	require.NotNil(t, c2)
	assert.Greater(t, c2.Expires, int64(0))
}

func TestParseSetCookieInvalidExpiresYieldsSessionCookie(t *testing.T) {
	c := ParseSetCookie("sid=1; Expires=not-a-date", "s", "a.test")
	require.NotNil(t, c)
	assert.Equal(t, int64(0), c.Expires)
}

func TestFormatStableOrder(t *testing.T) {
	got := Format(map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, "a=1; b=2", got)
}

func TestIsSubdomainRelation(t *testing.T) {
	assert.True(t, IsSubdomainRelation("b.example.test", "example.test"))
	assert.True(t, IsSubdomainRelation("example.test", "b.example.test"))
	assert.False(t, IsSubdomainRelation("other.test", "example.test"))
}
