package spider

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glamas/pycurl-session/pycurl"
)

func newTestResponse(t *testing.T, rawURL, html string) *Response {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return &Response{Response: &pycurl.Response{URL: u, Text: html, ContentType: "text/html"}}
}

func TestFormRequestFromResponsePostWithDefaults(t *testing.T) {
	html := `<html><body>
		<form action="/login" method="post">
			<input type="text" name="username" value="guest">
			<input type="password" name="password" value="">
			<input type="hidden" name="csrf" value="tok123">
			<input type="submit" name="submit" value="Log in">
		</form>
	</body></html>`
	resp := newTestResponse(t, "https://example.test/signin", html)

	req, err := FormRequestFromResponse(resp, "", url.Values{"password": {"secret"}}, nil)
	require.NoError(t, err)

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "https://example.test/login", req.URL.String())
	body, ok := req.Body.(FormBody)
	require.True(t, ok)
	assert.Equal(t, "guest", body.Values.Get("username"))
	assert.Equal(t, "secret", body.Values.Get("password"))
	assert.Equal(t, "tok123", body.Values.Get("csrf"))
	assert.Empty(t, body.Values.Get("submit"))
}

func TestFormRequestFromResponseGetEncodesQuery(t *testing.T) {
	html := `<form action="/search" method="get"><input type="text" name="q" value="go"></form>`
	resp := newTestResponse(t, "https://example.test/", html)

	req, err := FormRequestFromResponse(resp, "form", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "go", req.URL.Query().Get("q"))
}

func TestNewFormRequestBuildsPostBody(t *testing.T) {
	req, err := NewFormRequest("https://example.test/submit", url.Values{"a": {"1"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "POST", req.Method)
	body, ok := req.Body.(FormBody)
	require.True(t, ok)
	assert.Equal(t, "1", body.Values.Get("a"))
}
