package pycurl

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetJSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewSession()
	resp, err := s.Get(context.Background(), srv.URL+"/get")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestRedirect302PostToGet(t *testing.T) {
	var secondMethod string
	var secondReferer string
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/home", http.StatusFound)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		secondMethod = r.Method
		secondReferer = r.Header.Get("Referer")
		w.WriteHeader(200)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewSession()
	resp, err := s.Post(context.Background(), srv.URL+"/login", WithData(url.Values{"u": {"x"}}))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "GET", secondMethod)
	assert.Equal(t, srv.URL+"/login", secondReferer)
}

func TestRetry503ThenSuccess(t *testing.T) {
	count := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count++
		if count < 3 {
			w.WriteHeader(503)
			return
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	s := NewSession()
	s.SetRetryTimes(3, nil)
	resp, err := s.Get(context.Background(), srv.URL+"/flaky")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 3, count)
}

func TestCookieScopingAcrossSubdomains(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			w.Header().Set("Set-Cookie", "sid=1; Domain=.example.test; Path=/")
			w.WriteHeader(200)
			return
		}
		w.WriteHeader(200)
	}))
	defer srv.Close()

	s := NewSession()
	_, err := s.Get(context.Background(), srv.URL+"/set")
	require.NoError(t, err)
	// Directly verify the store (the httptest server host isn't
	// "example.test", so this exercises the store API rather than a live
	// subdomain request).
	cookies, err := s.store.Get(context.Background(), s.SessionID, mustParse(t, "https://b.example.test/path"), nil)
	require.NoError(t, err)
	assert.Equal(t, "1", cookies["sid"])

	cookies, err = s.store.Get(context.Background(), s.SessionID, mustParse(t, "https://other.test/path"), nil)
	require.NoError(t, err)
	assert.Empty(t, cookies)
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestApplyRedirectDropsCookiesAndAuthCrossHost(t *testing.T) {
	s := NewSession()
	h := &Handle{
		Domain: "example.test",
		Req: &RequestSnapshot{
			Method: "GET",
			URL:    "https://example.test/start",
			Header: http.Header{
				"Cookie":        {"sid=leaked"},
				"Authorization": {"Basic b2xkOm9sZA=="},
			},
			Cookies: map[string]string{"sid": "leaked"},
		},
	}

	err := s.ApplyRedirect(context.Background(), h, &RedirectDecision{
		Followed:    true,
		NewURL:      "https://other.test/landing",
		NewMethod:   "GET",
		NewReferer:  "https://example.test/start",
		HostChanged: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "other.test", h.Domain)
	assert.Empty(t, h.Req.Header.Get("Cookie"))
	assert.Empty(t, h.Req.Header.Get("Authorization"))
	assert.Empty(t, h.Req.Cookies)
}

func TestApplyRedirectPreservesCookiesOnSubdomain(t *testing.T) {
	s := NewSession()
	h := &Handle{
		Domain: "example.test",
		Req: &RequestSnapshot{
			Method: "GET",
			URL:    "https://example.test/start",
			Header: http.Header{"Cookie": {"sid=keep"}},
			Cookies: map[string]string{"sid": "keep"},
		},
	}

	err := s.ApplyRedirect(context.Background(), h, &RedirectDecision{
		Followed:    true,
		NewURL:      "https://api.example.test/landing",
		NewMethod:   "GET",
		NewReferer:  "https://example.test/start",
		HostChanged: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "api.example.test", h.Domain)
	assert.Equal(t, "sid=keep", h.Req.Header.Get("Cookie"))
}

func TestApplyRedirectReattachesBasicAuthFromUserinfo(t *testing.T) {
	s := NewSession()
	h := &Handle{
		Domain: "example.test",
		Req: &RequestSnapshot{
			Method: "GET",
			URL:    "https://example.test/start",
			Header: http.Header{"Authorization": {"Basic b2xkOm9sZA=="}},
		},
	}

	err := s.ApplyRedirect(context.Background(), h, &RedirectDecision{
		Followed:    true,
		NewURL:      "https://new:pw@other.test/landing",
		NewMethod:   "GET",
		NewReferer:  "https://example.test/start",
		HostChanged: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "https://other.test/landing", h.Req.URL)
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("new:pw")), h.Req.Header.Get("Authorization"))
}
