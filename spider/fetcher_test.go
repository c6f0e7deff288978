package spider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glamas/pycurl-session/pycurl"
)

func TestFetcherEnforcesPerHostDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	settings := DefaultSettings()
	settings.ConcurrentRequests = 4
	settings.DownloadDelay = 50 * time.Millisecond

	session := pycurl.NewSession()
	fetcher := NewFetcher(session, settings)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		h, err := session.PrepareHandle(ctx, "GET", srv.URL, &pycurl.Options{AllowRedirects: true, QuoteSafe: "/"})
		require.NoError(t, err)
		_, err = fetcher.Dispatch(ctx, h)
		require.NoError(t, err)
	}
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
}

func TestFetcherBoundsConcurrency(t *testing.T) {
	var inflight int32
	var maxObserved int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inflight, 1)
		for {
			observed := atomic.LoadInt32(&maxObserved)
			if cur <= observed || atomic.CompareAndSwapInt32(&maxObserved, observed, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	settings := DefaultSettings()
	settings.ConcurrentRequests = 2

	session := pycurl.NewSession()
	fetcher := NewFetcher(session, settings)

	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		go func() {
			ctx := context.Background()
			h, err := session.PrepareHandle(ctx, "GET", srv.URL, &pycurl.Options{AllowRedirects: true, QuoteSafe: "/"})
			if err != nil {
				done <- struct{}{}
				return
			}
			_, _ = fetcher.Dispatch(ctx, h)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}

	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxObserved)), 2)
}
