package spider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glamas/pycurl-session/pycurl"
)

type collectingPipeline struct {
	mu    sync.Mutex
	items []any
}

func (p *collectingPipeline) ProcessItem(item any, sp Spider) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, item)
	return item, nil
}

type linkSpider struct {
	BaseSpider
}

func (s *linkSpider) Parse(ctx *FetchContext, resp *Response) GenStep {
	title := resp.StatusCode
	yielded := false
	return func() (YieldKind, *Request, any, bool) {
		if yielded {
			return YieldNone, nil, nil, false
		}
		yielded = true
		return YieldItem, nil, title, false
	}
}

func TestSchedulerCrawlsSeedAndRunsPipeline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	settings := DefaultSettings()
	settings.RobotsTxtObey = false
	settings.ConcurrentRequests = 2

	session := pycurl.NewSession()
	sched := NewScheduler(settings, session)

	pipeline := &collectingPipeline{}
	sched.AddPipeline(pipeline)

	sp := &linkSpider{BaseSpider{SpiderName: "link", Seeds: []string{srv.URL + "/"}}}
	sched.RegisterSpider(sp)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stats, err := sched.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RequestCount)
	assert.Equal(t, int64(1), stats.ResponseCount)

	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()
	require.Len(t, pipeline.items, 1)
	assert.Equal(t, 200, pipeline.items[0])
}

func TestSchedulerFollowsRedirectToTerminalResponse(t *testing.T) {
	var mu sync.Mutex
	var finalStatus int

	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	settings := DefaultSettings()
	settings.RobotsTxtObey = false

	session := pycurl.NewSession()
	sched := NewScheduler(settings, session)

	sp := &captureSpider{BaseSpider: BaseSpider{SpiderName: "redirect", Seeds: []string{srv.URL + "/start"}}}
	sp.onParse = func(resp *Response) {
		mu.Lock()
		finalStatus = resp.StatusCode
		mu.Unlock()
	}
	sched.RegisterSpider(sp)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := sched.Run(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 200, finalStatus)
}

type captureSpider struct {
	BaseSpider
	onParse func(resp *Response)
}

func (s *captureSpider) Parse(ctx *FetchContext, resp *Response) GenStep {
	if s.onParse != nil {
		s.onParse(resp)
	}
	return nil
}

func TestSchedulerRobotsDisallowIgnoresRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /blocked\n"))
	})
	mux.HandleFunc("/blocked", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	settings := DefaultSettings()
	settings.RobotsTxtObey = true
	settings.UserAgent = "testbot"

	session := pycurl.NewSession()
	sched := NewScheduler(settings, session)

	sp := &linkSpider{BaseSpider{SpiderName: "blocked", Seeds: []string{srv.URL + "/blocked"}}}
	sched.RegisterSpider(sp)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stats, err := sched.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.ResponseCount)
}

