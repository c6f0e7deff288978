package spider

import (
	"context"
	"net/url"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/glamas/pycurl-session/pycurl"
	"github.com/glamas/pycurl-session/pycurl/cookiejar"
	"github.com/glamas/pycurl-session/spider/robotstxt"
)

// pendingItem is one entry on the Scheduler's pending deque: either a
// concrete Request to dispatch or a GenStep to advance once more.
type pendingItem struct {
	seq      int64
	spiderID string
	request  *Request
	gen      GenStep
}

// Scheduler owns the pending queue, generator expansion, callback
// invocation, spider lifecycle, statistics, and graceful shutdown
// (component I). Ported from original_source/pycurl_session/spider/
// schedule.py's Schedule class.
type Scheduler struct {
	Settings *Settings
	Session  *pycurl.Session
	Fetcher  *Fetcher
	Store    cookiejar.Store
	Logger   zerolog.Logger

	requestMW   []RequestMiddleware
	responseMW  []ResponseMiddleware
	exceptionMW []ExceptionMiddleware
	pipelines   []Pipeline

	spiders map[string]Spider
	tasks   map[string]Task
	stats   *Statistics

	pendingMu sync.Mutex
	pending   []*pendingItem
	seqGen    int64

	wg sync.WaitGroup

	closeMu      sync.Mutex
	closeReasons map[string]string
}

// NewScheduler constructs a Scheduler. Statistics and (if
// Settings.RobotsTxtObey) RobotsTxt middleware are registered
// automatically, matching the source's always-on built-ins.
func NewScheduler(settings *Settings, session *pycurl.Session) *Scheduler {
	s := &Scheduler{
		Settings:     settings,
		Session:      session,
		Fetcher:      NewFetcher(session, settings),
		Store:        cookiejar.NewMemStore(),
		Logger:       zerolog.Nop(),
		spiders:      make(map[string]Spider),
		tasks:        make(map[string]Task),
		stats:        NewStatistics(),
		closeReasons: make(map[string]string),
	}
	s.responseMW = append(s.responseMW, s.stats)
	s.requestMW = append(s.requestMW, s.stats)
	s.exceptionMW = append(s.exceptionMW, s.stats)

	if settings.RobotsTxtObey {
		robots := NewRobotsMiddleware(settings)
		robots.SetFetchFunc(s.fetchRobots)
		s.requestMW = append([]RequestMiddleware{robots}, s.requestMW...)
	}
	return s
}

func (s *Scheduler) fetchRobots(ctx context.Context, robotsURL string) (*robotstxt.Parser, int, error) {
	resp, err := s.Session.Get(ctx, robotsURL, pycurl.WithMeta(map[string]any{MetaRobotsTxt: true}))
	if err != nil {
		return nil, 0, err
	}
	parser := robotstxt.New()
	if resp.StatusCode == 200 {
		parser.Parse(resp.Text)
	}
	return parser, resp.StatusCode, nil
}

// Use registers ordered middleware; the concrete value is type-asserted for
// whichever RequestMiddleware/ResponseMiddleware/ExceptionMiddleware facets
// it implements (the registry-of-objects realization of the source's
// reflective middleware loading).
func (s *Scheduler) Use(mw Middleware) {
	if m, ok := mw.(RequestMiddleware); ok {
		s.requestMW = append(s.requestMW, m)
	}
	if m, ok := mw.(ResponseMiddleware); ok {
		s.responseMW = append(s.responseMW, m)
	}
	if m, ok := mw.(ExceptionMiddleware); ok {
		s.exceptionMW = append(s.exceptionMW, m)
	}
}

// AddPipeline registers an item pipeline in processing order.
func (s *Scheduler) AddPipeline(p Pipeline) {
	s.pipelines = append(s.pipelines, p)
}

// Stats returns the Statistics middleware for end-of-run inspection.
func (s *Scheduler) Stats() *Statistics { return s.stats }

// RegisterSpider wires sp into the scheduler with an in-memory BaseTask.
func (s *Scheduler) RegisterSpider(sp Spider) {
	s.spiders[sp.Name()] = sp
	s.tasks[sp.Name()] = NewBaseTask(sp)
}

// RegisterSpiderWithTask wires sp with an explicit Task (e.g. a
// queue.RedisTask-backed external Work Source).
func (s *Scheduler) RegisterSpiderWithTask(sp Spider, task Task) {
	s.spiders[sp.Name()] = sp
	s.tasks[sp.Name()] = task
}

func (s *Scheduler) pushFront(item *pendingItem) {
	s.pendingMu.Lock()
	s.pending = append([]*pendingItem{item}, s.pending...)
	s.pendingMu.Unlock()
}

func (s *Scheduler) pushBack(item *pendingItem) {
	s.pendingMu.Lock()
	s.pending = append(s.pending, item)
	s.pendingMu.Unlock()
}

// enqueue pushes item to the front (DFO) or back (BFO) per
// Settings.DepthPriority, tagging it with a monotonic sequence number.
// popPending always takes the front of the slice and does not consult seq.
func (s *Scheduler) enqueue(item *pendingItem) {
	item.seq = atomic.AddInt64(&s.seqGen, 1)
	s.wg.Add(1)
	if s.Settings.DepthPriority == 1 {
		s.pushFront(item)
	} else {
		s.pushBack(item)
	}
}

func (s *Scheduler) popPending() *pendingItem {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	item := s.pending[0]
	s.pending = s.pending[1:]
	return item
}

// Run seeds every registered spider's Task, drives CONCURRENT_REQUESTS
// worker goroutines over the pending deque until exhaustion, then closes
// pipelines/spiders and dumps statistics.
func (s *Scheduler) Run(ctx context.Context) (Stats, error) {
	if err := s.seedAll(ctx); err != nil {
		return Stats{}, err
	}

	for _, sp := range s.spiders {
		if init, ok := sp.(SpiderInitializer); ok {
			if err := init.InitSpider(ctx); err != nil {
				return Stats{}, err
			}
		}
		for _, p := range s.pipelines {
			if opener, ok := p.(PipelineOpener); ok {
				if err := opener.OpenSpider(sp); err != nil {
					return Stats{}, err
				}
			}
		}
	}

	concurrency := s.Settings.ConcurrentRequests
	if concurrency <= 0 {
		concurrency = 16
	}

	var workers sync.WaitGroup
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i := 0; i < concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			s.worker(workerCtx)
		}()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-done:
			break loop
		case <-ctx.Done():
			s.drainOnInterrupt(ctx)
			break loop
		case <-ticker.C:
			s.stats.Dump()
		}
	}

	cancel()
	workers.Wait()

	reason := "finished"
	for _, sp := range s.spiders {
		if closer, ok := sp.(SpiderCloser); ok {
			closer.Closed(reason)
		}
	}
	for _, p := range s.pipelines {
		if closer, ok := p.(PipelineCloser); ok {
			for _, sp := range s.spiders {
				if err := closer.CloseSpider(sp, reason); err != nil {
					s.Logger.Warn().Err(err).Msg("pipeline close failed")
				}
			}
		}
	}

	return s.stats.Dump(), nil
}

func (s *Scheduler) seedAll(ctx context.Context) error {
	for name, task := range s.tasks {
		for {
			item, err := task.Get(ctx)
			if err != nil {
				return err
			}
			if item == nil {
				break
			}
			s.enqueue(&pendingItem{spiderID: name, request: item.Request, gen: item.Gen})
		}
	}
	return nil
}

// drainOnInterrupt implements the first-interrupt shutdown: stop admitting
// new work and return unfetched items carrying OriginURL to their external
// queue. In-flight requests are not waited for: they run on contexts derived
// from ctx, which is already cancelled, so they end with a context error.
func (s *Scheduler) drainOnInterrupt(ctx context.Context) {
	s.pendingMu.Lock()
	remaining := s.pending
	s.pending = nil
	s.pendingMu.Unlock()

	// ctx is already cancelled by the time this runs; requeue puts use a
	// fresh background context so the external Work Source still receives
	// them (SPEC_FULL.md §5's first-interrupt drain contract).
	requeueCtx := context.Background()
	for _, item := range remaining {
		if item.request != nil && item.request.OriginURL != "" {
			if task, ok := s.tasks[item.spiderID]; ok {
				if err := task.Put(requeueCtx, item.request.OriginURL); err != nil {
					s.Logger.Warn().Err(err).Str("url", item.request.OriginURL).Msg("requeue on interrupt failed")
				}
			}
		}
		s.wg.Done()
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item := s.popPending()
		if item == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
			continue
		}

		sp := s.spiders[item.spiderID]
		if sp == nil {
			s.wg.Done()
			continue
		}

		func() {
			// a panic in user code abandons only this lineage; processRequest
			// has already released its wg slot by the time this runs.
			defer func() {
				if r := recover(); r != nil {
					s.Logger.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("callback panicked")
					if item.gen != nil {
						s.wg.Done()
					}
				}
			}()
			if item.gen != nil {
				s.stepGenerator(ctx, item, sp)
				return
			}
			if item.request != nil {
				s.processRequest(ctx, item, sp)
				return
			}
			s.wg.Done()
		}()
	}
}

func (s *Scheduler) stepGenerator(ctx context.Context, item *pendingItem, sp Spider) {
	kind, req, value, alive := item.gen()
	switch kind {
	case YieldRequest:
		if req != nil {
			s.enqueue(&pendingItem{spiderID: item.spiderID, request: req})
		}
	case YieldItem:
		s.processItem(value, sp)
	}
	if alive {
		s.pushBack(&pendingItem{seq: item.seq, spiderID: item.spiderID, gen: item.gen})
	} else {
		s.wg.Done()
	}
}

func (s *Scheduler) processItem(item any, sp Spider) {
	cur := item
	for _, p := range s.pipelines {
		next, err := p.ProcessItem(cur, sp)
		if err != nil {
			s.Logger.Info().Err(err).Msg("item dropped")
			return
		}
		cur = next
	}
}

func (s *Scheduler) fetchContextFor(spiderID string) *FetchContext {
	return &FetchContext{
		enqueue: func(r *Request) { s.enqueue(&pendingItem{spiderID: spiderID, request: r}) },
		close:   func(reason string) { s.closeMu.Lock(); s.closeReasons[spiderID] = reason; s.closeMu.Unlock() },
	}
}

func (s *Scheduler) isClosed(spiderID string) bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	_, ok := s.closeReasons[spiderID]
	return ok
}

// processRequest runs one Request through the forward middleware chain,
// the Preparer, Fetcher, Redirect/Retry Engine, reverse middleware chain,
// and finally the callback — the Go translation of collect_curl_multi's
// per-item dispatch plus process_response/process_curl_multi_ok.
func (s *Scheduler) processRequest(ctx context.Context, item *pendingItem, sp Spider) {
	defer s.wg.Done()

	if s.isClosed(item.spiderID) {
		return
	}

	req := item.request
	for _, mw := range s.requestMW {
		ctl, err := mw.ProcessRequest(ctx, req, sp)
		if err != nil {
			s.Logger.Warn().Err(err).Msg("request middleware error")
			return
		}
		switch ctl.Kind {
		case ControlIgnore:
			return
		case ControlReplaceRequest:
			s.enqueue(&pendingItem{spiderID: item.spiderID, request: ctl.Request})
			return
		case ControlReplaceResponse:
			s.handleResponse(ctx, item.spiderID, sp, req, ctl.Response)
			return
		case ControlClose:
			s.closeMu.Lock()
			s.closeReasons[item.spiderID] = ctl.Reason
			s.closeMu.Unlock()
			return
		}
	}

	h, err := s.buildHandle(ctx, req)
	if err != nil {
		s.Logger.Warn().Err(err).Str("url", req.URL.String()).Msg("prepare handle failed")
		return
	}

	for {
		resp, err := s.Fetcher.Dispatch(ctx, h)
		if err != nil {
			if s.handleException(ctx, item.spiderID, sp, req, h, err) {
				h.ResetForRedispatch()
				select {
				case <-ctx.Done():
				case <-time.After(pycurl.Backoff(h.Retry, s.Session.Backoff)):
				}
				continue
			}
			return
		}

		if err := s.saveCookies(ctx, h, resp); err != nil {
			s.Logger.Warn().Err(err).Msg("cookie save failed")
		}

		decision, derr := pycurl.PlanRedirect(h, resp)
		if derr != nil {
			s.Logger.Warn().Err(derr).Msg("redirect limit exceeded")
			return
		}
		if decision.Followed {
			if err := s.Session.ApplyRedirect(ctx, h, decision); err != nil {
				s.Logger.Warn().Err(err).Str("url", req.URL.String()).Msg("redirect apply failed")
				return
			}
			continue
		}

		if pycurl.ShouldRetryStatus(resp.StatusCode, s.Session.RetryHTTPCodes) && pycurl.PlanRetry(h) {
			h.ResetForRedispatch()
			select {
			case <-ctx.Done():
			case <-time.After(pycurl.Backoff(h.Retry, s.Session.Backoff)):
			}
			continue
		}

		s.handleResponse(ctx, item.spiderID, sp, req, wrapResponse(resp, req))
		s.Fetcher.ReleaseHandle(h)
		return
	}
}

func (s *Scheduler) handleException(ctx context.Context, spiderID string, sp Spider, req *Request, h *pycurl.Handle, fetchErr error) bool {
	errno, retryable := pycurl.ClassifyTransportError(fetchErr)
	perr := &pycurl.PerformError{Errno: errno, Msg: fetchErr.Error()}

	for _, mw := range s.exceptionMW {
		ctl, err := mw.ProcessException(ctx, req, perr, sp)
		if err != nil {
			continue
		}
		switch ctl.Kind {
		case ControlRetry:
			return pycurl.PlanRetry(h)
		case ControlReplaceRequest:
			s.enqueue(&pendingItem{spiderID: spiderID, request: ctl.Request})
			return false
		case ControlReplaceResponse:
			s.handleResponse(ctx, spiderID, sp, req, ctl.Response)
			return false
		}
	}

	if retryable {
		return pycurl.PlanRetry(h)
	}
	s.Logger.Warn().Err(fetchErr).Str("url", req.URL.String()).Msg("transport error")
	return false
}

func (s *Scheduler) handleResponse(ctx context.Context, spiderID string, sp Spider, req *Request, resp *Response) {
	for i := len(s.responseMW) - 1; i >= 0; i-- {
		ctl, err := s.responseMW[i].ProcessResponse(ctx, req, resp, sp)
		if err != nil {
			s.Logger.Warn().Err(err).Msg("response middleware error")
			return
		}
		switch ctl.Kind {
		case ControlIgnore:
			return
		case ControlReplaceRequest:
			s.enqueue(&pendingItem{spiderID: spiderID, request: ctl.Request})
			return
		case ControlReplaceResponse:
			resp = ctl.Response
		}
	}

	cb := req.Callback
	if cb == nil {
		cb = sp.Parse
	}
	gen := cb(s.fetchContextFor(spiderID), resp)
	if gen == nil {
		return
	}
	s.enqueue(&pendingItem{spiderID: spiderID, gen: s.taggedGen(spiderID, req, resp, gen)})
}

// taggedGen wraps gen so every Request it yields inherits Referer and (per
// URL persistence) OriginURL from the response that produced it.
func (s *Scheduler) taggedGen(spiderID string, req *Request, resp *Response, gen GenStep) GenStep {
	return func() (YieldKind, *Request, any, bool) {
		kind, yielded, item, alive := gen()
		if kind == YieldRequest && yielded != nil {
			if yielded.Referer == "" {
				yielded.Referer = resp.URL.String()
			}
			if persist, _ := req.Meta[MetaURLPersist].(bool); persist && req.OriginURL != "" {
				if dontPersist, ok := yielded.Meta[MetaURLPersist].(bool); !ok || dontPersist {
					yielded.OriginURL = req.OriginURL
				}
			}
		}
		return kind, yielded, item, alive
	}
}

func wrapResponse(resp *pycurl.Response, req *Request) *Response {
	return &Response{Response: resp, Meta: req.Meta, OriginURL: req.OriginURL}
}

func (s *Scheduler) saveCookies(ctx context.Context, h *pycurl.Handle, resp *pycurl.Response) error {
	if len(resp.Cookies) == 0 {
		return nil
	}
	return s.Store.Save(ctx, resp.Cookies)
}

// buildHandle translates a spider.Request into a pycurl.Handle via
// Session.PrepareHandle, the bridge between the spider-level Request type
// and the Request Preparer.
func (s *Scheduler) buildHandle(ctx context.Context, req *Request) (*pycurl.Handle, error) {
	opts := []pycurl.Option{
		pycurl.WithCookies(req.Cookies),
		pycurl.WithMeta(req.Meta),
	}
	if len(req.Header) > 0 {
		hdr := map[string][]string{}
		for k, v := range req.Header {
			hdr[k] = v
		}
		opts = append(opts, pycurl.WithHeaders(hdr))
	}
	switch b := req.Body.(type) {
	case RawBody:
		opts = append(opts, pycurl.WithRawBody(b.Data))
	case FormBody:
		opts = append(opts, pycurl.WithData(b.Values))
	case JSONBody:
		opts = append(opts, pycurl.WithJSON(b.Value))
	case MultipartBody:
		files := map[string]string{}
		data := url.Values{}
		for _, part := range b.Parts {
			if part.FilePath != "" {
				files[part.Name] = part.FilePath
			} else {
				data.Set(part.Name, part.Value)
			}
		}
		opts = append(opts, pycurl.WithFiles(files), pycurl.WithData(data))
	}

	if proxy, ok := req.Meta[MetaProxy].(string); ok && proxy != "" {
		opts = append(opts, pycurl.WithProxy(proxy))
	}
	if sessionID, ok := req.Meta[MetaCookieJar].(string); ok && sessionID != "" {
		opts = append(opts, pycurl.WithSessionID(sessionID))
	}
	if httpVersion, ok := req.Meta[MetaHTTPVersion].(string); ok && httpVersion != "" {
		opts = append(opts, pycurl.WithHTTPVersion(httpVersion))
	}

	return s.Session.PrepareHandle(ctx, req.Method, req.URL.String(), pycurlOptionsFrom(opts, s.Settings.RedirectEnabled))
}

func pycurlOptionsFrom(opts []pycurl.Option, redirectEnabled bool) *pycurl.Options {
	o := &pycurl.Options{AllowRedirects: redirectEnabled, QuoteSafe: "/"}
	for _, fn := range opts {
		fn(o)
	}
	return o
}
