package spider

import (
	"context"
	"sync"
)

// TaskItem is one unit of work handed back by Task.Get: either a Request or
// a GenStep (the spider's StartRequests generator, which the Scheduler
// advances one step at a time).
type TaskItem struct {
	SpiderID string
	Request  *Request
	Gen      GenStep
}

// Task is the abstract Work Source per spider (component G). BaseTask
// drains an in-memory deque seeded from Spider.StartURLs()/StartRequests();
// spider/queue.RedisTask additionally pops from a server-side list/set.
// Ported from original_source/pycurl_session/spider/task.py.
type Task interface {
	Get(ctx context.Context) (*TaskItem, error)
	Put(ctx context.Context, originURL string) error
}

// BaseTask is the in-memory Work Source: a mutex-guarded slice deque seeded
// once from the spider's start URLs/generator.
type BaseTask struct {
	spiderID string
	mu       sync.Mutex
	pending  []*TaskItem
	seeded   bool
	seedFn   func() []*TaskItem
}

// NewBaseTask constructs a BaseTask for sp, seeding from StartRequests (if
// implemented) or StartURLs otherwise.
func NewBaseTask(sp Spider) *BaseTask {
	t := &BaseTask{spiderID: sp.Name()}
	t.seedFn = func() []*TaskItem {
		var items []*TaskItem
		if starter, ok := sp.(RequestStarter); ok {
			if gen := starter.StartRequests(); gen != nil {
				items = append(items, &TaskItem{SpiderID: sp.Name(), Gen: gen})
				return items
			}
		}
		for _, rawURL := range sp.StartURLs() {
			req, err := NewRequest(rawURL, nil)
			if err != nil {
				continue
			}
			items = append(items, &TaskItem{SpiderID: sp.Name(), Request: req})
		}
		return items
	}
	return t
}

// Get returns the next TaskItem, or nil when exhausted.
func (t *BaseTask) Get(ctx context.Context) (*TaskItem, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.seeded {
		t.pending = append(t.pending, t.seedFn()...)
		t.seeded = true
	}
	if len(t.pending) == 0 {
		return nil, nil
	}
	item := t.pending[0]
	t.pending = t.pending[1:]
	return item, nil
}

// Put re-adds a previously fetched origin URL; BaseTask has no external
// backing store, so this is a push back onto the local deque (best-effort
// in-process recovery, not cross-process durability — see spider/queue for
// the external-queue variant that does survive process restarts).
func (t *BaseTask) Put(ctx context.Context, originURL string) error {
	req, err := NewRequest(originURL, nil)
	if err != nil {
		return err
	}
	req.OriginURL = originURL
	t.mu.Lock()
	t.pending = append(t.pending, &TaskItem{SpiderID: t.spiderID, Request: req})
	t.mu.Unlock()
	return nil
}
