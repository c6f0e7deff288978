package spider

import (
	"context"

	"github.com/glamas/pycurl-session/spider/queue"
)

// RedisTaskAdapter wraps a *queue.RedisTask so it satisfies Task, building
// Requests from popped seed URLs and tagging OriginURL for the URL-
// persistence propagation rule (§4.G).
type RedisTaskAdapter struct {
	q *queue.RedisTask
}

// NewRedisTaskAdapter constructs a Task backed by q.
func NewRedisTaskAdapter(q *queue.RedisTask) *RedisTaskAdapter {
	return &RedisTaskAdapter{q: q}
}

// Get implements Task.
func (a *RedisTaskAdapter) Get(ctx context.Context) (*TaskItem, error) {
	rawURL, ok, err := a.q.Pop(ctx)
	if err != nil || !ok {
		return nil, err
	}
	req, err := NewRequest(rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.OriginURL = rawURL
	return &TaskItem{SpiderID: a.q.SpiderID(), Request: req}, nil
}

// Put implements Task.
func (a *RedisTaskAdapter) Put(ctx context.Context, originURL string) error {
	return a.q.Put(ctx, originURL)
}
