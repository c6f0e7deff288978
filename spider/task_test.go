package spider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seedSpider struct {
	BaseSpider
}

func TestBaseTaskSeedsFromStartURLs(t *testing.T) {
	sp := &seedSpider{BaseSpider{SpiderName: "seeds", Seeds: []string{"https://a.test/", "https://b.test/"}}}
	task := NewBaseTask(sp)

	var got []string
	for {
		item, err := task.Get(context.Background())
		require.NoError(t, err)
		if item == nil {
			break
		}
		got = append(got, item.Request.URL.String())
	}
	assert.Equal(t, []string{"https://a.test/", "https://b.test/"}, got)
}

type generatorSpider struct {
	BaseSpider
	calls int
}

func (g *generatorSpider) StartRequests() GenStep {
	urls := []string{"https://a.test/", "https://b.test/"}
	i := 0
	return func() (YieldKind, *Request, any, bool) {
		if i >= len(urls) {
			return YieldNone, nil, nil, false
		}
		req, _ := NewRequest(urls[i], nil)
		i++
		return YieldRequest, req, nil, i < len(urls)
	}
}

func TestBaseTaskSeedsFromStartRequestsGenerator(t *testing.T) {
	sp := &generatorSpider{BaseSpider: BaseSpider{SpiderName: "gen"}}
	task := NewBaseTask(sp)

	item, err := task.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.NotNil(t, item.Gen)

	kind, req, _, alive := item.Gen()
	assert.Equal(t, YieldRequest, kind)
	assert.Equal(t, "https://a.test/", req.URL.String())
	assert.True(t, alive)
}

func TestBaseTaskPutRequeues(t *testing.T) {
	sp := &seedSpider{BaseSpider{SpiderName: "seeds"}}
	task := NewBaseTask(sp)

	require.NoError(t, task.Put(context.Background(), "https://requeued.test/"))

	item, err := task.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "https://requeued.test/", item.Request.OriginURL)
}
