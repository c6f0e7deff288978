package spider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glamas/pycurl-session/pycurl"
)

type stubSpider struct{ BaseSpider }

func TestStatisticsDedupsRepeatedRequest(t *testing.T) {
	stats := NewStatistics()
	sp := &stubSpider{BaseSpider{SpiderName: "stub"}}

	req, err := NewRequest("https://example.test/a", nil)
	require.NoError(t, err)

	ctl1, err := stats.ProcessRequest(context.Background(), req, sp)
	require.NoError(t, err)
	assert.Equal(t, ControlContinue, ctl1.Kind)

	dup, err := NewRequest("https://example.test/a", nil)
	require.NoError(t, err)
	ctl2, err := stats.ProcessRequest(context.Background(), dup, sp)
	require.NoError(t, err)
	assert.Equal(t, ControlIgnore, ctl2.Kind)
}

func TestStatisticsDontFilterBypassesDedup(t *testing.T) {
	stats := NewStatistics()
	sp := &stubSpider{BaseSpider{SpiderName: "stub"}}

	req1, _ := NewRequest("https://example.test/a", nil)
	req1.DontFilter = true
	req2, _ := NewRequest("https://example.test/a", nil)
	req2.DontFilter = true

	ctl1, err := stats.ProcessRequest(context.Background(), req1, sp)
	require.NoError(t, err)
	ctl2, err := stats.ProcessRequest(context.Background(), req2, sp)
	require.NoError(t, err)

	assert.Equal(t, ControlContinue, ctl1.Kind)
	assert.Equal(t, ControlContinue, ctl2.Kind)
}

func TestStatisticsDumpCounters(t *testing.T) {
	stats := NewStatistics()
	sp := &stubSpider{BaseSpider{SpiderName: "stub"}}

	req, _ := NewRequest("https://example.test/a", nil)
	_, _ = stats.ProcessRequest(context.Background(), req, sp)

	resp := &Response{Response: &pycurl.Response{StatusCode: 200}}
	_, err := stats.ProcessResponse(context.Background(), req, resp, sp)
	require.NoError(t, err)

	dump := stats.Dump()
	assert.Equal(t, int64(1), dump.RequestCount)
	assert.Equal(t, int64(1), dump.ResponseCount)
}
