package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyPercentiles(t *testing.T) {
	l := NewLatency()
	for i := 1; i <= 100; i++ {
		l.Record("posts_feed", time.Duration(i)*time.Millisecond, i%10 == 0)
	}
	l.Record("new_post", 5*time.Millisecond, false)

	overall := l.Overall()
	assert.Equal(t, int64(101), overall.Count)
	assert.Equal(t, 10, overall.Failures)
	assert.InDelta(t, float64(50*time.Millisecond), float64(overall.P50), float64(time.Millisecond))
	assert.InDelta(t, float64(100*time.Millisecond), float64(overall.Max), float64(time.Millisecond))

	groups := l.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "new_post", groups[0].Group)
	assert.Equal(t, int64(1), groups[0].Count)
	assert.Equal(t, "posts_feed", groups[1].Group)
	assert.Equal(t, 10, groups[1].Failures)
}

func TestLatencyClampsAndResets(t *testing.T) {
	l := NewLatency()
	l.Record("g", 0, false)
	l.Record("g", 2*time.Minute, false)

	s := l.Overall()
	assert.Equal(t, int64(2), s.Count)
	assert.LessOrEqual(t, s.Max, 61*time.Second)

	l.Reset()
	assert.Zero(t, l.Overall().Count)
	assert.Empty(t, l.Groups())
}
