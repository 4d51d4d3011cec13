package sink

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/nanocat/internal/clock"
	"github.com/coffersTech/nanocat/internal/model"
	"github.com/coffersTech/nanocat/internal/pipeline"
)

func entry(level model.Level, tag string) pipeline.Entry {
	return pipeline.Entry{Record: model.Record{Level: level, Tag: tag}}
}

func TestStatsCounts(t *testing.T) {
	s := NewStats(nil, clock.Fake(time.Unix(0, 0)), time.Second)
	defer s.Close()

	for _, e := range []pipeline.Entry{
		entry(model.LevelInfo, "a"),
		entry(model.LevelInfo, "b"),
		entry(model.LevelError, "a"),
		entry(model.LevelUnknown, ""),
	} {
		require.NoError(t, s.Write(e))
	}
	hl := entry(model.LevelWarn, "c")
	hl.Highlighted = true
	require.NoError(t, s.Write(hl))

	snap := s.Snapshot()
	assert.Equal(t, int64(5), snap.Total)
	assert.Equal(t, int64(1), snap.Highlighted)
	assert.Equal(t, map[string]int64{"info": 2, "error": 1, "warn": 1, "unknown": 1}, snap.LevelDist)
	assert.Equal(t, []TagCount{{"a", 2}, {"b", 1}, {"c", 1}}, snap.TopTags)
}

func TestStatsRate(t *testing.T) {
	fake := clock.Fake(time.Unix(0, 0))
	s := NewStats(nil, fake, time.Second)
	defer s.Close()

	for range 20 {
		require.NoError(t, s.Write(entry(model.LevelInfo, "t")))
	}
	fake.Advance(time.Second)
	assert.Eventually(t, func() bool { return s.Snapshot().IngestionRate == 20 }, 2*time.Second, 5*time.Millisecond)
}

func TestStatsTopTagsLimit(t *testing.T) {
	s := NewStats(nil, clock.Fake(time.Unix(0, 0)), time.Second)
	defer s.Close()
	for i := range DefaultTopTags + 5 {
		require.NoError(t, s.Write(entry(model.LevelInfo, string(rune('a'+i)))))
	}
	assert.Len(t, s.Snapshot().TopTags, DefaultTopTags)
}

func TestStatsSummary(t *testing.T) {
	var buf bytes.Buffer
	s := NewStats(&buf, clock.Fake(time.Unix(0, 0)), time.Second)
	require.NoError(t, s.Write(entry(model.LevelError, "AndroidRuntime")))
	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	out := buf.String()
	assert.Contains(t, out, "records: 1, highlighted: 0")
	assert.Contains(t, out, "AndroidRuntime")
	assert.Contains(t, out, "error")
}
