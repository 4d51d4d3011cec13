package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/nanocat/internal/source"
)

func TestCounters(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.Ingested(3)
	m.Kept(true)
	m.Kept(false)
	m.Filtered()
	m.BytesRead(42)
	m.Delivered("terminal")
	m.Delivered("terminal")
	m.Dropped("live")
	m.Stalled("file")
	m.QueueDepth("file", 7)
	m.Observe(source.Transition{Identity: "tcp://x", To: source.StateConnected})

	body := scrape(t, m)
	for _, want := range []string{
		`nanocat_pipeline_records_total{outcome="ingested"} 3`,
		`nanocat_pipeline_records_total{outcome="kept"} 2`,
		`nanocat_pipeline_records_total{outcome="highlighted"} 1`,
		`nanocat_pipeline_records_total{outcome="filtered"} 1`,
		`nanocat_source_bytes_read_total 42`,
		`nanocat_sink_delivered_total{sink="terminal"} 2`,
		`nanocat_sink_dropped_total{sink="live"} 1`,
		`nanocat_sink_queue_stalls_total{sink="file"} 1`,
		`nanocat_sink_queue_depth{sink="file"} 7`,
		`nanocat_source_transitions_total{source="tcp://x",state="connected"} 1`,
	} {
		assert.Contains(t, body, want)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Ingested(1)
		m.Kept(true)
		m.Filtered()
		m.BytesRead(1)
		m.Delivered("x")
		m.Dropped("x")
		m.Stalled("x")
		m.QueueDepth("x", 1)
		m.Observe(source.Transition{})
	})
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	m.Ingested(5)

	assert.Contains(t, scrape(t, m), `nanocat_pipeline_records_total{outcome="ingested"} 5`)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}
