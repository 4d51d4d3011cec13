package sink

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/coffersTech/nanocat/internal/clock"
	"github.com/coffersTech/nanocat/internal/metrics"
	"github.com/coffersTech/nanocat/internal/model"
	"github.com/coffersTech/nanocat/internal/pipeline"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func startLive(t *testing.T, opts LiveOptions) (*Live, *httptest.Server) {
	t.Helper()
	opts.Logger = quiet
	l := NewLive("session-1", opts)
	srv := httptest.NewServer(l.Handler())
	t.Cleanup(func() {
		l.Close()
		srv.Close()
	})
	return l, srv
}

func dial(t *testing.T, srv *httptest.Server, query string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestLiveBroadcast(t *testing.T) {
	l, srv := startLive(t, LiveOptions{})
	a := dial(t, srv, "", nil)
	b := dial(t, srv, "", nil)
	require.Eventually(t, func() bool { return l.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)

	e := pipeline.Entry{Record: model.Record{Level: model.LevelError, Tag: "vold", Message: "boom"}, Highlighted: true}
	require.NoError(t, l.Write(e))

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg liveMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "session-1", msg.Session)
		assert.Equal(t, "error", msg.Level)
		assert.Equal(t, "vold", msg.Tag)
		assert.Equal(t, "boom", msg.Message)
		assert.True(t, msg.Highlighted)
	}
}

func TestLiveClientDisconnect(t *testing.T) {
	l, srv := startLive(t, LiveOptions{})
	conn := dial(t, srv, "", nil)
	require.Eventually(t, func() bool { return l.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return l.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, l.Write(pipeline.Entry{}))
}

func TestLiveAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	_, srv := startLive(t, LiveOptions{TokenHash: string(hash)})

	get := func(path, bearer string) int {
		req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		require.NoError(t, err)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusUnauthorized, get("/api/stats", ""))
	assert.Equal(t, http.StatusUnauthorized, get("/api/stats", "wrong"))
	assert.Equal(t, http.StatusOK, get("/api/stats", "s3cret"))
	assert.Equal(t, http.StatusOK, get("/api/stats?token=s3cret", ""))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	dial(t, srv, "?token=s3cret", nil)
	dial(t, srv, "", http.Header{"Authorization": {"Bearer s3cret"}})
}

func TestLiveStatsAndMetrics(t *testing.T) {
	m, err := metrics.New()
	require.NoError(t, err)
	m.Ingested(4)
	stats := NewStats(nil, clock.Fake(time.Unix(0, 0)), time.Second)
	defer stats.Close()
	require.NoError(t, stats.Write(pipeline.Entry{Record: model.Record{Level: model.LevelInfo, Tag: "t"}}))

	l, srv := startLive(t, LiveOptions{Metrics: m, Stats: stats})
	require.NoError(t, l.Write(pipeline.Entry{}))

	resp, err := http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got liveStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "session-1", got.Session)
	assert.Equal(t, uint64(1), got.Broadcast)
	require.NotNil(t, got.Records)
	assert.Equal(t, int64(1), got.Records.Total)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `nanocat_pipeline_records_total{outcome="ingested"} 4`)
}

func TestLiveStart(t *testing.T) {
	l := NewLive("s", LiveOptions{Addr: "127.0.0.1:0", Logger: quiet})
	require.NoError(t, l.Start())
	defer l.Close()

	resp, err := http.Get("http://" + l.Addr() + "/api/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, pipeline.DropOldest, l.Policy())
}

func TestLivePostStatsRejected(t *testing.T) {
	_, srv := startLive(t, LiveOptions{})
	resp, err := http.Post(srv.URL+"/api/stats", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
