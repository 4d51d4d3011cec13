package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/coffersTech/nanocat/internal/clock"
	"github.com/coffersTech/nanocat/internal/pipeline"
)

const (
	DefaultForwardBatch    = 100
	DefaultForwardInterval = time.Second
	forwardQueueSize       = 10000
)

// ForwardOptions configures a Forward sink.
type ForwardOptions struct {
	URL        string
	APIKey     string
	Service    string
	Host       string
	InstanceID string
	BatchSize  int
	Interval   time.Duration
	Client     *http.Client
	Clock      clock.Clock
	Logger     *slog.Logger
	// Version is reported in the registry handshake.
	Version string
}

// forwardRow is the ingest payload the collector expects for one log.
type forwardRow struct {
	Timestamp  int64          `json:"timestamp"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Logger     string         `json:"logger,omitempty"`
	Thread     string         `json:"thread,omitempty"`
	Service    string         `json:"service"`
	Host       string         `json:"host"`
	InstanceID string         `json:"instance_id"`
	Attributes map[string]any `json:"attributes"`
}

type handshakeRequest struct {
	InstanceID  string `json:"instance_id"`
	ServiceName string `json:"service_name"`
	HostName    string `json:"host_name"`
	Platform    string `json:"platform"`
	Version     string `json:"version"`
}

// Forward ships entries to a log collector in JSON array batches of
// BatchSize, or whatever accumulated within Interval. Delivery failures
// are logged and counted; they do not stop the session.
type Forward struct {
	opts     ForwardOptions
	logger   *slog.Logger
	queue    chan []byte
	flushReq chan chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewForward starts the batching loop and registers the instance with
// the collector in the background.
func NewForward(opts ForwardOptions) *Forward {
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultForwardBatch
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultForwardInterval
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Second}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Host == "" {
		opts.Host, _ = os.Hostname()
	}
	if opts.InstanceID == "" {
		opts.InstanceID = InstanceID()
	}
	if opts.Service == "" {
		opts.Service = "nanocat"
	}
	f := &Forward{
		opts:     opts,
		logger:   opts.Logger.With("sink", "forward"),
		queue:    make(chan []byte, forwardQueueSize),
		flushReq: make(chan chan struct{}),
		done:     make(chan struct{}),
	}

	f.wg.Add(2)
	go func() {
		defer f.wg.Done()
		if err := f.handshake(); err != nil {
			f.logger.Warn("collector handshake failed", "error", err)
		}
	}()
	go f.runLoop()
	return f
}

// InstanceID returns the persistent id of this installation, creating
// it on first use. It falls back to an ephemeral id when the config
// directory is not writable.
func InstanceID() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return uuid.NewString()
	}
	dir = filepath.Join(dir, "nanocat")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return uuid.NewString()
	}
	idFile := filepath.Join(dir, "instance-id")
	if data, err := os.ReadFile(idFile); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	id := uuid.NewString()
	_ = os.WriteFile(idFile, []byte(id), 0o644)
	return id
}

func (f *Forward) Name() string { return "forward" }

func (f *Forward) Policy() pipeline.Policy { return pipeline.Block }

func (f *Forward) Write(e pipeline.Entry) error {
	r := e.Record
	row := forwardRow{
		Timestamp:  f.opts.Clock.Now().UnixNano(),
		Level:      strings.ToUpper(r.Level.String()),
		Message:    r.Message,
		Logger:     r.Tag,
		Thread:     r.Thread,
		Service:    f.opts.Service,
		Host:       f.opts.Host,
		InstanceID: f.opts.InstanceID,
		Attributes: map[string]any{
			"process":     r.Process,
			"device_time": r.Time,
			"highlighted": e.Highlighted,
		},
	}
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	select {
	case f.queue <- data:
		return nil
	case <-f.done:
		return fmt.Errorf("forward sink closed")
	}
}

// Flush sends everything queued so far and waits for the request.
func (f *Forward) Flush() error {
	req := make(chan struct{})
	select {
	case f.flushReq <- req:
		<-req
	case <-f.done:
	}
	return nil
}

// Close sends what is left and stops the loop.
func (f *Forward) Close() error {
	f.once.Do(func() { close(f.done) })
	f.wg.Wait()
	return nil
}

// Stats returns the number of rows delivered and rows lost to failed
// requests.
func (f *Forward) Stats() (sent, failed uint64) {
	return f.sent.Load(), f.failed.Load()
}

func (f *Forward) runLoop() {
	defer f.wg.Done()
	ticker := f.opts.Clock.NewTicker(f.opts.Interval)
	defer ticker.Stop()

	var batch [][]byte
	drain := func() {
		for {
			select {
			case data := <-f.queue:
				batch = append(batch, data)
			default:
				return
			}
		}
	}
	send := func() {
		if len(batch) == 0 {
			return
		}
		if err := f.post(batch); err != nil {
			f.failed.Add(uint64(len(batch)))
			f.logger.Warn("forward batch failed", "rows", len(batch), "error", err)
		} else {
			f.sent.Add(uint64(len(batch)))
		}
		batch = nil
	}

	for {
		select {
		case data := <-f.queue:
			batch = append(batch, data)
			if len(batch) >= f.opts.BatchSize {
				send()
			}
		case <-ticker.C:
			send()
		case req := <-f.flushReq:
			drain()
			for len(batch) > f.opts.BatchSize {
				rest := batch[f.opts.BatchSize:]
				batch = batch[:f.opts.BatchSize]
				send()
				batch = rest
			}
			send()
			close(req)
		case <-f.done:
			drain()
			send()
			return
		}
	}
}

// post encodes batch as a JSON array: [ {}, {}, {} ].
func (f *Forward) post(batch [][]byte) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, b := range batch {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(b)
	}
	buf.WriteByte(']')

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(f.opts.URL, "/")+"/api/ingest/batch", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.opts.APIKey)
	req.Header.Set("X-Instance-ID", f.opts.InstanceID)

	resp, err := f.opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

func (f *Forward) handshake() error {
	data, err := json.Marshal(handshakeRequest{
		InstanceID:  f.opts.InstanceID,
		ServiceName: f.opts.Service,
		HostName:    f.opts.Host,
		Platform:    fmt.Sprintf("go-%s", runtime.Version()),
		Version:     f.opts.Version,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(f.opts.URL, "/")+"/api/registry/handshake", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.opts.APIKey)

	resp, err := f.opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("handshake failed: %d %s", resp.StatusCode, string(body))
	}
	return nil
}
