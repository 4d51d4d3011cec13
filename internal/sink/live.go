package sink

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/coffersTech/nanocat/internal/metrics"
	"github.com/coffersTech/nanocat/internal/pipeline"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	defaultClientBuffer = 256
	defaultClientRate   = 2000
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// LiveOptions configures the live feed server.
type LiveOptions struct {
	Addr string
	// TokenHash is a bcrypt hash. When set, every request must carry the
	// matching token as a bearer header or a token query parameter.
	TokenHash string
	Metrics   *metrics.Metrics
	Stats     *Stats
	Logger    *slog.Logger
	// ClientBuffer is the per client send backlog. A client whose
	// backlog is full misses messages.
	ClientBuffer int
	// ClientRate limits messages per second to each client.
	ClientRate rate.Limit
}

// liveMessage is the websocket payload for one entry.
type liveMessage struct {
	Session     string `json:"session"`
	Time        string `json:"time,omitempty"`
	Level       string `json:"level"`
	Tag         string `json:"tag"`
	Process     string `json:"process"`
	Thread      string `json:"thread"`
	Message     string `json:"message"`
	Highlighted bool   `json:"highlighted"`
}

// Live serves entries to websocket clients on /ws, with /api/stats and
// /metrics alongside.
type Live struct {
	opts    LiveOptions
	session string
	logger  *slog.Logger
	srv     *http.Server
	ln      net.Listener

	mu      sync.RWMutex
	clients map[*liveClient]struct{}

	verifiedMu sync.RWMutex
	verified   map[string]struct{}

	broadcast atomic.Uint64
	missed    atomic.Uint64
}

type liveClient struct {
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
}

// NewLive builds the server without listening. session labels every
// message.
func NewLive(session string, opts LiveOptions) *Live {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ClientBuffer < 1 {
		opts.ClientBuffer = defaultClientBuffer
	}
	if opts.ClientRate <= 0 {
		opts.ClientRate = defaultClientRate
	}
	l := &Live{
		opts:     opts,
		session:  session,
		logger:   opts.Logger.With("sink", "live"),
		clients:  make(map[*liveClient]struct{}),
		verified: make(map[string]struct{}),
	}
	l.srv = &http.Server{Handler: l.Handler(), ReadHeaderTimeout: 10 * time.Second}
	return l
}

// Handler returns the HTTP routes.
func (l *Live) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", l.AuthMiddleware(http.HandlerFunc(l.handleWebSocket)))
	mux.Handle("/api/stats", l.AuthMiddleware(http.HandlerFunc(l.handleStats)))
	mux.Handle("/metrics", l.AuthMiddleware(l.opts.Metrics.Handler()))
	return mux
}

// Start listens on the configured address and serves in the background.
func (l *Live) Start() error {
	ln, err := net.Listen("tcp", l.opts.Addr)
	if err != nil {
		return err
	}
	l.ln = ln
	l.logger.Info("live feed listening", "addr", ln.Addr().String())
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("live feed server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (l *Live) Addr() string {
	if l.ln == nil {
		return ""
	}
	return l.ln.Addr().String()
}

// AuthMiddleware checks the token in the Authorization header or the
// token query parameter against the configured hash.
func (l *Live) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.opts.TokenHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		authHeader := r.Header.Get("Authorization")
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="nanocat"`)
			http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
			return
		}
		if !l.verify(token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="nanocat"`)
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// verify compares token with the hash, remembering tokens that passed
// since bcrypt is slow on purpose.
func (l *Live) verify(token string) bool {
	l.verifiedMu.RLock()
	_, ok := l.verified[token]
	l.verifiedMu.RUnlock()
	if ok {
		return true
	}
	if bcrypt.CompareHashAndPassword([]byte(l.opts.TokenHash), []byte(token)) != nil {
		return false
	}
	l.verifiedMu.Lock()
	l.verified[token] = struct{}{}
	l.verifiedMu.Unlock()
	return true
}

func (l *Live) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	c := &liveClient{
		conn:    conn,
		send:    make(chan []byte, l.opts.ClientBuffer),
		limiter: rate.NewLimiter(l.opts.ClientRate, int(l.opts.ClientRate)),
	}
	l.mu.Lock()
	l.clients[c] = struct{}{}
	n := len(l.clients)
	l.mu.Unlock()
	l.logger.Debug("websocket client connected", "clients", n)

	go l.writePump(c)
	go l.readPump(c)
}

// Clients returns the number of connected websocket clients.
func (l *Live) Clients() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.clients)
}

func (l *Live) unregister(c *liveClient) {
	l.mu.Lock()
	if _, ok := l.clients[c]; ok {
		delete(l.clients, c)
		close(c.send)
	}
	n := len(l.clients)
	l.mu.Unlock()
	l.logger.Debug("websocket client disconnected", "clients", n)
}

// readPump only handles control frames and notices disconnects.
func (l *Live) readPump(c *liveClient) {
	defer func() {
		l.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (l *Live) writePump(c *liveClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.limiter.Wait(context.Background()); err != nil {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type liveStats struct {
	Session   string         `json:"session"`
	Clients   int            `json:"clients"`
	Broadcast uint64         `json:"broadcast"`
	Missed    uint64         `json:"missed"`
	Records   *StatsSnapshot `json:"records,omitempty"`
}

func (l *Live) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats := liveStats{
		Session:   l.session,
		Clients:   l.Clients(),
		Broadcast: l.broadcast.Load(),
		Missed:    l.missed.Load(),
	}
	if l.opts.Stats != nil {
		snap := l.opts.Stats.Snapshot()
		stats.Records = &snap
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		l.logger.Error("JSON encode error", "error", err)
	}
}

func (l *Live) Name() string { return "live" }

func (l *Live) Policy() pipeline.Policy { return pipeline.DropOldest }

// Write broadcasts e to every client. Slow clients miss messages rather
// than holding up the others.
func (l *Live) Write(e pipeline.Entry) error {
	r := e.Record
	data, err := json.Marshal(liveMessage{
		Session:     l.session,
		Time:        r.Time,
		Level:       r.Level.String(),
		Tag:         r.Tag,
		Process:     r.Process,
		Thread:      r.Thread,
		Message:     r.Message,
		Highlighted: e.Highlighted,
	})
	if err != nil {
		return err
	}
	l.broadcast.Add(1)
	l.mu.RLock()
	defer l.mu.RUnlock()
	for c := range l.clients {
		select {
		case c.send <- data:
		default:
			l.missed.Add(1)
		}
	}
	return nil
}

func (l *Live) Flush() error { return nil }

// Close stops the server and disconnects every client.
func (l *Live) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := l.srv.Shutdown(ctx)
	l.mu.Lock()
	for c := range l.clients {
		delete(l.clients, c)
		close(c.send)
	}
	l.mu.Unlock()
	return err
}
