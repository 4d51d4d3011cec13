package sink

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss/table"

	"github.com/coffersTech/nanocat/internal/clock"
	"github.com/coffersTech/nanocat/internal/model"
	"github.com/coffersTech/nanocat/internal/pipeline"
)

// DefaultTopTags is how many tags a snapshot reports.
const DefaultTopTags = 10

// TagCount is one row of the top tags table.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

// StatsSnapshot is a point in time view of a Stats sink.
type StatsSnapshot struct {
	Total         int64            `json:"total"`
	Highlighted   int64            `json:"highlighted"`
	IngestionRate float64          `json:"ingestion_rate"` // records/sec
	LevelDist     map[string]int64 `json:"level_dist"`
	TopTags       []TagCount       `json:"top_tags"`
}

// Stats counts entries by level and tag and keeps a records per second
// rate. On Flush it prints a summary table to its writer, if any.
type Stats struct {
	out   io.Writer
	top   int
	clock clock.Clock

	mu          sync.Mutex
	total       int64
	highlighted int64
	levels      map[model.Level]int64
	tags        map[string]int64
	rate        float64

	writeCounter atomic.Int64
	ticker       *clock.Ticker
	done         chan struct{}
	stopOnce     sync.Once
}

// NewStats starts a Stats sink whose rate is recomputed every interval.
// out may be nil when only snapshots are wanted.
func NewStats(out io.Writer, c clock.Clock, interval time.Duration) *Stats {
	if c == nil {
		c = clock.Real()
	}
	if interval <= 0 {
		interval = time.Second
	}
	s := &Stats{
		out:    out,
		top:    DefaultTopTags,
		clock:  c,
		levels: make(map[model.Level]int64),
		tags:   make(map[string]int64),
		ticker: c.NewTicker(interval),
		done:   make(chan struct{}),
	}
	go s.tick(interval)
	return s
}

func (s *Stats) tick(interval time.Duration) {
	for {
		select {
		case <-s.ticker.C:
			count := s.writeCounter.Swap(0)
			s.mu.Lock()
			s.rate = float64(count) / interval.Seconds()
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}

func (s *Stats) Name() string { return "stats" }

func (s *Stats) Policy() pipeline.Policy { return pipeline.Block }

func (s *Stats) Write(e pipeline.Entry) error {
	s.writeCounter.Add(1)
	s.mu.Lock()
	s.total++
	if e.Highlighted {
		s.highlighted++
	}
	s.levels[e.Record.Level]++
	if e.Record.Tag != "" {
		s.tags[e.Record.Tag]++
	}
	s.mu.Unlock()
	return nil
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := StatsSnapshot{
		Total:         s.total,
		Highlighted:   s.highlighted,
		IngestionRate: s.rate,
		LevelDist:     make(map[string]int64, len(s.levels)),
	}
	for lvl, n := range s.levels {
		snap.LevelDist[lvl.String()] = n
	}
	for tag, n := range s.tags {
		snap.TopTags = append(snap.TopTags, TagCount{Tag: tag, Count: n})
	}
	slices.SortFunc(snap.TopTags, func(a, b TagCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Tag, b.Tag)
	})
	if len(snap.TopTags) > s.top {
		snap.TopTags = snap.TopTags[:s.top]
	}
	return snap
}

// Flush prints the summary.
func (s *Stats) Flush() error {
	if s.out == nil {
		return nil
	}
	snap := s.Snapshot()
	if _, err := fmt.Fprintf(s.out, "records: %d, highlighted: %d, rate: %.1f/s\n",
		snap.Total, snap.Highlighted, snap.IngestionRate); err != nil {
		return err
	}

	levels := table.New().Headers("LEVEL", "COUNT")
	for l := model.LevelTrace; l <= model.LevelFatal; l++ {
		if n := snap.LevelDist[l.String()]; n > 0 {
			levels.Row(l.String(), strconv.FormatInt(n, 10))
		}
	}
	if n := snap.LevelDist[model.LevelUnknown.String()]; n > 0 {
		levels.Row(model.LevelUnknown.String(), strconv.FormatInt(n, 10))
	}
	tags := table.New().Headers("TAG", "COUNT")
	for _, tc := range snap.TopTags {
		tags.Row(tc.Tag, strconv.FormatInt(tc.Count, 10))
	}
	_, err := fmt.Fprintf(s.out, "%s\n%s\n", levels.Render(), tags.Render())
	return err
}

// Close stops the rate ticker.
func (s *Stats) Close() error {
	s.stopOnce.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
	return nil
}
