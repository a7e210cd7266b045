package clientlist

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andrsadr/koravi/internal/domain"
)

// DefaultDebounce is the quiet period before a typed query is sent
const DefaultDebounce = 300 * time.Millisecond

// Sequencer tags requests with increasing numbers so that only the newest
// response is accepted.
type Sequencer struct {
	last atomic.Uint64
}

// Next issues a new tag, superseding all earlier ones
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// IsLatest reports whether seq is the most recently issued tag
func (s *Sequencer) IsLatest(seq uint64) bool {
	return s.last.Load() == seq
}

// Debouncer runs only the last function triggered within a quiet period
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
}

// NewDebouncer creates a debouncer; a non-positive delay uses DefaultDebounce
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay}
}

// Trigger schedules fn, cancelling whatever was pending
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Stop cancels the pending function, if any
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Searcher is the backend search used by LiveSearch
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]*domain.Client, error)
}

// Result is one delivered search outcome
type Result struct {
	Seq     uint64
	Query   string
	Clients []*domain.Client
	Err     error
}

// LiveSearch turns keystrokes into debounced backend searches. A response
// is delivered only if no newer search was dispatched after it; stale
// responses are dropped.
type LiveSearch struct {
	searcher  Searcher
	debouncer *Debouncer
	seq       Sequencer
	limit     int
	logger    *slog.Logger
	onResult  func(Result)

	mu     sync.Mutex
	latest Result
	stale  atomic.Uint64
}

// NewLiveSearch creates a live search. onResult may be nil and must not
// call back into the LiveSearch.
func NewLiveSearch(searcher Searcher, delay time.Duration, limit int, onResult func(Result), logger *slog.Logger) *LiveSearch {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveSearch{
		searcher:  searcher,
		debouncer: NewDebouncer(delay),
		limit:     limit,
		logger:    logger,
		onResult:  onResult,
	}
}

// Input records the current contents of the search box. Queries shorter
// than MinQueryLength cancel the pending search and invalidate any in
// flight, since the table then shows the unfiltered collection.
func (l *LiveSearch) Input(ctx context.Context, query string) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinQueryLength {
		l.debouncer.Stop()
		l.seq.Next()
		return
	}
	l.debouncer.Trigger(func() {
		l.dispatch(ctx, query)
	})
}

// Latest returns the most recently accepted result
func (l *LiveSearch) Latest() Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest
}

// Stale counts responses dropped because a newer search was dispatched
func (l *LiveSearch) Stale() uint64 {
	return l.stale.Load()
}

// Close cancels the pending search
func (l *LiveSearch) Close() {
	l.debouncer.Stop()
}

func (l *LiveSearch) dispatch(ctx context.Context, query string) {
	seq := l.seq.Next()
	clients, err := l.searcher.Search(ctx, query, l.limit)

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.seq.IsLatest(seq) {
		l.stale.Add(1)
		l.logger.Debug("discarding superseded search response",
			slog.String("query", query),
			slog.Uint64("seq", seq),
		)
		return
	}
	l.latest = Result{Seq: seq, Query: query, Clients: clients, Err: err}
	if l.onResult != nil {
		l.onResult(l.latest)
	}
}
