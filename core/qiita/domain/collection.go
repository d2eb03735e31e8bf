package domain

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bookii/qiitaviewer/modules/clock"
)

// PagedList accumulates pages of T fetched through a Pager. All state is
// confined behind a mutex; fetches run outside the lock and commit their
// result only if their generation still matches, so a Reload issued while
// a fetch is in flight wins and the stale completion is dropped.
type PagedList[T any] struct {
	pager Pager[T]
	clk   clock.Clock
	log   *slog.Logger

	mu         sync.Mutex
	items      []T
	next       int // 0 = not yet started
	phase      Phase
	err        error
	exhausted  bool
	generation uint64
	cancel     context.CancelFunc
	lastLoaded time.Time
}

// ListOption configures a PagedList.
type ListOption[T any] func(*PagedList[T])

// WithListClock overrides the time source (useful in tests).
func WithListClock[T any](c clock.Clock) ListOption[T] {
	return func(l *PagedList[T]) {
		if c != nil {
			l.clk = c
		}
	}
}

// WithListLogger configures structured logging.
func WithListLogger[T any](log *slog.Logger) ListOption[T] {
	return func(l *PagedList[T]) {
		if log != nil {
			l.log = log
		}
	}
}

// NewPagedList creates an idle list over pager.
func NewPagedList[T any](pager Pager[T], opts ...ListOption[T]) *PagedList[T] {
	l := &PagedList[T]{
		pager: pager,
		clk:   clock.RealClockProvider(),
		log:   slog.Default(),
		phase: PhaseIdle,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reload fetches page 1 and replaces the accumulated records wholesale.
// Any in-flight fetch is superseded: its context is cancelled and its
// completion discarded. On failure the previous records and cursor are
// kept, the phase becomes Failed, and the error is retained and returned.
// A Reload that is itself superseded before committing returns nil.
func (l *PagedList[T]) Reload(ctx context.Context) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.generation++
	gen := l.generation
	fetchCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.phase = PhaseLoading
	l.mu.Unlock()

	records, next, err := l.pager(fetchCtx, 1)
	cancel()

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.generation {
		l.log.DebugContext(ctx, "superseded reload discarded")
		return nil
	}
	l.cancel = nil
	if err != nil {
		l.phase = PhaseFailed
		l.err = err
		return err
	}
	l.items = append([]T(nil), records...)
	l.next = next
	l.exhausted = len(records) == 0
	l.phase = PhaseLoaded
	l.err = nil
	l.lastLoaded = l.clk.Now()
	return nil
}

// LoadMore fetches the next page and appends it. It is a no-op while a
// fetch is in flight or once the list is exhausted; on a list that was
// never loaded it fetches page 1. Failure semantics match Reload.
func (l *PagedList[T]) LoadMore(ctx context.Context) error {
	l.mu.Lock()
	if l.phase == PhaseLoading || l.exhausted {
		l.mu.Unlock()
		return nil
	}
	l.generation++
	gen := l.generation
	page := l.next
	if page == 0 {
		page = 1
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.phase = PhaseLoading
	l.mu.Unlock()

	records, next, err := l.pager(fetchCtx, page)
	cancel()

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.generation {
		l.log.DebugContext(ctx, "superseded load discarded", slog.Int("page", page))
		return nil
	}
	l.cancel = nil
	if err != nil {
		l.phase = PhaseFailed
		l.err = err
		return err
	}
	l.items = append(l.items, records...)
	l.next = next
	l.exhausted = len(records) == 0
	l.phase = PhaseLoaded
	l.err = nil
	l.lastLoaded = l.clk.Now()
	return nil
}

// Items returns a copy of the accumulated records.
func (l *PagedList[T]) Items() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]T(nil), l.items...)
}

// Next returns the cursor the next LoadMore would fetch (0 = not started).
func (l *PagedList[T]) Next() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next
}

func (l *PagedList[T]) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// Err returns the error retained by the last failed fetch, nil otherwise.
func (l *PagedList[T]) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Exhausted reports whether the service returned an empty page, which is
// the only end-of-data signal it gives.
func (l *PagedList[T]) Exhausted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exhausted
}

// LastLoadedAt returns when the last successful fetch committed.
func (l *PagedList[T]) LastLoadedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastLoaded
}
