package domain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bookii/qiitaviewer/modules/db"
)

// HistoryKey is the storage key the search-history blob lives under.
const HistoryKey = "searchHistories"

// MutationLock serializes a history read-modify-write across processes.
// It is only needed when the backing KV is shared (e.g. Redis); wire the
// redis locking executor's Execute as one. In-process exclusion is always
// provided by the store's own mutex.
type MutationLock func(ctx context.Context, task func(context.Context) error) error

// SearchHistoryStore keeps the ordered, deduplicated list of searched
// identifiers, persisted as one JSON blob under HistoryKey. Newest first;
// one entry per user id. The in-memory cache is read through lazily and
// only committed after a successful flush, so a failed flush leaves both
// cache and storage at the previous state.
type SearchHistoryStore struct {
	kv   db.JSONKV[[]SearchHistory]
	log  *slog.Logger
	lock MutationLock

	mu     sync.Mutex
	cache  []SearchHistory
	loaded bool
}

// HistoryOption configures a SearchHistoryStore.
type HistoryOption func(*SearchHistoryStore)

// WithHistoryLogger configures structured logging.
func WithHistoryLogger(log *slog.Logger) HistoryOption {
	return func(s *SearchHistoryStore) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMutationLock guards every mutation with a cross-process lock.
func WithMutationLock(lock MutationLock) HistoryOption {
	return func(s *SearchHistoryStore) {
		s.lock = lock
	}
}

// NewSearchHistoryStore wraps kv as the history backend.
func NewSearchHistoryStore(kv db.KV, opts ...HistoryOption) *SearchHistoryStore {
	s := &SearchHistoryStore{
		kv:  db.NewJSONKV[[]SearchHistory](kv),
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the persisted history, newest first. An absent blob is an
// empty history, not an error.
func (s *SearchHistoryStore) Load(ctx context.Context) ([]SearchHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return append([]SearchHistory(nil), s.cache...), nil
}

// Save records entry as the most recent search. An existing entry for the
// same identifier moves to the front instead of duplicating. The new state
// is flushed before it is committed; a failed flush surfaces
// ErrPersistence and leaves the committed state untouched.
func (s *SearchHistoryStore) Save(ctx context.Context, entry SearchHistory) error {
	return s.mutate(ctx, func(histories []SearchHistory) ([]SearchHistory, bool) {
		updated := make([]SearchHistory, 0, len(histories)+1)
		updated = append(updated, entry)
		for _, h := range histories {
			if h.UserID != entry.UserID {
				updated = append(updated, h)
			}
		}
		return updated, true
	})
}

// Delete removes entry from the history. Deleting an absent entry is a
// success and does not touch storage.
func (s *SearchHistoryStore) Delete(ctx context.Context, entry SearchHistory) error {
	return s.mutate(ctx, func(histories []SearchHistory) ([]SearchHistory, bool) {
		updated := make([]SearchHistory, 0, len(histories))
		for _, h := range histories {
			if h.UserID != entry.UserID {
				updated = append(updated, h)
			}
		}
		return updated, len(updated) != len(histories)
	})
}

// Clear drops the history blob entirely.
func (s *SearchHistoryStore) Clear(ctx context.Context) error {
	return s.locked(ctx, func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.kv.Delete(ctx, HistoryKey); err != nil {
			s.log.ErrorContext(ctx, "history clear failed", slog.Any("error", err))
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		s.cache = nil
		s.loaded = true
		return nil
	})
}

// mutate runs one read-modify-write cycle: load if needed, apply fn, and
// flush-then-commit when fn reports a change.
func (s *SearchHistoryStore) mutate(ctx context.Context, fn func([]SearchHistory) ([]SearchHistory, bool)) error {
	return s.locked(ctx, func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.ensureLoaded(ctx); err != nil {
			return err
		}
		updated, changed := fn(s.cache)
		if !changed {
			return nil
		}
		if _, err := s.kv.Set(ctx, HistoryKey, updated); err != nil {
			s.log.ErrorContext(ctx, "history flush failed", slog.Any("error", err))
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		s.cache = updated
		return nil
	})
}

func (s *SearchHistoryStore) locked(ctx context.Context, task func(context.Context) error) error {
	if s.lock == nil {
		return task(ctx)
	}
	return s.lock(ctx, task)
}

// caller holds s.mu
func (s *SearchHistoryStore) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	histories, err := s.kv.Get(ctx, HistoryKey)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if histories != nil {
		s.cache = *histories
	}
	s.loaded = true
	return nil
}
