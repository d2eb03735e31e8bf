package domain

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/bookii/qiitaviewer/worker"
)

// Application ties the remote source to the search-history store and
// hands out list controllers. All dependencies are constructor-injected.
type Application struct {
	source  Source
	history *SearchHistoryStore
	log     *slog.Logger
}

// AppOption configures an Application.
type AppOption func(*Application)

// WithAppLogger configures structured logging.
func WithAppLogger(log *slog.Logger) AppOption {
	return func(a *Application) {
		if log != nil {
			a.log = log
		}
	}
}

func NewApplication(source Source, history *SearchHistoryStore, opts ...AppOption) *Application {
	a := &Application{
		source:  source,
		history: history,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Search resolves a user by identifier. Error kinds from the source pass
// through unchanged; the search history is not touched here, recording a
// search is the caller's explicit SaveSearchHistory call.
func (a *Application) Search(ctx context.Context, userID string) (*User, error) {
	user, err := a.source.FetchUser(ctx, userID)
	if err != nil {
		a.log.WarnContext(ctx, "user search failed",
			slog.String("user_id", userID), slog.Any("error", err))
		return nil, err
	}
	return user, nil
}

// SearchHistories returns the persisted history, newest first.
func (a *Application) SearchHistories(ctx context.Context) ([]SearchHistory, error) {
	return a.history.Load(ctx)
}

// SaveSearchHistory records userID as the most recent search.
func (a *Application) SaveSearchHistory(ctx context.Context, userID string) error {
	return a.history.Save(ctx, SearchHistory{UserID: userID})
}

// DeleteSearchHistory removes userID from the history.
func (a *Application) DeleteSearchHistory(ctx context.Context, userID string) error {
	return a.history.Delete(ctx, SearchHistory{UserID: userID})
}

// ItemList returns a fresh controller over the user's posts.
func (a *Application) ItemList(userID string) *PagedList[Item] {
	return NewPagedList(func(ctx context.Context, page int) ([]Item, int, error) {
		return a.source.FetchItems(ctx, userID, page)
	}, WithListLogger[Item](a.log))
}

// FolloweeList returns a fresh controller over the accounts userID follows.
func (a *Application) FolloweeList(userID string) *PagedList[User] {
	return NewPagedList(func(ctx context.Context, page int) ([]User, int, error) {
		return a.source.FetchFollowees(ctx, userID, page)
	}, WithListLogger[User](a.log))
}

// FollowerList returns a fresh controller over the accounts following userID.
func (a *Application) FollowerList(userID string) *PagedList[User] {
	return NewPagedList(func(ctx context.Context, page int) ([]User, int, error) {
		return a.source.FetchFollowers(ctx, userID, page)
	}, WithListLogger[User](a.log))
}

// Prefetched bundles the three list controllers for one user.
type Prefetched struct {
	Items     *PagedList[Item]
	Followees *PagedList[User]
	Followers *PagedList[User]
}

// Prefetch creates the three lists for userID and loads their first pages
// concurrently. Per-list failures are joined into the returned error but
// do not stop the other lists; the controllers are always returned.
func (a *Application) Prefetch(ctx context.Context, userID string) (*Prefetched, error) {
	p := &Prefetched{
		Items:     a.ItemList(userID),
		Followees: a.FolloweeList(userID),
		Followers: a.FollowerList(userID),
	}

	jobs := make(chan func(context.Context) error, 3)
	jobs <- p.Items.Reload
	jobs <- p.Followees.Reload
	jobs <- p.Followers.Reload
	close(jobs)

	var (
		mu   sync.Mutex
		errs []error
	)
	worker.BlockingPool(ctx, 3, jobs, func(ctx context.Context, job func(context.Context) error) {
		if err := job(ctx); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	})

	return p, errors.Join(errs...)
}
