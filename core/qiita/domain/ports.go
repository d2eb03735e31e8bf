package domain

import "context"

// Source is the port to the remote content service. Implementations must
// be safe for concurrent use; the application shares one instance across
// every list it creates.
//
// Paging methods take a 1-based page cursor and return the fetched records
// together with the cursor for the following page. The service reports no
// end-of-data flag; an empty page is the only exhaustion signal.
type Source interface {
	// FetchUser resolves a single user by identifier.
	// Returns ErrUserNotFound when the service reports 404.
	FetchUser(ctx context.Context, userID string) (*User, error)

	// FetchItems returns one page of the user's posts.
	FetchItems(ctx context.Context, userID string, page int) ([]Item, int, error)

	// FetchFollowees returns one page of the accounts the user follows.
	FetchFollowees(ctx context.Context, userID string, page int) ([]User, int, error)

	// FetchFollowers returns one page of the accounts following the user.
	FetchFollowers(ctx context.Context, userID string, page int) ([]User, int, error)
}

// Pager fetches one page of records. PagedList is generic over the record
// type and knows nothing about users or endpoints; the application binds a
// Pager closure over the Source per (user, list) pair.
type Pager[T any] func(ctx context.Context, page int) ([]T, int, error)
