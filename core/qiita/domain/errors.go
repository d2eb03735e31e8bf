package domain

import "errors"

var (
	// ErrInvalidUserID marks identifiers that cannot form a request URL
	// (empty or not valid UTF-8). No request is made for such identifiers.
	ErrInvalidUserID = errors.New("invalid user identifier")

	// ErrUserNotFound is the service's 404 for a user lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrTransport covers connectivity failures, timeouts, and any
	// unexpected non-2xx response.
	ErrTransport = errors.New("transport failure")

	// ErrInvalidResponse marks a 2xx response whose body cannot be decoded.
	ErrInvalidResponse = errors.New("undecodable response")

	// ErrPersistence marks a failed search-history flush. The committed
	// state is left untouched when it is returned.
	ErrPersistence = errors.New("search history persistence failure")
)
