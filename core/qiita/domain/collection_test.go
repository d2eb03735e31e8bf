package domain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPager serves fixed pages of strings: pages[0] for page 1 and so
// on, empty past the end.
func scriptedPager(pages [][]string) Pager[string] {
	return func(_ context.Context, page int) ([]string, int, error) {
		if page < 1 || page > len(pages) {
			return nil, page + 1, nil
		}
		return pages[page-1], page + 1, nil
	}
}

func TestPagedListStartsIdle(t *testing.T) {
	l := NewPagedList(scriptedPager(nil))

	assert.Equal(t, PhaseIdle, l.Phase())
	assert.Empty(t, l.Items())
	assert.Equal(t, 0, l.Next())
	assert.False(t, l.Exhausted())
	assert.NoError(t, l.Err())
}

func TestPagedListTwoItemPages(t *testing.T) {
	l := NewPagedList(scriptedPager([][]string{
		{"a", "b"},
		{"c", "d"},
	}))
	ctx := context.Background()

	require.NoError(t, l.Reload(ctx))
	assert.Equal(t, []string{"a", "b"}, l.Items())
	assert.Equal(t, 2, l.Next())
	assert.Equal(t, PhaseLoaded, l.Phase())
	assert.False(t, l.Exhausted())

	require.NoError(t, l.LoadMore(ctx))
	assert.Equal(t, []string{"a", "b", "c", "d"}, l.Items())
	assert.Equal(t, 3, l.Next())
	assert.False(t, l.Exhausted())

	// Page 3 is empty: the list becomes exhausted.
	require.NoError(t, l.LoadMore(ctx))
	assert.Equal(t, []string{"a", "b", "c", "d"}, l.Items())
	assert.True(t, l.Exhausted())

	// Further calls never reach the pager.
	require.NoError(t, l.LoadMore(ctx))
	assert.Equal(t, []string{"a", "b", "c", "d"}, l.Items())
}

func TestPagedListLoadMoreStartsAtPageOne(t *testing.T) {
	l := NewPagedList(scriptedPager([][]string{{"a"}}))

	require.NoError(t, l.LoadMore(context.Background()))
	assert.Equal(t, []string{"a"}, l.Items())
	assert.Equal(t, 2, l.Next())
}

func TestPagedListReloadReplacesWholesale(t *testing.T) {
	l := NewPagedList(scriptedPager([][]string{
		{"a", "b"},
		{"c", "d"},
	}))
	ctx := context.Background()

	require.NoError(t, l.Reload(ctx))
	require.NoError(t, l.LoadMore(ctx))
	require.Len(t, l.Items(), 4)

	require.NoError(t, l.Reload(ctx))
	assert.Equal(t, []string{"a", "b"}, l.Items())
	assert.Equal(t, 2, l.Next())
	assert.False(t, l.Exhausted())
}

func TestPagedListFailureKeepsItems(t *testing.T) {
	boom := errors.New("boom")
	fail := false
	var mu sync.Mutex
	pager := func(ctx context.Context, page int) ([]string, int, error) {
		mu.Lock()
		f := fail
		mu.Unlock()
		if f {
			return nil, 0, boom
		}
		return scriptedPager([][]string{{"a", "b"}})(ctx, page)
	}

	l := NewPagedList(pager)
	ctx := context.Background()

	require.NoError(t, l.Reload(ctx))
	require.Equal(t, []string{"a", "b"}, l.Items())

	mu.Lock()
	fail = true
	mu.Unlock()

	err := l.LoadMore(ctx)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, PhaseFailed, l.Phase())
	assert.ErrorIs(t, l.Err(), boom)
	// Previously loaded data survives the failure.
	assert.Equal(t, []string{"a", "b"}, l.Items())
	assert.Equal(t, 2, l.Next())

	mu.Lock()
	fail = false
	mu.Unlock()

	require.NoError(t, l.Reload(ctx))
	assert.Equal(t, PhaseLoaded, l.Phase())
	assert.NoError(t, l.Err())
}

func TestPagedListLoadMoreNoOpWhileInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	var mu sync.Mutex

	pager := func(ctx context.Context, page int) ([]string, int, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(started)
			<-release
		}
		return []string{"a"}, page + 1, nil
	}

	l := NewPagedList(pager)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- l.LoadMore(ctx) }()
	<-started

	// Second call observes the in-flight fetch and returns without
	// touching the pager.
	require.NoError(t, l.LoadMore(ctx))
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"a"}, l.Items())
}

func TestPagedListReloadSupersedesInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	var mu sync.Mutex

	pager := func(ctx context.Context, page int) ([]string, int, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return []string{"stale"}, page + 1, nil
		}
		return []string{"fresh"}, page + 1, nil
	}

	l := NewPagedList(pager)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- l.LoadMore(ctx) }()
	<-started

	require.NoError(t, l.Reload(ctx))
	close(release)

	// The superseded call reports nil and its completion is dropped.
	require.NoError(t, <-done)
	assert.Equal(t, []string{"fresh"}, l.Items())
	assert.Equal(t, PhaseLoaded, l.Phase())
}

func TestPagedListLastLoadedAt(t *testing.T) {
	l := NewPagedList(scriptedPager([][]string{{"a"}}))

	require.True(t, l.LastLoadedAt().IsZero())
	start := time.Now()
	require.NoError(t, l.Reload(context.Background()))
	assert.False(t, l.LastLoadedAt().Before(start))
}
