package qiitaapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookii/qiitaviewer/core/qiita/domain"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL:     srv.URL,
		AccessToken: "test-token",
		PerPage:     20,
		Timeout:     5 * time.Second,
		RPS:         1000,
		Burst:       1000,
	})
	require.NoError(t, err)
	return c, srv
}

func TestFetchUserMapsFields(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/users/yaotti", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		json.NewEncoder(w).Encode(map[string]any{
			"id":                "yaotti",
			"profile_image_url": "https://example.com/avatar.png",
			"followees_count":   100,
			"followers_count":   200,
			"description":       "Hello.",
		})
	}))

	user, err := c.FetchUser(context.Background(), "yaotti")
	require.NoError(t, err)
	assert.Equal(t, "yaotti", user.ID)
	assert.Equal(t, "https://example.com/avatar.png", user.ProfileImageURL)
	assert.Equal(t, 100, user.FolloweesCount)
	assert.Equal(t, 200, user.FollowersCount)

	desc, err := user.Description.Get()
	require.NoError(t, err)
	assert.Equal(t, "Hello.", desc)
}

func TestFetchUserNullDescription(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"yaotti","description":null}`))
	}))

	user, err := c.FetchUser(context.Background(), "yaotti")
	require.NoError(t, err)
	assert.True(t, user.Description.IsNull())
}

func TestFetchUserStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"not found", http.StatusNotFound, `{"message":"Not found"}`, domain.ErrUserNotFound},
		{"server error", http.StatusInternalServerError, ``, domain.ErrTransport},
		{"rate limited", http.StatusForbidden, `{"message":"Rate limit exceeded"}`, domain.ErrTransport},
		{"malformed body", http.StatusOK, `{"id": `, domain.ErrInvalidResponse},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))

			_, err := c.FetchUser(context.Background(), "anyone")
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFetchUserConnectionFailure(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := c.FetchUser(context.Background(), "anyone")
	require.ErrorIs(t, err, domain.ErrTransport)
}

func TestInvalidUserIDNeverHitsNetwork(t *testing.T) {
	var (
		mu       sync.Mutex
		requests int
	)
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.Write([]byte(`{}`))
	}))
	ctx := context.Background()

	for _, id := range []string{"", "\xff\xfe"} {
		_, err := c.FetchUser(ctx, id)
		assert.ErrorIs(t, err, domain.ErrInvalidUserID)

		_, _, err = c.FetchItems(ctx, id, 1)
		assert.ErrorIs(t, err, domain.ErrInvalidUserID)

		_, _, err = c.FetchFollowees(ctx, id, 1)
		assert.ErrorIs(t, err, domain.ErrInvalidUserID)

		_, _, err = c.FetchFollowers(ctx, id, 1)
		assert.ErrorIs(t, err, domain.ErrInvalidUserID)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, requests)
}

func TestUserIDEscapedOnEveryEndpoint(t *testing.T) {
	const hostileID = "us er/../?#x"
	escaped := url.PathEscape(hostileID)

	var (
		mu    sync.Mutex
		paths []string
	)
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.EscapedPath())
		mu.Unlock()
		w.Write([]byte(`[]`))
	}))
	ctx := context.Background()

	c.FetchUser(ctx, hostileID)
	c.FetchItems(ctx, hostileID, 1)
	c.FetchFollowees(ctx, hostileID, 1)
	c.FetchFollowers(ctx, hostileID, 1)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 4)
	assert.Equal(t, "/api/v2/users/"+escaped, paths[0])
	assert.Equal(t, "/api/v2/users/"+escaped+"/items", paths[1])
	assert.Equal(t, "/api/v2/users/"+escaped+"/followees", paths[2])
	assert.Equal(t, "/api/v2/users/"+escaped+"/followers", paths[3])
}

func TestFetchItemsPaging(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/users/alice/items", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		assert.Equal(t, "20", r.URL.Query().Get("per_page"))
		w.Write([]byte(`[{"id":"i1","title":"First"},{"id":"i2","title":"Second"}]`))
	}))

	items, next, err := c.FetchItems(context.Background(), "alice", 3)
	require.NoError(t, err)
	assert.Equal(t, 4, next)
	require.Len(t, items, 2)
	assert.Equal(t, "First", items[0].Title)
}

func TestFetchItemsTolerantTimestamps(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":"i1","title":"ok","tags":[{"name":"go"},{"name":"go"}],"likes_count":5,"created_at":"2020-01-02T03:04:05+09:00"},
			{"id":"i2","title":"bad ts","created_at":"not-a-date"},
			{"id":"i3","title":"no ts"}
		]`))
	}))

	items, _, err := c.FetchItems(context.Background(), "alice", 1)
	require.NoError(t, err)
	require.Len(t, items, 3)

	want := time.Date(2020, 1, 2, 3, 4, 5, 0, time.FixedZone("", 9*3600))
	assert.True(t, items[0].CreatedAt.Equal(want))
	// Duplicate tags survive in order.
	assert.Equal(t, []domain.Tag{{Name: "go"}, {Name: "go"}}, items[0].Tags)
	assert.Equal(t, 5, items[0].LikesCount)

	// Unparsable or missing timestamps degrade to zero, not an error.
	assert.True(t, items[1].CreatedAt.IsZero())
	assert.True(t, items[2].CreatedAt.IsZero())
}

func TestFetchFollowersEmptyPage(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))

	users, next, err := c.FetchFollowers(context.Background(), "alice", 5)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Equal(t, 6, next)
}
