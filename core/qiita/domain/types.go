package domain

import (
	"encoding/json"
	"time"

	"github.com/oapi-codegen/nullable"
)

type (
	// User is a content-service account as returned by the users endpoints.
	User struct {
		ID              string                    `json:"id"`
		ProfileImageURL string                    `json:"profile_image_url"`
		FolloweesCount  int                       `json:"followees_count"`
		FollowersCount  int                       `json:"followers_count"`
		Description     nullable.Nullable[string] `json:"description,omitempty"`
	}

	// Tag labels an item. Insertion order is preserved and duplicates are
	// allowed; the service owns both.
	Tag struct {
		Name string `json:"name"`
	}

	// Item is a single post.
	Item struct {
		ID         string    `json:"id"`
		Title      string    `json:"title"`
		Tags       []Tag     `json:"tags"`
		LikesCount int       `json:"likes_count"`
		CreatedAt  time.Time `json:"created_at"`
	}

	// SearchHistory is one persisted search, identifier only. The JSON
	// shape matches the stored blob format.
	SearchHistory struct {
		UserID string `json:"user_id"`
	}
)

// UnmarshalJSON decodes an item, tolerating a missing or unparsable
// created_at: the timestamp degrades to the zero time instead of failing
// the whole record.
func (it *Item) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         string `json:"id"`
		Title      string `json:"title"`
		Tags       []Tag  `json:"tags"`
		LikesCount int    `json:"likes_count"`
		CreatedAt  string `json:"created_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	it.ID = raw.ID
	it.Title = raw.Title
	it.Tags = raw.Tags
	it.LikesCount = raw.LikesCount

	it.CreatedAt = time.Time{}
	if raw.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, raw.CreatedAt); err == nil {
			it.CreatedAt = ts
		}
	}
	return nil
}

// Phase is the lifecycle state of a paginated list.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseLoaded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseLoaded:
		return "loaded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}
