package linkding

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	cacheMaxEntries = 4
	cacheTTL        = 10 * time.Minute

	viewedIDsStateKey = "linkding/viewed_ids"
)

// StateStore persists small bits of bot state. Satisfied by *store.Store.
type StateStore interface {
	GetState(key string) (string, error)
	SetState(key, value string) error
}

// API is the bookmark fetch surface of Client, split out for tests.
type API interface {
	Bookmarks(ctx context.Context) ([]Bookmark, error)
	// CacheKey identifies the server and credential pair the API talks
	// to, so cached listings are scoped to it.
	CacheKey() string
}

type cachedBookmarks struct {
	bookmarks []Bookmark
	storedAt  time.Time
}

// Service serves bookmark listings through a TTL-bounded LRU cache and
// tracks which bookmark IDs have already been shown.
type Service struct {
	api   API
	state StateStore
	cache *lru.Cache[string, cachedBookmarks]
	now   func() time.Time
}

// NewService wraps api with caching and viewed-ID tracking.
func NewService(api API, state StateStore) *Service {
	// lru.New only errors on a non-positive size.
	cache, _ := lru.New[string, cachedBookmarks](cacheMaxEntries)
	return &Service{
		api:   api,
		state: state,
		cache: cache,
		now:   time.Now,
	}
}

// Bookmarks returns the bookmark list, served from cache when cached is
// true and the cached copy is still fresh. cached=false busts the cache.
func (s *Service) Bookmarks(ctx context.Context, cached bool) ([]Bookmark, error) {
	key := s.api.CacheKey()

	if !cached {
		s.cache.Remove(key)
	} else if entry, ok := s.cache.Get(key); ok {
		if s.now().Sub(entry.storedAt) < cacheTTL {
			return entry.bookmarks, nil
		}
		s.cache.Remove(key)
	}

	bookmarks, err := s.api.Bookmarks(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, cachedBookmarks{bookmarks: bookmarks, storedAt: s.now()})
	return bookmarks, nil
}

// Random returns up to n bookmarks that have not been shown before and
// records their IDs as viewed. reset forgets all previously viewed IDs
// first. Returns an empty slice when every bookmark has been seen.
func (s *Service) Random(ctx context.Context, n int, cached, reset bool) ([]Bookmark, error) {
	if n <= 0 {
		return nil, fmt.Errorf("n must be positive, got %d", n)
	}

	viewed, err := s.viewedIDs()
	if err != nil {
		return nil, err
	}
	if reset {
		viewed = nil
	}
	seen := make(map[int]bool, len(viewed))
	for _, id := range viewed {
		seen[id] = true
	}

	all, err := s.Bookmarks(ctx, cached)
	if err != nil {
		return nil, err
	}
	unseen := make([]Bookmark, 0, len(all))
	for _, b := range all {
		if !seen[b.ID] {
			unseen = append(unseen, b)
		}
	}
	if len(unseen) == 0 {
		return nil, nil
	}

	rand.Shuffle(len(unseen), func(i, j int) {
		unseen[i], unseen[j] = unseen[j], unseen[i]
	})
	if n > len(unseen) {
		n = len(unseen)
	}
	selected := unseen[:n]

	for _, b := range selected {
		viewed = append(viewed, b.ID)
	}
	if err := s.saveViewedIDs(viewed); err != nil {
		return nil, err
	}
	return selected, nil
}

func (s *Service) viewedIDs() ([]int, error) {
	raw, err := s.state.GetState(viewedIDsStateKey)
	if err != nil {
		return nil, fmt.Errorf("load viewed bookmark IDs: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var ids []int
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode viewed bookmark IDs: %w", err)
	}
	return ids, nil
}

func (s *Service) saveViewedIDs(ids []int) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode viewed bookmark IDs: %w", err)
	}
	if err := s.state.SetState(viewedIDsStateKey, string(raw)); err != nil {
		return fmt.Errorf("save viewed bookmark IDs: %w", err)
	}
	return nil
}
