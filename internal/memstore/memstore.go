// Package memstore is an in-memory document store for tests and local runs.
// It mirrors the SQL store's semantics, including guarded write groups and
// username upserts.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/clipscope/clipscope/internal/models"
)

// Store holds every collection behind one mutex.
type Store struct {
	mu       sync.Mutex
	items    map[string]models.InboundItem
	videos   map[string]models.Video
	users    map[string]models.User // keyed by username
	analyses map[string]models.Analysis
	comments map[string]models.Comment
}

// New creates an empty store.
func New() *Store {
	return &Store{
		items:    make(map[string]models.InboundItem),
		videos:   make(map[string]models.Video),
		users:    make(map[string]models.User),
		analyses: make(map[string]models.Analysis),
		comments: make(map[string]models.Comment),
	}
}

// CreateItems inserts items, leaving existing ids untouched.
func (s *Store) CreateItems(ctx context.Context, items []models.InboundItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		if _, ok := s.items[item.ID]; ok {
			continue
		}
		if item.ProcessingStatus == "" {
			item.ProcessingStatus = models.ProcessingStatusPending
		}
		item.RawURLs = append([]string(nil), item.RawURLs...)
		s.items[item.ID] = item
	}
	return nil
}

// GetItem returns one item or models.ErrNotFound.
func (s *Store) GetItem(ctx context.Context, id string) (*models.InboundItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &item, nil
}

// ListItemsByBatch returns every item of a batch in creation order.
func (s *Store) ListItemsByBatch(ctx context.Context, batchID string) ([]models.InboundItem, error) {
	return s.filterItems(func(i models.InboundItem) bool { return i.BatchID == batchID }), nil
}

// ListPendingItems returns the unprocessed items of a batch.
func (s *Store) ListPendingItems(ctx context.Context, batchID string) ([]models.InboundItem, error) {
	return s.filterItems(func(i models.InboundItem) bool { return i.BatchID == batchID && !i.IsProcessed }), nil
}

// ListItems returns the most recent items, newest first.
func (s *Store) ListItems(ctx context.Context, limit int) ([]models.InboundItem, error) {
	items := s.filterItems(func(models.InboundItem) bool { return true })
	sort.SliceStable(items, func(a, b int) bool { return items[a].CreatedAt.After(items[b].CreatedAt) })
	return truncate(items, limit), nil
}

func (s *Store) filterItems(keep func(models.InboundItem) bool) []models.InboundItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.InboundItem
	for _, item := range s.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

// CommitItems applies the whole group or nothing. Any update targeting an
// already processed item aborts the group with models.ErrAlreadyProcessed.
func (s *Store) CommitItems(ctx context.Context, updates []models.ItemStatusUpdate, videos []models.Video) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		item, ok := s.items[u.ItemID]
		if !ok || item.IsProcessed {
			return fmt.Errorf("item %s: %w", u.ItemID, models.ErrAlreadyProcessed)
		}
	}
	for _, u := range updates {
		s.applyStatus(u)
	}
	for _, v := range videos {
		if _, ok := s.videos[v.ID]; ok {
			continue
		}
		s.videos[v.ID] = v
	}
	return nil
}

// MarkItemFailed marks one item processed with a failure status.
func (s *Store) MarkItemFailed(ctx context.Context, update models.ItemStatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[update.ItemID]
	if !ok || item.IsProcessed {
		return fmt.Errorf("item %s: %w", update.ItemID, models.ErrAlreadyProcessed)
	}
	s.applyStatus(update)
	return nil
}

func (s *Store) applyStatus(u models.ItemStatusUpdate) {
	item := s.items[u.ItemID]
	summary := u.Summary
	processedAt := u.ProcessedAt
	item.IsProcessed = true
	item.ProcessingStatus = u.ProcessingStatus
	item.ProcessingSummary = &summary
	item.ProcessingError = u.ProcessingError
	item.ProcessedAt = &processedAt
	s.items[u.ItemID] = item
}

// UpsertUser stores the user unless the username exists and returns the id
// of the stored record.
func (s *Store) UpsertUser(ctx context.Context, u models.User) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[u.Username]; ok {
		return existing.ID, nil
	}
	s.users[u.Username] = u
	return u.ID, nil
}

// GetUserByUsername returns the user or models.ErrNotFound.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &u, nil
}

// CountUsersByUsername reports how many records carry the username.
func (s *Store) CountUsersByUsername(ctx context.Context, username string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return 1, nil
	}
	return 0, nil
}

// GetVideo returns one video or models.ErrNotFound.
func (s *Store) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &v, nil
}

// ListVideos returns the most recent videos, newest first.
func (s *Store) ListVideos(ctx context.Context, limit int) ([]models.Video, error) {
	videos := s.filterVideos(func(models.Video) bool { return true })
	sort.SliceStable(videos, func(a, b int) bool { return videos[a].CreatedAt.After(videos[b].CreatedAt) })
	return truncate(videos, limit), nil
}

// ListVideosByItem returns the videos extracted from one item.
func (s *Store) ListVideosByItem(ctx context.Context, itemID string) ([]models.Video, error) {
	return s.filterVideos(func(v models.Video) bool { return v.ItemID == itemID }), nil
}

// VideoCount returns the number of stored videos.
func (s *Store) VideoCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.videos)
}

func (s *Store) filterVideos(keep func(models.Video) bool) []models.Video {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Video
	for _, v := range s.videos {
		if keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

// PutAnalysis replaces the analysis record of a video.
func (s *Store) PutAnalysis(ctx context.Context, a models.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[a.VideoID] = a
	return nil
}

// GetAnalysis returns the analysis of a video or models.ErrNotFound.
func (s *Store) GetAnalysis(ctx context.Context, videoID string) (*models.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[videoID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &a, nil
}

// ListAnalyses returns the most recently updated analyses.
func (s *Store) ListAnalyses(ctx context.Context, limit int) ([]models.Analysis, error) {
	s.mu.Lock()
	out := make([]models.Analysis, 0, len(s.analyses))
	for _, a := range s.analyses {
		out = append(out, a)
	}
	s.mu.Unlock()
	sort.Slice(out, func(a, b int) bool { return out[a].LastUpdated.After(out[b].LastUpdated) })
	return truncate(out, limit), nil
}

// CreateComment stores a comment and bumps the video's comment count.
func (s *Store) CreateComment(ctx context.Context, c models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[c.ID]; ok {
		return fmt.Errorf("comment %s already exists", c.ID)
	}
	s.comments[c.ID] = c
	if v, ok := s.videos[c.VideoID]; ok {
		v.CommentCount++
		s.videos[c.VideoID] = v
	}
	return nil
}

// GetComment returns one comment or models.ErrNotFound.
func (s *Store) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &c, nil
}

// ListComments returns a video's comments in posting order.
func (s *Store) ListComments(ctx context.Context, videoID string) ([]models.Comment, error) {
	s.mu.Lock()
	var out []models.Comment
	for _, c := range s.comments {
		if c.VideoID == videoID {
			out = append(out, c)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out, nil
}

func truncate[T any](in []T, limit int) []T {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}
