package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/clipscope/clipscope/internal/models"
)

var videoColumns = []string{
	"id", "source_url", "thumbnail_url", "title", "description", "platform",
	"user_id", "item_id", "liked_by", "saved_by", "comment_count",
	"created_at", "updated_at",
}

// insertVideo writes a video inside a write group. Video ids are derived from
// the item and URL, so a repeated insert is ignored.
func (s *Store) insertVideo(ctx context.Context, r runner, v models.Video) error {
	likedBy, err := encodeJSON(stringList(v.LikedBy))
	if err != nil {
		return fmt.Errorf("encode liked_by for %s: %w", v.ID, err)
	}
	savedBy, err := encodeJSON(stringList(v.SavedBy))
	if err != nil {
		return fmt.Errorf("encode saved_by for %s: %w", v.ID, err)
	}

	insert := s.sb.Insert("videos").
		Columns(videoColumns...).
		Values(v.ID, v.SourceURL, v.ThumbnailURL, v.Title, v.Description, string(v.Platform),
			v.UserID, v.ItemID, likedBy, savedBy, v.CommentCount,
			s.ts(v.CreatedAt), s.ts(v.UpdatedAt)).
		Suffix("ON CONFLICT (id) DO NOTHING")
	if _, err := execBuilt(ctx, r, insert); err != nil {
		return fmt.Errorf("insert video %s: %w", v.ID, err)
	}
	return nil
}

// GetVideo returns one video or models.ErrNotFound.
func (s *Store) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	row, err := queryRowBuilt(ctx, s.db, s.sb.Select(videoColumns...).From("videos").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get video %s: %w", id, err)
	}
	return &v, nil
}

// ListVideos returns the most recent videos, newest first.
func (s *Store) ListVideos(ctx context.Context, limit int) ([]models.Video, error) {
	return s.listVideos(ctx, withLimit(s.sb.Select(videoColumns...).From("videos").
		OrderBy("created_at DESC", "id"), limit))
}

// ListVideosByItem returns the videos extracted from one item.
func (s *Store) ListVideosByItem(ctx context.Context, itemID string) ([]models.Video, error) {
	return s.listVideos(ctx, s.sb.Select(videoColumns...).From("videos").
		Where(sq.Eq{"item_id": itemID}).
		OrderBy("created_at", "id"))
}

func (s *Store) listVideos(ctx context.Context, query sq.SelectBuilder) ([]models.Video, error) {
	rows, err := queryBuilt(ctx, s.db, query)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func scanVideo(row rowScanner) (models.Video, error) {
	var (
		v         models.Video
		platform  string
		likedBy   []byte
		savedBy   []byte
		createdAt scanTime
		updatedAt scanTime
	)
	if err := row.Scan(
		&v.ID,
		&v.SourceURL,
		&v.ThumbnailURL,
		&v.Title,
		&v.Description,
		&platform,
		&v.UserID,
		&v.ItemID,
		&likedBy,
		&savedBy,
		&v.CommentCount,
		&createdAt,
		&updatedAt,
	); err != nil {
		return models.Video{}, err
	}
	v.Platform = models.Platform(platform)
	if err := json.Unmarshal(likedBy, &v.LikedBy); err != nil {
		return models.Video{}, fmt.Errorf("decode liked_by: %w", err)
	}
	if err := json.Unmarshal(savedBy, &v.SavedBy); err != nil {
		return models.Video{}, fmt.Errorf("decode saved_by: %w", err)
	}
	v.CreatedAt = createdAt.Time
	v.UpdatedAt = updatedAt.Time
	return v, nil
}
