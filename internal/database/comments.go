package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/clipscope/clipscope/internal/models"
)

var commentColumns = []string{"id", "video_id", "user_id", "text", "is_bot", "reply_to", "created_at"}

// CreateComment stores a comment and bumps the video's comment count in the
// same transaction.
func (s *Store) CreateComment(ctx context.Context, c models.Comment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		insert := s.sb.Insert("comments").
			Columns(commentColumns...).
			Values(c.ID, c.VideoID, c.UserID, c.Text, c.IsBot, c.ReplyTo, s.ts(c.CreatedAt))
		if _, err := execBuilt(ctx, tx, insert); err != nil {
			return fmt.Errorf("insert comment %s: %w", c.ID, err)
		}

		bump := s.sb.Update("videos").
			Set("comment_count", sq.Expr("comment_count + 1")).
			Where(sq.Eq{"id": c.VideoID})
		if _, err := execBuilt(ctx, tx, bump); err != nil {
			return fmt.Errorf("bump comment count for %s: %w", c.VideoID, err)
		}
		return nil
	})
}

// GetComment returns one comment or models.ErrNotFound.
func (s *Store) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	row, err := queryRowBuilt(ctx, s.db, s.sb.Select(commentColumns...).From("comments").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment %s: %w", id, err)
	}
	return &c, nil
}

// ListComments returns a video's comments in posting order.
func (s *Store) ListComments(ctx context.Context, videoID string) ([]models.Comment, error) {
	rows, err := queryBuilt(ctx, s.db, s.sb.Select(commentColumns...).From("comments").
		Where(sq.Eq{"video_id": videoID}).
		OrderBy("created_at", "id"))
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var out []models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanComment(row rowScanner) (models.Comment, error) {
	var (
		c         models.Comment
		createdAt scanTime
	)
	if err := row.Scan(&c.ID, &c.VideoID, &c.UserID, &c.Text, &c.IsBot, &c.ReplyTo, &createdAt); err != nil {
		return models.Comment{}, err
	}
	c.CreatedAt = createdAt.Time
	return c, nil
}
