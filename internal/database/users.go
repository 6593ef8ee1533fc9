package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/clipscope/clipscope/internal/models"
)

var userColumns = []string{"id", "username", "bio", "photo_url", "created_at", "updated_at"}

// UpsertUser inserts the user unless the username already exists, and
// returns the id of the stored record either way. Concurrent callers with the
// same username converge on one row through the unique constraint.
func (s *Store) UpsertUser(ctx context.Context, u models.User) (string, error) {
	insert := s.sb.Insert("users").
		Columns(userColumns...).
		Values(u.ID, u.Username, u.Bio, u.PhotoURL, s.ts(u.CreatedAt), s.ts(u.UpdatedAt)).
		Suffix("ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username RETURNING id")

	row, err := queryRowBuilt(ctx, s.db, insert)
	if err != nil {
		return "", err
	}
	var id string
	if err := row.Scan(&id); err != nil {
		return "", fmt.Errorf("upsert user %s: %w", u.Username, err)
	}
	return id, nil
}

// GetUserByUsername returns the user or models.ErrNotFound.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row, err := queryRowBuilt(ctx, s.db, s.sb.Select(userColumns...).From("users").Where(sq.Eq{"username": username}))
	if err != nil {
		return nil, err
	}

	var (
		u         models.User
		createdAt scanTime
		updatedAt scanTime
	)
	err = row.Scan(&u.ID, &u.Username, &u.Bio, &u.PhotoURL, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", username, err)
	}
	u.CreatedAt = createdAt.Time
	u.UpdatedAt = updatedAt.Time
	return &u, nil
}

// CountUsersByUsername reports how many rows carry the username.
func (s *Store) CountUsersByUsername(ctx context.Context, username string) (int, error) {
	row, err := queryRowBuilt(ctx, s.db, s.sb.Select("COUNT(*)").From("users").Where(sq.Eq{"username": username}))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
