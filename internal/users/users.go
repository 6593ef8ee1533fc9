// Package users maps external author usernames onto internal user records.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clipscope/clipscope/internal/models"
)

// Store is the slice of the document store user resolution needs.
type Store interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpsertUser(ctx context.Context, u models.User) (string, error)
}

// Resolver finds or creates users by username.
type Resolver struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewResolver creates a resolver over the store.
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// FindOrCreate returns the id of the user with the given username, creating
// one with an empty bio and photo when none exists. Concurrent calls for the
// same username converge on one record.
func (r *Resolver) FindOrCreate(ctx context.Context, username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", errors.New("username is required")
	}

	existing, err := r.store.GetUserByUsername(ctx, username)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return "", fmt.Errorf("lookup user %s: %w", username, err)
	}

	now := r.now().UTC()
	candidate := models.User{
		ID:        r.newID(),
		Username:  username,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := r.store.UpsertUser(ctx, candidate)
	if err != nil {
		return "", fmt.Errorf("create user %s: %w", username, err)
	}

	if id == candidate.ID {
		r.logger.Info("created user", "username", username, "user_id", id)
	} else {
		r.logger.Debug("user created concurrently", "username", username, "user_id", id)
	}
	return id, nil
}
