package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/clipscope/clipscope/internal/models"
)

// IngestionErrorRepository stores URLs that could not be turned into videos.
type IngestionErrorRepository struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
}

// NewIngestionErrorRepository creates a repository over an open connection.
func NewIngestionErrorRepository(db *sql.DB, dialect Dialect) *IngestionErrorRepository {
	return &IngestionErrorRepository{db: db, dialect: dialect, sb: builder(dialect)}
}

// Store saves an ingestion error, filling in id and timestamp when absent.
func (r *IngestionErrorRepository) Store(ctx context.Context, e models.IngestionError) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	insert := r.sb.Insert("ingestion_errors").
		Columns("id", "item_id", "batch_id", "platform", "error_type", "url", "error_msg", "created_at").
		Values(e.ID, e.ItemID, e.BatchID, e.Platform, string(e.ErrorType), e.URL, e.ErrorMsg, timeArg(r.dialect, e.CreatedAt)).
		Suffix("ON CONFLICT (id) DO UPDATE SET error_msg = EXCLUDED.error_msg")

	if _, err := execBuilt(ctx, r.db, insert); err != nil {
		return fmt.Errorf("store ingestion error: %w", err)
	}
	return nil
}

// List returns the most recent errors, optionally for one item.
func (r *IngestionErrorRepository) List(ctx context.Context, itemID string, limit int) ([]models.IngestionError, error) {
	query := r.sb.Select("id", "item_id", "batch_id", "platform", "error_type", "url", "error_msg", "created_at").
		From("ingestion_errors").
		OrderBy("created_at DESC")
	if itemID != "" {
		query = query.Where(sq.Eq{"item_id": itemID})
	}

	rows, err := queryBuilt(ctx, r.db, withLimit(query, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query ingestion errors: %w", err)
	}
	defer rows.Close()

	var out []models.IngestionError
	for rows.Next() {
		var (
			e         models.IngestionError
			errorType string
			createdAt scanTime
		)
		if err := rows.Scan(&e.ID, &e.ItemID, &e.BatchID, &e.Platform, &errorType, &e.URL, &e.ErrorMsg, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ingestion error: %w", err)
		}
		e.ErrorType = models.IngestionErrorType(errorType)
		e.CreatedAt = createdAt.Time
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountSince returns how many errors were recorded after the given time.
func (r *IngestionErrorRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	row, err := queryRowBuilt(ctx, r.db, r.sb.Select("COUNT(*)").From("ingestion_errors").
		Where(sq.GtOrEq{"created_at": timeArg(r.dialect, since)}))
	if err != nil {
		return 0, err
	}
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count ingestion errors: %w", err)
	}
	return count, nil
}
