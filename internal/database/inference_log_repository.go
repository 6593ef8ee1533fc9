package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/clipscope/clipscope/internal/models"
)

// InferenceLogRepository handles inference log database operations
type InferenceLogRepository struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
}

// NewInferenceLogRepository creates a new repository
func NewInferenceLogRepository(db *sql.DB, dialect Dialect) *InferenceLogRepository {
	return &InferenceLogRepository{db: db, dialect: dialect, sb: builder(dialect)}
}

// Create logs a new inference call
func (r *InferenceLogRepository) Create(ctx context.Context, log models.InferenceLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	insert := r.sb.Insert("inference_logs").
		Columns("provider", "model", "operation", "video_id", "input_tokens", "output_tokens",
			"latency_ms", "status", "error_message", "metadata", "created_at").
		Values(log.Provider, log.Model, log.Operation, log.VideoID, log.InputTokens, log.OutputTokens,
			log.LatencyMs, log.Status, log.ErrorMessage, log.Metadata, timeArg(r.dialect, log.CreatedAt))

	_, err := execBuilt(ctx, r.db, insert)
	return err
}

// InferenceLogQuery filters List.
type InferenceLogQuery struct {
	Provider string
	VideoID  string
	Status   string
	Limit    int
}

// List retrieves inference logs with optional filtering
func (r *InferenceLogRepository) List(ctx context.Context, q InferenceLogQuery) ([]models.InferenceLog, error) {
	query := r.sb.Select("id", "provider", "model", "operation", "video_id", "input_tokens", "output_tokens",
		"latency_ms", "status", "error_message", "metadata", "created_at").
		From("inference_logs").
		OrderBy("created_at DESC", "id DESC")

	if q.Provider != "" {
		query = query.Where(sq.Eq{"provider": q.Provider})
	}
	if q.VideoID != "" {
		query = query.Where(sq.Eq{"video_id": q.VideoID})
	}
	if q.Status != "" {
		query = query.Where(sq.Eq{"status": q.Status})
	}

	rows, err := queryBuilt(ctx, r.db, withLimit(query, q.Limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query inference logs: %w", err)
	}
	defer rows.Close()

	var logs []models.InferenceLog
	for rows.Next() {
		var (
			log       models.InferenceLog
			createdAt scanTime
		)
		err := rows.Scan(
			&log.ID,
			&log.Provider,
			&log.Model,
			&log.Operation,
			&log.VideoID,
			&log.InputTokens,
			&log.OutputTokens,
			&log.LatencyMs,
			&log.Status,
			&log.ErrorMessage,
			&log.Metadata,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inference log: %w", err)
		}
		log.CreatedAt = createdAt.Time
		logs = append(logs, log)
	}

	return logs, rows.Err()
}
