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

// PutAnalysis replaces the analysis record of a video wholesale.
func (s *Store) PutAnalysis(ctx context.Context, a models.Analysis) error {
	doc, err := encodeJSON(a)
	if err != nil {
		return fmt.Errorf("encode analysis %s: %w", a.VideoID, err)
	}

	upsert := s.sb.Insert("analyses").
		Columns("video_id", "document", "is_processing", "error", "last_updated").
		Values(a.VideoID, doc, a.IsProcessing, a.Error, s.ts(a.LastUpdated)).
		Suffix(`ON CONFLICT (video_id) DO UPDATE SET
			document = EXCLUDED.document,
			is_processing = EXCLUDED.is_processing,
			error = EXCLUDED.error,
			last_updated = EXCLUDED.last_updated`)
	if _, err := execBuilt(ctx, s.db, upsert); err != nil {
		return fmt.Errorf("put analysis %s: %w", a.VideoID, err)
	}
	return nil
}

// GetAnalysis returns the analysis of a video or models.ErrNotFound.
func (s *Store) GetAnalysis(ctx context.Context, videoID string) (*models.Analysis, error) {
	row, err := queryRowBuilt(ctx, s.db, s.sb.Select("document").From("analyses").Where(sq.Eq{"video_id": videoID}))
	if err != nil {
		return nil, err
	}
	var doc []byte
	err = row.Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis %s: %w", videoID, err)
	}
	var a models.Analysis
	if err := json.Unmarshal(doc, &a); err != nil {
		return nil, fmt.Errorf("decode analysis %s: %w", videoID, err)
	}
	return &a, nil
}

// ListAnalyses returns the most recently updated analyses.
func (s *Store) ListAnalyses(ctx context.Context, limit int) ([]models.Analysis, error) {
	rows, err := queryBuilt(ctx, s.db, withLimit(s.sb.Select("document").From("analyses").
		OrderBy("last_updated DESC", "video_id"), limit))
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	var out []models.Analysis
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		var a models.Analysis
		if err := json.Unmarshal(doc, &a); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
