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

var itemColumns = []string{
	"id", "batch_id", "author_username", "author_external_id", "text", "raw_urls",
	"is_processed", "processing_status", "processing_summary", "processing_error",
	"processed_at", "created_at",
}

// CreateItems inserts inbound items. Existing ids are left untouched.
func (s *Store) CreateItems(ctx context.Context, items []models.InboundItem) error {
	if len(items) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, item := range items {
			rawURLs, err := encodeJSON(stringList(item.RawURLs))
			if err != nil {
				return fmt.Errorf("encode raw urls for %s: %w", item.ID, err)
			}
			status := item.ProcessingStatus
			if status == "" {
				status = models.ProcessingStatusPending
			}
			var summary any
			if item.ProcessingSummary != nil {
				encoded, err := encodeJSON(item.ProcessingSummary)
				if err != nil {
					return fmt.Errorf("encode summary for %s: %w", item.ID, err)
				}
				summary = encoded
			}

			insert := s.sb.Insert("inbound_items").
				Columns(itemColumns...).
				Values(item.ID, item.BatchID, item.AuthorUsername, item.AuthorExternalID, item.Text, rawURLs,
					item.IsProcessed, status, summary, item.ProcessingError,
					s.nullTS(item.ProcessedAt), s.ts(item.CreatedAt)).
				Suffix("ON CONFLICT (id) DO NOTHING")
			if _, err := execBuilt(ctx, tx, insert); err != nil {
				return fmt.Errorf("insert item %s: %w", item.ID, err)
			}
		}
		return nil
	})
}

// GetItem returns one item or models.ErrNotFound.
func (s *Store) GetItem(ctx context.Context, id string) (*models.InboundItem, error) {
	row, err := queryRowBuilt(ctx, s.db, s.sb.Select(itemColumns...).From("inbound_items").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return &item, nil
}

// ListItemsByBatch returns every item of a batch in creation order.
func (s *Store) ListItemsByBatch(ctx context.Context, batchID string) ([]models.InboundItem, error) {
	return s.listItems(ctx, s.sb.Select(itemColumns...).From("inbound_items").
		Where(sq.Eq{"batch_id": batchID}).
		OrderBy("created_at", "id"))
}

// ListPendingItems returns the unprocessed items of a batch.
func (s *Store) ListPendingItems(ctx context.Context, batchID string) ([]models.InboundItem, error) {
	return s.listItems(ctx, s.sb.Select(itemColumns...).From("inbound_items").
		Where(sq.Eq{"batch_id": batchID, "is_processed": false}).
		OrderBy("created_at", "id"))
}

// ListItems returns the most recent items, newest first.
func (s *Store) ListItems(ctx context.Context, limit int) ([]models.InboundItem, error) {
	return s.listItems(ctx, withLimit(s.sb.Select(itemColumns...).From("inbound_items").
		OrderBy("created_at DESC", "id"), limit))
}

func (s *Store) listItems(ctx context.Context, query sq.SelectBuilder) ([]models.InboundItem, error) {
	rows, err := queryBuilt(ctx, s.db, query)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []models.InboundItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CommitItems applies the status updates and inserts the videos as one
// atomic write group. Each update is guarded by is_processed = false; if any
// item was already processed the group is rolled back and
// models.ErrAlreadyProcessed is returned.
func (s *Store) CommitItems(ctx context.Context, updates []models.ItemStatusUpdate, videos []models.Video) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, u := range updates {
			if err := s.applyStatus(ctx, tx, u); err != nil {
				return err
			}
		}
		for _, v := range videos {
			if err := s.insertVideo(ctx, tx, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkItemFailed marks a single item processed with a failure status. It is
// guarded the same way as CommitItems.
func (s *Store) MarkItemFailed(ctx context.Context, update models.ItemStatusUpdate) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.applyStatus(ctx, tx, update)
	})
}

func (s *Store) applyStatus(ctx context.Context, tx *sql.Tx, u models.ItemStatusUpdate) error {
	summary, err := encodeJSON(u.Summary)
	if err != nil {
		return fmt.Errorf("encode summary for %s: %w", u.ItemID, err)
	}

	update := s.sb.Update("inbound_items").
		Set("is_processed", true).
		Set("processing_status", u.ProcessingStatus).
		Set("processing_summary", summary).
		Set("processing_error", u.ProcessingError).
		Set("processed_at", s.ts(u.ProcessedAt)).
		Where(sq.Eq{"id": u.ItemID, "is_processed": false})

	res, err := execBuilt(ctx, tx, update)
	if err != nil {
		return fmt.Errorf("update item %s: %w", u.ItemID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for item %s: %w", u.ItemID, err)
	}
	if affected == 0 {
		return fmt.Errorf("item %s: %w", u.ItemID, models.ErrAlreadyProcessed)
	}
	return nil
}

func scanItem(row rowScanner) (models.InboundItem, error) {
	var (
		item        models.InboundItem
		rawURLs     []byte
		summary     []byte
		processedAt scanTime
		createdAt   scanTime
	)
	if err := row.Scan(
		&item.ID,
		&item.BatchID,
		&item.AuthorUsername,
		&item.AuthorExternalID,
		&item.Text,
		&rawURLs,
		&item.IsProcessed,
		&item.ProcessingStatus,
		&summary,
		&item.ProcessingError,
		&processedAt,
		&createdAt,
	); err != nil {
		return models.InboundItem{}, err
	}

	if err := json.Unmarshal(rawURLs, &item.RawURLs); err != nil {
		return models.InboundItem{}, fmt.Errorf("decode raw urls: %w", err)
	}
	if len(summary) > 0 {
		var ps models.ProcessingSummary
		if err := json.Unmarshal(summary, &ps); err != nil {
			return models.InboundItem{}, fmt.Errorf("decode summary: %w", err)
		}
		item.ProcessingSummary = &ps
	}
	item.ProcessedAt = processedAt.ptr()
	item.CreatedAt = createdAt.Time
	return item, nil
}
