package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clipscope/clipscope/internal/metadata"
	"github.com/clipscope/clipscope/internal/metrics"
	"github.com/clipscope/clipscope/internal/models"
)

// videoNamespace scopes deterministic video ids.
var videoNamespace = uuid.MustParse("9c1d4f6e-3a5b-4c2d-8e7f-1a2b3c4d5e6f")

// VideoID derives the id of the video extracted from url within item. The
// same URL in the same item always maps to the same id, so a retried write
// group cannot duplicate videos; the same URL in another item does not
// collide.
func VideoID(itemID, url string) string {
	return uuid.NewSHA1(videoNamespace, []byte(itemID+"|"+url)).String()
}

// BatchResult summarizes one batch-ready delivery.
type BatchResult struct {
	BatchID       string
	TotalItems    int
	PendingItems  int
	VideosCreated int
	FailedURLs    int
	// Duplicate is set when a concurrent delivery had already processed part
	// of the batch and this delivery's write group was discarded.
	Duplicate bool
}

// Coordinator turns pending inbound items into videos.
type Coordinator struct {
	store     ItemStore
	extractor MetadataExtractor
	users     UserResolver
	errors    ErrorRecorder
	metrics   *metrics.Pipeline
	logger    *slog.Logger
	now       func() time.Time
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithErrorRecorder records each failed URL.
func WithErrorRecorder(r ErrorRecorder) CoordinatorOption {
	return func(c *Coordinator) { c.errors = r }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Pipeline) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator wires a coordinator.
func NewCoordinator(store ItemStore, extractor MetadataExtractor, users UserResolver, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:     store,
		extractor: extractor,
		users:     users,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleBatchReady processes every pending item of the batch and commits all
// resulting writes at once. A returned error means nothing was written and
// the message should be redelivered.
func (c *Coordinator) HandleBatchReady(ctx context.Context, msg models.BatchReadyMessage) (BatchResult, error) {
	result := BatchResult{BatchID: msg.BatchID}
	if msg.BatchID == "" {
		c.logger.Error("batch-ready message without batch id", "timestamp", msg.Timestamp)
		c.metrics.BatchHandled("noop")
		return result, nil
	}

	logger := c.logger.With("batch_id", msg.BatchID)

	all, err := c.store.ListItemsByBatch(ctx, msg.BatchID)
	if err != nil {
		c.metrics.BatchHandled("error")
		return result, fmt.Errorf("list batch %s: %w", msg.BatchID, err)
	}
	result.TotalItems = len(all)

	pending, err := c.store.ListPendingItems(ctx, msg.BatchID)
	if err != nil {
		c.metrics.BatchHandled("error")
		return result, fmt.Errorf("list pending items for batch %s: %w", msg.BatchID, err)
	}
	result.PendingItems = len(pending)

	logger.Info("batch ready", "total_items", len(all), "pending_items", len(pending))
	if len(pending) == 0 {
		logger.Info("no pending items in batch")
		c.metrics.BatchHandled("noop")
		return result, nil
	}

	staged := make([]stagedItem, 0, len(pending))
	for _, item := range pending {
		videos, summary, err := c.extractItem(ctx, item)
		if err != nil {
			c.metrics.BatchHandled("error")
			return result, err
		}
		staged = append(staged, stagedItem{
			update: models.ItemStatusUpdate{
				ItemID:           item.ID,
				ProcessingStatus: models.ProcessingStatusCompleted,
				Summary:          summary,
				ProcessedAt:      c.now().UTC(),
			},
			videos: videos,
		})
	}

	committed, duplicate, err := c.commitStaged(ctx, staged)
	result.Duplicate = duplicate
	if err != nil {
		logger.Error("batch commit failed", "error", err)
		c.metrics.BatchHandled("error")
		return result, fmt.Errorf("commit batch %s: %w", msg.BatchID, err)
	}
	if len(committed) == 0 {
		logger.Warn("batch already processed by a concurrent delivery")
		c.metrics.BatchHandled("duplicate")
		return result, nil
	}

	updates, videos := flattenStaged(committed)
	for _, u := range updates {
		result.FailedURLs += u.Summary.Failed
	}
	result.VideosCreated = len(videos)
	c.metrics.BatchHandled("processed")
	c.metrics.ItemsCommitted(len(updates), len(videos))
	logger.Info("batch processed",
		"items", len(updates),
		"videos_created", len(videos),
		"failed_urls", result.FailedURLs,
		"duplicate", duplicate,
	)
	return result, nil
}

// maxCommitAttempts bounds how often a write group is narrowed and retried
// after losing items to a concurrent writer.
const maxCommitAttempts = 3

// stagedItem is the pending write for one item.
type stagedItem struct {
	update models.ItemStatusUpdate
	videos []models.Video
}

func flattenStaged(staged []stagedItem) ([]models.ItemStatusUpdate, []models.Video) {
	updates := make([]models.ItemStatusUpdate, 0, len(staged))
	var videos []models.Video
	for _, s := range staged {
		updates = append(updates, s.update)
		videos = append(videos, s.videos...)
	}
	return updates, videos
}

// commitStaged commits the write group. When a concurrent writer already
// processed some of its items, those items are dropped and the rest are
// committed again, so still-pending siblings are never acknowledged without
// being written. It returns the items actually committed and whether any were
// dropped.
func (c *Coordinator) commitStaged(ctx context.Context, staged []stagedItem) ([]stagedItem, bool, error) {
	duplicate := false
	for attempt := 1; ; attempt++ {
		updates, videos := flattenStaged(staged)
		err := c.store.CommitItems(ctx, updates, videos)
		if err == nil {
			return staged, duplicate, nil
		}
		if !errors.Is(err, models.ErrAlreadyProcessed) || attempt == maxCommitAttempts {
			return nil, duplicate, err
		}

		duplicate = true
		remaining := staged[:0:0]
		for _, s := range staged {
			item, err := c.store.GetItem(ctx, s.update.ItemID)
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, duplicate, fmt.Errorf("recheck item %s: %w", s.update.ItemID, err)
			}
			if !item.IsProcessed {
				remaining = append(remaining, s)
			}
		}
		if len(remaining) == 0 {
			return nil, duplicate, nil
		}
		c.logger.Info("retrying commit without concurrently processed items",
			"dropped", len(staged)-len(remaining),
			"remaining", len(remaining))
		staged = remaining
	}
}

// HandleItemCreated processes a single newly created item. If the commit
// fails the item is still marked processed with a failed status so it is not
// retried forever.
func (c *Coordinator) HandleItemCreated(ctx context.Context, itemID string) error {
	item, err := c.store.GetItem(ctx, itemID)
	if errors.Is(err, models.ErrNotFound) {
		c.logger.Warn("created item not found", "item_id", itemID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get item %s: %w", itemID, err)
	}
	if item.IsProcessed {
		c.logger.Debug("item already processed", "item_id", itemID)
		return nil
	}

	logger := c.logger.With("item_id", itemID)

	videos, summary, err := c.extractItem(ctx, *item)
	if err == nil {
		update := models.ItemStatusUpdate{
			ItemID:           item.ID,
			ProcessingStatus: models.ProcessingStatusCompleted,
			Summary:          summary,
			ProcessedAt:      c.now().UTC(),
		}
		err = c.store.CommitItems(ctx, []models.ItemStatusUpdate{update}, videos)
		if err == nil {
			c.metrics.ItemsCommitted(1, len(videos))
			logger.Info("item processed", "total", summary.Total, "processed", summary.Processed, "failed", summary.Failed)
			return nil
		}
		if errors.Is(err, models.ErrAlreadyProcessed) {
			logger.Info("item processed by a concurrent delivery")
			return nil
		}
	}

	logger.Error("item processing failed", "error", err)
	c.recordError(ctx, *item, "", models.ErrorTypeCommitFailed, err)

	// Keep the counts reached before the failure.
	summary.Total = len(item.CandidateURLs())
	failed := models.ItemStatusUpdate{
		ItemID:           item.ID,
		ProcessingStatus: models.ProcessingStatusFailed,
		Summary:          summary,
		ProcessingError:  err.Error(),
		ProcessedAt:      c.now().UTC(),
	}
	if markErr := c.store.MarkItemFailed(ctx, failed); markErr != nil && !errors.Is(markErr, models.ErrAlreadyProcessed) {
		return fmt.Errorf("mark item %s failed: %w", item.ID, markErr)
	}
	return nil
}

// extractItem runs extraction for every candidate URL of the item in order.
// Only user resolution errors abort; URL failures are counted.
func (c *Coordinator) extractItem(ctx context.Context, item models.InboundItem) ([]models.Video, models.ProcessingSummary, error) {
	userID, err := c.users.FindOrCreate(ctx, item.AuthorUsername)
	if err != nil {
		return nil, models.ProcessingSummary{}, fmt.Errorf("resolve author of item %s: %w", item.ID, err)
	}

	urls := item.CandidateURLs()
	summary := models.ProcessingSummary{Total: len(urls)}
	videos := make([]models.Video, 0, len(urls))
	staged := make(map[string]bool, len(urls))

	for _, raw := range urls {
		meta, err := c.extractor.Extract(ctx, raw)
		if err != nil {
			summary.Failed++
			c.metrics.ExtractionFailed(string(metadata.ErrorType(err)))
			c.logger.Info("no metadata for url", "item_id", item.ID, "url", raw, "error", err)
			c.recordError(ctx, item, raw, metadata.ErrorType(err), err)
			continue
		}

		summary.Processed++
		id := VideoID(item.ID, meta.URL)
		if staged[id] {
			continue
		}
		staged[id] = true
		videos = append(videos, models.NewVideo(id, item.ID, userID, *meta, c.now().UTC()))
	}
	return videos, summary, nil
}

func (c *Coordinator) recordError(ctx context.Context, item models.InboundItem, url string, kind models.IngestionErrorType, cause error) {
	if c.errors == nil {
		return
	}
	platform := ""
	if p, ok := metadata.Classify(url); ok {
		platform = string(p)
	}
	rec := models.IngestionError{
		ID:        uuid.NewString(),
		ItemID:    item.ID,
		BatchID:   item.BatchID,
		Platform:  platform,
		ErrorType: kind,
		URL:       url,
		ErrorMsg:  cause.Error(),
		CreatedAt: c.now().UTC(),
	}
	if err := c.errors.Store(ctx, rec); err != nil {
		c.logger.Warn("failed to record ingestion error", "item_id", item.ID, "url", url, "error", err)
	}
}
