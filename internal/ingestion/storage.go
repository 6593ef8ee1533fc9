package ingestion

import (
	"context"

	"github.com/clipscope/clipscope/internal/models"
)

// ItemStore is the part of the document store the coordinator needs.
type ItemStore interface {
	// ListItemsByBatch returns every item of a batch, processed or not.
	ListItemsByBatch(ctx context.Context, batchID string) ([]models.InboundItem, error)

	// ListPendingItems returns the items of a batch with IsProcessed == false.
	ListPendingItems(ctx context.Context, batchID string) ([]models.InboundItem, error)

	// GetItem returns one item or models.ErrNotFound.
	GetItem(ctx context.Context, id string) (*models.InboundItem, error)

	// CommitItems atomically applies the status updates and inserts the
	// videos. It returns models.ErrAlreadyProcessed, writing nothing, when any
	// item in the group was already processed.
	CommitItems(ctx context.Context, updates []models.ItemStatusUpdate, videos []models.Video) error

	// MarkItemFailed marks one item processed with a failure status.
	MarkItemFailed(ctx context.Context, update models.ItemStatusUpdate) error
}

// ItemWriter stores items produced by a polling source.
type ItemWriter interface {
	CreateItems(ctx context.Context, items []models.InboundItem) error
}

// ErrorRecorder persists per-URL extraction failures.
type ErrorRecorder interface {
	Store(ctx context.Context, e models.IngestionError) error
}

// MetadataExtractor turns one URL into video metadata.
type MetadataExtractor interface {
	Extract(ctx context.Context, url string) (*models.VideoMetadata, error)
}

// UserResolver maps an author username onto an internal user id.
type UserResolver interface {
	FindOrCreate(ctx context.Context, username string) (string, error)
}

// BatchPublisher announces that a batch of items is ready for processing.
type BatchPublisher interface {
	PublishBatchReady(ctx context.Context, msg models.BatchReadyMessage) error
}
