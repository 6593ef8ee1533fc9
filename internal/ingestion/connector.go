package ingestion

import (
	"context"

	"github.com/clipscope/clipscope/internal/models"
)

// Source produces inbound items from an external feed. Fetch may return items
// together with an error when only part of the feed could be read.
type Source interface {
	// Name returns the unique identifier for this source.
	Name() string

	// Fetch retrieves items published since the previous call.
	Fetch(ctx context.Context) ([]models.InboundItem, error)
}
