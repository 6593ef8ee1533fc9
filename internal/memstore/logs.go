package memstore

import (
	"context"
	"sync"

	"github.com/clipscope/clipscope/internal/models"
)

// IngestionErrors collects ingestion errors in memory.
type IngestionErrors struct {
	mu     sync.Mutex
	errors []models.IngestionError
}

// Store appends an ingestion error.
func (r *IngestionErrors) Store(ctx context.Context, e models.IngestionError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, e)
	return nil
}

// All returns a copy of the recorded errors.
func (r *IngestionErrors) All() []models.IngestionError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.IngestionError(nil), r.errors...)
}

// InferenceLogs collects inference logs in memory.
type InferenceLogs struct {
	mu   sync.Mutex
	logs []models.InferenceLog
}

// Create appends an inference log.
func (r *InferenceLogs) Create(ctx context.Context, log models.InferenceLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log.ID = len(r.logs) + 1
	r.logs = append(r.logs, log)
	return nil
}

// All returns a copy of the recorded logs.
func (r *InferenceLogs) All() []models.InferenceLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.InferenceLog(nil), r.logs...)
}
