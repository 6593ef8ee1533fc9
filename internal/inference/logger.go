package inference

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/clipscope/clipscope/internal/models"
)

// Repository persists inference logs.
type Repository interface {
	Create(ctx context.Context, log models.InferenceLog) error
}

// Logger logs model calls to the database
type Logger struct {
	repo   Repository
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewLogger creates a new inference logger
func NewLogger(repo Repository, logger *slog.Logger) *Logger {
	return &Logger{
		repo:   repo,
		logger: logger,
	}
}

// CallParams describes one model call.
type CallParams struct {
	Provider     string
	Model        string
	Operation    string
	VideoID      string
	InputTokens  *int
	OutputTokens *int
	Latency      time.Duration
	Err          error
	Metadata     map[string]any
}

// LogCall records a model call without blocking the caller.
func (l *Logger) LogCall(ctx context.Context, params CallParams) {
	if l == nil {
		return
	}

	var metadataJSON string
	if params.Metadata != nil {
		if jsonBytes, err := json.Marshal(params.Metadata); err == nil {
			metadataJSON = string(jsonBytes)
		}
	}

	latencyMs := int(params.Latency.Milliseconds())
	log := models.InferenceLog{
		Provider:     params.Provider,
		Model:        params.Model,
		Operation:    params.Operation,
		VideoID:      params.VideoID,
		InputTokens:  params.InputTokens,
		OutputTokens: params.OutputTokens,
		LatencyMs:    &latencyMs,
		Status:       "success",
		Metadata:     metadataJSON,
		CreatedAt:    time.Now().UTC(),
	}
	if params.Err != nil {
		log.Status = "error"
		errMsg := params.Err.Error()
		log.ErrorMessage = &errMsg
	}

	// the analysis may finish before the insert does
	bgCtx := context.WithoutCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.repo.Create(bgCtx, log); err != nil {
			l.logger.Error("failed to log inference call", "error", err)
		}
	}()
}

// Wait blocks until pending writes finish.
func (l *Logger) Wait() {
	if l == nil {
		return
	}
	l.wg.Wait()
}
