// Package analysis runs the generative technical analysis of each video and
// records its state machine: Initializing, then Completed or Failed.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clipscope/clipscope/internal/inference"
	"github.com/clipscope/clipscope/internal/metrics"
	"github.com/clipscope/clipscope/internal/models"
)

const (
	operationVideoAnalysis = "video_analysis"
	failWriteTimeout       = 10 * time.Second
	outcomeFailed          = "failed"
)

// Store is the part of the document store the orchestrator needs.
type Store interface {
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	GetAnalysis(ctx context.Context, videoID string) (*models.Analysis, error)
	PutAnalysis(ctx context.Context, a models.Analysis) error
}

// Fetcher downloads video content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Content, error)
}

// Indexer receives every completed analysis.
type Indexer interface {
	IndexAnalysis(ctx context.Context, video models.Video, a models.Analysis) error
}

// Orchestrator drives one analysis per video.
type Orchestrator struct {
	store     Store
	fetcher   Fetcher
	model     Model
	logger    *slog.Logger
	limiter   *Limiter
	inference *inference.Logger
	indexer   Indexer
	metrics   *metrics.Pipeline
	timeout   time.Duration
	now       func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLimiter bounds concurrent analyses.
func WithLimiter(l *Limiter) Option { return func(o *Orchestrator) { o.limiter = l } }

// WithInferenceLogger records every model call.
func WithInferenceLogger(l *inference.Logger) Option {
	return func(o *Orchestrator) { o.inference = l }
}

// WithIndexer forwards completed analyses to a search index.
func WithIndexer(ix Indexer) Option { return func(o *Orchestrator) { o.indexer = ix } }

// WithMetrics records analysis outcomes.
func WithMetrics(m *metrics.Pipeline) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithTimeout bounds the fetch and model call. Non-positive values keep the
// default.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// NewOrchestrator wires an orchestrator.
func NewOrchestrator(store Store, fetcher Fetcher, model Model, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		fetcher: fetcher,
		model:   model,
		logger:  logger,
		timeout: 540 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run analyzes one video. Once the Initializing record is written every path
// ends in Completed or Failed, including timeouts and cancellation. The
// returned error reports only failures to read or write the records
// themselves.
func (o *Orchestrator) Run(ctx context.Context, videoID string) error {
	logger := o.logger.With("video_id", videoID)

	video, err := o.store.GetVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("get video %s: %w", videoID, err)
	}

	if o.limiter != nil {
		release, err := o.limiter.Acquire(ctx)
		if err != nil {
			return err
		}
		defer release()
	}

	attempts := 1
	prev, err := o.store.GetAnalysis(ctx, videoID)
	switch {
	case err == nil:
		attempts = prev.Metadata.Attempts + 1
	case !errors.Is(err, models.ErrNotFound):
		return fmt.Errorf("get analysis %s: %w", videoID, err)
	}

	start := o.now().UTC()
	initializing := models.Analysis{
		VideoID:              videoID,
		TechStack:            []string{},
		ArchitecturePatterns: []string{},
		BestPractices:        []string{},
		IsProcessing:         true,
		LastUpdated:          start,
		Metadata: models.AnalysisMetadata{
			StartTime: start,
			Attempts:  attempts,
			Model:     o.model.Name(),
		},
	}
	if err := o.store.PutAnalysis(ctx, initializing); err != nil {
		return fmt.Errorf("write initializing analysis %s: %w", videoID, err)
	}
	logger.Info("analysis started", "attempt", attempts, "model", o.model.Name())

	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	completed, err := o.analyze(runCtx, *video, initializing)
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("analysis timed out after %s: %w", o.timeout, err)
		}
		return o.fail(ctx, initializing, err)
	}

	// the caller's context may be gone by now
	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancelWrite()
	if err := o.store.PutAnalysis(writeCtx, completed); err != nil {
		return o.fail(ctx, initializing, fmt.Errorf("write completed analysis: %w", err))
	}

	elapsed := completed.LastUpdated.Sub(start)
	o.metrics.AnalysisFinished(completed.Metadata.Outcome, elapsed)
	logger.Info("analysis completed",
		"outcome", completed.Metadata.Outcome,
		"duration_ms", elapsed.Milliseconds(),
		"tech_stack", len(completed.TechStack),
	)

	if o.indexer != nil {
		if err := o.indexer.IndexAnalysis(writeCtx, *video, completed); err != nil {
			logger.Warn("failed to index analysis", "error", err)
		}
	}
	return nil
}

// analyze fetches the video, calls the model and parses the answer.
func (o *Orchestrator) analyze(ctx context.Context, video models.Video, base models.Analysis) (a models.Analysis, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis panicked: %v", r)
		}
	}()

	content, err := o.fetcher.Fetch(ctx, video.SourceURL)
	if err != nil {
		return a, fmt.Errorf("fetch video content: %w", err)
	}

	callStart := o.now()
	resp, err := o.model.Analyze(ctx, Request{Prompt: BuildPrompt(video), Content: *content})
	call := inference.CallParams{
		Provider:  o.model.Provider(),
		Model:     o.model.Name(),
		Operation: operationVideoAnalysis,
		VideoID:   video.ID,
		Latency:   o.now().Sub(callStart),
		Err:       err,
		Metadata:  map[string]any{"content_bytes": len(content.Data), "attempt": base.Metadata.Attempts},
	}
	if resp != nil {
		call.InputTokens, call.OutputTokens = resp.InputTokens, resp.OutputTokens
	}
	o.inference.LogCall(ctx, call)
	if err != nil {
		return a, fmt.Errorf("model call: %w", err)
	}

	parsed := ParseResponse(resp.Text)
	confidence := Confidence(parsed)
	finished := o.now().UTC()
	durationMs := finished.Sub(base.Metadata.StartTime).Milliseconds()

	a = base
	a.ImplementationOverview = parsed.ImplementationOverview
	a.TechnicalDetails = parsed.TechnicalDetails
	a.TechStack = parsed.TechStack
	a.ArchitecturePatterns = parsed.ArchitecturePatterns
	a.BestPractices = parsed.BestPractices
	a.IsProcessing = false
	a.Error = ""
	a.LastUpdated = finished
	a.Metadata.RawModelResponse = resp.Text
	a.Metadata.Confidence = &confidence
	a.Metadata.ProcessingDurationMs = &durationMs
	a.Metadata.Outcome = string(parsed.Outcome)
	a.Metadata.ContentDigest = content.Digest()
	return a, nil
}

// fail writes the Failed state with a context detached from ctx, so a
// cancelled or timed out run still leaves a terminal record.
func (o *Orchestrator) fail(ctx context.Context, base models.Analysis, cause error) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()

	finished := o.now().UTC()
	durationMs := finished.Sub(base.Metadata.StartTime).Milliseconds()

	failed := base
	failed.IsProcessing = false
	failed.Error = cause.Error()
	failed.LastUpdated = finished
	failed.Metadata.LastError = cause.Error()
	failed.Metadata.ProcessingDurationMs = &durationMs
	failed.Metadata.Outcome = outcomeFailed

	o.metrics.AnalysisFinished(outcomeFailed, finished.Sub(base.Metadata.StartTime))
	o.logger.Error("analysis failed", "video_id", base.VideoID, "error", cause)

	if err := o.store.PutAnalysis(writeCtx, failed); err != nil {
		return fmt.Errorf("write failed analysis %s: %w", base.VideoID, errors.Join(cause, err))
	}
	return nil
}
