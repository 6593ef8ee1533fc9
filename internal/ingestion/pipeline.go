package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipscope/clipscope/internal/models"
)

// PollerStore stores polled items and reports which are still unprocessed.
type PollerStore interface {
	ItemWriter
	ListPendingItems(ctx context.Context, batchID string) ([]models.InboundItem, error)
}

// Poller periodically reads every source, stores the new items as one batch
// per source and announces each batch. Batches that still hold pending items
// at the next tick are announced again.
type Poller struct {
	sources   []Source
	store     PollerStore
	publisher BatchPublisher
	dedup     *MemoryDeduplicator
	logger    *slog.Logger
	config    PollerConfig
	now       func() time.Time
	newID     func() string
	mu        sync.Mutex
	running   bool
	unsettled map[string]struct{}
}

// PollerConfig holds configuration for the poller.
type PollerConfig struct {
	PollInterval      time.Duration
	ConcurrentFetches int
	DedupWindow       time.Duration
}

// DefaultPollerConfig returns sensible defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		PollInterval:      2 * time.Minute,
		ConcurrentFetches: 2,
		DedupWindow:       24 * time.Hour,
	}
}

// NewPoller creates a poller.
func NewPoller(sources []Source, store PollerStore, publisher BatchPublisher, logger *slog.Logger, config PollerConfig) *Poller {
	if config.ConcurrentFetches <= 0 {
		config.ConcurrentFetches = 1
	}
	return &Poller{
		sources:   sources,
		store:     store,
		publisher: publisher,
		dedup:     NewMemoryDeduplicator(config.DedupWindow),
		logger:    logger,
		config:    config,
		now:       time.Now,
		newID:     uuid.NewString,
		unsettled: make(map[string]struct{}),
	}
}

// Start polls until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller already running")
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.logger.Info("starting source poller",
		"sources", len(p.sources),
		"poll_interval", p.config.PollInterval,
	)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.PollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller shutting down")
			return ctx.Err()
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce re-announces unsettled batches, then reads all sources
// concurrently, bounded by ConcurrentFetches.
func (p *Poller) PollOnce(ctx context.Context) {
	p.reannounce(ctx)

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, p.config.ConcurrentFetches)

	for _, src := range p.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if err := p.pollSource(ctx, src); err != nil {
				p.logger.Error("source poll failed", "source", src.Name(), "error", err)
			}
		}(src)
	}
	wg.Wait()

	p.dedup.Cleanup(p.now())
}

func (p *Poller) pollSource(ctx context.Context, src Source) error {
	start := p.now()

	items, fetchErr := src.Fetch(ctx)
	if fetchErr != nil {
		p.logger.Warn("source fetch incomplete", "source", src.Name(), "error", fetchErr, "items", len(items))
	}

	fetched := len(items)
	items = p.dedup.Filter(items, p.now())
	if len(items) == 0 {
		p.logger.Info("no new items", "source", src.Name(), "fetched", fetched)
		return fetchErr
	}

	batchID := p.newID()
	for i := range items {
		items[i].BatchID = batchID
	}

	if err := p.store.CreateItems(ctx, items); err != nil {
		return fmt.Errorf("store items: %w", err)
	}
	p.track(batchID)

	if err := p.publish(ctx, batchID); err != nil {
		return err
	}

	p.logger.Info("batch published",
		"source", src.Name(),
		"batch_id", batchID,
		"items", len(items),
		"duplicates", fetched-len(items),
		"duration", p.now().Sub(start),
	)
	return fetchErr
}

func (p *Poller) publish(ctx context.Context, batchID string) error {
	msg := models.BatchReadyMessage{BatchID: batchID, Timestamp: p.now().UTC().Format(time.RFC3339)}
	if err := p.publisher.PublishBatchReady(ctx, msg); err != nil {
		return fmt.Errorf("publish batch %s: %w", batchID, err)
	}
	return nil
}

func (p *Poller) track(batchID string) {
	p.mu.Lock()
	p.unsettled[batchID] = struct{}{}
	p.mu.Unlock()
}

// reannounce publishes again every tracked batch that still has pending
// items, and forgets the ones that are fully processed. Deliveries that
// failed or were cut short by shutdown are retried this way.
func (p *Poller) reannounce(ctx context.Context) {
	p.mu.Lock()
	batchIDs := make([]string, 0, len(p.unsettled))
	for id := range p.unsettled {
		batchIDs = append(batchIDs, id)
	}
	p.mu.Unlock()

	for _, batchID := range batchIDs {
		pending, err := p.store.ListPendingItems(ctx, batchID)
		if err != nil {
			p.logger.Warn("check unsettled batch", "batch_id", batchID, "error", err)
			continue
		}
		if len(pending) == 0 {
			p.mu.Lock()
			delete(p.unsettled, batchID)
			p.mu.Unlock()
			continue
		}
		p.logger.Warn("re-announcing unsettled batch", "batch_id", batchID, "pending", len(pending))
		if err := p.publish(ctx, batchID); err != nil {
			p.logger.Error("re-announce failed", "batch_id", batchID, "error", err)
		}
	}
}

// Unsettled returns how many published batches still await processing.
func (p *Poller) Unsettled() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.unsettled)
}

// IsRunning returns whether the poller loop is active.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
