// Package trigger routes creation and batch-ready events to their handlers,
// whether they arrive as push deliveries or database notifications.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clipscope/clipscope/internal/models"
)

// Kind names an event type.
type Kind string

const (
	KindBatchReady     Kind = "batch_ready"
	KindItemCreated    Kind = "item_created"
	KindVideoCreated   Kind = "video_created"
	KindCommentCreated Kind = "comment_created"
)

// ErrNoHandler is returned when no handler is registered for a kind.
var ErrNoHandler = errors.New("no handler registered")

// Event is one trigger delivery.
type Event struct {
	Kind      Kind
	ID        string
	Payload   []byte
	MessageID string
}

// Handler processes one event. A returned error asks for redelivery where
// the transport supports it.
type Handler func(ctx context.Context, ev Event) error

type registration struct {
	handler Handler
	timeout time.Duration
}

// HandlerOption customizes a registration.
type HandlerOption func(*registration)

// WithTimeout bounds each handler invocation.
func WithTimeout(d time.Duration) HandlerOption {
	return func(r *registration) { r.timeout = d }
}

// Dispatcher holds one handler per kind.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Kind]registration
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{handlers: make(map[Kind]registration), logger: logger}
}

// Register sets the handler for kind, replacing any previous one.
func (d *Dispatcher) Register(kind Kind, h Handler, opts ...HandlerOption) {
	reg := registration{handler: h}
	for _, opt := range opts {
		opt(&reg)
	}
	d.mu.Lock()
	d.handlers[kind] = reg
	d.mu.Unlock()
}

// Registered reports whether kind has a handler.
func (d *Dispatcher) Registered(kind Kind) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[kind]
	return ok
}

// Dispatch runs the handler synchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	d.mu.RLock()
	reg, ok := d.handlers[ev.Kind]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w for %s", ErrNoHandler, ev.Kind)
	}

	if reg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, reg.timeout)
		defer cancel()
	}

	start := time.Now()
	err := reg.handler(ctx, ev)
	d.logger.Debug("trigger handled",
		"kind", ev.Kind,
		"id", ev.ID,
		"message_id", ev.MessageID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
	return err
}

// Submit runs the handler in the background. Errors are logged; there is no
// redelivery.
func (d *Dispatcher) Submit(ctx context.Context, ev Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.Dispatch(ctx, ev); err != nil {
			d.logger.Error("trigger handler failed", "kind", ev.Kind, "id", ev.ID, "error", err)
		}
	}()
}

// Wait blocks until submitted events finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// PublishBatchReady submits a batch-ready event, letting the dispatcher act
// as the in-process queue behind an ingestion source.
func (d *Dispatcher) PublishBatchReady(ctx context.Context, msg models.BatchReadyMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode batch-ready message: %w", err)
	}
	d.Submit(ctx, Event{Kind: KindBatchReady, ID: msg.BatchID, Payload: payload})
	return nil
}

// DecodeBatchReady reads a batch-ready payload.
func DecodeBatchReady(ev Event) (models.BatchReadyMessage, error) {
	var msg models.BatchReadyMessage
	if err := json.Unmarshal(ev.Payload, &msg); err != nil {
		return msg, fmt.Errorf("decode batch-ready message: %w", err)
	}
	return msg, nil
}
