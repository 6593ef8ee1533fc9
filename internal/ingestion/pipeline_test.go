package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clipscope/clipscope/internal/memstore"
	"github.com/clipscope/clipscope/internal/models"
)

type staticSource struct {
	name  string
	items []models.InboundItem
	err   error
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Fetch(ctx context.Context) ([]models.InboundItem, error) {
	return append([]models.InboundItem(nil), s.items...), s.err
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []models.BatchReadyMessage
}

func (p *recordingPublisher) PublishBatchReady(ctx context.Context, msg models.BatchReadyMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) all() []models.BatchReadyMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.BatchReadyMessage(nil), p.messages...)
}

func newTestPoller(sources []Source, store PollerStore, pub BatchPublisher) *Poller {
	p := NewPoller(sources, store, pub, testLogger(), DefaultPollerConfig())
	p.now = func() time.Time { return fixedNow }
	return p
}

func TestPollOnceStoresBatchAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	pub := &recordingPublisher{}
	src := &staticSource{name: "test", items: []models.InboundItem{
		{ID: "twitter-1", AuthorUsername: "alice", Text: "new demo", RawURLs: []string{"https://youtu.be/abc"}},
		{ID: "twitter-2", AuthorUsername: "alice", Text: "another", RawURLs: []string{"https://www.loom.com/share/xyz"}},
	}}

	p := newTestPoller([]Source{src}, store, pub)
	p.PollOnce(ctx)

	msgs := pub.all()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].BatchID == "" || msgs[0].Timestamp != "2024-05-01T12:00:00Z" {
		t.Errorf("message = %+v", msgs[0])
	}

	items, err := store.ListPendingItems(ctx, msgs[0].BatchID)
	if err != nil {
		t.Fatalf("ListPendingItems: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("batch holds %d items, want 2", len(items))
	}
}

func TestPollOnceSkipsRepeatedItems(t *testing.T) {
	store := memstore.New()
	pub := &recordingPublisher{}
	src := &staticSource{name: "test", items: []models.InboundItem{
		{ID: "twitter-1", AuthorUsername: "alice", Text: "demo", RawURLs: []string{"https://youtu.be/abc"}},
	}}

	p := newTestPoller([]Source{src}, store, pub)
	p.PollOnce(context.Background())
	p.PollOnce(context.Background())

	batches := make(map[string]bool)
	for _, msg := range pub.all() {
		batches[msg.BatchID] = true
	}
	if len(batches) != 1 {
		t.Errorf("created %d batches, want 1", len(batches))
	}
	items, err := store.ListItems(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("stored %d items, want 1", len(items))
	}
}

func TestPollOnceReannouncesUnsettledBatches(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	pub := &recordingPublisher{}
	src := &staticSource{name: "test", items: []models.InboundItem{
		{ID: "twitter-1", AuthorUsername: "alice", RawURLs: []string{"https://youtu.be/abc"}},
	}}

	p := newTestPoller([]Source{src}, store, pub)
	p.PollOnce(ctx)
	msgs := pub.all()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	batchID := msgs[0].BatchID

	// The first delivery failed; nothing was committed.
	p.PollOnce(ctx)
	msgs = pub.all()
	if len(msgs) != 2 || msgs[1].BatchID != batchID {
		t.Fatalf("messages = %+v, want a second announcement of %s", msgs, batchID)
	}

	update := models.ItemStatusUpdate{ItemID: "twitter-1", ProcessingStatus: models.ProcessingStatusCompleted, ProcessedAt: fixedNow}
	if err := store.CommitItems(ctx, []models.ItemStatusUpdate{update}, nil); err != nil {
		t.Fatalf("CommitItems: %v", err)
	}

	p.PollOnce(ctx)
	if got := len(pub.all()); got != 2 {
		t.Errorf("published %d messages after settling, want 2", got)
	}
	if got := p.Unsettled(); got != 0 {
		t.Errorf("Unsettled = %d, want 0", got)
	}
}

func TestPollOnceKeepsPartialResults(t *testing.T) {
	store := memstore.New()
	pub := &recordingPublisher{}
	src := &staticSource{
		name:  "test",
		items: []models.InboundItem{{ID: "twitter-1", AuthorUsername: "alice", RawURLs: []string{"https://youtu.be/abc"}}},
		err:   errors.New("bob: twitter API error: 404"),
	}

	p := newTestPoller([]Source{src}, store, pub)
	p.PollOnce(context.Background())

	if got := len(pub.all()); got != 1 {
		t.Errorf("published %d messages, want 1", got)
	}
}

func TestPollerStartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := newTestPoller(nil, memstore.New(), &recordingPublisher{})

	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !p.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("second Start should fail while running")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Check THIS out!  https://t.co/abc", "check this out [url]"},
		{"@bob look", "[mention] look"},
		{"  spaced\n\tout ", "spaced out"},
	}
	for _, tt := range tests {
		if got := NormalizeContent(tt.in); got != tt.want {
			t.Errorf("NormalizeContent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestItemFingerprintIgnoresShortenerNoise(t *testing.T) {
	a := models.InboundItem{AuthorUsername: "Alice", Text: "demo https://t.co/1", RawURLs: []string{"https://youtu.be/abc"}}
	b := models.InboundItem{AuthorUsername: "alice", Text: "Demo https://t.co/2", RawURLs: []string{"https://youtu.be/abc"}}
	c := models.InboundItem{AuthorUsername: "alice", Text: "demo", RawURLs: []string{"https://youtu.be/other"}}

	if ComputeItemFingerprint(a) != ComputeItemFingerprint(b) {
		t.Error("reposts of the same link should share a fingerprint")
	}
	if ComputeItemFingerprint(a) == ComputeItemFingerprint(c) {
		t.Error("different links should not share a fingerprint")
	}
}

func TestDeduplicatorCleanup(t *testing.T) {
	d := NewMemoryDeduplicator(time.Hour)
	d.Filter([]models.InboundItem{{ID: "1", Text: "a"}}, fixedNow)
	d.Cleanup(fixedNow.Add(30 * time.Minute))
	if d.Size() != 1 {
		t.Fatalf("Size = %d, want 1", d.Size())
	}
	d.Cleanup(fixedNow.Add(2 * time.Hour))
	if d.Size() != 0 {
		t.Errorf("Size = %d after expiry, want 0", d.Size())
	}
}
