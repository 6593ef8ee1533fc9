package inference

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/clipscope/clipscope/internal/memstore"
)

func TestLogCallRecordsSuccessAndError(t *testing.T) {
	repo := &memstore.InferenceLogs{}
	l := NewLogger(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))

	in, out := 120, 40
	ctx, cancel := context.WithCancel(context.Background())
	l.LogCall(ctx, CallParams{
		Provider:     "openai",
		Model:        "gpt-4o",
		Operation:    "video_analysis",
		VideoID:      "v1",
		InputTokens:  &in,
		OutputTokens: &out,
		Latency:      1500 * time.Millisecond,
		Metadata:     map[string]any{"attempt": 1},
	})
	cancel()
	l.LogCall(context.Background(), CallParams{
		Provider:  "bedrock",
		Model:     "amazon.nova-pro-v1:0",
		Operation: "video_analysis",
		Err:       errors.New("throttled"),
	})
	l.Wait()

	logs := repo.All()
	if len(logs) != 2 {
		t.Fatalf("logs = %d, want 2", len(logs))
	}
	byProvider := map[string]int{}
	for i, log := range logs {
		byProvider[log.Provider] = i
	}

	ok := logs[byProvider["openai"]]
	if ok.Status != "success" || ok.ErrorMessage != nil {
		t.Errorf("success log = %+v", ok)
	}
	if ok.LatencyMs == nil || *ok.LatencyMs != 1500 {
		t.Errorf("LatencyMs = %v", ok.LatencyMs)
	}
	if ok.Metadata != `{"attempt":1}` {
		t.Errorf("Metadata = %q", ok.Metadata)
	}

	failed := logs[byProvider["bedrock"]]
	if failed.Status != "error" || failed.ErrorMessage == nil || *failed.ErrorMessage != "throttled" {
		t.Errorf("error log = %+v", failed)
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	l.LogCall(context.Background(), CallParams{Provider: "openai"})
	l.Wait()
}
