package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffFactor: 2}
}

func TestTwitterSourceFetch(t *testing.T) {
	var sinceIDs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.URL.Path == "/users/by/username/alice":
			w.Write([]byte(`{"data":{"id":"42"}}`))
		case r.URL.Path == "/users/42/tweets":
			sinceIDs = append(sinceIDs, r.URL.Query().Get("since_id"))
			w.Write([]byte(`{"data":[
				{"id":"1009","text":"demo https://t.co/a","author_id":"42","created_at":"2024-05-01T10:00:00Z",
				 "entities":{"urls":[{"url":"https://t.co/a","expanded_url":"https://youtu.be/abc"}]}},
				{"id":"998","text":"older","author_id":"42","created_at":"2024-05-01T09:00:00Z"}
			]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewTwitterSource("token", []string{"@alice"}, testLogger(), WithTwitterBaseURL(srv.URL), WithTwitterRetry(fastRetry()))

	items, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	first := items[0]
	if first.ID != "twitter-1009" || first.AuthorUsername != "alice" || first.AuthorExternalID != "42" {
		t.Errorf("item = %+v", first)
	}
	if len(first.RawURLs) != 1 || first.RawURLs[0] != "https://youtu.be/abc" {
		t.Errorf("RawURLs = %v", first.RawURLs)
	}
	if !first.CreatedAt.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", first.CreatedAt)
	}

	if _, err := src.Fetch(context.Background()); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if len(sinceIDs) != 2 || sinceIDs[0] != "" || sinceIDs[1] != "1009" {
		t.Errorf("since_id sequence = %v", sinceIDs)
	}
}

func TestTwitterSourceRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/users/by/username/") {
			w.Write([]byte(`{"data":{"id":"42"}}`))
			return
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	src := NewTwitterSource("token", []string{"alice"}, testLogger(), WithTwitterBaseURL(srv.URL), WithTwitterRetry(fastRetry()))
	if _, err := src.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestTwitterSourceClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	src := NewTwitterSource("token", []string{"alice", "bob"}, testLogger(), WithTwitterBaseURL(srv.URL), WithTwitterRetry(fastRetry()))
	items, err := src.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(items) != 0 {
		t.Errorf("items = %d", len(items))
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want one per account", calls.Load())
	}
	if !strings.Contains(err.Error(), "alice") || !strings.Contains(err.Error(), "bob") {
		t.Errorf("error should name both accounts: %v", err)
	}
}

func TestNewerTweetID(t *testing.T) {
	tests := []struct{ a, b, want string }{
		{"", "5", "5"},
		{"99", "100", "100"},
		{"123", "122", "123"},
	}
	for _, tt := range tests {
		if got := newerTweetID(tt.a, tt.b); got != tt.want {
			t.Errorf("newerTweetID(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}
