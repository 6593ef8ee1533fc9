package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/clipscope/clipscope/internal/models"
)

// startPostgres launches a disposable Postgres container. The test is skipped
// under -short or when no container runtime is reachable.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "clipscope",
				"POSTGRES_PASSWORD": "clipscope",
				"POSTGRES_DB":       "clipscope",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("container runtime unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	return fmt.Sprintf("postgres://clipscope:clipscope@%s:%s/clipscope?sslmode=disable", host, port.Port())
}

func TestPostgresStore(t *testing.T) {
	url := startPostgres(t)
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.URL = url
	db, err := Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	defer db.Close()

	if err := RunMigrations(ctx, db, DialectPostgres, quietLogger()); err != nil {
		t.Fatalf("RunMigrations returned error: %v", err)
	}
	s := NewStore(db, DialectPostgres)

	t.Run("concurrent upserts converge", func(t *testing.T) {
		var wg sync.WaitGroup
		ids := make([]string, 8)
		errs := make([]error, 8)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				now := time.Now()
				ids[i], errs[i] = s.UpsertUser(ctx, models.User{ID: uuid.NewString(), Username: "bob", CreatedAt: now, UpdatedAt: now})
			}(i)
		}
		wg.Wait()

		for i := range ids {
			if errs[i] != nil {
				t.Fatalf("UpsertUser returned error: %v", errs[i])
			}
			if ids[i] != ids[0] {
				t.Fatalf("expected all ids to match, got %q and %q", ids[0], ids[i])
			}
		}
		count, err := s.CountUsersByUsername(ctx, "bob")
		if err != nil {
			t.Fatalf("CountUsersByUsername returned error: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected one user, got %d", count)
		}
	})

	t.Run("guarded commit", func(t *testing.T) {
		userID, err := s.UpsertUser(ctx, models.User{ID: uuid.NewString(), Username: "carol", CreatedAt: time.Now(), UpdatedAt: time.Now()})
		if err != nil {
			t.Fatalf("UpsertUser returned error: %v", err)
		}
		if err := s.CreateItems(ctx, []models.InboundItem{{ID: "pg-i1", BatchID: "pg-b1", AuthorUsername: "carol", RawURLs: []string{}, CreatedAt: time.Now()}}); err != nil {
			t.Fatalf("CreateItems returned error: %v", err)
		}

		update := []models.ItemStatusUpdate{{ItemID: "pg-i1", ProcessingStatus: models.ProcessingStatusCompleted, ProcessedAt: time.Now()}}
		if err := s.CommitItems(ctx, update, []models.Video{testVideo("pg-v1", "pg-i1", userID)}); err != nil {
			t.Fatalf("CommitItems returned error: %v", err)
		}
		err = s.CommitItems(ctx, update, []models.Video{testVideo("pg-v2", "pg-i1", userID)})
		if !errors.Is(err, models.ErrAlreadyProcessed) {
			t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
		}
		if _, err := s.GetVideo(ctx, "pg-v2"); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("expected pg-v2 to be rolled back, got %v", err)
		}
	})

	t.Run("listener receives creation events", func(t *testing.T) {
		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		got := make(chan Notification, 1)
		l := NewListener(url, []string{ChannelItemsCreated}, quietLogger())
		go func() {
			_ = l.Run(listenCtx, func(n Notification) { got <- n })
		}()

		deadline := time.After(10 * time.Second)
		for attempt := 0; ; attempt++ {
			id := fmt.Sprintf("pg-notify-%d", attempt)
			if err := s.CreateItems(ctx, []models.InboundItem{{ID: id, BatchID: "pg-b2", AuthorUsername: "carol", CreatedAt: time.Now()}}); err != nil {
				t.Fatalf("CreateItems returned error: %v", err)
			}
			select {
			case n := <-got:
				if n.Channel != ChannelItemsCreated || n.ID == "" {
					t.Fatalf("unexpected notification: %+v", n)
				}
				return
			case <-time.After(500 * time.Millisecond):
			case <-deadline:
				t.Fatal("timed out waiting for notification")
			}
		}
	})
}
