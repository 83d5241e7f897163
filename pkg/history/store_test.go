package history

import (
	"context"
	stdsql "database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wayfarer-ai/wayfarer/pkg/blocks"
	"github.com/wayfarer-ai/wayfarer/pkg/events"
	"github.com/wayfarer-ai/wayfarer/pkg/pipeline"
)

// newTestStore spins up a PostgreSQL testcontainer and opens a Store on it.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in -short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("wayfarer_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, runMigrations(db, "wayfarer_test"))

	store := &Store{db: db}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRecord(id string, finishedAt time.Time) pipeline.Record {
	return pipeline.Record{
		SessionID: id,
		Query:     "hotels in lisbon",
		Answer:    "Here are some options.",
		Scenario:  events.ScenarioHotelBrowse,
		Sources: []blocks.Source{
			{URL: "https://example.com/a", Title: "A", Snippet: "snippet"},
		},
		Sections: []blocks.Section{
			{Title: "How I approached this", Content: "Compared recent reviews.", Kind: "explanation"},
		},
		Suggestions: []string{"What about apartments?"},
		FinishedAt:  finishedAt,
	}
}

func TestSaveFinalizedRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("sess-1", time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, store.SaveFinalized(ctx, rec))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Query, got.Query)
	assert.Equal(t, rec.Answer, got.Answer)
	assert.Equal(t, rec.Scenario, got.Scenario)
	assert.Equal(t, rec.Sources, got.Sources)
	assert.Equal(t, rec.Sections, got.Sections)
	assert.Equal(t, rec.Suggestions, got.Suggestions)
}

func TestSaveFinalizedIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("sess-2", time.Now().UTC())
	require.NoError(t, store.SaveFinalized(ctx, rec))

	rec.Answer = "Updated answer."
	require.NoError(t, store.SaveFinalized(ctx, rec))

	got, err := store.Get(ctx, "sess-2")
	require.NoError(t, err)
	assert.Equal(t, "Updated answer.", got.Answer)
}

func TestDeleteOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := sampleRecord("sess-old", time.Now().UTC().AddDate(0, 0, -40))
	fresh := sampleRecord("sess-fresh", time.Now().UTC())
	require.NoError(t, store.SaveFinalized(ctx, old))
	require.NoError(t, store.SaveFinalized(ctx, fresh))

	removed, err := store.DeleteOlderThan(ctx, time.Now().UTC().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.Get(ctx, "sess-old")
	assert.Error(t, err)
	_, err = store.Get(ctx, "sess-fresh")
	assert.NoError(t, err)
}
