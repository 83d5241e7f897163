// Package history persists finalized sessions to PostgreSQL. Live sessions
// never touch the database; only the terminal snapshot is written.
package history

import (
	"context"
	stdsql "database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver for database/sql

	"github.com/wayfarer-ai/wayfarer/pkg/events"
	"github.com/wayfarer-ai/wayfarer/pkg/pipeline"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds PostgreSQL connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the pgx connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Store is the persistence layer. It implements pipeline.Recorder and the
// cleanup service's pruner.
type Store struct {
	db *stdsql.DB
}

// NewStore opens the database, verifies connectivity, and applies pending
// migrations embedded in the binary.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	db, err := stdsql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := runMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pool for health checks.
func (s *Store) DB() *stdsql.DB { return s.db }

// SaveFinalized implements pipeline.Recorder. Saving the same session twice
// overwrites the previous row, so retries are safe.
func (s *Store) SaveFinalized(ctx context.Context, rec pipeline.Record) error {
	sources, err := json.Marshal(rec.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	sections, err := json.Marshal(rec.Sections)
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}
	suggestions, err := json.Marshal(rec.Suggestions)
	if err != nil {
		return fmt.Errorf("marshal suggestions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO finalized_sessions
			(session_id, query, answer, scenario, sources, sections, suggestions, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO UPDATE SET
			query = EXCLUDED.query,
			answer = EXCLUDED.answer,
			scenario = EXCLUDED.scenario,
			sources = EXCLUDED.sources,
			sections = EXCLUDED.sections,
			suggestions = EXCLUDED.suggestions,
			finished_at = EXCLUDED.finished_at`,
		rec.SessionID, rec.Query, rec.Answer, string(rec.Scenario),
		sources, sections, suggestions, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert finalized session: %w", err)
	}
	return nil
}

// Get returns one persisted session.
func (s *Store) Get(ctx context.Context, sessionID string) (pipeline.Record, error) {
	var (
		rec                            pipeline.Record
		scenario                       string
		sources, sections, suggestions []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, query, answer, scenario, sources, sections, suggestions, finished_at
		FROM finalized_sessions WHERE session_id = $1`, sessionID).
		Scan(&rec.SessionID, &rec.Query, &rec.Answer, &scenario,
			&sources, &sections, &suggestions, &rec.FinishedAt)
	if err != nil {
		return pipeline.Record{}, fmt.Errorf("query finalized session: %w", err)
	}
	rec.Scenario = events.Scenario(scenario)
	if err := json.Unmarshal(sources, &rec.Sources); err != nil {
		return pipeline.Record{}, fmt.Errorf("decode sources: %w", err)
	}
	if err := json.Unmarshal(sections, &rec.Sections); err != nil {
		return pipeline.Record{}, fmt.Errorf("decode sections: %w", err)
	}
	if err := json.Unmarshal(suggestions, &rec.Suggestions); err != nil {
		return pipeline.Record{}, fmt.Errorf("decode suggestions: %w", err)
	}
	return rec, nil
}

// DeleteOlderThan removes sessions finalized before the cutoff. Returns the
// number of rows removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM finalized_sessions WHERE finished_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old sessions: %w", err)
	}
	return res.RowsAffected()
}

func runMigrations(db *stdsql.DB, database string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, database, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// Close only the source driver: m.Close() would also close the shared
	// *sql.DB handed to postgres.WithInstance.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("close migration source: %w", err)
	}
	return nil
}
