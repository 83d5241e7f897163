// Package cleanup provides the background retention loop.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/wayfarer-ai/wayfarer/pkg/config"
	"github.com/wayfarer-ai/wayfarer/pkg/session"
)

// HistoryPruner deletes persisted sessions past retention. Optional; nil
// disables history pruning.
type HistoryPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service periodically enforces retention:
//   - Expires live sessions whose TTL timer was lost (backstop)
//   - Prunes persisted history past the retention window
//
// All operations are idempotent.
type Service struct {
	sessionCfg config.SessionConfig
	historyCfg config.HistoryConfig
	store      *session.Store
	pruner     HistoryPruner

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service. pruner may be nil.
func NewService(sessionCfg config.SessionConfig, historyCfg config.HistoryConfig, store *session.Store, pruner HistoryPruner) *Service {
	return &Service{
		sessionCfg: sessionCfg,
		historyCfg: historyCfg,
		store:      store,
		pruner:     pruner,
	}
}

// Start launches the background loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"session_ttl", s.sessionCfg.TTL,
		"interval", s.sessionCfg.CleanupInterval,
		"history_retention_days", s.historyCfg.RetentionDays)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.sessionCfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.expireStaleSessions()
	s.pruneHistory(ctx)
}

func (s *Service) expireStaleSessions() {
	count := s.store.ExpireIdle(time.Now())
	if count > 0 {
		slog.Info("Retention: expired stale sessions", "count", count)
	}
}

func (s *Service) pruneHistory(ctx context.Context) {
	if s.pruner == nil || !s.historyCfg.Enabled {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -s.historyCfg.RetentionDays)
	count, err := s.pruner.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: history pruning failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: pruned persisted sessions", "count", count)
	}
}
