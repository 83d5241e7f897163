package cleanup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-ai/wayfarer/pkg/config"
	"github.com/wayfarer-ai/wayfarer/pkg/session"
)

type countingPruner struct{ calls atomic.Int32 }

func (p *countingPruner) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	p.calls.Add(1)
	return 2, nil
}

func TestServiceRunsImmediatelyAndOnTicks(t *testing.T) {
	pruner := &countingPruner{}
	svc := NewService(
		config.SessionConfig{TTL: time.Minute, CleanupInterval: 20 * time.Millisecond},
		config.HistoryConfig{Enabled: true, RetentionDays: 30},
		session.NewStore(time.Minute),
		pruner,
	)

	svc.Start(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool {
		return pruner.calls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServiceStopWaits(t *testing.T) {
	svc := NewService(
		config.SessionConfig{TTL: time.Minute, CleanupInterval: time.Hour},
		config.HistoryConfig{},
		session.NewStore(time.Minute),
		nil,
	)
	svc.Start(context.Background())
	svc.Stop()

	select {
	case <-svc.done:
	default:
		t.Fatal("done channel not closed after Stop")
	}
}

func TestServiceDisabledHistorySkipsPruner(t *testing.T) {
	pruner := &countingPruner{}
	svc := NewService(
		config.SessionConfig{TTL: time.Minute, CleanupInterval: time.Hour},
		config.HistoryConfig{Enabled: false},
		session.NewStore(time.Minute),
		pruner,
	)
	svc.runAll(context.Background())
	assert.Equal(t, int32(0), pruner.calls.Load())
}
