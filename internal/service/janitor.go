package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/richcast/richcast/internal/timezone"
	"github.com/richcast/richcast/internal/tracker"
)

const (
	defaultJanitorInterval = time.Hour
	defaultRecordRetention = 30 * 24 * time.Hour
)

// Janitor periodically removes old terminal delivery records and stale
// planned schedules.
type Janitor struct {
	deliveries *tracker.Tracker
	manager    *timezone.Manager
	logger     *zap.Logger
	interval   time.Duration
	retention  time.Duration
}

func NewJanitor(
	deliveries *tracker.Tracker,
	manager *timezone.Manager,
	interval time.Duration,
	retention time.Duration,
	logger *zap.Logger,
) (*Janitor, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery tracker is required")
	}
	if manager == nil {
		return nil, fmt.Errorf("timezone manager is required")
	}
	if interval <= 0 {
		interval = defaultJanitorInterval
	}
	if retention <= 0 {
		retention = defaultRecordRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Janitor{
		deliveries: deliveries,
		manager:    manager,
		logger:     logger,
		interval:   interval,
		retention:  retention,
	}, nil
}

func (j *Janitor) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	removed, err := j.deliveries.CleanupOldRecords(ctx, j.retention)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Error("record cleanup failed", zap.Error(err))
		}
		return
	}

	stale := j.manager.CleanupOldSchedules(staleScheduleAge)
	if removed > 0 || stale > 0 {
		j.logger.Info("janitor sweep finished",
			zap.Int("recordsRemoved", removed),
			zap.Int("schedulesRemoved", stale),
		)
	}
}
