package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richcast/richcast/internal/domain"
	"github.com/richcast/richcast/internal/observability"
	"github.com/richcast/richcast/internal/queue"
	"github.com/richcast/richcast/internal/timezone"
	"github.com/richcast/richcast/internal/tracker"
)

const (
	defaultCoordinatorInterval = time.Minute
	defaultDeliveryBatchSize   = 50
	staleScheduleAge           = 24 * time.Hour
)

var scheduledCategories = []domain.Category{
	domain.CategoryMotivation,
	domain.CategoryNews,
	domain.CategoryGreeting,
}

// Coordinator glues timezone planning to delivery execution: it plans
// per-timezone schedules, and when one comes due it fans the group out into
// tracked delivery records and category queue messages.
type Coordinator struct {
	manager    *timezone.Manager
	deliveries *tracker.Tracker
	publisher  queue.Publisher
	logger     *zap.Logger
	metrics    *observability.Metrics
	interval   time.Duration
	batchSize  int
	now        func() time.Time
}

func NewCoordinator(
	manager *timezone.Manager,
	deliveries *tracker.Tracker,
	publisher queue.Publisher,
	interval time.Duration,
	batchSize int,
	logger *zap.Logger,
) (*Coordinator, error) {
	if manager == nil {
		return nil, fmt.Errorf("timezone manager is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("delivery tracker is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultCoordinatorInterval
	}
	if batchSize <= 0 {
		batchSize = defaultDeliveryBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Coordinator{
		manager:    manager,
		deliveries: deliveries,
		publisher:  publisher,
		logger:     logger,
		interval:   interval,
		batchSize:  batchSize,
		now:        time.Now,
	}, nil
}

func (c *Coordinator) SetMetrics(metrics *observability.Metrics) {
	if c == nil {
		return
	}
	c.metrics = metrics
}

func (c *Coordinator) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := c.tick(ctx); err != nil && ctx.Err() == nil {
		c.logger.Error("coordinator initial tick failed", zap.Error(err))
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Error("coordinator tick failed", zap.Error(err))
			}
		}
	}
}

func (c *Coordinator) tick(ctx context.Context) error {
	if c.manager.ScheduleCount() == 0 {
		if err := c.planAll(ctx); err != nil {
			return err
		}
	}

	due := c.manager.DueSchedules(c.now().UTC())
	for i := range due {
		if err := c.dispatch(ctx, due[i]); err != nil {
			c.logger.Error("failed to dispatch due schedule",
				zap.String("timezone", due[i].Timezone),
				zap.String("category", string(due[i].Category)),
				zap.Error(err),
			)
		}
	}

	c.manager.CleanupOldSchedules(staleScheduleAge)
	return nil
}

func (c *Coordinator) planAll(ctx context.Context) error {
	for _, category := range scheduledCategories {
		schedules, err := c.manager.OptimalDeliverySchedule(ctx, category)
		if err != nil {
			return fmt.Errorf("planning schedules for %s: %w", category, err)
		}
		for range schedules {
			c.metrics.IncSchedulesPlanned(string(category))
		}
		if len(schedules) > 0 {
			c.logger.Info("schedules planned",
				zap.String("category", string(category)),
				zap.Int("count", len(schedules)),
			)
		}
	}
	return nil
}

// dispatch fans one due schedule out to the category queue in batches. Users
// whose delivery already reached a terminal or in-flight state are skipped.
func (c *Coordinator) dispatch(ctx context.Context, schedule domain.DeliverySchedule) error {
	correlationID := uuid.NewString()
	published := 0

	for start := 0; start < len(schedule.UserIDs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(schedule.UserIDs) {
			end = len(schedule.UserIDs)
		}

		for _, userID := range schedule.UserIDs[start:end] {
			record, err := c.deliveries.CreateDeliveryRecord(ctx, &domain.DeliveryRecord{
				UserID:      userID,
				Category:    schedule.Category,
				Timezone:    schedule.Timezone,
				ScheduledAt: schedule.DeliverAtUTC,
			})
			if err != nil {
				c.logger.Error("failed to create delivery record",
					zap.String("userId", userID),
					zap.String("category", string(schedule.Category)),
					zap.Error(err),
				)
				continue
			}
			if record.Status != domain.StatusPending {
				continue
			}

			msg := queue.DeliveryMessage{
				DeliveryID:    record.ID,
				CorrelationID: correlationID,
				UserID:        userID,
				Category:      schedule.Category,
				Timezone:      schedule.Timezone,
				Priority:      schedule.Priority,
			}
			if err := c.publisher.Publish(ctx, queue.QueueName(schedule.Category), msg); err != nil {
				c.logger.Error("failed to enqueue delivery",
					zap.String("deliveryId", record.ID),
					zap.Error(err),
				)
				continue
			}
			published++
		}
	}

	c.logger.Info("schedule dispatched",
		zap.String("timezone", schedule.Timezone),
		zap.String("category", string(schedule.Category)),
		zap.String("correlationId", correlationID),
		zap.Int("users", len(schedule.UserIDs)),
		zap.Int("published", published),
	)
	return nil
}
