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
	"github.com/richcast/richcast/internal/tracker"
)

const (
	defaultRetryScanInterval = 15 * time.Second
	defaultRetryScanLimit    = 100
)

// RetryScanner periodically re-enqueues deliveries whose retry backoff has
// elapsed.
type RetryScanner struct {
	deliveries *tracker.Tracker
	publisher  queue.Publisher
	logger     *zap.Logger
	metrics    *observability.Metrics
	interval   time.Duration
	limit      int
}

func NewRetryScanner(
	deliveries *tracker.Tracker,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*RetryScanner, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery tracker is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultRetryScanInterval
	}
	if limit <= 0 {
		limit = defaultRetryScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScanner{
		deliveries: deliveries,
		publisher:  publisher,
		logger:     logger,
		interval:   interval,
		limit:      limit,
	}, nil
}

func (s *RetryScanner) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *RetryScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so already-due retries do not wait for the first ticker edge.
	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retry scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("retry scanner scan failed", zap.Error(err))
			}
		}
	}
}

func (s *RetryScanner) scanDue(ctx context.Context) error {
	dueDeliveries, err := s.deliveries.GetPendingRetries(ctx, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due retries: %w", err)
	}
	s.metrics.SetPendingRetryQueueDepth(len(dueDeliveries))

	for i := range dueDeliveries {
		record := dueDeliveries[i]
		msg := queue.DeliveryMessage{
			DeliveryID:    record.ID,
			CorrelationID: uuid.NewString(),
			UserID:        record.UserID,
			Category:      record.Category,
			Timezone:      record.Timezone,
			Priority:      queuePriorityForRetry(record.RetryCount),
		}

		queueName := queue.QueueName(record.Category)
		if err := s.publisher.Publish(ctx, queueName, msg); err != nil {
			s.logger.Error("failed to enqueue retry delivery",
				zap.String("deliveryId", record.ID),
				zap.String("queue", queueName),
				zap.Error(err),
			)
			continue
		}

		if err := s.deliveries.ClearNextRetry(ctx, record.ID); err != nil {
			s.logger.Error("failed to clear next retry timestamp after enqueue",
				zap.String("deliveryId", record.ID),
				zap.Error(err),
			)
			continue
		}
	}

	return nil
}

// queuePriorityForRetry bumps late retries so they do not starve behind a
// fresh broadcast wave.
func queuePriorityForRetry(retryCount int) domain.Priority {
	if retryCount >= 2 {
		return domain.PriorityHigh
	}
	return domain.PriorityNormal
}
