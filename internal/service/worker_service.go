package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/richcast/richcast/internal/domain"
	"github.com/richcast/richcast/internal/observability"
	"github.com/richcast/richcast/internal/provider"
	"github.com/richcast/richcast/internal/queue"
	"github.com/richcast/richcast/internal/ratelimit"
	"github.com/richcast/richcast/internal/tracker"
)

const (
	minWorkerConcurrency = 1
	pushTimeout          = 15 * time.Second
)

// WorkerService consumes category queues and executes deliveries: claim the
// attempt, generate and compose content, push it, and record the outcome.
type WorkerService struct {
	deliveries  *tracker.Tracker
	consumer    queue.Consumer
	generator   provider.ContentGenerator
	composer    provider.ImageComposer
	transport   provider.Transport
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
}

func NewWorkerService(
	deliveries *tracker.Tracker,
	consumer queue.Consumer,
	generator provider.ContentGenerator,
	composer provider.ImageComposer,
	transport provider.Transport,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery tracker is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if generator == nil || composer == nil || transport == nil {
		return nil, fmt.Errorf("generator, composer, and transport are required")
	}
	if rateLimiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		deliveries:  deliveries,
		consumer:    consumer,
		generator:   generator,
		composer:    composer,
		transport:   transport,
		rateLimiter: rateLimiter,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes category queues until context cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := s.consumer.Consume(groupCtx, queueName, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processMessage(ctx context.Context, msg queue.DeliveryMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	logger := observability.WithContextLogger(s.logger, ctx)

	attempt, err := s.deliveries.StartAttempt(ctx, msg.DeliveryID)
	if err != nil {
		// Terminal, in-flight, or vanished deliveries are acked and skipped;
		// redelivering them cannot help.
		if errors.Is(err, domain.ErrNotFound) ||
			errors.Is(err, domain.ErrConflict) ||
			errors.Is(err, domain.ErrPermanentlyFailed) {
			logger.Warn("skipping delivery message",
				zap.String("deliveryId", msg.DeliveryID),
				zap.Error(err),
			)
			return nil
		}
		return fmt.Errorf("failed to start attempt: %w", err)
	}

	categoryName := strings.ToLower(msg.Category.String())
	s.metrics.IncWorkerInFlight(categoryName)
	defer s.metrics.DecWorkerInFlight(categoryName)

	if err := s.rateLimiter.Wait(ctx, categoryName); err != nil {
		failure := tracker.Failure{Message: fmt.Sprintf("system error: rate limiter wait: %v", err)}
		if _, recordErr := s.deliveries.RecordFailure(ctx, msg.DeliveryID, attempt.ID, failure); recordErr != nil {
			return fmt.Errorf("rate limiter wait failed and recording failed: %w", recordErr)
		}
		return nil
	}

	response, pushErr := s.executeDelivery(ctx, msg)

	if pushErr == nil {
		var responseMs int64
		if response != nil {
			responseMs = response.ResponseMs
		}
		if _, err := s.deliveries.RecordSuccess(ctx, msg.DeliveryID, attempt.ID, responseMs); err != nil {
			return fmt.Errorf("failed to record success: %w", err)
		}
		s.metrics.IncDeliverySent(categoryName)
		return nil
	}

	failure := tracker.Failure{Message: pushErr.Error()}
	if response != nil {
		failure.ResponseMs = response.ResponseMs
	}
	var transportErr *provider.TransportError
	if errors.As(pushErr, &transportErr) {
		failure.RetryAfterSec = transportErr.RetryAfterSec
	}
	// When the message text classifies as nothing usable, the transport's
	// transient verdict decides retryability.
	if domain.ClassifyError(failure.Message) == domain.ErrorKindUnknown && provider.IsTransient(pushErr) {
		failure.Kind = domain.ErrorKindSystem
	}

	record, err := s.deliveries.RecordFailure(ctx, msg.DeliveryID, attempt.ID, failure)
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}

	if record.Status == domain.StatusRetrying {
		s.metrics.IncRetryScheduled(categoryName)
	} else {
		s.metrics.IncDeliveryFailed(categoryName, string(record.ErrorKind))
	}
	return nil
}

type deliveryResult struct {
	ResponseMs int64
}

// executeDelivery runs generate, compose, push with a bounded push timeout.
func (s *WorkerService) executeDelivery(ctx context.Context, msg queue.DeliveryMessage) (*deliveryResult, error) {
	content, err := s.generator.Generate(ctx, msg.Category, msg.UserID)
	if err != nil {
		return nil, fmt.Errorf("content generation failed: %w", err)
	}

	imagePath, err := s.composer.Compose(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("image composition failed: %w", err)
	}

	if err := s.deliveries.AttachContent(ctx, msg.DeliveryID, content.TemplateID, imagePath, content.Title); err != nil {
		s.logger.Warn("failed to attach content metadata",
			zap.String("deliveryId", msg.DeliveryID),
			zap.Error(err),
		)
	}

	pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	pushStart := s.now()
	_, pushErr := s.transport.Push(pushCtx, msg.UserID, content, imagePath)
	elapsed := s.now().Sub(pushStart)
	s.metrics.ObserveDeliverySendDuration(strings.ToLower(msg.Category.String()), elapsed)
	result := &deliveryResult{ResponseMs: elapsed.Milliseconds()}

	if pushErr != nil {
		if errors.Is(pushErr, context.DeadlineExceeded) {
			return result, fmt.Errorf("push timed out after %s: %w", pushTimeout, pushErr)
		}
		return result, pushErr
	}
	return result, nil
}
