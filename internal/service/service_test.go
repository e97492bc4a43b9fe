package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/richcast/richcast/internal/domain"
	"github.com/richcast/richcast/internal/provider"
	"github.com/richcast/richcast/internal/queue"
	"github.com/richcast/richcast/internal/repository"
	"github.com/richcast/richcast/internal/timezone"
	"github.com/richcast/richcast/internal/tracker"
)

type publishedMessage struct {
	queue string
	msg   queue.DeliveryMessage
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	publishFn func(ctx context.Context, queueName string, msg queue.DeliveryMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.DeliveryMessage) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, queueName, msg); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{queue: queueName, msg: msg})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) messages() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedMessage, len(f.published))
	copy(out, f.published)
	return out
}

type fakeTransport struct {
	pushFn func(ctx context.Context, userID string, content *provider.GeneratedContent, imagePath string) (*provider.PushResponse, error)
}

func (f *fakeTransport) Push(ctx context.Context, userID string, content *provider.GeneratedContent, imagePath string) (*provider.PushResponse, error) {
	if f.pushFn != nil {
		return f.pushFn(ctx, userID, content, imagePath)
	}
	return &provider.PushResponse{StatusCode: 200}, nil
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, category string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, category string) (bool, error) { return true, nil }

func (f *fakeRateLimiter) Wait(ctx context.Context, category string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, category)
	}
	return nil
}

type fakeConsumer struct{}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

func newTrackerForTest(t *testing.T) *tracker.Tracker {
	t.Helper()
	tr, err := tracker.NewTracker(repository.NewMemoryDeliveryRepo(), domain.DefaultRetryPolicy(), nil)
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	return tr
}

func newWorkerForTest(t *testing.T, deliveries *tracker.Tracker, transport provider.Transport, limiter *fakeRateLimiter) *WorkerService {
	t.Helper()

	composer, err := provider.NewStaticImageComposer("https://cdn.example.com/rich")
	if err != nil {
		t.Fatalf("NewStaticImageComposer() error = %v", err)
	}
	if limiter == nil {
		limiter = &fakeRateLimiter{}
	}

	worker, err := NewWorkerService(
		deliveries,
		&fakeConsumer{},
		provider.NewTemplateContentGenerator(),
		composer,
		transport,
		limiter,
		1,
		nil,
	)
	if err != nil {
		t.Fatalf("NewWorkerService() error = %v", err)
	}
	return worker
}

func createPendingDelivery(t *testing.T, deliveries *tracker.Tracker, userID string, category domain.Category) *domain.DeliveryRecord {
	t.Helper()
	record, err := deliveries.CreateDeliveryRecord(context.Background(), &domain.DeliveryRecord{
		UserID:      userID,
		Category:    category,
		Timezone:    "Asia/Bangkok",
		ScheduledAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateDeliveryRecord() error = %v", err)
	}
	return record
}

func TestWorkerProcessMessageSuccess(t *testing.T) {
	t.Parallel()

	deliveries := newTrackerForTest(t)
	record := createPendingDelivery(t, deliveries, "u1", domain.CategoryNews)

	worker := newWorkerForTest(t, deliveries, &fakeTransport{}, nil)
	ctx := context.Background()

	err := worker.processMessage(ctx, queue.DeliveryMessage{
		DeliveryID: record.ID,
		UserID:     "u1",
		Category:   domain.CategoryNews,
		Priority:   domain.PriorityNormal,
	})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	got, err := deliveries.GetDeliveryRecord(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetDeliveryRecord() error = %v", err)
	}
	if got.Status != domain.StatusDelivered {
		t.Fatalf("Status = %s, want DELIVERED", got.Status)
	}
	if got.TemplateID == "" || got.ImagePath == "" || got.ContentTitle == "" {
		t.Fatalf("content metadata missing: %+v", got)
	}
	if got.TotalAttempts != 1 {
		t.Fatalf("TotalAttempts = %d, want 1", got.TotalAttempts)
	}
}

func TestWorkerProcessMessageTransientFailure(t *testing.T) {
	t.Parallel()

	deliveries := newTrackerForTest(t)
	record := createPendingDelivery(t, deliveries, "u1", domain.CategoryMotivation)

	transport := &fakeTransport{
		pushFn: func(ctx context.Context, userID string, content *provider.GeneratedContent, imagePath string) (*provider.PushResponse, error) {
			return nil, &provider.TransportError{
				StatusCode: 503,
				Message:    "push endpoint returned status 503: system error",
				Transient:  true,
			}
		},
	}
	worker := newWorkerForTest(t, deliveries, transport, nil)
	ctx := context.Background()

	err := worker.processMessage(ctx, queue.DeliveryMessage{
		DeliveryID: record.ID,
		UserID:     "u1",
		Category:   domain.CategoryMotivation,
		Priority:   domain.PriorityNormal,
	})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	got, err := deliveries.GetDeliveryRecord(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetDeliveryRecord() error = %v", err)
	}
	if got.Status != domain.StatusRetrying {
		t.Fatalf("Status = %s, want RETRYING", got.Status)
	}
	if got.ErrorKind != domain.ErrorKindSystem {
		t.Fatalf("ErrorKind = %s, want SYSTEM_ERROR", got.ErrorKind)
	}
	if got.NextRetryAt == nil {
		t.Fatal("NextRetryAt not set")
	}
}

func TestWorkerProcessMessageRateLimitHint(t *testing.T) {
	t.Parallel()

	deliveries := newTrackerForTest(t)
	record := createPendingDelivery(t, deliveries, "u1", domain.CategoryNews)

	transport := &fakeTransport{
		pushFn: func(ctx context.Context, userID string, content *provider.GeneratedContent, imagePath string) (*provider.PushResponse, error) {
			return nil, &provider.TransportError{
				StatusCode:    429,
				Message:       "push endpoint returned status 429: too many requests",
				Transient:     true,
				RetryAfterSec: 300,
			}
		},
	}
	worker := newWorkerForTest(t, deliveries, transport, nil)
	ctx := context.Background()
	before := time.Now().UTC()

	err := worker.processMessage(ctx, queue.DeliveryMessage{
		DeliveryID: record.ID,
		UserID:     "u1",
		Category:   domain.CategoryNews,
		Priority:   domain.PriorityNormal,
	})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	got, err := deliveries.GetDeliveryRecord(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetDeliveryRecord() error = %v", err)
	}
	if got.ErrorKind != domain.ErrorKindRateLimit {
		t.Fatalf("ErrorKind = %s, want RATE_LIMIT", got.ErrorKind)
	}
	if got.NextRetryAt == nil || got.NextRetryAt.Before(before.Add(299*time.Second)) {
		t.Fatalf("NextRetryAt = %v, want server hint of 300s honored", got.NextRetryAt)
	}
}

func TestWorkerProcessMessageOpaqueTransientFailure(t *testing.T) {
	t.Parallel()

	deliveries := newTrackerForTest(t)
	record := createPendingDelivery(t, deliveries, "u1", domain.CategoryGreeting)

	transport := &fakeTransport{
		pushFn: func(ctx context.Context, userID string, content *provider.GeneratedContent, imagePath string) (*provider.PushResponse, error) {
			return nil, &provider.TransportError{Message: "upstream hiccup", Transient: true}
		},
	}
	worker := newWorkerForTest(t, deliveries, transport, nil)

	base := time.Now().UTC()
	var calls int
	worker.now = func() time.Time {
		calls++
		if calls == 1 {
			return base
		}
		return base.Add(250 * time.Millisecond)
	}
	ctx := context.Background()

	err := worker.processMessage(ctx, queue.DeliveryMessage{
		DeliveryID: record.ID,
		UserID:     "u1",
		Category:   domain.CategoryGreeting,
		Priority:   domain.PriorityNormal,
	})
	if err != nil {
		t.Fatalf("processMessage() error = %v", err)
	}

	got, err := deliveries.GetDeliveryRecord(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetDeliveryRecord() error = %v", err)
	}
	if got.Status != domain.StatusRetrying {
		t.Fatalf("Status = %s, want RETRYING", got.Status)
	}
	// The message text classifies as nothing usable; the transport's
	// transient verdict keeps the delivery retryable.
	if got.ErrorKind != domain.ErrorKindSystem {
		t.Fatalf("ErrorKind = %s, want SYSTEM_ERROR", got.ErrorKind)
	}
	if len(got.Attempts) != 1 || got.Attempts[0].ResponseMs != 250 {
		t.Fatalf("failed attempt ResponseMs = %+v, want 250", got.Attempts)
	}
}

func TestWorkerProcessMessageSkipsUnknownDelivery(t *testing.T) {
	t.Parallel()

	worker := newWorkerForTest(t, newTrackerForTest(t), &fakeTransport{}, nil)

	err := worker.processMessage(context.Background(), queue.DeliveryMessage{
		DeliveryID: "missing",
		UserID:     "u1",
		Category:   domain.CategoryNews,
		Priority:   domain.PriorityNormal,
	})
	if err != nil {
		t.Fatalf("processMessage() for unknown delivery = %v, want nil (ack and skip)", err)
	}
}

func TestRetryScannerEnqueuesDueRetries(t *testing.T) {
	t.Parallel()

	deliveries := newTrackerForTest(t)
	ctx := context.Background()
	record := createPendingDelivery(t, deliveries, "u1", domain.CategoryGreeting)

	attempt, err := deliveries.StartAttempt(ctx, record.ID)
	if err != nil {
		t.Fatalf("StartAttempt() error = %v", err)
	}
	if _, err := deliveries.RecordFailure(ctx, record.ID, attempt.ID, tracker.Failure{Message: "connection reset"}); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}

	publisher := &fakePublisher{}
	scanner, err := NewRetryScanner(deliveries, publisher, time.Minute, 10, nil)
	if err != nil {
		t.Fatalf("NewRetryScanner() error = %v", err)
	}

	// Nothing is due yet: the backoff has not elapsed.
	if err := scanner.scanDue(ctx); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}
	if len(publisher.messages()) != 0 {
		t.Fatalf("published %d messages before backoff elapsed", len(publisher.messages()))
	}
}

func TestRetryScannerClearsRetryTimestamp(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryDeliveryRepo()
	deliveries, err := tracker.NewTracker(repo, domain.DefaultRetryPolicy(), nil)
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	ctx := context.Background()

	// Seed a retrying delivery whose backoff has already elapsed.
	due := time.Now().UTC().Add(-time.Minute)
	record := &domain.DeliveryRecord{
		ID:          "d1",
		UserID:      "u1",
		Category:    domain.CategoryNews,
		Timezone:    "Asia/Bangkok",
		ScheduledAt: due,
		Status:      domain.StatusRetrying,
		RetryCount:  2,
		NextRetryAt: &due,
	}
	if err := repo.Create(ctx, record); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	publisher := &fakePublisher{}
	scanner, err := NewRetryScanner(deliveries, publisher, time.Minute, 10, nil)
	if err != nil {
		t.Fatalf("NewRetryScanner() error = %v", err)
	}

	if err := scanner.scanDue(ctx); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}

	messages := publisher.messages()
	if len(messages) != 1 {
		t.Fatalf("published = %d, want 1", len(messages))
	}
	if messages[0].queue != "delivery.news" {
		t.Fatalf("queue = %s, want delivery.news", messages[0].queue)
	}
	if messages[0].msg.Priority != domain.PriorityHigh {
		t.Fatalf("priority = %s, want HIGH for a late retry", messages[0].msg.Priority)
	}

	// A second scan finds nothing: the timestamp was cleared on enqueue.
	if err := scanner.scanDue(ctx); err != nil {
		t.Fatalf("second scanDue() error = %v", err)
	}
	if len(publisher.messages()) != 1 {
		t.Fatalf("published = %d after second scan, want still 1", len(publisher.messages()))
	}
}

func TestCoordinatorDispatchesDueSchedules(t *testing.T) {
	t.Parallel()

	tzRepo := repository.NewMemoryTimezoneRepo()
	ctx := context.Background()
	for _, userID := range []string{"u1", "u2", "u3"} {
		err := tzRepo.Upsert(ctx, &domain.UserTimezoneInfo{
			UserID:     userID,
			Timezone:   "Asia/Bangkok",
			UTCOffset:  7,
			Method:     domain.MethodProfileDirect,
			Confidence: 0.95,
		})
		if err != nil {
			t.Fatalf("Upsert(%s) error = %v", userID, err)
		}
	}

	manager, err := timezone.NewManager(tzRepo, 9, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if _, err := manager.CreateTimezoneGroups(ctx); err != nil {
		t.Fatalf("CreateTimezoneGroups() error = %v", err)
	}
	if _, planned, err := manager.ScheduleDeliveryForTimezone(ctx, "Asia/Bangkok", "09:00", domain.CategoryNews, nil); err != nil || !planned {
		t.Fatalf("ScheduleDeliveryForTimezone() = planned %v, error %v", planned, err)
	}

	deliveries := newTrackerForTest(t)
	publisher := &fakePublisher{}
	coordinator, err := NewCoordinator(manager, deliveries, publisher, time.Minute, 2, nil)
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}

	// Move the coordinator clock past the planned delivery instant.
	coordinator.now = func() time.Time { return time.Now().UTC().Add(25 * time.Hour) }

	if err := coordinator.tick(ctx); err != nil {
		t.Fatalf("tick() error = %v", err)
	}

	messages := publisher.messages()
	if len(messages) != 3 {
		t.Fatalf("published = %d, want one message per group member", len(messages))
	}
	correlation := messages[0].msg.CorrelationID
	for _, published := range messages {
		if published.queue != "delivery.news" {
			t.Fatalf("queue = %s, want delivery.news", published.queue)
		}
		if published.msg.CorrelationID != correlation {
			t.Fatal("all messages of one schedule should share a correlation id")
		}

		record, err := deliveries.GetDeliveryRecord(ctx, published.msg.DeliveryID)
		if err != nil {
			t.Fatalf("GetDeliveryRecord(%s) error = %v", published.msg.DeliveryID, err)
		}
		if record.Status != domain.StatusPending {
			t.Fatalf("record %s status = %s, want PENDING", record.ID, record.Status)
		}
	}
}

func TestCoordinatorPlansWhenEmpty(t *testing.T) {
	t.Parallel()

	tzRepo := repository.NewMemoryTimezoneRepo()
	ctx := context.Background()
	err := tzRepo.Upsert(ctx, &domain.UserTimezoneInfo{
		UserID:     "u1",
		Timezone:   "Asia/Tokyo",
		UTCOffset:  9,
		Method:     domain.MethodProfileDirect,
		Confidence: 0.95,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	manager, err := timezone.NewManager(tzRepo, 9, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	deliveries := newTrackerForTest(t)
	publisher := &fakePublisher{}
	coordinator, err := NewCoordinator(manager, deliveries, publisher, time.Minute, 50, nil)
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	coordinator.now = func() time.Time { return time.Now().UTC().Add(25 * time.Hour) }

	if err := coordinator.tick(ctx); err != nil {
		t.Fatalf("tick() error = %v", err)
	}

	// One user, three categories: every planned schedule came due at once.
	seen := map[string]bool{}
	for _, published := range publisher.messages() {
		seen[published.queue] = true
	}
	if len(seen) != 3 {
		t.Fatalf("queues used = %v, want all three category queues", seen)
	}
}
