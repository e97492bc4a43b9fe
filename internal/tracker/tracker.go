package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richcast/richcast/internal/domain"
	"github.com/richcast/richcast/internal/repository"
	"go.uber.org/zap"
)

const statsCacheTTL = 5 * time.Minute

// Stats aggregates delivery outcomes across the whole store.
type Stats struct {
	TotalDeliveries   int            `json:"totalDeliveries"`
	ByStatus          map[string]int `json:"byStatus"`
	ByErrorKind       map[string]int `json:"byErrorKind"`
	ByCategory        map[string]int `json:"byCategory"`
	ByTimezone        map[string]int `json:"byTimezone"`
	SuccessRate       float64        `json:"successRate"`
	AvgDeliveryTimeMs float64        `json:"avgDeliveryTimeMs"`
	AvgRetries        float64        `json:"avgRetries"`
	DeliveredLastHour int            `json:"deliveredLastHour"`
	DeliveredLast24h  int            `json:"deliveredLast24h"`
	DeliveriesPerHour float64        `json:"deliveriesPerHour"`
	PendingRetries    int            `json:"pendingRetries"`
	GeneratedAt       time.Time      `json:"generatedAt"`
}

// Health classifies the delivery pipeline state from current stats.
type Health struct {
	Status string   `json:"status"`
	Issues []string `json:"issues"`
	Stats  *Stats   `json:"stats"`
}

const (
	HealthHealthy  = "HEALTHY"
	HealthWarning  = "WARNING"
	HealthCritical = "CRITICAL"
)

// Tracker owns the delivery lifecycle: record creation, attempt accounting,
// retry eligibility, and cleanup. All state transitions for one delivery are
// serialized through a per-delivery lock.
type Tracker struct {
	deliveries repository.DeliveryRepository
	policy     domain.RetryPolicy
	logger     *zap.Logger
	now        func() time.Time
	startedAt  time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	statsMu  sync.Mutex
	stats    *Stats
	cachedAt time.Time
}

func NewTracker(deliveries repository.DeliveryRepository, policy domain.RetryPolicy, logger *zap.Logger) (*Tracker, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("%w: delivery repository is required", domain.ErrValidation)
	}
	if policy.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: negative max retries", domain.ErrValidation)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		deliveries: deliveries,
		policy:     policy,
		logger:     logger,
		now:        time.Now,
		startedAt:  time.Now().UTC(),
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// CreateDeliveryRecord registers one planned delivery. The id is derived from
// user, category, and the minute-truncated scheduled time, so replanning the
// same slot is idempotent: an existing live record is returned unchanged, and
// a permanently failed one is revived for a fresh attempt cycle.
func (t *Tracker) CreateDeliveryRecord(ctx context.Context, record *domain.DeliveryRecord) (*domain.DeliveryRecord, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: record is required", domain.ErrValidation)
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	record.ID = domain.DeliveryID(record.UserID, record.Category, record.ScheduledAt)
	record.ScheduledAt = record.ScheduledAt.UTC().Truncate(time.Minute)
	record.Status = domain.StatusPending

	unlock := t.lockDelivery(record.ID)
	defer unlock()

	existing, err := t.deliveries.GetByID(ctx, record.ID)
	if err == nil {
		if existing.Status != domain.StatusPermanentlyFailed {
			return existing, nil
		}

		// Revive: keep the attempt history, reset the retry cycle.
		existing.Status = domain.StatusPending
		existing.RetryCount = 0
		existing.ErrorKind = ""
		existing.ErrorMessage = ""
		existing.NextRetryAt = nil
		existing.PermanentFailure = false
		if err := t.deliveries.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("reviving delivery %s: %w", existing.ID, err)
		}
		t.invalidateStats()
		t.logger.Info("permanently failed delivery revived", zap.String("deliveryId", existing.ID))
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if err := t.deliveries.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("creating delivery %s: %w", record.ID, err)
	}
	t.invalidateStats()

	t.logger.Info("delivery record created",
		zap.String("deliveryId", record.ID),
		zap.String("userId", record.UserID),
		zap.String("category", string(record.Category)),
		zap.Time("scheduledAt", record.ScheduledAt),
	)
	return record, nil
}

// StartAttempt transitions a delivery into IN_PROGRESS and opens a new
// attempt. Only PENDING and RETRYING deliveries may start an attempt.
func (t *Tracker) StartAttempt(ctx context.Context, deliveryID string) (*domain.DeliveryAttempt, error) {
	unlock := t.lockDelivery(deliveryID)
	defer unlock()

	record, err := t.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	switch record.Status {
	case domain.StatusPending, domain.StatusRetrying, domain.StatusFailed:
	case domain.StatusPermanentlyFailed:
		return nil, fmt.Errorf("%w: delivery %s", domain.ErrPermanentlyFailed, deliveryID)
	default:
		return nil, fmt.Errorf("%w: delivery %s is %s", domain.ErrConflict, deliveryID, record.Status)
	}

	now := t.now().UTC()
	attempt := domain.DeliveryAttempt{
		ID:            uuid.NewString(),
		DeliveryID:    deliveryID,
		AttemptNumber: record.TotalAttempts + 1,
		StartedAt:     now,
		Status:        domain.StatusInProgress,
	}

	record.Status = domain.StatusInProgress
	record.TotalAttempts++
	record.LastAttemptAt = &now
	record.Attempts = append(record.Attempts, attempt)

	if err := t.deliveries.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("starting attempt for %s: %w", deliveryID, err)
	}
	t.invalidateStats()

	t.logger.Debug("attempt started",
		zap.String("deliveryId", deliveryID),
		zap.Int("attemptNumber", attempt.AttemptNumber),
	)
	return &attempt, nil
}

// RecordSuccess finalizes an attempt as delivered.
func (t *Tracker) RecordSuccess(ctx context.Context, deliveryID, attemptID string, responseMs int64) (*domain.DeliveryRecord, error) {
	unlock := t.lockDelivery(deliveryID)
	defer unlock()

	record, err := t.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if record.Status != domain.StatusInProgress {
		return nil, fmt.Errorf("%w: delivery %s is %s, not in progress", domain.ErrConflict, deliveryID, record.Status)
	}
	attempt := record.FindAttempt(attemptID)
	if attempt == nil {
		return nil, fmt.Errorf("%w: attempt %s on delivery %s", domain.ErrNotFound, attemptID, deliveryID)
	}

	now := t.now().UTC()
	attempt.Status = domain.StatusDelivered
	attempt.ResponseMs = responseMs

	record.Status = domain.StatusDelivered
	record.DeliveredAt = &now
	record.DeliveryTimeMs = responseMs
	record.TotalProcessingMs = now.Sub(record.CreatedAt).Milliseconds()
	record.ErrorKind = ""
	record.ErrorMessage = ""
	record.NextRetryAt = nil

	if err := t.deliveries.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("recording success for %s: %w", deliveryID, err)
	}
	t.invalidateStats()

	t.logger.Info("delivery succeeded",
		zap.String("deliveryId", deliveryID),
		zap.Int("attempts", record.TotalAttempts),
		zap.Int64("responseMs", responseMs),
	)
	return record, nil
}

// Failure describes one failed attempt. Kind is optional; when empty it is
// classified from Message. RetryAfterSec is an optional server hint
// (Retry-After); when it exceeds the computed backoff it wins.
type Failure struct {
	Message       string
	Kind          domain.ErrorKind
	RetryAfterSec int64
	ResponseMs    int64
}

// RecordFailure finalizes an attempt as failed and either schedules a retry
// or marks the delivery permanently failed. Every failure counts against the
// retry budget, including one that turns out non-retryable.
func (t *Tracker) RecordFailure(ctx context.Context, deliveryID, attemptID string, failure Failure) (*domain.DeliveryRecord, error) {
	if failure.Kind != "" && !failure.Kind.IsValid() {
		return nil, fmt.Errorf("%w: invalid error kind %q", domain.ErrValidation, failure.Kind)
	}

	unlock := t.lockDelivery(deliveryID)
	defer unlock()

	record, err := t.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if record.Status != domain.StatusInProgress {
		return nil, fmt.Errorf("%w: delivery %s is %s, not in progress", domain.ErrConflict, deliveryID, record.Status)
	}
	attempt := record.FindAttempt(attemptID)
	if attempt == nil {
		return nil, fmt.Errorf("%w: attempt %s on delivery %s", domain.ErrNotFound, attemptID, deliveryID)
	}

	kind := failure.Kind
	if kind == "" {
		kind = domain.ClassifyError(failure.Message)
	}
	now := t.now().UTC()

	attempt.Status = domain.StatusFailed
	attempt.ErrorKind = kind
	attempt.ErrorMessage = failure.Message
	attempt.ResponseMs = failure.ResponseMs
	attempt.RetryAfterSec = failure.RetryAfterSec

	record.ErrorKind = kind
	record.ErrorMessage = failure.Message

	record.RetryCount++
	if t.policy.ShouldRetry(kind, record.RetryCount) {
		delay := t.policy.RetryDelay(record.RetryCount)
		if hint := time.Duration(failure.RetryAfterSec) * time.Second; hint > delay {
			delay = hint
		}
		nextRetry := now.Add(delay)
		record.Status = domain.StatusRetrying
		record.NextRetryAt = &nextRetry

		t.logger.Warn("delivery failed, retry scheduled",
			zap.String("deliveryId", deliveryID),
			zap.String("errorKind", string(kind)),
			zap.Int("retryCount", record.RetryCount),
			zap.Time("nextRetryAt", nextRetry),
		)
	} else {
		record.Status = domain.StatusPermanentlyFailed
		record.PermanentFailure = true
		record.NextRetryAt = nil

		t.logger.Error("delivery permanently failed",
			zap.String("deliveryId", deliveryID),
			zap.String("errorKind", string(kind)),
			zap.Int("retryCount", record.RetryCount),
			zap.String("error", failure.Message),
		)
	}

	if err := t.deliveries.Update(ctx, record); err != nil {
		return nil, fmt.Errorf("recording failure for %s: %w", deliveryID, err)
	}
	t.invalidateStats()
	return record, nil
}

// AttachContent records what was composed for a delivery so the record is
// auditable even when the push later fails.
func (t *Tracker) AttachContent(ctx context.Context, deliveryID, templateID, imagePath, title string) error {
	unlock := t.lockDelivery(deliveryID)
	defer unlock()

	record, err := t.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return err
	}
	record.TemplateID = templateID
	record.ImagePath = imagePath
	record.ContentTitle = title
	return t.deliveries.Update(ctx, record)
}

// ClearNextRetry clears the retry timestamp after a retry has been enqueued,
// so the scanner does not enqueue it again while a worker picks it up. The
// delivery stays RETRYING until an attempt starts.
func (t *Tracker) ClearNextRetry(ctx context.Context, deliveryID string) error {
	unlock := t.lockDelivery(deliveryID)
	defer unlock()

	record, err := t.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		return err
	}
	if record.Status != domain.StatusRetrying {
		return fmt.Errorf("%w: delivery %s is %s, not retrying", domain.ErrConflict, deliveryID, record.Status)
	}
	record.NextRetryAt = nil
	return t.deliveries.Update(ctx, record)
}

// GetDeliveryRecord returns one delivery with its attempt history.
func (t *Tracker) GetDeliveryRecord(ctx context.Context, deliveryID string) (*domain.DeliveryRecord, error) {
	return t.deliveries.GetByID(ctx, deliveryID)
}

// GetDeliveriesForUser lists a user's deliveries, most recent first.
func (t *Tracker) GetDeliveriesForUser(ctx context.Context, userID string) ([]domain.DeliveryRecord, error) {
	return t.deliveries.ListByUser(ctx, userID)
}

// GetPendingRetries returns retrying deliveries whose backoff has elapsed,
// soonest first.
func (t *Tracker) GetPendingRetries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	return t.deliveries.ListDueRetries(ctx, t.now().UTC(), limit)
}

// GetStats returns aggregate delivery stats, cached for a few minutes unless
// force is set.
func (t *Tracker) GetStats(ctx context.Context, force bool) (*Stats, error) {
	t.statsMu.Lock()
	if !force && t.stats != nil && t.now().Sub(t.cachedAt) < statsCacheTTL {
		cached := *t.stats
		t.statsMu.Unlock()
		return &cached, nil
	}
	t.statsMu.Unlock()

	records, err := t.deliveries.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries for stats: %w", err)
	}

	now := t.now().UTC()
	stats := &Stats{
		TotalDeliveries: len(records),
		ByStatus:        make(map[string]int),
		ByErrorKind:     make(map[string]int),
		ByCategory:      make(map[string]int),
		ByTimezone:      make(map[string]int),
		GeneratedAt:     now,
	}

	delivered := 0
	permanentlyFailed := 0
	var deliveryTimeTotal int64
	var retryTotal int
	for i := range records {
		record := &records[i]
		stats.ByStatus[string(record.Status)]++
		stats.ByCategory[string(record.Category)]++
		stats.ByTimezone[record.Timezone]++
		if record.ErrorKind != "" {
			stats.ByErrorKind[string(record.ErrorKind)]++
		}
		retryTotal += record.RetryCount
		switch record.Status {
		case domain.StatusDelivered:
			delivered++
			deliveryTimeTotal += record.DeliveryTimeMs
			if record.DeliveredAt != nil {
				age := now.Sub(*record.DeliveredAt)
				if age <= time.Hour {
					stats.DeliveredLastHour++
				}
				if age <= 24*time.Hour {
					stats.DeliveredLast24h++
				}
			}
		case domain.StatusPermanentlyFailed:
			permanentlyFailed++
		case domain.StatusRetrying:
			stats.PendingRetries++
		}
	}

	// Success rate is measured over finished deliveries only; in-flight work
	// neither helps nor hurts it.
	finished := delivered + permanentlyFailed
	if finished > 0 {
		stats.SuccessRate = float64(delivered) / float64(finished)
	} else {
		stats.SuccessRate = 1.0
	}
	if delivered > 0 {
		stats.AvgDeliveryTimeMs = float64(deliveryTimeTotal) / float64(delivered)
	}
	if len(records) > 0 {
		stats.AvgRetries = float64(retryTotal) / float64(len(records))
	}

	uptime := now.Sub(t.startedAt)
	if uptime < time.Minute {
		uptime = time.Minute
	}
	stats.DeliveriesPerHour = float64(delivered) / uptime.Hours()

	t.statsMu.Lock()
	t.stats = stats
	t.cachedAt = t.now()
	t.statsMu.Unlock()

	copied := *stats
	return &copied, nil
}

// HealthStatus classifies pipeline health from fresh stats.
func (t *Tracker) HealthStatus(ctx context.Context) (*Health, error) {
	stats, err := t.GetStats(ctx, true)
	if err != nil {
		return nil, err
	}

	health := &Health{Status: HealthHealthy, Issues: []string{}, Stats: stats}
	if stats.TotalDeliveries == 0 {
		return health, nil
	}

	if stats.SuccessRate < 0.5 {
		health.Status = HealthCritical
		health.Issues = append(health.Issues, fmt.Sprintf("success rate %.2f below 0.50", stats.SuccessRate))
	} else if stats.SuccessRate < 0.8 {
		health.Status = HealthWarning
		health.Issues = append(health.Issues, fmt.Sprintf("success rate %.2f below 0.80", stats.SuccessRate))
	}

	if stats.PendingRetries > 100 {
		health.Status = HealthCritical
		health.Issues = append(health.Issues, fmt.Sprintf("retry queue depth %d above 100", stats.PendingRetries))
	} else if stats.PendingRetries > 50 && health.Status != HealthCritical {
		health.Status = HealthWarning
		health.Issues = append(health.Issues, fmt.Sprintf("retry queue depth %d above 50", stats.PendingRetries))
	}

	if stats.AvgDeliveryTimeMs > 10_000 && health.Status == HealthHealthy {
		health.Status = HealthWarning
		health.Issues = append(health.Issues, fmt.Sprintf("average delivery time %.0fms above 10s", stats.AvgDeliveryTimeMs))
	}

	return health, nil
}

// CleanupOldRecords deletes terminal deliveries older than the retention
// window. Non-terminal records are never removed, whatever their age.
func (t *Tracker) CleanupOldRecords(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := t.now().UTC().Add(-retention)
	removed, err := t.deliveries.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up delivery records: %w", err)
	}
	if removed > 0 {
		t.invalidateStats()
		t.logger.Info("old delivery records removed",
			zap.Int("removed", removed),
			zap.Time("cutoff", cutoff),
		)
	}
	return removed, nil
}

func (t *Tracker) lockDelivery(id string) func() {
	t.locksMu.Lock()
	lock, ok := t.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[id] = lock
	}
	t.locksMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (t *Tracker) invalidateStats() {
	t.statsMu.Lock()
	t.stats = nil
	t.statsMu.Unlock()
}
