package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/richcast/richcast/internal/domain"
)

// MemoryDeliveryRepo is the in-memory DeliveryRepository. It is the
// single-process reference store; the Gorm implementation is the durable one.
type MemoryDeliveryRepo struct {
	mu      sync.RWMutex
	records map[string]*domain.DeliveryRecord
}

func NewMemoryDeliveryRepo() *MemoryDeliveryRepo {
	return &MemoryDeliveryRepo{
		records: make(map[string]*domain.DeliveryRecord),
	}
}

func (m *MemoryDeliveryRepo) Create(ctx context.Context, record *domain.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.ID]; exists {
		return domain.ErrConflict
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	m.records[record.ID] = cloneRecord(record)
	return nil
}

func (m *MemoryDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneRecord(record), nil
}

func (m *MemoryDeliveryRepo) Update(ctx context.Context, record *domain.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[record.ID]; !ok {
		return domain.ErrNotFound
	}

	record.UpdatedAt = time.Now().UTC()
	m.records[record.ID] = cloneRecord(record)
	return nil
}

func (m *MemoryDeliveryRepo) ListByUser(ctx context.Context, userID string) ([]domain.DeliveryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []domain.DeliveryRecord
	for _, record := range m.records {
		if record.UserID == userID {
			records = append(records, *cloneRecord(record))
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (m *MemoryDeliveryRepo) List(ctx context.Context) ([]domain.DeliveryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]domain.DeliveryRecord, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, *cloneRecord(record))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (m *MemoryDeliveryRepo) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []domain.DeliveryRecord
	for _, record := range m.records {
		if record.Status != domain.StatusRetrying {
			continue
		}
		if record.NextRetryAt == nil || record.NextRetryAt.After(now) {
			continue
		}
		due = append(due, *cloneRecord(record))
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextRetryAt.Before(*due[j].NextRetryAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *MemoryDeliveryRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, record := range m.records {
		if !record.Status.IsTerminal() {
			continue
		}
		if record.CreatedAt.Before(cutoff) {
			delete(m.records, id)
			removed++
		}
	}
	return removed, nil
}

func cloneRecord(record *domain.DeliveryRecord) *domain.DeliveryRecord {
	clone := *record
	clone.Attempts = make([]domain.DeliveryAttempt, len(record.Attempts))
	copy(clone.Attempts, record.Attempts)
	if record.LastAttemptAt != nil {
		value := *record.LastAttemptAt
		clone.LastAttemptAt = &value
	}
	if record.DeliveredAt != nil {
		value := *record.DeliveredAt
		clone.DeliveredAt = &value
	}
	if record.NextRetryAt != nil {
		value := *record.NextRetryAt
		clone.NextRetryAt = &value
	}
	return &clone
}

// MemoryTimezoneRepo is the in-memory TimezoneRepository.
type MemoryTimezoneRepo struct {
	mu    sync.RWMutex
	users map[string]*domain.UserTimezoneInfo
}

func NewMemoryTimezoneRepo() *MemoryTimezoneRepo {
	return &MemoryTimezoneRepo{
		users: make(map[string]*domain.UserTimezoneInfo),
	}
}

func (m *MemoryTimezoneRepo) Upsert(ctx context.Context, info *domain.UserTimezoneInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *info
	m.users[info.UserID] = &clone
	return nil
}

func (m *MemoryTimezoneRepo) GetByUserID(ctx context.Context, userID string) (*domain.UserTimezoneInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *info
	return &clone, nil
}

func (m *MemoryTimezoneRepo) List(ctx context.Context) ([]domain.UserTimezoneInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]domain.UserTimezoneInfo, 0, len(m.users))
	for _, info := range m.users {
		infos = append(infos, *info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UserID < infos[j].UserID
	})
	return infos, nil
}

func (m *MemoryTimezoneRepo) ReplaceAll(ctx context.Context, infos []domain.UserTimezoneInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.users = make(map[string]*domain.UserTimezoneInfo, len(infos))
	for i := range infos {
		clone := infos[i]
		m.users[clone.UserID] = &clone
	}
	return nil
}
