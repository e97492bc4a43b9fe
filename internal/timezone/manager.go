package timezone

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/richcast/richcast/internal/domain"
	"github.com/richcast/richcast/internal/repository"
	"go.uber.org/zap"
)

// Stats summarizes the resolved timezone population and active planning
// state.
type Stats struct {
	TotalUsers      int            `json:"totalUsers"`
	TimezoneCount   int            `json:"timezoneCount"`
	UsersByTimezone map[string]int `json:"usersByTimezone"`
	UsersByMethod   map[string]int `json:"usersByMethod"`
	UsersByRegion   map[string]int `json:"usersByRegion"`
	ActiveGroups    int            `json:"activeGroups"`
	ActiveSchedules int            `json:"activeSchedules"`
}

// Manager groups users by timezone and plans category deliveries at each
// group's preferred local time.
type Manager struct {
	timezones   repository.TimezoneRepository
	logger      *zap.Logger
	now         func() time.Time
	defaultHour int

	mu        sync.Mutex
	groups    map[string]*domain.TimezoneGroup
	schedules []domain.DeliverySchedule
}

func NewManager(timezones repository.TimezoneRepository, defaultHour int, logger *zap.Logger) (*Manager, error) {
	if timezones == nil {
		return nil, fmt.Errorf("%w: timezone repository is required", domain.ErrValidation)
	}
	if defaultHour < 0 || defaultHour > 23 {
		return nil, fmt.Errorf("%w: default delivery hour %d out of range", domain.ErrValidation, defaultHour)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		timezones:   timezones,
		logger:      logger,
		now:         time.Now,
		defaultHour: defaultHour,
		groups:      make(map[string]*domain.TimezoneGroup),
	}, nil
}

// CreateTimezoneGroups rebuilds the timezone groups from the current user
// population. Users sharing a zone form one group; the group's preferred hour
// is the most common preferred hour among its members, falling back to the
// default delivery hour.
func (m *Manager) CreateTimezoneGroups(ctx context.Context) (map[string]*domain.TimezoneGroup, error) {
	infos, err := m.timezones.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing user timezones: %w", err)
	}

	now := m.now().UTC()
	groups := make(map[string]*domain.TimezoneGroup)
	hourVotes := make(map[string]map[int]int)

	for i := range infos {
		info := &infos[i]
		group, ok := groups[info.Timezone]
		if !ok {
			group = &domain.TimezoneGroup{
				Timezone:        info.Timezone,
				UTCOffset:       zoneOffsetAt(info.Timezone, now),
				PreferredHour:   m.defaultHour,
				PreferredMinute: 0,
			}
			groups[info.Timezone] = group
			hourVotes[info.Timezone] = make(map[int]int)
		}
		group.UserIDs = append(group.UserIDs, info.UserID)
		group.Count++
		if info.PreferredHour != nil {
			hourVotes[info.Timezone][*info.PreferredHour]++
		}
	}

	for zone, group := range groups {
		sort.Strings(group.UserIDs)
		if hour, ok := majorityHour(hourVotes[zone]); ok {
			group.PreferredHour = hour
		}
		next, err := m.nextLocalOccurrence(zone, group.PreferredHour, group.PreferredMinute)
		if err != nil {
			return nil, err
		}
		group.NextDeliveryUTC = next
	}

	m.mu.Lock()
	m.groups = groups
	m.mu.Unlock()

	m.logger.Info("timezone groups rebuilt",
		zap.Int("groups", len(groups)),
		zap.Int("users", len(infos)),
	)
	return copyGroups(groups), nil
}

// ScheduleDeliveryForTimezone plans one delivery for a zone at a local
// wall-clock time ("HH:MM", empty means the default hour). A nil user list
// means the zone's whole group. A zone with nobody to deliver to is a valid
// empty outcome, reported as planned=false.
func (m *Manager) ScheduleDeliveryForTimezone(ctx context.Context, zone, localTime string, category domain.Category, userIDs []string) (*domain.DeliverySchedule, bool, error) {
	if !category.IsValid() {
		return nil, false, fmt.Errorf("%w: invalid category %q", domain.ErrValidation, category)
	}

	hour, minute, err := parseLocalTime(localTime, m.defaultHour)
	if err != nil {
		return nil, false, err
	}

	if userIDs == nil {
		m.mu.Lock()
		if group, ok := m.groups[zone]; ok {
			userIDs = append([]string(nil), group.UserIDs...)
		}
		m.mu.Unlock()
	}
	if len(userIDs) == 0 {
		m.logger.Debug("nothing to schedule for timezone",
			zap.String("timezone", zone),
			zap.String("category", string(category)),
		)
		return nil, false, nil
	}

	deliverAt, err := m.nextLocalOccurrence(zone, hour, minute)
	if err != nil {
		return nil, false, err
	}

	schedule := domain.DeliverySchedule{
		Timezone:     zone,
		DeliverAtUTC: deliverAt,
		LocalTime:    fmt.Sprintf("%02d:%02d", hour, minute),
		UserIDs:      userIDs,
		Category:     category,
		Priority:     domain.PriorityNormal,
	}

	m.mu.Lock()
	m.schedules = append(m.schedules, schedule)
	m.mu.Unlock()

	m.logger.Info("delivery scheduled",
		zap.String("timezone", zone),
		zap.Time("deliverAtUtc", deliverAt),
		zap.String("category", string(category)),
		zap.Int("users", len(userIDs)),
	)
	return &schedule, true, nil
}

// OptimalDeliverySchedule plans one delivery per non-empty timezone group for
// the given category, each at the group's preferred local time, sorted by
// ascending delivery instant.
func (m *Manager) OptimalDeliverySchedule(ctx context.Context, category domain.Category) ([]domain.DeliverySchedule, error) {
	if !category.IsValid() {
		return nil, fmt.Errorf("%w: invalid category %q", domain.ErrValidation, category)
	}

	groups, err := m.CreateTimezoneGroups(ctx)
	if err != nil {
		return nil, err
	}

	schedules := make([]domain.DeliverySchedule, 0, len(groups))
	for _, group := range groups {
		if group.Count == 0 {
			continue
		}
		deliverAt, err := m.nextLocalOccurrence(group.Timezone, group.PreferredHour, group.PreferredMinute)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, domain.DeliverySchedule{
			Timezone:     group.Timezone,
			DeliverAtUTC: deliverAt,
			LocalTime:    fmt.Sprintf("%02d:%02d", group.PreferredHour, group.PreferredMinute),
			UserIDs:      append([]string(nil), group.UserIDs...),
			Category:     category,
			Priority:     domain.PriorityNormal,
		})
	}

	sort.Slice(schedules, func(i, j int) bool {
		if schedules[i].DeliverAtUTC.Equal(schedules[j].DeliverAtUTC) {
			return schedules[i].Timezone < schedules[j].Timezone
		}
		return schedules[i].DeliverAtUTC.Before(schedules[j].DeliverAtUTC)
	})

	m.mu.Lock()
	m.schedules = append(m.schedules, schedules...)
	m.mu.Unlock()

	return schedules, nil
}

// NextDeliveryTimeForUser computes the next delivery instant for a single
// user at their preferred hour (or the default). The second return value is
// false when the user has no resolved timezone.
func (m *Manager) NextDeliveryTimeForUser(ctx context.Context, userID string) (time.Time, bool, error) {
	info, err := m.timezones.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}

	hour := m.defaultHour
	if info.PreferredHour != nil {
		hour = *info.PreferredHour
	}
	next, err := m.nextLocalOccurrence(info.Timezone, hour, 0)
	if err != nil {
		return time.Time{}, false, err
	}
	return next, true, nil
}

// CleanupOldSchedules drops planned schedules whose delivery instant is more
// than maxAge in the past and returns how many were removed.
func (m *Manager) CleanupOldSchedules(maxAge time.Duration) int {
	cutoff := m.now().UTC().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.schedules[:0]
	removed := 0
	for _, schedule := range m.schedules {
		if schedule.DeliverAtUTC.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, schedule)
	}
	m.schedules = kept

	if removed > 0 {
		m.logger.Debug("stale schedules removed", zap.Int("removed", removed))
	}
	return removed
}

// DueSchedules returns planned schedules whose delivery instant has arrived,
// removing them from the active set.
func (m *Manager) DueSchedules(now time.Time) []domain.DeliverySchedule {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []domain.DeliverySchedule
	kept := m.schedules[:0]
	for _, schedule := range m.schedules {
		if !schedule.DeliverAtUTC.After(now) {
			due = append(due, schedule)
			continue
		}
		kept = append(kept, schedule)
	}
	m.schedules = kept
	return due
}

// ScheduleCount returns how many planned schedules are still pending.
func (m *Manager) ScheduleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.schedules)
}

// Stats reports the resolved-timezone population plus active planning state.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	infos, err := m.timezones.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing user timezones: %w", err)
	}

	stats := &Stats{
		TotalUsers:      len(infos),
		UsersByTimezone: make(map[string]int),
		UsersByMethod:   make(map[string]int),
		UsersByRegion:   make(map[string]int),
	}
	for i := range infos {
		info := &infos[i]
		stats.UsersByTimezone[info.Timezone]++
		stats.UsersByMethod[string(info.Method)]++
		stats.UsersByRegion[info.Region()]++
	}
	stats.TimezoneCount = len(stats.UsersByTimezone)

	m.mu.Lock()
	stats.ActiveGroups = len(m.groups)
	stats.ActiveSchedules = len(m.schedules)
	m.mu.Unlock()

	return stats, nil
}

// nextLocalOccurrence returns the next UTC instant at which the given zone's
// wall clock reads hour:minute. The zone database handles DST; unknown zone
// names degrade to the static fixed offset.
func (m *Manager) nextLocalOccurrence(zone string, hour, minute int) (time.Time, error) {
	now := m.now()

	loc, err := time.LoadLocation(zone)
	if err != nil {
		offset, ok := zoneStandardOffsets[zone]
		if !ok {
			return time.Time{}, fmt.Errorf("%w: unknown timezone %q", domain.ErrValidation, zone)
		}
		loc = time.FixedZone(zone, int(offset*3600))
		m.logger.Warn("zone database miss, using fixed offset",
			zap.String("timezone", zone),
			zap.Float64("offsetHours", offset),
		)
	}

	local := now.In(loc)
	target := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target.UTC(), nil
}

func parseLocalTime(value string, defaultHour int) (int, int, error) {
	if strings.TrimSpace(value) == "" {
		return defaultHour, 0, nil
	}

	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: local time %q must be HH:MM", domain.ErrValidation, value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: invalid hour in %q", domain.ErrValidation, value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: invalid minute in %q", domain.ErrValidation, value)
	}
	return hour, minute, nil
}

func majorityHour(votes map[int]int) (int, bool) {
	best, bestCount := 0, 0
	for hour, count := range votes {
		if count > bestCount || (count == bestCount && count > 0 && hour < best) {
			best, bestCount = hour, count
		}
	}
	return best, bestCount > 0
}

func copyGroups(groups map[string]*domain.TimezoneGroup) map[string]*domain.TimezoneGroup {
	out := make(map[string]*domain.TimezoneGroup, len(groups))
	for zone, group := range groups {
		clone := *group
		clone.UserIDs = append([]string(nil), group.UserIDs...)
		out[zone] = &clone
	}
	return out
}
