package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/richcast/richcast/internal/domain"
	"github.com/richcast/richcast/internal/tracker"
)

const (
	defaultPendingRetryLimit = 50
	maxPendingRetryLimit     = 500
)

type DeliveryTracker interface {
	CreateDeliveryRecord(ctx context.Context, record *domain.DeliveryRecord) (*domain.DeliveryRecord, error)
	StartAttempt(ctx context.Context, deliveryID string) (*domain.DeliveryAttempt, error)
	RecordSuccess(ctx context.Context, deliveryID, attemptID string, responseMs int64) (*domain.DeliveryRecord, error)
	RecordFailure(ctx context.Context, deliveryID, attemptID string, failure tracker.Failure) (*domain.DeliveryRecord, error)
	GetDeliveryRecord(ctx context.Context, deliveryID string) (*domain.DeliveryRecord, error)
	GetDeliveriesForUser(ctx context.Context, userID string) ([]domain.DeliveryRecord, error)
	GetPendingRetries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error)
	GetStats(ctx context.Context, force bool) (*tracker.Stats, error)
	HealthStatus(ctx context.Context) (*tracker.Health, error)
}

type SchedulePlanner interface {
	OptimalDeliverySchedule(ctx context.Context, category domain.Category) ([]domain.DeliverySchedule, error)
}

type DeliveryHandler struct {
	deliveries DeliveryTracker
	planner    SchedulePlanner
}

func NewDeliveryHandler(deliveries DeliveryTracker, planner SchedulePlanner) (*DeliveryHandler, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery tracker is required")
	}
	if planner == nil {
		return nil, fmt.Errorf("schedule planner is required")
	}
	return &DeliveryHandler{deliveries: deliveries, planner: planner}, nil
}

func RegisterDeliveryRoutes(router fiber.Router, deliveries DeliveryTracker, planner SchedulePlanner) error {
	h, err := NewDeliveryHandler(deliveries, planner)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/deliveries", h.CreateDelivery)
	// Static paths first so they do not match the :id parameter.
	v1.Get("/deliveries/plan", h.GetDeliveryPlan)
	v1.Get("/deliveries/pending-retries", h.GetPendingRetries)
	v1.Get("/deliveries/stats", h.GetStats)
	v1.Get("/deliveries/health", h.GetHealth)
	v1.Get("/deliveries/:id", h.GetDelivery)
	v1.Post("/deliveries/:id/attempts", h.StartAttempt)
	v1.Post("/deliveries/:id/attempts/:attemptId/success", h.RecordSuccess)
	v1.Post("/deliveries/:id/attempts/:attemptId/failure", h.RecordFailure)
	v1.Get("/users/:userId/deliveries", h.ListUserDeliveries)

	return nil
}

type createDeliveryRequest struct {
	UserID      string    `json:"userId"`
	Category    string    `json:"category"`
	Timezone    string    `json:"timezone"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

type recordSuccessRequest struct {
	ResponseMs int64 `json:"responseMs"`
}

type recordFailureRequest struct {
	ErrorMessage  string `json:"errorMessage"`
	ErrorKind     string `json:"errorKind"`
	RetryAfterSec int64  `json:"retryAfterSec"`
	ResponseMs    int64  `json:"responseMs"`
}

type attemptResponse struct {
	ID            string    `json:"id"`
	DeliveryID    string    `json:"deliveryId"`
	AttemptNumber int       `json:"attemptNumber"`
	StartedAt     time.Time `json:"startedAt"`
	Status        string    `json:"status"`
	ErrorKind     string    `json:"errorKind,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	ResponseMs    int64     `json:"responseMs"`
	RetryAfterSec int64     `json:"retryAfterSec,omitempty"`
}

type deliveryResponse struct {
	ID            string            `json:"id"`
	UserID        string            `json:"userId"`
	Category      string            `json:"category"`
	Timezone      string            `json:"timezone"`
	ScheduledAt   time.Time         `json:"scheduledAt"`
	Status        string            `json:"status"`
	TotalAttempts int               `json:"totalAttempts"`
	LastAttemptAt *time.Time        `json:"lastAttemptAt,omitempty"`
	DeliveredAt   *time.Time        `json:"deliveredAt,omitempty"`
	ErrorKind     string            `json:"errorKind,omitempty"`
	ErrorMessage  string            `json:"errorMessage,omitempty"`
	RetryCount    int               `json:"retryCount"`
	NextRetryAt   *time.Time        `json:"nextRetryAt,omitempty"`
	TemplateID    string            `json:"templateId,omitempty"`
	ImagePath     string            `json:"imagePath,omitempty"`
	ContentTitle  string            `json:"contentTitle,omitempty"`
	Attempts      []attemptResponse `json:"attempts,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

type scheduleResponse struct {
	Timezone     string    `json:"timezone"`
	DeliverAtUTC time.Time `json:"deliverAtUtc"`
	LocalTime    string    `json:"localTime"`
	UserCount    int       `json:"userCount"`
	Category     string    `json:"category"`
	Priority     string    `json:"priority"`
}

func (h *DeliveryHandler) CreateDelivery(c *fiber.Ctx) error {
	var req createDeliveryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	category, err := domain.ParseCategoryFromString(req.Category)
	if err != nil {
		return err
	}

	record, err := h.deliveries.CreateDeliveryRecord(c.Context(), &domain.DeliveryRecord{
		UserID:      strings.TrimSpace(req.UserID),
		Category:    category,
		Timezone:    strings.TrimSpace(req.Timezone),
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(toDeliveryResponse(record))
}

func (h *DeliveryHandler) GetDelivery(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	record, err := h.deliveries.GetDeliveryRecord(c.Context(), id)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(toDeliveryResponse(record))
}

func (h *DeliveryHandler) ListUserDeliveries(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))
	records, err := h.deliveries.GetDeliveriesForUser(c.Context(), userID)
	if err != nil {
		return err
	}

	responses := make([]deliveryResponse, 0, len(records))
	for i := range records {
		responses = append(responses, toDeliveryResponse(&records[i]))
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": responses,
	})
}

func (h *DeliveryHandler) StartAttempt(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	attempt, err := h.deliveries.StartAttempt(c.Context(), id)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(toAttemptResponse(attempt))
}

func (h *DeliveryHandler) RecordSuccess(c *fiber.Ctx) error {
	var req recordSuccessRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	record, err := h.deliveries.RecordSuccess(
		c.Context(),
		strings.TrimSpace(c.Params("id")),
		strings.TrimSpace(c.Params("attemptId")),
		req.ResponseMs,
	)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(toDeliveryResponse(record))
}

func (h *DeliveryHandler) RecordFailure(c *fiber.Ctx) error {
	var req recordFailureRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.ErrorMessage) == "" {
		return fmt.Errorf("%w: errorMessage is required", domain.ErrValidation)
	}

	record, err := h.deliveries.RecordFailure(
		c.Context(),
		strings.TrimSpace(c.Params("id")),
		strings.TrimSpace(c.Params("attemptId")),
		tracker.Failure{
			Message:       req.ErrorMessage,
			Kind:          domain.ErrorKind(strings.TrimSpace(req.ErrorKind)),
			RetryAfterSec: req.RetryAfterSec,
			ResponseMs:    req.ResponseMs,
		},
	)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(toDeliveryResponse(record))
}

func (h *DeliveryHandler) GetDeliveryPlan(c *fiber.Ctx) error {
	category, err := domain.ParseCategoryFromString(c.Query("category"))
	if err != nil {
		return err
	}

	schedules, err := h.planner.OptimalDeliverySchedule(c.Context(), category)
	if err != nil {
		return err
	}

	responses := make([]scheduleResponse, 0, len(schedules))
	for _, schedule := range schedules {
		responses = append(responses, scheduleResponse{
			Timezone:     schedule.Timezone,
			DeliverAtUTC: schedule.DeliverAtUTC,
			LocalTime:    schedule.LocalTime,
			UserCount:    len(schedule.UserIDs),
			Category:     schedule.Category.String(),
			Priority:     schedule.Priority.String(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"category":  category.String(),
		"schedules": responses,
	})
}

func (h *DeliveryHandler) GetPendingRetries(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultPendingRetryLimit)
	if limit < 1 || limit > maxPendingRetryLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxPendingRetryLimit)
	}

	records, err := h.deliveries.GetPendingRetries(c.Context(), limit)
	if err != nil {
		return err
	}

	responses := make([]deliveryResponse, 0, len(records))
	for i := range records {
		responses = append(responses, toDeliveryResponse(&records[i]))
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": responses,
	})
}

func (h *DeliveryHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.deliveries.GetStats(c.Context(), c.QueryBool("force", false))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}

func (h *DeliveryHandler) GetHealth(c *fiber.Ctx) error {
	health, err := h.deliveries.HealthStatus(c.Context())
	if err != nil {
		return err
	}

	statusCode := fiber.StatusOK
	if health.Status == tracker.HealthCritical {
		statusCode = fiber.StatusServiceUnavailable
	}
	return c.Status(statusCode).JSON(health)
}

func toAttemptResponse(attempt *domain.DeliveryAttempt) attemptResponse {
	if attempt == nil {
		return attemptResponse{}
	}

	return attemptResponse{
		ID:            attempt.ID,
		DeliveryID:    attempt.DeliveryID,
		AttemptNumber: attempt.AttemptNumber,
		StartedAt:     attempt.StartedAt,
		Status:        attempt.Status.String(),
		ErrorKind:     string(attempt.ErrorKind),
		ErrorMessage:  attempt.ErrorMessage,
		ResponseMs:    attempt.ResponseMs,
		RetryAfterSec: attempt.RetryAfterSec,
	}
}

func toDeliveryResponse(record *domain.DeliveryRecord) deliveryResponse {
	if record == nil {
		return deliveryResponse{}
	}

	attempts := make([]attemptResponse, 0, len(record.Attempts))
	for i := range record.Attempts {
		attempts = append(attempts, toAttemptResponse(&record.Attempts[i]))
	}

	return deliveryResponse{
		ID:            record.ID,
		UserID:        record.UserID,
		Category:      record.Category.String(),
		Timezone:      record.Timezone,
		ScheduledAt:   record.ScheduledAt,
		Status:        record.Status.String(),
		TotalAttempts: record.TotalAttempts,
		LastAttemptAt: record.LastAttemptAt,
		DeliveredAt:   record.DeliveredAt,
		ErrorKind:     string(record.ErrorKind),
		ErrorMessage:  record.ErrorMessage,
		RetryCount:    record.RetryCount,
		NextRetryAt:   record.NextRetryAt,
		TemplateID:    record.TemplateID,
		ImagePath:     record.ImagePath,
		ContentTitle:  record.ContentTitle,
		Attempts:      attempts,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}
}
