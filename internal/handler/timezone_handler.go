package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/richcast/richcast/internal/domain"
	"github.com/richcast/richcast/internal/timezone"
)

type TimezoneResolver interface {
	Resolve(ctx context.Context, userID string, evidence timezone.Evidence) (*domain.UserTimezoneInfo, bool, error)
	ManualUpdate(ctx context.Context, userID, zone string, preferredHour *int) (*domain.UserTimezoneInfo, error)
	Lookup(ctx context.Context, userID string) (*domain.UserTimezoneInfo, error)
}

type TimezoneStatsProvider interface {
	Stats(ctx context.Context) (*timezone.Stats, error)
}

type TimezoneHandler struct {
	resolver TimezoneResolver
	stats    TimezoneStatsProvider
}

func NewTimezoneHandler(resolver TimezoneResolver, stats TimezoneStatsProvider) (*TimezoneHandler, error) {
	if resolver == nil {
		return nil, fmt.Errorf("timezone resolver is required")
	}
	if stats == nil {
		return nil, fmt.Errorf("timezone stats provider is required")
	}
	return &TimezoneHandler{resolver: resolver, stats: stats}, nil
}

func RegisterTimezoneRoutes(router fiber.Router, resolver TimezoneResolver, stats TimezoneStatsProvider) error {
	h, err := NewTimezoneHandler(resolver, stats)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/timezones/resolve", h.ResolveTimezone)
	// Static path first so it does not match the :userId parameter.
	v1.Get("/timezones/stats", h.GetStats)
	v1.Get("/timezones/:userId", h.GetTimezone)
	v1.Put("/timezones/:userId", h.UpdateTimezone)

	return nil
}

type resolveTimezoneRequest struct {
	UserID             string      `json:"userId"`
	ProfileTimezone    string      `json:"profileTimezone"`
	Country            string      `json:"country"`
	City               string      `json:"city"`
	Region             string      `json:"region"`
	Language           string      `json:"language"`
	Messages           []string    `json:"messages"`
	ActivityTimestamps []time.Time `json:"activityTimestamps"`
}

type updateTimezoneRequest struct {
	Timezone      string `json:"timezone"`
	PreferredHour *int   `json:"preferredHour"`
}

type timezoneResponse struct {
	UserID        string    `json:"userId"`
	Timezone      string    `json:"timezone"`
	UTCOffset     float64   `json:"utcOffset"`
	Method        string    `json:"method"`
	Confidence    float64   `json:"confidence"`
	PreferredHour *int      `json:"preferredHour,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (h *TimezoneHandler) ResolveTimezone(c *fiber.Ctx) error {
	var req resolveTimezoneRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}

	info, resolved, err := h.resolver.Resolve(c.Context(), strings.TrimSpace(req.UserID), timezone.Evidence{
		ProfileTimezone:    req.ProfileTimezone,
		Country:            req.Country,
		City:               req.City,
		Region:             req.Region,
		Language:           req.Language,
		Messages:           req.Messages,
		ActivityTimestamps: req.ActivityTimestamps,
	})
	if err != nil {
		return err
	}
	if !resolved {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"resolved": false,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"resolved": true,
		"timezone": toTimezoneResponse(info),
	})
}

func (h *TimezoneHandler) GetTimezone(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))
	info, err := h.resolver.Lookup(c.Context(), userID)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(toTimezoneResponse(info))
}

func (h *TimezoneHandler) UpdateTimezone(c *fiber.Ctx) error {
	var req updateTimezoneRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	info, err := h.resolver.ManualUpdate(
		c.Context(),
		strings.TrimSpace(c.Params("userId")),
		strings.TrimSpace(req.Timezone),
		req.PreferredHour,
	)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(toTimezoneResponse(info))
}

func (h *TimezoneHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.stats.Stats(c.Context())
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}

func toTimezoneResponse(info *domain.UserTimezoneInfo) timezoneResponse {
	if info == nil {
		return timezoneResponse{}
	}

	return timezoneResponse{
		UserID:        info.UserID,
		Timezone:      info.Timezone,
		UTCOffset:     info.UTCOffset,
		Method:        info.Method.String(),
		Confidence:    info.Confidence,
		PreferredHour: info.PreferredHour,
		UpdatedAt:     info.UpdatedAt,
	}
}
