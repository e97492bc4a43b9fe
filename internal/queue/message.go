package queue

import (
	"fmt"
	"strings"

	"github.com/richcast/richcast/internal/domain"
)

// DeliveryMessage is the broker payload for delivery processing. The record
// itself stays in the store; the message only carries what a worker needs to
// claim it.
type DeliveryMessage struct {
	DeliveryID    string          `json:"deliveryId"`
	CorrelationID string          `json:"correlationId,omitempty"`
	UserID        string          `json:"userId"`
	Category      domain.Category `json:"category"`
	Timezone      string          `json:"timezone,omitempty"`
	Priority      domain.Priority `json:"priority"`
}

func (m DeliveryMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return fmt.Errorf("deliveryId is required")
	}
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("userId is required")
	}
	if !m.Category.IsValid() {
		return fmt.Errorf("invalid category %q", m.Category)
	}
	if !m.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", m.Priority)
	}
	return nil
}
