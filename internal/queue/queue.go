package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/richcast/richcast/internal/domain"
)

// Publisher publishes delivery messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DeliveryMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg DeliveryMessage) error

// Consumer consumes delivery messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

var supportedCategories = []domain.Category{
	domain.CategoryMotivation,
	domain.CategoryNews,
	domain.CategoryGreeting,
}

const (
	// queueMaxPriority is the RabbitMQ x-max-priority value for work queues.
	queueMaxPriority int32 = 3
)

// QueueName returns the category work queue name, e.g. delivery.news.
func QueueName(category domain.Category) string {
	return fmt.Sprintf("delivery.%s", strings.ToLower(category.String()))
}

// DLQName returns the dead-letter queue name for a category, e.g.
// dlq.delivery.news.
func DLQName(category domain.Category) string {
	return fmt.Sprintf("dlq.%s", QueueName(category))
}

// WorkQueueNames returns all category work queues (3 total).
func WorkQueueNames() []string {
	queues := make([]string, 0, len(supportedCategories))
	for _, category := range supportedCategories {
		queues = append(queues, QueueName(category))
	}
	return queues
}

// DLQNames returns all dead-letter queues (3 total).
func DLQNames() []string {
	queues := make([]string, 0, len(supportedCategories))
	for _, category := range supportedCategories {
		queues = append(queues, DLQName(category))
	}
	return queues
}

// PriorityValue maps domain priority to RabbitMQ message priority.
func PriorityValue(priority domain.Priority) uint8 {
	switch priority {
	case domain.PriorityHigh:
		return 3
	case domain.PriorityNormal:
		return 2
	case domain.PriorityLow:
		return 1
	default:
		return 0
	}
}
