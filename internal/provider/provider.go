package provider

import (
	"context"

	"github.com/richcast/richcast/internal/domain"
)

// ContentGenerator produces the text content for one category delivery.
type ContentGenerator interface {
	Generate(ctx context.Context, category domain.Category, userID string) (*GeneratedContent, error)
}

// ImageComposer renders the rich message image for generated content.
type ImageComposer interface {
	Compose(ctx context.Context, content *GeneratedContent) (string, error)
}

// Transport is the outbound rich message delivery port.
type Transport interface {
	Push(ctx context.Context, userID string, content *GeneratedContent, imagePath string) (*PushResponse, error)
}

// GeneratedContent is one composed rich message before transmission.
type GeneratedContent struct {
	TemplateID string
	Category   domain.Category
	Title      string
	Body       string
}

// PushResponse stores transport call metadata for audit and persistence.
type PushResponse struct {
	StatusCode    int
	Body          string
	MessageID     string
	RetryAfterSec int64
}
