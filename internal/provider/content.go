package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"path"
	"strings"

	"github.com/richcast/richcast/internal/domain"
)

// contentTemplate is one rotatable text template for a category.
type contentTemplate struct {
	id    string
	title string
	body  string
}

var categoryTemplates = map[domain.Category][]contentTemplate{
	domain.CategoryMotivation: {
		{"motivation-01", "Daily Boost", "Small steps add up. Pick one thing and finish it today."},
		{"motivation-02", "Keep Going", "Progress beats perfection. You are closer than yesterday."},
		{"motivation-03", "Morning Spark", "The best time to start was yesterday. The second best is now."},
	},
	domain.CategoryNews: {
		{"news-01", "Today's Digest", "Here is your daily roundup of what matters."},
		{"news-02", "Morning Briefing", "Three stories worth your attention this morning."},
	},
	domain.CategoryGreeting: {
		{"greeting-01", "Good Morning", "Hope your day starts bright. We saved a little something for you."},
		{"greeting-02", "Hello Again", "A new day, a fresh start. Glad to have you with us."},
	},
}

// TemplateContentGenerator picks a deterministic template per user and
// category so repeated attempts for the same delivery produce the same
// content.
type TemplateContentGenerator struct{}

func NewTemplateContentGenerator() *TemplateContentGenerator {
	return &TemplateContentGenerator{}
}

func (g *TemplateContentGenerator) Generate(ctx context.Context, category domain.Category, userID string) (*GeneratedContent, error) {
	if !category.IsValid() {
		return nil, fmt.Errorf("%w: invalid category %q", domain.ErrValidation, category)
	}
	templates := categoryTemplates[category]
	if len(templates) == 0 {
		return nil, fmt.Errorf("%w: no templates for category %q", domain.ErrNotFound, category)
	}

	hash := fnv.New32a()
	_, _ = hash.Write([]byte(userID))
	selected := templates[int(hash.Sum32())%len(templates)]

	return &GeneratedContent{
		TemplateID: selected.id,
		Category:   category,
		Title:      selected.title,
		Body:       selected.body,
	}, nil
}

// StaticImageComposer maps generated content to a pre-rendered image asset
// under a base URL. Actual rendering happens offline; composition here only
// resolves the asset path.
type StaticImageComposer struct {
	baseURL string
}

func NewStaticImageComposer(baseURL string) (*StaticImageComposer, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: image base url is required", domain.ErrValidation)
	}
	return &StaticImageComposer{baseURL: trimmed}, nil
}

func (c *StaticImageComposer) Compose(ctx context.Context, content *GeneratedContent) (string, error) {
	if content == nil {
		return "", fmt.Errorf("%w: content is required", domain.ErrValidation)
	}
	if strings.TrimSpace(content.TemplateID) == "" {
		return "", fmt.Errorf("%w: template id is required", domain.ErrValidation)
	}
	return c.baseURL + "/" + path.Join(string(content.Category), content.TemplateID+".png"), nil
}
