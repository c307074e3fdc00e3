package idgen

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	eventGenerator          *IDGenerator
	webhookGenerator        *IDGenerator
	classificationGenerator *IDGenerator
)

func init() {
	eventGenerator, _ = NewIDGenerator("{{uuidv4}}")
	webhookGenerator, _ = NewIDGenerator("{{uuidv4}}")
	classificationGenerator, _ = NewIDGenerator("{{uuidv7}}")
}

// IDGenerator generates IDs based on a template
type IDGenerator struct {
	template *template.Template
}

// NewIDGenerator creates a new ID generator with the given template string
func NewIDGenerator(templateStr string) (*IDGenerator, error) {
	if templateStr == "" {
		templateStr = "{{uuidv4}}"
	}

	tmpl := template.New("id").Funcs(template.FuncMap{
		"uuidv4": func() string {
			return uuid.New().String()
		},
		"uuidv7": func() string {
			id, err := uuid.NewV7()
			if err != nil {
				// Fallback to v4 if v7 generation fails
				return uuid.New().String()
			}
			return id.String()
		},
		"nanoid": func() string {
			id, err := gonanoid.New()
			if err != nil {
				return uuid.New().String()
			}
			return id
		},
	})

	parsed, err := tmpl.Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ID template: %w", err)
	}

	return &IDGenerator{template: parsed}, nil
}

// Generate generates a new ID using the template
func (g *IDGenerator) Generate() (string, error) {
	var buf bytes.Buffer
	if err := g.template.Execute(&buf, nil); err != nil {
		return "", fmt.Errorf("failed to generate ID: %w", err)
	}
	return buf.String(), nil
}

// IDTemplateConfig contains ID generation templates for different entity types
type IDTemplateConfig struct {
	Event          string
	Webhook        string
	Classification string
}

// Configure configures all ID generators based on the provided config.
// This should be called once at application startup before any concurrent usage.
func Configure(cfg IDTemplateConfig) error {
	if cfg.Event != "" {
		gen, err := NewIDGenerator(cfg.Event)
		if err != nil {
			return fmt.Errorf("failed to configure event ID generator: %w", err)
		}
		eventGenerator = gen
	}

	if cfg.Webhook != "" {
		gen, err := NewIDGenerator(cfg.Webhook)
		if err != nil {
			return fmt.Errorf("failed to configure webhook ID generator: %w", err)
		}
		webhookGenerator = gen
	}

	if cfg.Classification != "" {
		gen, err := NewIDGenerator(cfg.Classification)
		if err != nil {
			return fmt.Errorf("failed to configure classification ID generator: %w", err)
		}
		classificationGenerator = gen
	}

	return nil
}

// Event generates an event ID using the configured generator.
// Defaults to UUID v4 if not configured via Configure().
func Event() string {
	return generateOrFallback(eventGenerator)
}

// Webhook generates a webhook ID using the configured generator.
func Webhook() string {
	return generateOrFallback(webhookGenerator)
}

// Classification generates an ID for a stored classification record.
// Defaults to UUID v7 so records sort by creation time.
func Classification() string {
	return generateOrFallback(classificationGenerator)
}

func generateOrFallback(g *IDGenerator) string {
	id, err := g.Generate()
	if err != nil {
		return uuid.New().String()
	}
	return id
}
