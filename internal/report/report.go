// Package report produces a free-text summary of a cleaned transaction table with Gemini.
package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/smart-financial-parser/internal/domain"
	"github.com/dvloznov/smart-financial-parser/internal/logger"
	"github.com/dvloznov/smart-financial-parser/internal/tableio"
)

const (
	// DefaultModelName is the Gemini model used for reports.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultMaxRows caps how many cleaned rows are sent to the model.
	DefaultMaxRows = 200
)

// APIKeyEnvVars are checked in order for the Gemini credential.
var APIKeyEnvVars = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

// ErrMissingAPIKey is returned when no Gemini credential is configured.
var ErrMissingAPIKey = errors.New("missing Gemini API key: set " + strings.Join(APIKeyEnvVars, " or "))

// Reporter generates a summary for cleaned records.
type Reporter interface {
	Generate(ctx context.Context, records []*domain.Record) (string, error)
}

// TextModel is the slice of the Gemini API the reporter needs. It exists so tests can swap the model.
type TextModel interface {
	GenerateText(ctx context.Context, model, prompt string) (string, error)
}

// Config configures a GeminiReporter.
type Config struct {
	APIKey  string
	Model   string
	MaxRows int
}

// APIKeyFromEnv returns the first non-empty Gemini key from the environment.
func APIKeyFromEnv() string {
	for _, name := range APIKeyEnvVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// GeminiReporter is the Reporter backed by the Gemini API.
type GeminiReporter struct {
	model   TextModel
	name    string
	maxRows int
}

// NewGeminiReporter creates a reporter. It fails with ErrMissingAPIKey before any remote call
// when cfg.APIKey is empty.
func NewGeminiReporter(ctx context.Context, cfg Config) (*GeminiReporter, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiReporter: create genai client: %w", err)
	}

	return NewWithModel(&genaiModel{client: client}, cfg), nil
}

// NewWithModel creates a reporter around an existing TextModel.
func NewWithModel(model TextModel, cfg Config) *GeminiReporter {
	if cfg.Model == "" {
		cfg.Model = DefaultModelName
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	return &GeminiReporter{model: model, name: cfg.Model, maxRows: cfg.MaxRows}
}

// Generate sends a bounded CSV sample of records to the model and returns its summary.
func (r *GeminiReporter) Generate(ctx context.Context, records []*domain.Record) (string, error) {
	log := logger.FromContext(ctx)

	sample := records
	if len(sample) > r.maxRows {
		sample = sample[:r.maxRows]
	}

	csvSample, err := tableio.EncodeCSV(sample)
	if err != nil {
		return "", fmt.Errorf("Generate: encode sample: %w", err)
	}

	prompt := buildPrompt(string(csvSample), len(sample), len(records))

	log.Debug().
		Str("model", r.name).
		Int("sample_rows", len(sample)).
		Int("total_rows", len(records)).
		Msg("Requesting report")

	text, err := r.model.GenerateText(ctx, r.name, prompt)
	if err != nil {
		return "", fmt.Errorf("Generate: generate content: %w", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("Generate: empty response from model")
	}
	return text, nil
}

type genaiModel struct {
	client *genai.Client
}

func (m *genaiModel) GenerateText(ctx context.Context, model, prompt string) (string, error) {
	resp, err := m.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
