package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"waterfootprint/backend/internal/config"
	"waterfootprint/backend/internal/logging"
)

const (
	mimeTypeJSON = "application/json"
	mimeTypeText = "text/plain"
)

var errEmptyModelReply = errors.New("model reply is empty")

// ModelRequest is one prompt, optionally with an inline image.
type ModelRequest struct {
	Prompt        string
	Image         []byte
	ImageMIMEType string
	ExpectJSON    bool
}

func (r ModelRequest) responseMIMEType() string {
	if r.ExpectJSON {
		return mimeTypeJSON
	}
	return mimeTypeText
}

// Generator produces raw model text for a request. The endpoint layer only
// depends on this; a nil Generator means the provider is not configured.
type Generator interface {
	Generate(ctx context.Context, req ModelRequest) (string, error)
}

// ModelClient performs a single call against one named model.
type ModelClient interface {
	GenerateContent(ctx context.Context, model string, req ModelRequest) (string, error)
}

// AttemptObserver is told about every candidate call and its outcome.
type AttemptObserver func(model string, err error)

// ModelInvoker tries candidates in declared order and returns the first
// successful reply. Each candidate is called at most once.
type ModelInvoker struct {
	client     ModelClient
	candidates []string
	observe    AttemptObserver
}

func NewModelInvoker(client ModelClient, candidates []string, observe AttemptObserver) *ModelInvoker {
	ordered := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			ordered = append(ordered, trimmed)
		}
	}
	return &ModelInvoker{client: client, candidates: ordered, observe: observe}
}

// Candidates returns the fallback order.
func (m *ModelInvoker) Candidates() []string {
	out := make([]string, len(m.candidates))
	copy(out, m.candidates)
	return out
}

func (m *ModelInvoker) Generate(ctx context.Context, req ModelRequest) (string, error) {
	logger := logging.FromContext(ctx)
	var lastErr error
	for _, model := range m.candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		logger.Debug().Str("model", model).Msg("trying model")
		text, err := m.client.GenerateContent(ctx, model, req)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errEmptyModelReply
		}
		if m.observe != nil {
			m.observe(model, err)
		}
		if err != nil {
			logger.Warn().Err(err).Str("model", model).Msg("model call failed")
			lastErr = err
			continue
		}
		logger.Info().Str("model", model).Msg("model call succeeded")
		return text, nil
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: last error: %w", ErrModelUnavailable, lastErr)
	}
	return "", ErrModelUnavailable
}

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	client  *genai.Client
	timeout time.Duration
}

func NewGeminiClient(ctx context.Context, cfg config.Config) (*GeminiClient, error) {
	apiKey := strings.TrimSpace(cfg.GoogleAPIKey)
	if apiKey == "" {
		return nil, ErrUnconfigured
	}
	clientConfig := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if base := strings.TrimSpace(cfg.GeminiBaseURL); base != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(base, "/") + "/"}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	timeoutSeconds := cfg.AITimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}
	return &GeminiClient{
		client:  client,
		timeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

func (c *GeminiClient) GenerateContent(ctx context.Context, model string, req ModelRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" && len(req.Image) == 0 {
		return "", errors.New("model request is empty")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if len(req.Image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Image, req.ImageMIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, strings.TrimSpace(model), contents, &genai.GenerateContentConfig{
		ResponseMIMEType: req.responseMIMEType(),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generateContent %s: %w", model, err)
	}
	return responseText(resp), nil
}

// ListGenerateContentModels returns models that support generateContent.
func (c *GeminiClient) ListGenerateContentModels(ctx context.Context) ([]string, error) {
	names := make([]string, 0)
	for model, err := range c.client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list gemini models: %w", err)
		}
		for _, action := range model.SupportedActions {
			if action == "generateContent" {
				names = append(names, model.Name)
				break
			}
		}
	}
	return names, nil
}

// LogAvailableModels is a startup diagnostic; failures only warn.
func LogAvailableModels(ctx context.Context, client *GeminiClient, logger *zerolog.Logger) {
	names, err := client.ListGenerateContentModels(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("could not list models")
		return
	}
	for _, name := range names {
		logger.Info().Str("model", name).Msg("available model")
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func truncateForLog(value string, limit int) string {
	trimmed := strings.TrimSpace(value)
	if limit <= 0 || len(trimmed) <= limit {
		return trimmed
	}
	return trimmed[:limit] + "...(truncated)"
}
