// Package models implements the optional AI Models plane of spec.md
// §4.E/§4.F: an EmbeddingModel and an OCRModel, both degrading to a
// disabled no-op when unconfigured so the rest of the system keeps
// working without them. Grounded on the teacher's ClaudeService: same
// resty-based HTTP client shape, same enabled/api-key gate, generalized
// to the two narrow operations the spec needs instead of the teacher's
// full document-analysis surface.
package models

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrModelUnavailable is returned by a stub/disabled implementation.
// nodeservice's Find reports it as an Unknown error when it embeds a
// `~=` query.
var ErrModelUnavailable = errors.New("model unavailable")

// EmbeddingModel turns text into vectors for the Vector Database.
type EmbeddingModel interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OCRModel extracts text from an image or scanned document.
type OCRModel interface {
	OCR(ctx context.Context, content io.Reader, mimetype string) (string, error)
}

// NoopEmbeddingModel always reports unavailable, the degrade-gracefully
// behavior spec.md §4.E/F calls for when no embedding backend is
// configured.
type NoopEmbeddingModel struct{}

func (NoopEmbeddingModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, ErrModelUnavailable
}

// NoopOCRModel always reports unavailable.
type NoopOCRModel struct{}

func (NoopOCRModel) OCR(ctx context.Context, content io.Reader, mimetype string) (string, error) {
	return "", ErrModelUnavailable
}

// OpenAIEmbeddingConfig configures OpenAIEmbeddingModel.
type OpenAIEmbeddingConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
	Enabled        bool
}

// OpenAIEmbeddingModel calls OpenAI's embeddings endpoint. Claude has no
// embeddings endpoint of its own (the teacher's ClaudeService.
// GenerateEmbedding says as much), so this, unlike OCRModel, reaches
// past the teacher's own backend.
type OpenAIEmbeddingModel struct {
	config OpenAIEmbeddingConfig
	client *resty.Client
}

func NewOpenAIEmbeddingModel(config OpenAIEmbeddingConfig) (EmbeddingModel, error) {
	if !config.Enabled {
		return NoopEmbeddingModel{}, nil
	}
	if config.APIKey == "" {
		return nil, errors.New("openai api key is required when embeddings are enabled")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com"
	}
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = 30
	}

	client := resty.New()
	client.SetTimeout(time.Duration(config.TimeoutSeconds) * time.Second)
	client.SetBaseURL(config.BaseURL)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Authorization", "Bearer "+config.APIKey)

	return &OpenAIEmbeddingModel{config: config, client: client}, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (m *OpenAIEmbeddingModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result embeddingResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(embeddingRequest{Model: m.config.Model, Input: texts}).
		SetResult(&result).
		Post("/v1/embeddings")
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if resp.IsError() || result.Error != nil {
		msg := resp.String()
		if result.Error != nil {
			msg = result.Error.Message
		}
		return nil, fmt.Errorf("embedding request failed: %s", msg)
	}

	out := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

// ClaudeOCRConfig configures ClaudeOCRModel.
type ClaudeOCRConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
	Enabled        bool
}

const (
	claudeAPIVersion   = "2023-06-01"
	claudeDefaultModel = "claude-3-5-sonnet-20241022"
)

// ClaudeOCRModel extracts text from images via Claude's vision-capable
// messages endpoint, reusing the teacher's request shape and headers
// (ClaudeAPIVersion, x-api-key) from claude_service.go.
type ClaudeOCRModel struct {
	config ClaudeOCRConfig
	client *resty.Client
}

func NewClaudeOCRModel(config ClaudeOCRConfig) (OCRModel, error) {
	if !config.Enabled {
		return NoopOCRModel{}, nil
	}
	if config.APIKey == "" {
		return nil, errors.New("claude api key is required when ocr is enabled")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com"
	}
	if config.Model == "" {
		config.Model = claudeDefaultModel
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = 60
	}

	client := resty.New()
	client.SetTimeout(time.Duration(config.TimeoutSeconds) * time.Second)
	client.SetBaseURL(config.BaseURL)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("x-api-key", config.APIKey)
	client.SetHeader("anthropic-version", claudeAPIVersion)

	return &ClaudeOCRModel{config: config, client: client}, nil
}

type ocrContentBlock struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	Source *ocrImageSource `json:"source,omitempty"`
}

type ocrImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type ocrMessage struct {
	Role    string            `json:"role"`
	Content []ocrContentBlock `json:"content"`
}

type ocrRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []ocrMessage `json:"messages"`
}

type ocrResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (m *ClaudeOCRModel) OCR(ctx context.Context, content io.Reader, mimetype string) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("failed to read ocr input: %w", err)
	}

	req := ocrRequest{
		Model:     m.config.Model,
		MaxTokens: 4096,
		Messages: []ocrMessage{{
			Role: "user",
			Content: []ocrContentBlock{
				{Type: "text", Text: "Transcribe all text visible in this image exactly, with no commentary."},
				{Type: "image", Source: &ocrImageSource{
					Type:      "base64",
					MediaType: mimetype,
					Data:      base64.StdEncoding.EncodeToString(data),
				}},
			},
		}},
	}

	var result ocrResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/v1/messages")
	if err != nil {
		return "", fmt.Errorf("ocr request failed: %w", err)
	}
	if resp.IsError() || result.Error != nil {
		msg := resp.String()
		if result.Error != nil {
			msg = result.Error.Message
		}
		return "", fmt.Errorf("ocr request failed: %s", msg)
	}

	var text string
	for _, c := range result.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}
	return text, nil
}
