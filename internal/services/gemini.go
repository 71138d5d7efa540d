package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/marketplace/internal/apperr"
)

// GeminiClient turns a natural-language message into a request descriptor.
type GeminiClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	log     *zap.Logger
}

// NewGeminiClient constructs GeminiClient.
func NewGeminiClient(baseURL, apiKey, model string, timeout time.Duration, log *zap.Logger) *GeminiClient {
	return &GeminiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    newHTTPClient(timeout),
		log:     log,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// GenerateRequest asks the model for a JSON descriptor answering message.
func (c *GeminiClient) GenerateRequest(ctx context.Context, systemPrompt, message string) (string, error) {
	if c.apiKey == "" {
		return "", apperr.New(apperr.ErrUpstream, "AI assistant is not configured")
	}

	payload := map[string]any{
		"systemInstruction": geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		"contents":          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: message}}}},
		"generationConfig":  map[string]any{"responseMimeType": "application/json"},
	}

	resp, err := doRequest(ctx, c.http, "Gemini", RequestOpts{
		Method: http.MethodPost,
		URL:    c.baseURL + "/v1beta/models/" + url.PathEscape(c.model) + ":generateContent",
		Query:  map[string]string{"key": c.apiKey},
		JSON:   payload,
	})
	if err != nil {
		c.log.Error("gemini request failed", zap.Error(err))
		return "", apperr.Wrap(apperr.ErrUpstream, err, "AI assistant unavailable")
	}
	if !resp.OK() {
		c.log.Warn("gemini returned error", zap.Int("status", resp.Status))
		return "", apperr.New(apperr.ErrUpstream, "AI assistant unavailable")
	}

	var body struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", apperr.Wrap(apperr.ErrUpstream, err, "unexpected AI assistant response")
	}

	var text strings.Builder
	if len(body.Candidates) > 0 {
		for _, part := range body.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return "", apperr.New(apperr.ErrUpstream, "AI assistant returned no answer")
	}
	return text.String(), nil
}
