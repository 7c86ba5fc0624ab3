package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// Gemini generates replies through the Google Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

const (
	geminiTopP float32 = 0.95
	geminiTopK float32 = 64
)

// NewGemini builds a Gemini-backed client for the given model.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key required")
	}
	if model == "" {
		return nil, errors.New("gemini model required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Generate performs one synchronous model call.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	contents := make([]*genai.Content, 0, len(req.Contents))
	for _, c := range req.Contents {
		parts := make([]*genai.Part, 0, len(c.Parts))
		for _, p := range c.Parts {
			if len(p.Data) > 0 {
				parts = append(parts, &genai.Part{
					InlineData: &genai.Blob{MIMEType: p.MIME, Data: p.Data},
				})
				continue
			}
			if p.Text != "" {
				parts = append(parts, &genai.Part{Text: p.Text})
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: string(c.Role), Parts: parts})
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		TopP:            genai.Ptr(geminiTopP),
		TopK:            genai.Ptr(geminiTopK),
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", classify(err)
	}
	return resp.Text(), nil
}

// classify maps SDK failures onto the provider error taxonomy so callers can
// distinguish quota exhaustion from other failures.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &Error{
			Code:        apiErr.Code,
			Message:     apiErr.Message,
			RateLimited: apiErr.Code == http.StatusTooManyRequests,
		}
	}
	return &Error{Message: err.Error()}
}
