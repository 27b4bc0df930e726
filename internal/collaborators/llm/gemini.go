package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"agent-orchestration-service/internal/collaborators/httpclient"
	"agent-orchestration-service/internal/models"
)

// GeminiClient generates content with the Gemini SDK.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiClient, error) {
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: c, model: model, timeout: timeout}, nil
}

func (g *GeminiClient) Generate(ctx context.Context, p Prompt) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	// GenerativeModel returns a fresh handle, so per-call settings never leak across calls.
	m := g.client.GenerativeModel(g.model)
	m.SetTemperature(p.Temperature)
	if p.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(p.System)}}
	}
	resp, err := m.GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		return "", httpclient.Classify(ctx, "gemini generate content", err)
	}
	txt := firstText(resp)
	if txt == "" {
		return "", models.NewError(models.KindCollaboratorFault, "gemini generate content", errors.New("no candidates"))
	}
	return txt, nil
}

func (g *GeminiClient) Close() error { return g.client.Close() }

func firstText(r *genai.GenerateContentResponse) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Candidates {
		if c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, part := range c.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}
