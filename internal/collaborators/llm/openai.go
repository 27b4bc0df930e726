package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"agent-orchestration-service/internal/collaborators/httpclient"
	"agent-orchestration-service/internal/models"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	APIKey  string
	Model   string
	BaseURL string
	http    *httpclient.Client
}

func NewOpenAIClient(apiKey, model, baseURL string, timeout time.Duration) (*OpenAIClient, error) {
	hc, err := httpclient.New(timeout)
	if err != nil {
		return nil, err
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIClient{APIKey: apiKey, Model: model, BaseURL: strings.TrimRight(baseURL, "/"), http: hc}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) Generate(ctx context.Context, p Prompt) (string, error) {
	body := chatRequest{Model: c.Model, Temperature: p.Temperature}
	if p.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: p.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: p.User})

	var resp chatResponse
	err := c.http.Do(ctx, "openai chat completion", httpclient.Request{
		Method:  consts.MethodPost,
		URL:     c.BaseURL + "/v1/chat/completions",
		Headers: map[string]string{"Authorization": "Bearer " + c.APIKey},
		Body:    body,
		Out:     &resp,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", models.NewError(models.KindCollaboratorFault, "openai chat completion", errors.New("no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}
