package llmchat

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIChat is the default grading chat backend: it talks to the OpenAI
// (or any OpenAI-compatible) API in JSON-object response-format mode,
// grounded on agents/react.go's direct use of
// github.com/sashabaranov/go-openai (thinkWithOpenAI) rather than a
// hand-rolled HTTP provider.
type OpenAIChat struct {
	client *openai.Client
}

// NewOpenAIChat constructs a chat backend from an API key. baseURL, when
// non-empty, overrides the default OpenAI endpoint (useful for
// OpenAI-compatible gateways).
func NewOpenAIChat(apiKey, baseURL string) *OpenAIChat {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIChat{client: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAIChat) Name() string { return "openai" }

func (c *OpenAIChat) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	creq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	}
	if req.MaxTokens > 0 {
		creq.MaxTokens = req.MaxTokens
	}
	if req.Schema != nil {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewError("openai", CodeUnknown, "no choices in response", nil)
	}

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
	}, nil
}

func classifyOpenAIError(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := CodeUnknown
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			code = CodeRateLimit
		case http.StatusUnauthorized, http.StatusForbidden:
			code = CodeAuth
		case http.StatusBadRequest:
			code = CodeInvalid
		case http.StatusGatewayTimeout, http.StatusRequestTimeout:
			code = CodeTimeout
		default:
			if apiErr.HTTPStatusCode >= 500 {
				code = CodeServerError
			}
		}
		return NewError("openai", code, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewError("openai", CodeServerError, reqErr.Error(), err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError("openai", CodeTimeout, err.Error(), err)
	}

	return NewError("openai", CodeUnknown, err.Error(), err)
}
