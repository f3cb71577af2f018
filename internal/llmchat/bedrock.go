package llmchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
)

// BedrockChat is an alternate chat backend, typically selected for the
// ARBITER role via Config.ArbiterProvider. aws-sdk-go-v2/service/bedrockruntime
// is pinned in go.mod but otherwise unused until now; this is that
// dependency's first real caller.
type BedrockChat struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockChat builds a Bedrock runtime client for the given AWS
// region. modelID is the Bedrock model identifier, e.g.
// "anthropic.claude-3-5-sonnet-20241022-v2:0".
func NewBedrockChat(ctx context.Context, region, modelID string) (*BedrockChat, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &BedrockChat{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}, nil
}

func (c *BedrockChat) Name() string { return "bedrock" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature"`
	Messages         []anthropicMessage `json:"messages"`
	System           string             `json:"system,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
}

func (c *BedrockChat) Complete(ctx context.Context, req Request) (*Response, error) {
	var system string
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	body, err := json.Marshal(anthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Temperature:      req.Temperature,
		Messages:         messages,
		System:           system,
	})
	if err != nil {
		return nil, NewError("bedrock", CodeInvalid, "marshal request", err)
	}

	out, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, classifyBedrockError(err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return nil, NewError("bedrock", CodeUnknown, "unmarshal response", err)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &Response{Content: text, FinishReason: parsed.StopReason}, nil
}

func classifyBedrockError(err error) *Error {
	var throttling *types.ThrottlingException
	if errors.As(err, &throttling) {
		return NewError("bedrock", CodeRateLimit, throttling.ErrorMessage(), err)
	}
	var serviceUnavailable *types.ServiceUnavailableException
	if errors.As(err, &serviceUnavailable) {
		return NewError("bedrock", CodeServerError, serviceUnavailable.ErrorMessage(), err)
	}
	var internal *types.InternalServerException
	if errors.As(err, &internal) {
		return NewError("bedrock", CodeServerError, internal.ErrorMessage(), err)
	}
	var modelTimeout *types.ModelTimeoutException
	if errors.As(err, &modelTimeout) {
		return NewError("bedrock", CodeTimeout, modelTimeout.ErrorMessage(), err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return NewError("bedrock", CodeUnknown, apiErr.ErrorMessage(), err)
	}
	return NewError("bedrock", CodeUnknown, err.Error(), err)
}
