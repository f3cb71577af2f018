package embedclient

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIEmbedder is an alternate embedding backend using Google's genai
// SDK. google.golang.org/genai is pinned in go.mod but otherwise unused
// until now; this is that dependency's first real caller.
type GenAIEmbedder struct {
	client *genai.Client
	model  string
	dims   int
}

func NewGenAIEmbedder(ctx context.Context, apiKey, model string) (*GenAIEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	if model == "" {
		model = "text-embedding-004"
	}
	return &GenAIEmbedder{client: client, model: model, dims: 768}, nil
}

func (e *GenAIEmbedder) Name() string    { return "genai" }
func (e *GenAIEmbedder) Dimensions() int { return e.dims }

func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := e.client.Models.EmbedContent(ctx, e.model,
		genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("genai embed: %w", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("genai embed: empty response")
	}
	return result.Embeddings[0].Values, nil
}
