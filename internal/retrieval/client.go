// Package retrieval implements the Retrieval Client: a discipline-scoped,
// topic-informed similarity search against a vector store, with the
// exact two-call fallback semantics confirmed against
// original_source/src/rag/retriever.py.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/examwright/examwright/internal/embedclient"
	"github.com/examwright/examwright/internal/gradeerr"
	"github.com/examwright/examwright/internal/model"
)

// Client is the Retrieval Client. It is shared/read-only across pipeline
// invocations and must be safe under concurrent use; VectorStore
// implementations and Cache are expected to manage their own internal
// synchronization.
type Client struct {
	store    VectorStore
	embedder embedclient.Embedder
	cache    Cache // optional, may be nil
}

// Cache fronts the vector store with a keyed snippet cache (see cache.go
// for the Redis-backed implementation).
type Cache interface {
	Get(ctx context.Context, key string) ([]model.Snippet, bool)
	Set(ctx context.Context, key string, snippets []model.Snippet)
}

func New(store VectorStore, embedder embedclient.Embedder, cache Cache) *Client {
	return &Client{store: store, embedder: embedder, cache: cache}
}

// Search returns up to k context snippets relevant to query, scoped to
// discipline. topic is informational only — it must never be used as a
// hard metadata filter.
func (c *Client) Search(ctx context.Context, query, discipline, topic string, k int) ([]model.Snippet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, gradeerr.New(gradeerr.KindInternal, "retrieval.Search", fmt.Errorf("query must not be empty"))
	}
	if discipline == "" {
		return nil, gradeerr.New(gradeerr.KindInternal, "retrieval.Search", fmt.Errorf("discipline must not be empty"))
	}
	if k < 1 || k > 20 {
		k = 4
	}

	cacheKey := cacheKey(query, discipline, topic, k)
	if c.cache != nil {
		if snippets, ok := c.cache.Get(ctx, cacheKey); ok {
			return snippets, nil
		}
	}

	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, gradeerr.New(gradeerr.KindRetrievalFailed, "retrieval.Search", err)
	}

	snippets, err := c.searchFiltered(ctx, embedding, discipline, topic, k)
	if err != nil {
		return nil, gradeerr.New(gradeerr.KindRetrievalFailed, "retrieval.Search", err)
	}

	if len(snippets) == 0 {
		// Fallback: a second, unfiltered query. Results are annotated
		// with the originally requested discipline, matching
		// original_source/src/rag/retriever.py's fallback behavior
		// exactly (drop filters, keep the label).
		fallback, ferr := c.searchUnfiltered(ctx, embedding, topic, k)
		if ferr != nil {
			return nil, gradeerr.New(gradeerr.KindRetrievalFailed, "retrieval.Search", ferr)
		}
		for i := range fallback {
			fallback[i].Discipline = discipline
		}
		snippets = fallback
	}

	snippets = model.SortSnippetsByRelevance(snippets)
	if c.cache != nil {
		c.cache.Set(ctx, cacheKey, snippets)
	}
	return snippets, nil
}

func (c *Client) searchFiltered(ctx context.Context, embedding []float32, discipline, topic string, k int) ([]model.Snippet, error) {
	results, err := c.store.Search(ctx, SearchQuery{
		Embedding: embedding,
		TopK:      k,
		Filter: &MetadataFilter{
			Must: map[string]interface{}{"discipline": discipline},
		},
		DistanceMetric: DistanceMetricEuclidean,
	})
	if err != nil {
		return nil, err
	}
	return toSnippets(results, topic), nil
}

func (c *Client) searchUnfiltered(ctx context.Context, embedding []float32, topic string, k int) ([]model.Snippet, error) {
	results, err := c.store.Search(ctx, SearchQuery{
		Embedding:      embedding,
		TopK:           k,
		DistanceMetric: DistanceMetricEuclidean,
	})
	if err != nil {
		return nil, err
	}
	return toSnippets(results, topic), nil
}

// toSnippets converts store results into model.Snippet, applying the
// distance-to-relevance conversion:
// relevance = 1 / (1 + distance).
func toSnippets(results []SearchResult, topic string) []model.Snippet {
	snippets := make([]model.Snippet, 0, len(results))
	for _, r := range results {
		relevance := 1.0 / (1.0 + float64(r.Distance))
		page := -1
		if p, ok := r.Document.Metadata["page"].(int); ok {
			page = p
		}
		source, _ := r.Document.Metadata["source"].(string)
		if source == "" {
			source = "unknown"
		}
		discipline, _ := r.Document.Metadata["discipline"].(string)
		snippets = append(snippets, model.Snippet{
			Content:    r.Document.Content,
			Source:     source,
			Page:       page,
			Relevance:  relevance,
			Discipline: discipline,
			Topic:      topic,
		})
	}
	return snippets
}

func cacheKey(query, discipline, topic string, k int) string {
	return fmt.Sprintf("%s|%s|%s|%d", discipline, topic, query, k)
}
