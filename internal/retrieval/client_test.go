package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}
func (fakeEmbedder) Dimensions() int { return 1 }
func (fakeEmbedder) Name() string    { return "fake" }

type fakeStore struct {
	filteredResults   []SearchResult
	unfilteredResults []SearchResult
}

func (f *fakeStore) Search(_ context.Context, query SearchQuery) ([]SearchResult, error) {
	if query.Filter != nil {
		return f.filteredResults, nil
	}
	return f.unfilteredResults, nil
}

func (f *fakeStore) Close() error { return nil }

func doc(content, source, discipline string, distance float32) SearchResult {
	return SearchResult{
		Document: Document{
			Content: content,
			Metadata: map[string]interface{}{
				"source":     source,
				"discipline": discipline,
			},
		},
		Distance: distance,
	}
}

func TestClient_Search_FilteredHit(t *testing.T) {
	store := &fakeStore{
		filteredResults: []SearchResult{
			doc("snippet one", "book.pdf", "math", 1.0),
			doc("snippet two", "notes.pdf", "math", 0.0),
		},
	}
	c := New(store, fakeEmbedder{}, nil)

	snippets, err := c.Search(context.Background(), "derivative rules", "math", "calculus", 4)
	require.NoError(t, err)
	require.Len(t, snippets, 2)
	// Sorted descending by relevance: distance 0 -> relevance 1.0 first.
	assert.Equal(t, "snippet two", snippets[0].Content)
	assert.Equal(t, 1.0, snippets[0].Relevance)
	assert.Equal(t, "math", snippets[0].Discipline)
}

func TestClient_Search_FallbackOnEmptyFiltered(t *testing.T) {
	store := &fakeStore{
		filteredResults: nil,
		unfilteredResults: []SearchResult{
			doc("global snippet", "global.pdf", "other-discipline", 0.0),
		},
	}
	c := New(store, fakeEmbedder{}, nil)

	snippets, err := c.Search(context.Background(), "niche query", "physics", "optics", 4)
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	// Fallback result is re-labeled with the originally requested discipline.
	assert.Equal(t, "physics", snippets[0].Discipline)
	assert.Equal(t, "global snippet", snippets[0].Content)
}

func TestClient_Search_EmptyQueryRejected(t *testing.T) {
	c := New(&fakeStore{}, fakeEmbedder{}, nil)
	_, err := c.Search(context.Background(), "   ", "math", "algebra", 4)
	assert.Error(t, err)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCacheFromClient(client, "", time.Minute)

	ctx := context.Background()
	_, ok := cache.Get(ctx, "missing")
	assert.False(t, ok)

	store := &fakeStore{filteredResults: []SearchResult{doc("cached snippet", "a.pdf", "math", 0.0)}}
	c := New(store, fakeEmbedder{}, cache)

	first, err := c.Search(ctx, "query text", "math", "algebra", 4)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Second call should hit the cache, not the store; change the
	// store's results to prove it isn't consulted again.
	store.filteredResults = nil
	second, err := c.Search(ctx, "query text", "math", "algebra", 4)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
