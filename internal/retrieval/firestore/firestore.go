// Package firestore implements a production retrieval.VectorStore backed
// by Cloud Firestore, narrowed to the one operation the grading core
// calls: a discipline-filtered similarity search. Firestore has no
// native vector index in the client version pinned here, so the
// discipline filter is pushed down as a native Firestore Where clause
// and the similarity scoring happens client-side over the filtered
// result set.
package firestore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/examwright/examwright/internal/retrieval"
)

// Store is a Firestore-backed corpus of exam snippets.
type Store struct {
	client     *firestore.Client
	collection string
}

// Config holds the fields needed to construct a client, narrowed to
// what the grading domain uses.
type Config struct {
	ProjectID       string
	CredentialsFile string
	Collection      string
}

// Option configures a Store using functional options.
type Option func(*Config)

func WithProjectID(projectID string) Option {
	return func(c *Config) { c.ProjectID = projectID }
}

func WithCredentialsFile(path string) Option {
	return func(c *Config) { c.CredentialsFile = path }
}

func WithCollection(name string) Option {
	return func(c *Config) { c.Collection = name }
}

// New creates a Store against Cloud Firestore. Uses Application Default
// Credentials unless WithCredentialsFile is supplied.
func New(ctx context.Context, opts ...Option) (retrieval.VectorStore, error) {
	cfg := &Config{Collection: "exam_snippets"}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &Store{client: client, collection: cfg.Collection}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// firestoreDocument is the on-disk shape of a seeded snippet.
type firestoreDocument struct {
	Content   string                 `firestore:"content"`
	Embedding []float32              `firestore:"embedding"`
	Metadata  map[string]interface{} `firestore:"metadata"`
}

// Search pushes the discipline equality filter (the only hard filter
// the grading domain allows) down to Firestore, then ranks the
// returned documents client-side by the requested distance metric.
func (s *Store) Search(ctx context.Context, query retrieval.SearchQuery) ([]retrieval.SearchResult, error) {
	fsQuery := s.client.Collection(s.collection).Query
	if query.Filter != nil {
		for key, want := range query.Filter.Must {
			fsQuery = fsQuery.Where("metadata."+key, "==", want)
		}
	}

	iter := fsQuery.Documents(ctx)
	defer iter.Stop()

	var results []retrieval.SearchResult
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate snippets: %w", err)
		}

		var fsDoc firestoreDocument
		if err := snap.DataTo(&fsDoc); err != nil {
			return nil, fmt.Errorf("decode snippet %s: %w", snap.Ref.ID, err)
		}

		dist := distance(query.Embedding, fsDoc.Embedding, query.DistanceMetric)
		results = append(results, retrieval.SearchResult{
			Document: retrieval.Document{
				ID:        snap.Ref.ID,
				Content:   fsDoc.Content,
				Embedding: fsDoc.Embedding,
				Metadata:  fsDoc.Metadata,
			},
			Distance: dist,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })

	k := query.TopK
	if k <= 0 || k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

func distance(a, b []float32, metric retrieval.DistanceMetric) float32 {
	if metric == retrieval.DistanceMetricCosine {
		return 1 - cosineSimilarity(a, b)
	}
	return euclideanDistance(a, b)
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (sqrt32(normA) * sqrt32(normB))
}

func euclideanDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sqrt32(sum)
}

func sqrt32(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}
