package retrieval

import "context"

// VectorStore is the narrow backend contract the Retrieval Client needs:
// a single similarity search, scoped by the §4.1 discipline filter. The
// grading core never writes to or deletes from the corpus, so the
// interface carries only what it actually calls — corpus ingestion is an
// offline concern outside the grading core, matching the write-only
// boundary internal/gradingstore draws on the output side.
type VectorStore interface {
	Search(ctx context.Context, query SearchQuery) ([]SearchResult, error)
	Close() error
}

// Document is a stored snippet: text content plus the metadata the
// discipline filter and source/page annotations are read from.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]interface{}
}

// SearchQuery is a similarity search against the corpus. Filter is the
// only hard constraint a backend may apply; topic-level intent lives in
// the embedding itself, never as a metadata filter.
type SearchQuery struct {
	Embedding      []float32
	TopK           int
	Filter         *MetadataFilter
	DistanceMetric DistanceMetric
}

// SearchResult is a single match, with Distance in the backend's native
// metric so internal/retrieval can apply the relevance conversion.
type SearchResult struct {
	Document Document
	Distance float32
}

// MetadataFilter expresses the one hard filter the Retrieval Client ever
// issues: an equality match on a metadata field (discipline).
type MetadataFilter struct {
	Must map[string]interface{}
}

// DistanceMetric names the similarity metric a backend should use.
type DistanceMetric string

const (
	DistanceMetricCosine    DistanceMetric = "cosine"
	DistanceMetricEuclidean DistanceMetric = "euclidean"
)
