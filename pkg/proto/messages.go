// Package proto defines the message types carried over the JSON-over-TCP
// RPC layer (see pkg/grpc) and the Kafka ingest topic.
package proto

// RPC method names served by the search process.
const (
	MethodIndex      = "SearchService.Index"
	MethodSearch     = "SearchService.Search"
	MethodGeneration = "SearchService.Generation"
	MethodHealth     = "SearchService.Health"
)

// Error codes attached to RPC failures.
const (
	CodeInvalidDocument    = "invalid_document"
	CodeEmptyCorpus        = "empty_corpus"
	CodeMalformedQuery     = "malformed_query"
	CodeInvalidLimit       = "invalid_limit"
	CodeGenerationMismatch = "generation_mismatch"
	CodeIndexingFailed     = "indexing_failed"
	CodeInvalidRequest     = "invalid_request"
)

// ---------- Common ----------

// Document is a document on the wire: an ID plus named text fields.
type Document struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// HealthCheckResponse mirrors the gRPC health check spec.
type HealthCheckResponse struct {
	Status     string `json:"status"` // SERVING, NOT_SERVING
	Generation uint64 `json:"generation"`
}

// ---------- Search ----------

// SearchRequest is the input to the Search RPC.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int32  `json:"limit"`
}

// SearchResponse is the output of the Search RPC.
type SearchResponse struct {
	Query      string         `json:"query"`
	Generation uint64         `json:"generation"`
	TotalHits  int32          `json:"total_hits"`
	Results    []SearchResult `json:"results"`
	LatencyMs  int64          `json:"latency_ms"`
	Cached     bool           `json:"cached,omitempty"`
}

// SearchResult is a single scored document in the result set.
type SearchResult struct {
	DocID        string   `json:"doc_id"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// ---------- Index ----------

// IndexRequest is the input to the Index RPC and the payload of ingest
// topic messages. The batch replaces the searchable corpus.
type IndexRequest struct {
	Documents []Document `json:"documents"`
}

// IndexResponse is the output of the Index RPC.
type IndexResponse struct {
	Generation uint64 `json:"generation"`
	Documents  int    `json:"documents"`
	Terms      int    `json:"terms"`
	DurationMs int64  `json:"duration_ms"`
}

// GenerationResponse describes the generation serving queries.
type GenerationResponse struct {
	ID            uint64  `json:"id"`
	State         string  `json:"state"`
	Documents     int     `json:"documents"`
	Terms         int     `json:"terms"`
	AvgDocLength  float64 `json:"avg_doc_length"`
	BuiltAt       int64   `json:"built_at"`
	ActiveQueries int64   `json:"active_queries"`
}
