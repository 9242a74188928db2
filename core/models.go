package core

import (
	"time"

	"github.com/google/uuid"
)

// Event names accepted by the orchestrator.
const (
	EventIngestPDF  = "rag/ingest_pdf"
	EventQueryPDFAI = "rag/query_pdf_ai"
)

// Deployment defaults.
const (
	DefaultDims      = 384
	DefaultTopK      = 5
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Document is the raw text extracted from one input file. It is transient
// and never stored.
type Document struct {
	ID      string
	RawText string
}

// Chunk is a contiguous slice of a document's text.
// Index is the zero-based position of the chunk within its source.
type Chunk struct {
	SourceID string
	Index    int
	Text     string
}

// Metric identifies the similarity function of a collection.
type Metric string

const (
	// MetricCosine scores points by cosine similarity.
	MetricCosine Metric = "cosine"
)

// Collection describes a named set of points with a fixed dimensionality.
type Collection struct {
	Name      string
	Dims      int
	Metric    Metric
	CreatedAt time.Time
}

// Payload is the typed metadata stored alongside every point.
type Payload struct {
	Source   string // Document path the chunk came from
	Text     string // Chunk text
	SourceID string // Optional caller-supplied source identifier
}

// Point is a vector plus payload, addressed by a deterministic ID.
type Point struct {
	ID      uuid.UUID
	Vector  []float32
	Payload Payload
}

// Hit is a scored point returned from a similarity search.
type Hit struct {
	ID      uuid.UUID
	Score   float32
	Payload Payload
}

// SearchResult is the outcome of a similarity search.
type SearchResult struct {
	Contexts []string // Chunk texts in result order
	Sources  []string // Distinct payload sources, first-seen order
	Hits     []Hit
}

// IngestRequest is the data of an ingest_pdf event.
type IngestRequest struct {
	PDFPath  string `json:"pdf_path" yaml:"pdf_path"`
	SourceID string `json:"source_id,omitempty" yaml:"source_id,omitempty"`
}

// QueryRequest is the data of a query_pdf_ai event.
type QueryRequest struct {
	Question string `json:"question" yaml:"question"`
	TopK     int    `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	SourceID string `json:"source_id,omitempty" yaml:"source_id,omitempty"`
}

// LoadedDocument is the memoized output of the ingest load step.
type LoadedDocument struct {
	Source      string
	SourceID    string
	Fingerprint string
	Chunks      []Chunk
}

// RetrievedContext is the memoized output of the query retrieval step.
type RetrievedContext struct {
	Question string
	Contexts []string
	Sources  []string
}

// IngestResult is the output of a completed ingest run.
type IngestResult struct {
	Ingested int `json:"ingested"`
}

// QueryResult is the output of a completed query run.
type QueryResult struct {
	Answer      string   `json:"answer"`
	Sources     []string `json:"sources"`
	NumContexts int      `json:"num_contexts"`
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunPending   RunStatus = "Pending"
	RunRunning   RunStatus = "Running"
	RunCompleted RunStatus = "Completed"
	RunFailed    RunStatus = "Failed"
)

// Terminal reports whether no further transitions are possible.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// FailureKind distinguishes why a run failed.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureError     FailureKind = "error"
	FailureCancelled FailureKind = "cancelled"
)

// StepRecord is the memoized result of one completed step.
type StepRecord struct {
	Name        string
	Output      []byte // Step output, encoded with the step's codec
	Attempts    int
	LastError   string // Last transient error seen before success
	CompletedAt time.Time
}

// Run is one execution of a pipeline for one event.
type Run struct {
	ID         string
	EventID    string
	Pipeline   string
	Status     RunStatus
	Input      []byte // Event data, encoded with the pipeline's input codec
	Steps      []StepRecord
	Output     []byte // Final step output once Completed
	Reason     string // Human-readable failure or deferral reason
	Failure    FailureKind
	Deferrals  int
	NotBefore  time.Time // Earliest admission retry while deferred
	AdmittedAt time.Time // Zero until the rate limiter admits the run
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Step returns the memoized record for the named step, if any.
func (r *Run) Step(name string) (StepRecord, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepRecord{}, false
}
