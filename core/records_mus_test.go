package core

import (
	"testing"
	"time"

	"github.com/mus-format/mus-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointMUS_RoundTrip(t *testing.T) {
	point := Point{
		ID:     PointID("doc-a", 7),
		Vector: []float32{0.25, -0.5, 1},
		Payload: Payload{
			Source:   "/tmp/a.pdf",
			Text:     "chunk seven",
			SourceID: "doc-a",
		},
	}

	data := Encode(PointMUS, point)
	decoded, err := Decode(PointMUS, data)
	require.NoError(t, err)
	assert.Equal(t, point, decoded)

	n, err := PointMUS.Skip(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
}

func TestRunMUS_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	run := Run{
		ID:       NewRunID(),
		EventID:  NewEventID(),
		Pipeline: EventIngestPDF,
		Status:   RunFailed,
		Input:    Encode(IngestRequestMUS, IngestRequest{PDFPath: "a.pdf", SourceID: "doc-a"}),
		Steps: []StepRecord{
			{Name: "load", Output: []byte{1, 2, 3}, Attempts: 2, LastError: "timeout", CompletedAt: now},
		},
		Reason:     "embedder unavailable",
		Failure:    FailureError,
		Deferrals:  3,
		NotBefore:  now.Add(time.Minute),
		AdmittedAt: now.Add(2 * time.Minute),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	decoded, err := Decode(RunMUS, Encode(RunMUS, run))
	require.NoError(t, err)

	assert.Equal(t, run.ID, decoded.ID)
	assert.Equal(t, run.EventID, decoded.EventID)
	assert.Equal(t, run.Status, decoded.Status)
	assert.Equal(t, run.Failure, decoded.Failure)
	assert.Equal(t, run.Reason, decoded.Reason)
	assert.Equal(t, run.Deferrals, decoded.Deferrals)
	assert.True(t, run.NotBefore.Equal(decoded.NotBefore))
	assert.True(t, run.AdmittedAt.Equal(decoded.AdmittedAt))
	assert.True(t, run.CreatedAt.Equal(decoded.CreatedAt))
	require.Len(t, decoded.Steps, 1)
	assert.Equal(t, "load", decoded.Steps[0].Name)
	assert.Equal(t, []byte{1, 2, 3}, decoded.Steps[0].Output)
	assert.Equal(t, 2, decoded.Steps[0].Attempts)
	assert.True(t, now.Equal(decoded.Steps[0].CompletedAt))

	req, err := Decode(IngestRequestMUS, decoded.Input)
	require.NoError(t, err)
	assert.Equal(t, "doc-a", req.SourceID)
}

func TestStepValueMUS_RoundTrip(t *testing.T) {
	t.Run("loaded document", func(t *testing.T) {
		doc := LoadedDocument{
			Source:      "a.pdf",
			SourceID:    "a.pdf",
			Fingerprint: Fingerprint([]byte("x")),
			Chunks: []Chunk{
				{SourceID: "a.pdf", Index: 0, Text: "first"},
				{SourceID: "a.pdf", Index: 1, Text: "second"},
			},
		}
		decoded, err := Decode(LoadedDocumentMUS, Encode(LoadedDocumentMUS, doc))
		require.NoError(t, err)
		assert.Equal(t, doc, decoded)
	})

	t.Run("retrieved context", func(t *testing.T) {
		rc := RetrievedContext{Question: "what?", Contexts: []string{"a", "b"}, Sources: []string{"x.pdf"}}
		decoded, err := Decode(RetrievedContextMUS, Encode(RetrievedContextMUS, rc))
		require.NoError(t, err)
		assert.Equal(t, rc, decoded)
	})

	t.Run("query result", func(t *testing.T) {
		qr := QueryResult{Answer: "42", Sources: []string{"x.pdf"}, NumContexts: 3}
		decoded, err := Decode(QueryResultMUS, Encode(QueryResultMUS, qr))
		require.NoError(t, err)
		assert.Equal(t, qr, decoded)
	})

	t.Run("query request", func(t *testing.T) {
		q := QueryRequest{Question: "why?", TopK: 5, SourceID: "doc-a"}
		decoded, err := Decode(QueryRequestMUS, Encode(QueryRequestMUS, q))
		require.NoError(t, err)
		assert.Equal(t, q, decoded)
	})

	t.Run("collection", func(t *testing.T) {
		c := Collection{Name: "docs", Dims: 384, Metric: MetricCosine, CreatedAt: time.Now().UTC().Truncate(time.Microsecond)}
		decoded, err := Decode(CollectionMUS, Encode(CollectionMUS, c))
		require.NoError(t, err)
		assert.Equal(t, c.Name, decoded.Name)
		assert.Equal(t, c.Dims, decoded.Dims)
		assert.Equal(t, c.Metric, decoded.Metric)
		assert.True(t, c.CreatedAt.Equal(decoded.CreatedAt))
	})
}

func TestDecode_Truncated(t *testing.T) {
	data := Encode(PointMUS, Point{
		ID:      PointID("doc-a", 0),
		Vector:  []float32{1, 2, 3},
		Payload: Payload{Source: "a", Text: "b"},
	})

	_, err := Decode(PointMUS, data[:10])
	assert.Error(t, err)

	_, err = Decode(UUIDMUS, []byte{1, 2})
	assert.ErrorIs(t, err, mus.ErrTooSmallByteSlice)
}
