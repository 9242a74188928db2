// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"github.com/google/uuid"
	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for every persisted record and every memoized step value.
// Fields are encoded in declaration order; appending a field is a format change.
var (
	UUIDMUS             mus.Serializer[uuid.UUID]        = uuidMUS{}
	PayloadMUS          mus.Serializer[Payload]          = payloadMUS{}
	PointMUS            mus.Serializer[Point]            = pointMUS{}
	CollectionMUS       mus.Serializer[Collection]       = collectionMUS{}
	ChunkMUS            mus.Serializer[Chunk]            = chunkMUS{}
	StepRecordMUS       mus.Serializer[StepRecord]       = stepRecordMUS{}
	RunMUS              mus.Serializer[Run]              = runMUS{}
	IngestRequestMUS    mus.Serializer[IngestRequest]    = ingestRequestMUS{}
	QueryRequestMUS     mus.Serializer[QueryRequest]     = queryRequestMUS{}
	LoadedDocumentMUS   mus.Serializer[LoadedDocument]   = loadedDocumentMUS{}
	RetrievedContextMUS mus.Serializer[RetrievedContext] = retrievedContextMUS{}
	IngestResultMUS     mus.Serializer[IngestResult]     = ingestResultMUS{}
	QueryResultMUS      mus.Serializer[QueryResult]      = queryResultMUS{}
)

var (
	vectorMUS  = ord.NewSliceSer[float32](raw.Float32)
	stringsMUS = ord.NewSliceSer[string](ord.String)
	chunksMUS  = ord.NewSliceSer[Chunk](ChunkMUS)
	stepsMUS   = ord.NewSliceSer[StepRecord](StepRecordMUS)
	timeMUS    = raw.TimeUnixMicroUTC
)

// field unmarshals the next value from bs[*n:] into dst and advances n.
func field[T any](ser mus.Serializer[T], bs []byte, n *int, dst *T) (err error) {
	var n1 int
	*dst, n1, err = ser.Unmarshal(bs[*n:])
	*n += n1
	return
}

// skip derives Skip from Unmarshal for composite records.
func skip[T any](ser mus.Serializer[T], bs []byte) (n int, err error) {
	_, n, err = ser.Unmarshal(bs)
	return
}

type uuidMUS struct{}

func (uuidMUS) Marshal(v uuid.UUID, bs []byte) (n int) {
	_ = bs[len(v)-1]
	return copy(bs, v[:])
}

func (uuidMUS) Unmarshal(bs []byte) (v uuid.UUID, n int, err error) {
	if len(bs) < len(v) {
		err = mus.ErrTooSmallByteSlice
		return
	}
	n = copy(v[:], bs)
	return
}

func (uuidMUS) Size(v uuid.UUID) int { return len(v) }

func (s uuidMUS) Skip(bs []byte) (n int, err error) { return skip[uuid.UUID](s, bs) }

type payloadMUS struct{}

func (payloadMUS) Marshal(v Payload, bs []byte) (n int) {
	n = ord.String.Marshal(v.Source, bs)
	n += ord.String.Marshal(v.Text, bs[n:])
	n += ord.String.Marshal(v.SourceID, bs[n:])
	return
}

func (payloadMUS) Unmarshal(bs []byte) (v Payload, n int, err error) {
	if err = field(ord.String, bs, &n, &v.Source); err != nil {
		return
	}
	if err = field(ord.String, bs, &n, &v.Text); err != nil {
		return
	}
	err = field(ord.String, bs, &n, &v.SourceID)
	return
}

func (payloadMUS) Size(v Payload) int {
	return ord.String.Size(v.Source) + ord.String.Size(v.Text) + ord.String.Size(v.SourceID)
}

func (s payloadMUS) Skip(bs []byte) (n int, err error) { return skip[Payload](s, bs) }

type pointMUS struct{}

func (pointMUS) Marshal(v Point, bs []byte) (n int) {
	n = UUIDMUS.Marshal(v.ID, bs)
	n += vectorMUS.Marshal(v.Vector, bs[n:])
	n += PayloadMUS.Marshal(v.Payload, bs[n:])
	return
}

func (pointMUS) Unmarshal(bs []byte) (v Point, n int, err error) {
	if err = field(UUIDMUS, bs, &n, &v.ID); err != nil {
		return
	}
	if err = field[[]float32](vectorMUS, bs, &n, &v.Vector); err != nil {
		return
	}
	err = field(PayloadMUS, bs, &n, &v.Payload)
	return
}

func (pointMUS) Size(v Point) int {
	return UUIDMUS.Size(v.ID) + vectorMUS.Size(v.Vector) + PayloadMUS.Size(v.Payload)
}

func (s pointMUS) Skip(bs []byte) (n int, err error) { return skip[Point](s, bs) }

type collectionMUS struct{}

func (collectionMUS) Marshal(v Collection, bs []byte) (n int) {
	n = ord.String.Marshal(v.Name, bs)
	n += varint.Int.Marshal(v.Dims, bs[n:])
	n += ord.String.Marshal(string(v.Metric), bs[n:])
	n += timeMUS.Marshal(v.CreatedAt, bs[n:])
	return
}

func (collectionMUS) Unmarshal(bs []byte) (v Collection, n int, err error) {
	if err = field(ord.String, bs, &n, &v.Name); err != nil {
		return
	}
	if err = field(varint.Int, bs, &n, &v.Dims); err != nil {
		return
	}
	var metric string
	if err = field(ord.String, bs, &n, &metric); err != nil {
		return
	}
	v.Metric = Metric(metric)
	err = field(timeMUS, bs, &n, &v.CreatedAt)
	return
}

func (collectionMUS) Size(v Collection) int {
	return ord.String.Size(v.Name) + varint.Int.Size(v.Dims) +
		ord.String.Size(string(v.Metric)) + timeMUS.Size(v.CreatedAt)
}

func (s collectionMUS) Skip(bs []byte) (n int, err error) { return skip[Collection](s, bs) }

type chunkMUS struct{}

func (chunkMUS) Marshal(v Chunk, bs []byte) (n int) {
	n = ord.String.Marshal(v.SourceID, bs)
	n += varint.Int.Marshal(v.Index, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	return
}

func (chunkMUS) Unmarshal(bs []byte) (v Chunk, n int, err error) {
	if err = field(ord.String, bs, &n, &v.SourceID); err != nil {
		return
	}
	if err = field(varint.Int, bs, &n, &v.Index); err != nil {
		return
	}
	err = field(ord.String, bs, &n, &v.Text)
	return
}

func (chunkMUS) Size(v Chunk) int {
	return ord.String.Size(v.SourceID) + varint.Int.Size(v.Index) + ord.String.Size(v.Text)
}

func (s chunkMUS) Skip(bs []byte) (n int, err error) { return skip[Chunk](s, bs) }

type stepRecordMUS struct{}

func (stepRecordMUS) Marshal(v StepRecord, bs []byte) (n int) {
	n = ord.String.Marshal(v.Name, bs)
	n += ord.ByteSlice.Marshal(v.Output, bs[n:])
	n += varint.Int.Marshal(v.Attempts, bs[n:])
	n += ord.String.Marshal(v.LastError, bs[n:])
	n += timeMUS.Marshal(v.CompletedAt, bs[n:])
	return
}

func (stepRecordMUS) Unmarshal(bs []byte) (v StepRecord, n int, err error) {
	if err = field(ord.String, bs, &n, &v.Name); err != nil {
		return
	}
	if err = field[[]byte](ord.ByteSlice, bs, &n, &v.Output); err != nil {
		return
	}
	if err = field(varint.Int, bs, &n, &v.Attempts); err != nil {
		return
	}
	if err = field(ord.String, bs, &n, &v.LastError); err != nil {
		return
	}
	err = field(timeMUS, bs, &n, &v.CompletedAt)
	return
}

func (stepRecordMUS) Size(v StepRecord) int {
	return ord.String.Size(v.Name) + ord.ByteSlice.Size(v.Output) + varint.Int.Size(v.Attempts) +
		ord.String.Size(v.LastError) + timeMUS.Size(v.CompletedAt)
}

func (s stepRecordMUS) Skip(bs []byte) (n int, err error) { return skip[StepRecord](s, bs) }

type runMUS struct{}

func (runMUS) Marshal(v Run, bs []byte) (n int) {
	n = ord.String.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.EventID, bs[n:])
	n += ord.String.Marshal(v.Pipeline, bs[n:])
	n += ord.String.Marshal(string(v.Status), bs[n:])
	n += ord.ByteSlice.Marshal(v.Input, bs[n:])
	n += stepsMUS.Marshal(v.Steps, bs[n:])
	n += ord.ByteSlice.Marshal(v.Output, bs[n:])
	n += ord.String.Marshal(v.Reason, bs[n:])
	n += ord.String.Marshal(string(v.Failure), bs[n:])
	n += varint.Int.Marshal(v.Deferrals, bs[n:])
	n += timeMUS.Marshal(v.NotBefore, bs[n:])
	n += timeMUS.Marshal(v.AdmittedAt, bs[n:])
	n += timeMUS.Marshal(v.CreatedAt, bs[n:])
	n += timeMUS.Marshal(v.UpdatedAt, bs[n:])
	return
}

func (runMUS) Unmarshal(bs []byte) (v Run, n int, err error) {
	var status, failure string
	if err = field(ord.String, bs, &n, &v.ID); err != nil {
		return
	}
	if err = field(ord.String, bs, &n, &v.EventID); err != nil {
		return
	}
	if err = field(ord.String, bs, &n, &v.Pipeline); err != nil {
		return
	}
	if err = field(ord.String, bs, &n, &status); err != nil {
		return
	}
	v.Status = RunStatus(status)
	if err = field[[]byte](ord.ByteSlice, bs, &n, &v.Input); err != nil {
		return
	}
	if err = field[[]StepRecord](stepsMUS, bs, &n, &v.Steps); err != nil {
		return
	}
	if err = field[[]byte](ord.ByteSlice, bs, &n, &v.Output); err != nil {
		return
	}
	if err = field(ord.String, bs, &n, &v.Reason); err != nil {
		return
	}
	if err = field(ord.String, bs, &n, &failure); err != nil {
		return
	}
	v.Failure = FailureKind(failure)
	if err = field(varint.Int, bs, &n, &v.Deferrals); err != nil {
		return
	}
	if err = field(timeMUS, bs, &n, &v.NotBefore); err != nil {
		return
	}
	if err = field(timeMUS, bs, &n, &v.AdmittedAt); err != nil {
		return
	}
	if err = field(timeMUS, bs, &n, &v.CreatedAt); err != nil {
		return
	}
	err = field(timeMUS, bs, &n, &v.UpdatedAt)
	return
}

func (runMUS) Size(v Run) int {
	return ord.String.Size(v.ID) +
		ord.String.Size(v.EventID) +
		ord.String.Size(v.Pipeline) +
		ord.String.Size(string(v.Status)) +
		ord.ByteSlice.Size(v.Input) +
		stepsMUS.Size(v.Steps) +
		ord.ByteSlice.Size(v.Output) +
		ord.String.Size(v.Reason) +
		ord.String.Size(string(v.Failure)) +
		varint.Int.Size(v.Deferrals) +
		timeMUS.Size(v.NotBefore) +
		timeMUS.Size(v.AdmittedAt) +
		timeMUS.Size(v.CreatedAt) +
		timeMUS.Size(v.UpdatedAt)
}

func (s runMUS) Skip(bs []byte) (n int, err error) { return skip[Run](s, bs) }

type ingestRequestMUS struct{}

func (ingestRequestMUS) Marshal(v IngestRequest, bs []byte) (n int) {
	n = ord.String.Marshal(v.PDFPath, bs)
	n += ord.String.Marshal(v.SourceID, bs[n:])
	return
}

func (ingestRequestMUS) Unmarshal(bs []byte) (v IngestRequest, n int, err error) {
	if err = field(ord.String, bs, &n, &v.PDFPath); err != nil {
		return
	}
	err = field(ord.String, bs, &n, &v.SourceID)
	return
}

func (ingestRequestMUS) Size(v IngestRequest) int {
	return ord.String.Size(v.PDFPath) + ord.String.Size(v.SourceID)
}

func (s ingestRequestMUS) Skip(bs []byte) (n int, err error) { return skip[IngestRequest](s, bs) }

type queryRequestMUS struct{}

func (queryRequestMUS) Marshal(v QueryRequest, bs []byte) (n int) {
	n = ord.String.Marshal(v.Question, bs)
	n += varint.Int.Marshal(v.TopK, bs[n:])
	n += ord.String.Marshal(v.SourceID, bs[n:])
	return
}

func (queryRequestMUS) Unmarshal(bs []byte) (v QueryRequest, n int, err error) {
	if err = field(ord.String, bs, &n, &v.Question); err != nil {
		return
	}
	if err = field(varint.Int, bs, &n, &v.TopK); err != nil {
		return
	}
	err = field(ord.String, bs, &n, &v.SourceID)
	return
}

func (queryRequestMUS) Size(v QueryRequest) int {
	return ord.String.Size(v.Question) + varint.Int.Size(v.TopK) + ord.String.Size(v.SourceID)
}

func (s queryRequestMUS) Skip(bs []byte) (n int, err error) { return skip[QueryRequest](s, bs) }

type loadedDocumentMUS struct{}

func (loadedDocumentMUS) Marshal(v LoadedDocument, bs []byte) (n int) {
	n = ord.String.Marshal(v.Source, bs)
	n += ord.String.Marshal(v.SourceID, bs[n:])
	n += ord.String.Marshal(v.Fingerprint, bs[n:])
	n += chunksMUS.Marshal(v.Chunks, bs[n:])
	return
}

func (loadedDocumentMUS) Unmarshal(bs []byte) (v LoadedDocument, n int, err error) {
	if err = field(ord.String, bs, &n, &v.Source); err != nil {
		return
	}
	if err = field(ord.String, bs, &n, &v.SourceID); err != nil {
		return
	}
	if err = field(ord.String, bs, &n, &v.Fingerprint); err != nil {
		return
	}
	err = field[[]Chunk](chunksMUS, bs, &n, &v.Chunks)
	return
}

func (loadedDocumentMUS) Size(v LoadedDocument) int {
	return ord.String.Size(v.Source) + ord.String.Size(v.SourceID) +
		ord.String.Size(v.Fingerprint) + chunksMUS.Size(v.Chunks)
}

func (s loadedDocumentMUS) Skip(bs []byte) (n int, err error) { return skip[LoadedDocument](s, bs) }

type retrievedContextMUS struct{}

func (retrievedContextMUS) Marshal(v RetrievedContext, bs []byte) (n int) {
	n = ord.String.Marshal(v.Question, bs)
	n += stringsMUS.Marshal(v.Contexts, bs[n:])
	n += stringsMUS.Marshal(v.Sources, bs[n:])
	return
}

func (retrievedContextMUS) Unmarshal(bs []byte) (v RetrievedContext, n int, err error) {
	if err = field(ord.String, bs, &n, &v.Question); err != nil {
		return
	}
	if err = field[[]string](stringsMUS, bs, &n, &v.Contexts); err != nil {
		return
	}
	err = field[[]string](stringsMUS, bs, &n, &v.Sources)
	return
}

func (retrievedContextMUS) Size(v RetrievedContext) int {
	return ord.String.Size(v.Question) + stringsMUS.Size(v.Contexts) + stringsMUS.Size(v.Sources)
}

func (s retrievedContextMUS) Skip(bs []byte) (n int, err error) {
	return skip[RetrievedContext](s, bs)
}

type ingestResultMUS struct{}

func (ingestResultMUS) Marshal(v IngestResult, bs []byte) (n int) {
	return varint.Int.Marshal(v.Ingested, bs)
}

func (ingestResultMUS) Unmarshal(bs []byte) (v IngestResult, n int, err error) {
	err = field(varint.Int, bs, &n, &v.Ingested)
	return
}

func (ingestResultMUS) Size(v IngestResult) int { return varint.Int.Size(v.Ingested) }

func (s ingestResultMUS) Skip(bs []byte) (n int, err error) { return skip[IngestResult](s, bs) }

type queryResultMUS struct{}

func (queryResultMUS) Marshal(v QueryResult, bs []byte) (n int) {
	n = ord.String.Marshal(v.Answer, bs)
	n += stringsMUS.Marshal(v.Sources, bs[n:])
	n += varint.Int.Marshal(v.NumContexts, bs[n:])
	return
}

func (queryResultMUS) Unmarshal(bs []byte) (v QueryResult, n int, err error) {
	if err = field(ord.String, bs, &n, &v.Answer); err != nil {
		return
	}
	if err = field[[]string](stringsMUS, bs, &n, &v.Sources); err != nil {
		return
	}
	err = field(varint.Int, bs, &n, &v.NumContexts)
	return
}

func (queryResultMUS) Size(v QueryResult) int {
	return ord.String.Size(v.Answer) + stringsMUS.Size(v.Sources) + varint.Int.Size(v.NumContexts)
}

func (s queryResultMUS) Skip(bs []byte) (n int, err error) { return skip[QueryResult](s, bs) }

// Encode marshals v with ser into a new buffer.
func Encode[T any](ser mus.Serializer[T], v T) []byte {
	buf := make([]byte, ser.Size(v))
	ser.Marshal(v, buf)
	return buf
}

// Decode unmarshals a value encoded with ser.
func Decode[T any](ser mus.Serializer[T], data []byte) (T, error) {
	v, _, err := ser.Unmarshal(data)
	return v, err
}
