package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/poiesic/pdfrag/core"
)

// Filter restricts a search or count to points whose payload matches.
// A nil Filter or an empty SourceID matches every point.
type Filter struct {
	SourceID string
}

// Matches reports whether payload satisfies the filter.
func (f *Filter) Matches(payload *core.Payload) bool {
	if f == nil || f.SourceID == "" {
		return true
	}
	return payload.SourceID == f.SourceID
}

// VectorStore persists points in named collections and answers similarity queries.
// Implementations must be thread-safe and support concurrent access.
type VectorStore interface {
	// EnsureCollection creates the collection if absent.
	// Returns ErrDimensionMismatch if it exists with different dims.
	EnsureCollection(ctx context.Context, name string, dims int, metric core.Metric) (*core.Collection, error)

	// GetCollection returns collection metadata.
	// Returns ErrCollectionNotFound if the collection doesn't exist.
	GetCollection(ctx context.Context, name string) (*core.Collection, error)

	// DropCollection removes a collection and all of its points.
	// Dropping a missing collection is not an error.
	DropCollection(ctx context.Context, name string) error

	// Upsert inserts or replaces points by ID. Either every point in the call
	// becomes visible or none does.
	Upsert(ctx context.Context, name string, points ...*core.Point) error

	// Search returns the topK points most similar to query, highest score
	// first. Equal scores are ordered by point ID.
	Search(ctx context.Context, name string, query []float32, topK int, filter *Filter) (*core.SearchResult, error)

	// Count returns the number of points matching filter.
	Count(ctx context.Context, name string, filter *Filter) (int, error)

	// GetPoint retrieves a single point by ID.
	// Returns ErrNotFound if the point doesn't exist.
	GetPoint(ctx context.Context, name string, id uuid.UUID) (*core.Point, error)

	// Close releases resources held by the store.
	Close() error
}

// RunRepository persists pipeline runs so memoized step results survive restarts.
type RunRepository interface {
	// SaveRun inserts or replaces a run and updates its UpdatedAt timestamp.
	SaveRun(ctx context.Context, run *core.Run) error

	// GetRun retrieves a run by ID.
	// Returns ErrNotFound if the run doesn't exist.
	GetRun(ctx context.Context, id string) (*core.Run, error)

	// GetRunsByEvent returns every run triggered by the event, oldest first.
	GetRunsByEvent(ctx context.Context, eventID string) ([]*core.Run, error)

	// GetRunsByStatus returns runs in any of the given states, oldest first.
	GetRunsByStatus(ctx context.Context, statuses ...core.RunStatus) ([]*core.Run, error)

	// DeleteRun removes a run and its event index entry.
	DeleteRun(ctx context.Context, id string) error

	// Close releases resources held by the repository.
	Close() error
}
