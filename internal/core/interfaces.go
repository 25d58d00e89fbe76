package core

import (
	"context"

	"github.com/visiona/stemd/internal/stem"
	"github.com/visiona/stemd/internal/types"
)

// BlockSource yields successive blocks of a detector stream. Next
// returns the zero Block once the stream is exhausted; the processor
// stops dispatching at the first block whose version is the sentinel.
type BlockSource interface {
	// Next decodes and returns the next block
	Next() (types.Block, error)
	// Close releases the underlying source
	Close() error
}

// Sink receives the finished bright/dark fields, exactly once per run.
type Sink interface {
	// Connect prepares the sink before the pipeline starts
	Connect(ctx context.Context) error
	// Publish persists or transmits the two aggregated fields
	Publish(ctx context.Context, fields *types.Fields) error
	// Close releases the sink
	Close() error
}

// MaskFunc builds a read-only annular selection for a rows x columns
// grid. The processor calls it at most once per mask kind, on the
// producer, before any task is enqueued.
type MaskFunc func(rows, columns, innerRadius, outerRadius int) *stem.Mask

// ReduceFunc integrates one image's samples over both masks. It must be
// safe to invoke concurrently from independent tasks against the same
// masks.
type ReduceFunc func(data []uint16, offset, pixels int, bright, dark *stem.Mask, imageNumber uint32) (types.ImageIntensity, error)
