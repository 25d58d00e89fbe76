package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/visiona/stemd/internal/config"
	"github.com/visiona/stemd/internal/stem"
	"github.com/visiona/stemd/internal/types"
)

// ErrConfigMismatch reports output dimensions that disagree with the
// grid dimensions decoded from the stream's first block.
var ErrConfigMismatch = errors.New("output dimensions do not match stream grid")

// Processor runs the decode/compute/scatter pipeline for one stream:
// a single producer decodes blocks and dispatches one task per block
// into a fixed worker pool over a bounded queue, then a single-threaded
// finalize phase drains every pending result, in enqueue order, into
// the two output fields.
type Processor struct {
	cfg    *config.Config
	source BlockSource
	sink   Sink

	// injectable for tests; production wiring uses the stem package
	newMask MaskFunc
	reduce  ReduceFunc

	traceID      string
	monitorEvery time.Duration

	mu    sync.Mutex
	stats Stats
}

// task carries one block into the worker pool together with the shared
// masks. The block's buffer is owned by exactly this task; out receives
// the block's result exactly once.
type task struct {
	block  types.Block
	bright *stem.Mask
	dark   *stem.Mask
	out    chan result
}

// result is what a worker hands back for one block
type result struct {
	values []types.ImageIntensity
	err    error
}

// Stats counts pipeline progress for one run. Valid once Run returned.
type Stats struct {
	Blocks  uint64
	Images  uint64
	Samples uint64
	Elapsed time.Duration
}

// New creates a processor for the given source and sink.
func New(cfg *config.Config, source BlockSource, sink Sink) *Processor {
	return &Processor{
		cfg:          cfg,
		source:       source,
		sink:         sink,
		newMask:      stem.NewAnnularMask,
		reduce:       reduceIntensity,
		traceID:      uuid.New().String(),
		monitorEvery: 10 * time.Second,
	}
}

// reduceIntensity adapts stem.CalculateIntensity to the ReduceFunc
// contract. A block whose payload cannot cover the requested image is a
// task failure, never an out-of-range read.
func reduceIntensity(data []uint16, offset, pixels int, bright, dark *stem.Mask, imageNumber uint32) (types.ImageIntensity, error) {
	if offset+pixels > len(data) {
		return types.ImageIntensity{}, fmt.Errorf("image %d needs samples [%d:%d], block holds %d",
			imageNumber, offset, offset+pixels, len(data))
	}
	return stem.CalculateIntensity(data, offset, pixels, bright, dark, imageNumber), nil
}

// TraceID returns the identifier tagging this run's logs and messages.
func (p *Processor) TraceID() string {
	return p.traceID
}

// Stats returns a snapshot of the pipeline counters. Safe to call while
// the run is in progress; Elapsed is set once Run returns.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Run executes the pipeline to completion and returns the finished
// fields after handing them to the sink. Warm-up builds both masks from
// the first block before anything is enqueued; dispatch stops at the
// sentinel; scatter drains results in enqueue order, so a duplicate
// image number keeps the value drained later. Any failure aborts the
// run; slots scattered before a failure are not rolled back.
func (p *Processor) Run(ctx context.Context) (*types.Fields, error) {
	start := time.Now()

	workers := p.cfg.Pipeline.Concurrency
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	depth := p.cfg.Pipeline.QueueDepth
	if depth <= 0 {
		depth = workers * 2
	}

	slog.Info("core: pipeline starting",
		"trace_id", p.traceID,
		"stream_id", p.cfg.Stream.ID,
		"workers", workers,
		"queue_depth", depth,
		"output", fmt.Sprintf("%dx%d", p.cfg.Output.Width, p.cfg.Output.Height),
	)

	if err := p.sink.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect sink: %w", err)
	}

	stopMonitor := make(chan struct{})
	go p.monitor(stopMonitor)
	defer close(stopMonitor)

	fields := types.NewFields(p.cfg.Output.Width, p.cfg.Output.Height)
	fields.TraceID = p.traceID

	// Warm-up: the first block fixes the grid. A stream that opens with
	// the sentinel yields all-zero fields and never constructs a mask.
	first, err := p.source.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to read block: %w", err)
	}
	if first.EndOfStream() {
		slog.Info("core: stream ended before any block", "trace_id", p.traceID)
		if err := p.sink.Publish(ctx, fields); err != nil {
			return nil, fmt.Errorf("failed to publish fields: %w", err)
		}
		p.setElapsed(time.Since(start))
		p.logSummary(fields)
		return fields, nil
	}

	rows := int(first.Header.Rows)
	columns := int(first.Header.Columns)
	if p.cfg.Output.Width != columns || p.cfg.Output.Height != rows {
		return nil, fmt.Errorf("%w: output %dx%d, stream %dx%d",
			ErrConfigMismatch, p.cfg.Output.Width, p.cfg.Output.Height, columns, rows)
	}

	// Both masks are fully constructed here, on the producer, before
	// any task referencing them is enqueued.
	bright := p.newMask(rows, columns, p.cfg.Masks.Bright.Inner, p.cfg.Masks.Bright.Outer)
	dark := p.newMask(rows, columns, p.cfg.Masks.Dark.Inner, p.cfg.Masks.Dark.Outer)

	slog.Debug("core: masks constructed",
		"trace_id", p.traceID,
		"grid", fmt.Sprintf("%dx%d", rows, columns),
		"bright_pixels", bright.Count(),
		"dark_pixels", dark.Count(),
	)

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan task, depth)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			return p.worker(gctx, jobs)
		})
	}

	// Run itself is the producer: it owns the source and blocks on the
	// jobs channel once the pool falls behind.
	handles, dispatchErr := p.dispatch(gctx, jobs, first, bright, dark)
	close(jobs)

	var scatterErr error
	if dispatchErr == nil {
		scatterErr = p.scatter(gctx, fields, handles)
	}

	// The first worker error is the causal one; dispatch and scatter
	// abort with a context error once the group context is cancelled.
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("worker failed: %w", err)
	}
	if dispatchErr != nil {
		return nil, dispatchErr
	}
	if scatterErr != nil {
		return nil, scatterErr
	}

	p.setElapsed(time.Since(start))

	if err := p.sink.Publish(ctx, fields); err != nil {
		return nil, fmt.Errorf("failed to publish fields: %w", err)
	}

	p.logSummary(fields)
	return fields, nil
}

func (p *Processor) setElapsed(d time.Duration) {
	p.mu.Lock()
	p.stats.Elapsed = d
	p.mu.Unlock()
}

// dispatch decodes blocks and enqueues one task per block until the
// stream ends, returning the pending-result handles in enqueue order.
// The sentinel block is never enqueued.
func (p *Processor) dispatch(ctx context.Context, jobs chan<- task, first types.Block, bright, dark *stem.Mask) ([]chan result, error) {
	var handles []chan result

	block := first
	for {
		if block.EndOfStream() {
			slog.Debug("core: stream end",
				"trace_id", p.traceID,
				"blocks", p.Stats().Blocks,
			)
			return handles, nil
		}

		t := task{
			block:  block,
			bright: bright,
			dark:   dark,
			out:    make(chan result, 1),
		}
		select {
		case jobs <- t:
		case <-ctx.Done():
			return handles, ctx.Err()
		}
		handles = append(handles, t.out)

		p.mu.Lock()
		p.stats.Blocks++
		p.stats.Images += uint64(block.Header.ImagesInBlock)
		p.stats.Samples += uint64(len(block.Data))
		blocks, images := p.stats.Blocks, p.stats.Images
		p.mu.Unlock()
		if blocks%100 == 0 {
			slog.Debug("core: dispatch progress",
				"trace_id", p.traceID,
				"blocks", blocks,
				"images", images,
			)
		}

		var err error
		block, err = p.source.Next()
		if err != nil {
			return handles, fmt.Errorf("failed to read block: %w", err)
		}
	}
}

// worker reduces whole blocks: one task in, one ordered result out.
// Masks are shared read-only and each block buffer is owned by exactly
// one task, so workers need no locking among themselves.
func (p *Processor) worker(ctx context.Context, jobs <-chan task) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-jobs:
			if !ok {
				return nil
			}
			values, err := p.reduceBlock(t)
			t.out <- result{values: values, err: err}
			if err != nil {
				return err
			}
		}
	}
}

// reduceBlock reduces every image of one block, in header order.
func (p *Processor) reduceBlock(t task) ([]types.ImageIntensity, error) {
	h := t.block.Header
	pixels := h.PixelsPerImage()
	values := make([]types.ImageIntensity, 0, h.ImagesInBlock)
	for i := 0; i < int(h.ImagesInBlock); i++ {
		v, err := p.reduce(t.block.Data, i*pixels, pixels, t.bright, t.dark, h.ImageNumbers[i])
		if err != nil {
			return nil, fmt.Errorf("failed to reduce image %d: %w", h.ImageNumbers[i], err)
		}
		values = append(values, v)
	}
	return values, nil
}

// scatter drains the pending results in enqueue order and writes each
// image's pair into the fields. Writes overwrite: when an image number
// repeats, the handle drained later wins. Single threaded, so the
// fields need no locking.
func (p *Processor) scatter(ctx context.Context, fields *types.Fields, handles []chan result) error {
	for _, h := range handles {
		var res result
		select {
		case res = <-h:
		case <-ctx.Done():
			return ctx.Err()
		}
		if res.err != nil {
			return fmt.Errorf("task failed: %w", res.err)
		}
		for _, v := range res.values {
			slot := int64(v.ImageNumber) - 1
			if slot < 0 || slot >= int64(len(fields.Bright)) {
				return fmt.Errorf("image number %d outside output grid of %d slots",
					v.ImageNumber, len(fields.Bright))
			}
			fields.Bright[slot] = v.Bright
			fields.Dark[slot] = v.Dark
		}
	}
	return nil
}

// logSummary reports the run's counters and the distribution of both
// finished fields.
func (p *Processor) logSummary(fields *types.Fields) {
	st := p.Stats()
	bright := Summarize(fields.Bright)
	dark := Summarize(fields.Dark)
	slog.Info("core: run complete",
		"trace_id", p.traceID,
		"stream_id", p.cfg.Stream.ID,
		"blocks", st.Blocks,
		"images", st.Images,
		"samples", st.Samples,
		"elapsed", st.Elapsed.Round(time.Millisecond).String(),
		"bright_mean", fmt.Sprintf("%.1f", bright.Mean),
		"bright_std", fmt.Sprintf("%.1f", bright.StdDev),
		"bright_max", bright.Max,
		"dark_mean", fmt.Sprintf("%.1f", dark.Mean),
		"dark_std", fmt.Sprintf("%.1f", dark.StdDev),
		"dark_max", dark.Max,
	)
}
