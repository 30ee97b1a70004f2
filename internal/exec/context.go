package exec

import (
	"context"
	"time"

	"github.com/relkv/rdfstore/internal/dict"
	"github.com/relkv/rdfstore/internal/errs"
	"github.com/relkv/rdfstore/internal/index"
	"github.com/relkv/rdfstore/internal/optimizer"
)

// TelemetryEvent is emitted when a resource bound trips (spec §4.3.6,
// §7): property-path depth/frontier/visited limits, DESCRIBE depth/count
// limits. These never raise; the caller distinguishes "bounded result"
// from "complete result" via the stream-level Bounded flag plus these
// events.
type TelemetryEvent struct {
	Name   string
	Detail map[string]any
}

// Ctx carries everything a running query needs: the index reader (a live
// store or a snapshot), the dictionary, optimizer statistics, a
// cancellable deadline, and a telemetry sink.
type Ctx struct {
	Reader    index.Reader
	Dict      *dict.Dictionary
	Optimizer *optimizer.Optimizer
	Deadline  time.Time
	Telemetry func(TelemetryEvent)

	// Resource bounds, all overridable; zero value in NewCtx installs the
	// spec §4.3.6 defaults.
	MaxPathDepth            int
	MaxBidirectionalDepth   int
	MaxFrontier             int
	MaxVisited              int
	MaxUnboundedBothEnds    int
	MaxDescribeNodes        int
	MaxDistinctBindings     int
	MaxOrderByBindings      int
	MaxDescribeDepth        int
	MaxDescribeTriples      int
}

func NewCtx(r index.Reader, d *dict.Dictionary, opt *optimizer.Optimizer) *Ctx {
	return &Ctx{
		Reader:                r,
		Dict:                  d,
		Optimizer:             opt,
		Telemetry:             func(TelemetryEvent) {},
		MaxPathDepth:          100,
		MaxBidirectionalDepth: 50,
		MaxFrontier:           100_000,
		MaxVisited:            1_000_000,
		MaxUnboundedBothEnds:  100_000,
		MaxDescribeNodes:      50_000,
		MaxDistinctBindings:   100_000,
		MaxOrderByBindings:    1_000_000,
		MaxDescribeDepth:      100,
		MaxDescribeTriples:    10_000,
	}
}

func (c *Ctx) emit(name string, detail map[string]any) {
	if c.Telemetry != nil {
		c.Telemetry(TelemetryEvent{Name: name, Detail: detail})
	}
}

// checkDeadline returns a Timeout error once c.Deadline has passed. The
// executor calls this between pattern transitions, BFS expansion steps,
// and aggregation/modifier batch boundaries (spec §5).
func (c *Ctx) checkDeadline() error {
	if c.Deadline.IsZero() {
		return nil
	}
	if time.Now().After(c.Deadline) {
		return errs.New(errs.CodeTimeout, "query deadline exceeded").WithRetriable(true)
	}
	return nil
}

// WithGoContext lets callers cancel a long-running query via a standard
// context.Context: the returned check reports ctx.Err() as a
// cancellation first, then falls through to checkDeadline's wall-clock
// test.
func (c *Ctx) WithGoContext(ctx context.Context) func() error {
	return func() error {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(errs.CodeTimeout, err, "query cancelled").WithRetriable(true)
		}
		return c.checkDeadline()
	}
}

// Iterator is the pull-based stream every operator produces and
// consumes (spec §9 "Streaming"). Bounded reports whether resource
// limits truncated the result (only ever true for property paths and
// DESCRIBE, per §4.3.6/§7); the flag is sticky once set by an upstream
// stage.
type Iterator interface {
	Next() (bool, error)
	Binding() Binding
	Close()
	Bounded() bool
}

// baseIter is embedded by leaf iterators to provide a default Bounded().
type baseIter struct{ bounded bool }

func (b *baseIter) Bounded() bool { return b.bounded }

// sliceIter replays a pre-materialized slice of bindings; used by every
// operator that must materialize (hash-join build side, DISTINCT, ORDER
// BY, GROUP BY).
type sliceIter struct {
	baseIter
	items []Binding
	pos   int
}

func newSliceIter(items []Binding, bounded bool) *sliceIter {
	s := &sliceIter{items: items, pos: -1}
	s.bounded = bounded
	return s
}

func (s *sliceIter) Next() (bool, error) {
	s.pos++
	return s.pos < len(s.items), nil
}
func (s *sliceIter) Binding() Binding { return s.items[s.pos] }
func (s *sliceIter) Close()           {}

// drain materializes it fully, propagating any error and the sticky
// Bounded flag.
func drain(it Iterator) ([]Binding, bool, error) {
	defer it.Close()
	var out []Binding
	for {
		ok, err := it.Next()
		if err != nil {
			return nil, it.Bounded(), err
		}
		if !ok {
			break
		}
		out = append(out, it.Binding().Clone())
	}
	return out, it.Bounded(), nil
}
