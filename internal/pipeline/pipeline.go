package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/berlin-traffic-map/roadkpi/internal/aggregate"
	"github.com/berlin-traffic-map/roadkpi/internal/detector"
	"github.com/berlin-traffic-map/roadkpi/internal/kpi"
	"github.com/berlin-traffic-map/roadkpi/internal/matcher"
	"github.com/berlin-traffic-map/roadkpi/internal/models"
	"github.com/berlin-traffic-map/roadkpi/internal/queue"
	"github.com/berlin-traffic-map/roadkpi/internal/snapshot"
)

// Saver persists one snapshot, replacing any snapshot with the same key
type Saver interface {
	Save(ctx context.Context, snap *models.Snapshot) error
}

// RowMatcher snaps enriched rows to road segments
type RowMatcher interface {
	MatchRows(rows []detector.Row) ([]matcher.Row, error)
}

// Pipeline turns time slices of enriched rows into stored snapshots
type Pipeline struct {
	Matcher     RowMatcher
	Columns     aggregate.ColumnSet
	Packager    *snapshot.Packager
	Store       Saver
	Events      queue.Publisher
	Descriptors []kpi.Descriptor
	Workers     int
}

// Summary counts the outcome of a run. Skipped covers missing KPI columns
// and empty snapshots; Failed covers matching and store errors.
type Summary struct {
	Slices  int
	Written int
	Skipped int
	Failed  int
}

func (s Summary) String() string {
	return fmt.Sprintf("slices=%d written=%d skipped=%d failed=%d", s.Slices, s.Written, s.Skipped, s.Failed)
}

type counters struct {
	written atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// Run processes slices with at most Workers concurrent slices. Per-snapshot
// failures are logged and counted; only cancellation aborts the run.
func (p *Pipeline) Run(ctx context.Context, slices []detector.Slice) (Summary, error) {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	descriptors := p.Descriptors
	if descriptors == nil {
		descriptors = kpi.Catalogue()
	}
	events := p.Events
	if events == nil {
		events = queue.Discard{}
	}

	var c counters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, slice := range slices {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			log.Printf("Processing slice %d/%d: %s (%d rows)", i+1, len(slices), slice.Timestamp, len(slice.Rows))
			p.processSlice(gctx, slice, descriptors, events, &c)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return Summary{
		Slices:  len(slices),
		Written: int(c.written.Load()),
		Skipped: int(c.skipped.Load()),
		Failed:  int(c.failed.Load()),
	}, err
}

func (p *Pipeline) processSlice(ctx context.Context, slice detector.Slice, descriptors []kpi.Descriptor, events queue.Publisher, c *counters) {
	rows, err := p.Matcher.MatchRows(slice.Rows)
	if err != nil {
		log.Printf("  ERROR matching %s: %v", slice.Timestamp, err)
		c.failed.Add(int64(len(descriptors)))
		return
	}

	for _, d := range descriptors {
		if ctx.Err() != nil {
			return
		}

		segments, err := aggregate.Aggregate(rows, p.Columns, d)
		if errors.Is(err, aggregate.ErrKPINotFound) {
			log.Printf("  Warning: %s not found in data for %s, skipping", d.SourceField, d)
			c.skipped.Add(1)
			continue
		}
		if err != nil {
			log.Printf("  ERROR aggregating %s %s: %v", slice.Timestamp, d, err)
			c.failed.Add(1)
			continue
		}

		snap, err := p.Packager.Package(slice.Timestamp, d, segments)
		if errors.Is(err, snapshot.ErrEmptySnapshot) {
			log.Printf("  Warning: %s %s has no valid geometry, skipping insertion", slice.Timestamp, d)
			c.skipped.Add(1)
			continue
		}
		if err != nil {
			log.Printf("  ERROR packaging %s %s: %v", slice.Timestamp, d, err)
			c.failed.Add(1)
			continue
		}

		if err := p.Store.Save(ctx, snap); err != nil {
			log.Printf("  ERROR saving %s %s: %v", slice.Timestamp, d, err)
			c.failed.Add(1)
			continue
		}
		c.written.Add(1)

		event := queue.SnapshotEvent{
			RunID:        snap.RunID,
			SnapshotID:   snap.SnapshotID,
			Timestamp:    snap.Timestamp,
			VehicleType:  snap.VehicleType,
			KPIType:      snap.KPIType,
			FeatureCount: len(snap.Features),
		}
		if err := events.PublishSnapshot(ctx, event); err != nil {
			log.Printf("  Warning: failed to publish snapshot event %s %s: %v", slice.Timestamp, d, err)
		}
	}
}

// AnnounceReset publishes a reset event for every combination after the
// store was cleared, so readers drop what they cached. It returns how many
// events could not be published.
func AnnounceReset(ctx context.Context, events queue.Publisher, runID string, descriptors []kpi.Descriptor) int {
	if descriptors == nil {
		descriptors = kpi.Catalogue()
	}
	failed := 0
	for _, d := range descriptors {
		event := queue.SnapshotEvent{
			RunID:       runID,
			VehicleType: string(d.Vehicle),
			KPIType:     string(d.Kind),
			Reset:       true,
		}
		if err := events.PublishSnapshot(ctx, event); err != nil {
			log.Printf("  Warning: failed to publish reset event for %s: %v", d, err)
			failed++
		}
	}
	return failed
}
