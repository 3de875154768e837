// Package reconcile cross-checks the cluster counts reported at each stage
// of run processing: the instrument's raw and pass-filter totals from the
// InterOp tile metrics, the spatial filter's processed/failed counts, and
// the read totals of the final alignment output.  A run position passes
// only if all four agree under the adjustment rules below; any mismatch is
// final for that position, there is no partial success.
package reconcile

import (
	"context"
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/grailbio/runqc/encoding/interop"
	"github.com/grailbio/runqc/qc"
)

// ResultSource supplies the externally derived counts for one run folder.
// *qc.Collection implements it; tests substitute fakes.
type ResultSource interface {
	// SpatialFilter returns the spatial-filter result for the position, or
	// nil when spatial filtering was not applied or not recorded.
	SpatialFilter(ctx context.Context, position int) (*qc.Result, error)
	// OutputCounts returns the final-output results for the position,
	// plex-level when multiplexed is set.  The slice may include results
	// from other runs sharing the store.
	OutputCounts(ctx context.Context, position int, multiplexed bool) ([]qc.Result, error)
}

// Opts configures a Checker for one run.
type Opts struct {
	// IDRun scopes final-output sums to this run's results.
	IDRun int
	// Paired marks a paired-read run; spatial-filter and final-output
	// read counts are per read, so they are halved before being compared
	// against per-cluster totals.
	Paired bool
	// Multiplexed selects plex-level final-output results.
	Multiplexed bool
}

// Checker validates one run's positions against a decoded lane map and a
// result source.  Positions are independent; Check may be called for
// different positions concurrently.
type Checker struct {
	lanes  map[int]interop.LaneClusterStats
	source ResultSource
	opts   Opts
}

// New returns a Checker over the given lane map.  An empty lane map is
// legal but every Check against it will fail, so it is worth a warning.
func New(lanes map[int]interop.LaneClusterStats, source ResultSource, opts Opts) *Checker {
	if len(lanes) == 0 {
		log.Printf("reconcile: run %d: no lanes decoded from tile metrics", opts.IDRun)
	}
	return &Checker{lanes: lanes, source: source, opts: opts}
}

// Check validates the cluster counts for one position.  The comparison is
// carried out in float64: halving an odd per-read count yields a half
// cluster, which can never equal an integer total and so fails the check
// rather than being rounded into a spurious pass.
//
// The order of operations is fixed: halve the spatial-filter counts,
// compare against pf then raw, reassign raw to the processed count,
// subtract the failed count from pf, and only then compare against the
// final-output total.
func (c *Checker) Check(ctx context.Context, position int) error {
	stats, found := c.lanes[position]
	if !found {
		return fmt.Errorf("reconcile: run %d position %d: unable to determine raw and/or pf cluster count",
			c.opts.IDRun, position)
	}
	raw := float64(stats.RawClusterCount)
	pf := float64(stats.PFClusterCount)

	sf, err := c.source.SpatialFilter(ctx, position)
	if err != nil {
		return err
	}
	if sf == nil {
		log.Printf("reconcile: run %d position %d: no spatial filter result, skipping spatial filter check",
			c.opts.IDRun, position)
	} else {
		processed := float64(sf.NumTotalReads)
		failed := float64(sf.NumSpatialFilterFailReads)
		if c.opts.Paired {
			processed /= 2
			failed /= 2
		}
		if pf != processed && raw != processed {
			return fmt.Errorf("reconcile: run %d position %d: spatial filter processed count %v matches neither pf %v nor raw %v cluster count",
				c.opts.IDRun, position, processed, pf, raw)
		}
		raw = processed
		pf -= failed
	}

	results, err := c.source.OutputCounts(ctx, position, c.opts.Multiplexed)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		log.Printf("reconcile: run %d position %d: no final output results", c.opts.IDRun, position)
	}
	var total float64
	for _, r := range results {
		if r.IDRun == c.opts.IDRun {
			total += float64(r.TotalReads)
		}
	}
	if c.opts.Paired {
		total /= 2
	}
	if pf != total && raw != total {
		return fmt.Errorf("reconcile: run %d position %d: expected pf %v or raw %v cluster count, got final output total %v",
			c.opts.IDRun, position, pf, raw, total)
	}
	return nil
}

// Positions returns the decoded lane numbers in unspecified order.
func (c *Checker) Positions() []int {
	out := make([]int, 0, len(c.lanes))
	for lane := range c.lanes {
		out = append(out, lane)
	}
	return out
}

// Stats returns the decoded lane stats for position, if present.
func (c *Checker) Stats(position int) (interop.LaneClusterStats, bool) {
	stats, found := c.lanes[position]
	return stats, found
}
