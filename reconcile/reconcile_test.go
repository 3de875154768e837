package reconcile

import (
	"context"
	"strings"
	"testing"

	"github.com/grailbio/runqc/encoding/interop"
	"github.com/grailbio/runqc/qc"
	"github.com/grailbio/testutil/expect"
)

type fakeSource struct {
	sf    *qc.Result
	sfErr error
	lane  []qc.Result
	plex  []qc.Result
}

func (s *fakeSource) SpatialFilter(ctx context.Context, position int) (*qc.Result, error) {
	return s.sf, s.sfErr
}

func (s *fakeSource) OutputCounts(ctx context.Context, position int, multiplexed bool) ([]qc.Result, error) {
	if multiplexed {
		return s.plex, nil
	}
	return s.lane, nil
}

func lanes(position int, raw, pf int64) map[int]interop.LaneClusterStats {
	return map[int]interop.LaneClusterStats{
		position: {RawClusterCount: raw, PFClusterCount: pf},
	}
}

func flagstats(idRun int, totalReads int64) qc.Result {
	return qc.Result{Category: qc.BamFlagstats, IDRun: idRun, Position: 1, TotalReads: totalReads}
}

func TestCheckNoSpatialFilter(t *testing.T) {
	ctx := context.Background()
	opts := Opts{IDRun: 26291}

	// total_output matching pf passes.
	source := &fakeSource{lane: []qc.Result{flagstats(26291, 900)}}
	c := New(lanes(1, 1000, 900), source, opts)
	expect.NoError(t, c.Check(ctx, 1))

	// total_output matching raw also passes.
	source = &fakeSource{lane: []qc.Result{flagstats(26291, 1000)}}
	c = New(lanes(1, 1000, 900), source, opts)
	expect.NoError(t, c.Check(ctx, 1))

	// Anything else fails, naming all three values.
	source = &fakeSource{lane: []qc.Result{flagstats(26291, 850)}}
	c = New(lanes(1, 1000, 900), source, opts)
	err := c.Check(ctx, 1)
	expect.NotNil(t, err)
	for _, want := range []string{"900", "1000", "850"} {
		expect.True(t, strings.Contains(err.Error(), want), "error %q should name %s", err, want)
	}
}

func TestCheckMissingPosition(t *testing.T) {
	ctx := context.Background()
	c := New(lanes(1, 1000, 900), &fakeSource{}, Opts{IDRun: 26291})
	err := c.Check(ctx, 8)
	expect.NotNil(t, err)
	expect.True(t, strings.Contains(err.Error(), "unable to determine raw and/or pf cluster count"), "got %v", err)
}

func TestCheckSpatialFilter(t *testing.T) {
	ctx := context.Background()
	// Unpaired: processed matches raw, then pf drops to 900-10=890; the
	// final total matches pf only after that subtraction.
	source := &fakeSource{
		sf: &qc.Result{
			Category: qc.SpatialFilter, IDRun: 26291, Position: 1,
			NumTotalReads: 1000, NumSpatialFilterFailReads: 10,
		},
		lane: []qc.Result{flagstats(26291, 890)},
	}
	c := New(lanes(1, 1000, 900), source, Opts{IDRun: 26291})
	expect.NoError(t, c.Check(ctx, 1))

	// Processed matching neither raw nor pf is fatal before any output
	// lookup happens.
	source = &fakeSource{
		sf: &qc.Result{NumTotalReads: 123, NumSpatialFilterFailReads: 0},
	}
	c = New(lanes(1, 1000, 900), source, Opts{IDRun: 26291})
	err := c.Check(ctx, 1)
	expect.NotNil(t, err)
	for _, want := range []string{"123", "900", "1000"} {
		expect.True(t, strings.Contains(err.Error(), want), "error %q should name %s", err, want)
	}
}

func TestCheckSpatialFilterError(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{sfErr: context.DeadlineExceeded}
	c := New(lanes(1, 1000, 900), source, Opts{IDRun: 26291})
	expect.EQ(t, c.Check(ctx, 1), context.DeadlineExceeded)
}

func TestCheckPairedHalving(t *testing.T) {
	ctx := context.Background()
	// Spatial filter and final output counts are per read: 2000 reads is
	// 1000 clusters on a paired run.  processed halves to 1000 == pf, so
	// raw is reassigned to 1000 and pf drops to 1000-10=990.  The final
	// total halves to 1000, which matches only the reassigned raw.
	source := &fakeSource{
		sf: &qc.Result{
			Category: qc.SpatialFilter, IDRun: 26291, Position: 1,
			NumTotalReads: 2000, NumSpatialFilterFailReads: 20,
		},
		lane: []qc.Result{flagstats(26291, 2000)},
	}
	c := New(lanes(1, 1100, 1000), source, Opts{IDRun: 26291, Paired: true})
	expect.NoError(t, c.Check(ctx, 1))

	// Same inputs without the reassignment semantics would fail: neither
	// the original raw 1100 nor the adjusted pf 990 equals 1000.
	source.lane = []qc.Result{flagstats(26291, 1980)}
	c = New(lanes(1, 1100, 1000), source, Opts{IDRun: 26291, Paired: true})
	expect.NoError(t, c.Check(ctx, 1)) // 1980/2 == 990 == adjusted pf
}

func TestCheckPairedOddCounts(t *testing.T) {
	ctx := context.Background()
	// An odd per-read count halves to x.5, which cannot equal any integer
	// cluster count; the check must fail rather than round.
	source := &fakeSource{
		sf: &qc.Result{NumTotalReads: 2001, NumSpatialFilterFailReads: 0},
	}
	c := New(lanes(1, 1000, 900), source, Opts{IDRun: 26291, Paired: true})
	err := c.Check(ctx, 1)
	expect.NotNil(t, err)
	expect.True(t, strings.Contains(err.Error(), "1000.5"), "got %v", err)
}

func TestCheckMultiplexedScopedByRun(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{
		plex: []qc.Result{
			flagstats(26291, 400),
			flagstats(26291, 500),
			// A stale result from another run in the same folder.
			flagstats(19000, 700),
		},
	}
	c := New(lanes(1, 1000, 900), source, Opts{IDRun: 26291, Multiplexed: true})
	expect.NoError(t, c.Check(ctx, 1)) // 400+500 == pf

	source.plex = append(source.plex, flagstats(26291, 100))
	c = New(lanes(1, 1000, 900), source, Opts{IDRun: 26291, Multiplexed: true})
	expect.NoError(t, c.Check(ctx, 1)) // 400+500+100 == raw
}

func TestCheckEmptyOutput(t *testing.T) {
	ctx := context.Background()
	// An empty result collection sums to zero, which fails the final
	// comparison for any nonzero lane.
	c := New(lanes(1, 1000, 900), &fakeSource{}, Opts{IDRun: 26291})
	err := c.Check(ctx, 1)
	expect.NotNil(t, err)
	expect.True(t, strings.Contains(err.Error(), "got final output total 0"), "got %v", err)
}

func TestPositions(t *testing.T) {
	stats := map[int]interop.LaneClusterStats{
		1: {RawClusterCount: 10, PFClusterCount: 9},
		2: {RawClusterCount: 20, PFClusterCount: 18},
	}
	c := New(stats, &fakeSource{}, Opts{IDRun: 26291})
	expect.EQ(t, len(c.Positions()), 2)
	got, found := c.Stats(2)
	expect.True(t, found)
	expect.EQ(t, got.RawClusterCount, int64(20))
	_, found = c.Stats(9)
	expect.False(t, found)
}
