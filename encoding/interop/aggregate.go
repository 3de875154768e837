package interop

import "math"

// laneAccumulator sums tile-level cluster counts per lane.  Tile values
// are 4-byte floats in the source format; sums are kept in float64 and
// rounded once at finalize so record order cannot change the result.
type laneAccumulator struct {
	raw map[int]float64
	pf  map[int]float64
}

func newLaneAccumulator() *laneAccumulator {
	return &laneAccumulator{
		raw: map[int]float64{},
		pf:  map[int]float64{},
	}
}

func (a *laneAccumulator) addRaw(lane int, v float64) { a.raw[lane] += v }
func (a *laneAccumulator) addPF(lane int, v float64)  { a.pf[lane] += v }

// finalize converts the running sums to integer cluster counts.  A lane
// appears in the result iff at least one tile contributed to it.
func (a *laneAccumulator) finalize() map[int]LaneClusterStats {
	stats := make(map[int]LaneClusterStats, len(a.raw))
	for lane, sum := range a.raw {
		s := stats[lane]
		s.RawClusterCount = int64(math.Round(sum))
		stats[lane] = s
	}
	for lane, sum := range a.pf {
		s := stats[lane]
		s.PFClusterCount = int64(math.Round(sum))
		stats[lane] = s
	}
	return stats
}
