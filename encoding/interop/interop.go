package interop

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// TileMetrics format versions understood by ReadTileMetrics.
const (
	tileMetricsV2 = 2
	tileMetricsV3 = 3
)

// Version-2 metric codes.  Each record carries one code and one value;
// only the cluster-count codes contribute to lane aggregation, the rest
// are listed so skipped records have a name.
const (
	CodeClusterDensity   = 100
	CodeClusterDensityPF = 101
	CodeClusterCount     = 102
	CodeClusterCountPF   = 103
	CodePctAligned       = 300
	CodeControlLane      = 400
)

// Version-3 records are tagged with a one-byte kind; 't' marks a tile
// record carrying the (cluster_count, cluster_count_pf) pair.  The only
// other kind Illumina emits is 'r' (per-read metrics), which this package
// skips.
const (
	v3KindTile = 't'
	v3KindRead = 'r'
)

// TileMetric is one decoded record from a TileMetrics stream: the cluster
// counts observed on a single tile of a lane.  PFCount is NaN for
// version-2 records that carry a single value.
type TileMetric struct {
	Lane    uint16
	Tile    uint32
	Code    uint8
	Count   float32
	PFCount float32
}

// LaneClusterStats holds the per-lane totals accumulated over all tiles.
type LaneClusterStats struct {
	RawClusterCount int64
	PFClusterCount  int64
}

// ReadTileMetricsFile opens path and decodes it with ReadTileMetrics.  The
// file is closed on every return path.
func ReadTileMetricsFile(ctx context.Context, path string) (stats map[int]LaneClusterStats, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return nil, errors.E(err, "open tile metrics", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	if stats, err = ReadTileMetrics(in.Reader(ctx)); err != nil {
		return nil, errors.E(err, path)
	}
	return stats, nil
}

// ReadTileMetrics decodes a TileMetrics stream and returns the per-lane
// cluster totals.  Lanes with no contributing tiles are absent from the
// map; a header-only stream yields an empty map.  A partial trailing
// record terminates the stream without error.
func ReadTileMetrics(r io.Reader) (map[int]LaneClusterStats, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("tile metrics: reading header: %v", err)
	}
	version := header[0]
	recordLen := int(header[1])

	agg := newLaneAccumulator()
	var decode func([]byte, *laneAccumulator)
	switch version {
	case tileMetricsV2:
		if recordLen < 9 {
			return nil, fmt.Errorf("tile metrics v2: record length %d below minimum 9", recordLen)
		}
		decode = decodeV2
	case tileMetricsV3:
		// The v3 header carries the tile area after the version and
		// record length.  Aggregation has no use for it.
		var area [4]byte
		if _, err := io.ReadFull(r, area[:]); err != nil {
			return nil, fmt.Errorf("tile metrics v3: reading area header: %v", err)
		}
		if recordLen < 15 {
			return nil, fmt.Errorf("tile metrics v3: record length %d below minimum 15", recordLen)
		}
		decode = decodeV3
	default:
		return nil, fmt.Errorf("tile metrics: unknown format version %d", version)
	}

	buf := make([]byte, recordLen)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			// A short trailing record means the instrument stopped
			// writing mid-record; both cases end the stream.
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("tile metrics: reading record: %v", err)
		}
		decode(buf, agg)
	}
	return agg.finalize(), nil
}

func decodeV2(buf []byte, agg *laneAccumulator) {
	m := TileMetric{
		Lane:  binary.LittleEndian.Uint16(buf[0:2]),
		Tile:  uint32(binary.LittleEndian.Uint16(buf[2:4])),
		Code:  buf[4],
		Count: math.Float32frombits(binary.LittleEndian.Uint32(buf[5:9])),
	}
	switch m.Code {
	case CodeClusterCount:
		agg.addRaw(int(m.Lane), float64(m.Count))
	case CodeClusterCountPF:
		agg.addPF(int(m.Lane), float64(m.Count))
	}
}

func decodeV3(buf []byte, agg *laneAccumulator) {
	if buf[6] != v3KindTile {
		return
	}
	m := TileMetric{
		Lane:    binary.LittleEndian.Uint16(buf[0:2]),
		Tile:    binary.LittleEndian.Uint32(buf[2:6]),
		Code:    buf[6],
		Count:   math.Float32frombits(binary.LittleEndian.Uint32(buf[7:11])),
		PFCount: math.Float32frombits(binary.LittleEndian.Uint32(buf[11:15])),
	}
	agg.addRaw(int(m.Lane), float64(m.Count))
	agg.addPF(int(m.Lane), float64(m.PFCount))
}
