// Package qc models the per-run QC result store consumed by cluster-count
// reconciliation.  Results are small typed records keyed by run, position
// and category; the canonical backing store is a directory of JSON files
// written by upstream QC steps (see LoadDir), but anything that can produce
// a Collection works.
package qc

import (
	"context"
	"fmt"
)

// Category tags the QC step a result came from.
type Category string

const (
	// SpatialFilter results report reads removed by the spatial/optical
	// filtering step.
	SpatialFilter Category = "spatial_filter"
	// BamFlagstats results report read counts derived from the final
	// alignment output.
	BamFlagstats Category = "bam_flagstats"
)

// Result is one QC result record.  Fields beyond IDRun/Position/Category
// are populated according to the category; the JSON field names follow the
// upstream QC pipeline's serialization.
type Result struct {
	Category Category `json:"-"`
	IDRun    int      `json:"id_run"`
	Position int      `json:"position"`
	// TagIndex is set on plex-level (demultiplexed) results and nil on
	// lane-level ones.
	TagIndex *int `json:"tag_index,omitempty"`

	// SpatialFilter fields.
	NumTotalReads             int64 `json:"num_total_reads,omitempty"`
	NumSpatialFilterFailReads int64 `json:"num_spatial_filter_fail_reads,omitempty"`

	// BamFlagstats fields.
	TotalReads int64 `json:"total_reads,omitempty"`
}

// Collection holds the results loaded for one run folder.
type Collection struct {
	Results []Result
}

// Filter returns the results matching position and category, in load order.
func (c *Collection) Filter(position int, category Category) []Result {
	var out []Result
	for _, r := range c.Results {
		if r.Position == position && r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// SpatialFilter returns the spatial-filter result for position, or nil when
// the filtering step was not run or not recorded.  More than one such
// result for a position indicates a corrupt store and is an error.
func (c *Collection) SpatialFilter(ctx context.Context, position int) (*Result, error) {
	matches := c.Filter(position, SpatialFilter)
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	}
	return nil, fmt.Errorf("qc: %d spatial filter results for position %d, expected at most one", len(matches), position)
}

// OutputCounts returns the final-output (bam_flagstats) results for
// position.  When multiplexed is set, plex-level results are selected;
// otherwise lane-level ones.  Results from other runs sharing the store
// are returned as-is; scoping by id_run is the caller's job.
func (c *Collection) OutputCounts(ctx context.Context, position int, multiplexed bool) ([]Result, error) {
	var out []Result
	for _, r := range c.Filter(position, BamFlagstats) {
		if (r.TagIndex != nil) == multiplexed {
			out = append(out, r)
		}
	}
	return out, nil
}
