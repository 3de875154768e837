// Package interop reads Illumina InterOp TileMetrics files.  It implements
// the two fixed-record layouts in the wild (format versions 2 and 3) and
// reduces the per-tile cluster metrics to per-lane totals; no other InterOp
// metric families are supported.
package interop
