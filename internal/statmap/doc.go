// Package statmap owns the statistical surface maps used for scan matching.
//
// A Map holds four block grids (planes) of the same cell type, offset from
// each other by half a cell in x, y, and both (quincunx staggering) so the
// combined likelihood field has no grid-alignment bias.
//
// Counting maps accumulate raw reflection points per cell; Build derives a
// probability map of per-cell Gaussians (mean, inverse covariance, weight)
// from a counting map. Means are stored relative to the cell centre.
//
// Key types: Map, CountingCell, ProbabilityCell, BuildOptions.
//
// Dependency rule: depends on blockgrid and linalg only.
package statmap
