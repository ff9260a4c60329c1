// Package blockgrid owns the block-allocated 2-D grid used as storage by the
// statistical maps.
//
// A Grid is split into planeRows × planeCols blocks of unitRows × unitCols
// cells. Blocks live in an arena and are addressed through a slot index, so
// growing a grid (Reallocate) only rewrites the index: cell contents are
// never copied and no block is ever shared between two slots.
//
// A Plane anchors a Grid in world coordinates (origin of cell (0,0) and cell
// resolution) and grows itself on demand when a point falls outside it.
//
// Key types: Grid, Plane, Point.
//
// Dependency rule: leaf package, no imports from the rest of the module.
package blockgrid
