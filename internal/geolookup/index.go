// Package geolookup answers containment and proximity queries against a
// pre-loaded reference set. It never touches the network: all queries run
// over an immutable in-memory index built once per run, so results are
// deterministic for a given point and dataset version.
package geolookup

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/meridian-housing/sitescreen-cli/internal/refdata"
)

// Point is a WGS84 coordinate. Callers pre-validate: both values must be set.
type Point struct {
	Lat float64
	Lng float64
}

// Result is the outcome of a lookup.
type Result struct {
	Matched   bool
	FeatureID string
	Attrs     map[string]string
	// DistanceM is the distance in meters to the matched feature. Zero for
	// containment matches; populated by Nearest.
	DistanceM float64
}

const gridDim = 64

// Index is an immutable spatial index over one reference set. Features are
// bucketed into a uniform grid by bounding box so containment tests only
// touch candidates near the query point.
type Index struct {
	dataset  string
	version  string
	features []indexedFeature
	bounds   *geom.Bounds
	cellW    float64
	cellH    float64
	grid     map[int][]int // cell → feature indices, ordered
}

type indexedFeature struct {
	id     string
	attrs  map[string]string
	geom   *geom.MultiPolygon
	bounds *geom.Bounds
}

// NewIndex builds an index over the given reference set. Features are sorted
// by id so tie-breaking is stable across runs.
func NewIndex(set *refdata.ReferenceSet) *Index {
	feats := make([]indexedFeature, 0, len(set.Features))
	for _, f := range set.Features {
		feats = append(feats, indexedFeature{
			id:     f.ID,
			attrs:  f.Attrs,
			geom:   f.Geom,
			bounds: f.Geom.Bounds(),
		})
	}
	sort.Slice(feats, func(i, j int) bool { return feats[i].id < feats[j].id })

	ix := &Index{
		dataset:  set.Manifest.Dataset,
		version:  set.Manifest.Version,
		features: feats,
		grid:     make(map[int][]int),
	}

	if len(feats) == 0 {
		return ix
	}

	total := geom.NewBounds(geom.XY)
	for _, f := range feats {
		total.Extend(f.geom)
	}
	ix.bounds = total
	ix.cellW = (total.Max(0) - total.Min(0)) / gridDim
	ix.cellH = (total.Max(1) - total.Min(1)) / gridDim
	if ix.cellW <= 0 {
		ix.cellW = 1e-9
	}
	if ix.cellH <= 0 {
		ix.cellH = 1e-9
	}

	for i, f := range feats {
		minCX, minCY := ix.cell(f.bounds.Min(0), f.bounds.Min(1))
		maxCX, maxCY := ix.cell(f.bounds.Max(0), f.bounds.Max(1))
		for cx := minCX; cx <= maxCX; cx++ {
			for cy := minCY; cy <= maxCY; cy++ {
				key := cy*gridDim + cx
				ix.grid[key] = append(ix.grid[key], i)
			}
		}
	}

	return ix
}

// Dataset returns the dataset name the index was built from.
func (ix *Index) Dataset() string { return ix.dataset }

// Version returns the dataset version the index was built from.
func (ix *Index) Version() string { return ix.version }

// Size returns the number of indexed features.
func (ix *Index) Size() int { return len(ix.features) }

func (ix *Index) cell(lng, lat float64) (int, int) {
	cx := int((lng - ix.bounds.Min(0)) / ix.cellW)
	cy := int((lat - ix.bounds.Min(1)) / ix.cellH)
	if cx < 0 {
		cx = 0
	}
	if cx >= gridDim {
		cx = gridDim - 1
	}
	if cy < 0 {
		cy = 0
	}
	if cy >= gridDim {
		cy = gridDim - 1
	}
	return cx, cy
}

// Contains tests which feature contains the point. Boundary points count as
// inside. When multiple features contain the point the one with the lowest
// id wins, so results are stable.
func (ix *Index) Contains(pt Point) Result {
	if len(ix.features) == 0 || !ix.inBounds(pt) {
		return Result{}
	}

	cx, cy := ix.cell(pt.Lng, pt.Lat)
	for _, i := range ix.grid[cy*gridDim+cx] {
		f := ix.features[i]
		if !boundsContain(f.bounds, pt) {
			continue
		}
		if multiPolygonContains(f.geom, pt) {
			return Result{Matched: true, FeatureID: f.id, Attrs: f.attrs}
		}
	}
	return Result{}
}

// Nearest returns the closest feature and its distance in meters. A point
// inside a feature has distance zero. Ties resolve to the lowest feature id
// (features are pre-sorted, and strict-less comparison keeps the first).
func (ix *Index) Nearest(pt Point) Result {
	if len(ix.features) == 0 {
		return Result{}
	}

	best := -1
	bestDist := math.Inf(1)
	for i := range ix.features {
		f := &ix.features[i]
		if multiPolygonContains(f.geom, pt) {
			return Result{Matched: true, FeatureID: f.id, Attrs: f.attrs, DistanceM: 0}
		}
		d := distanceToMultiPolygonM(f.geom, pt)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}

	f := ix.features[best]
	return Result{Matched: true, FeatureID: f.id, Attrs: f.attrs, DistanceM: bestDist}
}

// Covers reports whether the point falls inside the dataset's overall
// bounding box. A non-matching point outside coverage means "no data", which
// analyzers treat differently from "inside coverage but outside every zone".
func (ix *Index) Covers(pt Point) bool {
	return len(ix.features) > 0 && ix.inBounds(pt)
}

func (ix *Index) inBounds(pt Point) bool {
	return pt.Lng >= ix.bounds.Min(0) && pt.Lng <= ix.bounds.Max(0) &&
		pt.Lat >= ix.bounds.Min(1) && pt.Lat <= ix.bounds.Max(1)
}

func boundsContain(b *geom.Bounds, pt Point) bool {
	return pt.Lng >= b.Min(0) && pt.Lng <= b.Max(0) &&
		pt.Lat >= b.Min(1) && pt.Lat <= b.Max(1)
}
