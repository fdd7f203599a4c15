package geolookup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/meridian-housing/sitescreen-cli/internal/refdata"
)

func square(t *testing.T, minLng, minLat, maxLng, maxLat float64) *geom.MultiPolygon {
	t.Helper()
	mp := geom.NewMultiPolygon(geom.XY)
	poly := geom.NewPolygonFlat(geom.XY, []float64{
		minLng, minLat,
		maxLng, minLat,
		maxLng, maxLat,
		minLng, maxLat,
		minLng, minLat,
	}, []int{10})
	require.NoError(t, mp.Push(poly))
	return mp
}

func testSet(t *testing.T, features ...refdata.Feature) *refdata.ReferenceSet {
	t.Helper()
	return &refdata.ReferenceSet{
		Manifest: refdata.Manifest{Dataset: "test", Version: "2026-01"},
		Features: features,
	}
}

func TestContains_InsideAndOutside(t *testing.T) {
	ix := NewIndex(testSet(t,
		refdata.Feature{ID: "zone-1", Attrs: map[string]string{"TIER": "high"}, Geom: square(t, -1, -1, 1, 1)},
	))

	res := ix.Contains(Point{Lat: 0, Lng: 0})
	require.True(t, res.Matched)
	assert.Equal(t, "zone-1", res.FeatureID)
	assert.Equal(t, "high", res.Attrs["TIER"])

	assert.False(t, ix.Contains(Point{Lat: 2, Lng: 2}).Matched)
	assert.False(t, ix.Contains(Point{Lat: 0, Lng: 5}).Matched)
}

func TestContains_BoundaryCountsAsInside(t *testing.T) {
	ix := NewIndex(testSet(t,
		refdata.Feature{ID: "zone-1", Geom: square(t, 0, 0, 1, 1)},
	))

	// Edge midpoint and corner vertex.
	assert.True(t, ix.Contains(Point{Lat: 0, Lng: 0.5}).Matched)
	assert.True(t, ix.Contains(Point{Lat: 0, Lng: 0}).Matched)
	assert.True(t, ix.Contains(Point{Lat: 1, Lng: 1}).Matched)
}

func TestContains_HoleInteriorIsOutside(t *testing.T) {
	// 10x10 square with a 4..6 hole: two rings in one polygon.
	mp := geom.NewMultiPolygon(geom.XY)
	poly := geom.NewPolygonFlat(geom.XY, []float64{
		0, 0, 10, 0, 10, 10, 0, 10, 0, 0,
		4, 4, 6, 4, 6, 6, 4, 6, 4, 4,
	}, []int{10, 20})
	require.NoError(t, mp.Push(poly))

	ix := NewIndex(testSet(t,
		refdata.Feature{ID: "donut", Geom: mp},
	))

	// The solid annulus is inside, the hole interior is not.
	assert.True(t, ix.Contains(Point{Lat: 2, Lng: 2}).Matched)
	assert.False(t, ix.Contains(Point{Lat: 5, Lng: 5}).Matched)

	// Boundaries count as inside on both rings.
	assert.True(t, ix.Contains(Point{Lat: 5, Lng: 4}).Matched)
	assert.True(t, ix.Contains(Point{Lat: 10, Lng: 5}).Matched)
}

func TestContains_OverlappingFeaturesLowestIDWins(t *testing.T) {
	ix := NewIndex(testSet(t,
		refdata.Feature{ID: "b-zone", Geom: square(t, -1, -1, 1, 1)},
		refdata.Feature{ID: "a-zone", Geom: square(t, -1, -1, 1, 1)},
	))

	res := ix.Contains(Point{Lat: 0, Lng: 0})
	require.True(t, res.Matched)
	assert.Equal(t, "a-zone", res.FeatureID)
}

func TestNearest_ContainedIsZeroDistance(t *testing.T) {
	ix := NewIndex(testSet(t,
		refdata.Feature{ID: "zone-1", Geom: square(t, -1, -1, 1, 1)},
	))

	res := ix.Nearest(Point{Lat: 0.5, Lng: 0.5})
	require.True(t, res.Matched)
	assert.Equal(t, "zone-1", res.FeatureID)
	assert.Zero(t, res.DistanceM)
}

func TestNearest_DistanceToEdge(t *testing.T) {
	ix := NewIndex(testSet(t,
		refdata.Feature{ID: "zone-1", Geom: square(t, 0, 0, 1, 1)},
	))

	// 0.01 degrees of longitude at the equator is roughly 1.11 km.
	res := ix.Nearest(Point{Lat: 0.5, Lng: 1.01})
	require.True(t, res.Matched)
	assert.InDelta(t, 1111.95, res.DistanceM, 15)
}

func TestNearest_TieResolvesToLowestID(t *testing.T) {
	// Two identical squares equidistant from the query point.
	ix := NewIndex(testSet(t,
		refdata.Feature{ID: "z-2", Geom: square(t, 1, 0, 2, 1)},
		refdata.Feature{ID: "z-1", Geom: square(t, 1, 0, 2, 1)},
	))

	res := ix.Nearest(Point{Lat: 0.5, Lng: 0})
	require.True(t, res.Matched)
	assert.Equal(t, "z-1", res.FeatureID)
}

func TestCovers(t *testing.T) {
	ix := NewIndex(testSet(t,
		refdata.Feature{ID: "zone-1", Geom: square(t, -10, -10, 10, 10)},
	))

	assert.True(t, ix.Covers(Point{Lat: 5, Lng: 5}))
	assert.False(t, ix.Covers(Point{Lat: 50, Lng: 50}))
}

func TestEmptyIndex(t *testing.T) {
	ix := NewIndex(testSet(t))

	assert.False(t, ix.Contains(Point{Lat: 0, Lng: 0}).Matched)
	assert.False(t, ix.Covers(Point{Lat: 0, Lng: 0}))
	assert.Equal(t, 0, ix.Size())
}

func TestIndexMetadata(t *testing.T) {
	ix := NewIndex(testSet(t,
		refdata.Feature{ID: "zone-1", Geom: square(t, 0, 0, 1, 1)},
	))

	assert.Equal(t, "test", ix.Dataset())
	assert.Equal(t, "2026-01", ix.Version())
	assert.Equal(t, 1, ix.Size())
}
