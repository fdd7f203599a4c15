package geolookup

import (
	"math"

	"github.com/twpayne/go-geom"
)

const earthRadiusM = 6371008.8

// multiPolygonContains tests point-in-polygon over every polygon of the
// feature. Ring 0 is the exterior; any further rings are holes, and a point
// strictly inside a hole is outside the polygon. Boundary points, hole
// boundaries included, count as inside: this is the single containment rule
// applied everywhere in the pipeline.
func multiPolygonContains(mp *geom.MultiPolygon, pt Point) bool {
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		if p.NumLinearRings() == 0 {
			continue
		}
		inside, onEdge := ringTest(p.LinearRing(0).FlatCoords(), pt)
		if onEdge {
			return true
		}
		if !inside {
			continue
		}
		if strictlyInAnyHole(p, pt) {
			continue
		}
		return true
	}
	return false
}

func strictlyInAnyHole(p *geom.Polygon, pt Point) bool {
	for r := 1; r < p.NumLinearRings(); r++ {
		inside, onEdge := ringTest(p.LinearRing(r).FlatCoords(), pt)
		if inside && !onEdge {
			return true
		}
	}
	return false
}

// ringTest runs an even-odd ray crossing test on a flat XY coordinate ring.
// A point on an edge is reported via onEdge, with inside forced true.
func ringTest(flat []float64, pt Point) (inside, onEdge bool) {
	n := len(flat) / 2
	if n < 3 {
		return false, false
	}

	x, y := pt.Lng, pt.Lat
	for i := 0; i < n; i++ {
		j := (i + n - 1) % n
		xi, yi := flat[i*2], flat[i*2+1]
		xj, yj := flat[j*2], flat[j*2+1]

		if onSegment(xi, yi, xj, yj, x, y) {
			return true, true
		}

		if (yi > y) != (yj > y) {
			cross := (xj-xi)*(y-yi)/(yj-yi) + xi
			if x < cross {
				inside = !inside
			}
		}
	}
	return inside, false
}

const segmentEps = 1e-12

// onSegment reports whether (x, y) lies on the segment (x1,y1)-(x2,y2)
// within floating-point tolerance.
func onSegment(x1, y1, x2, y2, x, y float64) bool {
	cross := (x2-x1)*(y-y1) - (y2-y1)*(x-x1)
	if math.Abs(cross) > segmentEps {
		return false
	}
	if x < math.Min(x1, x2)-segmentEps || x > math.Max(x1, x2)+segmentEps {
		return false
	}
	if y < math.Min(y1, y2)-segmentEps || y > math.Max(y1, y2)+segmentEps {
		return false
	}
	return true
}

// distanceToMultiPolygonM returns the minimum distance in meters from the
// point to any ring segment of the feature.
func distanceToMultiPolygonM(mp *geom.MultiPolygon, pt Point) float64 {
	best := math.Inf(1)
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		for r := 0; r < p.NumLinearRings(); r++ {
			flat := p.LinearRing(r).FlatCoords()
			n := len(flat) / 2
			for s := 0; s < n; s++ {
				t := (s + 1) % n
				d := pointSegmentDistanceM(pt,
					flat[s*2], flat[s*2+1],
					flat[t*2], flat[t*2+1])
				if d < best {
					best = d
				}
			}
		}
	}
	return best
}

// pointSegmentDistanceM projects the point onto the segment in a local
// equirectangular frame (adequate at parcel scale), then measures the
// great-circle distance to the closest point.
func pointSegmentDistanceM(pt Point, x1, y1, x2, y2 float64) float64 {
	cosLat := math.Cos(pt.Lat * math.Pi / 180)

	// Local planar coordinates in degrees, longitude scaled by cos(lat).
	px := (pt.Lng - x1) * cosLat
	py := pt.Lat - y1
	sx := (x2 - x1) * cosLat
	sy := y2 - y1

	segLen2 := sx*sx + sy*sy
	t := 0.0
	if segLen2 > 0 {
		t = (px*sx + py*sy) / segLen2
		t = math.Max(0, math.Min(1, t))
	}

	nearLng := x1 + (x2-x1)*t
	nearLat := y1 + (y2-y1)*t
	return haversineM(pt.Lat, pt.Lng, nearLat, nearLng)
}

// haversineM returns the great-circle distance in meters.
func haversineM(lat1, lng1, lat2, lng2 float64) float64 {
	const rad = math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}
