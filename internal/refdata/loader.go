package refdata

import (
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Feature is one polygon feature of a reference set.
type Feature struct {
	ID    string
	Attrs map[string]string
	Geom  *geom.MultiPolygon
}

// ReferenceSet is an immutable dataset loaded once per run and shared
// read-only across all analyzer invocations.
type ReferenceSet struct {
	Manifest Manifest
	Features []Feature
}

// Load reads the named dataset from the refdata directory: manifest first,
// then the shapefile it points at. The manifest's declared attribute fields
// are checked against the shapefile's actual columns before any feature is
// read; a mismatch is a startup error, not a per-site condition.
func Load(dir, dataset string) (*ReferenceSet, error) {
	dsDir := filepath.Join(dir, dataset)

	m, err := ReadManifest(dsDir)
	if err != nil {
		return nil, err
	}
	if m.Dataset != dataset {
		return nil, eris.Errorf("refdata: manifest in %s declares dataset %q", dsDir, m.Dataset)
	}

	shpPath := filepath.Join(dsDir, m.Shapefile)
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	// Field name → index, normalized. Shapefile field names are padded with
	// NULs by the dbf format.
	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToUpper(name)] = i
	}

	// Contract check: every declared field must exist.
	required := append([]string{m.IDField}, m.Fields...)
	for _, want := range required {
		if _, ok := fieldIdx[strings.ToUpper(want)]; !ok {
			return nil, eris.Errorf("refdata: dataset %s (%s) missing required field %q", dataset, m.Version, want)
		}
	}

	idIdx := fieldIdx[strings.ToUpper(m.IDField)]

	var features []Feature
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}

		mp := polygonToMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}

		id := strings.TrimSpace(strings.TrimRight(reader.Attribute(idIdx), "\x00"))
		if id == "" {
			skipped++
			continue
		}

		attrs := make(map[string]string, len(m.Fields))
		for _, f := range m.Fields {
			idx := fieldIdx[strings.ToUpper(f)]
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
			attrs[strings.ToUpper(f)] = val
		}

		features = append(features, Feature{ID: id, Attrs: attrs, Geom: mp})
	}

	if skipped > 0 {
		zap.L().Debug("refdata: skipped shapefile records",
			zap.String("dataset", dataset),
			zap.Int("skipped", skipped),
		)
	}

	if len(features) == 0 {
		return nil, eris.Errorf("refdata: dataset %s (%s) loaded zero features", dataset, m.Version)
	}

	zap.L().Info("reference set loaded",
		zap.String("dataset", dataset),
		zap.String("version", m.Version),
		zap.Int("features", len(features)),
	)

	return &ReferenceSet{Manifest: *m, Features: features}, nil
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
// Shapefile winding distinguishes ring roles: clockwise parts are exterior
// rings, counter-clockwise parts are holes in the preceding exterior ring.
// Holes become interior rings so containment can subtract them.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	var cur *geom.Polygon
	flush := func() {
		if cur == nil {
			return
		}
		if err := mp.Push(cur); err != nil {
			zap.L().Debug("refdata: skipping malformed part", zap.Error(err))
		}
		cur = nil
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)

		// A counter-clockwise part with no preceding exterior ring is
		// malformed input; treat it as an exterior ring rather than drop it.
		if ringSignedArea(flat) >= 0 && cur != nil {
			if err := cur.Push(ring); err != nil {
				zap.L().Debug("refdata: skipping malformed hole ring", zap.Int32("part", i), zap.Error(err))
			}
			continue
		}

		flush()
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("refdata: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		cur = poly
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// ringSignedArea is the shoelace area of a flat XY ring: negative for
// clockwise winding, positive for counter-clockwise.
func ringSignedArea(flat []float64) float64 {
	n := len(flat) / 2
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += flat[i*2]*flat[j*2+1] - flat[j*2]*flat[i*2+1]
	}
	return sum / 2
}
