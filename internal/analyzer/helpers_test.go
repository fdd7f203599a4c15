package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/meridian-housing/sitescreen-cli/internal/geolookup"
	"github.com/meridian-housing/sitescreen-cli/internal/model"
	"github.com/meridian-housing/sitescreen-cli/internal/refdata"
)

func site(id string, lat, lng float64) model.CandidateSite {
	return model.CandidateSite{
		ID:        id,
		Address:   id + " test rd",
		Latitude:  &lat,
		Longitude: &lng,
	}
}

func siteWithAcreage(id string, lat, lng, acres float64) model.CandidateSite {
	s := site(id, lat, lng)
	s.Acreage = &acres
	return s
}

func squareFeature(t *testing.T, id string, attrs map[string]string, minLng, minLat, maxLng, maxLat float64) refdata.Feature {
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
	return refdata.Feature{ID: id, Attrs: attrs, Geom: mp}
}

func index(t *testing.T, dataset string, features ...refdata.Feature) *geolookup.Index {
	t.Helper()
	return geolookup.NewIndex(&refdata.ReferenceSet{
		Manifest: refdata.Manifest{Dataset: dataset, Version: "2026-01"},
		Features: features,
	})
}

func siteIDs(sites []model.CandidateSite) []string {
	ids := make([]string, len(sites))
	for i, s := range sites {
		ids[i] = s.ID
	}
	return ids
}
