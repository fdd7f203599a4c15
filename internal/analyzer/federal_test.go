package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

func TestFederal_ClassifiesByContainment(t *testing.T) {
	qct := index(t, "qct", squareFeature(t, "tract-1", nil, -1, -1, 1, 1))
	dda := index(t, "dda", squareFeature(t, "zip-1", nil, 0, 0, 2, 2))

	a := NewFederal(qct, dda, false, 4)

	out, err := a.Evaluate(context.Background(), []model.CandidateSite{
		site("in-qct", -0.5, -0.5),  // QCT only
		site("in-both", 0.5, 0.5),   // QCT and DDA overlap
		site("in-dda", 1.5, 1.5),    // DDA only
		site("in-neither", 10, 10),  // nothing
	})
	require.NoError(t, err)

	// Classification only: nobody is eliminated.
	assert.Empty(t, out.Eliminated)
	assert.Len(t, out.Survivors, 4)

	assert.Equal(t, Classification{FederalQualified: true, FederalBasis: "qct"}, out.Classifications["in-qct"])
	assert.Equal(t, Classification{FederalQualified: true, FederalBasis: "qct+dda"}, out.Classifications["in-both"])
	assert.Equal(t, Classification{FederalQualified: true, FederalBasis: "dda"}, out.Classifications["in-dda"])
	assert.Equal(t, Classification{FederalQualified: false}, out.Classifications["in-neither"])
}

func TestFederal_MandatoryEliminatesUnqualified(t *testing.T) {
	qct := index(t, "qct", squareFeature(t, "tract-1", nil, -1, -1, 1, 1))
	dda := index(t, "dda")

	a := NewFederal(qct, dda, true, 2)

	out, err := a.Evaluate(context.Background(), []model.CandidateSite{
		site("qualified", 0, 0),
		site("unqualified", 10, 10),
	})
	require.NoError(t, err)

	require.Len(t, out.Eliminated, 1)
	assert.Equal(t, "unqualified", out.Eliminated[0].SiteID)
	assert.Equal(t, model.ReasonNotFederalQual, out.Eliminated[0].Reason)
	assert.Equal(t, []string{"qualified"}, siteIDs(out.Survivors))
}

func TestFederal_SurvivorsPreserveInputOrder(t *testing.T) {
	qct := index(t, "qct", squareFeature(t, "tract-1", nil, -1, -1, 1, 1))
	dda := index(t, "dda")

	a := NewFederal(qct, dda, false, 8)

	var sites []model.CandidateSite
	want := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		id := string(rune('a'+i)) + "-site"
		sites = append(sites, site(id, 0, 0))
		want = append(want, id)
	}

	out, err := a.Evaluate(context.Background(), sites)
	require.NoError(t, err)
	assert.Equal(t, want, siteIDs(out.Survivors))
}
