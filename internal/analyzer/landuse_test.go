package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

func landUseSite(id string, meta map[string]string) model.CandidateSite {
	s := site(id, 34, -118)
	s.Metadata = meta
	return s
}

func TestLandUse_ProhibitedEliminates(t *testing.T) {
	a := NewLandUse([]string{"gas station", "dry cleaner", "landfill"}, nil)

	out, err := a.Evaluate(context.Background(), []model.CandidateSite{
		landUseSite("s-1", map[string]string{"Current Use": "Former Gas Station"}),
		landUseSite("s-2", map[string]string{"Zoning": "R-3 residential"}),
	})
	require.NoError(t, err)

	require.Len(t, out.Eliminated, 1)
	assert.Equal(t, "s-1", out.Eliminated[0].SiteID)
	assert.Equal(t, model.ReasonProhibitedLandUse, out.Eliminated[0].Reason)
	assert.Contains(t, out.Eliminated[0].Detail, "gas station")
	assert.Equal(t, []string{"s-2"}, siteIDs(out.Survivors))
}

func TestLandUse_AmbiguousFlagsWithoutEliminating(t *testing.T) {
	a := NewLandUse([]string{"landfill"}, []string{"industrial", "auto"})

	out, err := a.Evaluate(context.Background(), []model.CandidateSite{
		landUseSite("s-1", map[string]string{"Zoning": "Light Industrial M-1"}),
	})
	require.NoError(t, err)

	assert.Empty(t, out.Eliminated)
	require.Len(t, out.Survivors, 1)
	require.Len(t, out.Flags, 1)
	assert.Equal(t, "ambiguous_land_use", out.Flags[0].Reason)
}

func TestLandUse_ProhibitedTakesPrecedenceOverAmbiguous(t *testing.T) {
	a := NewLandUse([]string{"gas station"}, []string{"station"})

	out, err := a.Evaluate(context.Background(), []model.CandidateSite{
		landUseSite("s-1", map[string]string{"Use": "gas station"}),
	})
	require.NoError(t, err)

	assert.Len(t, out.Eliminated, 1)
	assert.Empty(t, out.Flags)
}

func TestLandUse_NoMetadataPasses(t *testing.T) {
	a := NewLandUse([]string{"gas station"}, []string{"industrial"})

	out, err := a.Evaluate(context.Background(), []model.CandidateSite{
		landUseSite("s-1", nil),
		landUseSite("s-2", map[string]string{"Broker Notes": "gas station next door"}),
	})
	require.NoError(t, err)

	// s-2's mention is in a non-land-use column and must not eliminate.
	assert.Empty(t, out.Eliminated)
	assert.Len(t, out.Survivors, 2)
}

func TestLandUseText_CollectsOnlyLandUseKeys(t *testing.T) {
	s := landUseSite("s-1", map[string]string{
		"Current Use": "Warehouse",
		"Zoning":      "M-1",
		"Notes":       "irrelevant",
	})

	text := landUseText(s)
	assert.Contains(t, text, "warehouse")
	assert.Contains(t, text, "m-1")
	assert.NotContains(t, text, "irrelevant")
}
