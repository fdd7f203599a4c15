package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

func TestSizeFilter_EliminatesBelowMinimum(t *testing.T) {
	a := NewSizeFilter(2.0)

	out, err := a.Evaluate(context.Background(), []model.CandidateSite{
		siteWithAcreage("s-1", 34, -118, 1.5),
		siteWithAcreage("s-2", 34, -118, 2.0),
		siteWithAcreage("s-3", 34, -118, 10.0),
	})
	require.NoError(t, err)

	require.Len(t, out.Eliminated, 1)
	assert.Equal(t, "s-1", out.Eliminated[0].SiteID)
	assert.Equal(t, model.ReasonBelowMinAcreage, out.Eliminated[0].Reason)
	assert.Equal(t, []string{"s-2", "s-3"}, siteIDs(out.Survivors))
}

func TestSizeFilter_MissingAcreageKeptWithFlag(t *testing.T) {
	a := NewSizeFilter(2.0)

	out, err := a.Evaluate(context.Background(), []model.CandidateSite{
		site("s-1", 34, -118),
	})
	require.NoError(t, err)

	assert.Empty(t, out.Eliminated)
	require.Len(t, out.Survivors, 1)
	require.Len(t, out.Flags, 1)
	assert.Equal(t, "s-1", out.Flags[0].SiteID)
	assert.Equal(t, "missing_acreage", out.Flags[0].Reason)
	assert.Equal(t, model.PhaseSizeFilter, out.Flags[0].Phase)
}

func TestSizeFilter_OutcomeCountsAddUp(t *testing.T) {
	a := NewSizeFilter(3.0)

	in := []model.CandidateSite{
		siteWithAcreage("s-1", 34, -118, 1),
		siteWithAcreage("s-2", 34, -118, 5),
		site("s-3", 34, -118),
		siteWithAcreage("s-4", 34, -118, 2.9),
	}
	out, err := a.Evaluate(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, len(in), len(out.Eliminated)+len(out.Survivors))
}
