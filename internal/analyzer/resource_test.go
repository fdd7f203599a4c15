package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

func resourceIndex(t *testing.T) *Resource {
	t.Helper()
	idx := index(t, "resource",
		squareFeature(t, "area-highest", map[string]string{"TIER": "Highest Resource"}, 0, 0, 1, 1),
		squareFeature(t, "area-moderate", map[string]string{"TIER": "Moderate Resource"}, 2, 0, 3, 1),
		squareFeature(t, "area-low", map[string]string{"TIER": "Low Resource"}, 4, 0, 5, 1),
	)
	return NewResource(idx, model.TierHigh, 2)
}

func TestResource_EliminatesBelowMinTier(t *testing.T) {
	a := resourceIndex(t)

	out, err := a.Evaluate(context.Background(), []model.CandidateSite{
		site("in-highest", 0.5, 0.5),
		site("in-moderate", 0.5, 2.5),
		site("in-low", 0.5, 4.5),
	})
	require.NoError(t, err)

	require.Len(t, out.Eliminated, 2)
	for _, rec := range out.Eliminated {
		assert.Equal(t, model.ReasonBelowResourceTier, rec.Reason)
	}
	assert.Equal(t, []string{"in-highest"}, siteIDs(out.Survivors))
	assert.Equal(t, model.TierHighest, out.Classifications["in-highest"].ResourceTier)
}

func TestResource_OutsideMapIsDistinctReason(t *testing.T) {
	a := resourceIndex(t)

	out, err := a.Evaluate(context.Background(), []model.CandidateSite{
		site("nowhere", 40, -100),
	})
	require.NoError(t, err)

	require.Len(t, out.Eliminated, 1)
	assert.Equal(t, model.ReasonOutsideResourceMap, out.Eliminated[0].Reason)
}

func TestParseTier(t *testing.T) {
	assert.Equal(t, model.TierHighest, ParseTier("Highest Resource"))
	assert.Equal(t, model.TierHigh, ParseTier("High Resource"))
	assert.Equal(t, model.TierModerate, ParseTier("Moderate Resource (Rapidly Changing)"))
	assert.Equal(t, model.TierModerate, ParseTier("medium"))
	assert.Equal(t, model.TierLow, ParseTier("Low Resource"))
	assert.Equal(t, model.Tier("unscored"), ParseTier("Unscored"))
}
