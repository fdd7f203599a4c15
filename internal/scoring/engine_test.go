package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-housing/sitescreen-cli/internal/config"
	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

func testConfig() config.ScoringConfig {
	return config.ScoringConfig{
		PriceWeight:       35,
		MarketTierWeight:  20,
		AcreageWeight:     20,
		LocationWeight:    25,
		OptimalAcreageMin: 3.0,
		OptimalAcreageMax: 10.0,
		MarketTiers:       map[string]float64{"Los Angeles": 1.0, "Fresno": 0.6},
		DefaultMarketTier: 0.5,
	}
}

func scoredSite(id string, price, acreage float64, county string) model.CandidateSite {
	return model.CandidateSite{ID: id, Price: &price, Acreage: &acreage, County: county}
}

func TestNewEngine_RejectsBadWeights(t *testing.T) {
	cfg := testConfig()
	cfg.PriceWeight = -5
	_, err := NewEngine(cfg)
	require.Error(t, err)

	cfg = testConfig()
	cfg.LocationWeight = 90 // sum drifts far from 100
	_, err = NewEngine(cfg)
	require.Error(t, err)

	cfg = testConfig()
	cfg.OptimalAcreageMax = 1.0 // below min
	_, err = NewEngine(cfg)
	require.Error(t, err)

	cfg = testConfig()
	cfg.DefaultMarketTier = 1.5
	_, err = NewEngine(cfg)
	require.Error(t, err)
}

func TestScore_EmptyInput(t *testing.T) {
	e, err := NewEngine(testConfig())
	require.NoError(t, err)
	assert.Nil(t, e.Score(nil, nil))
}

func TestScore_PriceNormalization(t *testing.T) {
	e, err := NewEngine(testConfig())
	require.NoError(t, err)

	scored := e.Score([]model.CandidateSite{
		scoredSite("cheap", 100000, 5, ""),
		scoredSite("mid", 550000, 5, ""),
		scoredSite("expensive", 1000000, 5, ""),
	}, nil)

	byID := map[string]model.ScoredSite{}
	for _, s := range scored {
		byID[s.SiteID] = s
	}

	assert.InDelta(t, 1.0, byID["cheap"].Sub.Price, 1e-9)
	assert.InDelta(t, 0.5, byID["mid"].Sub.Price, 1e-9)
	assert.InDelta(t, 0.0, byID["expensive"].Sub.Price, 1e-9)
}

func TestScore_NoPriceSpreadIsNeutral(t *testing.T) {
	e, err := NewEngine(testConfig())
	require.NoError(t, err)

	scored := e.Score([]model.CandidateSite{
		scoredSite("a", 500000, 5, ""),
		scoredSite("b", 500000, 5, ""),
	}, nil)

	for _, s := range scored {
		assert.InDelta(t, 0.5, s.Sub.Price, 1e-9)
	}
}

func TestScore_AcreageBand(t *testing.T) {
	e, err := NewEngine(testConfig())
	require.NoError(t, err)

	assert.InDelta(t, 1.0, e.acreageScore(model.CandidateSite{Acreage: f(5)}), 1e-9)
	assert.InDelta(t, 1.0, e.acreageScore(model.CandidateSite{Acreage: f(3)}), 1e-9)
	assert.InDelta(t, 1.0, e.acreageScore(model.CandidateSite{Acreage: f(10)}), 1e-9)
	assert.InDelta(t, 0.5, e.acreageScore(model.CandidateSite{Acreage: f(1.5)}), 1e-9)
	assert.InDelta(t, 0.5, e.acreageScore(model.CandidateSite{Acreage: f(20)}), 1e-9)
	assert.InDelta(t, 0.5, e.acreageScore(model.CandidateSite{}), 1e-9)
}

func f(v float64) *float64 { return &v }

func TestScore_MarketTierLookup(t *testing.T) {
	e, err := NewEngine(testConfig())
	require.NoError(t, err)

	assert.InDelta(t, 1.0, e.marketTierScore(model.CandidateSite{County: "Los Angeles"}), 1e-9)
	assert.InDelta(t, 0.6, e.marketTierScore(model.CandidateSite{County: "Fresno"}), 1e-9)
	assert.InDelta(t, 0.5, e.marketTierScore(model.CandidateSite{County: "Unknown"}), 1e-9)
	assert.InDelta(t, 0.5, e.marketTierScore(model.CandidateSite{}), 1e-9)
}

func TestScore_LocationBonus(t *testing.T) {
	e, err := NewEngine(testConfig())
	require.NoError(t, err)

	assert.InDelta(t, 1.0, e.locationScore(model.QualificationFlags{ResourceTier: model.TierHighest}), 1e-9)
	assert.InDelta(t, 1.0, e.locationScore(model.QualificationFlags{ResourceTier: model.TierHighest, FederalQualified: true}), 1e-9) // capped
	assert.InDelta(t, 0.75, e.locationScore(model.QualificationFlags{ResourceTier: model.TierHigh}), 1e-9)
	assert.InDelta(t, 1.0, e.locationScore(model.QualificationFlags{ResourceTier: model.TierHigh, FederalQualified: true}), 1e-9)
	assert.InDelta(t, 0.25, e.locationScore(model.QualificationFlags{FederalQualified: true}), 1e-9)
	assert.InDelta(t, 0.0, e.locationScore(model.QualificationFlags{}), 1e-9)
}

func TestScore_RanksDescendingWithTieBreaks(t *testing.T) {
	e, err := NewEngine(testConfig())
	require.NoError(t, err)

	// Identical scoring inputs except price and acreage, engineered so
	// composites tie and the secondary ordering decides.
	scored := e.Score([]model.CandidateSite{
		scoredSite("z-site", 500000, 5, "Los Angeles"),
		scoredSite("a-site", 500000, 5, "Los Angeles"),
		scoredSite("m-site", 500000, 5, "Los Angeles"),
	}, nil)

	require.Len(t, scored, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{scored[0].Rank, scored[1].Rank, scored[2].Rank})
	// Full tie resolves alphabetically by site id.
	assert.Equal(t, "a-site", scored[0].SiteID)
	assert.Equal(t, "m-site", scored[1].SiteID)
	assert.Equal(t, "z-site", scored[2].SiteID)
}

func TestScore_LowerPriceWinsTies(t *testing.T) {
	e, err := NewEngine(config.ScoringConfig{
		// Price weight zero so price differences cannot move the composite.
		PriceWeight:       0,
		MarketTierWeight:  40,
		AcreageWeight:     30,
		LocationWeight:    30,
		OptimalAcreageMin: 3,
		OptimalAcreageMax: 10,
		DefaultMarketTier: 0.5,
	})
	require.NoError(t, err)

	scored := e.Score([]model.CandidateSite{
		scoredSite("pricey", 900000, 5, ""),
		scoredSite("bargain", 300000, 5, ""),
	}, nil)

	require.Len(t, scored, 2)
	assert.Equal(t, "bargain", scored[0].SiteID)
	assert.Equal(t, 1, scored[0].Rank)
}

func TestScore_ClassificationFlagsCarriedIntoOutput(t *testing.T) {
	e, err := NewEngine(testConfig())
	require.NoError(t, err)

	flags := map[string]model.QualificationFlags{
		"s-1": {FederalQualified: true, FederalBasis: "qct", ResourceTier: model.TierHigh},
	}
	scored := e.Score([]model.CandidateSite{scoredSite("s-1", 100, 5, "")}, flags)

	require.Len(t, scored, 1)
	assert.Equal(t, flags["s-1"], scored[0].Flags)
}
