package screen

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/meridian-housing/sitescreen-cli/internal/analyzer"
	"github.com/meridian-housing/sitescreen-cli/internal/config"
	"github.com/meridian-housing/sitescreen-cli/internal/geolookup"
	"github.com/meridian-housing/sitescreen-cli/internal/model"
	"github.com/meridian-housing/sitescreen-cli/internal/refdata"
	"github.com/meridian-housing/sitescreen-cli/internal/resilience"
	"github.com/meridian-housing/sitescreen-cli/internal/scoring"
	"github.com/meridian-housing/sitescreen-cli/internal/store"
)

// The synthetic reference geography used by every test here:
//
//	QCT: one tract square around Los Angeles.
//	Resource: one "Highest Resource" square covering the whole test region.
//	Flood: an AE square plus an X coverage square, both west of -118;
//	      sites east of -118 have no flood coverage at all.
//	Fire: a Very High square plus Moderate coverage over the whole region.
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

func testConfig() *config.Config {
	return &config.Config{
		Phases: config.PhasesConfig{
			SizeFilter: true, Federal: true, Resource: true,
			Flood: true, Fire: true, LandUse: true,
		},
		Screen: config.ScreenConfig{
			MinAcreage:                2.0,
			MinResourceTier:           "moderate",
			FloodHighRiskZones:        []string{"A", "AE", "AH", "AO", "V", "VE"},
			FireEliminatingSeverities: []string{"very_high", "high"},
			ProhibitedUses:            []string{"gas station", "industrial"},
			AmbiguousUses:             []string{"commercial"},
			Workers:                   4,
		},
		Scoring: config.ScoringConfig{
			PriceWeight:       35,
			MarketTierWeight:  20,
			AcreageWeight:     20,
			LocationWeight:    25,
			OptimalAcreageMin: 3.0,
			OptimalAcreageMax: 10.0,
			MarketTiers:       map[string]float64{"Los Angeles": 1.0, "Fresno": 0.6},
			DefaultMarketTier: 0.5,
		},
	}
}

func testAnalyzers(t *testing.T, cfg *config.Config) []analyzer.Analyzer {
	t.Helper()

	qct := index(t, refdata.DatasetQCT,
		squareFeature(t, "tract-06037", nil, -118.6, 33.8, -118.0, 34.4))
	dda := index(t, refdata.DatasetDDA,
		squareFeature(t, "dda-remote", nil, -117.5, 33.1, -117.3, 33.2))
	res := index(t, refdata.DatasetResource,
		squareFeature(t, "opp-1", map[string]string{"TIER": "Highest Resource"}, -119, 33, -117, 35))
	flood := index(t, refdata.DatasetFlood,
		squareFeature(t, "fld-a-ae", map[string]string{"FLD_ZONE": "AE"}, -118.9, 34.2, -118.8, 34.3),
		squareFeature(t, "fld-z-x", map[string]string{"FLD_ZONE": "X"}, -119, 33, -118, 35))
	fire := index(t, refdata.DatasetFire,
		squareFeature(t, "fhsz-a-vh", map[string]string{"HAZ_CLASS": "Very High"}, -118.5, 33.4, -118.4, 33.5),
		squareFeature(t, "fhsz-z-mod", map[string]string{"HAZ_CLASS": "Moderate"}, -119, 33, -117, 35))

	sc := cfg.Screen
	return []analyzer.Analyzer{
		analyzer.NewSizeFilter(sc.MinAcreage),
		analyzer.NewFederal(qct, dda, sc.FederalMandatory, sc.Workers),
		analyzer.NewResource(res, analyzer.ParseTier(sc.MinResourceTier), sc.Workers),
		analyzer.NewFlood(flood, nil, resilience.DefaultPolicy(), sc.FloodHighRiskZones, sc.Workers),
		analyzer.NewFire(fire, nil, resilience.DefaultPolicy(), sc.FireEliminatingSeverities, sc.Workers),
		analyzer.NewLandUse(sc.ProhibitedUses, sc.AmbiguousUses),
	}
}

func newScreener(t *testing.T, cfg *config.Config) (*Screener, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "screen.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	engine, err := scoring.NewEngine(cfg.Scoring)
	require.NoError(t, err)

	return New(cfg, st, testAnalyzers(t, cfg), engine), st
}

const batchCSV = `id,address,latitude,longitude,acres,price,county,zoning
site-good,100 Main St,34.0,-118.2,5.0,"900,000",Los Angeles,residential
site-small,110 Main St,34.0,-118.3,1.0,"700,000",Los Angeles,residential
site-flood,5 River Rd,34.25,-118.85,5.0,"800,000",Los Angeles,residential
site-fire,9 Canyon Rd,33.45,-118.45,5.0,"850,000",Los Angeles,residential
site-gas,77 Pump Ln,34.1,-118.2,5.0,"650,000",Los Angeles,gas station parcel
site-ambig,40 Market St,34.2,-118.2,5.0,"1,200,000",Los Angeles,commercial
site-nocov,8 Valley Way,34.0,-117.2,5.0,"1,500,000",Fresno,residential
site-nocoord,1 Nowhere Pl,,,5.0,"500,000",Los Angeles,residential
`

func writeBatch(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.csv")
	require.NoError(t, os.WriteFile(path, []byte(batchCSV), 0o644))
	return path
}

func TestScreenerRun_FullFunnel(t *testing.T) {
	cfg := testConfig()
	s, _ := newScreener(t, cfg)

	result, err := s.Run(context.Background(), writeBatch(t))
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, result.Run.Status)

	// One row had no coordinates; it never entered qualification.
	require.Len(t, result.InvalidRows, 1)
	assert.Equal(t, "site-nocoord", result.InvalidRows[0].SiteID)
	assert.Equal(t, "missing coordinates", result.InvalidRows[0].Reason)

	require.Len(t, result.Phases, 7)
	type row struct {
		phase      model.Phase
		entering   int
		eliminated int
	}
	want := []row{
		{model.PhaseValidate, 8, 1},
		{model.PhaseSizeFilter, 7, 1},
		{model.PhaseFederal, 6, 0},
		{model.PhaseResource, 6, 0},
		{model.PhaseFlood, 6, 1},
		{model.PhaseFire, 5, 1},
		{model.PhaseLandUse, 4, 1},
	}
	for i, w := range want {
		pr := result.Phases[i]
		assert.Equal(t, w.phase, pr.Phase)
		assert.Equal(t, model.PhaseStatusComplete, pr.Status)
		assert.Equal(t, w.entering, pr.Entering, "entering %s", w.phase)
		assert.Equal(t, w.eliminated, pr.Eliminated, "eliminated %s", w.phase)
		assert.True(t, pr.Consistent(), "counts %s", w.phase)
		if i > 0 {
			assert.Equal(t, result.Phases[i-1].Surviving, pr.Entering, "funnel chain %s", w.phase)
		}
	}

	byReason := map[model.ReasonCode]string{}
	for _, rec := range result.Eliminations() {
		byReason[rec.Reason] = rec.SiteID
	}
	assert.Equal(t, "site-small", byReason[model.ReasonBelowMinAcreage])
	assert.Equal(t, "site-flood", byReason[model.ReasonHighFloodRisk])
	assert.Equal(t, "site-fire", byReason[model.ReasonHighFireSeverity])
	assert.Equal(t, "site-gas", byReason[model.ReasonProhibitedLandUse])

	// Unresolvable flood status keeps the site with a flag, and an
	// ambiguous land use flags without eliminating.
	flagged := map[string]model.Phase{}
	for _, f := range result.ManualReview {
		flagged[f.SiteID] = f.Phase
	}
	assert.Equal(t, model.PhaseFlood, flagged["site-nocov"])
	assert.Equal(t, model.PhaseLandUse, flagged["site-ambig"])

	require.Len(t, result.Survivors, 3)

	require.Len(t, result.Scored, 3)
	assert.Equal(t, "site-good", result.Scored[0].SiteID)
	assert.Equal(t, "site-ambig", result.Scored[1].SiteID)
	assert.Equal(t, "site-nocov", result.Scored[2].SiteID)
	assert.Equal(t, 1, result.Scored[0].Rank)
	assert.Equal(t, model.QualificationFlags{
		FederalQualified: true,
		FederalBasis:     "qct",
		ResourceTier:     model.TierHighest,
	}, result.Scored[0].Flags)
	assert.Equal(t, model.TierHighest, result.Scored[2].Flags.ResourceTier)
	assert.False(t, result.Scored[2].Flags.FederalQualified)
}

func TestScreenerRun_PersistsEverything(t *testing.T) {
	cfg := testConfig()
	s, st := newScreener(t, cfg)
	ctx := context.Background()

	result, err := s.Run(ctx, writeBatch(t))
	require.NoError(t, err)
	runID := result.Run.ID

	run, err := st.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 7, run.SiteCount)

	phases, err := st.GetPhaseResults(ctx, runID)
	require.NoError(t, err)
	require.Len(t, phases, 7)
	assert.Equal(t, model.PhaseValidate, phases[0].Phase)

	elims, err := st.GetEliminations(ctx, runID)
	require.NoError(t, err)
	assert.Len(t, elims, 4)

	scored, err := st.GetScores(ctx, runID)
	require.NoError(t, err)
	require.Len(t, scored, 3)
	assert.Equal(t, "site-good", scored[0].SiteID)

	class, err := st.GetClassifications(ctx, runID)
	require.NoError(t, err)
	assert.True(t, class["site-good"].FederalQualified)
	assert.Equal(t, model.TierHighest, class["site-good"].ResourceTier)
}

func TestScreenerRun_DisabledPhaseIsSkipped(t *testing.T) {
	cfg := testConfig()
	cfg.Phases.Fire = false
	s, _ := newScreener(t, cfg)

	result, err := s.Run(context.Background(), writeBatch(t))
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, result.Run.Status)

	fire := result.Phases[5]
	assert.Equal(t, model.PhaseFire, fire.Phase)
	assert.Equal(t, model.PhaseStatusSkipped, fire.Status)
	assert.Equal(t, fire.Entering, fire.Surviving)

	// With the fire hazard check off, site-fire reaches scoring.
	ids := map[string]bool{}
	for _, sc := range result.Scored {
		ids[sc.SiteID] = true
	}
	assert.True(t, ids["site-fire"])
	assert.Len(t, result.Scored, 4)
}

func TestScreenerRun_ZeroSurvivorsSkipsRemainingPhases(t *testing.T) {
	cfg := testConfig()
	cfg.Screen.MinAcreage = 100 // nothing passes
	s, _ := newScreener(t, cfg)

	result, err := s.Run(context.Background(), writeBatch(t))
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, result.Run.Status)

	require.Len(t, result.Phases, 7)
	assert.Equal(t, model.PhaseValidate, result.Phases[0].Phase)
	assert.Equal(t, 7, result.Phases[1].Eliminated)
	for _, pr := range result.Phases[2:] {
		assert.Equal(t, model.PhaseStatusSkipped, pr.Status, string(pr.Phase))
	}
	assert.Empty(t, result.Survivors)
	assert.Empty(t, result.Scored)
}

// cancellingAnalyzer cancels the run's context once its own phase has
// finished evaluating, simulating an interrupt arriving between phases.
type cancellingAnalyzer struct {
	analyzer.Analyzer
	cancel context.CancelFunc
}

func (c cancellingAnalyzer) Evaluate(ctx context.Context, sites []model.CandidateSite) (*analyzer.Outcome, error) {
	out, err := c.Analyzer.Evaluate(ctx, sites)
	c.cancel()
	return out, err
}

func TestScreenerRun_CancellationHaltsAndPreservesPhases(t *testing.T) {
	cfg := testConfig()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "screen.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	engine, err := scoring.NewEngine(cfg.Scoring)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	analyzers := testAnalyzers(t, cfg)
	analyzers[1] = cancellingAnalyzer{Analyzer: analyzers[1], cancel: cancel}
	s := New(cfg, st, analyzers, engine)

	result, err := s.Run(ctx, writeBatch(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "halted before phase")
	require.NotNil(t, result)
	assert.Equal(t, model.RunStatusHalted, result.Run.Status)

	// The halted status and every phase that finished before the
	// cancellation survive in the store.
	run, err := st.GetRun(context.Background(), result.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusHalted, run.Status)

	phases, err := st.GetPhaseResults(context.Background(), result.Run.ID)
	require.NoError(t, err)
	require.Len(t, phases, 3)
	assert.Equal(t, model.PhaseValidate, phases[0].Phase)
	assert.Equal(t, model.PhaseSizeFilter, phases[1].Phase)
	assert.Equal(t, model.PhaseFederal, phases[2].Phase)
	for _, pr := range phases {
		assert.Equal(t, model.PhaseStatusComplete, pr.Status, string(pr.Phase))
	}

	// A resume picks up after the last completed phase and finishes.
	resumed, err := s.Resume(context.Background(), result.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, resumed.Run.Status)
	require.Len(t, resumed.Phases, 7)
	assert.Len(t, resumed.Scored, 3)
}

func TestScreenerResume_DoesNotRerunCompletedPhases(t *testing.T) {
	cfg := testConfig()
	s, st := newScreener(t, cfg)
	ctx := context.Background()

	// Simulate a run interrupted after the size filter: the phase row and
	// its elimination are persisted, nothing later ran.
	lat, lng := 34.0, -118.2
	acres, small := 5.0, 1.0
	price := 900_000.0
	run, err := st.CreateRun(ctx, "batch.csv", []model.CandidateSite{
		{ID: "site-good", Address: "100 Main St", Latitude: &lat, Longitude: &lng, Acreage: &acres, Price: &price, County: "Los Angeles"},
		{ID: "site-small", Address: "110 Main St", Latitude: &lat, Longitude: &lng, Acreage: &small},
	})
	require.NoError(t, err)

	rec, err := model.NewElimination("site-small", model.PhaseSizeFilter, model.ReasonBelowMinAcreage, "1.00 acres below minimum", "")
	require.NoError(t, err)
	require.NoError(t, st.SavePhaseResult(ctx, run.ID, 0, model.PhaseResult{
		Phase:      model.PhaseSizeFilter,
		Status:     model.PhaseStatusComplete,
		Entering:   2,
		Eliminated: 1,
		Surviving:  1,
		Records:    []model.EliminationRecord{rec},
		DurationMS: 999,
	}))
	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusHalted))

	result, err := s.Resume(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, result.Run.Status)

	// The persisted phase is replayed into the result, not re-executed.
	require.Len(t, result.Phases, 6)
	assert.Equal(t, model.PhaseSizeFilter, result.Phases[0].Phase)
	assert.Equal(t, int64(999), result.Phases[0].DurationMS)

	require.Len(t, result.Survivors, 1)
	assert.Equal(t, "site-good", result.Survivors[0].ID)
	require.Len(t, result.Scored, 1)
	assert.True(t, result.Scored[0].Flags.FederalQualified)
}

func TestScreenerResume_CompleteRunAssemblesFromStore(t *testing.T) {
	cfg := testConfig()
	s, _ := newScreener(t, cfg)
	ctx := context.Background()

	first, err := s.Run(ctx, writeBatch(t))
	require.NoError(t, err)

	second, err := s.Resume(ctx, first.Run.ID)
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusComplete, second.Run.Status)
	assert.Len(t, second.Phases, len(first.Phases))
	require.Len(t, second.Scored, len(first.Scored))
	assert.Equal(t, first.Scored[0].SiteID, second.Scored[0].SiteID)
	assert.Len(t, second.Survivors, len(first.Survivors))
}

func TestScreenerResume_UnknownRun(t *testing.T) {
	cfg := testConfig()
	s, _ := newScreener(t, cfg)

	_, err := s.Resume(context.Background(), "no-such-run")
	require.Error(t, err)
}

func TestValidateSites(t *testing.T) {
	lat, lng := 34.0, -118.2
	badLat := 91.0
	sites := []model.CandidateSite{
		{ID: "ok", Latitude: &lat, Longitude: &lng},
		{ID: "none"},
		{ID: "partial", Latitude: &lat},
		{ID: "range", Latitude: &badLat, Longitude: &lng},
	}

	valid, invalid := validateSites(sites)
	require.Len(t, valid, 1)
	assert.Equal(t, "ok", valid[0].ID)

	require.Len(t, invalid, 3)
	assert.Equal(t, "missing coordinates", invalid[0].Reason)
	assert.Equal(t, 3, invalid[0].RowNumber)
	assert.Equal(t, "partial coordinates", invalid[1].Reason)
	assert.Contains(t, invalid[2].Reason, "latitude")
}
