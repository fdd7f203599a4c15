package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "sitescreen.db", cfg.Store.Path)
	assert.Equal(t, "refdata", cfg.Refdata.Dir)
	assert.Equal(t, 8080, cfg.Server.Port)

	assert.True(t, cfg.Phases.SizeFilter)
	assert.True(t, cfg.Phases.LandUse)

	assert.Equal(t, 2.0, cfg.Screen.MinAcreage)
	assert.False(t, cfg.Screen.FederalMandatory)
	assert.Equal(t, "moderate", cfg.Screen.MinResourceTier)
	assert.Contains(t, cfg.Screen.FloodHighRiskZones, "VE")
	assert.Contains(t, cfg.Screen.FireEliminatingSeverities, "very_high")
	assert.Contains(t, cfg.Screen.ProhibitedUses, "gas station")
	assert.Equal(t, 8, cfg.Screen.Workers)

	// Live lookups are opt-in.
	assert.False(t, cfg.FEMA.Enabled)
	assert.False(t, cfg.FireHaz.Enabled)
	assert.Equal(t, 3, cfg.FEMA.MaxAttempts)

	assert.Equal(t, 100.0, cfg.Scoring.PriceWeight+cfg.Scoring.MarketTierWeight+
		cfg.Scoring.AcreageWeight+cfg.Scoring.LocationWeight)
	assert.Equal(t, 3.0, cfg.Scoring.OptimalAcreageMin)
	assert.Equal(t, 10.0, cfg.Scoring.OptimalAcreageMax)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SITESCREEN_STORE_DRIVER", "postgres")
	t.Setenv("SITESCREEN_SCREEN_MIN_ACREAGE", "4.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 4.5, cfg.Screen.MinAcreage)
}

func TestPhasesEnabled(t *testing.T) {
	p := PhasesConfig{SizeFilter: true, Flood: true}

	assert.True(t, p.Enabled(model.PhaseSizeFilter))
	assert.True(t, p.Enabled(model.PhaseFlood))
	assert.False(t, p.Enabled(model.PhaseFederal))
	assert.False(t, p.Enabled(model.PhaseFire))

	// Unknown phases run rather than silently vanish.
	assert.True(t, p.Enabled(model.Phase("future_phase")))
}

func TestInitLoggerRejectsBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "whisper", Format: "json"})
	require.Error(t, err)
}
