package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Refdata RefdataConfig `yaml:"refdata" mapstructure:"refdata"`
	Phases  PhasesConfig  `yaml:"phases" mapstructure:"phases"`
	Screen  ScreenConfig  `yaml:"screen" mapstructure:"screen"`
	FEMA    ServiceConfig `yaml:"fema" mapstructure:"fema"`
	FireHaz ServiceConfig `yaml:"firehaz" mapstructure:"firehaz"`
	Scoring ScoringConfig `yaml:"scoring" mapstructure:"scoring"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the audit sink backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	Path        string `yaml:"path" mapstructure:"path"`     // sqlite file path
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RefdataConfig points at the reference dataset directory. Each dataset lives
// under Dir with a manifest.yaml describing its shapefile and schema.
type RefdataConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// PhasesConfig enables or disables individual elimination phases.
type PhasesConfig struct {
	SizeFilter bool `yaml:"size_filter" mapstructure:"size_filter"`
	Federal    bool `yaml:"federal" mapstructure:"federal"`
	Resource   bool `yaml:"resource" mapstructure:"resource"`
	Flood      bool `yaml:"flood" mapstructure:"flood"`
	Fire       bool `yaml:"fire" mapstructure:"fire"`
	LandUse    bool `yaml:"land_use" mapstructure:"land_use"`
}

// Enabled reports whether a phase should execute. Unknown phases run;
// only explicitly disabled phases are skipped.
func (p PhasesConfig) Enabled(phase model.Phase) bool {
	switch phase {
	case model.PhaseSizeFilter:
		return p.SizeFilter
	case model.PhaseFederal:
		return p.Federal
	case model.PhaseResource:
		return p.Resource
	case model.PhaseFlood:
		return p.Flood
	case model.PhaseFire:
		return p.Fire
	case model.PhaseLandUse:
		return p.LandUse
	default:
		return true
	}
}

// ScreenConfig holds per-phase elimination thresholds.
type ScreenConfig struct {
	MinAcreage float64 `yaml:"min_acreage" mapstructure:"min_acreage"`

	// FederalMandatory makes lack of federal qualification an elimination
	// rather than a classification. Defaults to false: qualification affects
	// basis boost, not legal viability.
	FederalMandatory bool `yaml:"federal_mandatory" mapstructure:"federal_mandatory"`

	MinResourceTier string `yaml:"min_resource_tier" mapstructure:"min_resource_tier"`

	// FloodHighRiskZones are SFHA zone code prefixes that disqualify.
	FloodHighRiskZones []string `yaml:"flood_high_risk_zones" mapstructure:"flood_high_risk_zones"`

	// FireEliminatingSeverities are severity labels that disqualify.
	FireEliminatingSeverities []string `yaml:"fire_eliminating_severities" mapstructure:"fire_eliminating_severities"`

	// ProhibitedUses eliminate on match; AmbiguousUses flag for manual review.
	ProhibitedUses []string `yaml:"prohibited_uses" mapstructure:"prohibited_uses"`
	AmbiguousUses  []string `yaml:"ambiguous_uses" mapstructure:"ambiguous_uses"`

	// Workers bounds intra-phase parallelism for static-set lookups.
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// ServiceConfig configures one live external lookup service.
type ServiceConfig struct {
	Enabled          bool    `yaml:"enabled" mapstructure:"enabled"`
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey           string  `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests/sec, shared across the run
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ScoringConfig holds composite score weights and factor parameters.
// Weights sum to 100.
type ScoringConfig struct {
	PriceWeight      float64 `yaml:"price_weight" mapstructure:"price_weight"`
	MarketTierWeight float64 `yaml:"market_tier_weight" mapstructure:"market_tier_weight"`
	AcreageWeight    float64 `yaml:"acreage_weight" mapstructure:"acreage_weight"`
	LocationWeight   float64 `yaml:"location_weight" mapstructure:"location_weight"`

	// Optimal acreage band; parcels inside score 1.0, falloff on both sides.
	OptimalAcreageMin float64 `yaml:"optimal_acreage_min" mapstructure:"optimal_acreage_min"`
	OptimalAcreageMax float64 `yaml:"optimal_acreage_max" mapstructure:"optimal_acreage_max"`

	// MarketTiers maps a normalized county name to a market factor in [0,1].
	MarketTiers       map[string]float64 `yaml:"market_tiers" mapstructure:"market_tiers"`
	DefaultMarketTier float64            `yaml:"default_market_tier" mapstructure:"default_market_tier"`
}

// ServerConfig configures the read-only status API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SITESCREEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "sitescreen.db")
	v.SetDefault("refdata.dir", "refdata")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("phases.size_filter", true)
	v.SetDefault("phases.federal", true)
	v.SetDefault("phases.resource", true)
	v.SetDefault("phases.flood", true)
	v.SetDefault("phases.fire", true)
	v.SetDefault("phases.land_use", true)

	v.SetDefault("screen.min_acreage", 2.0)
	v.SetDefault("screen.federal_mandatory", false)
	v.SetDefault("screen.min_resource_tier", "moderate")
	v.SetDefault("screen.flood_high_risk_zones", []string{"A", "AE", "AH", "AO", "V", "VE"})
	v.SetDefault("screen.fire_eliminating_severities", []string{"very_high", "high"})
	v.SetDefault("screen.prohibited_uses", []string{
		"industrial", "gas station", "fuel", "refinery", "chemical",
		"dry cleaner", "landfill", "salvage",
	})
	v.SetDefault("screen.ambiguous_uses", []string{
		"commercial", "mixed use", "warehouse", "auto",
	})
	v.SetDefault("screen.workers", 8)

	v.SetDefault("fema.enabled", false)
	v.SetDefault("fema.base_url", "https://hazards.fema.gov/nfhlv2/services")
	v.SetDefault("fema.timeout_secs", 15)
	v.SetDefault("fema.rate_limit", 2)
	v.SetDefault("fema.max_attempts", 3)
	v.SetDefault("fema.initial_backoff_ms", 500)
	v.SetDefault("fema.max_backoff_ms", 8000)

	v.SetDefault("firehaz.enabled", false)
	v.SetDefault("firehaz.base_url", "https://egis.fire.ca.gov/arcgis/rest/services")
	v.SetDefault("firehaz.timeout_secs", 15)
	v.SetDefault("firehaz.rate_limit", 2)
	v.SetDefault("firehaz.max_attempts", 3)
	v.SetDefault("firehaz.initial_backoff_ms", 500)
	v.SetDefault("firehaz.max_backoff_ms", 8000)

	v.SetDefault("scoring.price_weight", 35)
	v.SetDefault("scoring.market_tier_weight", 20)
	v.SetDefault("scoring.acreage_weight", 20)
	v.SetDefault("scoring.location_weight", 25)
	v.SetDefault("scoring.optimal_acreage_min", 3.0)
	v.SetDefault("scoring.optimal_acreage_max", 10.0)
	v.SetDefault("scoring.default_market_tier", 0.5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
