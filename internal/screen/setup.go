package screen

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-housing/sitescreen-cli/internal/analyzer"
	"github.com/meridian-housing/sitescreen-cli/internal/config"
	"github.com/meridian-housing/sitescreen-cli/internal/geolookup"
	"github.com/meridian-housing/sitescreen-cli/internal/refdata"
	"github.com/meridian-housing/sitescreen-cli/internal/resilience"
	"github.com/meridian-housing/sitescreen-cli/pkg/fema"
	"github.com/meridian-housing/sitescreen-cli/pkg/firehaz"
)

// Setup loads reference datasets and builds the analyzer chain in
// canonical phase order. A dataset that fails to load is a startup
// error; a disabled phase skips its dataset entirely.
func Setup(cfg *config.Config) ([]analyzer.Analyzer, error) {
	log := zap.L().With(zap.String("component", "screen"))
	dir := cfg.Refdata.Dir

	loadIndex := func(dataset string) (*geolookup.Index, error) {
		set, err := refdata.Load(dir, dataset)
		if err != nil {
			return nil, eris.Wrapf(err, "screen: load reference set %s", dataset)
		}
		idx := geolookup.NewIndex(set)
		log.Info("screen: reference set loaded",
			zap.String("dataset", idx.Dataset()),
			zap.String("version", idx.Version()),
			zap.Int("features", idx.Size()),
		)
		return idx, nil
	}

	analyzers := []analyzer.Analyzer{
		analyzer.NewSizeFilter(cfg.Screen.MinAcreage),
	}

	if cfg.Phases.Federal {
		qct, err := loadIndex(refdata.DatasetQCT)
		if err != nil {
			return nil, err
		}
		dda, err := loadIndex(refdata.DatasetDDA)
		if err != nil {
			return nil, err
		}
		analyzers = append(analyzers, analyzer.NewFederal(qct, dda, cfg.Screen.FederalMandatory, cfg.Screen.Workers))
	} else {
		analyzers = append(analyzers, analyzer.NewFederal(nil, nil, cfg.Screen.FederalMandatory, cfg.Screen.Workers))
	}

	if cfg.Phases.Resource {
		res, err := loadIndex(refdata.DatasetResource)
		if err != nil {
			return nil, err
		}
		analyzers = append(analyzers, analyzer.NewResource(res, analyzer.ParseTier(cfg.Screen.MinResourceTier), cfg.Screen.Workers))
	} else {
		analyzers = append(analyzers, analyzer.NewResource(nil, analyzer.ParseTier(cfg.Screen.MinResourceTier), cfg.Screen.Workers))
	}

	var flood *geolookup.Index
	if cfg.Phases.Flood {
		var err error
		if flood, err = loadIndex(refdata.DatasetFlood); err != nil {
			return nil, err
		}
	}
	analyzers = append(analyzers, analyzer.NewFlood(
		flood,
		femaClient(cfg.FEMA),
		retryPolicy(cfg.FEMA),
		cfg.Screen.FloodHighRiskZones,
		cfg.Screen.Workers,
	))

	var fire *geolookup.Index
	if cfg.Phases.Fire {
		var err error
		if fire, err = loadIndex(refdata.DatasetFire); err != nil {
			return nil, err
		}
	}
	analyzers = append(analyzers, analyzer.NewFire(
		fire,
		firehazClient(cfg.FireHaz),
		retryPolicy(cfg.FireHaz),
		cfg.Screen.FireEliminatingSeverities,
		cfg.Screen.Workers,
	))

	analyzers = append(analyzers, analyzer.NewLandUse(cfg.Screen.ProhibitedUses, cfg.Screen.AmbiguousUses))
	return analyzers, nil
}

func femaClient(svc config.ServiceConfig) fema.Client {
	if !svc.Enabled || svc.BaseURL == "" {
		return nil
	}
	return fema.NewClient(svc.BaseURL,
		fema.WithRateLimit(svc.RateLimit),
		fema.WithTimeout(time.Duration(svc.TimeoutSecs)*time.Second),
	)
}

func firehazClient(svc config.ServiceConfig) firehaz.Client {
	if !svc.Enabled || svc.BaseURL == "" {
		return nil
	}
	return firehaz.NewClient(svc.BaseURL,
		firehaz.WithRateLimit(svc.RateLimit),
		firehaz.WithTimeout(time.Duration(svc.TimeoutSecs)*time.Second),
	)
}

func retryPolicy(svc config.ServiceConfig) resilience.Policy {
	if svc.MaxAttempts == 0 {
		return resilience.DefaultPolicy()
	}
	return resilience.FromConfig(svc.MaxAttempts, svc.InitialBackoffMS, svc.MaxBackoffMS)
}
