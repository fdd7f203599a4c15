package analyzer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/meridian-housing/sitescreen-cli/internal/geolookup"
	"github.com/meridian-housing/sitescreen-cli/internal/model"
	"github.com/meridian-housing/sitescreen-cli/internal/resilience"
	"github.com/meridian-housing/sitescreen-cli/pkg/firehaz"
)

// Fire eliminates sites inside the configured top fire-hazard severity bands.
// The severity scale is ordered low < moderate < high < very_high. Like the
// flood analyzer, an indeterminate severity keeps the site with an explicit
// manual-review flag rather than passing or eliminating it silently.
type Fire struct {
	Index       *geolookup.Index
	Service     firehaz.Client // nil disables the live fallback
	Retry       resilience.Policy
	Eliminating map[string]bool // normalized severity labels that disqualify
	Workers     int
}

// NewFire creates the fire hazard analyzer.
func NewFire(idx *geolookup.Index, svc firehaz.Client, retry resilience.Policy, eliminating []string, workers int) *Fire {
	elim := make(map[string]bool, len(eliminating))
	for _, s := range eliminating {
		elim[firehaz.NormalizeSeverity(s)] = true
	}
	return &Fire{Index: idx, Service: svc, Retry: retry, Eliminating: elim, Workers: workers}
}

// Phase implements Analyzer.
func (a *Fire) Phase() model.Phase { return model.PhaseFire }

// Evaluate implements Analyzer.
func (a *Fire) Evaluate(ctx context.Context, sites []model.CandidateSite) (*Outcome, error) {
	return evalParallel(ctx, sites, a.Workers, a.evaluateSite)
}

func (a *Fire) evaluateSite(ctx context.Context, site model.CandidateSite) (siteOutcome, error) {
	pt := geolookup.Point{Lat: *site.Latitude, Lng: *site.Longitude}

	res := a.Index.Contains(pt)
	if res.Matched {
		severity := firehaz.NormalizeSeverity(res.Attrs["HAZ_CLASS"])
		if a.Eliminating[severity] {
			rec, err := model.NewElimination(
				site.ID,
				model.PhaseFire,
				model.ReasonHighFireSeverity,
				fmt.Sprintf("site is inside a %s fire hazard severity zone", severity),
				fmt.Sprintf("feature=%s severity=%s version=%s", res.FeatureID, severity, a.Index.Version()),
			)
			if err != nil {
				return siteOutcome{}, err
			}
			return siteOutcome{elim: &rec}, nil
		}
		return siteOutcome{}, nil
	}

	if a.Index.Covers(pt) {
		// Unzoned within the mapped area.
		return siteOutcome{}, nil
	}

	if a.Service == nil {
		return a.keepUnverified(site, "no fire hazard data for site location and live lookup disabled"), nil
	}

	det, err := resilience.Do(ctx, a.Retry, "firehaz", "severity", func(ctx context.Context) (*firehaz.Determination, error) {
		return a.Service.Severity(ctx, pt.Lat, pt.Lng)
	})
	if err != nil {
		zap.L().Warn("fire: live lookup failed, keeping site for manual review",
			zap.String("site", site.ID),
			zap.Error(err),
		)
		return a.keepUnverified(site, "fire hazard service lookup failed after retries"), nil
	}

	if !det.Known {
		return a.keepUnverified(site, "fire hazard service has no severity data for site location"), nil
	}
	if a.Eliminating[det.Severity] {
		rec, recErr := model.NewElimination(
			site.ID,
			model.PhaseFire,
			model.ReasonHighFireSeverity,
			fmt.Sprintf("hazard service reports %s fire severity at site", det.Severity),
			fmt.Sprintf("firehaz_digest=%s severity=%s", det.Digest, det.Severity),
		)
		if recErr != nil {
			return siteOutcome{}, recErr
		}
		return siteOutcome{elim: &rec}, nil
	}
	return siteOutcome{}, nil
}

func (a *Fire) keepUnverified(site model.CandidateSite, detail string) siteOutcome {
	zap.L().Info("fire: conservative keep, severity unknown",
		zap.String("site", site.ID),
		zap.String("detail", detail),
	)
	return siteOutcome{flag: &model.ManualReviewFlag{
		SiteID: site.ID,
		Phase:  model.PhaseFire,
		Reason: "fire_severity_unknown",
		Detail: detail,
	}}
}
