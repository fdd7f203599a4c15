package analyzer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/meridian-housing/sitescreen-cli/internal/geolookup"
	"github.com/meridian-housing/sitescreen-cli/internal/model"
	"github.com/meridian-housing/sitescreen-cli/internal/resilience"
	"github.com/meridian-housing/sitescreen-cli/pkg/fema"
)

// Flood eliminates sites inside designated high-risk flood zones. The
// pre-loaded flood reference set is consulted first; for points outside its
// coverage, the live FEMA service fills the gap when configured. Sites whose
// flood status cannot be determined are conservatively kept with a
// manual-review flag: treating "unknown" as "safe" is a deliberate,
// logged trade-off, never a silent default.
type Flood struct {
	Index         *geolookup.Index
	Service       fema.Client // nil disables the live fallback
	Retry         resilience.Policy
	HighRiskZones []string
	Workers       int
}

// NewFlood creates the flood risk analyzer.
func NewFlood(idx *geolookup.Index, svc fema.Client, retry resilience.Policy, highRiskZones []string, workers int) *Flood {
	return &Flood{Index: idx, Service: svc, Retry: retry, HighRiskZones: highRiskZones, Workers: workers}
}

// Phase implements Analyzer.
func (a *Flood) Phase() model.Phase { return model.PhaseFlood }

// Evaluate implements Analyzer.
func (a *Flood) Evaluate(ctx context.Context, sites []model.CandidateSite) (*Outcome, error) {
	return evalParallel(ctx, sites, a.Workers, a.evaluateSite)
}

func (a *Flood) evaluateSite(ctx context.Context, site model.CandidateSite) (siteOutcome, error) {
	pt := geolookup.Point{Lat: *site.Latitude, Lng: *site.Longitude}

	res := a.Index.Contains(pt)
	if res.Matched {
		zone := res.Attrs["FLD_ZONE"]
		if a.highRisk(zone) {
			rec, err := model.NewElimination(
				site.ID,
				model.PhaseFlood,
				model.ReasonHighFloodRisk,
				fmt.Sprintf("site is inside flood zone %s", zone),
				fmt.Sprintf("feature=%s zone=%s version=%s", res.FeatureID, zone, a.Index.Version()),
			)
			if err != nil {
				return siteOutcome{}, err
			}
			return siteOutcome{elim: &rec}, nil
		}
		return siteOutcome{}, nil
	}

	if a.Index.Covers(pt) {
		// Inside mapped coverage, outside every hazard polygon: minimal risk.
		return siteOutcome{}, nil
	}

	// No static data for this point. Try the live service if configured;
	// any unresolved outcome keeps the site with a manual-review flag.
	if a.Service == nil {
		return a.keepUnverified(site, "no flood data for site location and live lookup disabled"), nil
	}

	det, err := resilience.Do(ctx, a.Retry, "fema", "flood_zone", func(ctx context.Context) (*fema.Determination, error) {
		return a.Service.FloodZone(ctx, pt.Lat, pt.Lng)
	})
	if err != nil {
		zap.L().Warn("flood: live lookup failed, keeping site for manual review",
			zap.String("site", site.ID),
			zap.Error(err),
		)
		return a.keepUnverified(site, "flood service lookup failed after retries"), nil
	}

	if !det.Known {
		return a.keepUnverified(site, "flood service has no zone data for site location"), nil
	}
	if a.highRisk(det.Zone) {
		rec, recErr := model.NewElimination(
			site.ID,
			model.PhaseFlood,
			model.ReasonHighFloodRisk,
			fmt.Sprintf("FEMA reports site inside flood zone %s", det.Zone),
			fmt.Sprintf("fema_digest=%s zone=%s", det.Digest, det.Zone),
		)
		if recErr != nil {
			return siteOutcome{}, recErr
		}
		return siteOutcome{elim: &rec}, nil
	}
	return siteOutcome{}, nil
}

func (a *Flood) keepUnverified(site model.CandidateSite, detail string) siteOutcome {
	zap.L().Info("flood: conservative keep, flood status unknown",
		zap.String("site", site.ID),
		zap.String("detail", detail),
	)
	return siteOutcome{flag: &model.ManualReviewFlag{
		SiteID: site.ID,
		Phase:  model.PhaseFlood,
		Reason: "flood_status_unknown",
		Detail: detail,
	}}
}

func (a *Flood) highRisk(zone string) bool {
	z := strings.ToUpper(strings.TrimSpace(zone))
	for _, hr := range a.HighRiskZones {
		if z == strings.ToUpper(hr) {
			return true
		}
	}
	return false
}
