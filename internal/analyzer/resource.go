package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-housing/sitescreen-cli/internal/geolookup"
	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

// Resource classifies sites by state opportunity-area tier and eliminates
// those below the configured minimum. Surviving sites carry their tier
// forward as a scoring input.
type Resource struct {
	Index   *geolookup.Index
	MinTier model.Tier
	Workers int
}

// NewResource creates the resource-area analyzer.
func NewResource(idx *geolookup.Index, minTier model.Tier, workers int) *Resource {
	return &Resource{Index: idx, MinTier: minTier, Workers: workers}
}

// Phase implements Analyzer.
func (a *Resource) Phase() model.Phase { return model.PhaseResource }

// Evaluate implements Analyzer.
func (a *Resource) Evaluate(ctx context.Context, sites []model.CandidateSite) (*Outcome, error) {
	return evalParallel(ctx, sites, a.Workers, func(_ context.Context, site model.CandidateSite) (siteOutcome, error) {
		pt := geolookup.Point{Lat: *site.Latitude, Lng: *site.Longitude}

		res := a.Index.Contains(pt)
		if !res.Matched {
			rec, err := model.NewElimination(
				site.ID,
				model.PhaseResource,
				model.ReasonOutsideResourceMap,
				"site is outside every designated opportunity area",
				fmt.Sprintf("resource_version=%s", a.Index.Version()),
			)
			if err != nil {
				return siteOutcome{}, err
			}
			return siteOutcome{elim: &rec}, nil
		}

		tier := ParseTier(res.Attrs["TIER"])
		if !tier.AtLeast(a.MinTier) {
			rec, err := model.NewElimination(
				site.ID,
				model.PhaseResource,
				model.ReasonBelowResourceTier,
				fmt.Sprintf("area tier is %q, minimum is %q", tier, a.MinTier),
				fmt.Sprintf("feature=%s tier=%s", res.FeatureID, res.Attrs["TIER"]),
			)
			if err != nil {
				return siteOutcome{}, err
			}
			return siteOutcome{elim: &rec}, nil
		}

		return siteOutcome{class: &Classification{ResourceTier: tier}}, nil
	})
}

// ParseTier normalizes a reference-set tier attribute onto the ordered tier
// scale. Published opportunity maps label areas "Highest Resource",
// "High Resource", and so on.
func ParseTier(label string) model.Tier {
	s := strings.ToLower(strings.TrimSpace(label))
	switch {
	case strings.HasPrefix(s, "highest"):
		return model.TierHighest
	case strings.HasPrefix(s, "high"):
		return model.TierHigh
	case strings.HasPrefix(s, "moderate"), strings.HasPrefix(s, "medium"):
		return model.TierModerate
	case strings.HasPrefix(s, "low"):
		return model.TierLow
	default:
		return model.Tier(s)
	}
}
