package analyzer

import (
	"context"
	"fmt"

	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

// SizeFilter eliminates parcels below the configured minimum acreage.
// Parcels with no reported acreage are kept and flagged for manual review:
// the listing data is incomplete, which is not the same as too small.
type SizeFilter struct {
	MinAcreage float64
}

// NewSizeFilter creates the size filter analyzer.
func NewSizeFilter(minAcreage float64) *SizeFilter {
	return &SizeFilter{MinAcreage: minAcreage}
}

// Phase implements Analyzer.
func (a *SizeFilter) Phase() model.Phase { return model.PhaseSizeFilter }

// Evaluate implements Analyzer.
func (a *SizeFilter) Evaluate(ctx context.Context, sites []model.CandidateSite) (*Outcome, error) {
	return evalParallel(ctx, sites, 1, func(_ context.Context, site model.CandidateSite) (siteOutcome, error) {
		if site.Acreage == nil {
			return siteOutcome{flag: &model.ManualReviewFlag{
				SiteID: site.ID,
				Phase:  model.PhaseSizeFilter,
				Reason: "missing_acreage",
				Detail: "listing reports no parcel size; verify against county records",
			}}, nil
		}

		if *site.Acreage < a.MinAcreage {
			rec, err := model.NewElimination(
				site.ID,
				model.PhaseSizeFilter,
				model.ReasonBelowMinAcreage,
				fmt.Sprintf("parcel is %.2f acres, minimum is %.2f", *site.Acreage, a.MinAcreage),
				fmt.Sprintf("acreage=%.2f", *site.Acreage),
			)
			if err != nil {
				return siteOutcome{}, err
			}
			return siteOutcome{elim: &rec}, nil
		}

		return siteOutcome{}, nil
	})
}
