package analyzer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

// LandUse matches the parcel's current or prior use against a prohibited-use
// list. Land-use text is taken from whatever metadata columns the listing
// carried (use, zoning, and similar). A prohibited term eliminates; an
// ambiguous term flags for manual review without eliminating; a parcel with
// no land-use metadata at all passes, since prohibited uses are established
// facts, not defaults.
type LandUse struct {
	Prohibited []string
	Ambiguous  []string
}

// NewLandUse creates the land-use compatibility analyzer.
func NewLandUse(prohibited, ambiguous []string) *LandUse {
	return &LandUse{Prohibited: prohibited, Ambiguous: ambiguous}
}

// Phase implements Analyzer.
func (a *LandUse) Phase() model.Phase { return model.PhaseLandUse }

// metadata keys considered to describe land use.
var landUseKeys = []string{"use", "zoning", "zone"}

// Evaluate implements Analyzer.
func (a *LandUse) Evaluate(ctx context.Context, sites []model.CandidateSite) (*Outcome, error) {
	return evalParallel(ctx, sites, 1, func(_ context.Context, site model.CandidateSite) (siteOutcome, error) {
		text := landUseText(site)
		if text == "" {
			return siteOutcome{}, nil
		}

		if term := matchTerm(text, a.Prohibited); term != "" {
			rec, err := model.NewElimination(
				site.ID,
				model.PhaseLandUse,
				model.ReasonProhibitedLandUse,
				fmt.Sprintf("land use %q matches prohibited use %q", text, term),
				fmt.Sprintf("matched_term=%s", term),
			)
			if err != nil {
				return siteOutcome{}, err
			}
			return siteOutcome{elim: &rec}, nil
		}

		if term := matchTerm(text, a.Ambiguous); term != "" {
			return siteOutcome{flag: &model.ManualReviewFlag{
				SiteID: site.ID,
				Phase:  model.PhaseLandUse,
				Reason: "ambiguous_land_use",
				Detail: fmt.Sprintf("land use %q matches ambiguous category %q; confirm prior use", text, term),
			}}, nil
		}

		return siteOutcome{}, nil
	})
}

// landUseText collects land-use-describing metadata values into one
// lowercased string. Keys are visited in sorted order so the matched term is
// stable across runs.
func landUseText(site model.CandidateSite) string {
	keys := make([]string, 0, len(site.Metadata))
	for key := range site.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var parts []string
	for _, key := range keys {
		k := strings.ToLower(key)
		for _, want := range landUseKeys {
			if strings.Contains(k, want) {
				parts = append(parts, strings.ToLower(site.Metadata[key]))
				break
			}
		}
	}
	return strings.Join(parts, " ")
}

func matchTerm(text string, terms []string) string {
	for _, term := range terms {
		if strings.Contains(text, strings.ToLower(term)) {
			return term
		}
	}
	return ""
}
