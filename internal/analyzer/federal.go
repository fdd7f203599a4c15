package analyzer

import (
	"context"
	"fmt"

	"github.com/meridian-housing/sitescreen-cli/internal/geolookup"
	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

// Federal classifies sites by federal qualification: containment in a
// qualified census tract (QCT) or a difficult development area (DDA). Either
// designation qualifies; they are not mutually exclusive. By default this is
// a classification only: qualification affects the financial basis boost,
// not legal viability. With Mandatory set, unqualified sites are eliminated.
type Federal struct {
	QCT       *geolookup.Index
	DDA       *geolookup.Index
	Mandatory bool
	Workers   int
}

// NewFederal creates the federal qualification analyzer.
func NewFederal(qct, dda *geolookup.Index, mandatory bool, workers int) *Federal {
	return &Federal{QCT: qct, DDA: dda, Mandatory: mandatory, Workers: workers}
}

// Phase implements Analyzer.
func (a *Federal) Phase() model.Phase { return model.PhaseFederal }

// Evaluate implements Analyzer.
func (a *Federal) Evaluate(ctx context.Context, sites []model.CandidateSite) (*Outcome, error) {
	return evalParallel(ctx, sites, a.Workers, func(_ context.Context, site model.CandidateSite) (siteOutcome, error) {
		pt := geolookup.Point{Lat: *site.Latitude, Lng: *site.Longitude}

		qct := a.QCT.Contains(pt)
		dda := a.DDA.Contains(pt)

		basis := ""
		switch {
		case qct.Matched && dda.Matched:
			basis = "qct+dda"
		case qct.Matched:
			basis = "qct"
		case dda.Matched:
			basis = "dda"
		}

		if basis == "" {
			if a.Mandatory {
				rec, err := model.NewElimination(
					site.ID,
					model.PhaseFederal,
					model.ReasonNotFederalQual,
					"site is in neither a qualified census tract nor a difficult development area",
					fmt.Sprintf("qct_version=%s dda_version=%s", a.QCT.Version(), a.DDA.Version()),
				)
				if err != nil {
					return siteOutcome{}, err
				}
				return siteOutcome{elim: &rec}, nil
			}
			return siteOutcome{class: &Classification{FederalQualified: false}}, nil
		}

		return siteOutcome{class: &Classification{
			FederalQualified: true,
			FederalBasis:     basis,
		}}, nil
	})
}
