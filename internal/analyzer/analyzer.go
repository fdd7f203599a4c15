// Package analyzer implements the five qualification analyzers of the
// screening pipeline. Each analyzer is a pure function over a survivor batch
// and an immutable reference index: it returns eliminations, survivors, and
// optional classifications, and never mutates a CandidateSite.
package analyzer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

// Classification carries phase annotations for sites that are classified
// rather than eliminated. Zero-valued fields are ignored on merge.
type Classification struct {
	FederalQualified bool
	FederalBasis     string
	ResourceTier     model.Tier
}

// Outcome is the common result shape of every analyzer.
// len(Eliminated) + len(Survivors) equals the number of input sites.
type Outcome struct {
	Eliminated      []model.EliminationRecord
	Survivors       []model.CandidateSite
	Flags           []model.ManualReviewFlag
	Classifications map[string]Classification
}

// Analyzer encodes one disqualification or classification rule set.
type Analyzer interface {
	Phase() model.Phase
	Evaluate(ctx context.Context, sites []model.CandidateSite) (*Outcome, error)
}

// siteOutcome is the per-site verdict produced by an analyzer's evaluation
// function. At most one of elim may be set; flag and class may accompany
// survival.
type siteOutcome struct {
	elim  *model.EliminationRecord
	flag  *model.ManualReviewFlag
	class *Classification
}

// evalParallel evaluates sites concurrently with bounded workers and
// assembles the outcome in input order, so results are deterministic
// regardless of scheduling. A non-nil error from fn aborts the whole batch:
// analyzers reserve errors for programming defects, never per-site failures.
func evalParallel(
	ctx context.Context,
	sites []model.CandidateSite,
	workers int,
	fn func(ctx context.Context, site model.CandidateSite) (siteOutcome, error),
) (*Outcome, error) {
	if workers <= 0 {
		workers = 1
	}

	verdicts := make([]siteOutcome, len(sites))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range sites {
		g.Go(func() error {
			v, err := fn(gCtx, sites[i])
			if err != nil {
				return err
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Outcome{}
	for i, site := range sites {
		v := verdicts[i]
		if v.elim != nil {
			out.Eliminated = append(out.Eliminated, *v.elim)
			continue
		}
		out.Survivors = append(out.Survivors, site)
		if v.flag != nil {
			out.Flags = append(out.Flags, *v.flag)
		}
		if v.class != nil {
			if out.Classifications == nil {
				out.Classifications = make(map[string]Classification)
			}
			out.Classifications[site.ID] = *v.class
		}
	}
	return out, nil
}
