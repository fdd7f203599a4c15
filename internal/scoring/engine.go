// Package scoring ranks the final survivor set. It performs no elimination:
// every input site receives a composite score built from independently
// normalized sub-scores and a rank.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/meridian-housing/sitescreen-cli/internal/config"
	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

// Engine computes weighted composite opportunity scores.
type Engine struct {
	cfg config.ScoringConfig
}

// NewEngine validates the scoring configuration and returns an engine.
func NewEngine(cfg config.ScoringConfig) (*Engine, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// validate checks that a ScoringConfig is internally consistent.
func validate(c config.ScoringConfig) error {
	var errs []string

	weights := map[string]float64{
		"price_weight":       c.PriceWeight,
		"market_tier_weight": c.MarketTierWeight,
		"acreage_weight":     c.AcreageWeight,
		"location_weight":    c.LocationWeight,
	}
	sum := 0.0
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
		sum += w
	}
	if sum <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}
	if math.Abs(sum-100) > 1 {
		errs = append(errs, fmt.Sprintf("weights should sum to 100, got %.1f", sum))
	}

	if c.OptimalAcreageMin < 0 {
		errs = append(errs, "optimal_acreage_min must be >= 0")
	}
	if c.OptimalAcreageMax > 0 && c.OptimalAcreageMax < c.OptimalAcreageMin {
		errs = append(errs, "optimal_acreage_max must be >= optimal_acreage_min")
	}
	if c.DefaultMarketTier < 0 || c.DefaultMarketTier > 1 {
		errs = append(errs, "default_market_tier must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("scoring: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Score computes composite scores for every survivor and returns them ranked.
// Flags carry classifications inherited from earlier phases, keyed by site id.
// Tie-break on equal composite: lower price wins, then larger acreage, then
// site id for a total order.
func (e *Engine) Score(survivors []model.CandidateSite, flags map[string]model.QualificationFlags) []model.ScoredSite {
	if len(survivors) == 0 {
		return nil
	}

	minPrice, maxPrice := priceRange(survivors)

	scored := make([]model.ScoredSite, 0, len(survivors))
	for _, site := range survivors {
		f := flags[site.ID]
		sub := model.SubScores{
			Price:      e.priceScore(site, minPrice, maxPrice),
			MarketTier: e.marketTierScore(site),
			Acreage:    e.acreageScore(site),
			Location:   e.locationScore(f),
		}

		total := e.cfg.PriceWeight + e.cfg.MarketTierWeight + e.cfg.AcreageWeight + e.cfg.LocationWeight
		composite := (sub.Price*e.cfg.PriceWeight +
			sub.MarketTier*e.cfg.MarketTierWeight +
			sub.Acreage*e.cfg.AcreageWeight +
			sub.Location*e.cfg.LocationWeight) / total

		scored = append(scored, model.ScoredSite{
			SiteID:    site.ID,
			Composite: round4(composite),
			Sub:       sub,
			Flags:     f,
		})
	}

	bySite := make(map[string]model.CandidateSite, len(survivors))
	for _, s := range survivors {
		bySite[s.ID] = s
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Composite != b.Composite {
			return a.Composite > b.Composite
		}
		ap, bp := priceOf(bySite[a.SiteID]), priceOf(bySite[b.SiteID])
		if ap != bp {
			return ap < bp
		}
		aa, ba := acreageOf(bySite[a.SiteID]), acreageOf(bySite[b.SiteID])
		if aa != ba {
			return aa > ba
		}
		return a.SiteID < b.SiteID
	})

	for i := range scored {
		scored[i].Rank = i + 1
	}
	return scored
}

// priceScore normalizes price against the observed batch range; lower price
// scores higher. With no spread (or no price) the score is neutral.
func (e *Engine) priceScore(site model.CandidateSite, minPrice, maxPrice float64) float64 {
	if site.Price == nil || maxPrice <= minPrice {
		return 0.5
	}
	return round4((maxPrice - *site.Price) / (maxPrice - minPrice))
}

func (e *Engine) marketTierScore(site model.CandidateSite) float64 {
	if site.County != "" {
		if factor, ok := e.cfg.MarketTiers[site.County]; ok {
			return factor
		}
	}
	return e.cfg.DefaultMarketTier
}

// acreageScore is non-monotonic: parcels inside the optimal band score 1.0,
// and both too-small and too-large parcels fall off proportionally.
func (e *Engine) acreageScore(site model.CandidateSite) float64 {
	if site.Acreage == nil {
		return 0.5
	}
	a := *site.Acreage
	min, max := e.cfg.OptimalAcreageMin, e.cfg.OptimalAcreageMax
	switch {
	case a >= min && a <= max:
		return 1.0
	case a < min && min > 0:
		return round4(a / min)
	case a > max && a > 0:
		return round4(max / a)
	default:
		return 0
	}
}

// locationScore derives from the resource tier, with a bonus for federal
// qualification (the basis boost improves project economics).
func (e *Engine) locationScore(f model.QualificationFlags) float64 {
	base := float64(f.ResourceTier.Rank()) / 4.0
	if f.FederalQualified {
		base += 0.25
	}
	return math.Min(1.0, round4(base))
}

func priceRange(sites []model.CandidateSite) (float64, float64) {
	min, max := math.Inf(1), math.Inf(-1)
	for _, s := range sites {
		if s.Price == nil {
			continue
		}
		min = math.Min(min, *s.Price)
		max = math.Max(max, *s.Price)
	}
	if math.IsInf(min, 1) {
		return 0, 0
	}
	return min, max
}

func priceOf(s model.CandidateSite) float64 {
	if s.Price == nil {
		return math.Inf(1) // unpriced sites lose price tie-breaks
	}
	return *s.Price
}

func acreageOf(s model.CandidateSite) float64 {
	if s.Acreage == nil {
		return 0
	}
	return *s.Acreage
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
