package model

// CandidateSite is a parcel under evaluation. It is created once at ingestion
// and never mutated; every phase outcome is recorded as a separate entity
// keyed by SiteID.
type CandidateSite struct {
	ID        string            `json:"id"`
	Address   string            `json:"address"`
	Latitude  *float64          `json:"latitude"`
	Longitude *float64          `json:"longitude"`
	Acreage   *float64          `json:"acreage,omitempty"`
	Price     *float64          `json:"price,omitempty"`
	County    string            `json:"county,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"` // unmapped input columns, preserved verbatim
}

// HasCoordinates reports whether both latitude and longitude are present.
func (s CandidateSite) HasCoordinates() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// InvalidRow is an input row that failed structural validation and never
// entered qualification testing. Kept separate from eliminations.
type InvalidRow struct {
	RowNumber int    `json:"row_number"`
	SiteID    string `json:"site_id,omitempty"`
	Address   string `json:"address,omitempty"`
	Reason    string `json:"reason"`
}

// QualificationFlags are classifications carried forward from phases that
// annotate rather than eliminate.
type QualificationFlags struct {
	FederalQualified bool   `json:"federal_qualified"`
	FederalBasis     string `json:"federal_basis,omitempty"` // "qct", "dda", or "qct+dda"
	ResourceTier     Tier   `json:"resource_tier,omitempty"`
}

// Tier is a state-assigned ordinal opportunity classification.
type Tier string

const (
	TierHighest  Tier = "highest"
	TierHigh     Tier = "high"
	TierModerate Tier = "moderate"
	TierLow      Tier = "low"
)

// tierRank orders tiers from best (highest) to worst. Unknown tiers rank
// below all known ones.
var tierRank = map[Tier]int{
	TierHighest:  4,
	TierHigh:     3,
	TierModerate: 2,
	TierLow:      1,
}

// Rank returns the ordinal rank of the tier; higher is better. Zero for
// unrecognized tiers.
func (t Tier) Rank() int { return tierRank[t] }

// AtLeast reports whether t meets or exceeds min.
func (t Tier) AtLeast(min Tier) bool { return t.Rank() >= min.Rank() }

// ManualReviewFlag marks a site that was conservatively retained after an
// inconclusive automated determination. Distinct from both survival and
// elimination.
type ManualReviewFlag struct {
	SiteID string `json:"site_id"`
	Phase  Phase  `json:"phase"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}
