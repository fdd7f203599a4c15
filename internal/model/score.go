package model

// SubScores holds the independently normalized scoring components, each in
// [0, 1] before weighting.
type SubScores struct {
	Price      float64 `json:"price"`
	MarketTier float64 `json:"market_tier"`
	Acreage    float64 `json:"acreage"`
	Location   float64 `json:"location"`
}

// ScoredSite is the final output unit for a site that survived every
// elimination phase.
type ScoredSite struct {
	SiteID    string             `json:"site_id"`
	Composite float64            `json:"composite"`
	Sub       SubScores          `json:"sub_scores"`
	Flags     QualificationFlags `json:"flags"`
	Rank      int                `json:"rank"`
}
