package model

import "time"

// RunStatus represents the current state of a screening run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusScreening RunStatus = "screening"
	RunStatusScoring   RunStatus = "scoring"
	RunStatusComplete  RunStatus = "complete"
	RunStatusHalted    RunStatus = "halted"
	RunStatusFailed    RunStatus = "failed"
)

// Run represents a single screening run over one input batch.
type Run struct {
	ID        string    `json:"id"`
	BatchPath string    `json:"batch_path"`
	Status    RunStatus `json:"status"`
	SiteCount int       `json:"site_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PhaseStatus represents the state of a single pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusSkipped  PhaseStatus = "skipped"
	PhaseStatusFailed   PhaseStatus = "failed"
)

// PhaseResult is the per-phase aggregate.
// Invariant: Entering = Eliminated + Surviving, and the surviving count of
// phase N equals the entering count of phase N+1.
type PhaseResult struct {
	Phase           Phase                         `json:"phase"`
	Status          PhaseStatus                   `json:"status"`
	Entering        int                           `json:"entering"`
	Eliminated      int                           `json:"eliminated"`
	Surviving       int                           `json:"surviving"`
	Records         []EliminationRecord           `json:"records,omitempty"`
	Flags           []ManualReviewFlag            `json:"flags,omitempty"`
	Classifications map[string]QualificationFlags `json:"classifications,omitempty"`
	DurationMS      int64                         `json:"duration_ms"`
	Error           string                        `json:"error,omitempty"`
}

// Consistent reports whether the count invariant holds.
func (p PhaseResult) Consistent() bool {
	return p.Entering == p.Eliminated+p.Surviving
}

// ScreenResult is the full outcome of a run: the per-phase funnel plus the
// invalid-input bucket, the surviving sites, and the ranked output.
// ManualReview annotates sites that may also appear in Survivors.
type ScreenResult struct {
	Run             *Run                          `json:"run"`
	Phases          []PhaseResult                 `json:"phases"`
	InvalidRows     []InvalidRow                  `json:"invalid_rows,omitempty"`
	Survivors       []CandidateSite               `json:"survivors,omitempty"`
	ManualReview    []ManualReviewFlag            `json:"manual_review,omitempty"`
	Classifications map[string]QualificationFlags `json:"classifications,omitempty"`
	Scored          []ScoredSite                  `json:"scored,omitempty"`
}

// Eliminations collects every elimination record across all phases, in
// phase order.
func (r *ScreenResult) Eliminations() []EliminationRecord {
	var records []EliminationRecord
	for _, pr := range r.Phases {
		records = append(records, pr.Records...)
	}
	return records
}
