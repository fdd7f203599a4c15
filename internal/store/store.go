// Package store is the append-only audit sink for screening runs. It
// persists every phase result, elimination record, manual-review flag, and
// final score, and can re-derive a run's survivor set so an interrupted run
// resumes from its last completed phase instead of reprocessing decided
// sites.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for the screening pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, batchPath string, sites []model.CandidateSite) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	GetSites(ctx context.Context, runID string) ([]model.CandidateSite, error)

	// Phase outcomes. SavePhaseResult writes the phase row, its elimination
	// records, and its manual-review flags in one transaction; saving the
	// same phase twice with identical data is idempotent.
	SaveInvalidRows(ctx context.Context, runID string, rows []model.InvalidRow) error
	SavePhaseResult(ctx context.Context, runID string, seq int, pr model.PhaseResult) error
	GetPhaseResults(ctx context.Context, runID string) ([]model.PhaseResult, error)
	GetInvalidRows(ctx context.Context, runID string) ([]model.InvalidRow, error)
	GetEliminations(ctx context.Context, runID string) ([]model.EliminationRecord, error)
	GetManualReview(ctx context.Context, runID string) ([]model.ManualReviewFlag, error)
	GetClassifications(ctx context.Context, runID string) (map[string]model.QualificationFlags, error)

	// Final output
	SaveScores(ctx context.Context, runID string, scored []model.ScoredSite) error
	GetScores(ctx context.Context, runID string) ([]model.ScoredSite, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
