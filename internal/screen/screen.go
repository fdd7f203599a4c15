package screen

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-housing/sitescreen-cli/internal/analyzer"
	"github.com/meridian-housing/sitescreen-cli/internal/config"
	"github.com/meridian-housing/sitescreen-cli/internal/ingest"
	"github.com/meridian-housing/sitescreen-cli/internal/model"
	"github.com/meridian-housing/sitescreen-cli/internal/scoring"
	"github.com/meridian-housing/sitescreen-cli/internal/store"
)

// Screener runs the elimination phases in order and hands survivors to
// the scoring engine. Phase results are persisted as each phase
// completes, so an interrupted run can be resumed from the store.
type Screener struct {
	cfg       *config.Config
	store     store.Store
	analyzers []analyzer.Analyzer
	engine    *scoring.Engine
}

// New creates a Screener. The analyzer slice must be ordered by phase;
// Setup produces one in the canonical order.
func New(cfg *config.Config, st store.Store, analyzers []analyzer.Analyzer, engine *scoring.Engine) *Screener {
	return &Screener{
		cfg:       cfg,
		store:     st,
		analyzers: analyzers,
		engine:    engine,
	}
}

// Run ingests a batch file, creates a run, and screens it end to end.
func (s *Screener) Run(ctx context.Context, batchPath string) (*model.ScreenResult, error) {
	log := zap.L().With(zap.String("component", "screen"), zap.String("batch", batchPath))
	log.Info("screen: reading batch")

	batch, err := ingest.ReadBatch(batchPath)
	if err != nil {
		return nil, eris.Wrap(err, "screen: read batch")
	}

	sites, invalid := validateSites(batch.Sites)
	invalid = append(batch.Invalid, invalid...)

	run, err := s.store.CreateRun(ctx, batchPath, sites)
	if err != nil {
		return nil, eris.Wrap(err, "screen: create run")
	}
	if len(invalid) > 0 {
		if err := s.store.SaveInvalidRows(ctx, run.ID, invalid); err != nil {
			return nil, eris.Wrap(err, "screen: save invalid rows")
		}
	}

	log.Info("screen: run created",
		zap.String("run_id", run.ID),
		zap.Int("sites", len(sites)),
		zap.Int("invalid", len(invalid)),
	)

	result := &model.ScreenResult{Run: run, InvalidRows: invalid}

	// Validation is the first funnel stage: every parsed row enters, invalid
	// rows leave the funnel here, valid sites continue to the phases.
	validated := model.PhaseResult{
		Phase:      model.PhaseValidate,
		Status:     model.PhaseStatusComplete,
		Entering:   len(sites) + len(invalid),
		Eliminated: len(invalid),
		Surviving:  len(sites),
	}
	if err := s.store.SavePhaseResult(ctx, run.ID, 0, validated); err != nil {
		return nil, eris.Wrap(err, "screen: save validation result")
	}
	result.Phases = append(result.Phases, validated)

	return result, s.execute(ctx, run, sites, nil, result)
}

// Resume continues a previously interrupted run. Completed phases are
// not re-executed; the surviving set is re-derived from persisted
// eliminations so the remaining phases see the same input they would
// have seen in the original run.
func (s *Screener) Resume(ctx context.Context, runID string) (*model.ScreenResult, error) {
	log := zap.L().With(zap.String("component", "screen"), zap.String("run_id", runID))

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "screen: load run %s", runID)
	}
	if run.Status == model.RunStatusComplete {
		log.Info("screen: run already complete")
		return s.assembleResult(ctx, run)
	}

	sites, err := s.store.GetSites(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "screen: load sites")
	}
	invalid, err := s.store.GetInvalidRows(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "screen: load invalid rows")
	}
	prior, err := s.store.GetPhaseResults(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "screen: load phase results")
	}
	elims, err := s.store.GetEliminations(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "screen: load eliminations")
	}

	completed := make(map[model.Phase]model.PhaseResult, len(prior))
	for _, pr := range prior {
		if pr.Status == model.PhaseStatusComplete || pr.Status == model.PhaseStatusSkipped {
			completed[pr.Phase] = pr
		}
	}

	var replayed []model.PhaseResult
	if pr, ok := completed[model.PhaseValidate]; ok {
		replayed = append(replayed, pr)
	}

	eliminated := make(map[string]bool, len(elims))
	for _, e := range elims {
		if _, ok := completed[e.Phase]; ok {
			eliminated[e.SiteID] = true
		}
	}
	survivors := make([]model.CandidateSite, 0, len(sites))
	for _, site := range sites {
		if !eliminated[site.ID] {
			survivors = append(survivors, site)
		}
	}

	flags, err := s.store.GetManualReview(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "screen: load manual review")
	}
	class, err := s.store.GetClassifications(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "screen: load classifications")
	}

	log.Info("screen: resuming run",
		zap.Int("completed_phases", len(completed)),
		zap.Int("survivors", len(survivors)),
	)

	result := &model.ScreenResult{
		Run:             run,
		Phases:          replayed,
		InvalidRows:     invalid,
		ManualReview:    flags,
		Classifications: class,
	}
	return result, s.execute(ctx, run, survivors, completed, result)
}

// execute drives the phase sequence. completed holds phases already
// persisted by a prior attempt; they are carried into the result
// without re-running. sites is the surviving set entering the first
// incomplete phase.
func (s *Screener) execute(ctx context.Context, run *model.Run, sites []model.CandidateSite, completed map[model.Phase]model.PhaseResult, result *model.ScreenResult) error {
	log := zap.L().With(zap.String("component", "screen"), zap.String("run_id", run.ID))

	// Status updates and phase results must survive a cancelled run: the
	// audit trail is what makes the run resumable.
	persistCtx := context.WithoutCancel(ctx)
	setStatus := func(status model.RunStatus) {
		if err := s.store.UpdateRunStatus(persistCtx, run.ID, status); err != nil {
			log.Warn("screen: failed to update status", zap.Error(err))
		}
		run.Status = status
	}

	seq := len(result.Phases)
	trackPhase := func(phase model.Phase, fn func() (*model.PhaseResult, error)) (*model.PhaseResult, error) {
		defer func() { seq++ }()

		if pr, ok := completed[phase]; ok {
			log.Info("screen: phase already complete, skipping",
				zap.String("phase", string(phase)),
			)
			result.Phases = append(result.Phases, pr)
			return &pr, nil
		}

		start := time.Now()
		pr, err := fn()
		duration := time.Since(start).Milliseconds()

		if pr == nil {
			pr = &model.PhaseResult{}
		}
		pr.Phase = phase
		pr.DurationMS = duration

		if err != nil {
			pr.Status = model.PhaseStatusFailed
			pr.Error = err.Error()
			log.Error("screen: phase failed",
				zap.String("phase", string(phase)),
				zap.Int64("duration_ms", duration),
				zap.Error(err),
			)
		} else if pr.Status == "" {
			pr.Status = model.PhaseStatusComplete
			log.Info("screen: phase complete",
				zap.String("phase", string(phase)),
				zap.Int("entering", pr.Entering),
				zap.Int("eliminated", pr.Eliminated),
				zap.Int("surviving", pr.Surviving),
				zap.Int64("duration_ms", duration),
			)
		}

		if saveErr := s.store.SavePhaseResult(persistCtx, run.ID, seq, *pr); saveErr != nil {
			if err == nil {
				err = eris.Wrapf(saveErr, "screen: save phase %s", phase)
			} else {
				log.Warn("screen: failed to save phase result", zap.Error(saveErr))
			}
		}
		result.Phases = append(result.Phases, *pr)
		return pr, err
	}

	setStatus(model.RunStatusScreening)
	survivors := sites

	for _, a := range s.analyzers {
		if !s.cfg.Phases.Enabled(a.Phase()) {
			if _, err := trackPhase(a.Phase(), func() (*model.PhaseResult, error) {
				return &model.PhaseResult{
					Status:    model.PhaseStatusSkipped,
					Entering:  len(survivors),
					Surviving: len(survivors),
				}, nil
			}); err != nil {
				setStatus(model.RunStatusFailed)
				return err
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			setStatus(model.RunStatusHalted)
			return eris.Wrapf(err, "screen: halted before phase %s", a.Phase())
		}

		if len(survivors) == 0 {
			if _, err := trackPhase(a.Phase(), func() (*model.PhaseResult, error) {
				return &model.PhaseResult{Status: model.PhaseStatusSkipped}, nil
			}); err != nil {
				setStatus(model.RunStatusFailed)
				return err
			}
			continue
		}

		entering := survivors
		if _, err := trackPhase(a.Phase(), func() (*model.PhaseResult, error) {
			outcome, evalErr := a.Evaluate(ctx, entering)
			if evalErr != nil {
				return nil, evalErr
			}
			survivors = outcome.Survivors
			class := toQualification(outcome)
			mergeFlags(result, outcome.Flags, class)
			return &model.PhaseResult{
				Entering:        len(entering),
				Eliminated:      len(outcome.Eliminated),
				Surviving:       len(outcome.Survivors),
				Records:         outcome.Eliminated,
				Flags:           outcome.Flags,
				Classifications: class,
			}, nil
		}); err != nil {
			if ctx.Err() != nil {
				setStatus(model.RunStatusHalted)
				return eris.Wrapf(err, "screen: halted during phase %s", a.Phase())
			}
			setStatus(model.RunStatusFailed)
			return eris.Wrapf(err, "screen: phase %s", a.Phase())
		}
	}

	setStatus(model.RunStatusScoring)
	result.Survivors = survivors

	scored := s.engine.Score(survivors, result.Classifications)
	if err := s.store.SaveScores(ctx, run.ID, scored); err != nil {
		setStatus(model.RunStatusFailed)
		return eris.Wrap(err, "screen: save scores")
	}
	result.Scored = scored

	setStatus(model.RunStatusComplete)
	log.Info("screen: run complete",
		zap.Int("survivors", len(survivors)),
		zap.Int("scored", len(scored)),
	)
	return nil
}

// assembleResult reconstructs a ScreenResult for an already-complete
// run entirely from the store.
func (s *Screener) assembleResult(ctx context.Context, run *model.Run) (*model.ScreenResult, error) {
	result := &model.ScreenResult{Run: run}

	var err error
	if result.Phases, err = s.store.GetPhaseResults(ctx, run.ID); err != nil {
		return nil, eris.Wrap(err, "screen: load phase results")
	}
	if result.InvalidRows, err = s.store.GetInvalidRows(ctx, run.ID); err != nil {
		return nil, eris.Wrap(err, "screen: load invalid rows")
	}
	if result.Scored, err = s.store.GetScores(ctx, run.ID); err != nil {
		return nil, eris.Wrap(err, "screen: load scores")
	}
	if result.ManualReview, err = s.store.GetManualReview(ctx, run.ID); err != nil {
		return nil, eris.Wrap(err, "screen: load manual review")
	}
	if result.Classifications, err = s.store.GetClassifications(ctx, run.ID); err != nil {
		return nil, eris.Wrap(err, "screen: load classifications")
	}

	sites, err := s.store.GetSites(ctx, run.ID)
	if err != nil {
		return nil, eris.Wrap(err, "screen: load sites")
	}
	elims, err := s.store.GetEliminations(ctx, run.ID)
	if err != nil {
		return nil, eris.Wrap(err, "screen: load eliminations")
	}
	eliminated := make(map[string]bool, len(elims))
	for _, e := range elims {
		eliminated[e.SiteID] = true
	}
	for _, site := range sites {
		if !eliminated[site.ID] {
			result.Survivors = append(result.Survivors, site)
		}
	}
	return result, nil
}

// validateSites splits ingested sites into screenable sites and invalid
// rows. Coordinates are optional at this stage, but when present they
// must be in range.
func validateSites(sites []model.CandidateSite) ([]model.CandidateSite, []model.InvalidRow) {
	var valid []model.CandidateSite
	var invalid []model.InvalidRow

	for i, site := range sites {
		if reason := invalidCoordReason(site); reason != "" {
			invalid = append(invalid, model.InvalidRow{
				RowNumber: i + 2,
				SiteID:    site.ID,
				Address:   site.Address,
				Reason:    reason,
			})
			continue
		}
		valid = append(valid, site)
	}
	return valid, invalid
}

func invalidCoordReason(site model.CandidateSite) string {
	if site.Latitude == nil && site.Longitude == nil {
		return "missing coordinates"
	}
	if site.Latitude == nil || site.Longitude == nil {
		return "partial coordinates"
	}
	if *site.Latitude < -90 || *site.Latitude > 90 {
		return fmt.Sprintf("latitude %v out of range", *site.Latitude)
	}
	if *site.Longitude < -180 || *site.Longitude > 180 {
		return fmt.Sprintf("longitude %v out of range", *site.Longitude)
	}
	return ""
}

// toQualification converts a phase outcome's classifications into the
// persistence form.
func toQualification(outcome *analyzer.Outcome) map[string]model.QualificationFlags {
	if len(outcome.Classifications) == 0 {
		return nil
	}
	class := make(map[string]model.QualificationFlags, len(outcome.Classifications))
	for id, c := range outcome.Classifications {
		class[id] = model.QualificationFlags{
			FederalQualified: c.FederalQualified,
			FederalBasis:     c.FederalBasis,
			ResourceTier:     c.ResourceTier,
		}
	}
	return class
}

// mergeFlags accumulates one phase's manual-review flags and
// classifications into the run-level result. Phases write disjoint
// classification fields per site.
func mergeFlags(result *model.ScreenResult, flags []model.ManualReviewFlag, class map[string]model.QualificationFlags) {
	result.ManualReview = append(result.ManualReview, flags...)
	if len(class) == 0 {
		return
	}
	if result.Classifications == nil {
		result.Classifications = make(map[string]model.QualificationFlags)
	}
	for id, c := range class {
		qf := result.Classifications[id]
		if c.FederalQualified {
			qf.FederalQualified = true
			qf.FederalBasis = c.FederalBasis
		}
		if c.ResourceTier != "" {
			qf.ResourceTier = c.ResourceTier
		}
		result.Classifications[id] = qf
	}
}
