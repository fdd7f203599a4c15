package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	batch_path TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	site_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sites (
	run_id  TEXT NOT NULL REFERENCES runs(id),
	seq     INTEGER NOT NULL,
	site_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (run_id, site_id)
);

CREATE TABLE IF NOT EXISTS phases (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	seq         INTEGER NOT NULL,
	phase       TEXT NOT NULL,
	status      TEXT NOT NULL,
	entering    INTEGER NOT NULL,
	eliminated  INTEGER NOT NULL,
	surviving   INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	PRIMARY KEY (run_id, phase)
);

CREATE TABLE IF NOT EXISTS eliminations (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	site_id  TEXT NOT NULL,
	phase    TEXT NOT NULL,
	reason   TEXT NOT NULL,
	detail   TEXT NOT NULL,
	evidence TEXT,
	ts       DATETIME NOT NULL,
	PRIMARY KEY (run_id, site_id)
);

CREATE TABLE IF NOT EXISTS manual_review (
	run_id  TEXT NOT NULL REFERENCES runs(id),
	site_id TEXT NOT NULL,
	phase   TEXT NOT NULL,
	reason  TEXT NOT NULL,
	detail  TEXT,
	PRIMARY KEY (run_id, site_id, phase, reason)
);

CREATE TABLE IF NOT EXISTS classifications (
	run_id  TEXT NOT NULL REFERENCES runs(id),
	site_id TEXT NOT NULL,
	phase   TEXT NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (run_id, site_id, phase)
);

CREATE TABLE IF NOT EXISTS invalid_rows (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	row_number INTEGER NOT NULL,
	site_id    TEXT,
	address    TEXT,
	reason     TEXT NOT NULL,
	PRIMARY KEY (run_id, row_number, reason)
);

CREATE TABLE IF NOT EXISTS scored_sites (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	site_id   TEXT NOT NULL,
	rank      INTEGER NOT NULL,
	composite REAL NOT NULL,
	payload   TEXT NOT NULL,
	PRIMARY KEY (run_id, site_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_phases_run ON phases(run_id, seq);
CREATE INDEX IF NOT EXISTS idx_eliminations_phase ON eliminations(run_id, phase);
CREATE INDEX IF NOT EXISTS idx_scored_rank ON scored_sites(run_id, rank);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, batchPath string, sites []model.CandidateSite) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin create run")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, batch_path, status, site_count, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, batchPath, string(model.RunStatusQueued), len(sites), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	for i, site := range sites {
		payload, err := json.Marshal(site)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: marshal site %s", site.ID)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sites (run_id, seq, site_id, payload) VALUES (?, ?, ?, ?)`,
			id, i, site.ID, string(payload),
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert site %s", site.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit create run")
	}

	return &model.Run{
		ID:        id,
		BatchPath: batchPath,
		Status:    model.RunStatusQueued,
		SiteCount: len(sites),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, batch_path, status, site_count, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	).Scan(&r.ID, &r.BatchPath, &status, &r.SiteCount, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	r.Status = model.RunStatus(status)
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_path, status, site_count, created_at, updated_at FROM runs ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var status string
		if err := rows.Scan(&r.ID, &r.BatchPath, &status, &r.SiteCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Status = model.RunStatus(status)
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) GetSites(ctx context.Context, runID string) ([]model.CandidateSite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM sites WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get sites %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var sites []model.CandidateSite
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan site")
		}
		var site model.CandidateSite
		if err := json.Unmarshal([]byte(payload), &site); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal site")
		}
		sites = append(sites, site)
	}
	return sites, eris.Wrap(rows.Err(), "sqlite: iterate sites")
}

func (s *SQLiteStore) SaveInvalidRows(ctx context.Context, runID string, invalid []model.InvalidRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin invalid rows")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, row := range invalid {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO invalid_rows (run_id, row_number, site_id, address, reason) VALUES (?, ?, ?, ?, ?)`,
			runID, row.RowNumber, row.SiteID, row.Address, row.Reason,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert invalid row")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit invalid rows")
}

func (s *SQLiteStore) SavePhaseResult(ctx context.Context, runID string, seq int, pr model.PhaseResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin phase result")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO phases (run_id, seq, phase, status, entering, eliminated, surviving, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, phase) DO UPDATE SET
			status = excluded.status,
			entering = excluded.entering,
			eliminated = excluded.eliminated,
			surviving = excluded.surviving,
			duration_ms = excluded.duration_ms,
			error = excluded.error`,
		runID, seq, string(pr.Phase), string(pr.Status),
		pr.Entering, pr.Eliminated, pr.Surviving, pr.DurationMS, pr.Error,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert phase %s", pr.Phase)
	}

	// Elimination records are immutable facts: first write wins.
	for _, rec := range pr.Records {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO eliminations (run_id, site_id, phase, reason, detail, evidence, ts) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, rec.SiteID, string(rec.Phase), string(rec.Reason), rec.Detail, rec.Evidence, rec.Timestamp,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert elimination %s", rec.SiteID)
		}
	}

	for _, flag := range pr.Flags {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO manual_review (run_id, site_id, phase, reason, detail) VALUES (?, ?, ?, ?, ?)`,
			runID, flag.SiteID, string(flag.Phase), flag.Reason, flag.Detail,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert manual review %s", flag.SiteID)
		}
	}

	for siteID, qf := range pr.Classifications {
		payload, err := json.Marshal(qf)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal classification %s", siteID)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO classifications (run_id, site_id, phase, payload) VALUES (?, ?, ?, ?)`,
			runID, siteID, string(pr.Phase), payload,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert classification %s", siteID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit phase result")
}

// GetClassifications merges the per-phase qualification annotations for a
// run. Each phase writes disjoint fields, so merge order does not matter.
func (s *SQLiteStore) GetClassifications(ctx context.Context, runID string) (map[string]model.QualificationFlags, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT site_id, payload FROM classifications WHERE run_id = ? ORDER BY site_id, phase`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get classifications %s", runID)
	}
	defer rows.Close()

	merged := make(map[string]model.QualificationFlags)
	for rows.Next() {
		var siteID string
		var payload []byte
		if err := rows.Scan(&siteID, &payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan classification")
		}
		var qf model.QualificationFlags
		if err := json.Unmarshal(payload, &qf); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal classification")
		}
		merged[siteID] = mergeQualification(merged[siteID], qf)
	}
	return merged, eris.Wrap(rows.Err(), "sqlite: iterate classifications")
}

func mergeQualification(base, next model.QualificationFlags) model.QualificationFlags {
	if next.FederalQualified {
		base.FederalQualified = true
		base.FederalBasis = next.FederalBasis
	}
	if next.ResourceTier != "" {
		base.ResourceTier = next.ResourceTier
	}
	return base
}

func (s *SQLiteStore) GetPhaseResults(ctx context.Context, runID string) ([]model.PhaseResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT phase, status, entering, eliminated, surviving, duration_ms, COALESCE(error, '')
		FROM phases WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get phases %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var results []model.PhaseResult
	for rows.Next() {
		var pr model.PhaseResult
		var phase, status string
		if err := rows.Scan(&phase, &status, &pr.Entering, &pr.Eliminated, &pr.Surviving, &pr.DurationMS, &pr.Error); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan phase")
		}
		pr.Phase = model.Phase(phase)
		pr.Status = model.PhaseStatus(status)
		results = append(results, pr)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: iterate phases")
}

func (s *SQLiteStore) GetInvalidRows(ctx context.Context, runID string) ([]model.InvalidRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_number, COALESCE(site_id, ''), COALESCE(address, ''), reason FROM invalid_rows WHERE run_id = ? ORDER BY row_number`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get invalid rows %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var invalid []model.InvalidRow
	for rows.Next() {
		var row model.InvalidRow
		if err := rows.Scan(&row.RowNumber, &row.SiteID, &row.Address, &row.Reason); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan invalid row")
		}
		invalid = append(invalid, row)
	}
	return invalid, eris.Wrap(rows.Err(), "sqlite: iterate invalid rows")
}

func (s *SQLiteStore) GetEliminations(ctx context.Context, runID string) ([]model.EliminationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT site_id, phase, reason, detail, COALESCE(evidence, ''), ts FROM eliminations WHERE run_id = ? ORDER BY ts, site_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get eliminations %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var records []model.EliminationRecord
	for rows.Next() {
		var rec model.EliminationRecord
		var phase, reason string
		if err := rows.Scan(&rec.SiteID, &phase, &reason, &rec.Detail, &rec.Evidence, &rec.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan elimination")
		}
		rec.Phase = model.Phase(phase)
		rec.Reason = model.ReasonCode(reason)
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: iterate eliminations")
}

func (s *SQLiteStore) GetManualReview(ctx context.Context, runID string) ([]model.ManualReviewFlag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT site_id, phase, reason, COALESCE(detail, '') FROM manual_review WHERE run_id = ? ORDER BY site_id, phase`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get manual review %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var flags []model.ManualReviewFlag
	for rows.Next() {
		var f model.ManualReviewFlag
		var phase string
		if err := rows.Scan(&f.SiteID, &phase, &f.Reason, &f.Detail); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan manual review")
		}
		f.Phase = model.Phase(phase)
		flags = append(flags, f)
	}
	return flags, eris.Wrap(rows.Err(), "sqlite: iterate manual review")
}

func (s *SQLiteStore) SaveScores(ctx context.Context, runID string, scored []model.ScoredSite) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin scores")
	}
	defer tx.Rollback() //nolint:errcheck

	// Scores for a run are replaced wholesale so a resumed scoring phase
	// cannot leave a mix of old and new ranks.
	if _, err := tx.ExecContext(ctx, `DELETE FROM scored_sites WHERE run_id = ?`, runID); err != nil {
		return eris.Wrap(err, "sqlite: clear scores")
	}

	for _, sc := range scored {
		payload, err := json.Marshal(sc)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal score %s", sc.SiteID)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO scored_sites (run_id, site_id, rank, composite, payload) VALUES (?, ?, ?, ?, ?)`,
			runID, sc.SiteID, sc.Rank, sc.Composite, string(payload),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert score %s", sc.SiteID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit scores")
}

func (s *SQLiteStore) GetScores(ctx context.Context, runID string) ([]model.ScoredSite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM scored_sites WHERE run_id = ? ORDER BY rank`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get scores %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var scored []model.ScoredSite
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		var sc model.ScoredSite
		if err := json.Unmarshal([]byte(payload), &sc); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal score")
		}
		scored = append(scored, sc)
	}
	return scored, eris.Wrap(rows.Err(), "sqlite: iterate scores")
}
