package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it,
// which keeps the postgres store unit-testable without a database.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool. It is the sink used for
// shared team deployments; SQLite remains the single-operator default.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	batch_path TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	site_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sites (
	run_id  TEXT NOT NULL REFERENCES runs(id),
	seq     INTEGER NOT NULL,
	site_id TEXT NOT NULL,
	payload JSONB NOT NULL,
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
	duration_ms BIGINT NOT NULL DEFAULT 0,
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
	ts       TIMESTAMPTZ NOT NULL,
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
	payload JSONB NOT NULL,
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
	composite DOUBLE PRECISION NOT NULL,
	payload   JSONB NOT NULL,
	PRIMARY KEY (run_id, site_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_phases_run ON phases(run_id, seq);
CREATE INDEX IF NOT EXISTS idx_eliminations_phase ON eliminations(run_id, phase);
CREATE INDEX IF NOT EXISTS idx_scored_rank ON scored_sites(run_id, rank);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, batchPath string, sites []model.CandidateSite) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin create run")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, batch_path, status, site_count, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, batchPath, string(model.RunStatusQueued), len(sites), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	for i, site := range sites {
		payload, err := json.Marshal(site)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: marshal site %s", site.ID)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO sites (run_id, seq, site_id, payload) VALUES ($1, $2, $3, $4)`,
			id, i, site.ID, payload,
		); err != nil {
			return nil, eris.Wrapf(err, "postgres: insert site %s", site.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit create run")
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

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, batch_path, status, site_count, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.BatchPath, &status, &r.SiteCount, &r.CreatedAt, &r.UpdatedAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	r.Status = model.RunStatus(status)
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, batch_path, status, site_count, created_at, updated_at FROM runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var status string
		if err := rows.Scan(&r.ID, &r.BatchPath, &status, &r.SiteCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.RunStatus(status)
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) GetSites(ctx context.Context, runID string) ([]model.CandidateSite, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM sites WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get sites %s", runID)
	}
	defer rows.Close()

	var sites []model.CandidateSite
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan site")
		}
		var site model.CandidateSite
		if err := json.Unmarshal(payload, &site); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal site")
		}
		sites = append(sites, site)
	}
	return sites, eris.Wrap(rows.Err(), "postgres: iterate sites")
}

func (s *PostgresStore) SaveInvalidRows(ctx context.Context, runID string, invalid []model.InvalidRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin invalid rows")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, row := range invalid {
		if _, err := tx.Exec(ctx,
			`INSERT INTO invalid_rows (run_id, row_number, site_id, address, reason) VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
			runID, row.RowNumber, row.SiteID, row.Address, row.Reason,
		); err != nil {
			return eris.Wrap(err, "postgres: insert invalid row")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit invalid rows")
}

func (s *PostgresStore) SavePhaseResult(ctx context.Context, runID string, seq int, pr model.PhaseResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin phase result")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO phases (run_id, seq, phase, status, entering, eliminated, surviving, duration_ms, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, phase) DO UPDATE SET
			status = EXCLUDED.status,
			entering = EXCLUDED.entering,
			eliminated = EXCLUDED.eliminated,
			surviving = EXCLUDED.surviving,
			duration_ms = EXCLUDED.duration_ms,
			error = EXCLUDED.error`,
		runID, seq, string(pr.Phase), string(pr.Status),
		pr.Entering, pr.Eliminated, pr.Surviving, pr.DurationMS, pr.Error,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert phase %s", pr.Phase)
	}

	for _, rec := range pr.Records {
		if _, err := tx.Exec(ctx,
			`INSERT INTO eliminations (run_id, site_id, phase, reason, detail, evidence, ts) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT DO NOTHING`,
			runID, rec.SiteID, string(rec.Phase), string(rec.Reason), rec.Detail, rec.Evidence, rec.Timestamp,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert elimination %s", rec.SiteID)
		}
	}

	for _, flag := range pr.Flags {
		if _, err := tx.Exec(ctx,
			`INSERT INTO manual_review (run_id, site_id, phase, reason, detail) VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
			runID, flag.SiteID, string(flag.Phase), flag.Reason, flag.Detail,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert manual review %s", flag.SiteID)
		}
	}

	for siteID, qf := range pr.Classifications {
		payload, err := json.Marshal(qf)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal classification %s", siteID)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO classifications (run_id, site_id, phase, payload) VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
			runID, siteID, string(pr.Phase), payload,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert classification %s", siteID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit phase result")
}

func (s *PostgresStore) GetClassifications(ctx context.Context, runID string) (map[string]model.QualificationFlags, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT site_id, payload FROM classifications WHERE run_id = $1 ORDER BY site_id, phase`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get classifications %s", runID)
	}
	defer rows.Close()

	merged := make(map[string]model.QualificationFlags)
	for rows.Next() {
		var siteID string
		var payload []byte
		if err := rows.Scan(&siteID, &payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan classification")
		}
		var qf model.QualificationFlags
		if err := json.Unmarshal(payload, &qf); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal classification")
		}
		merged[siteID] = mergeQualification(merged[siteID], qf)
	}
	return merged, eris.Wrap(rows.Err(), "postgres: iterate classifications")
}

func (s *PostgresStore) GetPhaseResults(ctx context.Context, runID string) ([]model.PhaseResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT phase, status, entering, eliminated, surviving, duration_ms, COALESCE(error, '')
		FROM phases WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get phases %s", runID)
	}
	defer rows.Close()

	var results []model.PhaseResult
	for rows.Next() {
		var pr model.PhaseResult
		var phase, status string
		if err := rows.Scan(&phase, &status, &pr.Entering, &pr.Eliminated, &pr.Surviving, &pr.DurationMS, &pr.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan phase")
		}
		pr.Phase = model.Phase(phase)
		pr.Status = model.PhaseStatus(status)
		results = append(results, pr)
	}
	return results, eris.Wrap(rows.Err(), "postgres: iterate phases")
}

func (s *PostgresStore) GetInvalidRows(ctx context.Context, runID string) ([]model.InvalidRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT row_number, COALESCE(site_id, ''), COALESCE(address, ''), reason FROM invalid_rows WHERE run_id = $1 ORDER BY row_number`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get invalid rows %s", runID)
	}
	defer rows.Close()

	var invalid []model.InvalidRow
	for rows.Next() {
		var row model.InvalidRow
		if err := rows.Scan(&row.RowNumber, &row.SiteID, &row.Address, &row.Reason); err != nil {
			return nil, eris.Wrap(err, "postgres: scan invalid row")
		}
		invalid = append(invalid, row)
	}
	return invalid, eris.Wrap(rows.Err(), "postgres: iterate invalid rows")
}

func (s *PostgresStore) GetEliminations(ctx context.Context, runID string) ([]model.EliminationRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT site_id, phase, reason, detail, COALESCE(evidence, ''), ts FROM eliminations WHERE run_id = $1 ORDER BY ts, site_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get eliminations %s", runID)
	}
	defer rows.Close()

	var records []model.EliminationRecord
	for rows.Next() {
		var rec model.EliminationRecord
		var phase, reason string
		if err := rows.Scan(&rec.SiteID, &phase, &reason, &rec.Detail, &rec.Evidence, &rec.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan elimination")
		}
		rec.Phase = model.Phase(phase)
		rec.Reason = model.ReasonCode(reason)
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate eliminations")
}

func (s *PostgresStore) GetManualReview(ctx context.Context, runID string) ([]model.ManualReviewFlag, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT site_id, phase, reason, COALESCE(detail, '') FROM manual_review WHERE run_id = $1 ORDER BY site_id, phase`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get manual review %s", runID)
	}
	defer rows.Close()

	var flags []model.ManualReviewFlag
	for rows.Next() {
		var f model.ManualReviewFlag
		var phase string
		if err := rows.Scan(&f.SiteID, &phase, &f.Reason, &f.Detail); err != nil {
			return nil, eris.Wrap(err, "postgres: scan manual review")
		}
		f.Phase = model.Phase(phase)
		flags = append(flags, f)
	}
	return flags, eris.Wrap(rows.Err(), "postgres: iterate manual review")
}

func (s *PostgresStore) SaveScores(ctx context.Context, runID string, scored []model.ScoredSite) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin scores")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM scored_sites WHERE run_id = $1`, runID); err != nil {
		return eris.Wrap(err, "postgres: clear scores")
	}

	for _, sc := range scored {
		payload, err := json.Marshal(sc)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal score %s", sc.SiteID)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO scored_sites (run_id, site_id, rank, composite, payload) VALUES ($1, $2, $3, $4, $5)`,
			runID, sc.SiteID, sc.Rank, sc.Composite, payload,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert score %s", sc.SiteID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit scores")
}

func (s *PostgresStore) GetScores(ctx context.Context, runID string) ([]model.ScoredSite, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM scored_sites WHERE run_id = $1 ORDER BY rank`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get scores %s", runID)
	}
	defer rows.Close()

	var scored []model.ScoredSite
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan score")
		}
		var sc model.ScoredSite
		if err := json.Unmarshal(payload, &sc); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal score")
		}
		scored = append(scored, sc)
	}
	return scored, eris.Wrap(rows.Err(), "postgres: iterate scores")
}
