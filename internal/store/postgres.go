package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/foresight/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
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

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	id             TEXT PRIMARY KEY,
	owner_id       TEXT NOT NULL,
	text           TEXT NOT NULL,
	confidence     DOUBLE PRECISION,
	classification TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'submitted',
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS lineage_edges (
	id              TEXT PRIMARY KEY,
	parent_id       TEXT NOT NULL REFERENCES submissions(id),
	child_id        TEXT NOT NULL UNIQUE REFERENCES submissions(id),
	refinement_type TEXT NOT NULL,
	depth_increase  DOUBLE PRECISION NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS outcomes (
	id             TEXT PRIMARY KEY,
	submission_id  TEXT NOT NULL UNIQUE REFERENCES submissions(id),
	result         DOUBLE PRECISION NOT NULL,
	source         TEXT NOT NULL,
	accuracy_score DOUBLE PRECISION NOT NULL,
	validated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS credit_ledger (
	id                   TEXT PRIMARY KEY,
	submission_id        TEXT NOT NULL REFERENCES submissions(id),
	source_descendant_id TEXT NOT NULL REFERENCES submissions(id),
	credited_amount      DOUBLE PRECISION NOT NULL,
	applied_at           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
	owner_id          TEXT PRIMARY KEY,
	accuracy_rate     DOUBLE PRECISION NOT NULL,
	calibration_score DOUBLE PRECISION NOT NULL,
	reputation_score  DOUBLE PRECISION NOT NULL,
	mean_days_early   DOUBLE PRECISION NOT NULL,
	total_validated   INTEGER NOT NULL,
	credited_total    DOUBLE PRECISION NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_owner ON submissions(owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_edges_parent ON lineage_edges(parent_id);
CREATE INDEX IF NOT EXISTS idx_ledger_submission ON credit_ledger(submission_id);
CREATE INDEX IF NOT EXISTS idx_ledger_source ON credit_ledger(source_descendant_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateSubmission(ctx context.Context, sub model.Submission) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO submissions (id, owner_id, text, confidence, classification, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.OwnerID, sub.Text, sub.Confidence, sub.Classification,
		string(sub.Status), sub.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert submission")
}

func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, text, confidence, classification, status, created_at
		 FROM submissions WHERE id = $1`, id)

	var sub model.Submission
	err := row.Scan(&sub.ID, &sub.OwnerID, &sub.Text, &sub.Confidence,
		&sub.Classification, &sub.Status, &sub.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, model.NotFoundf("submission", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get submission")
	}
	return &sub, nil
}

func (s *PostgresStore) ListSubmissionsByOwner(ctx context.Context, ownerID string) ([]model.Submission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, text, confidence, classification, status, created_at
		 FROM submissions WHERE owner_id = $1 ORDER BY created_at ASC, id ASC`, ownerID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(&sub.ID, &sub.OwnerID, &sub.Text, &sub.Confidence,
			&sub.Classification, &sub.Status, &sub.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		subs = append(subs, sub)
	}
	return subs, eris.Wrap(rows.Err(), "postgres: list submissions iterate")
}

// ApplyLink inserts the edge and supersedes a still-submitted parent in one
// transaction. A failed insert leaves the parent's status untouched.
func (s *PostgresStore) ApplyLink(ctx context.Context, edge model.LineageEdge) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin apply link")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO lineage_edges (id, parent_id, child_id, refinement_type, depth_increase, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		edge.ID, edge.ParentID, edge.ChildID, string(edge.RefinementType),
		edge.DepthIncrease, edge.CreatedAt,
	); err != nil {
		return eris.Wrap(err, "postgres: insert edge")
	}

	if _, err := tx.Exec(ctx,
		`UPDATE submissions SET status = $1 WHERE id = $2 AND status = $3`,
		string(model.StatusSuperseded), edge.ParentID, string(model.StatusSubmitted),
	); err != nil {
		return eris.Wrap(err, "postgres: supersede parent")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit apply link")
}

func (s *PostgresStore) ParentEdge(ctx context.Context, childID string) (*model.LineageEdge, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, parent_id, child_id, refinement_type, depth_increase, created_at
		 FROM lineage_edges WHERE child_id = $1`, childID)

	var e model.LineageEdge
	err := row.Scan(&e.ID, &e.ParentID, &e.ChildID, &e.RefinementType, &e.DepthIncrease, &e.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil // root submission
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get parent edge")
	}
	return &e, nil
}

func (s *PostgresStore) ChildEdges(ctx context.Context, parentID string) ([]model.LineageEdge, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, parent_id, child_id, refinement_type, depth_increase, created_at
		 FROM lineage_edges WHERE parent_id = $1 ORDER BY created_at ASC`, parentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list child edges")
	}
	defer rows.Close()

	var edges []model.LineageEdge
	for rows.Next() {
		var e model.LineageEdge
		if err := rows.Scan(&e.ID, &e.ParentID, &e.ChildID, &e.RefinementType, &e.DepthIncrease, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan edge")
		}
		edges = append(edges, e)
	}
	return edges, eris.Wrap(rows.Err(), "postgres: list child edges iterate")
}

func (s *PostgresStore) GetOutcome(ctx context.Context, submissionID string) (*model.Outcome, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, submission_id, result, source, accuracy_score, validated_at
		 FROM outcomes WHERE submission_id = $1`, submissionID)

	var o model.Outcome
	err := row.Scan(&o.ID, &o.SubmissionID, &o.Result, &o.Source, &o.AccuracyScore, &o.ValidatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get outcome")
	}
	return &o, nil
}

func (s *PostgresStore) ListOutcomesByOwner(ctx context.Context, ownerID string) ([]model.Outcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT o.id, o.submission_id, o.result, o.source, o.accuracy_score, o.validated_at
		 FROM outcomes o JOIN submissions s ON s.id = o.submission_id
		 WHERE s.owner_id = $1 ORDER BY o.validated_at ASC`, ownerID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list outcomes")
	}
	defer rows.Close()

	var outs []model.Outcome
	for rows.Next() {
		var o model.Outcome
		if err := rows.Scan(&o.ID, &o.SubmissionID, &o.Result, &o.Source, &o.AccuracyScore, &o.ValidatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		outs = append(outs, o)
	}
	return outs, eris.Wrap(rows.Err(), "postgres: list outcomes iterate")
}

func (s *PostgresStore) ApplyOutcome(ctx context.Context, outcome model.Outcome, credits []model.CreditLedgerEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin apply outcome")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM outcomes WHERE submission_id = $1`, outcome.SubmissionID); err != nil {
		return eris.Wrap(err, "postgres: delete prior outcome")
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO outcomes (id, submission_id, result, source, accuracy_score, validated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		outcome.ID, outcome.SubmissionID, outcome.Result, outcome.Source,
		outcome.AccuracyScore, outcome.ValidatedAt,
	); err != nil {
		return eris.Wrap(err, "postgres: insert outcome")
	}

	if _, err := tx.Exec(ctx,
		`UPDATE submissions SET status = $1 WHERE id = $2 AND status = $3`,
		string(model.StatusValidated), outcome.SubmissionID, string(model.StatusSubmitted),
	); err != nil {
		return eris.Wrap(err, "postgres: transition submission status")
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM credit_ledger WHERE source_descendant_id = $1`, outcome.SubmissionID); err != nil {
		return eris.Wrap(err, "postgres: retract prior credits")
	}
	for _, c := range credits {
		if _, err := tx.Exec(ctx,
			`INSERT INTO credit_ledger (id, submission_id, source_descendant_id, credited_amount, applied_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			c.ID, c.SubmissionID, c.SourceDescendantID, c.CreditedAmount, c.AppliedAt,
		); err != nil {
			return eris.Wrap(err, "postgres: insert credit")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit apply outcome")
}

func (s *PostgresStore) ListCreditsForSubmission(ctx context.Context, submissionID string) ([]model.CreditLedgerEntry, error) {
	return s.listCredits(ctx,
		`SELECT id, submission_id, source_descendant_id, credited_amount, applied_at
		 FROM credit_ledger WHERE submission_id = $1 ORDER BY applied_at ASC`, submissionID)
}

func (s *PostgresStore) ListCreditsByOwner(ctx context.Context, ownerID string) ([]model.CreditLedgerEntry, error) {
	return s.listCredits(ctx,
		`SELECT c.id, c.submission_id, c.source_descendant_id, c.credited_amount, c.applied_at
		 FROM credit_ledger c JOIN submissions s ON s.id = c.submission_id
		 WHERE s.owner_id = $1 ORDER BY c.applied_at ASC`, ownerID)
}

func (s *PostgresStore) listCredits(ctx context.Context, query string, arg any) ([]model.CreditLedgerEntry, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list credits")
	}
	defer rows.Close()

	var entries []model.CreditLedgerEntry
	for rows.Next() {
		var c model.CreditLedgerEntry
		if err := rows.Scan(&c.ID, &c.SubmissionID, &c.SourceDescendantID, &c.CreditedAmount, &c.AppliedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan credit")
		}
		entries = append(entries, c)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list credits iterate")
}

func (s *PostgresStore) SaveProfile(ctx context.Context, p model.Profile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (owner_id, accuracy_rate, calibration_score, reputation_score,
			mean_days_early, total_validated, credited_total, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (owner_id) DO UPDATE SET
			accuracy_rate = EXCLUDED.accuracy_rate,
			calibration_score = EXCLUDED.calibration_score,
			reputation_score = EXCLUDED.reputation_score,
			mean_days_early = EXCLUDED.mean_days_early,
			total_validated = EXCLUDED.total_validated,
			credited_total = EXCLUDED.credited_total,
			updated_at = EXCLUDED.updated_at`,
		p.OwnerID, p.AccuracyRate, p.CalibrationScore, p.ReputationScore,
		p.MeanDaysEarly, p.TotalValidated, p.CreditedTotal, p.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: save profile")
}

func (s *PostgresStore) GetProfile(ctx context.Context, ownerID string) (*model.Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT owner_id, accuracy_rate, calibration_score, reputation_score,
			mean_days_early, total_validated, credited_total, updated_at
		 FROM profiles WHERE owner_id = $1`, ownerID)

	var p model.Profile
	err := row.Scan(&p.OwnerID, &p.AccuracyRate, &p.CalibrationScore, &p.ReputationScore,
		&p.MeanDaysEarly, &p.TotalValidated, &p.CreditedTotal, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, model.NotFoundf("profile", ownerID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get profile")
	}
	return &p, nil
}

func (s *PostgresStore) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT owner_id FROM submissions ORDER BY owner_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list owners")
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, eris.Wrap(err, "postgres: scan owner")
		}
		owners = append(owners, o)
	}
	return owners, eris.Wrap(rows.Err(), "postgres: list owners iterate")
}
