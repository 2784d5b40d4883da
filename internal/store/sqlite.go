package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/foresight/internal/model"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	id             TEXT PRIMARY KEY,
	owner_id       TEXT NOT NULL,
	text           TEXT NOT NULL,
	confidence     REAL,
	classification TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'submitted',
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS lineage_edges (
	id              TEXT PRIMARY KEY,
	parent_id       TEXT NOT NULL REFERENCES submissions(id),
	child_id        TEXT NOT NULL UNIQUE REFERENCES submissions(id),
	refinement_type TEXT NOT NULL,
	depth_increase  REAL NOT NULL,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS outcomes (
	id             TEXT PRIMARY KEY,
	submission_id  TEXT NOT NULL UNIQUE REFERENCES submissions(id),
	result         REAL NOT NULL,
	source         TEXT NOT NULL,
	accuracy_score REAL NOT NULL,
	validated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS credit_ledger (
	id                   TEXT PRIMARY KEY,
	submission_id        TEXT NOT NULL REFERENCES submissions(id),
	source_descendant_id TEXT NOT NULL REFERENCES submissions(id),
	credited_amount      REAL NOT NULL,
	applied_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
	owner_id          TEXT PRIMARY KEY,
	accuracy_rate     REAL NOT NULL,
	calibration_score REAL NOT NULL,
	reputation_score  REAL NOT NULL,
	mean_days_early   REAL NOT NULL,
	total_validated   INTEGER NOT NULL,
	credited_total    REAL NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_owner ON submissions(owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_edges_parent ON lineage_edges(parent_id);
CREATE INDEX IF NOT EXISTS idx_ledger_submission ON credit_ledger(submission_id);
CREATE INDEX IF NOT EXISTS idx_ledger_source ON credit_ledger(source_descendant_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub model.Submission) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, owner_id, text, confidence, classification, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.OwnerID, sub.Text, nullFloat(sub.Confidence), sub.Classification,
		string(sub.Status), sub.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert submission")
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, text, confidence, classification, status, created_at
		 FROM submissions WHERE id = ?`, id)
	return scanSubmission(row, id)
}

func (s *SQLiteStore) ListSubmissionsByOwner(ctx context.Context, ownerID string) ([]model.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, text, confidence, classification, status, created_at
		 FROM submissions WHERE owner_id = ? ORDER BY created_at ASC, id ASC`, ownerID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows, "")
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, eris.Wrap(rows.Err(), "sqlite: list submissions iterate")
}

// ApplyLink inserts the edge and supersedes a still-submitted parent in one
// transaction. A failed insert leaves the parent's status untouched.
func (s *SQLiteStore) ApplyLink(ctx context.Context, edge model.LineageEdge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin apply link")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lineage_edges (id, parent_id, child_id, refinement_type, depth_increase, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		edge.ID, edge.ParentID, edge.ChildID, string(edge.RefinementType),
		edge.DepthIncrease, edge.CreatedAt,
	); err != nil {
		return eris.Wrap(err, "sqlite: insert edge")
	}

	// First child supersedes a still-submitted parent; validated stays.
	if _, err := tx.ExecContext(ctx,
		`UPDATE submissions SET status = ? WHERE id = ? AND status = ?`,
		string(model.StatusSuperseded), edge.ParentID, string(model.StatusSubmitted),
	); err != nil {
		return eris.Wrap(err, "sqlite: supersede parent")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit apply link")
}

func (s *SQLiteStore) ParentEdge(ctx context.Context, childID string) (*model.LineageEdge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, parent_id, child_id, refinement_type, depth_increase, created_at
		 FROM lineage_edges WHERE child_id = ?`, childID)

	var e model.LineageEdge
	err := row.Scan(&e.ID, &e.ParentID, &e.ChildID, &e.RefinementType, &e.DepthIncrease, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil // root submission
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get parent edge")
	}
	return &e, nil
}

func (s *SQLiteStore) ChildEdges(ctx context.Context, parentID string) ([]model.LineageEdge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent_id, child_id, refinement_type, depth_increase, created_at
		 FROM lineage_edges WHERE parent_id = ? ORDER BY created_at ASC`, parentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list child edges")
	}
	defer rows.Close()

	var edges []model.LineageEdge
	for rows.Next() {
		var e model.LineageEdge
		if err := rows.Scan(&e.ID, &e.ParentID, &e.ChildID, &e.RefinementType, &e.DepthIncrease, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan edge")
		}
		edges = append(edges, e)
	}
	return edges, eris.Wrap(rows.Err(), "sqlite: list child edges iterate")
}

func (s *SQLiteStore) GetOutcome(ctx context.Context, submissionID string) (*model.Outcome, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, submission_id, result, source, accuracy_score, validated_at
		 FROM outcomes WHERE submission_id = ?`, submissionID)

	var o model.Outcome
	err := row.Scan(&o.ID, &o.SubmissionID, &o.Result, &o.Source, &o.AccuracyScore, &o.ValidatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get outcome")
	}
	return &o, nil
}

func (s *SQLiteStore) ListOutcomesByOwner(ctx context.Context, ownerID string) ([]model.Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT o.id, o.submission_id, o.result, o.source, o.accuracy_score, o.validated_at
		 FROM outcomes o JOIN submissions s ON s.id = o.submission_id
		 WHERE s.owner_id = ? ORDER BY o.validated_at ASC`, ownerID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list outcomes")
	}
	defer rows.Close()

	var outs []model.Outcome
	for rows.Next() {
		var o model.Outcome
		if err := rows.Scan(&o.ID, &o.SubmissionID, &o.Result, &o.Source, &o.AccuracyScore, &o.ValidatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		outs = append(outs, o)
	}
	return outs, eris.Wrap(rows.Err(), "sqlite: list outcomes iterate")
}

// ApplyOutcome replaces the submission's outcome, transitions it to
// validated, and replaces every ledger entry previously credited from this
// submission's validation, all in one transaction.
func (s *SQLiteStore) ApplyOutcome(ctx context.Context, outcome model.Outcome, credits []model.CreditLedgerEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin apply outcome")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM outcomes WHERE submission_id = ?`, outcome.SubmissionID); err != nil {
		return eris.Wrap(err, "sqlite: delete prior outcome")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO outcomes (id, submission_id, result, source, accuracy_score, validated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		outcome.ID, outcome.SubmissionID, outcome.Result, outcome.Source,
		outcome.AccuracyScore, outcome.ValidatedAt,
	); err != nil {
		return eris.Wrap(err, "sqlite: insert outcome")
	}

	// submitted -> validated only; superseded stays superseded.
	if _, err := tx.ExecContext(ctx,
		`UPDATE submissions SET status = ? WHERE id = ? AND status = ?`,
		string(model.StatusValidated), outcome.SubmissionID, string(model.StatusSubmitted),
	); err != nil {
		return eris.Wrap(err, "sqlite: transition submission status")
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM credit_ledger WHERE source_descendant_id = ?`, outcome.SubmissionID); err != nil {
		return eris.Wrap(err, "sqlite: retract prior credits")
	}
	for _, c := range credits {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO credit_ledger (id, submission_id, source_descendant_id, credited_amount, applied_at)
			 VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.SubmissionID, c.SourceDescendantID, c.CreditedAmount, c.AppliedAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert credit")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit apply outcome")
}

func (s *SQLiteStore) ListCreditsForSubmission(ctx context.Context, submissionID string) ([]model.CreditLedgerEntry, error) {
	return s.listCredits(ctx,
		`SELECT id, submission_id, source_descendant_id, credited_amount, applied_at
		 FROM credit_ledger WHERE submission_id = ? ORDER BY applied_at ASC`, submissionID)
}

func (s *SQLiteStore) ListCreditsByOwner(ctx context.Context, ownerID string) ([]model.CreditLedgerEntry, error) {
	return s.listCredits(ctx,
		`SELECT c.id, c.submission_id, c.source_descendant_id, c.credited_amount, c.applied_at
		 FROM credit_ledger c JOIN submissions s ON s.id = c.submission_id
		 WHERE s.owner_id = ? ORDER BY c.applied_at ASC`, ownerID)
}

func (s *SQLiteStore) listCredits(ctx context.Context, query string, arg any) ([]model.CreditLedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list credits")
	}
	defer rows.Close()

	var entries []model.CreditLedgerEntry
	for rows.Next() {
		var c model.CreditLedgerEntry
		if err := rows.Scan(&c.ID, &c.SubmissionID, &c.SourceDescendantID, &c.CreditedAmount, &c.AppliedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan credit")
		}
		entries = append(entries, c)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list credits iterate")
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, p model.Profile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (owner_id, accuracy_rate, calibration_score, reputation_score,
			mean_days_early, total_validated, credited_total, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET
			accuracy_rate = excluded.accuracy_rate,
			calibration_score = excluded.calibration_score,
			reputation_score = excluded.reputation_score,
			mean_days_early = excluded.mean_days_early,
			total_validated = excluded.total_validated,
			credited_total = excluded.credited_total,
			updated_at = excluded.updated_at`,
		p.OwnerID, p.AccuracyRate, p.CalibrationScore, p.ReputationScore,
		p.MeanDaysEarly, p.TotalValidated, p.CreditedTotal, p.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: save profile")
}

func (s *SQLiteStore) GetProfile(ctx context.Context, ownerID string) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT owner_id, accuracy_rate, calibration_score, reputation_score,
			mean_days_early, total_validated, credited_total, updated_at
		 FROM profiles WHERE owner_id = ?`, ownerID)

	var p model.Profile
	err := row.Scan(&p.OwnerID, &p.AccuracyRate, &p.CalibrationScore, &p.ReputationScore,
		&p.MeanDaysEarly, &p.TotalValidated, &p.CreditedTotal, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, model.NotFoundf("profile", ownerID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get profile")
	}
	return &p, nil
}

func (s *SQLiteStore) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT owner_id FROM submissions ORDER BY owner_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list owners")
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan owner")
		}
		owners = append(owners, o)
	}
	return owners, eris.Wrap(rows.Err(), "sqlite: list owners iterate")
}

// helpers

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubmission(row scannable, id string) (*model.Submission, error) {
	var sub model.Submission
	var conf sql.NullFloat64

	err := row.Scan(&sub.ID, &sub.OwnerID, &sub.Text, &conf, &sub.Classification, &sub.Status, &sub.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, model.NotFoundf("submission", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan submission")
	}
	if conf.Valid {
		c := conf.Float64
		sub.Confidence = &c
	}
	return &sub, nil
}
