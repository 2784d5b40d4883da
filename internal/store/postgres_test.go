package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/foresight/internal/model"
)

func newMockPostgres(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

// anyArgs builds n pgxmock.AnyArg matchers, for expectations that do not
// care about argument values.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgres_CreateSubmission(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectExec("INSERT INTO submissions").
		WithArgs(anyArgs(7)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.CreateSubmission(context.Background(), testSubmission("alice", floatPtr(0.7)))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetSubmission(t *testing.T) {
	st, mock := newMockPostgres(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, owner_id, text, confidence, classification, status, created_at").
		WithArgs("sub-1").
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "owner_id", "text", "confidence", "classification", "status", "created_at"},
		).AddRow("sub-1", "alice", "idea", (*float64)(nil), "", "submitted", now))

	sub, err := st.GetSubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", sub.OwnerID)
	assert.Nil(t, sub.Confidence)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetSubmission_Missing(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT id, owner_id, text, confidence, classification, status, created_at").
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "owner_id", "text", "confidence", "classification", "status", "created_at"},
		))

	_, err := st.GetSubmission(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ParentEdge_RootIsNil(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT id, parent_id, child_id, refinement_type, depth_increase, created_at").
		WithArgs("root-1").
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "parent_id", "child_id", "refinement_type", "depth_increase", "created_at"},
		))

	edge, err := st.ParentEdge(context.Background(), "root-1")
	require.NoError(t, err)
	assert.Nil(t, edge)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ApplyLink_SingleTransaction(t *testing.T) {
	st, mock := newMockPostgres(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO lineage_edges").
		WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE submissions SET status").
		WithArgs("superseded", "parent-1", "submitted").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := st.ApplyLink(context.Background(), model.LineageEdge{
		ID: "edge-1", ParentID: "parent-1", ChildID: "child-1",
		RefinementType: model.RefinementExpansion, DepthIncrease: 0.2, CreatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ApplyLink_RollsBackOnInsertFailure(t *testing.T) {
	st, mock := newMockPostgres(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO lineage_edges").
		WithArgs(anyArgs(6)...).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := st.ApplyLink(context.Background(), model.LineageEdge{
		ID: "edge-1", ParentID: "parent-1", ChildID: "child-1",
		RefinementType: model.RefinementExpansion, DepthIncrease: 0.2, CreatedAt: now,
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ApplyOutcome_SingleTransaction(t *testing.T) {
	st, mock := newMockPostgres(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM outcomes").
		WithArgs("sub-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO outcomes").
		WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE submissions SET status").
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM credit_ledger").
		WithArgs("sub-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO credit_ledger").
		WithArgs(anyArgs(5)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	outcome := model.Outcome{
		ID: "out-1", SubmissionID: "sub-1",
		Result: 1.0, Source: "s", AccuracyScore: 1.4, ValidatedAt: now,
	}
	credits := []model.CreditLedgerEntry{{
		ID: "cr-1", SubmissionID: "anc-1",
		SourceDescendantID: "sub-1", CreditedAmount: 0.7, AppliedAt: now,
	}}

	require.NoError(t, st.ApplyOutcome(context.Background(), outcome, credits))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ApplyOutcome_RollsBackOnFailure(t *testing.T) {
	st, mock := newMockPostgres(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM outcomes").
		WithArgs("sub-1").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	outcome := model.Outcome{
		ID: "out-1", SubmissionID: "sub-1",
		Result: 1.0, Source: "s", AccuracyScore: 1.4, ValidatedAt: now,
	}
	err := st.ApplyOutcome(context.Background(), outcome, nil)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveProfile(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectExec("INSERT INTO profiles").
		WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.SaveProfile(context.Background(), model.Profile{
		OwnerID:   "alice",
		UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
