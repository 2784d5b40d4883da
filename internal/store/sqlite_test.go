package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/foresight/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testSubmission(owner string, conf *float64) model.Submission {
	return model.Submission{
		ID:         uuid.New().String(),
		OwnerID:    owner,
		Text:       "what if batteries were sand",
		Confidence: conf,
		Status:     model.StatusSubmitted,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
}

func floatPtr(f float64) *float64 { return &f }

// --- Submissions ---

func TestSQLite_Submission_CreateAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sub := testSubmission("alice", floatPtr(0.8))
	require.NoError(t, st.CreateSubmission(ctx, sub))

	got, err := st.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)
	assert.Equal(t, "alice", got.OwnerID)
	assert.Equal(t, model.StatusSubmitted, got.Status)
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, 0.8, *got.Confidence, 1e-9)
}

func TestSQLite_Submission_NullConfidence(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sub := testSubmission("alice", nil)
	require.NoError(t, st.CreateSubmission(ctx, sub))

	got, err := st.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Confidence)
}

func TestSQLite_Submission_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetSubmission(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSQLite_Submission_ListByOwnerChronological(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, offset := range []int{2, 0, 1} {
		sub := testSubmission("alice", nil)
		sub.Text = string(rune('a' + i))
		sub.CreatedAt = base.Add(time.Duration(offset) * time.Hour)
		require.NoError(t, st.CreateSubmission(ctx, sub))
	}
	other := testSubmission("bob", nil)
	require.NoError(t, st.CreateSubmission(ctx, other))

	subs, err := st.ListSubmissionsByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.True(t, subs[0].CreatedAt.Before(subs[1].CreatedAt))
	assert.True(t, subs[1].CreatedAt.Before(subs[2].CreatedAt))
}

// --- Edges ---

func TestSQLite_Edges(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	parent := testSubmission("alice", nil)
	child := testSubmission("alice", nil)
	require.NoError(t, st.CreateSubmission(ctx, parent))
	require.NoError(t, st.CreateSubmission(ctx, child))

	edge := model.LineageEdge{
		ID:             uuid.New().String(),
		ParentID:       parent.ID,
		ChildID:        child.ID,
		RefinementType: model.RefinementExpansion,
		DepthIncrease:  0.4,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, st.ApplyLink(ctx, edge))

	got, err := st.ParentEdge(ctx, child.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, parent.ID, got.ParentID)
	assert.InDelta(t, 0.4, got.DepthIncrease, 1e-9)

	// The link superseded the parent in the same write.
	p, err := st.GetSubmission(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuperseded, p.Status)

	// Root has no parent edge and that is not an error.
	got, err = st.ParentEdge(ctx, parent.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	children, err := st.ChildEdges(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ChildID)
}

func TestSQLite_ApplyLink_ValidatedParentKeepsStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	parent := testSubmission("alice", nil)
	child := testSubmission("alice", nil)
	require.NoError(t, st.CreateSubmission(ctx, parent))
	require.NoError(t, st.CreateSubmission(ctx, child))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.ApplyOutcome(ctx, model.Outcome{
		ID: uuid.New().String(), SubmissionID: parent.ID,
		Result: 1.0, Source: "s", AccuracyScore: 1.0, ValidatedAt: now,
	}, nil))

	require.NoError(t, st.ApplyLink(ctx, model.LineageEdge{
		ID: uuid.New().String(), ParentID: parent.ID, ChildID: child.ID,
		RefinementType: model.RefinementExpansion, DepthIncrease: 0.1, CreatedAt: now,
	}))

	p, err := st.GetSubmission(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusValidated, p.Status)
}

func TestSQLite_ApplyLink_FailedInsertLeavesParentUntouched(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := testSubmission("alice", nil)
	b := testSubmission("bob", nil)
	c := testSubmission("carol", nil)
	for _, sub := range []model.Submission{a, b, c} {
		require.NoError(t, st.CreateSubmission(ctx, sub))
	}

	now := time.Now().UTC().Truncate(time.Second)
	link := func(parentID, childID string) error {
		return st.ApplyLink(ctx, model.LineageEdge{
			ID: uuid.New().String(), ParentID: parentID, ChildID: childID,
			RefinementType: model.RefinementExpansion, DepthIncrease: 0.1, CreatedAt: now,
		})
	}

	require.NoError(t, link(a.ID, c.ID))

	// c already has a parent; the unique child constraint rejects the edge
	// and the transaction must not supersede b on the way out.
	require.Error(t, link(b.ID, c.ID))

	got, err := st.GetSubmission(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, got.Status)

	edge, err := st.ParentEdge(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, edge)
	assert.Equal(t, a.ID, edge.ParentID)
}

// --- Outcomes + ledger ---

func TestSQLite_ApplyOutcome(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ancestor := testSubmission("alice", nil)
	sub := testSubmission("bob", nil)
	require.NoError(t, st.CreateSubmission(ctx, ancestor))
	require.NoError(t, st.CreateSubmission(ctx, sub))

	now := time.Now().UTC().Truncate(time.Second)
	outcome := model.Outcome{
		ID:            uuid.New().String(),
		SubmissionID:  sub.ID,
		Result:        0.9,
		Source:        "market-report",
		AccuracyScore: 1.2,
		ValidatedAt:   now,
	}
	credits := []model.CreditLedgerEntry{{
		ID:                 uuid.New().String(),
		SubmissionID:       ancestor.ID,
		SourceDescendantID: sub.ID,
		CreditedAmount:     0.6,
		AppliedAt:          now,
	}}
	require.NoError(t, st.ApplyOutcome(ctx, outcome, credits))

	got, err := st.GetOutcome(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 1.2, got.AccuracyScore, 1e-9)

	// Status transitioned submitted -> validated.
	s, err := st.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusValidated, s.Status)

	ledger, err := st.ListCreditsForSubmission(ctx, ancestor.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.InDelta(t, 0.6, ledger[0].CreditedAmount, 1e-9)
}

func TestSQLite_ApplyOutcome_ReplaceIsIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ancestor := testSubmission("alice", nil)
	sub := testSubmission("bob", nil)
	require.NoError(t, st.CreateSubmission(ctx, ancestor))
	require.NoError(t, st.CreateSubmission(ctx, sub))

	now := time.Now().UTC().Truncate(time.Second)
	apply := func(result, credit float64) {
		outcome := model.Outcome{
			ID:            uuid.New().String(),
			SubmissionID:  sub.ID,
			Result:        result,
			Source:        "revalidation",
			AccuracyScore: result,
			ValidatedAt:   now,
		}
		credits := []model.CreditLedgerEntry{{
			ID:                 uuid.New().String(),
			SubmissionID:       ancestor.ID,
			SourceDescendantID: sub.ID,
			CreditedAmount:     credit,
			AppliedAt:          now,
		}}
		require.NoError(t, st.ApplyOutcome(ctx, outcome, credits))
	}

	apply(1.0, 0.5)
	apply(0.4, 0.2) // re-validation replaces, never stacks

	got, err := st.GetOutcome(ctx, sub.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, got.Result, 1e-9)

	ledger, err := st.ListCreditsForSubmission(ctx, ancestor.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.InDelta(t, 0.2, ledger[0].CreditedAmount, 1e-9)
}

func TestSQLite_ListOutcomesAndCreditsByOwner(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	mine := testSubmission("alice", nil)
	theirs := testSubmission("bob", nil)
	require.NoError(t, st.CreateSubmission(ctx, mine))
	require.NoError(t, st.CreateSubmission(ctx, theirs))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, st.ApplyOutcome(ctx, model.Outcome{
		ID: uuid.New().String(), SubmissionID: theirs.ID,
		Result: 1.0, Source: "s", AccuracyScore: 1.0, ValidatedAt: now,
	}, []model.CreditLedgerEntry{{
		ID: uuid.New().String(), SubmissionID: mine.ID,
		SourceDescendantID: theirs.ID, CreditedAmount: 0.5, AppliedAt: now,
	}}))

	outs, err := st.ListOutcomesByOwner(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, outs, 1)

	outs, err = st.ListOutcomesByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, outs)

	credits, err := st.ListCreditsByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, credits, 1)
	assert.InDelta(t, 0.5, credits[0].CreditedAmount, 1e-9)
}

// --- Profiles ---

func TestSQLite_Profile_Upsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p := model.Profile{
		OwnerID:          "alice",
		AccuracyRate:     0.75,
		CalibrationScore: 0.9,
		ReputationScore:  0.8,
		MeanDaysEarly:    120,
		TotalValidated:   4,
		CreditedTotal:    1.5,
		UpdatedAt:        time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, st.SaveProfile(ctx, p))

	p.AccuracyRate = 0.8
	require.NoError(t, st.SaveProfile(ctx, p))

	got, err := st.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, got.AccuracyRate, 1e-9)
	assert.Equal(t, 4, got.TotalValidated)

	_, err = st.GetProfile(ctx, "nobody")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSQLite_ListOwners(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateSubmission(ctx, testSubmission("alice", nil)))
	require.NoError(t, st.CreateSubmission(ctx, testSubmission("alice", nil)))
	require.NoError(t, st.CreateSubmission(ctx, testSubmission("bob", nil)))

	owners, err := st.ListOwners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, owners)
}
