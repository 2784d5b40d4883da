package backprop

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/foresight/internal/lineage"
	"github.com/sells-group/foresight/internal/model"
	"github.com/sells-group/foresight/internal/store"
)

func newTestGraph(t *testing.T) (*lineage.Graph, *store.SQLiteStore) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return lineage.New(st, 0), st
}

func seed(t *testing.T, st store.Store, owner string) string {
	t.Helper()
	sub := model.Submission{
		ID:        uuid.New().String(),
		OwnerID:   owner,
		Text:      "idea",
		Status:    model.StatusSubmitted,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateSubmission(context.Background(), sub))
	return sub.ID
}

func TestCreditFraction(t *testing.T) {
	assert.InDelta(t, 0.5, CreditFraction(0.5, 1), 1e-9)
	assert.InDelta(t, 0.25, CreditFraction(0.5, 2), 1e-9)
	assert.InDelta(t, 0.125, CreditFraction(0.5, 3), 1e-9)
}

func TestPlan_DirectParentScenario(t *testing.T) {
	g, st := newTestGraph(t)
	ctx := context.Background()

	a := seed(t, st, "alice")
	b := seed(t, st, "alice")
	_, err := g.Link(ctx, a, b, model.RefinementTechnicalDepth, 0.3)
	require.NoError(t, err)

	// B scores 1.437; its direct parent A earns half.
	entries, err := Plan(ctx, g, b, 1.437, 0.5, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, a, entries[0].SubmissionID)
	assert.Equal(t, b, entries[0].SourceDescendantID)
	assert.InDelta(t, 0.7185, entries[0].CreditedAmount, 0.0001)
}

func TestPlan_DecaysDownTheChain(t *testing.T) {
	g, st := newTestGraph(t)
	ctx := context.Background()

	a := seed(t, st, "alice")
	b := seed(t, st, "bob")
	c := seed(t, st, "carol")
	_, err := g.Link(ctx, a, b, model.RefinementClarification, 0.1)
	require.NoError(t, err)
	_, err = g.Link(ctx, b, c, model.RefinementExpansion, 0.2)
	require.NoError(t, err)

	entries, err := Plan(ctx, g, c, 2.0, 0.5, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Nearest parent first.
	assert.Equal(t, b, entries[0].SubmissionID)
	assert.InDelta(t, 1.0, entries[0].CreditedAmount, 1e-9)
	assert.Equal(t, a, entries[1].SubmissionID)
	assert.InDelta(t, 0.5, entries[1].CreditedAmount, 1e-9)
}

func TestPlan_RootHasNoEntries(t *testing.T) {
	g, st := newTestGraph(t)

	root := seed(t, st, "alice")
	entries, err := Plan(context.Background(), g, root, 3.0, 0.5, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPlan_FallsBackToDefaultDecay(t *testing.T) {
	g, st := newTestGraph(t)
	ctx := context.Background()

	a := seed(t, st, "alice")
	b := seed(t, st, "alice")
	_, err := g.Link(ctx, a, b, model.RefinementPivot, 0)
	require.NoError(t, err)

	entries, err := Plan(ctx, g, b, 1.0, -3, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.InDelta(t, DefaultDecayFactor, entries[0].CreditedAmount, 1e-9)
}
