// Package backprop distributes distance-decayed credit to ancestor
// submissions when a descendant is validated.
package backprop

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/foresight/internal/lineage"
	"github.com/sells-group/foresight/internal/model"
)

// DefaultDecayFactor halves the credit at each step up the tree.
const DefaultDecayFactor = 0.5

// CreditFraction is the share of a descendant's accuracy score credited to
// the ancestor at path distance dist (nearest parent = 1).
func CreditFraction(decayFactor float64, dist int) float64 {
	return math.Pow(decayFactor, float64(dist))
}

// Plan walks the ancestors of submissionID and returns the complete credit
// ledger entry set for this validation. The caller applies it as an atomic
// replace of any entries previously credited from the same descendant, so
// re-running for a re-validated outcome never double-counts.
func Plan(ctx context.Context, graph *lineage.Graph, submissionID string, accuracyScore, decayFactor float64, appliedAt time.Time) ([]model.CreditLedgerEntry, error) {
	if decayFactor <= 0 || decayFactor > 1 {
		decayFactor = DefaultDecayFactor
	}

	var entries []model.CreditLedgerEntry
	for step, err := range graph.Ancestors(ctx, submissionID) {
		if err != nil {
			return nil, err
		}
		entries = append(entries, model.CreditLedgerEntry{
			ID:                 uuid.New().String(),
			SubmissionID:       step.Ancestor.ID,
			SourceDescendantID: submissionID,
			CreditedAmount:     accuracyScore * CreditFraction(decayFactor, step.Distance),
			AppliedAt:          appliedAt,
		})
	}
	return entries, nil
}
