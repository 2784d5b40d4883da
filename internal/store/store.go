package store

import (
	"context"

	"github.com/sells-group/foresight/internal/model"
)

// Store defines the persistence interface for the idea ledger.
//
// Write methods are all-or-nothing: no call leaves partial state behind on
// failure. ApplyLink bundles the edge insert with the parent's
// submitted->superseded transition; ApplyOutcome bundles the outcome
// replace, the status transition, and the full credit-ledger replace for
// one validated submission.
type Store interface {
	// Submissions
	CreateSubmission(ctx context.Context, sub model.Submission) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	ListSubmissionsByOwner(ctx context.Context, ownerID string) ([]model.Submission, error)

	// Lineage
	ApplyLink(ctx context.Context, edge model.LineageEdge) error
	ParentEdge(ctx context.Context, childID string) (*model.LineageEdge, error)
	ChildEdges(ctx context.Context, parentID string) ([]model.LineageEdge, error)

	// Outcomes
	GetOutcome(ctx context.Context, submissionID string) (*model.Outcome, error)
	ListOutcomesByOwner(ctx context.Context, ownerID string) ([]model.Outcome, error)
	ApplyOutcome(ctx context.Context, outcome model.Outcome, credits []model.CreditLedgerEntry) error

	// Credit ledger
	ListCreditsForSubmission(ctx context.Context, submissionID string) ([]model.CreditLedgerEntry, error)
	ListCreditsByOwner(ctx context.Context, ownerID string) ([]model.CreditLedgerEntry, error)

	// Profiles
	SaveProfile(ctx context.Context, p model.Profile) error
	GetProfile(ctx context.Context, ownerID string) (*model.Profile, error)
	ListOwners(ctx context.Context) ([]string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
