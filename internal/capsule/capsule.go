// Package capsule provides the read-only time capsule: a chronological,
// per-owner projection of submissions and their validation history.
package capsule

import (
	"context"
	"iter"
	"time"

	"github.com/sells-group/foresight/internal/model"
	"github.com/sells-group/foresight/internal/store"
)

// Service reads time capsules. Strictly read-only; it never writes.
type Service struct {
	store store.Store
}

// New creates a capsule Service backed by the given store.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// Timeline returns a lazy, finite, restartable, chronologically ascending
// sequence of an owner's submissions, each joined with its outcome, parent
// link, and direct-children count. since, when non-nil, drops submissions
// created before it. Each range over the sequence re-reads the store.
func (s *Service) Timeline(ctx context.Context, ownerID string, since *time.Time) iter.Seq2[model.CapsuleEntry, error] {
	return func(yield func(model.CapsuleEntry, error) bool) {
		subs, err := s.store.ListSubmissionsByOwner(ctx, ownerID)
		if err != nil {
			yield(model.CapsuleEntry{}, err)
			return
		}

		for _, sub := range subs {
			if since != nil && sub.CreatedAt.Before(*since) {
				continue
			}

			entry := model.CapsuleEntry{Submission: sub}

			outcome, err := s.store.GetOutcome(ctx, sub.ID)
			if err != nil {
				yield(model.CapsuleEntry{}, err)
				return
			}
			if outcome != nil {
				entry.Outcome = outcome
				score := outcome.AccuracyScore
				entry.AccuracyScore = &score
			}

			parent, err := s.store.ParentEdge(ctx, sub.ID)
			if err != nil {
				yield(model.CapsuleEntry{}, err)
				return
			}
			entry.ParentEdge = parent

			children, err := s.store.ChildEdges(ctx, sub.ID)
			if err != nil {
				yield(model.CapsuleEntry{}, err)
				return
			}
			entry.ChildCount = len(children)

			if !yield(entry, nil) {
				return
			}
		}
	}
}
