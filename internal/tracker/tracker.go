// Package tracker is the write-side facade over the idea ledger: it owns
// submission intake, lineage linking, outcome validation with credit
// backpropagation, and the profile recomputes and notifications each write
// triggers.
package tracker

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/foresight/internal/backprop"
	"github.com/sells-group/foresight/internal/capsule"
	"github.com/sells-group/foresight/internal/lineage"
	"github.com/sells-group/foresight/internal/model"
	"github.com/sells-group/foresight/internal/notify"
	"github.com/sells-group/foresight/internal/reputation"
	"github.com/sells-group/foresight/internal/scoring"
	"github.com/sells-group/foresight/internal/store"
)

// Options tunes a Tracker.
type Options struct {
	MaxDepth    int     // ancestor walk safety limit; 0 = lineage.DefaultMaxDepth
	DecayFactor float64 // credit decay per ancestor step; 0 = backprop.DefaultDecayFactor
	Policy      *scoring.Policy
	Notifier    notify.Notifier
}

// Tracker coordinates all core operations against one store.
type Tracker struct {
	store       store.Store
	graph       *lineage.Graph
	agg         *reputation.Aggregator
	caps        *capsule.Service
	notifier    notify.Notifier
	decayFactor float64
	policy      *scoring.Policy
	locks       *chainLocks
}

// New creates a Tracker.
func New(st store.Store, opts Options) *Tracker {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	decay := opts.DecayFactor
	if decay <= 0 || decay > 1 {
		decay = backprop.DefaultDecayFactor
	}
	return &Tracker{
		store:       st,
		graph:       lineage.New(st, opts.MaxDepth),
		agg:         reputation.New(st),
		caps:        capsule.New(st),
		notifier:    notifier,
		decayFactor: decay,
		policy:      opts.Policy,
		locks:       newChainLocks(),
	}
}

// Submit records a new idea and returns its tracking id. Every call mints a
// fresh id; identical text is never deduplicated.
func (t *Tracker) Submit(ctx context.Context, ownerID, text string, confidence *float64, classification string) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", model.NewValidationError("owner_id", "must not be empty")
	}
	if strings.TrimSpace(text) == "" {
		return "", model.NewValidationError("text", "must not be empty")
	}
	if confidence != nil && (*confidence < 0 || *confidence > 1) {
		return "", model.NewValidationError("confidence", "must be in [0,1]")
	}

	sub := model.Submission{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		Text:           text,
		Confidence:     confidence,
		Classification: classification,
		Status:         model.StatusSubmitted,
		CreatedAt:      time.Now().UTC(),
	}
	if err := t.store.CreateSubmission(ctx, sub); err != nil {
		return "", err
	}

	zap.L().Info("submission created",
		zap.String("tracking_id", sub.ID),
		zap.String("owner_id", ownerID),
	)
	return sub.ID, nil
}

// Link records child as a refinement of parent and returns the edge id. The
// edge insert and the parent's submitted -> superseded transition commit
// atomically; a failed Link can be retried verbatim.
func (t *Tracker) Link(ctx context.Context, parentID, childID string, refType model.RefinementType, depthIncrease float64) (string, error) {
	release, err := t.lockChains(ctx, parentID, childID)
	if err != nil {
		return "", err
	}
	defer release()

	edgeID, err := t.graph.Link(ctx, parentID, childID, refType, depthIncrease)
	if err != nil {
		return "", err
	}

	zap.L().Info("lineage edge created",
		zap.String("edge_id", edgeID),
		zap.String("parent_id", parentID),
		zap.String("child_id", childID),
		zap.String("refinement_type", string(refType)),
	)
	return edgeID, nil
}

// RecordOutcome validates a submission against a real-world result, scores
// it, backpropagates decayed credit to its ancestors, and recomputes every
// affected owner profile. Re-recording replaces the prior outcome and all
// credit previously attributed to it.
func (t *Tracker) RecordOutcome(ctx context.Context, trackingID string, result float64, source string, validatedAt *time.Time) (string, error) {
	sub, err := t.store.GetSubmission(ctx, trackingID)
	if err != nil {
		return "", err
	}

	when := time.Now().UTC()
	if validatedAt != nil {
		when = validatedAt.UTC()
	}

	score, err := scoring.Score(result, sub.Confidence, scoring.DaysBetween(sub.CreatedAt, when))
	if err != nil {
		return "", err
	}

	release, err := t.lockChains(ctx, trackingID)
	if err != nil {
		return "", err
	}
	defer release()

	decay := t.policy.DecayFactor(sub.Classification, t.decayFactor)
	credits, err := backprop.Plan(ctx, t.graph, trackingID, score, decay, when)
	if err != nil {
		return "", err
	}

	outcome := model.Outcome{
		ID:            uuid.New().String(),
		SubmissionID:  trackingID,
		Result:        result,
		Source:        source,
		AccuracyScore: score,
		ValidatedAt:   when,
	}
	if err := t.store.ApplyOutcome(ctx, outcome, credits); err != nil {
		return "", err
	}

	owners, err := t.affectedOwners(ctx, sub.OwnerID, credits)
	if err != nil {
		return "", err
	}
	for _, owner := range owners {
		if _, err := t.agg.Recompute(ctx, owner); err != nil {
			return "", err
		}
	}

	zap.L().Info("outcome recorded",
		zap.String("tracking_id", trackingID),
		zap.Float64("result", result),
		zap.Float64("accuracy_score", score),
		zap.Int("ancestors_credited", len(credits)),
	)

	t.dispatch(notify.Event{
		Type:         notify.EventOutcomeRecorded,
		OwnerID:      sub.OwnerID,
		SubmissionID: trackingID,
		Details:      map[string]any{"result": result, "accuracy_score": score},
		Timestamp:    when,
	})
	for _, owner := range owners {
		t.dispatch(notify.Event{
			Type:      notify.EventProfileUpdated,
			OwnerID:   owner,
			Timestamp: when,
		})
	}

	return outcome.ID, nil
}

// Profile returns the owner's accuracy profile, deriving it on first read.
func (t *Tracker) Profile(ctx context.Context, ownerID string) (*model.Profile, error) {
	p, err := t.store.GetProfile(ctx, ownerID)
	if err == nil {
		return p, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	return t.agg.Recompute(ctx, ownerID)
}

// RecomputeAll rebuilds every owner profile. Recovery path.
func (t *Tracker) RecomputeAll(ctx context.Context, concurrency int) (int, error) {
	return t.agg.RecomputeAll(ctx, concurrency)
}

// Timeline returns the owner's time capsule.
func (t *Tracker) Timeline(ctx context.Context, ownerID string, since *time.Time) iter.Seq2[model.CapsuleEntry, error] {
	return t.caps.Timeline(ctx, ownerID, since)
}

// Ancestors walks the refinement chain of a submission up to the root.
func (t *Tracker) Ancestors(ctx context.Context, trackingID string) iter.Seq2[model.AncestorStep, error] {
	return t.graph.Ancestors(ctx, trackingID)
}

// Descendants returns a submission's direct children.
func (t *Tracker) Descendants(ctx context.Context, trackingID string) ([]model.Submission, error) {
	return t.graph.Descendants(ctx, trackingID)
}

// Get returns a single submission by tracking id.
func (t *Tracker) Get(ctx context.Context, trackingID string) (*model.Submission, error) {
	return t.store.GetSubmission(ctx, trackingID)
}

// rootOf resolves the chain root of a submission, bounded by the walk limit.
func (t *Tracker) rootOf(ctx context.Context, id string) (string, error) {
	root := id
	for step, err := range t.graph.Ancestors(ctx, id) {
		if err != nil {
			return "", err
		}
		root = step.Ancestor.ID
	}
	return root, nil
}

// lockChains locks the chains containing the given submissions, keyed by
// chain root. Roots are resolved before locking and verified after: a
// concurrent link can re-root a chain between resolve and acquire, so a
// stale key means release and retry with the fresh roots.
func (t *Tracker) lockChains(ctx context.Context, ids ...string) (func(), error) {
	for {
		keys := make([]string, len(ids))
		for i, id := range ids {
			root, err := t.rootOf(ctx, id)
			if err != nil {
				return nil, err
			}
			keys[i] = root
		}

		release := t.locks.acquire(keys...)

		stable := true
		for i, id := range ids {
			root, err := t.rootOf(ctx, id)
			if err != nil {
				release()
				return nil, err
			}
			if root != keys[i] {
				stable = false
				break
			}
		}
		if stable {
			return release, nil
		}
		release()
	}
}

// affectedOwners returns the deduplicated owner set touched by an outcome:
// the validated submission's owner plus every credited ancestor's owner.
func (t *Tracker) affectedOwners(ctx context.Context, ownerID string, credits []model.CreditLedgerEntry) ([]string, error) {
	seen := map[string]bool{ownerID: true}
	owners := []string{ownerID}
	for _, c := range credits {
		anc, err := t.store.GetSubmission(ctx, c.SubmissionID)
		if err != nil {
			return nil, err
		}
		if !seen[anc.OwnerID] {
			seen[anc.OwnerID] = true
			owners = append(owners, anc.OwnerID)
		}
	}
	return owners, nil
}

// dispatch sends a notification without blocking or failing the write path.
func (t *Tracker) dispatch(ev notify.Event) {
	go t.notifier.Notify(context.Background(), ev)
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
