// Package reputation derives per-owner accuracy profiles from validation
// history. A profile is never incrementally patched: every recompute
// rebuilds it from outcomes, lineage, and the credit ledger alone, so a
// full recompute is always a safe recovery path.
package reputation

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"go.uber.org/zap"

	"github.com/sells-group/foresight/internal/model"
	"github.com/sells-group/foresight/internal/scoring"
	"github.com/sells-group/foresight/internal/store"
)

// Reputation blend weights.
const (
	accuracyWeight    = 0.4
	calibrationWeight = 0.3
	daysEarlyWeight   = 0.3
)

// Aggregator recomputes owner profiles.
type Aggregator struct {
	store store.Store
}

// New creates an Aggregator backed by the given store.
func New(st store.Store) *Aggregator {
	return &Aggregator{store: st}
}

// Recompute rebuilds and persists the profile for ownerID from scratch.
// Owners with no validated submissions get a zeroed profile.
func (a *Aggregator) Recompute(ctx context.Context, ownerID string) (*model.Profile, error) {
	subs, err := a.store.ListSubmissionsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	outcomes, err := a.store.ListOutcomesByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	credits, err := a.store.ListCreditsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	createdAt := make(map[string]time.Time, len(subs))
	confidence := make(map[string]*float64, len(subs))
	for _, s := range subs {
		createdAt[s.ID] = s.CreatedAt
		confidence[s.ID] = s.Confidence
	}

	var (
		validated      int
		correct        int
		daysEarlySum   float64
		calibrationSum float64
		calibrated     int
	)
	for _, o := range outcomes {
		created, ok := createdAt[o.SubmissionID]
		if !ok {
			continue // outcome for a submission this owner no longer holds
		}
		validated++
		if o.Result >= 0.5 {
			correct++
		}
		days := scoring.DaysBetween(created, o.ValidatedAt)
		if days < 0 {
			days = 0
		}
		daysEarlySum += days
		if conf := confidence[o.SubmissionID]; conf != nil {
			calibrationSum += math.Abs(*conf - o.Result)
			calibrated++
		}
	}

	var creditedTotal float64
	for _, c := range credits {
		creditedTotal += c.CreditedAmount
	}

	p := model.Profile{
		OwnerID:        ownerID,
		TotalValidated: validated,
		CreditedTotal:  creditedTotal,
		UpdatedAt:      time.Now().UTC(),
	}
	if validated > 0 {
		p.AccuracyRate = float64(correct) / float64(validated)
		p.MeanDaysEarly = daysEarlySum / float64(validated)

		// No declared confidence on any validated submission means no
		// observed miscalibration.
		p.CalibrationScore = 1
		if calibrated > 0 {
			p.CalibrationScore = 1 - calibrationSum/float64(calibrated)
		}

		daysEarlyNorm := math.Min(math.Max(p.MeanDaysEarly/365.0, 0), 1)
		p.ReputationScore = accuracyWeight*p.AccuracyRate +
			calibrationWeight*p.CalibrationScore +
			daysEarlyWeight*daysEarlyNorm
	}

	if err := a.store.SaveProfile(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// RecomputeAll rebuilds every owner's profile, bounded to concurrency
// parallel owners. Recovery path for any suspected inconsistency.
func (a *Aggregator) RecomputeAll(ctx context.Context, concurrency int) (int, error) {
	owners, err := a.store.ListOwners(ctx)
	if err != nil {
		return 0, err
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, owner := range owners {
		g.Go(func() error {
			if _, err := a.Recompute(ctx, owner); err != nil {
				return err
			}
			zap.L().Debug("profile recomputed", zap.String("owner_id", owner))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(owners), nil
}
