package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/foresight/internal/notify"
	"github.com/sells-group/foresight/internal/scoring"
	"github.com/sells-group/foresight/internal/store"
	"github.com/sells-group/foresight/internal/tracker"
)

// env bundles the store and tracker a command operates on.
type env struct {
	Store   store.Store
	Tracker *tracker.Tracker
}

// initEnv opens the configured store, runs migrations, and wires the tracker.
func initEnv(ctx context.Context) (*env, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.EventsPerSec,
			time.Duration(cfg.Notify.TimeoutSecs)*time.Second)
	}

	var policy *scoring.Policy
	if cfg.Scoring.PolicyFile != "" {
		policy, err = scoring.LoadPolicy(cfg.Scoring.PolicyFile)
		if err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
	}

	t := tracker.New(st, tracker.Options{
		MaxDepth:    cfg.Lineage.MaxDepth,
		DecayFactor: cfg.Scoring.DepthDecayFactor,
		Policy:      policy,
		Notifier:    notifier,
	})
	return &env{Store: st, Tracker: t}, nil
}

func (e *env) Close() {
	e.Store.Close() //nolint:errcheck
}

// printJSON renders a command result to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
