package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/hunt"
	"github.com/sells-group/lead-engine/internal/leads"
	"github.com/sells-group/lead-engine/internal/resilience"
	"github.com/sells-group/lead-engine/internal/store"
	"github.com/sells-group/lead-engine/pkg/anthropic"
)

// engineEnv holds the store and the engine service used by every command.
type engineEnv struct {
	Store   store.LeadStore
	Service *leads.Service
}

// Close releases the store.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for mode, opens and migrates the store and
// builds the service. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	svc, err := leads.NewService(st, cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	zap.L().Debug("engine initialized", zap.String("driver", cfg.Store.Driver))
	return &engineEnv{Store: st, Service: svc}, nil
}

func initStore(ctx context.Context) (store.LeadStore, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leads.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// newHunter builds a lead hunter over the env's ingest pipeline.
func newHunter(env *engineEnv) *hunt.Hunter {
	client := anthropic.NewClient(cfg.Anthropic.Key)
	return hunt.New(client, env.Service.Ingest,
		hunt.WithModel(cfg.Anthropic.Model, cfg.Anthropic.MaxTokens),
		hunt.WithRequestsPerMinute(cfg.Anthropic.RequestsPerMinute),
		hunt.WithRetryPolicy(resilience.PolicyFromConfig(
			cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs,
		)),
	)
}
