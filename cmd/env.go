package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/reconai/stategate/internal/config"
	"github.com/reconai/stategate/internal/envelope"
	"github.com/reconai/stategate/internal/panel"
	"github.com/reconai/stategate/internal/resilience"
	"github.com/reconai/stategate/internal/store"
	"github.com/reconai/stategate/pkg/reconapi"
)

// gateEnv wires the backend client, audit store, and panel registry.
type gateEnv struct {
	Client   reconapi.Client
	Store    store.Store
	Registry *panel.Registry
}

// initGate builds the runtime environment from config. withStore=false
// skips the audit store for one-shot commands.
func initGate(ctx context.Context, cfg *config.Config, withStore bool) (*gateEnv, error) {
	client := newBackendClient(cfg)

	var st store.Store
	if withStore {
		var err error
		st, err = openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	retry := resilience.DefaultRetryConfig()
	if cfg.Backend.Retry.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.Backend.Retry.MaxAttempts
	}
	if cfg.Backend.Retry.InitialBackoffMS > 0 {
		retry.InitialBackoff = time.Duration(cfg.Backend.Retry.InitialBackoffMS) * time.Millisecond
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	if cfg.Backend.Breaker.FailureThreshold > 0 {
		breakerCfg.FailureThreshold = cfg.Backend.Breaker.FailureThreshold
	}
	if cfg.Backend.Breaker.ResetTimeoutSecs > 0 {
		breakerCfg.ResetTimeout = time.Duration(cfg.Backend.Breaker.ResetTimeoutSecs) * time.Second
	}

	refreshLimit := rate.Inf
	if cfg.Refresh.MinIntervalSecs > 0 {
		refreshLimit = rate.Every(time.Duration(cfg.Refresh.MinIntervalSecs) * time.Second)
	}
	burst := cfg.Refresh.Burst
	if burst <= 0 {
		burst = 1
	}

	var panels []*panel.Panel
	for _, domain := range envelope.Domains() {
		opts := []panel.Option{
			panel.WithRetry(retry),
			panel.WithBreaker(resilience.NewCircuitBreaker(breakerCfg)),
			panel.WithRefreshLimit(refreshLimit, burst),
		}
		if st != nil {
			opts = append(opts, panel.WithAudit(st))
		}
		p, err := panel.New(domain, client, opts...)
		if err != nil {
			if st != nil {
				st.Close()
			}
			return nil, eris.Wrapf(err, "init panel %s", domain)
		}
		panels = append(panels, p)
	}

	return &gateEnv{
		Client:   client,
		Store:    st,
		Registry: panel.NewRegistry(panels...),
	}, nil
}

func (e *gateEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

func newBackendClient(cfg *config.Config) reconapi.Client {
	opts := []reconapi.Option{
		reconapi.WithTimeout(cfg.Backend.Timeout()),
	}
	for domain, path := range map[string]string{
		envelope.DomainCore:         cfg.Backend.Endpoints.Core,
		envelope.DomainCFO:          cfg.Backend.Endpoints.CFO,
		envelope.DomainIntelligence: cfg.Backend.Endpoints.Intelligence,
	} {
		if path != "" {
			opts = append(opts, reconapi.WithEndpoint(domain, path))
		}
	}
	return reconapi.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, opts...)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DSN, &cfg.Store.Pool)
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.DSN)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open audit store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate audit store")
	}
	return st, nil
}
