// Package panel runs the fetch cycle for one dashboard panel: fetch the
// domain envelope, validate it, derive the render state, and record the
// outcome for audit. Each panel owns its state exclusively; the only
// cross-request coordination is the sequence guard that keeps an
// out-of-order response from clobbering a newer one.
package panel

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/reconai/stategate/internal/envelope"
	"github.com/reconai/stategate/internal/resilience"
	"github.com/reconai/stategate/internal/store"
	"github.com/reconai/stategate/internal/uistate"
	"github.com/reconai/stategate/pkg/reconapi"
)

// Fetcher fetches raw domain envelopes. reconapi.Client satisfies it.
type Fetcher interface {
	FetchEnvelope(ctx context.Context, domain string) (*reconapi.EnvelopeResponse, error)
}

// Panel is the fetch-cycle runtime for one domain.
type Panel struct {
	domain  string
	schema  *envelope.Schema
	fetcher Fetcher
	audit   store.Store
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	limiter *rate.Limiter

	mu sync.Mutex
	// issued is the sequence of the newest request handed out; applied
	// is the sequence whose state is currently rendered. A completed
	// fetch applies only while it is still the newest issued.
	issued  uint64
	applied uint64
	state   uistate.State
}

// Option configures a Panel.
type Option func(*Panel)

// WithAudit records every fetch outcome to the store. Audit failures
// are logged and never affect the derived state.
func WithAudit(s store.Store) Option {
	return func(p *Panel) { p.audit = s }
}

// WithRetry overrides the retry settings for transient fetch failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(p *Panel) { p.retry = cfg }
}

// WithBreaker guards the panel's backend with a circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(p *Panel) { p.breaker = cb }
}

// WithRefreshLimit rate-limits refreshes; a refresh past the limit is
// skipped and returns the current state unchanged.
func WithRefreshLimit(limit rate.Limit, burst int) Option {
	return func(p *Panel) { p.limiter = rate.NewLimiter(limit, burst) }
}

// New creates a panel for a known domain.
func New(domain string, fetcher Fetcher, opts ...Option) (*Panel, error) {
	schema, err := envelope.SchemaFor(domain)
	if err != nil {
		return nil, err
	}
	p := &Panel{
		domain:  domain,
		schema:  schema,
		fetcher: fetcher,
		retry:   resilience.DefaultRetryConfig(),
		state:   uistate.Loading(domain),
	}
	p.retry.OnRetry = resilience.RetryLogger(domain)
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Domain returns the panel's domain name.
func (p *Panel) Domain() string { return p.domain }

// State returns the currently applied render state.
func (p *Panel) State() uistate.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Refresh runs one fetch cycle and returns the panel's state afterwards.
// If the cycle's response was superseded by a newer request while in
// flight, it is discarded and the newer state stands.
func (p *Panel) Refresh(ctx context.Context) uistate.State {
	if p.limiter != nil && !p.limiter.Allow() {
		zap.L().Debug("refresh rate-limited", zap.String("domain", p.domain))
		return p.State()
	}

	seq := p.nextSeq()

	resp, fetchErr := p.fetch(ctx)

	var next uistate.State
	rec := store.FetchRecord{Domain: p.domain}

	switch {
	case fetchErr != nil:
		next = uistate.FromError(p.domain, fetchErr)
		rec.Outcome = store.OutcomeTransportError
		rec.Detail = fetchErr.Error()

	default:
		rec.RequestID = resp.RequestID
		env, verr := envelope.Validate(resp.Body, p.schema)
		if verr != nil {
			next = uistate.FromError(p.domain, verr)
			rec.Outcome = store.OutcomeContractViolation
			rec.Detail = verr.Error()
			if v, ok := verr.(*envelope.Violation); ok {
				rec.Field = v.Field
			}
		} else {
			next = uistate.FromEnvelope(p.schema, env)
			rec.Outcome = store.OutcomeValid
			rec.ContractVersion = env.ContractVersion
			rec.Lifecycle = string(env.Lifecycle)
		}
	}

	p.recordAudit(ctx, &rec)
	return p.apply(seq, next)
}

func (p *Panel) nextSeq() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issued++
	return p.issued
}

// apply installs next only if seq is still the newest issued request;
// stale completions are discarded silently. Returns whatever state is
// rendered afterwards.
func (p *Panel) apply(seq uint64, next uistate.State) uistate.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq == p.issued && seq > p.applied {
		p.applied = seq
		p.state = next
	} else {
		zap.L().Debug("discarding superseded fetch response",
			zap.String("domain", p.domain),
			zap.Uint64("seq", seq),
			zap.Uint64("latest", p.issued),
		)
	}
	return p.state
}

func (p *Panel) fetch(ctx context.Context) (*reconapi.EnvelopeResponse, error) {
	do := func(ctx context.Context) (*reconapi.EnvelopeResponse, error) {
		return resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*reconapi.EnvelopeResponse, error) {
			return p.fetcher.FetchEnvelope(ctx, p.domain)
		})
	}
	if p.breaker == nil {
		return do(ctx)
	}
	return resilience.ExecuteVal(ctx, p.breaker, do)
}

func (p *Panel) recordAudit(ctx context.Context, rec *store.FetchRecord) {
	if p.audit == nil {
		return
	}
	if err := p.audit.RecordFetch(ctx, rec); err != nil {
		zap.L().Warn("audit record failed",
			zap.String("domain", p.domain),
			zap.String("outcome", string(rec.Outcome)),
			zap.Error(err),
		)
	}
}

// Registry holds the panels for every known domain.
type Registry struct {
	panels map[string]*Panel
	order  []string
}

// NewRegistry indexes panels by domain.
func NewRegistry(panels ...*Panel) *Registry {
	r := &Registry{panels: make(map[string]*Panel, len(panels))}
	for _, p := range panels {
		r.panels[p.domain] = p
		r.order = append(r.order, p.domain)
	}
	return r
}

// Get returns the panel for a domain.
func (r *Registry) Get(domain string) (*Panel, bool) {
	p, ok := r.panels[domain]
	return p, ok
}

// Domains lists registered domains in registration order.
func (r *Registry) Domains() []string {
	return append([]string(nil), r.order...)
}

// RefreshAll refreshes every panel concurrently and returns the
// resulting states by domain. Individual failures surface as rejected
// states, not errors.
func (r *Registry) RefreshAll(ctx context.Context) map[string]uistate.State {
	var mu sync.Mutex
	states := make(map[string]uistate.State, len(r.panels))

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range r.panels {
		g.Go(func() error {
			s := p.Refresh(ctx)
			mu.Lock()
			states[p.domain] = s
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return states
}
