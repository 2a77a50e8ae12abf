package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconai/stategate/internal/envelope"
	"github.com/reconai/stategate/internal/envtest"
	"github.com/reconai/stategate/internal/panel"
	"github.com/reconai/stategate/internal/resilience"
	"github.com/reconai/stategate/internal/store"
	"github.com/reconai/stategate/internal/uistate"
	"github.com/reconai/stategate/pkg/reconapi"
)

// stubFetcher serves canned bodies per domain.
type stubFetcher struct {
	bodies map[string][]byte
}

func (f *stubFetcher) FetchEnvelope(ctx context.Context, domain string) (*reconapi.EnvelopeResponse, error) {
	return &reconapi.EnvelopeResponse{Body: f.bodies[domain], RequestID: "req-" + domain}, nil
}

func newTestRouter(t *testing.T, bodies map[string][]byte) (http.Handler, *panel.Registry, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	fetcher := &stubFetcher{bodies: bodies}
	var panels []*panel.Panel
	for _, domain := range envelope.Domains() {
		p, err := panel.New(domain, fetcher,
			panel.WithRetry(resilience.RetryConfig{MaxAttempts: 1}),
			panel.WithAudit(st),
		)
		require.NoError(t, err)
		panels = append(panels, p)
	}
	reg := panel.NewRegistry(panels...)

	return newRouter(reg, st, nil), reg, st
}

func defaultBodies() map[string][]byte {
	return map[string][]byte{
		envelope.DomainCore:         envtest.Valid(envelope.DomainCore),
		envelope.DomainCFO:          envtest.Valid(envelope.DomainCFO),
		envelope.DomainIntelligence: envtest.Valid(envelope.DomainIntelligence),
	}
}

func doRequest(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	h, _, _ := newTestRouter(t, defaultBodies())

	rec := doRequest(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_StateLifecycle(t *testing.T) {
	h, _, _ := newTestRouter(t, defaultBodies())

	// Before any refresh the panel is loading.
	rec := doRequest(t, h, http.MethodGet, "/v1/state/cfo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var s uistate.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, uistate.KindLoading, s.Kind)

	// Refresh fetches and validates.
	rec = doRequest(t, h, http.MethodPost, "/v1/state/cfo/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, uistate.KindContent, s.Kind)

	// The state endpoint now serves the refreshed state.
	rec = doRequest(t, h, http.MethodGet, "/v1/state/cfo", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, uistate.KindContent, s.Kind)
}

func TestRouter_StateUnknownDomain(t *testing.T) {
	h, _, _ := newTestRouter(t, defaultBodies())

	rec := doRequest(t, h, http.MethodGet, "/v1/state/billing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_RefreshAll(t *testing.T) {
	bodies := defaultBodies()
	bodies[envelope.DomainCFO] = envtest.Invalid(envelope.DomainCFO, envtest.MutUnknownVersion)
	h, _, _ := newTestRouter(t, bodies)

	rec := doRequest(t, h, http.MethodPost, "/v1/state/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var states map[string]uistate.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &states))
	require.Len(t, states, 3)
	assert.Equal(t, uistate.KindContent, states["core"].Kind)
	assert.Equal(t, uistate.KindRejected, states["cfo"].Kind)
}

func TestRouter_ConfirmAction(t *testing.T) {
	bodies := defaultBodies()
	bodies[envelope.DomainCore] = envtest.Valid(envelope.DomainCore,
		envtest.WithPayloadField("summary", "policy_acknowledged_at", "2024-02-03T09:30:00Z"),
	)
	h, reg, _ := newTestRouter(t, bodies)

	// Policy not yet acknowledged: the core panel has not refreshed.
	rec := doRequest(t, h, http.MethodPost, "/v1/actions/unlink_bank_account/confirm",
		[]byte(`{"phrase":"UNLINK BANK ACCOUNT"}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	p, ok := reg.Get("core")
	require.True(t, ok)
	p.Refresh(context.Background())

	tests := []struct {
		name   string
		phrase string
		status int
	}{
		{name: "exact phrase", phrase: "UNLINK BANK ACCOUNT", status: http.StatusOK},
		{name: "wrong case", phrase: "unlink bank account", status: http.StatusForbidden},
		{name: "incomplete", phrase: "UNLINK BANK", status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(map[string]string{"phrase": tt.phrase})
			rec := doRequest(t, h, http.MethodPost, "/v1/actions/unlink_bank_account/confirm", body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	// Non-destructive export needs only the phrase.
	rec = doRequest(t, h, http.MethodPost, "/v1/actions/export_my_data/confirm",
		[]byte(`{"phrase":"EXPORT MY DATA"}`))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/v1/actions/format_disk/confirm",
		[]byte(`{"phrase":"whatever"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_AuditEndpoints(t *testing.T) {
	bodies := defaultBodies()
	bodies[envelope.DomainCFO] = envtest.Invalid(envelope.DomainCFO, envtest.MutUnknownVersion)
	h, _, _ := newTestRouter(t, bodies)

	doRequest(t, h, http.MethodPost, "/v1/state/refresh", nil)

	rec := doRequest(t, h, http.MethodGet, "/v1/audit/fetches?outcome=contract_violation", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var records []store.FetchRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "cfo", records[0].Domain)
	assert.Equal(t, "cfo_version", records[0].Field)
	assert.Equal(t, "req-cfo", records[0].RequestID)

	rec = doRequest(t, h, http.MethodGet, "/v1/audit/summary?domain=cfo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var counts map[store.Outcome]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	assert.Equal(t, 1, counts[store.OutcomeContractViolation])

	// Empty result set serializes as [], not null.
	rec = doRequest(t, h, http.MethodGet, "/v1/audit/fetches?domain=nonexistent", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
