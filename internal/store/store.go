// Package store persists fetch-cycle outcomes for the governance and
// compliance views: every validated envelope, contract violation, and
// transport failure is recorded with its provenance request ID.
package store

import (
	"context"
	"time"
)

// Outcome classifies one fetch cycle.
type Outcome string

const (
	// OutcomeValid means the envelope passed contract validation.
	OutcomeValid Outcome = "valid"
	// OutcomeContractViolation means validation rejected the envelope.
	OutcomeContractViolation Outcome = "contract_violation"
	// OutcomeTransportError means the fetch never produced an envelope.
	OutcomeTransportError Outcome = "transport_error"
)

// FetchRecord is one audited fetch cycle.
type FetchRecord struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	RequestID string    `json:"request_id,omitempty"`
	Outcome   Outcome   `json:"outcome"`

	// ContractVersion and Lifecycle are recorded when the envelope got
	// far enough to have them.
	ContractVersion string `json:"contract_version,omitempty"`
	Lifecycle       string `json:"lifecycle,omitempty"`

	// Field is the violated field path for contract violations.
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail,omitempty"`

	ObservedAt time.Time `json:"observed_at"`
}

// Filter selects audit records.
type Filter struct {
	Domain  string  `json:"domain,omitempty"`
	Outcome Outcome `json:"outcome,omitempty"`
	Limit   int     `json:"limit,omitempty"`
	Offset  int     `json:"offset,omitempty"`
}

// Store defines the audit persistence interface.
type Store interface {
	// RecordFetch appends one fetch outcome. ID and ObservedAt are
	// assigned when empty.
	RecordFetch(ctx context.Context, rec *FetchRecord) error

	// ListFetches returns records matching the filter, newest first.
	ListFetches(ctx context.Context, f Filter) ([]FetchRecord, error)

	// OutcomeCounts returns per-outcome totals for one domain, or for
	// all domains when domain is empty.
	OutcomeCounts(ctx context.Context, domain string) (map[Outcome]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100
