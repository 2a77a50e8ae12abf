// Package envelope implements the versioned lifecycle envelope contract
// spoken between the ReconAI backend and its rendering surfaces. Every
// domain response is wrapped in an envelope carrying a contract version,
// a server-declared lifecycle, and an optional payload; nothing downstream
// may touch the payload until the envelope has passed validation.
package envelope

import (
	"encoding/json"
	"fmt"
)

// Lifecycle is the server-declared state of a domain's computed data.
// It is distinct from HTTP status: a 200 response can still carry
// lifecycle "failed".
type Lifecycle string

const (
	LifecycleSuccess Lifecycle = "success"
	LifecyclePending Lifecycle = "pending"
	LifecycleFailed  Lifecycle = "failed"
	LifecycleStale   Lifecycle = "stale"
)

// lifecycles is the closed set accepted by the validator.
var lifecycles = []string{
	string(LifecycleSuccess),
	string(LifecyclePending),
	string(LifecycleFailed),
	string(LifecycleStale),
}

// Envelope is a validated domain response. Fields are only trustworthy
// when the value was produced by Validate; raw backend JSON must never be
// converted into an Envelope any other way.
type Envelope struct {
	Domain          string          `json:"domain"`
	ContractVersion string          `json:"contract_version"`
	Lifecycle       Lifecycle       `json:"lifecycle"`
	ReasonCode      string          `json:"reason_code,omitempty"`
	ReasonMessage   string          `json:"reason_message,omitempty"`
	GeneratedAt     string          `json:"generated_at"`

	// Payload is the validated domain payload as raw JSON, nil when the
	// envelope carried none. Decode into the domain's typed struct with
	// the per-domain helpers.
	Payload json.RawMessage `json:"payload,omitempty"`

	// fields is the decoded payload object, kept for generic lookups
	// such as the policy-acknowledgement gate.
	fields map[string]any
}

// HasPayload reports whether the envelope carried a non-null payload.
func (e *Envelope) HasPayload() bool {
	return e != nil && e.Payload != nil
}

// PayloadField returns a top-level payload field by name. The second
// return is false when there is no payload or the field is absent.
func (e *Envelope) PayloadField(name string) (any, bool) {
	if e == nil || e.fields == nil {
		return nil, false
	}
	v, ok := e.fields[name]
	return v, ok
}

// Violation is the typed rejection produced by Validate. A single
// violated field rejects the entire envelope; the rest of the system is
// built to trust that an envelope either validated in full or was never
// handed out.
type Violation struct {
	// Field is the JSON path of the offending field, e.g.
	// "cfo_version" or "items[2].confidence". "root" means the raw
	// value was not an object at all.
	Field    string
	Expected string
	Actual   any
}

func (v *Violation) Error() string {
	return fmt.Sprintf("contract violation at %q: expected %s, got %v", v.Field, v.Expected, v.Actual)
}

// violate is shorthand used throughout the validator.
func violate(field, expected string, actual any) *Violation {
	return &Violation{Field: field, Expected: expected, Actual: actual}
}
