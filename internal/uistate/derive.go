// Package uistate derives the render state a presentation surface must
// show from a validated envelope or a rejection. It is the sole source of
// truth for fail-closed rendering: on any rejection the main content
// region is withheld entirely, with no retention of previously rendered
// data.
package uistate

import (
	"encoding/json"

	"github.com/reconai/stategate/internal/envelope"
)

// Kind is the top-level render decision.
type Kind string

const (
	// KindLoading renders only a loading affordance, before any fetch
	// has completed.
	KindLoading Kind = "loading"
	// KindContent renders the full payload.
	KindContent Kind = "content"
	// KindBanner renders a lifecycle banner; stale banners may carry
	// the payload alongside when the envelope did.
	KindBanner Kind = "banner"
	// KindRejected renders only a fail-closed rejection banner.
	KindRejected Kind = "rejected"
)

// RejectClass distinguishes why a fetch cycle was rejected. The two
// classes recover differently: a transport failure is worth retrying
// as-is, a contract violation is not.
type RejectClass string

const (
	RejectContractViolation RejectClass = "contract_violation"
	RejectTransportFailure  RejectClass = "transport_failure"
)

// Reject describes a rejected fetch cycle.
type Reject struct {
	Class RejectClass `json:"class"`
	// Field is set for contract violations: the offending field path.
	Field  string `json:"field,omitempty"`
	Detail string `json:"detail"`
}

// State is the derived render state for one panel.
type State struct {
	Domain string `json:"domain,omitempty"`
	Kind   Kind   `json:"kind"`

	// BannerVariant is the envelope lifecycle when Kind is banner.
	BannerVariant envelope.Lifecycle `json:"banner_variant,omitempty"`

	// Message is the banner text: the envelope's reason_message when
	// present, otherwise a generic fallback keyed by reason code.
	Message string `json:"message,omitempty"`

	ContractVersion string `json:"contract_version,omitempty"`
	GeneratedAt     string `json:"generated_at,omitempty"`

	// Payload is present only when the envelope made it renderable:
	// always on content, on stale banners when the server sent one.
	Payload json.RawMessage `json:"payload,omitempty"`

	// PolicyAcknowledged gates destructive actions. True only when a
	// successfully validated payload carries a non-null value in the
	// schema's acknowledgement field. The presentation layer must use
	// this as its sole source of truth for enabling such actions.
	PolicyAcknowledged bool `json:"policy_acknowledged"`

	// Reject is set when Kind is rejected.
	Reject *Reject `json:"reject,omitempty"`
}

// fallbackMessages cover envelopes that declare a reason code but omit
// the human-readable message.
var fallbackMessages = map[string]string{
	envelope.ReasonInsufficientData: "Not enough data yet to compute this view.",
	envelope.ReasonComputationError: "We hit a problem computing this view.",
	envelope.ReasonBackendTimeout:   "The computation timed out. Try refreshing.",
	envelope.ReasonDataStale:        "This view is based on older data.",
	envelope.ReasonNotConfigured:    "This view has not been set up yet.",
	envelope.ReasonNoTransactions:   "No transactions available for this period.",
	envelope.ReasonUnknown:          "This view is temporarily unavailable.",
}

const genericFallback = "This view is temporarily unavailable."

// Loading is the state before any fetch for the panel has completed.
func Loading(domain string) State {
	return State{Domain: domain, Kind: KindLoading}
}

// FromError maps a failed fetch cycle to a rejected state. A
// *envelope.Violation is classified as a contract violation; anything
// else (transport, HTTP, decode-before-validate) is a transport failure.
func FromError(domain string, err error) State {
	reject := &Reject{Class: RejectTransportFailure, Detail: err.Error()}
	if v, ok := err.(*envelope.Violation); ok {
		reject = &Reject{
			Class:  RejectContractViolation,
			Field:  v.Field,
			Detail: v.Error(),
		}
	}
	return State{Domain: domain, Kind: KindRejected, Reject: reject}
}

// FromEnvelope maps a validated envelope to its render state.
func FromEnvelope(schema *envelope.Schema, env *envelope.Envelope) State {
	s := State{
		Domain:          env.Domain,
		ContractVersion: env.ContractVersion,
		GeneratedAt:     env.GeneratedAt,
	}

	if env.Lifecycle == envelope.LifecycleSuccess {
		s.Kind = KindContent
		s.Payload = env.Payload
		s.PolicyAcknowledged = policyAcknowledged(schema, env)
		return s
	}

	s.Kind = KindBanner
	s.BannerVariant = env.Lifecycle
	s.Message = bannerMessage(env)
	// A stale envelope may carry a validated payload to show behind the
	// banner; the mapper renders what the envelope provides and nothing
	// more.
	if env.Lifecycle == envelope.LifecycleStale && env.HasPayload() {
		s.Payload = env.Payload
	}
	return s
}

func bannerMessage(env *envelope.Envelope) string {
	if env.ReasonMessage != "" {
		return env.ReasonMessage
	}
	if msg, ok := fallbackMessages[env.ReasonCode]; ok {
		return msg
	}
	return genericFallback
}

// policyAcknowledged reads the schema's acknowledgement field off a
// successful payload. Domains without an acknowledgement field never
// acknowledge; absence or null means not acknowledged.
func policyAcknowledged(schema *envelope.Schema, env *envelope.Envelope) bool {
	if schema.AckField == "" {
		return false
	}
	v, ok := env.PayloadField(schema.AckField)
	if !ok || v == nil {
		return false
	}
	ts, isStr := v.(string)
	return isStr && ts != ""
}
