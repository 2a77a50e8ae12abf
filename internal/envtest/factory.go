// Package envtest builds envelope fixtures for tests and backend mocks.
// Valid produces envelopes that are valid by construction: it derives
// required fields from the requested lifecycle so a caller cannot end up
// with an accidentally-broken fixture. Deliberately broken objects come
// only from Invalid, which keeps the two kinds of fixture impossible to
// confuse in a test suite.
package envtest

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/reconai/stategate/internal/envelope"
)

// GeneratedAt is the fixed timestamp stamped on built fixtures.
const GeneratedAt = "2024-01-01T00:00:00Z"

// Override mutates the raw envelope object before it is serialized.
type Override func(obj map[string]any)

// WithLifecycle sets the lifecycle. Off-success lifecycles get a valid
// default reason code and a null payload (required-field derivation);
// pass further overrides to change either.
func WithLifecycle(lc envelope.Lifecycle) Override {
	return func(obj map[string]any) {
		obj["lifecycle"] = string(lc)
	}
}

// WithReasonCode sets reason_code.
func WithReasonCode(code string) Override {
	return func(obj map[string]any) {
		obj["reason_code"] = code
	}
}

// WithReasonMessage sets reason_message.
func WithReasonMessage(msg string) Override {
	return func(obj map[string]any) {
		obj["reason_message"] = msg
	}
}

// WithVersion sets the domain's contract version field.
func WithVersion(domain, version string) Override {
	return func(obj map[string]any) {
		s, err := envelope.SchemaFor(domain)
		if err != nil {
			return
		}
		obj[s.VersionField] = version
	}
}

// WithPayloadField sets one top-level field inside the payload object.
// No-op when the payload is null.
func WithPayloadField(payloadField, name string, value any) Override {
	return func(obj map[string]any) {
		payload, ok := obj[payloadField].(map[string]any)
		if !ok {
			return
		}
		payload[name] = value
	}
}

// Valid builds a raw envelope for the domain that passes contract
// validation, applying overrides in order. Overrides that would break
// the contract belong in Invalid instead; Valid panics if the finished
// fixture fails validation, since a silently-broken "valid" fixture is
// exactly the confusion this package exists to prevent.
func Valid(domain string, overrides ...Override) []byte {
	schema, err := envelope.SchemaFor(domain)
	if err != nil {
		panic(err)
	}

	obj := map[string]any{
		schema.VersionField: schema.SupportedVersions[0],
		"lifecycle":         string(envelope.LifecycleSuccess),
		"reason_code":       nil,
		"reason_message":    nil,
		"generated_at":      GeneratedAt,
		schema.PayloadField: validPayload(domain),
	}

	for _, o := range overrides {
		o(obj)
	}

	deriveRequired(obj, schema)

	raw, err := json.Marshal(obj)
	if err != nil {
		panic(eris.Wrap(err, "envtest: marshal fixture"))
	}
	if _, err := envelope.Validate(raw, schema); err != nil {
		panic(eris.Wrapf(err, "envtest: Valid(%s) built an invalid fixture; use Invalid for broken objects", domain))
	}
	return raw
}

// deriveRequired fills the fields a requested lifecycle makes mandatory:
// off-success needs a reason code and (except stale, which keeps
// whatever payload the overrides left) a null payload.
func deriveRequired(obj map[string]any, schema *envelope.Schema) {
	lc, _ := obj["lifecycle"].(string)
	if lc == string(envelope.LifecycleSuccess) {
		return
	}
	if obj["reason_code"] == nil {
		obj["reason_code"] = envelope.ReasonComputationError
	}
	if lc != string(envelope.LifecycleStale) {
		obj[schema.PayloadField] = nil
	}
}

// Mutation names one deliberate contract break applied by Invalid.
type Mutation string

const (
	// MutUnknownVersion sets the contract version outside the
	// supported set.
	MutUnknownVersion Mutation = "unknown_version"
	// MutMissingVersion removes the contract version field.
	MutMissingVersion Mutation = "missing_version"
	// MutBadLifecycle sets a lifecycle outside the four-value enum.
	MutBadLifecycle Mutation = "bad_lifecycle"
	// MutMissingReason declares failed with a null reason_code.
	MutMissingReason Mutation = "missing_reason_code"
	// MutUnknownReason declares failed with a reason code outside the
	// domain's set.
	MutUnknownReason Mutation = "unknown_reason_code"
	// MutNullPayload declares success with a null payload.
	MutNullPayload Mutation = "null_payload_on_success"
	// MutPayloadNotObject declares success with a scalar payload.
	MutPayloadNotObject Mutation = "payload_not_object"
	// MutMissingGeneratedAt removes generated_at.
	MutMissingGeneratedAt Mutation = "missing_generated_at"
	// MutConfidenceOutOfRange pushes an intelligence item's confidence
	// above 1. Intelligence domain only.
	MutConfidenceOutOfRange Mutation = "confidence_out_of_range"
	// MutTruncatedElement drops a required field from the first
	// element of the payload's array.
	MutTruncatedElement Mutation = "truncated_element"
	// MutPayloadOnFailed declares failed but keeps the payload.
	MutPayloadOnFailed Mutation = "payload_on_failed"
)

// Invalid builds a raw envelope object with exactly one contract break,
// for negative tests. The result is guaranteed not to pass validation.
func Invalid(domain string, mut Mutation) []byte {
	schema, err := envelope.SchemaFor(domain)
	if err != nil {
		panic(err)
	}

	obj := map[string]any{
		schema.VersionField: schema.SupportedVersions[0],
		"lifecycle":         string(envelope.LifecycleSuccess),
		"reason_code":       nil,
		"reason_message":    nil,
		"generated_at":      GeneratedAt,
		schema.PayloadField: validPayload(domain),
	}

	switch mut {
	case MutUnknownVersion:
		obj[schema.VersionField] = "999"
	case MutMissingVersion:
		delete(obj, schema.VersionField)
	case MutBadLifecycle:
		obj["lifecycle"] = "succeeded"
	case MutMissingReason:
		obj["lifecycle"] = string(envelope.LifecycleFailed)
		obj[schema.PayloadField] = nil
	case MutUnknownReason:
		obj["lifecycle"] = string(envelope.LifecycleFailed)
		obj["reason_code"] = "disk_full"
		obj[schema.PayloadField] = nil
	case MutNullPayload:
		obj[schema.PayloadField] = nil
	case MutPayloadNotObject:
		obj[schema.PayloadField] = "not an object"
	case MutMissingGeneratedAt:
		delete(obj, "generated_at")
	case MutConfidenceOutOfRange:
		payload := obj[schema.PayloadField].(map[string]any)
		items, ok := payload["items"].([]any)
		if !ok || len(items) == 0 {
			panic(eris.Errorf("envtest: %s has no items array for %s", domain, mut))
		}
		items[0].(map[string]any)["confidence"] = 1.4
	case MutTruncatedElement:
		payload := obj[schema.PayloadField].(map[string]any)
		truncateFirstArrayElement(payload, schema)
	case MutPayloadOnFailed:
		obj["lifecycle"] = string(envelope.LifecycleFailed)
		obj["reason_code"] = envelope.ReasonComputationError
	default:
		panic(eris.Errorf("envtest: unknown mutation %q", mut))
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		panic(eris.Wrap(err, "envtest: marshal fixture"))
	}
	if _, err := envelope.Validate(raw, schema); err == nil {
		panic(eris.Errorf("envtest: Invalid(%s, %s) built a fixture that validates", domain, mut))
	}
	return raw
}

func truncateFirstArrayElement(payload map[string]any, schema *envelope.Schema) {
	for _, spec := range schema.Payload {
		if spec.Kind != envelope.KindArray {
			continue
		}
		arr, ok := payload[spec.Name].([]any)
		if !ok || len(arr) == 0 {
			continue
		}
		elem := arr[0].(map[string]any)
		delete(elem, "id")
		return
	}
	panic(eris.Errorf("envtest: %s payload has no populated array to truncate", schema.Domain))
}

// validPayload returns a fresh structurally valid payload object for the
// domain. Values mirror the shapes the backend emits.
func validPayload(domain string) map[string]any {
	switch domain {
	case envelope.DomainCore:
		return map[string]any{
			"as_of":                  GeneratedAt,
			"linked_accounts":        float64(2),
			"sync_health":            "healthy",
			"policy_acknowledged_at": nil,
			"alerts": []any{
				map[string]any{"id": "a1", "title": "Sync delayed", "severity": "low"},
			},
		}
	case envelope.DomainCFO:
		return map[string]any{
			"as_of":             GeneratedAt,
			"runway_days":       float64(180),
			"cash_on_hand":      float64(500000),
			"burn_rate_monthly": float64(25000),
			"top_risks": []any{
				map[string]any{"id": "r1", "title": "Vendor concentration", "severity": "medium"},
			},
			"next_actions": []any{},
		}
	case envelope.DomainIntelligence:
		return map[string]any{
			"as_of": GeneratedAt,
			"items": []any{
				map[string]any{
					"id":         "i1",
					"title":      "Spend up 12% month over month",
					"category":   "spend",
					"confidence": 0.82,
				},
			},
		}
	default:
		panic(eris.Errorf("envtest: unknown domain %q", domain))
	}
}
