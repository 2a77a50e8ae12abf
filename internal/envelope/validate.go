package envelope

import (
	"encoding/json"
	"fmt"
	"math"
)

// Validate checks raw backend JSON against the domain schema and returns
// a typed envelope, or a *Violation describing the first field that broke
// the contract. Validation is fail-closed: one bad field rejects the
// whole envelope, and nothing is coerced or defaulted.
//
// Violations are reported in a fixed order (root, version, lifecycle,
// reason_code or payload depending on branch, generated_at,
// reason_message) so assertions on which violation fired stay
// deterministic when several fields are broken at once.
func Validate(raw []byte, schema *Schema) (*Envelope, error) {
	var top map[string]any
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, violate("root", "JSON object", "unparseable input")
	}
	if top == nil {
		return nil, violate("root", "JSON object", nil)
	}

	// Version first, and bail immediately on mismatch: an unknown
	// contract version means every other field's shape is untrustworthy,
	// so there is nothing meaningful left to report.
	version, err := requireString(top, schema.VersionField)
	if err != nil {
		return nil, err
	}
	if !schema.SupportsVersion(version) {
		return nil, violate(schema.VersionField,
			fmt.Sprintf("one of %v", schema.SupportedVersions), version)
	}

	rawLifecycle, err := requireString(top, "lifecycle")
	if err != nil {
		return nil, err
	}
	if !contains(lifecycles, rawLifecycle) {
		return nil, violate("lifecycle", fmt.Sprintf("one of %v", lifecycles), rawLifecycle)
	}
	lifecycle := Lifecycle(rawLifecycle)

	env := &Envelope{
		Domain:          schema.Domain,
		ContractVersion: version,
		Lifecycle:       lifecycle,
	}

	if lifecycle == LifecycleSuccess {
		// Success may omit reason_code entirely, but a present one
		// must still be a member of the closed set.
		code, err := optionalReasonCode(top, schema)
		if err != nil {
			return nil, err
		}
		env.ReasonCode = code

		payload, fields, err := requirePayload(top, schema)
		if err != nil {
			return nil, err
		}
		env.Payload, env.fields = payload, fields
	} else {
		code, err := requireReasonCode(top, schema)
		if err != nil {
			return nil, err
		}
		env.ReasonCode = code

		payload, fields, err := offSuccessPayload(top, schema, lifecycle)
		if err != nil {
			return nil, err
		}
		env.Payload, env.fields = payload, fields
	}

	generatedAt, err := requireString(top, "generated_at")
	if err != nil {
		return nil, err
	}
	env.GeneratedAt = generatedAt

	if msg, ok := top["reason_message"]; ok && msg != nil {
		s, isStr := msg.(string)
		if !isStr {
			return nil, violate("reason_message", "string or null", msg)
		}
		env.ReasonMessage = s
	}

	return env, nil
}

// requireString fetches a mandatory non-null string field off the
// envelope's top level.
func requireString(top map[string]any, name string) (string, error) {
	v, ok := top[name]
	if !ok || v == nil {
		return "", violate(name, "string", nil)
	}
	s, isStr := v.(string)
	if !isStr {
		return "", violate(name, "string", v)
	}
	return s, nil
}

func requireReasonCode(top map[string]any, schema *Schema) (string, error) {
	v, ok := top["reason_code"]
	if !ok || v == nil {
		return "", violate("reason_code", "non-null reason code off success", nil)
	}
	s, isStr := v.(string)
	if !isStr {
		return "", violate("reason_code", "string", v)
	}
	if !schema.ValidReasonCode(s) {
		return "", violate("reason_code", fmt.Sprintf("one of %v", schema.ReasonCodes), s)
	}
	return s, nil
}

func optionalReasonCode(top map[string]any, schema *Schema) (string, error) {
	v, ok := top["reason_code"]
	if !ok || v == nil {
		return "", nil
	}
	s, isStr := v.(string)
	if !isStr {
		return "", violate("reason_code", "string or null", v)
	}
	if !schema.ValidReasonCode(s) {
		return "", violate("reason_code", fmt.Sprintf("one of %v", schema.ReasonCodes), s)
	}
	return s, nil
}

// requirePayload enforces the success branch: payload present, non-null,
// an object, and structurally valid in full.
func requirePayload(top map[string]any, schema *Schema) (json.RawMessage, map[string]any, error) {
	v, ok := top[schema.PayloadField]
	if !ok || v == nil {
		return nil, nil, violate(schema.PayloadField, "non-null payload on success", nil)
	}
	return validatePayloadValue(v, schema)
}

// offSuccessPayload enforces the non-success branches: pending and failed
// must carry a null payload; stale may carry one, and when it does the
// payload is held to the same structural bar as on success. A stale
// payload that fails validation rejects the envelope rather than
// degrading to a banner-only render.
func offSuccessPayload(top map[string]any, schema *Schema, lc Lifecycle) (json.RawMessage, map[string]any, error) {
	v, ok := top[schema.PayloadField]
	if !ok || v == nil {
		return nil, nil, nil
	}
	if lc != LifecycleStale {
		return nil, nil, violate(schema.PayloadField,
			fmt.Sprintf("null payload when lifecycle is %q", lc), "non-null payload")
	}
	return validatePayloadValue(v, schema)
}

func validatePayloadValue(v any, schema *Schema) (json.RawMessage, map[string]any, error) {
	obj, isObj := v.(map[string]any)
	if !isObj {
		return nil, nil, violate(schema.PayloadField, "object", v)
	}
	// Nested violation paths are relative to the payload ("items[2].confidence"),
	// while a violation of the payload itself names the wire field ("snapshot").
	if err := validateObject(obj, schema.Payload, ""); err != nil {
		return nil, nil, err
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, nil, violate(schema.PayloadField, "serializable object", v)
	}
	return raw, obj, nil
}

// validateObject checks every spec'd field of obj, in spec order. Fields
// the schema does not know about are ignored; within a supported
// contract version the producer may add fields without breaking older
// clients.
func validateObject(obj map[string]any, specs []FieldSpec, path string) error {
	for _, spec := range specs {
		fieldPath := joinPath(path, spec.Name)
		v, ok := obj[spec.Name]
		if !ok || v == nil {
			if spec.Required && !spec.Nullable {
				return violate(fieldPath, spec.Kind.String(), nil)
			}
			continue
		}
		if err := validateValue(v, spec, fieldPath); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(v any, spec FieldSpec, path string) error {
	switch spec.Kind {
	case KindString, KindTimestamp:
		if _, ok := v.(string); !ok {
			return violate(path, spec.Kind.String(), v)
		}

	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return violate(path, spec.Kind.String(), v)
		}
		if !contains(spec.Enum, s) {
			return violate(path, fmt.Sprintf("one of %v", spec.Enum), s)
		}

	case KindBool:
		if _, ok := v.(bool); !ok {
			return violate(path, spec.Kind.String(), v)
		}

	case KindNumber:
		n, ok := v.(float64)
		if !ok {
			return violate(path, spec.Kind.String(), v)
		}
		return checkBounds(n, spec, path)

	case KindInteger:
		n, ok := v.(float64)
		if !ok || n != math.Trunc(n) {
			return violate(path, spec.Kind.String(), v)
		}
		return checkBounds(n, spec, path)

	case KindUnitInterval:
		n, ok := v.(float64)
		if !ok {
			return violate(path, spec.Kind.String(), v)
		}
		if n < 0 || n > 1 {
			return violate(path, "number in [0,1]", n)
		}

	case KindObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return violate(path, spec.Kind.String(), v)
		}
		return validateObject(obj, spec.Fields, path)

	case KindArray:
		arr, ok := v.([]any)
		if !ok {
			return violate(path, spec.Kind.String(), v)
		}
		for i, elem := range arr {
			elemPath := fmt.Sprintf("%s[%d]", path, i)
			if elem == nil {
				if spec.Elem.Nullable {
					continue
				}
				return violate(elemPath, spec.Elem.Kind.String(), nil)
			}
			if err := validateValue(elem, *spec.Elem, elemPath); err != nil {
				return err
			}
		}

	default:
		return violate(path, "known field kind", v)
	}
	return nil
}

func checkBounds(n float64, spec FieldSpec, path string) error {
	if spec.Min != nil && n < *spec.Min {
		return violate(path, fmt.Sprintf("number >= %v", *spec.Min), n)
	}
	if spec.Max != nil && n > *spec.Max {
		return violate(path, fmt.Sprintf("number <= %v", *spec.Max), n)
	}
	return nil
}

// joinPath builds JSON-style field paths. Top-level payload fields keep
// bare names ("items"); nesting appends with dots ("items[2].confidence").
func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
