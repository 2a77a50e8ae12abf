package envelope

// Kind classifies a payload field for structural validation.
type Kind int

const (
	// KindString accepts any JSON string.
	KindString Kind = iota
	// KindNumber accepts any JSON number.
	KindNumber
	// KindInteger accepts a JSON number with no fractional part.
	KindInteger
	// KindBool accepts a JSON boolean.
	KindBool
	// KindEnum accepts a string drawn from the spec's Enum set.
	KindEnum
	// KindTimestamp accepts a string. The wire format is ISO-8601 but
	// the validator does not parse it; rendering owns time formatting.
	KindTimestamp
	// KindUnitInterval accepts a number in [0, 1] inclusive.
	KindUnitInterval
	// KindObject accepts an object validated against Fields.
	KindObject
	// KindArray accepts an array whose every element is validated
	// against Elem individually.
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindInteger:
		return "integer"
	case KindBool:
		return "boolean"
	case KindEnum:
		return "enum string"
	case KindTimestamp:
		return "timestamp string"
	case KindUnitInterval:
		return "number in [0,1]"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// FieldSpec describes one payload field. Object and array shapes nest
// recursively through Fields and Elem.
type FieldSpec struct {
	Name     string
	Kind     Kind
	Required bool
	Nullable bool

	// Enum is the closed value set for KindEnum fields.
	Enum []string

	// Min/Max bound KindNumber and KindInteger fields when non-nil
	// (inclusive). KindUnitInterval is implicitly bounded to [0,1].
	Min *float64
	Max *float64

	// Fields describes a KindObject's members, in validation order.
	Fields []FieldSpec

	// Elem describes a KindArray's element shape.
	Elem *FieldSpec
}

// Schema is the per-domain contract descriptor consumed by Validate:
// which versions this client speaks, the closed reason-code set, the
// wire names of the version and payload fields, and the payload shape.
type Schema struct {
	Domain string

	// VersionField is the wire name of the contract version, e.g.
	// "cfo_version".
	VersionField string

	// PayloadField is the wire name of the domain payload, e.g.
	// "snapshot".
	PayloadField string

	SupportedVersions []string
	ReasonCodes       []string

	// Payload lists the payload's top-level fields in validation order.
	Payload []FieldSpec

	// AckField, when set, names the payload timestamp whose presence
	// acknowledges the data-handling policy. Destructive actions are
	// gated on it.
	AckField string
}

// SupportsVersion reports whether v is in the schema's supported set.
func (s *Schema) SupportsVersion(v string) bool {
	return contains(s.SupportedVersions, v)
}

// ValidReasonCode reports whether code is in the schema's reason set.
func (s *Schema) ValidReasonCode(code string) bool {
	return contains(s.ReasonCodes, code)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func ptr(f float64) *float64 { return &f }
