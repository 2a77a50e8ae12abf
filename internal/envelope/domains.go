package envelope

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Domain names, used as URL path segments and audit keys.
const (
	DomainCore         = "core"
	DomainCFO          = "cfo"
	DomainIntelligence = "intelligence"
)

// Reason codes shared by every domain.
const (
	ReasonInsufficientData = "insufficient_data"
	ReasonComputationError = "computation_error"
	ReasonBackendTimeout   = "backend_timeout"
	ReasonDataStale        = "data_stale"
	ReasonNotConfigured    = "not_configured"
	ReasonUnknown          = "unknown"

	// ReasonNoTransactions is specific to the financial domains.
	ReasonNoTransactions = "no_transactions"
)

var baseReasonCodes = []string{
	ReasonInsufficientData,
	ReasonComputationError,
	ReasonBackendTimeout,
	ReasonDataStale,
	ReasonNotConfigured,
	ReasonUnknown,
}

// CoreSchema describes the Core operational summary contract. The
// summary carries the policy acknowledgement timestamp that gates
// destructive account actions.
var CoreSchema = &Schema{
	Domain:            DomainCore,
	VersionField:      "core_version",
	PayloadField:      "summary",
	SupportedVersions: []string{"1", "2"},
	ReasonCodes:       baseReasonCodes,
	AckField:          "policy_acknowledged_at",
	Payload: []FieldSpec{
		{Name: "as_of", Kind: KindTimestamp, Required: true},
		{Name: "linked_accounts", Kind: KindInteger, Required: true, Min: ptr(0)},
		{Name: "sync_health", Kind: KindEnum, Required: true,
			Enum: []string{"healthy", "degraded", "offline"}},
		{Name: "policy_acknowledged_at", Kind: KindTimestamp, Required: true, Nullable: true},
		{Name: "alerts", Kind: KindArray, Required: true, Elem: &FieldSpec{
			Kind: KindObject,
			Fields: []FieldSpec{
				{Name: "id", Kind: KindString, Required: true},
				{Name: "title", Kind: KindString, Required: true},
				{Name: "severity", Kind: KindEnum, Required: true,
					Enum: []string{"low", "medium", "high", "critical"}},
			},
		}},
	},
}

// CFOSchema describes the CFO financial snapshot contract.
var CFOSchema = &Schema{
	Domain:            DomainCFO,
	VersionField:      "cfo_version",
	PayloadField:      "snapshot",
	SupportedVersions: []string{"1"},
	ReasonCodes:       append(append([]string{}, baseReasonCodes...), ReasonNoTransactions),
	Payload: []FieldSpec{
		{Name: "as_of", Kind: KindTimestamp, Required: true},
		{Name: "runway_days", Kind: KindNumber, Required: true, Min: ptr(0)},
		{Name: "cash_on_hand", Kind: KindNumber, Required: true},
		{Name: "burn_rate_monthly", Kind: KindNumber, Required: true},
		{Name: "top_risks", Kind: KindArray, Required: true, Elem: &FieldSpec{
			Kind: KindObject,
			Fields: []FieldSpec{
				{Name: "id", Kind: KindString, Required: true},
				{Name: "title", Kind: KindString, Required: true},
				{Name: "severity", Kind: KindEnum, Required: true,
					Enum: []string{"low", "medium", "high"}},
			},
		}},
		{Name: "next_actions", Kind: KindArray, Required: true, Elem: &FieldSpec{
			Kind: KindObject,
			Fields: []FieldSpec{
				{Name: "id", Kind: KindString, Required: true},
				{Name: "title", Kind: KindString, Required: true},
				{Name: "impact", Kind: KindString},
			},
		}},
	},
}

// IntelligenceSchema describes the Intelligence insight digest contract.
var IntelligenceSchema = &Schema{
	Domain:            DomainIntelligence,
	VersionField:      "intelligence_version",
	PayloadField:      "digest",
	SupportedVersions: []string{"1"},
	ReasonCodes:       append(append([]string{}, baseReasonCodes...), ReasonNoTransactions),
	Payload: []FieldSpec{
		{Name: "as_of", Kind: KindTimestamp, Required: true},
		{Name: "items", Kind: KindArray, Required: true, Elem: &FieldSpec{
			Kind: KindObject,
			Fields: []FieldSpec{
				{Name: "id", Kind: KindString, Required: true},
				{Name: "title", Kind: KindString, Required: true},
				{Name: "category", Kind: KindEnum, Required: true,
					Enum: []string{"cash_flow", "spend", "revenue", "risk"}},
				{Name: "confidence", Kind: KindUnitInterval, Required: true},
				{Name: "body", Kind: KindString},
			},
		}},
	},
}

// schemas indexes the known domains.
var schemas = map[string]*Schema{
	DomainCore:         CoreSchema,
	DomainCFO:          CFOSchema,
	DomainIntelligence: IntelligenceSchema,
}

// SchemaFor returns the contract schema for a domain name.
func SchemaFor(domain string) (*Schema, error) {
	s, ok := schemas[domain]
	if !ok {
		return nil, eris.Errorf("envelope: unknown domain %q", domain)
	}
	return s, nil
}

// Domains lists the known domain names in a stable order.
func Domains() []string {
	return []string{DomainCore, DomainCFO, DomainIntelligence}
}

// OperationalSummary is the Core domain payload.
type OperationalSummary struct {
	AsOf                 string  `json:"as_of"`
	LinkedAccounts       int     `json:"linked_accounts"`
	SyncHealth           string  `json:"sync_health"`
	PolicyAcknowledgedAt *string `json:"policy_acknowledged_at"`
	Alerts               []Alert `json:"alerts"`
}

// Alert is one operational alert inside the Core summary.
type Alert struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Severity string `json:"severity"`
}

// FinancialSnapshot is the CFO domain payload.
type FinancialSnapshot struct {
	AsOf            string   `json:"as_of"`
	RunwayDays      float64  `json:"runway_days"`
	CashOnHand      float64  `json:"cash_on_hand"`
	BurnRateMonthly float64  `json:"burn_rate_monthly"`
	TopRisks        []Risk   `json:"top_risks"`
	NextActions     []Action `json:"next_actions"`
}

// Risk is one entry in the CFO snapshot's top_risks.
type Risk struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Severity string `json:"severity"`
}

// Action is one entry in the CFO snapshot's next_actions.
type Action struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Impact string `json:"impact,omitempty"`
}

// InsightDigest is the Intelligence domain payload.
type InsightDigest struct {
	AsOf  string    `json:"as_of"`
	Items []Insight `json:"items"`
}

// Insight is one entry in the Intelligence digest.
type Insight struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Body       string  `json:"body,omitempty"`
}

// DecodeSummary unmarshals a validated Core payload.
func DecodeSummary(env *Envelope) (*OperationalSummary, error) {
	var s OperationalSummary
	if err := decodePayload(env, DomainCore, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DecodeSnapshot unmarshals a validated CFO payload.
func DecodeSnapshot(env *Envelope) (*FinancialSnapshot, error) {
	var s FinancialSnapshot
	if err := decodePayload(env, DomainCFO, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DecodeDigest unmarshals a validated Intelligence payload.
func DecodeDigest(env *Envelope) (*InsightDigest, error) {
	var d InsightDigest
	if err := decodePayload(env, DomainIntelligence, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func decodePayload(env *Envelope, domain string, out any) error {
	if env == nil || env.Domain != domain {
		return eris.Errorf("envelope: not a %s envelope", domain)
	}
	if !env.HasPayload() {
		return eris.Errorf("envelope: %s envelope has no payload", domain)
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return eris.Wrapf(err, "envelope: decode %s payload", domain)
	}
	return nil
}
