package uistate

import (
	"github.com/rotisserie/eris"
)

// ConfirmedAction is an operator action guarded by a typed confirmation
// phrase. Confirmation is a pure string-equality gate: exact text, exact
// case, no trimming, no fuzzy matching.
type ConfirmedAction struct {
	Name   string
	Phrase string
	// Destructive actions additionally require the policy
	// acknowledgement from the owning domain's payload.
	Destructive bool
}

// Actions guarded by confirmation phrases, keyed by wire name.
var actions = map[string]ConfirmedAction{
	"unlink_bank_account": {Name: "unlink_bank_account", Phrase: "UNLINK BANK ACCOUNT", Destructive: true},
	"delete_my_data":      {Name: "delete_my_data", Phrase: "DELETE MY DATA", Destructive: true},
	"export_my_data":      {Name: "export_my_data", Phrase: "EXPORT MY DATA"},
}

// ErrUnknownAction is returned for action names outside the closed set.
var ErrUnknownAction = eris.New("uistate: unknown action")

// ErrPhraseMismatch is returned when the typed phrase does not exactly
// match the action's confirmation phrase.
var ErrPhraseMismatch = eris.New("uistate: confirmation phrase does not match")

// ErrPolicyNotAcknowledged is returned when a destructive action is
// attempted without an acknowledged data-handling policy.
var ErrPolicyNotAcknowledged = eris.New("uistate: data policy not acknowledged")

// ActionByName looks up a confirmed action.
func ActionByName(name string) (ConfirmedAction, error) {
	a, ok := actions[name]
	if !ok {
		return ConfirmedAction{}, eris.Wrapf(ErrUnknownAction, "%q", name)
	}
	return a, nil
}

// ActionNames lists the guarded actions in a stable order.
func ActionNames() []string {
	return []string{"delete_my_data", "export_my_data", "unlink_bank_account"}
}

// Confirmed reports whether typed unlocks the action. Partial input,
// case mismatches, and surrounding whitespace all keep it locked.
func (a ConfirmedAction) Confirmed(typed string) bool {
	return typed == a.Phrase
}

// Authorize decides whether the action may fire: the phrase must match
// exactly, and destructive actions require the policy acknowledgement
// derived from the owning panel's state. It never fires the action
// itself.
func (a ConfirmedAction) Authorize(typed string, policyAcknowledged bool) error {
	if !a.Confirmed(typed) {
		return ErrPhraseMismatch
	}
	if a.Destructive && !policyAcknowledged {
		return ErrPolicyNotAcknowledged
	}
	return nil
}
