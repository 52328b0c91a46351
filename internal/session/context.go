package session

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/susu3304/tabiwari/internal/ledger"
)

// State names the step a conversation is waiting on. The empty string means
// no flow is in progress.
type State string

const (
	StateIdle State = ""

	StateAwaitingLocation     State = "awaiting_location"
	StateAwaitingParticipants State = "awaiting_participants"

	StateAwaitingPayer             State = "awaiting_payer"
	StateAwaitingParticipantSelect State = "awaiting_participant_select"
	StateAwaitingSplitPolicy       State = "awaiting_split_policy"
	StateAwaitingCustomSplit       State = "awaiting_custom_split"
	StateAwaitingMissingFields     State = "awaiting_missing_fields"

	StateAwaitingEditAmount      State = "awaiting_edit_amount"
	StateAwaitingEditDescription State = "awaiting_edit_description"
	StateAwaitingEditPayer       State = "awaiting_edit_payer"

	StateAwaitingConfirm State = "awaiting_confirm"
)

// Context is the flow-specific payload stored alongside a state. Which
// concrete type is stored is determined by the state.
type Context interface {
	conversationContext()
}

// TripDraft accumulates answers while a trip is being created.
type TripDraft struct {
	Name     string `json:"trip_name"`
	Location string `json:"location,omitempty"`
}

// ExpenseDraft accumulates answers while an expense is being described.
// ExpenseID is set once the draft row exists in the ledger. Shares holds
// extracted percent or exact-amount figures when the message already
// included them.
type ExpenseDraft struct {
	ExpenseID    int64                      `json:"expense_id,omitempty"`
	Description  string                     `json:"description,omitempty"`
	Total        decimal.Decimal            `json:"amount"`
	Category     string                     `json:"category,omitempty"`
	Payer        string                     `json:"paid_by,omitempty"`
	Participants []string                   `json:"participants,omitempty"`
	Selected     []string                   `json:"selected,omitempty"`
	Policy       ledger.Policy              `json:"split_type,omitempty"`
	Shares       map[string]decimal.Decimal `json:"split_details,omitempty"`
}

// CustomSplitProgress tracks the one-amount-per-message collection loop.
// Index points at the participant whose share is asked for next. Total is
// carried for prompt rendering; validation at the end reads the ledger row.
type CustomSplitProgress struct {
	ExpenseID    int64                      `json:"expense_id"`
	Policy       ledger.Policy              `json:"split_type"`
	Payer        string                     `json:"paid_by"`
	Total        decimal.Decimal            `json:"total_amount"`
	Participants []string                   `json:"participants"`
	Index        int                        `json:"current_index"`
	Collected    map[string]decimal.Decimal `json:"collected_amounts,omitempty"`
}

// MissingFields carries a partially extracted expense plus the fields still
// to be asked for, in the order they will be asked.
type MissingFields struct {
	Draft   ExpenseDraft `json:"pending_expense"`
	Missing []string     `json:"missing_fields"`
}

// EditTarget names the expense a pending edit or delete applies to.
type EditTarget struct {
	ExpenseID int64  `json:"expense_id"`
	Field     string `json:"field"`
}

func (*TripDraft) conversationContext()           {}
func (*ExpenseDraft) conversationContext()        {}
func (*CustomSplitProgress) conversationContext() {}
func (*MissingFields) conversationContext()       {}
func (*EditTarget) conversationContext()          {}

func encodeContext(c Context) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

// decodeContext picks the concrete type from the state tag. Empty payloads
// decode to nil so flows can detect an expired context.
func decodeContext(state State, raw []byte) (Context, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	switch state {
	case StateIdle:
		return nil, nil
	case StateAwaitingLocation, StateAwaitingParticipants:
		c := &TripDraft{}
		if err := json.Unmarshal(raw, c); err != nil {
			return nil, err
		}
		return c, nil
	case StateAwaitingPayer, StateAwaitingParticipantSelect, StateAwaitingSplitPolicy:
		c := &ExpenseDraft{}
		if err := json.Unmarshal(raw, c); err != nil {
			return nil, err
		}
		return c, nil
	case StateAwaitingCustomSplit:
		c := &CustomSplitProgress{}
		if err := json.Unmarshal(raw, c); err != nil {
			return nil, err
		}
		return c, nil
	case StateAwaitingMissingFields:
		c := &MissingFields{}
		if err := json.Unmarshal(raw, c); err != nil {
			return nil, err
		}
		return c, nil
	case StateAwaitingEditAmount, StateAwaitingEditDescription, StateAwaitingEditPayer, StateAwaitingConfirm:
		c := &EditTarget{}
		if err := json.Unmarshal(raw, c); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown conversation state %q", state)
	}
}
