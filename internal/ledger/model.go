package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type Policy string

const (
	PolicyEven    Policy = "even"
	PolicyPercent Policy = "percent"
	PolicyAmount  Policy = "amount"
)

// Trip groups expenses for one journey. Participants is the authoritative
// roster: payers and split members must come from it.
type Trip struct {
	ID             int64
	UserID         string
	ChatID         string
	ChatType       string
	Name           string
	Location       string
	Participants   []string
	Status         string
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// Split is the finalized part of a transaction: who paid, who shares, how.
type Split struct {
	Payer        string
	Participants []string
	Policy       Policy
	Amounts      map[string]decimal.Decimal
}

// Transaction is a single expense. It starts as a draft holding only the
// description and total, and becomes finalized once a Split is attached.
// The two phases let the dialogue collect the amount first and the split
// later without losing the record.
type Transaction struct {
	ID          int64
	TripID      int64
	Description string
	Total       decimal.Decimal
	Category    string
	Date        time.Time
	CreatedAt   time.Time

	split *Split
}

// Split returns the finalized split. The second return is false while the
// transaction is still a draft.
func (t Transaction) Split() (Split, bool) {
	if t.split == nil {
		return Split{}, false
	}
	return *t.split, true
}

// Finalized reports whether split information has been attached.
func (t Transaction) Finalized() bool {
	return t.split != nil
}

// WithSplit returns a copy of the transaction with the split attached.
func (t Transaction) WithSplit(s Split) Transaction {
	t.split = &s
	return t
}
