// Package settle computes who-owes-whom instructions from expense records,
// both for a single expense and cumulatively across a trip.
package settle

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/susu3304/tabiwari/internal/ledger"
)

var (
	// ErrNoExpenses means the trip has no expense records at all.
	ErrNoExpenses = errors.New("no expenses recorded for this trip yet")
	// ErrAllSettled means expenses exist but every balance nets to zero.
	ErrAllSettled = errors.New("all settled up")
	// ErrNothingToSettle means the payer covered only their own share.
	ErrNothingToSettle = errors.New("no settlements needed")
)

// Instruction is a single "debtor pays creditor" directive. Instructions are
// ephemeral; they are recomputed from the ledger and never persisted.
type Instruction struct {
	Debtor   string
	Creditor string
	Amount   decimal.Decimal
}

type Balance struct {
	Name      string
	TotalPaid decimal.Decimal
	TotalOwed decimal.Decimal
	Net       decimal.Decimal
	Status    string
}

const (
	StatusCreditor = "creditor"
	StatusDebtor   = "debtor"
	StatusSettled  = "settled"
)

var epsilon = decimal.NewFromFloat(0.01)

// Immediate lists what each participant owes the payer for one expense.
// Participants are visited in their given order; the payer's own share and
// sub-cent amounts are skipped. Returns ErrNothingToSettle when no one owes
// anything.
func Immediate(payer string, participants []string, amounts map[string]decimal.Decimal) ([]Instruction, error) {
	var out []Instruction
	for _, p := range participants {
		if p == payer {
			continue
		}
		owed := amounts[p]
		if owed.LessThan(epsilon) {
			continue
		}
		out = append(out, Instruction{Debtor: p, Creditor: payer, Amount: owed})
	}
	if len(out) == 0 {
		return nil, ErrNothingToSettle
	}
	return out, nil
}

// RunningBalance nets every finalized expense into per-person balances and
// reduces them to a short list of instructions. Draft expenses are skipped.
// Returns ErrNoExpenses when the transaction list is empty and ErrAllSettled
// when balances cancel out.
func RunningBalance(txns []ledger.Transaction) ([]Instruction, error) {
	if len(txns) == 0 {
		return nil, ErrNoExpenses
	}

	bal := newBalances()
	for _, t := range txns {
		sp, ok := t.Split()
		if !ok {
			continue
		}
		bal.add(sp.Payer, t.Total)
		for _, p := range sp.Participants {
			bal.add(p, sp.Amounts[p].Neg())
		}
	}
	return minimize(bal)
}

// ParticipantBalance aggregates one person's position across the trip.
func ParticipantBalance(txns []ledger.Transaction, name string) Balance {
	b := Balance{Name: name, TotalPaid: decimal.Zero, TotalOwed: decimal.Zero}
	for _, t := range txns {
		sp, ok := t.Split()
		if !ok {
			continue
		}
		if sp.Payer == name {
			b.TotalPaid = b.TotalPaid.Add(t.Total)
		}
		if owed, ok := sp.Amounts[name]; ok {
			b.TotalOwed = b.TotalOwed.Add(owed)
		}
	}
	b.Net = b.TotalPaid.Sub(b.TotalOwed).Round(2)
	switch {
	case b.Net.GreaterThan(epsilon):
		b.Status = StatusCreditor
	case b.Net.LessThan(epsilon.Neg()):
		b.Status = StatusDebtor
	default:
		b.Status = StatusSettled
	}
	return b
}

// balances is a map that remembers first-seen order, so settlement output is
// deterministic for a given expense order.
type balances struct {
	order   []string
	amounts map[string]decimal.Decimal
}

func newBalances() *balances {
	return &balances{amounts: make(map[string]decimal.Decimal)}
}

func (b *balances) add(name string, delta decimal.Decimal) {
	if _, seen := b.amounts[name]; !seen {
		b.order = append(b.order, name)
	}
	b.amounts[name] = b.amounts[name].Add(delta)
}

type entry struct {
	name   string
	amount decimal.Decimal
}

// minimize greedily matches debtors against creditors. Debtors are taken
// largest debt first; creditors keep their first-seen order.
func minimize(bal *balances) ([]Instruction, error) {
	var creditors, debtors []entry
	for _, name := range bal.order {
		amt := bal.amounts[name]
		switch {
		case amt.GreaterThan(epsilon):
			creditors = append(creditors, entry{name, amt})
		case amt.LessThan(epsilon.Neg()):
			debtors = append(debtors, entry{name, amt})
		}
	}
	if len(creditors) == 0 && len(debtors) == 0 {
		return nil, ErrAllSettled
	}

	sort.SliceStable(debtors, func(i, j int) bool {
		return debtors[i].amount.LessThan(debtors[j].amount)
	})

	var out []Instruction
	for _, d := range debtors {
		remaining := d.amount.Neg()
		for i := range creditors {
			if remaining.LessThan(epsilon) {
				break
			}
			credit := creditors[i].amount
			if credit.LessThan(epsilon) {
				continue
			}
			settled := decimal.Min(remaining, credit)
			if settled.GreaterThan(epsilon) {
				out = append(out, Instruction{
					Debtor:   d.name,
					Creditor: creditors[i].name,
					Amount:   settled.Round(2),
				})
				creditors[i].amount = credit.Sub(settled)
				remaining = remaining.Sub(settled)
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrAllSettled
	}
	return out, nil
}
