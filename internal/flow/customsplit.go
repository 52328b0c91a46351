package flow

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/susu3304/tabiwari/internal/ledger"
	"github.com/susu3304/tabiwari/internal/session"
)

// startCustomSplit begins collecting one share per message, in participant
// order. lead is prepended to the first prompt when the caller has something
// to explain first.
func (c *Controller) startCustomSplit(ctx context.Context, sender Sender, draft *session.ExpenseDraft, lead string) (Reply, error) {
	prog := &session.CustomSplitProgress{
		ExpenseID:    draft.ExpenseID,
		Policy:       draft.Policy,
		Payer:        draft.Payer,
		Total:        draft.Total,
		Participants: draft.Participants,
		Index:        0,
		Collected:    make(map[string]decimal.Decimal),
	}
	if err := c.store.Update(ctx, sender.Key, session.StateAwaitingCustomSplit, prog); err != nil {
		return Reply{}, ioErr("saving your session", err)
	}
	return textReply(lead + askShareText(prog)), nil
}

// collectShare consumes one number. Anything else re-issues the same prompt
// with index and collected amounts untouched. After the last participant the
// whole collection is validated; a failure resets to the first participant.
func (c *Controller) collectShare(ctx context.Context, sender Sender, rec session.Record, text string) (Reply, error) {
	prog, ok := rec.Context.(*session.CustomSplitProgress)
	if !ok || prog.Index >= len(prog.Participants) {
		if err := c.store.Clear(ctx, sender.Key); err != nil {
			return Reply{}, ioErr("clearing your session", err)
		}
		return Reply{}, &NotFoundError{Message: splitExpiredText}
	}

	value, err := parseAmount(text)
	if err != nil {
		return Reply{}, validationf("Please send just a number, like 25 or 12.50.\n\n%s", askShareText(prog))
	}
	if value.Sign() < 0 {
		return Reply{}, validationf("A share can't be negative.\n\n%s", askShareText(prog))
	}

	name := prog.Participants[prog.Index]
	prog.Collected[name] = value
	prog.Index++

	if prog.Index < len(prog.Participants) {
		if err := c.store.Update(ctx, sender.Key, session.StateAwaitingCustomSplit, prog); err != nil {
			return Reply{}, ioErr("saving your session", err)
		}
		return textReply(askShareText(prog)), nil
	}

	// All collected: validate against the ledger row, not the session copy.
	txn, err := c.ledger.Transaction(ctx, prog.ExpenseID)
	if err != nil {
		if errors.Is(err, ledger.ErrExpenseNotFound) {
			if cerr := c.store.Clear(ctx, sender.Key); cerr != nil {
				return Reply{}, ioErr("clearing your session", cerr)
			}
			return Reply{}, notFoundf("❌ Expense not found")
		}
		return Reply{}, ioErr("loading the expense", err)
	}
	amounts, err := computeShares(prog.Policy, txn.Total, prog.Participants, prog.Collected)
	if err != nil {
		fail := customSplitFailText(prog.Policy, collectedSum(prog), txn.Total)
		prog.Index = 0
		prog.Collected = make(map[string]decimal.Decimal)
		if uerr := c.store.Update(ctx, sender.Key, session.StateAwaitingCustomSplit, prog); uerr != nil {
			return Reply{}, ioErr("saving your session", uerr)
		}
		return textReply(fail + "\n\n" + askShareText(prog)), nil
	}
	return c.finalizeExpense(ctx, sender, txn.TripID, prog.ExpenseID, ledger.Split{
		Payer:        prog.Payer,
		Participants: prog.Participants,
		Policy:       prog.Policy,
		Amounts:      amounts,
	})
}
