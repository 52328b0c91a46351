package flow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/susu3304/tabiwari/internal/ledger"
	"github.com/susu3304/tabiwari/internal/session"
)

// editCmd opens the field picker for an expense: the latest one by default,
// or the one named by id.
func (c *Controller) editCmd(ctx context.Context, sender Sender, args string) (Reply, error) {
	rec, err := c.store.GetOrCreate(ctx, sender.Key)
	if err != nil {
		return Reply{}, ioErr("loading your session", err)
	}
	trip, err := c.resolveTrip(ctx, sender, rec)
	if err != nil {
		return Reply{}, err
	}
	if trip == nil {
		return textReply(noActiveTripText), nil
	}

	var txn *ledger.Transaction
	if args == "" {
		txns, err := c.ledger.TripTransactions(ctx, trip.ID)
		if err != nil {
			return Reply{}, ioErr("loading expenses", err)
		}
		if len(txns) == 0 {
			return textReply(noExpensesText), nil
		}
		txn = &txns[0]
	} else {
		id, perr := strconv.ParseInt(args, 10, 64)
		if perr != nil {
			return Reply{}, validationf("Usage: /edit - fix the latest expense\n       /edit <expense id>")
		}
		txn, err = c.ledger.Transaction(ctx, id)
		if err != nil {
			if errors.Is(err, ledger.ErrExpenseNotFound) {
				return Reply{}, notFoundf("❌ Expense not found")
			}
			return Reply{}, ioErr("loading the expense", err)
		}
		if txn.TripID != trip.ID {
			return Reply{}, notFoundf("❌ Expense not found")
		}
	}
	return Reply{
		Text:    fmt.Sprintf("What do you want to change for \"%s\" (%s)?", txn.Description, money(txn.Total)),
		Buttons: editFieldKeyboard(txn.ID),
	}, nil
}

// editChosen handles the field pick. Amount, description and payer move into
// a one-reply sub-state; split re-enters the normal split chain.
func (c *Controller) editChosen(ctx context.Context, sender Sender, field string, id int64) (Reply, error) {
	txn, err := c.ledger.Transaction(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrExpenseNotFound) {
			return Reply{}, notFoundf("❌ Expense not found")
		}
		return Reply{}, ioErr("loading the expense", err)
	}

	switch field {
	case "amount":
		target := &session.EditTarget{ExpenseID: id, Field: field}
		if err := c.store.Update(ctx, sender.Key, session.StateAwaitingEditAmount, target); err != nil {
			return Reply{}, ioErr("saving your session", err)
		}
		return textReply(fmt.Sprintf("Send the new amount for \"%s\" (currently %s).", txn.Description, money(txn.Total))), nil
	case "description":
		target := &session.EditTarget{ExpenseID: id, Field: field}
		if err := c.store.Update(ctx, sender.Key, session.StateAwaitingEditDescription, target); err != nil {
			return Reply{}, ioErr("saving your session", err)
		}
		return textReply(fmt.Sprintf("Send the new description for \"%s\".", txn.Description)), nil
	case "payer":
		trip, err := c.ledger.TripByID(ctx, txn.TripID)
		if err != nil {
			if errors.Is(err, ledger.ErrTripNotFound) {
				return Reply{}, notFoundf("❌ No active trip")
			}
			return Reply{}, ioErr("loading your trip", err)
		}
		target := &session.EditTarget{ExpenseID: id, Field: field}
		if err := c.store.Update(ctx, sender.Key, session.StateAwaitingEditPayer, target); err != nil {
			return Reply{}, ioErr("saving your session", err)
		}
		return Reply{
			Text:    fmt.Sprintf("Who paid for \"%s\"?", txn.Description),
			Buttons: payerKeyboard(id, trip.Participants),
		}, nil
	case "split":
		draft := &session.ExpenseDraft{
			ExpenseID:   id,
			Description: txn.Description,
			Total:       txn.Total,
			Category:    txn.Category,
		}
		if sp, ok := txn.Split(); ok {
			draft.Participants = sp.Participants
		} else {
			trip, err := c.ledger.TripByID(ctx, txn.TripID)
			if err != nil {
				if errors.Is(err, ledger.ErrTripNotFound) {
					return Reply{}, notFoundf("❌ No active trip")
				}
				return Reply{}, ioErr("loading your trip", err)
			}
			draft.Participants = trip.Participants
		}
		return Reply{Text: splitQuestionText(draft), Buttons: splitKeyboard(id)}, nil
	default:
		return Reply{}, stateMismatchf("Invalid callback data")
	}
}

// editValue applies the single-value reply of an edit sub-state.
func (c *Controller) editValue(ctx context.Context, sender Sender, rec session.Record, text string) (Reply, error) {
	target, ok := rec.Context.(*session.EditTarget)
	if !ok {
		if err := c.store.Clear(ctx, sender.Key); err != nil {
			return Reply{}, ioErr("clearing your session", err)
		}
		return Reply{}, &NotFoundError{Message: editExpiredText}
	}

	switch rec.State {
	case session.StateAwaitingEditAmount:
		amount, err := parseAmount(text)
		if err != nil {
			return Reply{}, validationf("I need a number, like 42.50.")
		}
		if amount.Sign() <= 0 {
			return Reply{}, validationf("The amount has to be more than zero.")
		}
		before, err := c.ledger.Transaction(ctx, target.ExpenseID)
		if err != nil {
			if errors.Is(err, ledger.ErrExpenseNotFound) {
				if cerr := c.store.Clear(ctx, sender.Key); cerr != nil {
					return Reply{}, ioErr("clearing your session", cerr)
				}
				return Reply{}, notFoundf("❌ Expense not found")
			}
			return Reply{}, ioErr("loading the expense", err)
		}
		spBefore, wasFinalized := before.Split()

		txn, err := c.ledger.UpdateAmount(ctx, target.ExpenseID, amount)
		if err != nil {
			return Reply{}, ioErr("updating the expense", err)
		}
		if err := c.store.Clear(ctx, sender.Key); err != nil {
			return Reply{}, ioErr("saving your session", err)
		}
		if wasFinalized && !txn.Finalized() {
			return Reply{
				Text: fmt.Sprintf("Expense updated successfully\n\nThe old split doesn't add up to the new amount, so it was cleared.\nHow should this be split among:\n%s?",
					strings.Join(spBefore.Participants, ", ")),
				Buttons: splitKeyboard(txn.ID),
			}, nil
		}
		return textReply("Expense updated successfully"), nil

	case session.StateAwaitingEditDescription:
		if text == "" {
			return Reply{}, validationf("Send a short description, like \"Dinner at Ichiran\".")
		}
		if err := c.ledger.UpdateDescription(ctx, target.ExpenseID, text); err != nil {
			if errors.Is(err, ledger.ErrExpenseNotFound) {
				if cerr := c.store.Clear(ctx, sender.Key); cerr != nil {
					return Reply{}, ioErr("clearing your session", cerr)
				}
				return Reply{}, notFoundf("❌ Expense not found")
			}
			return Reply{}, ioErr("updating the expense", err)
		}
		if err := c.store.Clear(ctx, sender.Key); err != nil {
			return Reply{}, ioErr("saving your session", err)
		}
		return textReply("Expense updated successfully"), nil

	default: // StateAwaitingEditPayer
		trip, err := c.tripForExpense(ctx, target.ExpenseID)
		if err != nil {
			return Reply{}, err
		}
		name, ok := matchName(trip.Participants, text, sender.Name)
		if !ok {
			return Reply{}, validationf("\"%s\" isn't on this trip. Participants: %s",
				text, strings.Join(trip.Participants, ", "))
		}
		return c.applyPayerEdit(ctx, sender, target.ExpenseID, name)
	}
}

func (c *Controller) applyPayerEdit(ctx context.Context, sender Sender, id int64, name string) (Reply, error) {
	if err := c.ledger.UpdatePayer(ctx, id, name); err != nil {
		switch {
		case errors.Is(err, ledger.ErrExpenseNotFound):
			if cerr := c.store.Clear(ctx, sender.Key); cerr != nil {
				return Reply{}, ioErr("clearing your session", cerr)
			}
			return Reply{}, notFoundf("❌ Expense not found")
		case errors.Is(err, ledger.ErrPayerNotParticipant):
			return Reply{}, validationf("%s isn't part of this expense's split. Pick one of the people it covers, or change the split first.", name)
		default:
			return Reply{}, ioErr("updating the expense", err)
		}
	}
	if err := c.store.Clear(ctx, sender.Key); err != nil {
		return Reply{}, ioErr("saving your session", err)
	}
	return textReply("Expense updated successfully"), nil
}

func (c *Controller) expensesList(ctx context.Context, sender Sender, rec session.Record) (Reply, error) {
	trip, err := c.resolveTrip(ctx, sender, rec)
	if err != nil {
		return Reply{}, err
	}
	if trip == nil {
		return textReply(noActiveTripText), nil
	}
	txns, err := c.ledger.TripTransactions(ctx, trip.ID)
	if err != nil {
		return Reply{}, ioErr("loading expenses", err)
	}
	if len(txns) == 0 {
		return textReply(noExpensesText), nil
	}
	return textReply(expensesListText(txns)), nil
}

// deleteLatest asks for confirmation before deleting the most recent
// expense. The actual delete happens in confirmChosen.
func (c *Controller) deleteLatest(ctx context.Context, sender Sender, rec session.Record) (Reply, error) {
	trip, err := c.resolveTrip(ctx, sender, rec)
	if err != nil {
		return Reply{}, err
	}
	if trip == nil {
		return textReply(noActiveTripText), nil
	}
	txns, err := c.ledger.TripTransactions(ctx, trip.ID)
	if err != nil {
		return Reply{}, ioErr("loading expenses", err)
	}
	if len(txns) == 0 {
		return textReply(noExpensesText), nil
	}
	target := &session.EditTarget{ExpenseID: txns[0].ID, Field: "delete"}
	if err := c.store.Update(ctx, sender.Key, session.StateAwaitingConfirm, target); err != nil {
		return Reply{}, ioErr("saving your session", err)
	}
	return Reply{
		Text:    fmt.Sprintf("Delete \"%s\" (%s)?", txns[0].Description, money(txns[0].Total)),
		Buttons: confirmKeyboard(),
	}, nil
}

func (c *Controller) confirmChosen(ctx context.Context, sender Sender, rec session.Record, value string) (Reply, error) {
	if rec.State != session.StateAwaitingConfirm {
		return Reply{}, stateMismatchf("That button isn't active anymore.")
	}
	target, ok := rec.Context.(*session.EditTarget)
	if !ok {
		if err := c.store.Clear(ctx, sender.Key); err != nil {
			return Reply{}, ioErr("clearing your session", err)
		}
		return Reply{}, &NotFoundError{Message: editExpiredText}
	}

	switch value {
	case "no":
		if err := c.store.Clear(ctx, sender.Key); err != nil {
			return Reply{}, ioErr("clearing your session", err)
		}
		return textReply("Okay, keeping it."), nil
	case "yes":
		if err := c.ledger.DeleteTransaction(ctx, target.ExpenseID); err != nil {
			if errors.Is(err, ledger.ErrExpenseNotFound) {
				if cerr := c.store.Clear(ctx, sender.Key); cerr != nil {
					return Reply{}, ioErr("clearing your session", cerr)
				}
				return Reply{}, notFoundf("❌ Expense not found")
			}
			return Reply{}, ioErr("deleting the expense", err)
		}
		if err := c.store.Clear(ctx, sender.Key); err != nil {
			return Reply{}, ioErr("clearing your session", err)
		}
		return textReply("Expense deleted successfully"), nil
	default:
		return Reply{}, stateMismatchf("Invalid callback data")
	}
}

func (c *Controller) confirmByText(ctx context.Context, sender Sender, rec session.Record, text string) (Reply, error) {
	switch strings.ToLower(text) {
	case "yes", "y":
		return c.confirmChosen(ctx, sender, rec, "yes")
	case "no", "n":
		return c.confirmChosen(ctx, sender, rec, "no")
	default:
		return Reply{}, stateMismatchf("Please answer yes or no.")
	}
}
