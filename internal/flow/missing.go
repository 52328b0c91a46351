package flow

import (
	"context"
	"strings"

	"github.com/susu3304/tabiwari/internal/session"
)

// fillMissing consumes one answer for the first outstanding field of a
// partially extracted expense, then either asks for the next field or hands
// the completed draft to the normal chain.
func (c *Controller) fillMissing(ctx context.Context, sender Sender, rec session.Record, text string) (Reply, error) {
	mf, ok := rec.Context.(*session.MissingFields)
	if !ok {
		if err := c.store.Clear(ctx, sender.Key); err != nil {
			return Reply{}, ioErr("clearing your session", err)
		}
		return Reply{}, &NotFoundError{Message: expenseExpiredText}
	}
	trip, err := c.resolveTrip(ctx, sender, rec)
	if err != nil {
		return Reply{}, err
	}
	if trip == nil {
		if cerr := c.store.Clear(ctx, sender.Key); cerr != nil {
			return Reply{}, ioErr("clearing your session", cerr)
		}
		return Reply{}, &NotFoundError{Message: noActiveTripUploadText}
	}

	if len(mf.Missing) > 0 {
		field := mf.Missing[0]
		switch field {
		case fieldAmount:
			amount, err := parseAmount(text)
			if err != nil {
				return Reply{}, validationf("I need a number for the amount, like 42.50.")
			}
			if amount.Sign() <= 0 {
				return Reply{}, validationf("The amount has to be more than zero.")
			}
			mf.Draft.Total = amount
		case fieldDescription:
			if text == "" {
				return Reply{}, validationf("Send a short description, like \"Dinner at Ichiran\".")
			}
			mf.Draft.Description = text
		case fieldPeople:
			payer, participants := c.extractPeople(ctx, trip.Participants, sender.Name, text)
			if payer == "" && len(participants) == 0 {
				return Reply{}, validationf("I couldn't find any trip members in that. Participants: %s\n\nList the people separated by commas.",
					strings.Join(trip.Participants, ", "))
			}
			if payer != "" {
				mf.Draft.Payer = payer
			}
			if len(participants) > 0 {
				mf.Draft.Participants = participants
			}
		}
		mf.Missing = mf.Missing[1:]
	}

	if len(mf.Missing) > 0 {
		if err := c.store.Update(ctx, sender.Key, session.StateAwaitingMissingFields, mf); err != nil {
			return Reply{}, ioErr("saving your session", err)
		}
		return textReply(missingPrompt(mf.Missing[0])), nil
	}
	draft := mf.Draft
	return c.advanceExpense(ctx, sender, trip, &draft)
}

// extractPeople reads a combined "payer and participants" reply. The
// language model handles free phrasing; a comma-separated list works
// without it.
func (c *Controller) extractPeople(ctx context.Context, roster []string, senderName, text string) (string, []string) {
	var payer string
	var participants []string

	if ext, err := c.extractor.Expense(ctx, text); err == nil {
		if name, ok := matchName(roster, ext.Payer, senderName); ok {
			payer = name
		}
		for _, raw := range ext.Participants {
			if name, ok := matchName(roster, raw, senderName); ok && !containsName(participants, name) {
				participants = append(participants, name)
			}
		}
	}
	if len(participants) == 0 {
		for _, raw := range parseNames(text) {
			if name, ok := matchName(roster, raw, senderName); ok && !containsName(participants, name) {
				participants = append(participants, name)
			}
		}
	}
	return payer, participants
}
