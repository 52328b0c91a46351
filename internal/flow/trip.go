package flow

import (
	"context"
	"errors"
	"strings"

	"github.com/susu3304/tabiwari/internal/ledger"
	"github.com/susu3304/tabiwari/internal/session"
	"github.com/susu3304/tabiwari/internal/settle"
)

// newTrip starts the three-step trip creation dialogue: name from the
// command, then location, then participants.
func (c *Controller) newTrip(ctx context.Context, sender Sender, name string) (Reply, error) {
	if name == "" {
		return Reply{}, &ValidationError{Message: newTripUsageText}
	}
	err := c.store.Update(ctx, sender.Key, session.StateAwaitingLocation, &session.TripDraft{Name: name})
	if err != nil {
		return Reply{}, ioErr("starting trip creation", err)
	}
	return textReply(askLocationText(name)), nil
}

func (c *Controller) tripLocation(ctx context.Context, sender Sender, rec session.Record, text string) (Reply, error) {
	draft, ok := rec.Context.(*session.TripDraft)
	if !ok || draft.Name == "" {
		if err := c.store.Clear(ctx, sender.Key); err != nil {
			return Reply{}, ioErr("clearing your session", err)
		}
		return Reply{}, &NotFoundError{Message: tripExpiredText}
	}
	if text == "" {
		return Reply{}, validationf("Where are you traveling to? (e.g., \"Tokyo, Japan\")")
	}
	draft.Location = text
	if err := c.store.Update(ctx, sender.Key, session.StateAwaitingParticipants, draft); err != nil {
		return Reply{}, ioErr("saving your session", err)
	}
	return textReply(locationSetText(text)), nil
}

func (c *Controller) tripParticipants(ctx context.Context, sender Sender, rec session.Record, text string) (Reply, error) {
	draft, ok := rec.Context.(*session.TripDraft)
	if !ok || draft.Name == "" {
		if err := c.store.Clear(ctx, sender.Key); err != nil {
			return Reply{}, ioErr("clearing your session", err)
		}
		return Reply{}, &NotFoundError{Message: tripExpiredText}
	}

	names := c.extractNames(ctx, text)
	if len(names) == 0 {
		return Reply{}, validationf("Please provide at least one participant name.")
	}

	trip, err := c.ledger.CreateTrip(ctx, sender.Key.UserID, sender.Key.ChatID, sender.ChatType,
		draft.Name, draft.Location, names)
	if err != nil {
		if errors.Is(err, ledger.ErrTripExists) {
			if cerr := c.store.Clear(ctx, sender.Key); cerr != nil {
				return Reply{}, ioErr("clearing your session", cerr)
			}
			return Reply{}, validationf("A trip named \"%s\" already exists in this chat. Start again with /new_trip and a different name.", draft.Name)
		}
		return Reply{}, ioErr("creating trip", err)
	}
	if err := c.store.SetCurrentTrip(ctx, sender.Key, trip.ID); err != nil {
		return Reply{}, ioErr("saving your session", err)
	}
	if err := c.store.Clear(ctx, sender.Key); err != nil {
		return Reply{}, ioErr("saving your session", err)
	}
	return textReply(tripCreatedText(trip)), nil
}

// extractNames reads a participant list, letting the language model handle
// phrasing like "Alice, Bob and me" and falling back to comma splitting.
func (c *Controller) extractNames(ctx context.Context, text string) []string {
	names, err := c.extractor.People(ctx, text)
	if err != nil || len(names) == 0 {
		return parseNames(text)
	}
	var out []string
	seen := make(map[string]bool)
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[strings.ToLower(n)] {
			continue
		}
		seen[strings.ToLower(n)] = true
		out = append(out, n)
	}
	return out
}

func (c *Controller) listTrips(ctx context.Context, sender Sender) (Reply, error) {
	trips, err := c.ledger.ListTrips(ctx, sender.Key.ChatID)
	if err != nil {
		return Reply{}, ioErr("listing trips", err)
	}
	if len(trips) == 0 {
		return textReply(noTripsText), nil
	}
	return textReply(tripsListText(trips)), nil
}

func (c *Controller) switchTrip(ctx context.Context, sender Sender, name string) (Reply, error) {
	if name == "" {
		return Reply{}, validationf("Usage: /switch_trip <trip name>\n\nSee your trips with /list_trips.")
	}
	trip, err := c.ledger.TripByName(ctx, sender.Key.ChatID, name)
	if err != nil {
		if errors.Is(err, ledger.ErrTripNotFound) {
			return Reply{}, notFoundf("No trip named \"%s\" in this chat.\n\nSee your trips with /list_trips.", name)
		}
		return Reply{}, ioErr("switching trips", err)
	}
	if err := c.ledger.TouchTrip(ctx, trip.ID); err != nil {
		return Reply{}, ioErr("switching trips", err)
	}
	if err := c.store.SetCurrentTrip(ctx, sender.Key, trip.ID); err != nil {
		return Reply{}, ioErr("saving your session", err)
	}
	return textReply(tripSwitchedText(trip)), nil
}

func (c *Controller) currentTripCmd(ctx context.Context, sender Sender) (Reply, error) {
	rec, err := c.store.GetOrCreate(ctx, sender.Key)
	if err != nil {
		return Reply{}, ioErr("loading your session", err)
	}
	trip, err := c.resolveTrip(ctx, sender, rec)
	if err != nil {
		return Reply{}, err
	}
	if trip == nil {
		return textReply(noActiveTripFoundText), nil
	}
	sum, err := c.ledger.TripSummary(ctx, trip.ID)
	if err != nil {
		return Reply{}, ioErr("loading trip summary", err)
	}
	return textReply(currentTripText(trip, sum)), nil
}

// balance renders the running settlement for the active trip, or one
// participant's totals when a name is given.
func (c *Controller) balance(ctx context.Context, sender Sender, name string) (Reply, error) {
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

	if name != "" {
		return c.participantBalance(ctx, sender, trip, name)
	}

	sum, err := c.ledger.TripSummary(ctx, trip.ID)
	if err != nil {
		return Reply{}, ioErr("loading trip summary", err)
	}
	txns, err := c.ledger.TripTransactions(ctx, trip.ID)
	if err != nil {
		return Reply{}, ioErr("loading expenses", err)
	}
	body, err := c.runningBalanceBody(txns)
	if err != nil {
		return Reply{}, err
	}
	return textReply(balanceText(trip, sum, body)), nil
}

func (c *Controller) summaryCmd(ctx context.Context, sender Sender) (Reply, error) {
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
	sum, err := c.ledger.TripSummary(ctx, trip.ID)
	if err != nil {
		return Reply{}, ioErr("loading trip summary", err)
	}
	return textReply(summaryText(sum)), nil
}

func (c *Controller) participantBalance(ctx context.Context, sender Sender, trip *ledger.Trip, raw string) (Reply, error) {
	name, ok := matchName(trip.Participants, raw, sender.Name)
	if !ok {
		return Reply{}, validationf("\"%s\" isn't on this trip. Participants: %s",
			raw, strings.Join(trip.Participants, ", "))
	}
	txns, err := c.ledger.TripTransactions(ctx, trip.ID)
	if err != nil {
		return Reply{}, ioErr("loading expenses", err)
	}
	bal := settle.ParticipantBalance(txns, name)
	return textReply(participantBalanceText(trip, name, bal)), nil
}

// runningBalanceBody computes the minimized settlement and renders it,
// including the two sentinel messages.
func (c *Controller) runningBalanceBody(txns []ledger.Transaction) (string, error) {
	instrs, rerr := settle.RunningBalance(txns)
	body, err := runningBody(instrs, rerr)
	if err != nil {
		return "", ioErr("calculating the balance", err)
	}
	return body, nil
}
