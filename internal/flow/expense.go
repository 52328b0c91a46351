package flow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/susu3304/tabiwari/internal/ledger"
	"github.com/susu3304/tabiwari/internal/session"
	"github.com/susu3304/tabiwari/internal/settle"
	"github.com/susu3304/tabiwari/internal/split"
)

// HandlePhoto runs the receipt entry point: extract the receipt, record a
// draft expense, ask how to split it.
func (c *Controller) HandlePhoto(ctx context.Context, sender Sender, image []byte, mimeType string) (Reply, error) {
	rec, err := c.store.GetOrCreate(ctx, sender.Key)
	if err != nil {
		return Reply{}, ioErr("loading your session", err)
	}
	trip, err := c.resolveTrip(ctx, sender, rec)
	if err != nil {
		return Reply{}, err
	}
	if trip == nil {
		return Reply{}, &NotFoundError{Message: noActiveTripUploadText}
	}

	receipt, err := c.extractor.Receipt(ctx, image, mimeType)
	if err != nil {
		return Reply{}, ioErr("reading your receipt", err)
	}
	if receipt.Total.Sign() <= 0 {
		return textReply("That doesn't look like a receipt I can read. Try a clearer photo, or add it with /expense <amount> <description>."), nil
	}
	if receipt.Description == "" {
		receipt.Description = "Receipt"
	}
	date := receipt.Date
	if date.IsZero() {
		date = time.Now()
	}
	txn, err := c.ledger.CreateDraft(ctx, trip.ID, receipt.Description, receipt.Total, receipt.Category, date)
	if err != nil {
		return Reply{}, ioErr("saving the expense", err)
	}
	return Reply{Text: receiptText(txn, trip.Participants), Buttons: splitKeyboard(txn.ID)}, nil
}

// manualExpense adds an expense from "/expense 45.50 Dinner at Ichiran".
func (c *Controller) manualExpense(ctx context.Context, sender Sender, args string) (Reply, error) {
	const usage = "Usage: /expense <amount> <description>\n\nExample: /expense 45.50 Dinner at Ichiran"
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return Reply{}, &ValidationError{Message: usage}
	}
	total, err := parseAmount(fields[0])
	if err != nil || total.Sign() <= 0 {
		return Reply{}, &ValidationError{Message: usage}
	}

	rec, err := c.store.GetOrCreate(ctx, sender.Key)
	if err != nil {
		return Reply{}, ioErr("loading your session", err)
	}
	trip, err := c.resolveTrip(ctx, sender, rec)
	if err != nil {
		return Reply{}, err
	}
	if trip == nil {
		return Reply{}, &NotFoundError{Message: noActiveTripUploadText}
	}
	draft := &session.ExpenseDraft{
		Description: strings.Join(fields[1:], " "),
		Total:       total,
		Category:    "other",
	}
	return c.advanceExpense(ctx, sender, trip, draft)
}

// expenseFromText is the natural-language entry point. Extraction output is
// untrusted: names are checked against the roster and share figures are
// validated like typed ones.
func (c *Controller) expenseFromText(ctx context.Context, sender Sender, rec session.Record, text string) (Reply, error) {
	ext, err := c.extractor.Expense(ctx, text)
	if err != nil {
		return Reply{}, ioErr("reading your message", err)
	}
	if ext.Total.Sign() <= 0 && ext.Description == "" {
		// Not an expense after all.
		return c.answer(ctx, sender, rec, text)
	}

	trip, err := c.resolveTrip(ctx, sender, rec)
	if err != nil {
		return Reply{}, err
	}
	if trip == nil {
		return Reply{}, &NotFoundError{Message: noActiveTripUploadText}
	}

	draft := &session.ExpenseDraft{
		Description: ext.Description,
		Total:       ext.Total,
		Category:    ext.Category,
	}
	if name, ok := matchName(trip.Participants, ext.Payer, sender.Name); ok {
		draft.Payer = name
	}
	for _, raw := range ext.Participants {
		if name, ok := matchName(trip.Participants, raw, sender.Name); ok && !containsName(draft.Participants, name) {
			draft.Participants = append(draft.Participants, name)
		}
	}
	switch ext.Policy {
	case ledger.PolicyEven, ledger.PolicyPercent, ledger.PolicyAmount:
		draft.Policy = ext.Policy
	}
	for raw, v := range ext.Shares {
		if name, ok := matchName(trip.Participants, raw, sender.Name); ok {
			if draft.Shares == nil {
				draft.Shares = make(map[string]decimal.Decimal)
			}
			draft.Shares[name] = v
		}
	}

	var missing []string
	if draft.Total.Sign() <= 0 {
		missing = append(missing, fieldAmount)
	}
	if draft.Description == "" {
		missing = append(missing, fieldDescription)
	}
	if draft.Payer == "" && len(draft.Participants) == 0 {
		missing = append(missing, fieldPeople)
	}
	if len(missing) > 0 {
		mf := &session.MissingFields{Draft: *draft, Missing: missing}
		if err := c.store.Update(ctx, sender.Key, session.StateAwaitingMissingFields, mf); err != nil {
			return Reply{}, ioErr("saving your session", err)
		}
		return textReply(missingPrompt(missing[0])), nil
	}
	return c.advanceExpense(ctx, sender, trip, draft)
}

// advanceExpense moves a draft to the next gap: payer, then participants,
// then split policy, then either an immediate finalize (even, or complete
// extracted shares) or the sequential custom-split collection.
func (c *Controller) advanceExpense(ctx context.Context, sender Sender, trip *ledger.Trip, draft *session.ExpenseDraft) (Reply, error) {
	if draft.ExpenseID == 0 {
		txn, err := c.ledger.CreateDraft(ctx, trip.ID, draft.Description, draft.Total, draft.Category, time.Now())
		if err != nil {
			return Reply{}, ioErr("saving the expense", err)
		}
		draft.ExpenseID = txn.ID
		draft.Total = txn.Total
	}

	if draft.Payer == "" {
		if err := c.store.Update(ctx, sender.Key, session.StateAwaitingPayer, draft); err != nil {
			return Reply{}, ioErr("saving your session", err)
		}
		return Reply{Text: askPayerText, Buttons: payerKeyboard(draft.ExpenseID, trip.Participants)}, nil
	}

	if len(draft.Participants) == 0 {
		if err := c.store.Update(ctx, sender.Key, session.StateAwaitingParticipantSelect, draft); err != nil {
			return Reply{}, ioErr("saving your session", err)
		}
		return Reply{Text: selectParticipantsText, Buttons: participantKeyboard(draft.Selected, trip.Participants)}, nil
	}
	// The ledger requires the payer among the participants; a missing share
	// stays expressible as a zero in a custom split.
	if !containsName(draft.Participants, draft.Payer) {
		draft.Participants = append([]string{draft.Payer}, draft.Participants...)
	}

	switch draft.Policy {
	case ledger.PolicyEven:
		amounts, err := split.Even(draft.Total, draft.Participants)
		if err != nil {
			return Reply{}, validationf("%s", err)
		}
		return c.finalizeExpense(ctx, sender, trip.ID, draft.ExpenseID, ledger.Split{
			Payer:        draft.Payer,
			Participants: draft.Participants,
			Policy:       ledger.PolicyEven,
			Amounts:      amounts,
		})
	case ledger.PolicyPercent, ledger.PolicyAmount:
		if coversAll(draft.Shares, draft.Participants) {
			amounts, err := computeShares(draft.Policy, draft.Total, draft.Participants, draft.Shares)
			if err == nil {
				return c.finalizeExpense(ctx, sender, trip.ID, draft.ExpenseID, ledger.Split{
					Payer:        draft.Payer,
					Participants: draft.Participants,
					Policy:       draft.Policy,
					Amounts:      amounts,
				})
			}
			lead := "The shares I picked up don't add up (" + err.Error() + "). Let's collect them one by one.\n\n"
			return c.startCustomSplit(ctx, sender, draft, lead)
		}
		return c.startCustomSplit(ctx, sender, draft, "")
	default:
		if err := c.store.Update(ctx, sender.Key, session.StateAwaitingSplitPolicy, draft); err != nil {
			return Reply{}, ioErr("saving your session", err)
		}
		return Reply{Text: splitQuestionText(draft), Buttons: splitKeyboard(draft.ExpenseID)}, nil
	}
}

func coversAll(shares map[string]decimal.Decimal, participants []string) bool {
	if len(shares) == 0 {
		return false
	}
	for _, p := range participants {
		if _, ok := shares[p]; !ok {
			return false
		}
	}
	return true
}

func computeShares(policy ledger.Policy, total decimal.Decimal, participants []string, shares map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	if policy == ledger.PolicyPercent {
		return split.Percent(total, participants, shares)
	}
	return split.Amount(total, participants, shares)
}

// finalizeExpense is the terminal transition: persist the split, compute both
// settlements, clear the session, report.
func (c *Controller) finalizeExpense(ctx context.Context, sender Sender, tripID, expenseID int64, sp ledger.Split) (Reply, error) {
	txn, err := c.ledger.FinalizeSplit(ctx, expenseID, sp)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrExpenseNotFound):
			if cerr := c.store.Clear(ctx, sender.Key); cerr != nil {
				return Reply{}, ioErr("clearing your session", cerr)
			}
			return Reply{}, notFoundf("❌ Expense not found")
		case errors.Is(err, ledger.ErrPayerNotParticipant):
			return Reply{}, validationf("%s has to be one of the people splitting this expense.", sp.Payer)
		case errors.Is(err, ledger.ErrNoParticipants):
			return Reply{}, validationf("Please pick at least one participant.")
		default:
			return Reply{}, ioErr("saving the split", err)
		}
	}

	instrs, ierr := settle.Immediate(sp.Payer, sp.Participants, sp.Amounts)
	immediate, err := immediateBody(sp.Payer, instrs, ierr)
	if err != nil {
		return Reply{}, ioErr("calculating the settlement", err)
	}
	txns, err := c.ledger.TripTransactions(ctx, tripID)
	if err != nil {
		return Reply{}, ioErr("loading expenses", err)
	}
	running, err := c.runningBalanceBody(txns)
	if err != nil {
		return Reply{}, err
	}
	if err := c.store.Clear(ctx, sender.Key); err != nil {
		return Reply{}, ioErr("saving your session", err)
	}
	return textReply(splitRecordedText(txn, sp.Payer, immediate, running)), nil
}

// tripForExpense walks an expense id back to its trip.
func (c *Controller) tripForExpense(ctx context.Context, expenseID int64) (*ledger.Trip, error) {
	txn, err := c.ledger.Transaction(ctx, expenseID)
	if err != nil {
		if errors.Is(err, ledger.ErrExpenseNotFound) {
			return nil, notFoundf("❌ Expense not found")
		}
		return nil, ioErr("loading the expense", err)
	}
	trip, err := c.ledger.TripByID(ctx, txn.TripID)
	if err != nil {
		if errors.Is(err, ledger.ErrTripNotFound) {
			return nil, notFoundf("❌ No active trip")
		}
		return nil, ioErr("loading your trip", err)
	}
	return trip, nil
}

// draftFor returns the working draft for an expense callback: the session
// draft when it matches, otherwise one rebuilt from the ledger row. Buttons
// carry the expense id, so they keep working after the session expired.
func (c *Controller) draftFor(ctx context.Context, rec session.Record, id int64) (*session.ExpenseDraft, *ledger.Trip, error) {
	txn, err := c.ledger.Transaction(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrExpenseNotFound) {
			return nil, nil, notFoundf("❌ Expense not found")
		}
		return nil, nil, ioErr("loading the expense", err)
	}
	trip, err := c.ledger.TripByID(ctx, txn.TripID)
	if err != nil {
		if errors.Is(err, ledger.ErrTripNotFound) {
			return nil, nil, notFoundf("❌ No active trip")
		}
		return nil, nil, ioErr("loading your trip", err)
	}
	if len(trip.Participants) == 0 {
		return nil, nil, notFoundf("❌ No participants in trip")
	}

	if d, ok := rec.Context.(*session.ExpenseDraft); ok && d.ExpenseID == id {
		return d, trip, nil
	}
	d := &session.ExpenseDraft{
		ExpenseID:   id,
		Description: txn.Description,
		Total:       txn.Total,
		Category:    txn.Category,
	}
	if sp, ok := txn.Split(); ok {
		d.Payer = sp.Payer
		d.Participants = sp.Participants
	}
	return d, trip, nil
}

// splitChoice handles the Split Evenly / Custom Split buttons. Even goes
// straight on; custom first asks which kind of custom split.
func (c *Controller) splitChoice(ctx context.Context, sender Sender, rec session.Record, id int64, policy ledger.Policy) (Reply, error) {
	draft, trip, err := c.draftFor(ctx, rec, id)
	if err != nil {
		return Reply{}, err
	}
	if len(draft.Participants) == 0 {
		draft.Participants = trip.Participants
	}
	if policy == ledger.PolicyEven {
		draft.Policy = ledger.PolicyEven
		draft.Shares = nil
		return c.advanceExpense(ctx, sender, trip, draft)
	}
	draft.Policy = ""
	if err := c.store.Update(ctx, sender.Key, session.StateAwaitingSplitPolicy, draft); err != nil {
		return Reply{}, ioErr("saving your session", err)
	}
	return Reply{Text: customKindText, Buttons: policyKeyboard()}, nil
}

func (c *Controller) payerChosen(ctx context.Context, sender Sender, rec session.Record, id int64, name string) (Reply, error) {
	if rec.State == session.StateAwaitingEditPayer {
		if target, ok := rec.Context.(*session.EditTarget); ok && target.ExpenseID == id {
			return c.applyPayerEdit(ctx, sender, id, name)
		}
	}
	draft, trip, err := c.draftFor(ctx, rec, id)
	if err != nil {
		return Reply{}, err
	}
	canonical, ok := matchName(trip.Participants, name, sender.Name)
	if !ok {
		return Reply{}, validationf("\"%s\" isn't on this trip.", name)
	}
	draft.Payer = canonical
	return c.advanceExpense(ctx, sender, trip, draft)
}

func (c *Controller) payerByText(ctx context.Context, sender Sender, rec session.Record, text string) (Reply, error) {
	draft, ok := rec.Context.(*session.ExpenseDraft)
	if !ok {
		if err := c.store.Clear(ctx, sender.Key); err != nil {
			return Reply{}, ioErr("clearing your session", err)
		}
		return Reply{}, &NotFoundError{Message: expenseExpiredText}
	}
	trip, err := c.tripForExpense(ctx, draft.ExpenseID)
	if err != nil {
		return Reply{}, err
	}
	name, ok := matchName(trip.Participants, text, sender.Name)
	if !ok {
		return Reply{}, validationf("\"%s\" isn't on this trip. Tap one of the buttons or send a participant's name.", text)
	}
	draft.Payer = name
	return c.advanceExpense(ctx, sender, trip, draft)
}

func (c *Controller) toggleParticipant(ctx context.Context, sender Sender, rec session.Record, name string) (Reply, error) {
	if rec.State != session.StateAwaitingParticipantSelect {
		return Reply{}, stateMismatchf("That button isn't active anymore.")
	}
	draft, ok := rec.Context.(*session.ExpenseDraft)
	if !ok {
		if err := c.store.Clear(ctx, sender.Key); err != nil {
			return Reply{}, ioErr("clearing your session", err)
		}
		return Reply{}, &NotFoundError{Message: expenseExpiredText}
	}
	trip, err := c.tripForExpense(ctx, draft.ExpenseID)
	if err != nil {
		return Reply{}, err
	}
	canonical, ok := matchName(trip.Participants, name, sender.Name)
	if !ok {
		return Reply{}, validationf("\"%s\" isn't on this trip.", name)
	}
	draft.Selected = toggleName(draft.Selected, canonical)
	if err := c.store.Update(ctx, sender.Key, session.StateAwaitingParticipantSelect, draft); err != nil {
		return Reply{}, ioErr("saving your session", err)
	}
	return Reply{Text: selectParticipantsText, Buttons: participantKeyboard(draft.Selected, trip.Participants)}, nil
}

func toggleName(selected []string, name string) []string {
	for i, n := range selected {
		if n == name {
			return append(selected[:i:i], selected[i+1:]...)
		}
	}
	return append(selected, name)
}

func (c *Controller) participantsDone(ctx context.Context, sender Sender, rec session.Record) (Reply, error) {
	if rec.State != session.StateAwaitingParticipantSelect {
		return Reply{}, stateMismatchf("That button isn't active anymore.")
	}
	draft, ok := rec.Context.(*session.ExpenseDraft)
	if !ok {
		if err := c.store.Clear(ctx, sender.Key); err != nil {
			return Reply{}, ioErr("clearing your session", err)
		}
		return Reply{}, &NotFoundError{Message: expenseExpiredText}
	}
	if len(draft.Selected) == 0 {
		return Reply{}, validationf("Select at least one participant first.")
	}
	trip, err := c.tripForExpense(ctx, draft.ExpenseID)
	if err != nil {
		return Reply{}, err
	}
	draft.Participants = draft.Selected
	draft.Selected = nil
	return c.advanceExpense(ctx, sender, trip, draft)
}

func (c *Controller) selectByText(ctx context.Context, sender Sender, rec session.Record, text string) (Reply, error) {
	if strings.EqualFold(text, "done") {
		return c.participantsDone(ctx, sender, rec)
	}
	return c.toggleParticipant(ctx, sender, rec, text)
}

func (c *Controller) policyChosen(ctx context.Context, sender Sender, rec session.Record, value string) (Reply, error) {
	if rec.State != session.StateAwaitingSplitPolicy {
		return Reply{}, stateMismatchf("That button isn't active anymore.")
	}
	draft, ok := rec.Context.(*session.ExpenseDraft)
	if !ok {
		if err := c.store.Clear(ctx, sender.Key); err != nil {
			return Reply{}, ioErr("clearing your session", err)
		}
		return Reply{}, &NotFoundError{Message: expenseExpiredText}
	}
	var policy ledger.Policy
	switch value {
	case "even":
		policy = ledger.PolicyEven
	case "percent":
		policy = ledger.PolicyPercent
	case "amount":
		policy = ledger.PolicyAmount
	default:
		return Reply{}, stateMismatchf("Invalid callback data")
	}
	trip, err := c.tripForExpense(ctx, draft.ExpenseID)
	if err != nil {
		return Reply{}, err
	}
	draft.Policy = policy
	// An explicit pick restarts share entry; extracted figures are dropped.
	draft.Shares = nil
	return c.advanceExpense(ctx, sender, trip, draft)
}

func (c *Controller) policyByText(ctx context.Context, sender Sender, rec session.Record, text string) (Reply, error) {
	norm := strings.ToLower(text)
	var value string
	switch {
	case strings.Contains(norm, "even") || strings.Contains(norm, "equal"):
		value = "even"
	case strings.Contains(norm, "percent") || strings.Contains(norm, "%"):
		value = "percent"
	case strings.Contains(norm, "amount") || strings.Contains(norm, "exact"):
		value = "amount"
	default:
		return Reply{}, stateMismatchf("Please pick one: Split Evenly, by percentages, or by exact amounts.")
	}
	return c.policyChosen(ctx, sender, rec, value)
}
