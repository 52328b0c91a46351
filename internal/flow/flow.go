// Package flow is the conversation state machine. Each inbound turn reads the
// session, validates the input against the active state, drives the ledger
// and settlement services, writes the next state and returns a Reply. The
// package never talks to Telegram; the dispatcher renders Reply buttons as an
// inline keyboard.
package flow

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/susu3304/tabiwari/internal/extract"
	"github.com/susu3304/tabiwari/internal/ledger"
	"github.com/susu3304/tabiwari/internal/memory"
	"github.com/susu3304/tabiwari/internal/session"
)

// Button is one choice offered to the user. Data comes back verbatim through
// HandleCallback when pressed.
type Button struct {
	Label string
	Data  string
}

// Reply is what a handled turn sends back: text, optionally with a choice
// keyboard.
type Reply struct {
	Text    string
	Buttons [][]Button
}

func textReply(s string) Reply { return Reply{Text: s} }

// Sender identifies who is talking and where. Name is the sender's display
// name, used to resolve "me" in extracted payers.
type Sender struct {
	Key      session.Key
	ChatType string
	Name     string
}

// Ledger is the slice of the transaction service the flows drive.
type Ledger interface {
	CreateTrip(ctx context.Context, userID, chatID, chatType, name, location string, participants []string) (*ledger.Trip, error)
	TripByID(ctx context.Context, id int64) (*ledger.Trip, error)
	TripByName(ctx context.Context, chatID, name string) (*ledger.Trip, error)
	ListTrips(ctx context.Context, chatID string) ([]ledger.Trip, error)
	CurrentTrip(ctx context.Context, userID, chatID, chatType string, currentTripID *int64) (*ledger.Trip, error)
	TouchTrip(ctx context.Context, id int64) error
	CreateDraft(ctx context.Context, tripID int64, description string, total decimal.Decimal, category string, date time.Time) (*ledger.Transaction, error)
	Transaction(ctx context.Context, id int64) (*ledger.Transaction, error)
	TripTransactions(ctx context.Context, tripID int64) ([]ledger.Transaction, error)
	FinalizeSplit(ctx context.Context, id int64, sp ledger.Split) (*ledger.Transaction, error)
	UpdateAmount(ctx context.Context, id int64, total decimal.Decimal) (*ledger.Transaction, error)
	UpdateDescription(ctx context.Context, id int64, description string) error
	UpdatePayer(ctx context.Context, id int64, payer string) error
	DeleteTransaction(ctx context.Context, id int64) error
	TripSummary(ctx context.Context, tripID int64) (*ledger.Summary, error)
}

// Extractor is the slice of the language-model client the flows use.
type Extractor interface {
	Expense(ctx context.Context, text string) (extract.Expense, error)
	People(ctx context.Context, text string) ([]string, error)
	Receipt(ctx context.Context, image []byte, mimeType string) (extract.Receipt, error)
	Answer(ctx context.Context, question, tripContext, history string) (string, error)
}

// Controller holds the collaborators shared by every flow. Turns for the same
// session key must be serialized by the caller (session.Store.Lock).
type Controller struct {
	store     *session.Store
	ledger    Ledger
	extractor Extractor
	window    *memory.Window
}

func NewController(store *session.Store, ldg Ledger, ext Extractor, window *memory.Window) *Controller {
	return &Controller{store: store, ledger: ldg, extractor: ext, window: window}
}

// HandleCommand runs a slash command. Commands other than /cancel work
// regardless of any flow in progress and leave its state alone.
func (c *Controller) HandleCommand(ctx context.Context, sender Sender, command, args string) (Reply, error) {
	args = strings.TrimSpace(args)
	switch command {
	case "start":
		return textReply(welcomeText), nil
	case "help":
		return textReply(helpText), nil
	case "new_trip":
		return c.newTrip(ctx, sender, args)
	case "list_trips":
		return c.listTrips(ctx, sender)
	case "switch_trip":
		return c.switchTrip(ctx, sender, args)
	case "current_trip":
		return c.currentTripCmd(ctx, sender)
	case "balance":
		return c.balance(ctx, sender, args)
	case "summary":
		return c.summaryCmd(ctx, sender)
	case "expense":
		return c.manualExpense(ctx, sender, args)
	case "edit":
		return c.editCmd(ctx, sender, args)
	case "cancel":
		return c.cancel(ctx, sender)
	default:
		return textReply("I don't know that command. /help lists what I can do."), nil
	}
}

// HandleText runs a plain message through the active state, or through the
// idle-text router when no flow is in progress.
func (c *Controller) HandleText(ctx context.Context, sender Sender, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	rec, err := c.store.GetOrCreate(ctx, sender.Key)
	if err != nil {
		return Reply{}, ioErr("loading your session", err)
	}

	switch rec.State {
	case session.StateIdle:
		return c.routeIdleText(ctx, sender, rec, text)
	case session.StateAwaitingLocation:
		return c.tripLocation(ctx, sender, rec, text)
	case session.StateAwaitingParticipants:
		return c.tripParticipants(ctx, sender, rec, text)
	case session.StateAwaitingPayer:
		return c.payerByText(ctx, sender, rec, text)
	case session.StateAwaitingParticipantSelect:
		return c.selectByText(ctx, sender, rec, text)
	case session.StateAwaitingSplitPolicy:
		return c.policyByText(ctx, sender, rec, text)
	case session.StateAwaitingCustomSplit:
		return c.collectShare(ctx, sender, rec, text)
	case session.StateAwaitingMissingFields:
		return c.fillMissing(ctx, sender, rec, text)
	case session.StateAwaitingEditAmount, session.StateAwaitingEditDescription, session.StateAwaitingEditPayer:
		return c.editValue(ctx, sender, rec, text)
	case session.StateAwaitingConfirm:
		return c.confirmByText(ctx, sender, rec, text)
	default:
		return c.routeIdleText(ctx, sender, rec, text)
	}
}

// HandleCallback runs a button press.
func (c *Controller) HandleCallback(ctx context.Context, sender Sender, data string) (Reply, error) {
	rec, err := c.store.GetOrCreate(ctx, sender.Key)
	if err != nil {
		return Reply{}, ioErr("loading your session", err)
	}

	switch {
	case strings.HasPrefix(data, "split_even:"):
		id, err := callbackID(strings.TrimPrefix(data, "split_even:"))
		if err != nil {
			return Reply{}, err
		}
		return c.splitChoice(ctx, sender, rec, id, ledger.PolicyEven)
	case strings.HasPrefix(data, "split_custom:"):
		id, err := callbackID(strings.TrimPrefix(data, "split_custom:"))
		if err != nil {
			return Reply{}, err
		}
		return c.splitChoice(ctx, sender, rec, id, "")
	case strings.HasPrefix(data, "paid_by:"):
		parts := strings.SplitN(data, ":", 3)
		if len(parts) != 3 || parts[2] == "" {
			return Reply{}, stateMismatchf("Invalid callback data")
		}
		id, err := callbackID(parts[1])
		if err != nil {
			return Reply{}, err
		}
		return c.payerChosen(ctx, sender, rec, id, parts[2])
	case strings.HasPrefix(data, "psel:"):
		return c.toggleParticipant(ctx, sender, rec, strings.TrimPrefix(data, "psel:"))
	case data == "psel_done":
		return c.participantsDone(ctx, sender, rec)
	case strings.HasPrefix(data, "policy:"):
		return c.policyChosen(ctx, sender, rec, strings.TrimPrefix(data, "policy:"))
	case strings.HasPrefix(data, "edit:"):
		parts := strings.SplitN(data, ":", 3)
		if len(parts) != 3 {
			return Reply{}, stateMismatchf("Invalid callback data")
		}
		id, err := callbackID(parts[2])
		if err != nil {
			return Reply{}, err
		}
		return c.editChosen(ctx, sender, parts[1], id)
	case strings.HasPrefix(data, "confirm:"):
		return c.confirmChosen(ctx, sender, rec, strings.TrimPrefix(data, "confirm:"))
	default:
		return Reply{}, stateMismatchf("Invalid callback data")
	}
}

func callbackID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, stateMismatchf("Invalid callback data")
	}
	return id, nil
}

// cancel abandons whatever flow is in progress. Ledger rows already written
// (a draft expense, say) stay put.
func (c *Controller) cancel(ctx context.Context, sender Sender) (Reply, error) {
	rec, err := c.store.GetOrCreate(ctx, sender.Key)
	if err != nil {
		return Reply{}, ioErr("loading your session", err)
	}
	if rec.State == session.StateIdle {
		return textReply("Nothing to cancel. You're all set."), nil
	}
	if err := c.store.Clear(ctx, sender.Key); err != nil {
		return Reply{}, ioErr("clearing your session", err)
	}
	return textReply("Cancelled. Nothing was saved."), nil
}

// resolveTrip finds the sender's active trip, nil when there is none.
func (c *Controller) resolveTrip(ctx context.Context, sender Sender, rec session.Record) (*ledger.Trip, error) {
	trip, err := c.ledger.CurrentTrip(ctx, sender.Key.UserID, sender.Key.ChatID, sender.ChatType, rec.CurrentTripID)
	if err != nil {
		if isNoTrip(err) {
			return nil, nil
		}
		return nil, ioErr("loading your trip", err)
	}
	return trip, nil
}

func isNoTrip(err error) bool {
	return errors.Is(err, ledger.ErrNoActiveTrip) || errors.Is(err, ledger.ErrTripNotFound)
}

const (
	fieldAmount      = "amount"
	fieldDescription = "description"
	fieldPeople      = "people"
)

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// matchName resolves raw against the roster, case-insensitively. "me" and
// "I" resolve to the sender's own name when it is on the roster.
func matchName(roster []string, raw, senderName string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	lower := strings.ToLower(raw)
	if lower == "me" || lower == "i" || lower == "myself" {
		raw = senderName
		lower = strings.ToLower(senderName)
	}
	for _, n := range roster {
		if strings.ToLower(n) == lower {
			return n, true
		}
	}
	return "", false
}

// parseNames splits a comma-separated name list, trimming and dropping
// duplicates case-insensitively while keeping the first spelling.
func parseNames(text string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(text, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, name)
	}
	return names
}

// parseAmount reads a user-typed number, tolerating $ and % decoration and
// thousands commas.
func parseAmount(text string) (decimal.Decimal, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	return decimal.NewFromString(s)
}

var (
	reListExpenses   = regexp.MustCompile(`(?i)\b(list|show|view)\b.{0,20}\bexpenses\b`)
	reDeleteExpense  = regexp.MustCompile(`(?i)\b(delete|remove)\b.{0,20}\bexpense\b`)
	reQuestionText   = regexp.MustCompile(`(?i)(^(what|when|where|how|why|who|which|can|could|would|should|is|are|do|does)\s|\b(tell me|explain|describe)\b)`)
	reExpenseText    = regexp.MustCompile(`(?i)\$\d|\b(spent|paid|cost|bill|receipt|expense|bought|lunch|dinner|breakfast|meal|restaurant|cafe)\b`)
	reSettlementText = regexp.MustCompile(`(?i)\b(balance|owes?|debt|settle|settlement|pay back|repay|split)\b`)
)

// routeIdleText picks a handler for free text outside any flow: expense
// bookkeeping phrases start the expense flow, settlement phrases render the
// running balance, everything else goes to question answering.
func (c *Controller) routeIdleText(ctx context.Context, sender Sender, rec session.Record, text string) (Reply, error) {
	switch {
	case reListExpenses.MatchString(text):
		return c.expensesList(ctx, sender, rec)
	case reDeleteExpense.MatchString(text):
		return c.deleteLatest(ctx, sender, rec)
	case reQuestionText.MatchString(text):
		return c.answer(ctx, sender, rec, text)
	case reExpenseText.MatchString(text):
		return c.expenseFromText(ctx, sender, rec, text)
	case reSettlementText.MatchString(text):
		return c.balance(ctx, sender, "")
	default:
		return c.answer(ctx, sender, rec, text)
	}
}

// answer grounds a free-text question in the active trip and the recent
// conversation, then asks the language model.
func (c *Controller) answer(ctx context.Context, sender Sender, rec session.Record, text string) (Reply, error) {
	trip, err := c.resolveTrip(ctx, sender, rec)
	if err != nil {
		return Reply{}, err
	}
	if trip == nil {
		return textReply(qaNoTripText), nil
	}
	txns, err := c.ledger.TripTransactions(ctx, trip.ID)
	if err != nil {
		return Reply{}, ioErr("loading expenses", err)
	}
	sum, err := c.ledger.TripSummary(ctx, trip.ID)
	if err != nil {
		return Reply{}, ioErr("loading expenses", err)
	}
	histKey := strconv.FormatInt(trip.ID, 10)
	answer, err := c.extractor.Answer(ctx, text, tripContextText(trip, txns, sum), c.window.AsText(histKey))
	if err != nil {
		return Reply{}, ioErr("answering that", err)
	}
	c.window.Add(histKey, memory.RoleUser, text)
	c.window.Add(histKey, memory.RoleAssistant, answer)
	return textReply(answer), nil
}
