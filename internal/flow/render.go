package flow

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/susu3304/tabiwari/internal/ledger"
	"github.com/susu3304/tabiwari/internal/mapurl"
	"github.com/susu3304/tabiwari/internal/session"
	"github.com/susu3304/tabiwari/internal/settle"
)

func money(d decimal.Decimal) string { return "$" + d.StringFixed(2) }

func title(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

const welcomeText = `Welcome to your Travel Assistant! ✈️

I help you:
✈️ Keep your trips and people in one place
💰 Track expenses and split bills

Getting Started:
1. Create a trip: /new_trip <trip name>
2. Upload receipts to track expenses
3. Check who owes what: /balance

Commands:
• /new_trip <name> - Start a new trip
• /list_trips - See all your trips
• /current_trip - View active trip
• /balance - Check who owes what
• /help - Show this message`

const helpText = `📚 Commands Guide:

TRIPS:
• /new_trip <name> - Create new trip
  Example: /new_trip Tokyo 2025
• /list_trips - View all trips
• /switch_trip <name> - Make another trip active
• /current_trip - Show active trip details

EXPENSES:
• Upload receipt photo → I'll extract details & ask how to split
• /expense <amount> <description> - Add an expense by hand
• /balance - See running balance and settlements
• /balance <name> - One participant's totals
• /summary - Spending by category and payer
• /edit - Fix the latest expense (or /edit <id>)

OTHER:
• /start - Welcome message
• /cancel - Abandon whatever I'm asking about
• /help - This guide

Tips:
  - Latest trip is automatically active
  - All uploads are linked to current trip
  - Use simple names for participants (no Telegram accounts needed)`

const newTripUsageText = `Please provide a trip name!

Usage: /new_trip Tokyo 2025

I'll then ask for location and participants.`

const tripExpiredText = "Error: Trip creation session expired. Please start over with /new_trip"

const expenseExpiredText = "Error: Expense session expired. Please start over."

const splitExpiredText = "Error: Split session expired. Please start over with /edit"

const editExpiredText = "Error: Edit session expired. Please start over with /edit"

const noTripsText = `You don't have any trips yet!

Create one with: /new_trip <trip name>

Example: /new_trip Paris 2025`

const noActiveTripText = "No active trip. Create one with /new_trip"

const noActiveTripFoundText = `No active trip found.

Create one with: /new_trip <trip name>`

const noActiveTripUploadText = `❌ No active trip found!

Create a trip first: /new_trip <trip name>`

const qaNoTripText = `I don't have any trip context yet.

Create a trip with: /new_trip <trip name>

Then upload receipts or tell me what you spent and I'll remember it!`

const noExpensesText = "No expenses yet for this trip."

const selectParticipantsText = "Who should split this expense? Tap names to select, then Done."

const askPayerText = "Who paid for this expense?"

const customKindText = "How should the custom split work?"

func askLocationText(name string) string {
	return fmt.Sprintf("Great! Creating trip: \"%s\"\n\nWhere are you traveling to? (e.g., \"Tokyo, Japan\")", name)
}

func locationSetText(location string) string {
	return fmt.Sprintf(`Location set: %s

Who's on this trip? Send names separated by commas.
Example: Alice, Bob, Carol

(Include yourself if you want to track your expenses too!)`, location)
}

func tripCreatedText(t *ledger.Trip) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Trip \"%s\" created!\n\n", t.Name)
	fmt.Fprintf(&b, "📍 Location: %s\n", t.Location)
	b.WriteString("👥 Participants:\n")
	for _, p := range t.Participants {
		fmt.Fprintf(&b, "  • %s\n", p)
	}
	b.WriteString("\nThis is now your active trip. Upload receipts or just tell me what you spent and I'll track everything!\n\n")
	b.WriteString("Commands:\n")
	b.WriteString("• /balance - Check who owes what\n")
	b.WriteString("• /list_trips - See all your trips\n")
	b.WriteString("• /current_trip - View active trip details")
	return b.String()
}

func tripsListText(trips []ledger.Trip) string {
	blocks := make([]string, 0, len(trips))
	for _, t := range trips {
		emoji := "⚪"
		if t.Status == "active" {
			emoji = "🟢"
		}
		blocks = append(blocks, fmt.Sprintf("%s %s\n   📍 %s\n   👥 %d participants | %s",
			emoji, t.Name, t.Location, len(t.Participants), t.Status))
	}
	return "Your trips:\n\n" + strings.Join(blocks, "\n\n")
}

func tripSwitchedText(t *ledger.Trip) string {
	return fmt.Sprintf(`✅ Switched to "%s"!

📍 Location: %s
👥 %d participants

This is now your active trip.`, t.Name, t.Location, len(t.Participants))
}

func currentTripText(t *ledger.Trip, sum *ledger.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current trip: %s\n\n", t.Name)
	fmt.Fprintf(&b, "📍 Location: %s\n", t.Location)
	if t.Location != "" {
		fmt.Fprintf(&b, "🗺 Map: %s\n", mapurl.SearchURL(t.Location))
	}
	b.WriteString("👥 Participants:\n")
	for _, p := range t.Participants {
		fmt.Fprintf(&b, "  • %s\n", p)
	}
	b.WriteString("\n💰 Expenses:\n")
	fmt.Fprintf(&b, "  • Total spent: %s\n", money(sum.TotalSpent))
	fmt.Fprintf(&b, "  • Number of expenses: %d\n\n", sum.Count)
	fmt.Fprintf(&b, "Status: %s\n", t.Status)
	fmt.Fprintf(&b, "Created: %s\n\n", t.CreatedAt.Format("2006-01-02"))
	b.WriteString("Use /balance to see settlement details.")
	return b.String()
}

func balanceText(t *ledger.Trip, sum *ledger.Summary, settlement string) string {
	return fmt.Sprintf(`💰 Running Balance: %s

Total spent: %s
Expenses: %d

Settlement:
%s

This shows the total owed across all expenses for this trip.`,
		t.Name, money(sum.TotalSpent), sum.Count, settlement)
}

func settlementLines(instrs []settle.Instruction) string {
	lines := make([]string, 0, len(instrs))
	for _, in := range instrs {
		lines = append(lines, fmt.Sprintf("• %s owes %s %s", in.Debtor, in.Creditor, money(in.Amount)))
	}
	return strings.Join(lines, "\n")
}

// immediateBody renders the per-expense settlement, mapping the no-op
// sentinel to its message. Other errors pass through.
func immediateBody(payer string, instrs []settle.Instruction, err error) (string, error) {
	if errors.Is(err, settle.ErrNothingToSettle) {
		return fmt.Sprintf("No settlements needed. %s paid for themselves only.", payer), nil
	}
	if err != nil {
		return "", err
	}
	return settlementLines(instrs), nil
}

// runningBody renders the cumulative settlement, mapping both sentinels to
// their messages. Other errors pass through.
func runningBody(instrs []settle.Instruction, err error) (string, error) {
	switch {
	case errors.Is(err, settle.ErrNoExpenses):
		return "No expenses recorded for this trip yet.", nil
	case errors.Is(err, settle.ErrAllSettled):
		return "All settled up! No one owes anyone.", nil
	case err != nil:
		return "", err
	}
	return settlementLines(instrs), nil
}

func receiptText(txn *ledger.Transaction, participants []string) string {
	return fmt.Sprintf(`✅ Receipt extracted!

🏪 %s
💰 Total: %s
📅 %s

How should this be split among:
%s?`,
		txn.Description, money(txn.Total), txn.Date.Format("2006-01-02"),
		strings.Join(participants, ", "))
}

func splitQuestionText(draft *session.ExpenseDraft) string {
	return fmt.Sprintf("💰 %s at %s\n\nHow should this be split among:\n%s?",
		money(draft.Total), draft.Description, strings.Join(draft.Participants, ", "))
}

func splitRecordedText(txn *ledger.Transaction, payer, immediate, running string) string {
	return fmt.Sprintf(`✅ Expense split recorded!

💰 %s at %s
👤 Paid by: %s

📊 IMMEDIATE SETTLEMENT (this expense):
%s

📈 RUNNING BALANCE (all trip expenses):
%s

Use /balance to see running balance anytime.`,
		money(txn.Total), txn.Description, payer, immediate, running)
}

func expensesListText(txns []ledger.Transaction) string {
	total := decimal.Zero
	for _, t := range txns {
		total = total.Add(t.Total)
	}
	lines := []string{fmt.Sprintf("Trip Expenses (Total: %s):\n", money(total))}
	shown := txns
	if len(shown) > 10 {
		shown = shown[:10]
	}
	for _, t := range shown {
		lines = append(lines, fmt.Sprintf("• %s - %s (%s) - %s",
			t.Description, money(t.Total), t.Category, t.Date.Format("2006-01-02")))
		if sp, ok := t.Split(); ok {
			lines = append(lines, fmt.Sprintf("  Paid by: %s", sp.Payer))
			lines = append(lines, "  Owed by:")
			for _, p := range sp.Participants {
				lines = append(lines, fmt.Sprintf("    - %s: %s", p, money(sp.Amounts[p])))
			}
		} else {
			lines = append(lines, "  Paid by: Unknown")
		}
		lines = append(lines, "")
	}
	if len(txns) > 10 {
		lines = append(lines, fmt.Sprintf("...and %d more expenses", len(txns)-10))
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

func summaryText(sum *ledger.Summary) string {
	lines := []string{"Expense Summary:\n"}
	lines = append(lines, fmt.Sprintf("Total Spent: %s", money(sum.TotalSpent)))
	lines = append(lines, fmt.Sprintf("Number of Expenses: %d\n", sum.Count))
	if len(sum.ByCategory) > 0 {
		lines = append(lines, "By Category:")
		for _, k := range keysByValueDesc(sum.ByCategory) {
			lines = append(lines, fmt.Sprintf("  • %s: %s", title(k), money(sum.ByCategory[k])))
		}
	}
	if len(sum.ByPayer) > 0 {
		lines = append(lines, "\nBy Payer:")
		for _, k := range keysByValueDesc(sum.ByPayer) {
			lines = append(lines, fmt.Sprintf("  • %s: %s", k, money(sum.ByPayer[k])))
		}
	}
	return strings.Join(lines, "\n")
}

// keysByValueDesc orders map keys largest amount first, ties alphabetical.
func keysByValueDesc(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := m[keys[i]], m[keys[j]]
		if !a.Equal(b) {
			return a.GreaterThan(b)
		}
		return keys[i] < keys[j]
	})
	return keys
}

func participantBalanceText(t *ledger.Trip, name string, b settle.Balance) string {
	var status string
	switch b.Status {
	case settle.StatusCreditor:
		status = fmt.Sprintf("%s is owed %s overall.", name, money(b.Net))
	case settle.StatusDebtor:
		status = fmt.Sprintf("%s owes %s overall.", name, money(b.Net.Neg()))
	default:
		status = fmt.Sprintf("%s is all settled up.", name)
	}
	return fmt.Sprintf(`💳 %s - %s

Paid: %s
Owed: %s
Net: %s

%s`, name, t.Name, money(b.TotalPaid), money(b.TotalOwed), money(b.Net), status)
}

func askShareText(prog *session.CustomSplitProgress) string {
	name := prog.Participants[prog.Index]
	if prog.Policy == ledger.PolicyPercent {
		if prog.Index == 0 && len(prog.Collected) == 0 {
			return fmt.Sprintf("Collecting percentages for the custom split.\n\nWhat percentage of the bill is %s's share? (just the number, e.g. 25)", name)
		}
		return fmt.Sprintf("Got it. %s%% assigned so far.\n\nWhat percentage is %s's share?", collectedSum(prog).String(), name)
	}
	if prog.Index == 0 && len(prog.Collected) == 0 {
		return fmt.Sprintf("Collecting exact amounts for the custom split.\n\nHow much of the %s bill is %s's share? (just the number, e.g. 12.50)", money(prog.Total), name)
	}
	return fmt.Sprintf("Got it. %s of %s assigned so far.\n\nHow much is %s's share?", money(collectedSum(prog)), money(prog.Total), name)
}

func collectedSum(prog *session.CustomSplitProgress) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range prog.Collected {
		sum = sum.Add(v)
	}
	return sum
}

func customSplitFailText(policy ledger.Policy, sum, total decimal.Decimal) string {
	if policy == ledger.PolicyPercent {
		return fmt.Sprintf("Those percentages add up to %s%%, not 100%%.\n\nLet's start over.", sum.String())
	}
	return fmt.Sprintf("Those amounts add up to %s, but the bill is %s.\n\nLet's start over.", money(sum), money(total))
}

func missingPrompt(field string) string {
	switch field {
	case fieldAmount:
		return "How much did that cost? (just the number, e.g. 42.50)"
	case fieldDescription:
		return "What was this expense for? (e.g. Dinner at Ichiran)"
	default:
		return "Who paid, and who should split it?\nSay something like \"Alice paid, split with Bob and Carol\", or just list names separated by commas."
	}
}

// tripContextText assembles the grounding block for question answering. Not
// shown to the user.
func tripContextText(t *ledger.Trip, txns []ledger.Transaction, sum *ledger.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trip: %s\n", t.Name)
	fmt.Fprintf(&b, "Location: %s\n", t.Location)
	fmt.Fprintf(&b, "Participants: %s\n", strings.Join(t.Participants, ", "))
	fmt.Fprintf(&b, "Status: %s\n", t.Status)
	fmt.Fprintf(&b, "Created: %s\n", t.CreatedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "\nExpenses: %d totalling %s\n", sum.Count, money(sum.TotalSpent))
	shown := txns
	if len(shown) > 15 {
		shown = shown[:15]
	}
	for _, txn := range shown {
		fmt.Fprintf(&b, "- %s: %s (%s) on %s", txn.Description, money(txn.Total), txn.Category, txn.Date.Format("2006-01-02"))
		if sp, ok := txn.Split(); ok {
			fmt.Fprintf(&b, ", paid by %s", sp.Payer)
		} else {
			b.WriteString(", split not set yet")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func splitKeyboard(expenseID int64) [][]Button {
	return [][]Button{{
		{Label: "Split Evenly", Data: fmt.Sprintf("split_even:%d", expenseID)},
		{Label: "Custom Split", Data: fmt.Sprintf("split_custom:%d", expenseID)},
	}}
}

func payerKeyboard(expenseID int64, participants []string) [][]Button {
	rows := make([][]Button, 0, len(participants))
	for _, p := range participants {
		rows = append(rows, []Button{{Label: p, Data: fmt.Sprintf("paid_by:%d:%s", expenseID, p)}})
	}
	return rows
}

func participantKeyboard(selected, participants []string) [][]Button {
	rows := make([][]Button, 0, len(participants)+1)
	for _, p := range participants {
		label := p
		if containsName(selected, p) {
			label = "✅ " + p
		}
		rows = append(rows, []Button{{Label: label, Data: "psel:" + p}})
	}
	rows = append(rows, []Button{{Label: "Done", Data: "psel_done"}})
	return rows
}

func policyKeyboard() [][]Button {
	return [][]Button{
		{{Label: "By percentages", Data: "policy:percent"}},
		{{Label: "By exact amounts", Data: "policy:amount"}},
		{{Label: "Split evenly instead", Data: "policy:even"}},
	}
}

func editFieldKeyboard(expenseID int64) [][]Button {
	return [][]Button{
		{{Label: "Amount", Data: fmt.Sprintf("edit:amount:%d", expenseID)}},
		{{Label: "Description", Data: fmt.Sprintf("edit:description:%d", expenseID)}},
		{{Label: "Payer", Data: fmt.Sprintf("edit:payer:%d", expenseID)}},
		{{Label: "Split", Data: fmt.Sprintf("edit:split:%d", expenseID)}},
	}
}

func confirmKeyboard() [][]Button {
	return [][]Button{{
		{Label: "Yes, delete it", Data: "confirm:yes"},
		{Label: "No, keep it", Data: "confirm:no"},
	}}
}
