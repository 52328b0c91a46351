package settle

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/susu3304/tabiwari/internal/ledger"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func finalized(id int64, total string, payer string, amounts map[string]string) ledger.Transaction {
	participants := make([]string, 0, len(amounts))
	decAmounts := make(map[string]decimal.Decimal, len(amounts))
	for _, name := range []string{"Alice", "Bob", "Carol", "Dave"} {
		if amt, ok := amounts[name]; ok {
			participants = append(participants, name)
			decAmounts[name] = dec(amt)
		}
	}
	return ledger.Transaction{
		ID:          id,
		TripID:      1,
		Description: "test expense",
		Total:       dec(total),
		Date:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}.WithSplit(ledger.Split{
		Payer:        payer,
		Participants: participants,
		Policy:       ledger.PolicyAmount,
		Amounts:      decAmounts,
	})
}

func TestImmediate(t *testing.T) {
	tests := []struct {
		name         string
		payer        string
		participants []string
		amounts      map[string]string
		want         []Instruction
		wantErr      error
	}{
		{
			name:         "payer paid only for self",
			payer:        "Alice",
			participants: []string{"Alice"},
			amounts:      map[string]string{"Alice": "50"},
			wantErr:      ErrNothingToSettle,
		},
		{
			name:         "even three-way",
			payer:        "Alice",
			participants: []string{"Alice", "Bob", "Carol"},
			amounts:      map[string]string{"Alice": "30", "Bob": "30", "Carol": "30"},
			want: []Instruction{
				{Debtor: "Bob", Creditor: "Alice", Amount: dec("30")},
				{Debtor: "Carol", Creditor: "Alice", Amount: dec("30")},
			},
		},
		{
			name:         "sub-cent shares skipped",
			payer:        "Alice",
			participants: []string{"Alice", "Bob"},
			amounts:      map[string]string{"Alice": "50", "Bob": "0.005"},
			wantErr:      ErrNothingToSettle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amounts := make(map[string]decimal.Decimal, len(tt.amounts))
			for name, amt := range tt.amounts {
				amounts[name] = dec(amt)
			}
			got, err := Immediate(tt.payer, tt.participants, amounts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Immediate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Immediate() error = %v", err)
			}
			assertInstructions(t, got, tt.want)
		})
	}
}

func TestRunningBalanceEmpty(t *testing.T) {
	_, err := RunningBalance(nil)
	if !errors.Is(err, ErrNoExpenses) {
		t.Fatalf("RunningBalance(nil) error = %v, want ErrNoExpenses", err)
	}
	if errors.Is(err, ErrAllSettled) {
		t.Fatal("RunningBalance(nil) must not report all settled")
	}
}

func TestRunningBalanceDraftsOnly(t *testing.T) {
	drafts := []ledger.Transaction{
		{ID: 1, TripID: 1, Description: "pending receipt", Total: dec("42")},
	}
	_, err := RunningBalance(drafts)
	if !errors.Is(err, ErrAllSettled) {
		t.Fatalf("RunningBalance(drafts) error = %v, want ErrAllSettled", err)
	}
}

func TestRunningBalanceSingleExpense(t *testing.T) {
	txns := []ledger.Transaction{
		finalized(1, "90", "Alice", map[string]string{"Alice": "30", "Bob": "30", "Carol": "30"}),
	}
	got, err := RunningBalance(txns)
	if err != nil {
		t.Fatalf("RunningBalance() error = %v", err)
	}
	want := []Instruction{
		{Debtor: "Bob", Creditor: "Alice", Amount: dec("30")},
		{Debtor: "Carol", Creditor: "Alice", Amount: dec("30")},
	}
	assertInstructions(t, got, want)
}

// An expense whose payer is its only participant nets to zero and must not
// change anyone's balance.
func TestRunningBalanceSelfPaidIsNeutral(t *testing.T) {
	base := []ledger.Transaction{
		finalized(1, "90", "Alice", map[string]string{"Alice": "30", "Bob": "30", "Carol": "30"}),
	}
	withSelfPaid := append(append([]ledger.Transaction{}, base...),
		finalized(2, "30", "Bob", map[string]string{"Bob": "30"}))

	got, err := RunningBalance(withSelfPaid)
	if err != nil {
		t.Fatalf("RunningBalance() error = %v", err)
	}
	want := []Instruction{
		{Debtor: "Bob", Creditor: "Alice", Amount: dec("30")},
		{Debtor: "Carol", Creditor: "Alice", Amount: dec("30")},
	}
	assertInstructions(t, got, want)
}

func TestRunningBalanceTwoExpenses(t *testing.T) {
	txns := []ledger.Transaction{
		finalized(1, "90", "Alice", map[string]string{"Alice": "30", "Bob": "30", "Carol": "30"}),
		finalized(2, "30", "Bob", map[string]string{"Carol": "30"}),
	}
	got, err := RunningBalance(txns)
	if err != nil {
		t.Fatalf("RunningBalance() error = %v", err)
	}
	// Alice +60, Bob 0, Carol -60.
	want := []Instruction{
		{Debtor: "Carol", Creditor: "Alice", Amount: dec("60")},
	}
	assertInstructions(t, got, want)
}

func TestRunningBalanceAllSettled(t *testing.T) {
	txns := []ledger.Transaction{
		finalized(1, "40", "Alice", map[string]string{"Alice": "20", "Bob": "20"}),
		finalized(2, "40", "Bob", map[string]string{"Alice": "20", "Bob": "20"}),
	}
	_, err := RunningBalance(txns)
	if !errors.Is(err, ErrAllSettled) {
		t.Fatalf("RunningBalance() error = %v, want ErrAllSettled", err)
	}
}

// Debtors are matched largest debt first; creditors keep first-seen order.
func TestRunningBalanceOrdering(t *testing.T) {
	txns := []ledger.Transaction{
		finalized(1, "10", "Alice", map[string]string{"Alice": "0", "Carol": "10"}),
		finalized(2, "50", "Bob", map[string]string{"Bob": "0", "Carol": "20", "Dave": "30"}),
	}
	got, err := RunningBalance(txns)
	if err != nil {
		t.Fatalf("RunningBalance() error = %v", err)
	}
	// Balances: Alice +10, Carol -30, Bob +50, Dave -30.
	// Carol and Dave tie at 30; Carol was seen first so she goes first, and
	// both drain creditors in first-seen order (Alice, then Bob).
	want := []Instruction{
		{Debtor: "Carol", Creditor: "Alice", Amount: dec("10")},
		{Debtor: "Carol", Creditor: "Bob", Amount: dec("20")},
		{Debtor: "Dave", Creditor: "Bob", Amount: dec("30")},
	}
	assertInstructions(t, got, want)
}

func TestParticipantBalance(t *testing.T) {
	txns := []ledger.Transaction{
		finalized(1, "90", "Alice", map[string]string{"Alice": "30", "Bob": "30", "Carol": "30"}),
		finalized(2, "30", "Bob", map[string]string{"Bob": "30"}),
	}

	tests := []struct {
		name       string
		wantPaid   string
		wantOwed   string
		wantNet    string
		wantStatus string
	}{
		{name: "Alice", wantPaid: "90", wantOwed: "30", wantNet: "60", wantStatus: StatusCreditor},
		{name: "Bob", wantPaid: "30", wantOwed: "60", wantNet: "-30", wantStatus: StatusDebtor},
		{name: "Dave", wantPaid: "0", wantOwed: "0", wantNet: "0", wantStatus: StatusSettled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParticipantBalance(txns, tt.name)
			if !got.TotalPaid.Equal(dec(tt.wantPaid)) {
				t.Errorf("TotalPaid = %v, want %v", got.TotalPaid, tt.wantPaid)
			}
			if !got.TotalOwed.Equal(dec(tt.wantOwed)) {
				t.Errorf("TotalOwed = %v, want %v", got.TotalOwed, tt.wantOwed)
			}
			if !got.Net.Equal(dec(tt.wantNet)) {
				t.Errorf("Net = %v, want %v", got.Net, tt.wantNet)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", got.Status, tt.wantStatus)
			}
		})
	}
}

func assertInstructions(t *testing.T, got, want []Instruction) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d instructions, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].Debtor != want[i].Debtor || got[i].Creditor != want[i].Creditor {
			t.Errorf("instruction %d = %s→%s, want %s→%s",
				i, got[i].Debtor, got[i].Creditor, want[i].Debtor, want[i].Creditor)
		}
		if !got[i].Amount.Equal(want[i].Amount) {
			t.Errorf("instruction %d amount = %v, want %v", i, got[i].Amount, want[i].Amount)
		}
	}
}
