package extract

import (
	"testing"

	"github.com/susu3304/tabiwari/internal/ledger"
)

func TestJSONBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare", in: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "fenced no lang", in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "surrounding whitespace", in: "  {\"a\":1}\n", want: `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(jsonBody(tt.in)); got != tt.want {
				t.Errorf("jsonBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseExpense(t *testing.T) {
	body := []byte(`{
		"description": "dinner at izakaya",
		"amount": 90.50,
		"category": "food",
		"paid_by": "Alice",
		"participants": ["Alice", "Bob", "Carol"],
		"split_type": "percentage",
		"split_details": {"Alice": 50, "Bob": "25", "Carol": 25}
	}`)
	e, err := parseExpense(body)
	if err != nil {
		t.Fatalf("parseExpense() error = %v", err)
	}
	if e.Description != "dinner at izakaya" {
		t.Errorf("Description = %q", e.Description)
	}
	if e.Total.String() != "90.5" {
		t.Errorf("Total = %v, want 90.5", e.Total)
	}
	if e.Payer != "Alice" {
		t.Errorf("Payer = %q", e.Payer)
	}
	if e.Policy != ledger.PolicyPercent {
		t.Errorf("Policy = %q, want percent", e.Policy)
	}
	if len(e.Participants) != 3 {
		t.Errorf("Participants = %v", e.Participants)
	}
	if e.Shares["Bob"].String() != "25" {
		t.Errorf("Shares[Bob] = %v, want 25 (quoted numbers accepted)", e.Shares["Bob"])
	}
}

func TestParseExpensePartial(t *testing.T) {
	body := []byte(`{"description": "taxi", "amount": 0, "category": "transport"}`)
	e, err := parseExpense(body)
	if err != nil {
		t.Fatalf("parseExpense() error = %v", err)
	}
	if !e.Total.IsZero() {
		t.Errorf("Total = %v, want zero", e.Total)
	}
	if e.Payer != "" || len(e.Participants) != 0 {
		t.Errorf("unexpected fields: payer=%q participants=%v", e.Payer, e.Participants)
	}
	if e.Policy != "" {
		t.Errorf("Policy = %q, want empty", e.Policy)
	}
}

func TestParseExpenseMalformed(t *testing.T) {
	if _, err := parseExpense([]byte(`not json`)); err == nil {
		t.Fatal("parseExpense() expected error for malformed body")
	}
}

func TestParseReceipt(t *testing.T) {
	body := []byte(`{"description": "FamilyMart", "amount": "1280", "category": "food", "date": "2025-06-03"}`)
	r, err := parseReceipt(body)
	if err != nil {
		t.Fatalf("parseReceipt() error = %v", err)
	}
	if r.Description != "FamilyMart" {
		t.Errorf("Description = %q", r.Description)
	}
	if r.Total.String() != "1280" {
		t.Errorf("Total = %v", r.Total)
	}
	if r.Date.IsZero() {
		t.Error("Date not parsed")
	}
	if got := r.Date.Format("2006-01-02"); got != "2025-06-03" {
		t.Errorf("Date = %s", got)
	}
}

func TestParseReceiptUnreadableDate(t *testing.T) {
	body := []byte(`{"description": "kiosk", "amount": 4, "category": "other", "date": "June 3rd"}`)
	r, err := parseReceipt(body)
	if err != nil {
		t.Fatalf("parseReceipt() error = %v", err)
	}
	if !r.Date.IsZero() {
		t.Errorf("Date = %v, want zero for unparseable date", r.Date)
	}
}
