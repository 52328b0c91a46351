package split

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestEven(t *testing.T) {
	tests := []struct {
		name         string
		total        string
		participants []string
		wantShare    string
		wantErr      error
	}{
		{
			name:         "divides cleanly",
			total:        "90",
			participants: []string{"Alice", "Bob", "Carol"},
			wantShare:    "30",
		},
		{
			name:         "rounds each share to cents",
			total:        "100",
			participants: []string{"Alice", "Bob", "Carol"},
			wantShare:    "33.33",
		},
		{
			name:         "single participant",
			total:        "50",
			participants: []string{"Alice"},
			wantShare:    "50",
		},
		{
			name:         "no participants",
			total:        "50",
			participants: nil,
			wantErr:      ErrNoParticipants,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := decimal.RequireFromString(tt.total)
			got, err := Even(total, tt.participants)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Even() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Even() error = %v", err)
			}
			want := decimal.RequireFromString(tt.wantShare)
			for _, p := range tt.participants {
				if !got[p].Equal(want) {
					t.Errorf("Even() share for %s = %v, want %v", p, got[p], want)
				}
			}
		})
	}
}

// Rounding drift is preserved: three shares of 33.33 add up to 99.99, one
// cent short of the 100 total.
func TestEvenDriftNotReconciled(t *testing.T) {
	got, err := Even(decimal.RequireFromString("100"), []string{"Alice", "Bob", "Carol"})
	if err != nil {
		t.Fatalf("Even() error = %v", err)
	}
	sum := decimal.Zero
	for _, amt := range got {
		sum = sum.Add(amt)
	}
	if want := decimal.RequireFromString("99.99"); !sum.Equal(want) {
		t.Errorf("sum of shares = %v, want %v", sum, want)
	}
}

func TestPercent(t *testing.T) {
	participants := []string{"Alice", "Bob"}

	tests := []struct {
		name     string
		total    string
		percents map[string]string
		want     map[string]string
		wantErr  error
	}{
		{
			name:     "valid 60/40",
			total:    "100",
			percents: map[string]string{"Alice": "60", "Bob": "40"},
			want:     map[string]string{"Alice": "60", "Bob": "40"},
		},
		{
			name:     "sum over 100 rejected",
			total:    "100",
			percents: map[string]string{"Alice": "60", "Bob": "41"},
			wantErr:  ErrPercentSum,
		},
		{
			name:     "sum under 100 rejected",
			total:    "100",
			percents: map[string]string{"Alice": "60", "Bob": "39"},
			wantErr:  ErrPercentSum,
		},
		{
			name:     "within cent tolerance accepted",
			total:    "100",
			percents: map[string]string{"Alice": "60.005", "Bob": "40"},
			want:     map[string]string{"Alice": "60.01", "Bob": "40"},
		},
		{
			name:     "missing share rejected",
			total:    "100",
			percents: map[string]string{"Alice": "100"},
			wantErr:  ErrMissingShare,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			percents := make(map[string]decimal.Decimal, len(tt.percents))
			for name, pct := range tt.percents {
				percents[name] = decimal.RequireFromString(pct)
			}
			got, err := Percent(decimal.RequireFromString(tt.total), participants, percents)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Percent() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Percent() error = %v", err)
			}
			for name, wantStr := range tt.want {
				want := decimal.RequireFromString(wantStr)
				if !got[name].Equal(want) {
					t.Errorf("Percent() share for %s = %v, want %v", name, got[name], want)
				}
			}
		})
	}
}

func TestAmount(t *testing.T) {
	participants := []string{"Alice", "Bob"}

	tests := []struct {
		name    string
		total   string
		amounts map[string]string
		wantErr error
	}{
		{
			name:    "exact sum accepted",
			total:   "50",
			amounts: map[string]string{"Alice": "30", "Bob": "20"},
		},
		{
			name:    "one cent off accepted",
			total:   "50",
			amounts: map[string]string{"Alice": "30", "Bob": "19.99"},
		},
		{
			name:    "two cents off rejected",
			total:   "50",
			amounts: map[string]string{"Alice": "30", "Bob": "19.98"},
			wantErr: ErrAmountSum,
		},
		{
			name:    "missing share rejected",
			total:   "50",
			amounts: map[string]string{"Alice": "50"},
			wantErr: ErrMissingShare,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amounts := make(map[string]decimal.Decimal, len(tt.amounts))
			for name, amt := range tt.amounts {
				amounts[name] = decimal.RequireFromString(amt)
			}
			got, err := Amount(decimal.RequireFromString(tt.total), participants, amounts)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Amount() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Amount() error = %v", err)
			}
			for name, amt := range amounts {
				if !got[name].Equal(amt) {
					t.Errorf("Amount() share for %s = %v, want %v", name, got[name], amt)
				}
			}
		})
	}
}
