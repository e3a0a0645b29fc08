package domain

import (
	"regexp"
	"testing"
)

func TestNewReferenceNumberFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^PO-[0-9A-F]{8}$`)
	seen := make(map[string]bool)
	// Kept small on purpose: with a 32-bit suffix a large run has real
	// birthday-collision odds. The unique constraint on
	// payouts.reference_number is the actual duplicate guard.
	for i := 0; i < 100; i++ {
		ref := NewReferenceNumber()
		if !pattern.MatchString(ref) {
			t.Fatalf("reference %q does not match PO-{8 uppercase hex}", ref)
		}
		if seen[ref] {
			t.Fatalf("duplicate reference generated: %q", ref)
		}
		seen[ref] = true
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{PayoutStatusPending, false},
		{PayoutStatusProcessing, false},
		{PayoutStatusCompleted, true},
		{PayoutStatusFailed, true},
		{PayoutStatusCancelled, true},
	}
	for _, tt := range tests {
		p := Payout{Status: tt.status}
		if got := p.IsTerminal(); got != tt.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestIsValidPayoutStatus(t *testing.T) {
	for _, status := range []string{PayoutStatusPending, PayoutStatusProcessing, PayoutStatusCompleted, PayoutStatusFailed, PayoutStatusCancelled} {
		if !IsValidPayoutStatus(status) {
			t.Errorf("expected %q to be valid", status)
		}
	}
	for _, status := range []string{"", "done", "PENDING", "in_transit"} {
		if IsValidPayoutStatus(status) {
			t.Errorf("expected %q to be invalid", status)
		}
	}
}

func TestCadenceInterval(t *testing.T) {
	tests := []struct {
		scheduleType string
		want         int
	}{
		{ScheduleWeekly, 7},
		{ScheduleBiWeekly, 14},
		{ScheduleMonthly, 30},
		{ScheduleManual, 0},
		{"unknown", 0},
	}
	for _, tt := range tests {
		if got := CadenceInterval(tt.scheduleType); got != tt.want {
			t.Errorf("CadenceInterval(%s) = %d, want %d", tt.scheduleType, got, tt.want)
		}
	}
}

func TestPayoutMethodForAccountType(t *testing.T) {
	tests := []struct {
		accountType string
		want        string
	}{
		{AccountTypeBank, PayoutMethodBankTransfer},
		{AccountTypePayPal, PayoutMethodPayPal},
		{AccountTypeStripe, PayoutMethodStripe},
		{AccountTypeManual, PayoutMethodManual},
		{"something_else", PayoutMethodManual},
	}
	for _, tt := range tests {
		if got := PayoutMethodForAccountType(tt.accountType); got != tt.want {
			t.Errorf("PayoutMethodForAccountType(%s) = %s, want %s", tt.accountType, got, tt.want)
		}
	}
}

func TestTotalBalance(t *testing.T) {
	b := VendorBalance{Available: 10000, Pending: 2500}
	if got := b.TotalBalance(); got != 12500 {
		t.Fatalf("TotalBalance = %d, want 12500", got)
	}
}
