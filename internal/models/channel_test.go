package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestPhase(t *testing.T) {
	tests := []struct {
		name     string
		ch       PaymentChannel
		expected string
	}{
		{"fresh", PaymentChannel{AmountOwed: 5}, PhaseCreated},
		{"locked only", PaymentChannel{AmountOwed: 5, CollateralLocked: true}, PhaseCollateralLocked},
		{"paid before lock", PaymentChannel{AmountOwed: 5, AmountPaid: 2}, PhasePartiallyPaid},
		{"locked and partially paid", PaymentChannel{AmountOwed: 5, AmountPaid: 2, CollateralLocked: true}, PhasePartiallyPaid},
		{"fully paid without lock", PaymentChannel{AmountOwed: 5, AmountPaid: 5}, PhaseFullyPaid},
		{"fully paid and locked", PaymentChannel{AmountOwed: 5, AmountPaid: 5, CollateralLocked: true}, PhaseFullyPaid},
		{"withdrawn", PaymentChannel{AmountOwed: 5, AmountPaid: 5, CollateralLocked: true, CollateralWithdrawn: true}, PhaseWithdrawn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ch.Phase(); got != tt.expected {
				t.Errorf("Phase() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRemaining(t *testing.T) {
	ch := PaymentChannel{AmountOwed: 5, AmountPaid: 2}
	if ch.Remaining() != 3 {
		t.Errorf("Remaining() = %d, want 3", ch.Remaining())
	}
	ch.AmountPaid = 5
	if ch.Remaining() != 0 || !ch.FullyPaid() {
		t.Errorf("expected fully paid channel, got remaining %d", ch.Remaining())
	}
}

func TestExpectedVaultBalance(t *testing.T) {
	ch := PaymentChannel{AmountOwed: 5, LockedAmount: 7}
	if ch.ExpectedVaultBalance() != 0 {
		t.Errorf("unlocked channel must expect empty vault")
	}
	ch.CollateralLocked = true
	if ch.ExpectedVaultBalance() != 7 {
		t.Errorf("locked channel must expect %d, got %d", 7, ch.ExpectedVaultBalance())
	}
	ch.CollateralWithdrawn = true
	if ch.ExpectedVaultBalance() != 0 {
		t.Errorf("withdrawn channel must expect empty vault")
	}
}

func TestClone_Independent(t *testing.T) {
	ch := &PaymentChannel{AmountOwed: 5}
	cp := ch.Clone()
	cp.AmountPaid = 3
	if ch.AmountPaid != 0 {
		t.Error("Clone must not share state with the original")
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{ErrOverpayment, "overpayment"},
		{fmt.Errorf("pay: %w", ErrInsufficientFunds), "insufficient_funds"},
		{ErrNotFullyPaid, "not_fully_paid"},
		{errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.expected {
			t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.expected)
		}
	}
}
