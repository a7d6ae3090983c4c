package rbac

import (
	"testing"

	"github.com/collateral-pay/backend/internal/keys"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role     string
		perm     string
		expected bool
	}{
		{RoleBuyer, PermLockCollateral, true},
		{RoleBuyer, PermPay, true},
		{RoleBuyer, PermWithdraw, true},
		{RoleBuyer, PermViewChannel, true},
		{RoleSeller, PermViewChannel, true},
		{RoleSeller, PermPay, false},
		{RoleSeller, PermWithdraw, false},
		{RoleSeller, PermLockCollateral, false},
		{RoleOutsider, PermViewChannel, false},
		{"nonexistent", PermViewChannel, false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.perm, func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.expected {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.expected)
			}
		})
	}
}

func TestRoleOf(t *testing.T) {
	buyer := keys.Address{1}
	seller := keys.Address{2}

	if RoleOf(buyer, seller, buyer) != RoleBuyer {
		t.Error("expected buyer role")
	}
	if RoleOf(buyer, seller, seller) != RoleSeller {
		t.Error("expected seller role")
	}
	if RoleOf(buyer, seller, keys.Address{3}) != RoleOutsider {
		t.Error("expected outsider role")
	}
	if RoleOf(buyer, buyer, buyer) != RoleBuyer {
		t.Error("buyer must win when both sides match")
	}
}

func TestFinancialOperationsAreBuyerOnly(t *testing.T) {
	for _, perm := range []string{PermLockCollateral, PermPay, PermWithdraw} {
		if !IsFinancialOperation(perm) {
			t.Errorf("%q must be financial", perm)
		}
		for role := range RolePermissions {
			if role != RoleBuyer && HasPermission(role, perm) {
				t.Errorf("role %q must not have financial permission %q", role, perm)
			}
		}
	}
	if IsFinancialOperation(PermViewChannel) {
		t.Error("view is not financial")
	}
}
