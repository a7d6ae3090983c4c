package rbac

import "github.com/collateral-pay/backend/internal/keys"

// Role constants
const (
	RoleBuyer    = "buyer"
	RoleSeller   = "seller"
	RoleOutsider = "outsider"
)

// Permission constants
const (
	PermViewChannel    = "view_channel"
	PermLockCollateral = "lock_collateral"
	PermPay            = "pay"
	PermWithdraw       = "withdraw"
)

// RolePermissions defines what each role can do on a channel.
var RolePermissions = map[string][]string{
	RoleBuyer: {
		PermViewChannel, PermLockCollateral, PermPay, PermWithdraw,
	},
	RoleSeller: {
		PermViewChannel,
		// Seller CANNOT move funds in either direction
	},
	RoleOutsider: {},
}

// RoleOf resolves the role of who on a channel between buyer and seller.
// Buyer wins when the same address is on both sides.
func RoleOf(buyer, seller, who keys.Address) string {
	switch who {
	case buyer:
		return RoleBuyer
	case seller:
		return RoleSeller
	default:
		return RoleOutsider
	}
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsFinancialOperation checks if permission moves funds (buyer-only).
func IsFinancialOperation(permission string) bool {
	return permission == PermLockCollateral || permission == PermPay || permission == PermWithdraw
}
