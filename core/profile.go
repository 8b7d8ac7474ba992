package core

import "time"

// Profile is the public view of an account. UserType is the active role.
type Profile struct {
	ID            string    `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	UserType      Role      `json:"user_type"`
	Roles         []Role    `json:"roles"`
	Verified      bool      `json:"verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// ProfileOf builds the public profile of acc
func ProfileOf(acc *Account) Profile {
	roles := make([]Role, len(acc.Roles))
	copy(roles, acc.Roles)
	return Profile{
		ID:            acc.ID,
		WalletAddress: acc.Address,
		UserType:      acc.ActiveRole,
		Roles:         roles,
		Verified:      acc.Verified,
		CreatedAt:     acc.CreatedAt,
	}
}
