package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/kusaidia/core"
	"github.com/layer-3/kusaidia/ports"
)

// RoleManager owns the role set and active role of every account.
// Mutations of one account are serialized; different accounts never wait on each other.
type RoleManager struct {
	accounts ports.AccountStore
	locks    *keyedMutex
	now      func() time.Time
}

// NewRoleManager creates a role manager over the given account store
func NewRoleManager(accounts ports.AccountStore) *RoleManager {
	return &RoleManager{
		accounts: accounts,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// Account returns the current state of an account
func (m *RoleManager) Account(ctx context.Context, accountID string) (*core.Account, error) {
	return m.accounts.GetByID(ctx, accountID)
}

// Register returns the account bound to address, creating it with defaultRole on first sight.
func (m *RoleManager) Register(ctx context.Context, address string, defaultRole core.Role) (*core.Account, error) {
	acc, err := m.accounts.GetByAddress(ctx, address)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, core.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	now := m.now().UTC()
	acc = &core.Account{
		ID:         uuid.New().String(),
		Address:    address,
		Roles:      []core.Role{defaultRole},
		ActiveRole: defaultRole,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.accounts.Create(ctx, acc); err != nil {
		// Lost a race against a concurrent first login of the same wallet
		if errors.Is(err, core.ErrAccountExists) {
			return m.accounts.GetByAddress(ctx, address)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return acc, nil
}

// ListRoles returns the roles held by the account
func (m *RoleManager) ListRoles(ctx context.Context, accountID string) ([]core.Role, error) {
	acc, err := m.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return acc.Roles, nil
}

// AddRole inserts role into the account's set without touching the active role.
// It fails with core.ErrRoleAlreadyPresent when the role is already held.
func (m *RoleManager) AddRole(ctx context.Context, accountID string, role core.Role) ([]core.Role, error) {
	acc, err := m.Transition(ctx, accountID, func(acc *core.Account) (bool, error) {
		return addRole(acc, role)
	}, nil)
	if err != nil {
		return nil, err
	}
	return acc.Roles, nil
}

// SwitchRole moves the active role pointer. Switching to the current role is a no-op.
func (m *RoleManager) SwitchRole(ctx context.Context, accountID string, role core.Role) (core.Role, error) {
	acc, err := m.Transition(ctx, accountID, func(acc *core.Account) (bool, error) {
		return switchRole(acc, role)
	}, nil)
	if err != nil {
		return "", err
	}
	return acc.ActiveRole, nil
}

// Transition runs mutate on a copy of the account while holding the account's lock.
// commit, when set, sees the mutated copy before anything is persisted; if it fails
// the stored account is left untouched. The copy is stored only when mutate reports a change.
func (m *RoleManager) Transition(
	ctx context.Context,
	accountID string,
	mutate func(acc *core.Account) (bool, error),
	commit func(acc *core.Account) error,
) (*core.Account, error) {
	unlock := m.locks.Lock(accountID)
	defer unlock()

	current, err := m.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	changed, err := mutate(next)
	if err != nil {
		return nil, err
	}

	if commit != nil {
		if err := commit(next); err != nil {
			return nil, err
		}
	}

	if changed {
		if err := m.accounts.Update(ctx, next); err != nil {
			return nil, fmt.Errorf("failed to persist account: %w", err)
		}
	}
	return next, nil
}

func addRole(acc *core.Account, role core.Role) (bool, error) {
	if !role.Valid() {
		return false, core.ErrInvalidRole
	}
	if acc.HasRole(role) {
		return false, core.ErrRoleAlreadyPresent
	}
	acc.Roles = append(acc.Roles, role)
	return true, nil
}

func switchRole(acc *core.Account, role core.Role) (bool, error) {
	if !role.Valid() {
		return false, core.ErrInvalidRole
	}
	if !slices.Contains(acc.Roles, role) {
		return false, core.ErrRoleNotHeld
	}
	if acc.ActiveRole == role {
		return false, nil
	}
	acc.ActiveRole = role
	return true, nil
}
