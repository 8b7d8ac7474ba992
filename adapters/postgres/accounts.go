package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/layer-3/kusaidia/core"
)

const uniqueViolation = "23505"

// AccountRepository implements ports.AccountStore using PostgreSQL.
type AccountRepository struct {
	db  DBTX
	now func() time.Time
}

// NewAccountRepository creates a PostgreSQL-backed account store.
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db, now: time.Now}
}

const accountColumns = `id, wallet_address, roles, active_role, verified, created_at, updated_at`

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*core.Account, error) {
	return r.scanAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *AccountRepository) GetByAddress(ctx context.Context, address string) (*core.Account, error) {
	return r.scanAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE wallet_address = $1`, address)
}

// Create inserts a new account. A taken id or address yields core.ErrAccountExists.
func (r *AccountRepository) Create(ctx context.Context, a *core.Account) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.Address, rolesToStrings(a.Roles), string(a.ActiveRole), a.Verified, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.ErrAccountExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// Update persists roles, active role and verification state.
func (r *AccountRepository) Update(ctx context.Context, a *core.Account) error {
	a.UpdatedAt = r.now().UTC()

	ct, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET roles = $1, active_role = $2, verified = $3, updated_at = $4
		WHERE id = $5`,
		rolesToStrings(a.Roles), string(a.ActiveRole), a.Verified, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return core.ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) scanAccount(ctx context.Context, query string, args ...any) (*core.Account, error) {
	var (
		a          core.Account
		roles      []string
		activeRole string
	)
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&a.ID, &a.Address, &roles, &activeRole, &a.Verified, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	a.Roles = make([]core.Role, 0, len(roles))
	for _, r := range roles {
		a.Roles = append(a.Roles, core.Role(r))
	}
	a.ActiveRole = core.Role(activeRole)
	return &a, nil
}

func rolesToStrings(roles []core.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
