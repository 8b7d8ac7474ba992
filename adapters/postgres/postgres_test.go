package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/kusaidia/core"
)

var (
	testAddress = "0xabc0000000000000000000000000000000000001"
	testTime    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func accountColumnNames() []string {
	return []string{"id", "wallet_address", "roles", "active_role", "verified", "created_at", "updated_at"}
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

// ─── Accounts ────────────────────────────────────────────────────────────────

func TestAccountRepository_GetByAddress(t *testing.T) {
	mock := newMock(t)
	repo := NewAccountRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM accounts WHERE wallet_address").
		WithArgs(testAddress).
		WillReturnRows(pgxmock.NewRows(accountColumnNames()).
			AddRow("acc-1", testAddress, []string{"donor", "vendor"}, "vendor", false, testTime, testTime))

	acc, err := repo.GetByAddress(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", acc.ID)
	assert.Equal(t, []core.Role{core.RoleDonor, core.RoleVendor}, acc.Roles)
	assert.Equal(t, core.RoleVendor, acc.ActiveRole)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewAccountRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM accounts WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_Create(t *testing.T) {
	mock := newMock(t)
	repo := NewAccountRepository(mock)
	acc := &core.Account{
		ID: "acc-1", Address: testAddress,
		Roles: []core.Role{core.RoleDonor}, ActiveRole: core.RoleDonor,
		CreatedAt: testTime, UpdatedAt: testTime,
	}

	mock.ExpectExec("INSERT INTO accounts").
		WithArgs("acc-1", testAddress, []string{"donor"}, "donor", false, testTime, testTime).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), acc))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_Create_Duplicate(t *testing.T) {
	mock := newMock(t)
	repo := NewAccountRepository(mock)

	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &core.Account{ID: "acc-2", Address: testAddress})
	assert.ErrorIs(t, err, core.ErrAccountExists)
}

func TestAccountRepository_Update(t *testing.T) {
	mock := newMock(t)
	repo := NewAccountRepository(mock)
	repo.now = func() time.Time { return testTime }

	acc := &core.Account{ID: "acc-1", Roles: []core.Role{core.RoleDonor, core.RoleOrganization}, ActiveRole: core.RoleOrganization}

	mock.ExpectExec("UPDATE accounts").
		WithArgs([]string{"donor", "organization"}, "organization", false, testTime, "acc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.Update(context.Background(), acc))
	assert.Equal(t, testTime, acc.UpdatedAt)

	mock.ExpectExec("UPDATE accounts").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := repo.Update(context.Background(), &core.Account{ID: "gone"})
	assert.ErrorIs(t, err, core.ErrAccountNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// ─── Notifications ───────────────────────────────────────────────────────────

func TestNotificationRepository_Create(t *testing.T) {
	mock := newMock(t)
	repo := NewNotificationRepository(mock)
	url := "/projects/1"
	n := &core.Notification{ID: "n1", AccountID: "acc-1", Type: "donation", Message: "thanks", ActionURL: &url, CreatedAt: testTime}

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs("n1", "acc-1", "donation", "thanks", &url, false, testTime).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), n))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_Create_Error(t *testing.T) {
	mock := newMock(t)
	repo := NewNotificationRepository(mock)

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	err := repo.Create(context.Background(), &core.Notification{ID: "n1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert notification")
}

func TestNotificationRepository_Create_UnknownAccount(t *testing.T) {
	mock := newMock(t)
	repo := NewNotificationRepository(mock)

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err := repo.Create(context.Background(), &core.Notification{ID: "n1", AccountID: "ghost"})
	assert.ErrorIs(t, err, core.ErrAccountNotFound)
}

func TestNotificationRepository_List(t *testing.T) {
	mock := newMock(t)
	repo := NewNotificationRepository(mock)
	url := "/donations/7"

	cols := []string{"id", "account_id", "type", "message", "action_url", "is_read", "created_at", "total_count"}
	mock.ExpectQuery("SELECT .+ FROM notifications").
		WithArgs("acc-1", 2, 0).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("n2", "acc-1", "donation", "second", &url, false, testTime.Add(time.Minute), 3).
			AddRow("n1", "acc-1", "donation", "first", &url, true, testTime, 3))

	items, total, err := repo.List(context.Background(), "acc-1", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, "n2", items[0].ID)
	assert.True(t, items[1].Read)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_List_PastEnd(t *testing.T) {
	mock := newMock(t)
	repo := NewNotificationRepository(mock)

	cols := []string{"id", "account_id", "type", "message", "action_url", "is_read", "created_at", "total_count"}
	mock.ExpectQuery("SELECT .+ FROM notifications").
		WithArgs("acc-1", 10, 50).
		WillReturnRows(pgxmock.NewRows(cols))
	mock.ExpectQuery("SELECT count").
		WithArgs("acc-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	items, total, err := repo.List(context.Background(), "acc-1", 50, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 4, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_UnreadCount(t *testing.T) {
	mock := newMock(t)
	repo := NewNotificationRepository(mock)

	mock.ExpectQuery("SELECT count").
		WithArgs("acc-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(5))

	count, err := repo.UnreadCount(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestNotificationRepository_MarkRead(t *testing.T) {
	mock := newMock(t)
	repo := NewNotificationRepository(mock)

	mock.ExpectExec("UPDATE notifications SET is_read").
		WithArgs("n1", "acc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.MarkRead(context.Background(), "acc-1", "n1"))

	mock.ExpectExec("UPDATE notifications SET is_read").
		WithArgs("n9", "acc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.MarkRead(context.Background(), "acc-1", "n9"), core.ErrNotificationNotFound)

	mock.ExpectExec("UPDATE notifications SET is_read").
		WithArgs("acc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	changed, err := repo.MarkAllRead(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, changed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func TestMigrate_AppliesPendingOnly(t *testing.T) {
	mock := newMock(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("001_accounts.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("002_notifications.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS notifications").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("002_notifications.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, Migrate(context.Background(), mock, logger))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_RollsBackFailedFile(t *testing.T) {
	mock := newMock(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("001_accounts.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS accounts").
		WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err := Migrate(context.Background(), mock, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_accounts.up.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}
