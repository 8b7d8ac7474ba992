package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/kusaidia/adapters/store"
	"github.com/layer-3/kusaidia/adapters/tokenizer"
	"github.com/layer-3/kusaidia/adapters/verifier"
	"github.com/layer-3/kusaidia/core"
	"github.com/layer-3/kusaidia/internal/eth"
	"github.com/layer-3/kusaidia/ports"
)

type fixture struct {
	svc      *AuthService
	accounts *store.MemoryAccountStore
	roles    *RoleManager
	issuer   *SessionIssuer
	events   *MockEventPublisher
	tk       ports.Tokenizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tk := tokenizer.NewJWTTokenizer(signKey)
	return newFixtureWithTokenizer(t, tk)
}

func newFixtureWithTokenizer(t *testing.T, tk ports.Tokenizer) *fixture {
	t.Helper()
	accounts := store.NewMemoryAccountStore()
	roles := NewRoleManager(accounts)
	issuer := NewSessionIssuer(tk, store.NewMemoryStore(), 5*time.Minute, 24*time.Hour)

	events := &MockEventPublisher{}
	events.On("PublishSessionRevoked", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	svc := NewAuthService(
		store.NewMemoryNonceStore(5*time.Minute),
		verifier.NewEthVerifier(),
		issuer,
		roles,
		events,
		core.RoleDonor,
		nil,
	)
	return &fixture{svc: svc, accounts: accounts, roles: roles, issuer: issuer, events: events, tk: tk}
}

type wallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (w wallet) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := eth.SignText(w.key, []byte(message))
	require.NoError(t, err)
	return hexutil.Encode(sig)
}

func (f *fixture) login(t *testing.T, w wallet) (*core.Session, *core.Account) {
	t.Helper()
	ctx := context.Background()
	challenge, err := f.svc.RequestChallenge(ctx, w.address)
	require.NoError(t, err)
	session, acc, err := f.svc.VerifyAndLogin(ctx, w.address, w.sign(t, challenge.Message), challenge.Nonce)
	require.NoError(t, err)
	return session, acc
}

func TestLoginThenEnsureRoleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := newWallet(t)

	challenge, err := f.svc.RequestChallenge(ctx, w.address)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(w.address), challenge.Address)
	assert.Contains(t, challenge.Message, challenge.Nonce)

	session, acc, err := f.svc.VerifyAndLogin(ctx, w.address, w.sign(t, challenge.Message), challenge.Nonce)
	require.NoError(t, err)
	assert.Equal(t, core.RoleDonor, session.Role)
	assert.Equal(t, []core.Role{core.RoleDonor}, acc.Roles)
	assert.False(t, acc.Verified)

	claims, err := f.svc.ValidateAccessToken(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, claims.AccountID)
	assert.Equal(t, core.RoleDonor, claims.Role)

	_, _, err = f.svc.EnsureRole(ctx, claims, core.RoleOrganization, false)
	assert.ErrorIs(t, err, core.ErrRoleAdditionRequired)
	roles, err := f.svc.Roles(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, []core.Role{core.RoleDonor}, roles, "unconfirmed ensure must not add the role")

	roles, added, err := f.svc.AddRole(ctx, acc.ID, core.RoleOrganization)
	require.NoError(t, err)
	assert.True(t, added)
	assert.ElementsMatch(t, []core.Role{core.RoleDonor, core.RoleOrganization}, roles)

	switched, acc, err := f.svc.SwitchRole(ctx, claims, core.RoleOrganization)
	require.NoError(t, err)
	assert.Equal(t, core.RoleOrganization, acc.ActiveRole)

	next, err := f.svc.ValidateAccessToken(ctx, switched.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, core.RoleOrganization, next.Role)

	// The superseded session no longer authorizes
	_, err = f.svc.ValidateAccessToken(ctx, session.AccessToken)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)
	f.events.AssertCalled(t, "PublishSessionRevoked", mock.Anything, acc.ID, session.RefreshID, ports.ReasonRoleSwitch)
}

func TestVerifyAndLogin_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := newWallet(t)

	_, err := f.svc.RequestChallenge(ctx, "0x1234")
	assert.ErrorIs(t, err, core.ErrInvalidAddress)

	challenge, err := f.svc.RequestChallenge(ctx, w.address)
	require.NoError(t, err)

	// Wrong signer burns the nonce and creates no account
	other := newWallet(t)
	_, _, err = f.svc.VerifyAndLogin(ctx, w.address, other.sign(t, challenge.Message), challenge.Nonce)
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
	_, err = f.accounts.GetByAddress(ctx, strings.ToLower(w.address))
	assert.ErrorIs(t, err, core.ErrAccountNotFound)

	_, _, err = f.svc.VerifyAndLogin(ctx, w.address, w.sign(t, challenge.Message), challenge.Nonce)
	assert.ErrorIs(t, err, core.ErrNonceInvalidOrExpired)

	_, _, err = f.svc.VerifyAndLogin(ctx, w.address, "0xdeadbeef", "never-issued")
	assert.ErrorIs(t, err, core.ErrNonceInvalidOrExpired)
}

func TestVerifyAndLogin_ReplayFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := newWallet(t)

	challenge, err := f.svc.RequestChallenge(ctx, w.address)
	require.NoError(t, err)
	sig := w.sign(t, challenge.Message)

	_, _, err = f.svc.VerifyAndLogin(ctx, w.address, sig, challenge.Nonce)
	require.NoError(t, err)
	_, _, err = f.svc.VerifyAndLogin(ctx, w.address, sig, challenge.Nonce)
	assert.ErrorIs(t, err, core.ErrNonceInvalidOrExpired)
}

func TestVerifyAndLogin_ReturningWalletKeepsAccount(t *testing.T) {
	f := newFixture(t)
	w := newWallet(t)

	_, first := f.login(t, w)
	_, second := f.login(t, w)
	assert.Equal(t, first.ID, second.ID)
}

func TestSwitchRole_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, acc := f.login(t, newWallet(t))
	caller, err := f.svc.ValidateAccessToken(ctx, session.AccessToken)
	require.NoError(t, err)

	_, _, err = f.svc.AddRole(ctx, acc.ID, core.RoleVendor)
	require.NoError(t, err)

	first, acc1, err := f.svc.SwitchRole(ctx, caller, core.RoleVendor)
	require.NoError(t, err)
	caller2, err := f.svc.ValidateAccessToken(ctx, first.AccessToken)
	require.NoError(t, err)

	second, acc2, err := f.svc.SwitchRole(ctx, caller2, core.RoleVendor)
	require.NoError(t, err)

	assert.Equal(t, acc1.ActiveRole, acc2.ActiveRole)
	assert.Equal(t, first.Role, second.Role)
	assert.Equal(t, first.AccountID, second.AccountID)
	assert.Equal(t, acc1.Roles, acc2.Roles)
}

func TestSwitchRole_NotHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, _ := f.login(t, newWallet(t))
	caller, err := f.svc.ValidateAccessToken(ctx, session.AccessToken)
	require.NoError(t, err)

	_, _, err = f.svc.SwitchRole(ctx, caller, core.RoleAdmin)
	assert.ErrorIs(t, err, core.ErrRoleNotHeld)

	// Failed switch leaves the caller's session usable
	_, err = f.svc.ValidateAccessToken(ctx, session.AccessToken)
	assert.NoError(t, err)
}

func TestAddRole_AlreadyPresentIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	_, acc := f.login(t, newWallet(t))

	roles, added, err := f.svc.AddRole(context.Background(), acc.ID, core.RoleDonor)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, []core.Role{core.RoleDonor}, roles)
}

func TestEnsureRole_ConfirmedAddsAndSwitches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, acc := f.login(t, newWallet(t))
	caller, err := f.svc.ValidateAccessToken(ctx, session.AccessToken)
	require.NoError(t, err)

	next, updated, err := f.svc.EnsureRole(ctx, caller, core.RoleVendor, true)
	require.NoError(t, err)
	assert.Equal(t, core.RoleVendor, updated.ActiveRole)
	assert.ElementsMatch(t, []core.Role{core.RoleDonor, core.RoleVendor}, updated.Roles)

	claims, err := f.svc.ValidateAccessToken(ctx, next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, core.RoleVendor, claims.Role)
	assert.Equal(t, acc.ID, claims.AccountID)
}

func TestSwitchRole_RollsBackWhenIssuanceFails(t *testing.T) {
	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tk := &MockTokenizer{Tokenizer: tokenizer.NewJWTTokenizer(signKey)}
	tk.On("SessionToAccessToken", mock.MatchedBy(func(s *core.Session) bool { return s.Role == core.RoleOrganization })).
		Return("", errors.New("hsm unavailable"))
	tk.On("SessionToAccessToken", mock.Anything).Return("", nil)

	f := newFixtureWithTokenizer(t, tk)
	ctx := context.Background()
	session, acc := f.login(t, newWallet(t))
	caller, err := f.svc.ValidateAccessToken(ctx, session.AccessToken)
	require.NoError(t, err)

	_, _, err = f.svc.EnsureRole(ctx, caller, core.RoleOrganization, true)
	require.Error(t, err)

	stored, err := f.accounts.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RoleDonor, stored.ActiveRole)
	assert.Equal(t, []core.Role{core.RoleDonor}, stored.Roles)

	_, err = f.svc.ValidateAccessToken(ctx, session.AccessToken)
	assert.NoError(t, err, "caller keeps the old session when the switch fails")
	f.events.AssertNotCalled(t, "PublishSessionRevoked", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRefresh_ReReadsActiveRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, acc := f.login(t, newWallet(t))

	// Role changes behind the refresh token's back
	_, _, err := f.svc.AddRole(ctx, acc.ID, core.RoleVendor)
	require.NoError(t, err)
	_, err = f.roles.SwitchRole(ctx, acc.ID, core.RoleVendor)
	require.NoError(t, err)

	refreshed, _, err := f.svc.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, core.RoleVendor, refreshed.Role)
	assert.NotEqual(t, session.RefreshID, refreshed.RefreshID)

	// Rotation: the old refresh token is spent
	_, _, err = f.svc.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)

	_, _, err = f.svc.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, acc := f.login(t, newWallet(t))

	require.NoError(t, f.svc.Logout(ctx, session.RefreshToken))
	f.events.AssertCalled(t, "PublishSessionRevoked", mock.Anything, acc.ID, session.RefreshID, ports.ReasonLogout)

	_, err := f.svc.ValidateAccessToken(ctx, session.AccessToken)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)
	_, _, err = f.svc.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, core.ErrTokenInvalidated)

	assert.NoError(t, f.svc.Logout(ctx, session.RefreshToken), "second logout is a no-op")
}

func TestConcurrentSwitchesSerialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, acc := f.login(t, newWallet(t))
	caller, err := f.svc.ValidateAccessToken(ctx, session.AccessToken)
	require.NoError(t, err)

	for _, r := range []core.Role{core.RoleOrganization, core.RoleVendor} {
		_, _, err := f.svc.AddRole(ctx, acc.ID, r)
		require.NoError(t, err)
	}

	targets := []core.Role{core.RoleOrganization, core.RoleVendor}
	results := make([]core.Role, len(targets))
	var wg sync.WaitGroup
	for i, r := range targets {
		wg.Add(1)
		go func(i int, r core.Role) {
			defer wg.Done()
			_, updated, err := f.svc.SwitchRole(ctx, caller, r)
			assert.NoError(t, err)
			results[i] = updated.ActiveRole
		}(i, r)
	}
	wg.Wait()

	stored, err := f.accounts.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Contains(t, targets, stored.ActiveRole)
	assert.ElementsMatch(t, []core.Role{core.RoleDonor, core.RoleOrganization, core.RoleVendor}, stored.Roles)
	assert.ElementsMatch(t, targets, results)
	assert.Equal(t, 0, f.roles.locks.size())
}
