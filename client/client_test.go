package client

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/kusaidia/adapters/store"
	"github.com/layer-3/kusaidia/adapters/tokenizer"
	"github.com/layer-3/kusaidia/adapters/verifier"
	"github.com/layer-3/kusaidia/core"
	"github.com/layer-3/kusaidia/hub"
	"github.com/layer-3/kusaidia/internal/logger"
	"github.com/layer-3/kusaidia/service"
	httptransport "github.com/layer-3/kusaidia/transport/http"
	"github.com/layer-3/kusaidia/transport/ws"
)

type testAPI struct {
	server        *httptest.Server
	notifications *service.NotificationService

	mu      sync.Mutex
	expired map[string]bool
}

// expire makes the server answer TOKEN_EXPIRED for an access token.
func (a *testAPI) expire(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expired[token] = true
}

func (a *testAPI) isExpired(r *http.Request) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return a.expired[token]
}

func (a *testAPI) wsURL() string {
	return "ws" + strings.TrimPrefix(a.server.URL, "http") + "/ws/notifications/"
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Discard()

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	sessions := service.NewSessionIssuer(tokenizer.NewJWTTokenizer(signKey), store.NewMemoryStore(), 5*time.Minute, time.Hour)
	auth := service.NewAuthService(
		store.NewMemoryNonceStore(5*time.Minute),
		verifier.NewEthVerifier(),
		sessions,
		service.NewRoleManager(store.NewMemoryAccountStore()),
		nil,
		core.RoleDonor,
		log,
	)
	registry := ws.NewRegistry(log)
	notifications := service.NewNotificationService(store.NewMemoryNotificationStore(), registry, log)
	router := httptransport.SetupRouter(auth, notifications, ws.NewHandler(auth, notifications, registry, nil, log), log)

	api := &testAPI{notifications: notifications, expired: make(map[string]bool)}
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.isExpired(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"token has expired","code":"TOKEN_EXPIRED"}`))
			return
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		registry.CloseAll()
		api.server.Close()
	})
	return api
}

func newWallet(t *testing.T) *KeyWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewKeyWallet(key)
}

func loggedIn(t *testing.T, api *testAPI) *Client {
	t.Helper()
	c := New(api.server.URL, WithWallet(newWallet(t)))
	_, err := c.Login(context.Background())
	require.NoError(t, err)
	return c
}

func TestLoginWithoutWallet(t *testing.T) {
	api := newTestAPI(t)
	_, err := New(api.server.URL).Login(context.Background())
	assert.ErrorIs(t, err, core.ErrWalletProviderUnavailable)
}

func TestLoginAndProfile(t *testing.T) {
	api := newTestAPI(t)
	wallet := newWallet(t)
	c := New(api.server.URL, WithWallet(wallet))

	s, err := c.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(wallet.Address()), s.User.WalletAddress)
	assert.Equal(t, core.RoleDonor, s.User.UserType)

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, me.ID)

	roles, err := c.Roles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Role{core.RoleDonor}, roles)
}

func TestRoleOperations(t *testing.T) {
	api := newTestAPI(t)
	c := loggedIn(t, api)
	ctx := context.Background()

	_, err := c.SwitchRole(ctx, core.RoleVendor)
	assert.ErrorIs(t, err, core.ErrRoleNotHeld)

	_, err = c.EnsureRole(ctx, core.RoleVendor, nil)
	assert.ErrorIs(t, err, core.ErrRoleAdditionRequired)

	_, err = c.EnsureRole(ctx, core.RoleVendor, func(core.Role) bool { return false })
	assert.ErrorIs(t, err, core.ErrRoleAdditionRequired)

	var asked core.Role
	s, err := c.EnsureRole(ctx, core.RoleVendor, func(r core.Role) bool {
		asked = r
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, core.RoleVendor, asked)
	assert.Equal(t, core.RoleVendor, s.User.UserType)

	roles, added, err := c.AddRole(ctx, core.RoleVendor)
	require.NoError(t, err)
	assert.False(t, added)
	assert.ElementsMatch(t, []core.Role{core.RoleDonor, core.RoleVendor}, roles)

	s, err = c.SwitchRole(ctx, core.RoleDonor)
	require.NoError(t, err)
	assert.Equal(t, core.RoleDonor, s.User.UserType)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.RoleDonor, me.UserType)
}

func TestExpiredAccessTokenIsRefreshedOnce(t *testing.T) {
	api := newTestAPI(t)
	c := loggedIn(t, api)
	before := c.Session()

	var seen []*Session
	c.OnSession(func(s *Session) { seen = append(seen, s) })

	api.expire(before.Access)

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before.User.ID, me.ID)

	after := c.Session()
	assert.NotEqual(t, before.Access, after.Access)
	assert.NotEqual(t, before.Refresh, after.Refresh)
	require.Len(t, seen, 1)
	assert.Equal(t, after.Access, seen[0].Access)
}

func TestRefreshFailureResetsSession(t *testing.T) {
	api := newTestAPI(t)
	c := loggedIn(t, api)
	s := c.Session()

	// Another client logs the session out, then the access token expires
	other := New(api.server.URL)
	other.setSession(s)
	require.NoError(t, other.Logout(context.Background()))
	api.expire(s.Access)

	var cleared bool
	c.OnSession(func(s *Session) { cleared = s == nil })

	_, err := c.Me(context.Background())
	assert.ErrorIs(t, err, core.ErrTokenExpired)
	assert.Nil(t, c.Session())
	assert.True(t, cleared)

	_, err = c.Roles(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestLogout(t *testing.T) {
	api := newTestAPI(t)
	c := loggedIn(t, api)

	require.NoError(t, c.Logout(context.Background()))
	assert.Nil(t, c.Session())
	require.NoError(t, c.Logout(context.Background()))
}

func TestNotificationsAPI(t *testing.T) {
	api := newTestAPI(t)
	c := loggedIn(t, api)
	ctx := context.Background()
	accountID := c.Session().User.ID

	for _, id := range []string{"n1", "n2"} {
		_, err := api.notifications.Deliver(ctx, service.NewNotification{ID: id, AccountID: accountID, Type: "donation", Message: id})
		require.NoError(t, err)
	}

	items, unread, err := c.Notifications().Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)
	require.Len(t, items, 2)

	require.NoError(t, c.Notifications().MarkRead(ctx, "n1"))
	err = c.Notifications().MarkRead(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrNotificationNotFound)

	marked, err := c.Notifications().MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	count, err := c.Notifications().UnreadCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHubFollowsSession(t *testing.T) {
	api := newTestAPI(t)
	c := loggedIn(t, api)
	ctx := context.Background()
	accountID := c.Session().User.ID

	var mu sync.Mutex
	opens := 0
	last := hub.StateClosed
	openCount := func() int {
		mu.Lock()
		defer mu.Unlock()
		return opens
	}

	h, err := c.ConnectHub(api.wsURL(), hub.Config{
		BaseDelay:    5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		MaxAttempts:  5,
		PollInterval: 50 * time.Millisecond,
	}, hub.WithOnChange(func(s hub.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if s.State == hub.StateOpen && last != hub.StateOpen {
			opens++
		}
		last = s.State
	}))
	require.NoError(t, err)
	t.Cleanup(h.Close)

	require.Eventually(t, func() bool { return openCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	// Redelivery is harmless, so keep delivering until the server has registered the connection
	deliver := func(id string) func() bool {
		return func() bool {
			_, err := api.notifications.Deliver(ctx, service.NewNotification{ID: id, AccountID: accountID, Type: "donation", Message: id})
			if !assert.NoError(t, err) {
				return false
			}
			for _, n := range h.Snapshot().Notifications {
				if n.ID == id {
					return true
				}
			}
			return false
		}
	}

	require.Eventually(t, deliver("n1"), 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return h.Snapshot().Unread == 1 }, 2*time.Second, 5*time.Millisecond)

	// A role switch rebinds the hub to the new token
	_, err = c.EnsureRole(ctx, core.RoleVendor, func(core.Role) bool { return true })
	require.NoError(t, err)
	require.Eventually(t, func() bool { return openCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, deliver("n2"), 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return h.Snapshot().Unread == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.MarkRead(ctx, "n1"))
	require.Eventually(t, func() bool { return h.Snapshot().Unread == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Logout(ctx))
	require.Eventually(t, h.Offline, 2*time.Second, 5*time.Millisecond)
}
