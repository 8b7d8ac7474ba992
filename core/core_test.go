package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("  0xAbC0000000000000000000000000000000000001 ")
	require.NoError(t, err)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", got)

	for _, bad := range []string{"", "0x123", "not-an-address", "0xZZZ0000000000000000000000000000000000001"} {
		_, err := NormalizeAddress(bad)
		assert.ErrorIs(t, err, ErrInvalidAddress, bad)
	}
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress("0xABCdef0000000000000000000000000000000000", "0xabcDEF0000000000000000000000000000000000"))
	assert.False(t, SameAddress("0xabc0000000000000000000000000000000000001", "0xabc0000000000000000000000000000000000002"))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Organization ")
	require.NoError(t, err)
	assert.Equal(t, RoleOrganization, r)

	_, err = ParseRole("superuser")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestAccountClone(t *testing.T) {
	a := &Account{ID: "a1", Roles: []Role{RoleDonor}, ActiveRole: RoleDonor}
	cp := a.Clone()
	cp.Roles = append(cp.Roles, RoleVendor)
	cp.Roles[0] = RoleAdmin

	assert.Equal(t, []Role{RoleDonor}, a.Roles)
	assert.True(t, cp.HasRole(RoleVendor))
	assert.False(t, a.HasRole(RoleVendor))
}

func TestChallengeExpired(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Challenge{IssuedAt: issued, ExpiresAt: issued.Add(5 * time.Minute)}

	assert.False(t, c.Expired(issued.Add(5*time.Minute-time.Nanosecond)))
	assert.True(t, c.Expired(issued.Add(5*time.Minute)))
}

func TestChallengeMessageEmbedsAddressAndNonce(t *testing.T) {
	msg := ChallengeMessage("0xabc", "n1", time.Now())
	assert.Contains(t, msg, "Wallet: 0xabc")
	assert.Contains(t, msg, "Nonce: n1")
	assert.True(t, len(msg) > 4 && msg[:4] == "Sign")
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    MessageType
		wantErr bool
	}{
		{"notification", `{"type":"notification","notification":{"id":"n1","type":"donation","message":"hi","read":false}}`, MessageNotification, false},
		{"unread count zero", `{"type":"unread_count","count":0}`, MessageUnreadCount, false},
		{"mark read", `{"type":"mark_read","notification_id":"n1"}`, MessageMarkRead, false},
		{"notification without payload", `{"type":"notification"}`, "", true},
		{"negative count", `{"type":"unread_count","count":-1}`, "", true},
		{"missing count", `{"type":"unread_count"}`, "", true},
		{"unknown type", `{"type":"ping"}`, "", true},
		{"garbage", `{not json`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.data))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Type)
		})
	}
}
