package verifier

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/kusaidia/internal/eth"
)

func TestEthVerifier(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	msg := "Sign this message to authenticate with KUSAIDIA.\n\nNonce: 00ff"

	raw, err := eth.SignText(key, []byte(msg))
	require.NoError(t, err)
	sig := hexutil.Encode(raw)

	v := NewEthVerifier()
	assert.True(t, v.Verify(addr, msg, sig))
	assert.True(t, v.Verify(strings.ToLower(addr), msg, sig), "address case must not matter")

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	assert.False(t, v.Verify(crypto.PubkeyToAddress(other.PublicKey).Hex(), msg, sig))
	assert.False(t, v.Verify(addr, msg+" ", sig))

	flipped := append([]byte(nil), raw...)
	flipped[10] ^= 0x01
	assert.False(t, v.Verify(addr, msg, hexutil.Encode(flipped)))
}

func TestEthVerifierMalformedInput(t *testing.T) {
	v := NewEthVerifier()
	addr := "0xabc0000000000000000000000000000000000001"

	for _, sig := range []string{"", "0x", "zz", "0x1234", "deadbeef", "0x" + strings.Repeat("00", 65)} {
		assert.False(t, v.Verify(addr, "m", sig), sig)
	}
	assert.False(t, v.Verify("not-an-address", "m", "0x"+strings.Repeat("11", 65)))
}
