package client

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/layer-3/kusaidia/internal/eth"
)

// Wallet signs login challenges with personal_sign.
type Wallet interface {
	Address() string
	SignMessage(ctx context.Context, message string) (string, error)
}

// KeyWallet is a Wallet backed by an in-memory secp256k1 key.
type KeyWallet struct {
	key *ecdsa.PrivateKey
}

func NewKeyWallet(key *ecdsa.PrivateKey) *KeyWallet {
	return &KeyWallet{key: key}
}

// LoadKeyWallet reads a hex encoded private key from file.
func LoadKeyWallet(file string) (*KeyWallet, error) {
	key, err := crypto.LoadECDSA(file)
	if err != nil {
		return nil, err
	}
	return NewKeyWallet(key), nil
}

func (w *KeyWallet) Address() string {
	return crypto.PubkeyToAddress(w.key.PublicKey).Hex()
}

// SignMessage returns the 0x-prefixed 65 byte signature over message.
func (w *KeyWallet) SignMessage(_ context.Context, message string) (string, error) {
	sig, err := eth.SignText(w.key, []byte(message))
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}
