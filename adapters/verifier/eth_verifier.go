// Package verifier checks personal_sign wallet signatures.
package verifier

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/layer-3/kusaidia/internal/eth"
	"github.com/layer-3/kusaidia/ports"
)

// EthVerifier implements ports.SignatureVerifier for EIP-191 personal_sign signatures
type EthVerifier struct{}

// NewEthVerifier creates a signature verifier
func NewEthVerifier() ports.SignatureVerifier {
	return EthVerifier{}
}

// Verify reports whether signature (0x-prefixed hex, 65 bytes) over message recovers to address.
// Malformed input yields false.
func (EthVerifier) Verify(address, message, signature string) bool {
	if !common.IsHexAddress(address) {
		return false
	}
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != eth.SignatureLength {
		return false
	}

	ok, err := eth.VerifySignatureAgainstAddress([]byte(message), sig, common.HexToAddress(address))
	return err == nil && ok
}
