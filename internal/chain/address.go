// Package chain validates on-chain token addresses for the supported networks.
package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"

	"github.com/kinexbt/coin-yaps/internal/models"
)

// solana public keys are 32 bytes, base58 encoded
const solanaKeyLen = 32

// IsSolanaAddress reports whether addr decodes to a 32-byte base58 key
func IsSolanaAddress(addr string) bool {
	if len(addr) < 32 || len(addr) > 44 {
		return false
	}
	decoded, err := base58.Decode(addr)
	if err != nil {
		return false
	}
	return len(decoded) == solanaKeyLen
}

// IsBSCAddress reports whether addr is a 0x-prefixed 20-byte hex address
func IsBSCAddress(addr string) bool {
	return strings.HasPrefix(addr, "0x") && common.IsHexAddress(addr)
}

// DetectNetwork returns the network whose address format matches addr
func DetectNetwork(addr string) (models.Network, bool) {
	addr = strings.TrimSpace(addr)
	switch {
	case IsBSCAddress(addr):
		return models.NetworkBSC, true
	case IsSolanaAddress(addr):
		return models.NetworkSolana, true
	default:
		return "", false
	}
}

// IsAddress reports whether addr is valid on any supported network
func IsAddress(addr string) bool {
	_, ok := DetectNetwork(addr)
	return ok
}
