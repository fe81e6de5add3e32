package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kinexbt/coin-yaps/internal/models"
)

func TestDetectNetwork(t *testing.T) {
	cases := []struct {
		name    string
		addr    string
		network models.Network
		ok      bool
	}{
		{"wrapped sol mint", "So11111111111111111111111111111111111111112", models.NetworkSolana, true},
		{"usdc mint", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", models.NetworkSolana, true},
		{"bsc cake", "0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82", models.NetworkBSC, true},
		{"bsc lowercase", "0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82", models.NetworkBSC, true},
		{"padded", "  0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82 ", models.NetworkBSC, true},
		{"hex without prefix", "0e09fabb73bd3ade0a17ecc321fd13a19e81ce82", "", false},
		{"short hex", "0x1234", "", false},
		{"base58 invalid char", "0OIl1111111111111111111111111111111111111112", "", false},
		{"symbol", "NYLA", "", false},
		{"empty", "", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			network, ok := DetectNetwork(tc.addr)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.network, network)
			assert.Equal(t, tc.ok, IsAddress(tc.addr))
		})
	}
}
