package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PriceRange is one of the fixed market-cap prediction buckets. The string
// values are wire literals shared with the web client.
type PriceRange string

const (
	PriceRangeUnder100K PriceRange = "$0-100K"
	PriceRange100KTo1M  PriceRange = "$100K-1M"
	PriceRange1MTo5M    PriceRange = "$1M-5M"
	PriceRange5MTo20M   PriceRange = "$5M-20M"
	PriceRangeAbove20M  PriceRange = "$20M+"
)

var priceRanges = [...]PriceRange{
	PriceRangeUnder100K,
	PriceRange100KTo1M,
	PriceRange1MTo5M,
	PriceRange5MTo20M,
	PriceRangeAbove20M,
}

// ErrInvalidPriceRange is returned for labels outside the bucket set
var ErrInvalidPriceRange = errors.New("invalid price range")

// PriceRanges returns the buckets in display order
func PriceRanges() []PriceRange {
	out := make([]PriceRange, len(priceRanges))
	copy(out, priceRanges[:])
	return out
}

// ParsePriceRange matches s byte-for-byte against the bucket labels
func ParsePriceRange(s string) (PriceRange, error) {
	for _, r := range priceRanges {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPriceRange, s)
}

// Valid reports whether r is one of the buckets
func (r PriceRange) Valid() bool {
	_, err := ParsePriceRange(string(r))
	return err == nil
}

func (r *PriceRange) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePriceRange(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Network is the chain a token lives on
type Network string

const (
	NetworkSolana Network = "solana"
	NetworkBSC    Network = "bsc"
)

// ErrInvalidNetwork is returned for unsupported chains
var ErrInvalidNetwork = errors.New("invalid network")

// ParseNetwork accepts the network name case-insensitively
func ParseNetwork(s string) (Network, error) {
	switch Network(strings.ToLower(strings.TrimSpace(s))) {
	case NetworkSolana:
		return NetworkSolana, nil
	case NetworkBSC:
		return NetworkBSC, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidNetwork, s)
	}
}

// Valid reports whether n is a supported network
func (n Network) Valid() bool {
	return n == NetworkSolana || n == NetworkBSC
}

func (n *Network) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseNetwork(s)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
