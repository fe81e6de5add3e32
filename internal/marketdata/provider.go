// Package marketdata fetches token metadata and market figures from an
// external token-data provider.
package marketdata

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/kinexbt/coin-yaps/internal/models"
)

// Provider looks tokens up on the market-data provider. A nil result with a
// nil error means the provider has no matching token; an error means the
// provider could not be reached.
type Provider interface {
	LookupByAddress(ctx context.Context, address string) (*TokenAttrs, error)
	LookupBySymbol(ctx context.Context, symbol string) ([]TokenAttrs, error)
}

// TokenAttrs is the provider's view of a token
type TokenAttrs struct {
	Symbol         string          `json:"symbol"`
	Name           string          `json:"name"`
	Address        string          `json:"address"`
	Network        models.Network  `json:"network"`
	Price          decimal.Decimal `json:"price"`
	MarketCap      decimal.Decimal `json:"marketCap"`
	Volume24h      decimal.Decimal `json:"volume24h"`
	PriceChange24h decimal.Decimal `json:"priceChange24h"`
	Liquidity      decimal.Decimal `json:"liquidity"`
	Image          string          `json:"image,omitempty"`
}

// Score ranks competing pairs for the same query
func (a TokenAttrs) Score() decimal.Decimal {
	return a.Liquidity.Add(a.Volume24h)
}

// ToModel builds an unsaved token. The provider knows nothing about supply or
// curve progress, so both start at zero.
func (a TokenAttrs) ToModel() *models.Token {
	return &models.Token{
		Symbol:         models.NormalizeSymbol(a.Symbol),
		Name:           a.Name,
		Address:        a.Address,
		Network:        a.Network,
		Price:          a.Price,
		MarketCap:      a.MarketCap,
		Volume24h:      a.Volume24h,
		PriceChange24h: a.PriceChange24h,
		Supply:         decimal.Zero,
		Liquidity:      a.Liquidity,
		BCurve:         decimal.Zero,
		Image:          a.Image,
	}
}
