package resolver

import "context"

// TokenInfo is the identity portion of a resolution: name, symbol and logo,
// without market data.
type TokenInfo struct {
	Name    string
	Symbol  string
	LogoURI string
}

// MetadataSource is the primary lookup for token identity, keyed by address.
type MetadataSource interface {
	TokenMetadata(ctx context.Context, address string) (*TokenInfo, error)
}

// TokenListSource is the secondary, list-based lookup used when the primary
// source has no entry for an address.
type TokenListSource interface {
	Lookup(ctx context.Context, address string) (*TokenInfo, error)
}

// PriceSource quotes the current unit price for an address.
type PriceSource interface {
	Price(ctx context.Context, address string) (float64, error)
}

// SupplySource reports the circulating supply for an address.
type SupplySource interface {
	Supply(ctx context.Context, address string) (float64, error)
}
