package domain

// Asset selects one of the two pool assets. Base is the asset being
// auctioned; quote is the asset deposits and prices are denominated in.
type Asset string

const (
	AssetBase  Asset = "base"
	AssetQuote Asset = "quote"
)
