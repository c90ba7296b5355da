package models

import (
	"omnidata/logger"
)

// Kind is the closed set of asset categories. The value doubles as the
// persisted type discriminant, so renaming a kind is a data migration.
type Kind string

const (
	KindGeneric Kind = "Asset"
	KindEquity  Kind = "Stock"
	KindCrypto  Kind = "Crypto"
)

// DefaultWindowSize is the rolling price window capacity used when a
// caller does not configure one.
const DefaultWindowSize = 5

// Asset is a tracked instrument: a symbol, its latest price and a bounded
// window of recent prices. An Asset must not be mutated from more than one
// goroutine at a time; the refresh pipeline guarantees this per batch.
type Asset struct {
	symbol     string
	kind       Kind
	exchange   string
	chain      string
	price      float64
	window     []float64
	windowSize int
}

// NewAsset creates a generic asset. An initial price of 0 means "unpriced"
// and leaves the window empty.
func NewAsset(symbol string, initialPrice float64, windowSize int) *Asset {
	if windowSize < 1 {
		windowSize = DefaultWindowSize
	}
	a := &Asset{
		symbol:     symbol,
		kind:       KindGeneric,
		windowSize: windowSize,
		window:     make([]float64, 0, windowSize),
	}
	if initialPrice > 0 {
		a.price = initialPrice
		a.window = append(a.window, initialPrice)
	}
	return a
}

// NewEquity creates an exchange-listed asset.
func NewEquity(symbol string, initialPrice float64, exchange string, windowSize int) *Asset {
	a := NewAsset(symbol, initialPrice, windowSize)
	a.kind = KindEquity
	a.exchange = exchange
	return a
}

// NewCrypto creates an on-chain asset.
func NewCrypto(symbol string, initialPrice float64, chain string, windowSize int) *Asset {
	a := NewAsset(symbol, initialPrice, windowSize)
	a.kind = KindCrypto
	a.chain = chain
	return a
}

func (a *Asset) Symbol() string { return a.symbol }
func (a *Asset) Kind() Kind     { return a.kind }
func (a *Asset) Price() float64 { return a.price }

// Exchange returns the listing exchange; empty unless the asset is an equity.
func (a *Asset) Exchange() string { return a.exchange }

// Chain returns the settlement chain; empty unless the asset is a crypto.
func (a *Asset) Chain() string { return a.chain }

// UpdatePrice sets the current price and appends it to the rolling window,
// evicting the oldest entry at capacity. Negative prices are rejected and
// leave the asset unchanged.
func (a *Asset) UpdatePrice(newPrice float64) {
	if newPrice < 0 {
		logger.GetLogger().WithComponent("models").WithFields(logger.Fields{
			"symbol": a.symbol,
			"price":  newPrice,
		}).Warn("rejected negative price update")
		return
	}

	a.price = newPrice
	a.window = append(a.window, newPrice)
	if len(a.window) > a.windowSize {
		a.window = a.window[1:]
	}
}

// SMA returns the simple moving average over the window, 0 when empty.
func (a *Asset) SMA() float64 {
	if len(a.window) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range a.window {
		sum += p
	}
	return sum / float64(len(a.window))
}

// Window returns a copy of the current price window, oldest first.
func (a *Asset) Window() []float64 {
	out := make([]float64, len(a.window))
	copy(out, a.window)
	return out
}

// RiskProfile returns the classification label for the asset's kind.
func (a *Asset) RiskProfile() string {
	switch a.kind {
	case KindEquity:
		return "risk: medium (market swings and earnings exposure)"
	case KindCrypto:
		return "risk: very high (trades around the clock, severe volatility)"
	default:
		return "risk: unknown"
	}
}

// Portfolio is an ordered collection of assets. Duplicate symbols are
// tolerated; the pipeline and store treat entries positionally.
type Portfolio []*Asset

// Symbols returns the portfolio's symbols in order.
func (p Portfolio) Symbols() []string {
	out := make([]string, len(p))
	for i, a := range p {
		out[i] = a.symbol
	}
	return out
}
