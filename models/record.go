package models

// Record is the persisted form of an Asset. The Type field is the explicit
// discriminant used to reconstruct the right kind on load.
type Record struct {
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	SMA      float64 `json:"sma"`
	Type     Kind    `json:"type"`
	Exchange string  `json:"exchange,omitempty"`
	Chain    string  `json:"chain,omitempty"`
}

// ToRecord captures the asset's persisted fields.
func (a *Asset) ToRecord() Record {
	return Record{
		Symbol:   a.symbol,
		Price:    a.price,
		SMA:      a.SMA(),
		Type:     a.kind,
		Exchange: a.exchange,
		Chain:    a.chain,
	}
}

// FromRecord rebuilds an Asset from its persisted form. It reports false for
// unrecognized type discriminants so callers can skip them.
func FromRecord(r Record, windowSize int) (*Asset, bool) {
	switch r.Type {
	case KindGeneric:
		return NewAsset(r.Symbol, r.Price, windowSize), true
	case KindEquity:
		return NewEquity(r.Symbol, r.Price, r.Exchange, windowSize), true
	case KindCrypto:
		return NewCrypto(r.Symbol, r.Price, r.Chain, windowSize), true
	default:
		return nil, false
	}
}
