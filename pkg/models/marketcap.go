package models

import "time"

// SupplyRef records which supply figure a valuation used.
type SupplyRef struct {
	Amount float64 `json:"amount"`
	Source string  `json:"source"`
}

// MarketCap is the derived valuation usd = price * supply amount.
type MarketCap struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Supply    SupplyRef `json:"supply"`
	USD       float64   `json:"usd"`
}

func (m MarketCap) Time() time.Time { return m.Timestamp }

// DeriveMarketCap values a supply snapshot at a price. Returns nil when either
// factor is unknown: an unknown input propagates, it never becomes zero.
func DeriveMarketCap(ts time.Time, price *Price, supply *Supply) *MarketCap {
	if price == nil || supply == nil {
		return nil
	}
	amount, source := supply.PreferredAmount()
	if amount == nil {
		return nil
	}
	return &MarketCap{
		Timestamp: ts,
		Price:     price.USD,
		Supply:    SupplyRef{Amount: *amount, Source: source},
		USD:       price.USD * *amount,
	}
}
