package models

import "time"

// BreakdownEntry is one underlying position: the held amount plus its unit
// price and USD value when the underlying could be priced. Price and USD stay
// nil (explicit null) for underlyings without a market valuation.
type BreakdownEntry struct {
	Amount float64  `json:"amount"`
	Price  *float64 `json:"price"`
	USD    *float64 `json:"usd"`
}

// Relationships resolves one level of Backing into priced positions. USD is
// the sum over priced entries, nil when no entry could be priced.
type Relationships struct {
	Timestamp time.Time                 `json:"timestamp"`
	USD       *float64                  `json:"usd"`
	Breakdown map[string]BreakdownEntry `json:"breakdown"`
}

func (r Relationships) Time() time.Time { return r.Timestamp }
