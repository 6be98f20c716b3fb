package models

import "time"

// Collateralization joins an asset's market valuation with the value of its
// backing. Ratio = collateral USD / market cap USD. A record is only created
// when both figures are defined; an undefined ratio is never stored.
type Collateralization struct {
	Timestamp  time.Time     `json:"timestamp"`
	MarketCap  MarketCap     `json:"market_cap"`
	Collateral Relationships `json:"collateral"`
	Ratio      float64       `json:"ratio"`
}

func (c Collateralization) Time() time.Time { return c.Timestamp }

// DeriveCollateralization computes the ratio record, or nil when either side
// is unknown or the market cap is zero (a zero denominator has no ratio).
func DeriveCollateralization(ts time.Time, mc *MarketCap, collateral *Relationships) *Collateralization {
	if mc == nil || collateral == nil || collateral.USD == nil {
		return nil
	}
	if mc.USD == 0 {
		return nil
	}
	return &Collateralization{
		Timestamp:  ts,
		MarketCap:  *mc,
		Collateral: *collateral,
		Ratio:      *collateral.USD / mc.USD,
	}
}
