package models

import "time"

// TVL is the total value locked attributed to one system or entity: the sum
// of collateral value across its assets, with a per-asset breakdown. USD is
// nil when no constituent asset could be valued.
type TVL struct {
	Timestamp time.Time          `json:"timestamp"`
	USD       *float64           `json:"usd"`
	Breakdown map[string]float64 `json:"breakdown"`
}

func (t TVL) Time() time.Time { return t.Timestamp }
