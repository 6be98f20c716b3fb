package models

import "time"

// Price is one observed USD price point.
type Price struct {
	Timestamp time.Time `json:"timestamp"`
	USD       float64   `json:"usd"`
}

func (p Price) Time() time.Time { return p.Timestamp }
