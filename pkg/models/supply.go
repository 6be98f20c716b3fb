package models

import "time"

// Supply is one observed supply snapshot. Every field that a source cannot
// report is nil and marshals as an explicit JSON null: 0 and "unknown" carry
// different downstream meaning, so unknown fields are never omitted and never
// defaulted to zero.
type Supply struct {
	Timestamp   time.Time `json:"timestamp"`
	Circulating *float64  `json:"circulating"`
	Burned      *float64  `json:"burned"`
	Total       *float64  `json:"total"`
	Issued      *float64  `json:"issued"`
	Max         *float64  `json:"max"`
}

func (s Supply) Time() time.Time { return s.Timestamp }

// PreferredAmount picks the supply figure used for valuation, in priority
// order total > circulating > issued > max. The second return names the field
// chosen; both are zero-valued when every field is unknown.
func (s Supply) PreferredAmount() (*float64, string) {
	switch {
	case s.Total != nil:
		return s.Total, "total"
	case s.Circulating != nil:
		return s.Circulating, "circulating"
	case s.Issued != nil:
		return s.Issued, "issued"
	case s.Max != nil:
		return s.Max, "max"
	}
	return nil, ""
}
