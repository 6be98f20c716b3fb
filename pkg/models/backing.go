package models

import "time"

// Backing records the amount of each underlying asset collateralizing this
// asset at one point in time, keyed by the underlying asset's stringified ID.
type Backing struct {
	Timestamp  time.Time          `json:"timestamp"`
	Underlying map[string]float64 `json:"underlying"`
}

func (b Backing) Time() time.Time { return b.Timestamp }

// UnderlyingIDs returns the parsed ids of every underlying asset, skipping
// entries whose key is not a valid id.
func (b Backing) UnderlyingIDs() []ID {
	ids := make([]ID, 0, len(b.Underlying))
	for key := range b.Underlying {
		id, err := ParseID(key)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
