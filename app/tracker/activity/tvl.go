package activity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/models"
	"github.com/backingwatch/backingx/pkg/timeseries"
)

// TVLSystem sums locked collateral value across the tracked assets hosted
// on one system.
func (ac *Context) TVLSystem(ctx context.Context, state *State, systemID string) error {
	members := make([]models.ID, 0)
	for id := range state.Assets {
		if id.System == systemID {
			members = append(members, id)
		}
	}
	return ac.writeTVL(ctx, state, timeseries.SystemKey(systemID, MetricTVL), systemID, members)
}

// TVLEntity sums locked collateral value across an entity's assets: those
// it lists itself plus every tracked asset naming it as issuer.
func (ac *Context) TVLEntity(ctx context.Context, state *State, entityID string) error {
	seen := make(map[models.ID]bool)
	members := make([]models.ID, 0)
	if details, ok := state.EntityDetails(entityID); ok {
		for _, id := range details.Assets {
			if !seen[id] {
				seen[id] = true
				members = append(members, id)
			}
		}
	}
	for id := range state.Assets {
		if details, ok := state.Details(id); ok && details.Issuer == entityID && !seen[id] {
			seen[id] = true
			members = append(members, id)
		}
	}
	return ac.writeTVL(ctx, state, timeseries.EntityKey(entityID, MetricTVL), entityID, members)
}

func (ac *Context) writeTVL(ctx context.Context, state *State, key timeseries.Key, owner string, members []models.ID) error {
	if len(members) == 0 {
		ac.Logger.Debug("No member assets, skipping TVL", zap.String("owner", owner))
		return nil
	}

	tvl := models.TVL{
		Timestamp: state.RunTime,
		Breakdown: make(map[string]float64, len(members)),
	}

	var sum float64
	var valued bool
	for _, id := range members {
		rel, err := timeseries.Closest[models.Relationships](ctx, ac.Store, timeseries.AssetKey(id.String(), MetricRelationships), state.RunTime, ac.JoinTolerance)
		if err != nil {
			return fmt.Errorf("read relationships for %s: %w", id, err)
		}
		if rel == nil || rel.USD == nil {
			continue
		}
		tvl.Breakdown[id.String()] = *rel.USD
		sum += *rel.USD
		valued = true
	}
	if valued {
		tvl.USD = &sum
	}

	if err := timeseries.Append(ctx, ac.Store, key, tvl); err != nil {
		return err
	}

	ac.Logger.Info("Derived TVL",
		zap.String("owner", owner),
		zap.Int("assets", len(members)),
		zap.Bool("valued", valued))
	return nil
}
