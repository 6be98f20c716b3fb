package activity

import (
	"context"

	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/models"
	"github.com/backingwatch/backingx/pkg/timeseries"
)

// UnderlyingAssets reads the asset's latest backing record and registers
// every underlying asset it names. Discovered ids feed the ratio and graph
// stages; untracked ones simply stay unpriced downstream.
func (ac *Context) UnderlyingAssets(ctx context.Context, state *State, id models.ID) error {
	backing, err := timeseries.Latest[models.Backing](ctx, ac.Store, timeseries.AssetKey(id.String(), MetricBacking))
	if err != nil {
		return err
	}
	if backing == nil {
		return nil
	}

	ids := backing.UnderlyingIDs()
	for _, underlying := range ids {
		state.Discover(underlying)
	}
	if len(ids) > 0 {
		ac.Logger.Debug("Discovered underlying assets",
			zap.String("asset", id.String()),
			zap.Int("count", len(ids)))
	}
	return nil
}
