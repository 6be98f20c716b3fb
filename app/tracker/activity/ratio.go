package activity

import (
	"context"

	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/models"
	"github.com/backingwatch/backingx/pkg/timeseries"
)

// CollateralizationRatio joins one asset's market cap with its resolved
// collateral. The record is only written when both sides are defined: an
// undefined ratio is never stored.
func (ac *Context) CollateralizationRatio(ctx context.Context, state *State, id models.ID) error {
	mc, err := timeseries.Closest[models.MarketCap](ctx, ac.Store, timeseries.AssetKey(id.String(), MetricMarketCap), state.RunTime, ac.JoinTolerance)
	if err != nil {
		return err
	}
	rel, err := timeseries.Closest[models.Relationships](ctx, ac.Store, timeseries.AssetKey(id.String(), MetricRelationships), state.RunTime, ac.JoinTolerance)
	if err != nil {
		return err
	}

	c := models.DeriveCollateralization(state.RunTime, mc, rel)
	if c == nil {
		ac.Logger.Debug("Collateralization undefined",
			zap.String("asset", id.String()),
			zap.Bool("haveMarketCap", mc != nil),
			zap.Bool("haveCollateral", rel != nil && rel.USD != nil))
		return nil
	}

	if err := timeseries.Append(ctx, ac.Store, timeseries.AssetKey(id.String(), MetricCollateralization), *c); err != nil {
		return err
	}

	ac.Logger.Info("Derived collateralization",
		zap.String("asset", id.String()),
		zap.Float64("ratio", c.Ratio))
	return nil
}
