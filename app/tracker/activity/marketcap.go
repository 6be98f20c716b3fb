package activity

import (
	"context"

	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/models"
	"github.com/backingwatch/backingx/pkg/timeseries"
)

// MarketCap values one asset: nearest price and supply within the join
// tolerance of the run time, multiplied. No record is written when either
// factor is unknown; the valuation is unknown, not zero.
func (ac *Context) MarketCap(ctx context.Context, state *State, id models.ID) error {
	price, err := timeseries.Closest[models.Price](ctx, ac.Store, timeseries.AssetKey(id.String(), MetricPrice), state.RunTime, ac.JoinTolerance)
	if err != nil {
		return err
	}
	supply, err := timeseries.Closest[models.Supply](ctx, ac.Store, timeseries.AssetKey(id.String(), MetricSupply), state.RunTime, ac.JoinTolerance)
	if err != nil {
		return err
	}

	mc := models.DeriveMarketCap(state.RunTime, price, supply)
	if mc == nil {
		ac.Logger.Debug("Market cap unknown",
			zap.String("asset", id.String()),
			zap.Bool("havePrice", price != nil),
			zap.Bool("haveSupply", supply != nil))
		return nil
	}

	if err := timeseries.Append(ctx, ac.Store, timeseries.AssetKey(id.String(), MetricMarketCap), *mc); err != nil {
		return err
	}

	ac.Logger.Info("Derived market cap",
		zap.String("asset", id.String()),
		zap.Float64("usd", mc.USD),
		zap.String("supplySource", mc.Supply.Source))
	return nil
}
