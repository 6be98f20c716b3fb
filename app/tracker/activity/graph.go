package activity

import (
	"context"

	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/graph"
	"github.com/backingwatch/backingx/pkg/models"
	"github.com/backingwatch/backingx/pkg/timeseries"
)

// AssembleGraph collects the latest valuation of every tracked asset and
// appends one graph snapshot for the run. Collateralized assets bring their
// links; base assets bring their market cap alone, becoming roots. Assets
// with no valuation at all stay out of the graph.
func (ac *Context) AssembleGraph(ctx context.Context, state *State) error {
	assets := make(map[models.ID]graph.Asset)

	for _, id := range state.AssetIDs() {
		key := id.String()
		c, err := timeseries.Latest[models.Collateralization](ctx, ac.Store, timeseries.AssetKey(key, MetricCollateralization))
		if err != nil {
			// A corrupt log loses one node, not the whole graph.
			ac.Alerter.ReportFailure(ctx, "graph: read collateralization "+key, err)
			continue
		}
		if c != nil {
			collateral := c.Collateral
			assets[id] = graph.Asset{MarketCap: c.MarketCap, Collateral: &collateral}
			continue
		}

		mc, err := timeseries.Latest[models.MarketCap](ctx, ac.Store, timeseries.AssetKey(key, MetricMarketCap))
		if err != nil {
			ac.Alerter.ReportFailure(ctx, "graph: read market cap "+key, err)
			continue
		}
		if mc != nil {
			assets[id] = graph.Asset{MarketCap: *mc}
		}
	}

	snapshot := graph.Assemble(state.RunTime, assets)
	if err := timeseries.Append(ctx, ac.Store, GraphKey, snapshot); err != nil {
		return err
	}

	ac.Logger.Info("Assembled collateralization graph",
		zap.Int("nodes", snapshot.Stats.Nodes),
		zap.Int("links", snapshot.Stats.Links),
		zap.Int("roots", snapshot.Stats.Roots),
		zap.Int("leaves", snapshot.Stats.Leaves),
		zap.Int("isolated", snapshot.Stats.Isolated))
	return nil
}
