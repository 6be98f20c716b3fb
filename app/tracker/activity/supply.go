package activity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/models"
	"github.com/backingwatch/backingx/pkg/sources"
	"github.com/backingwatch/backingx/pkg/timeseries"
)

// Supply pulls supply snapshots for one asset and appends the new ones.
// Unknown fields stay nil all the way into the log; re-appended timestamps
// are dropped by the store.
func (ac *Context) Supply(ctx context.Context, state *State, id models.ID, adapter sources.AssetAdapter) error {
	key := timeseries.AssetKey(id.String(), MetricSupply)
	if fresh, err := ac.isFresh(ctx, key, state.RunTime); err != nil {
		return err
	} else if fresh {
		ac.Logger.Debug("Supply still fresh, skipping fetch", zap.String("asset", id.String()))
		return nil
	}

	supplies, err := adapter.GetSupply(ctx)
	if err != nil {
		return fmt.Errorf("fetch supply for %s: %w", id, err)
	}
	for _, s := range supplies {
		if err := timeseries.Append(ctx, ac.Store, key, s); err != nil {
			return err
		}
	}

	ac.Logger.Info("Indexed supply",
		zap.String("asset", id.String()),
		zap.Int("records", len(supplies)))
	return nil
}
