package activity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/models"
	"github.com/backingwatch/backingx/pkg/sources"
	"github.com/backingwatch/backingx/pkg/timeseries"
)

// FetchAsset pulls details and price from the asset's adapter and appends
// new price points to the asset's log. The details identity check guards the
// storage slot: a source answering for the wrong asset must fail loudly
// before anything is written under this id.
func (ac *Context) FetchAsset(ctx context.Context, state *State, id models.ID, adapter sources.AssetAdapter) error {
	details, err := adapter.GetDetails(ctx)
	if err != nil {
		return fmt.Errorf("fetch details for %s: %w", id, err)
	}
	if details.ID != id {
		return fmt.Errorf("%w: slot %s got details for %s", ErrIdentityMismatch, id, details.ID)
	}
	state.SetDetails(*details)

	key := timeseries.AssetKey(id.String(), MetricPrice)
	if fresh, err := ac.isFresh(ctx, key, state.RunTime); err != nil {
		return err
	} else if fresh {
		ac.Logger.Debug("Price still fresh, skipping fetch", zap.String("asset", id.String()))
		return nil
	}

	prices, err := adapter.GetPrice(ctx)
	if err != nil {
		return fmt.Errorf("fetch price for %s: %w", id, err)
	}
	for _, p := range prices {
		if err := timeseries.Append(ctx, ac.Store, key, p); err != nil {
			return err
		}
	}

	ac.Logger.Info("Fetched asset",
		zap.String("asset", id.String()),
		zap.Int("prices", len(prices)))
	return nil
}

// isFresh implements the approximate daily-cadence guard: skip a refetch
// when the latest record already sits within RefreshTolerance of the run
// time. Timezone-naive on purpose; see NewContext.
func (ac *Context) isFresh(ctx context.Context, key timeseries.Key, runTime time.Time) (bool, error) {
	latest, err := ac.Store.Latest(ctx, key)
	if err != nil {
		return false, err
	}
	if latest == nil {
		return false, nil
	}
	return runTime.Sub(latest.Timestamp) < ac.RefreshTolerance, nil
}
