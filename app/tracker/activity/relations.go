package activity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/models"
	"github.com/backingwatch/backingx/pkg/sources"
	"github.com/backingwatch/backingx/pkg/timeseries"
)

// Relations pulls backing records for one asset and resolves the newest one
// into priced positions: for every underlying asset, the nearest price
// within the join tolerance values the position. Underlyings the run cannot
// price keep a nil value rather than zero.
func (ac *Context) Relations(ctx context.Context, state *State, id models.ID, adapter sources.AssetAdapter) error {
	backingKey := timeseries.AssetKey(id.String(), MetricBacking)
	if fresh, err := ac.isFresh(ctx, backingKey, state.RunTime); err != nil {
		return err
	} else if !fresh {
		backings, err := adapter.GetBacking(ctx)
		if err != nil {
			return fmt.Errorf("fetch backing for %s: %w", id, err)
		}
		for _, b := range backings {
			if err := timeseries.Append(ctx, ac.Store, backingKey, b); err != nil {
				return err
			}
		}
	}

	backing, err := timeseries.Latest[models.Backing](ctx, ac.Store, backingKey)
	if err != nil {
		return err
	}
	if backing == nil || len(backing.Underlying) == 0 {
		// Nothing backs this asset; base assets have no relationships series.
		return nil
	}

	rel := models.Relationships{
		Timestamp: state.RunTime,
		Breakdown: make(map[string]models.BreakdownEntry, len(backing.Underlying)),
	}

	var sum float64
	var priced bool
	for underlying, amount := range backing.Underlying {
		entry := models.BreakdownEntry{Amount: amount}

		priceKey := timeseries.AssetKey(underlying, MetricPrice)
		price, err := timeseries.Closest[models.Price](ctx, ac.Store, priceKey, state.RunTime, ac.JoinTolerance)
		if err != nil {
			return err
		}
		if price != nil {
			usd := amount * price.USD
			entry.Price = &price.USD
			entry.USD = &usd
			sum += usd
			priced = true
		}
		rel.Breakdown[underlying] = entry
	}
	if priced {
		rel.USD = &sum
	}

	if err := timeseries.Append(ctx, ac.Store, timeseries.AssetKey(id.String(), MetricRelationships), rel); err != nil {
		return err
	}

	ac.Logger.Info("Resolved relations",
		zap.String("asset", id.String()),
		zap.Int("underlying", len(rel.Breakdown)),
		zap.Bool("priced", priced))
	return nil
}
