package activity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/compiler"
	"github.com/backingwatch/backingx/pkg/graph"
	"github.com/backingwatch/backingx/pkg/models"
	"github.com/backingwatch/backingx/pkg/timeseries"
)

// CompileAsset writes one asset's externally-served resource document from
// whatever the run (and history) holds. A failed upstream task leaves the
// previous document in place; compile never fabricates values.
func (ac *Context) CompileAsset(ctx context.Context, state *State, id models.ID) error {
	details, ok := state.Details(id)
	if !ok {
		// No details this run means fetch failed; leave the resource stale.
		ac.Logger.Debug("No details this run, leaving resource stale", zap.String("asset", id.String()))
		return nil
	}

	resource := compiler.AssetResource{
		Details:    details,
		CompiledAt: state.RunTime,
	}

	var err error
	if resource.Price, err = timeseries.Latest[models.Price](ctx, ac.Store, timeseries.AssetKey(id.String(), MetricPrice)); err != nil {
		return err
	}
	if resource.Supply, err = timeseries.Latest[models.Supply](ctx, ac.Store, timeseries.AssetKey(id.String(), MetricSupply)); err != nil {
		return err
	}
	if resource.Backing, err = timeseries.Latest[models.Backing](ctx, ac.Store, timeseries.AssetKey(id.String(), MetricBacking)); err != nil {
		return err
	}
	if resource.MarketCap, err = timeseries.Latest[models.MarketCap](ctx, ac.Store, timeseries.AssetKey(id.String(), MetricMarketCap)); err != nil {
		return err
	}
	if resource.Relationships, err = timeseries.Latest[models.Relationships](ctx, ac.Store, timeseries.AssetKey(id.String(), MetricRelationships)); err != nil {
		return err
	}
	if resource.Collateralization, err = timeseries.Latest[models.Collateralization](ctx, ac.Store, timeseries.AssetKey(id.String(), MetricCollateralization)); err != nil {
		return err
	}

	if err := ac.Compiler.CompileAsset(ctx, resource); err != nil {
		return fmt.Errorf("compile asset %s: %w", id, err)
	}
	return nil
}

// CompileEntity writes one entity's resource document.
func (ac *Context) CompileEntity(ctx context.Context, state *State, id string) error {
	tvl, err := timeseries.Latest[models.TVL](ctx, ac.Store, timeseries.EntityKey(id, MetricTVL))
	if err != nil {
		return err
	}
	resource := compiler.EntityResource{ID: id, TVL: tvl, CompiledAt: state.RunTime}
	if details, ok := state.EntityDetails(id); ok {
		resource.Details = details
	}
	if err := ac.Compiler.CompileEntity(ctx, timeseries.KindEntity, resource); err != nil {
		return fmt.Errorf("compile entity %s: %w", id, err)
	}
	return nil
}

// CompileSystem writes one system's resource document.
func (ac *Context) CompileSystem(ctx context.Context, state *State, id string) error {
	tvl, err := timeseries.Latest[models.TVL](ctx, ac.Store, timeseries.SystemKey(id, MetricTVL))
	if err != nil {
		return err
	}
	resource := compiler.EntityResource{ID: id, TVL: tvl, CompiledAt: state.RunTime}
	if details, ok := state.SystemDetails(id); ok {
		resource.Details = details
	}
	if err := ac.Compiler.CompileEntity(ctx, timeseries.KindSystem, resource); err != nil {
		return fmt.Errorf("compile system %s: %w", id, err)
	}
	return nil
}

// CompileGraph publishes the latest whole-universe graph snapshot.
func (ac *Context) CompileGraph(ctx context.Context, _ *State) error {
	snapshot, err := timeseries.Latest[graph.Snapshot](ctx, ac.Store, GraphKey)
	if err != nil {
		return err
	}
	if snapshot == nil {
		return nil
	}
	if err := ac.Compiler.CompileGraph(ctx, *snapshot); err != nil {
		return fmt.Errorf("compile graph: %w", err)
	}
	return nil
}
