package activity_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/backingwatch/backingx/app/tracker/activity"
	"github.com/backingwatch/backingx/pkg/compiler"
	"github.com/backingwatch/backingx/pkg/graph"
	"github.com/backingwatch/backingx/pkg/models"
	"github.com/backingwatch/backingx/pkg/sources"
	"github.com/backingwatch/backingx/pkg/timeseries"
)

func f(v float64) *float64 { return &v }

type fakeAsset struct {
	details    models.Details
	prices     []models.Price
	supplies   []models.Supply
	backings   []models.Backing
	err        error
	priceCalls atomic.Int32
}

func (a *fakeAsset) GetDetails(context.Context) (*models.Details, error) {
	if a.err != nil {
		return nil, a.err
	}
	d := a.details
	return &d, nil
}

func (a *fakeAsset) GetPrice(context.Context) ([]models.Price, error) {
	a.priceCalls.Add(1)
	if a.err != nil {
		return nil, a.err
	}
	return a.prices, nil
}

func (a *fakeAsset) GetSupply(context.Context) ([]models.Supply, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.supplies, nil
}

func (a *fakeAsset) GetBacking(context.Context) ([]models.Backing, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.backings, nil
}

type fakeEntity struct {
	details models.EntityDetails
}

func (e *fakeEntity) GetDetails(context.Context) (*models.EntityDetails, error) {
	d := e.details
	return &d, nil
}

func (e *fakeEntity) Update(context.Context) error { return nil }

type memCompiler struct {
	mu       sync.Mutex
	assets   map[string]compiler.AssetResource
	entities map[string]compiler.EntityResource
	graph    *graph.Snapshot
}

func newMemCompiler() *memCompiler {
	return &memCompiler{
		assets:   make(map[string]compiler.AssetResource),
		entities: make(map[string]compiler.EntityResource),
	}
}

func (c *memCompiler) CompileAsset(_ context.Context, resource compiler.AssetResource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assets[resource.Details.ID.String()] = resource
	return nil
}

func (c *memCompiler) CompileEntity(_ context.Context, kind string, resource compiler.EntityResource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities[kind+"/"+resource.ID] = resource
	return nil
}

func (c *memCompiler) CompileGraph(_ context.Context, snapshot graph.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graph = &snapshot
	return nil
}

type nopAlerter struct{}

func (nopAlerter) ReportFailure(context.Context, string, error) {}

func newTestContext(t *testing.T) (*activity.Context, *memCompiler) {
	t.Helper()
	comp := newMemCompiler()
	return &activity.Context{
		Logger:           zaptest.NewLogger(t),
		Store:            timeseries.NewFileStore(zaptest.NewLogger(t), t.TempDir()),
		Alerter:          nopAlerter{},
		Compiler:         comp,
		RefreshTolerance: 23*time.Hour + 59*time.Minute,
		JoinTolerance:    36 * time.Hour,
	}, comp
}

func newRunState(assets map[models.ID]sources.AssetAdapter) *activity.State {
	return activity.NewState(time.Now().UTC().Truncate(time.Minute), assets, nil, nil)
}

func TestFetchAssetAppendsPrices(t *testing.T) {
	ac, _ := newTestContext(t)
	id := models.ID{System: "ethereum", Address: "0xabc"}
	adapter := &fakeAsset{
		details: models.Details{ID: id, Name: "Wrapped Thing", Symbol: "WTH"},
		prices:  []models.Price{{Timestamp: time.Now().UTC().Add(-time.Hour), USD: 1.5}},
	}
	state := newRunState(map[models.ID]sources.AssetAdapter{id: adapter})

	require.NoError(t, ac.FetchAsset(context.Background(), state, id, adapter))

	details, ok := state.Details(id)
	require.True(t, ok)
	assert.Equal(t, "WTH", details.Symbol)

	price, err := timeseries.Latest[models.Price](context.Background(), ac.Store, timeseries.AssetKey(id.String(), activity.MetricPrice))
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.Equal(t, 1.5, price.USD)
}

func TestFetchAssetIdentityMismatch(t *testing.T) {
	ac, _ := newTestContext(t)
	id := models.ID{System: "ethereum", Address: "0xabc"}
	adapter := &fakeAsset{
		details: models.Details{ID: models.ID{System: "ethereum", Address: "0xother"}},
	}
	state := newRunState(map[models.ID]sources.AssetAdapter{id: adapter})

	err := ac.FetchAsset(context.Background(), state, id, adapter)
	require.ErrorIs(t, err, activity.ErrIdentityMismatch)

	// Nothing was stored under the mismatched slot.
	_, ok := state.Details(id)
	assert.False(t, ok)
	price, err := timeseries.Latest[models.Price](context.Background(), ac.Store, timeseries.AssetKey(id.String(), activity.MetricPrice))
	require.NoError(t, err)
	assert.Nil(t, price)
}

func TestFetchAssetSkipsFreshPrice(t *testing.T) {
	ac, _ := newTestContext(t)
	id := models.ID{System: "ethereum", Address: "0xabc"}
	adapter := &fakeAsset{
		details: models.Details{ID: id},
		prices:  []models.Price{{Timestamp: time.Now().UTC(), USD: 2}},
	}
	state := newRunState(map[models.ID]sources.AssetAdapter{id: adapter})

	// A recent record already on disk keeps the adapter untouched.
	key := timeseries.AssetKey(id.String(), activity.MetricPrice)
	recent := models.Price{Timestamp: state.RunTime.Add(-time.Hour), USD: 1}
	require.NoError(t, timeseries.Append(context.Background(), ac.Store, key, recent))

	require.NoError(t, ac.FetchAsset(context.Background(), state, id, adapter))
	assert.Equal(t, int32(0), adapter.priceCalls.Load())

	// A record a day and change old does not count as fresh.
	state = newRunState(map[models.ID]sources.AssetAdapter{id: adapter})
	state.RunTime = recent.Timestamp.Add(25 * time.Hour)
	require.NoError(t, ac.FetchAsset(context.Background(), state, id, adapter))
	assert.Equal(t, int32(1), adapter.priceCalls.Load())
}

func TestRelationsPricesUnderlying(t *testing.T) {
	ac, _ := newTestContext(t)
	ctx := context.Background()
	id := models.ID{System: "ethereum", Address: "0xwrap"}
	state := newRunState(nil)

	// The underlying asset has a price near the run time; a second
	// underlying has none and must stay unpriced, not zero-priced.
	priced := models.ID{System: "ethereum", Address: "0xgold"}
	unpriced := models.ID{System: "ethereum", Address: "0xmystery"}
	require.NoError(t, timeseries.Append(ctx, ac.Store,
		timeseries.AssetKey(priced.String(), activity.MetricPrice),
		models.Price{Timestamp: state.RunTime.Add(-2 * time.Hour), USD: 10}))

	adapter := &fakeAsset{backings: []models.Backing{{
		Timestamp: state.RunTime,
		Underlying: map[string]float64{
			priced.String():   3,
			unpriced.String(): 7,
		},
	}}}

	require.NoError(t, ac.Relations(ctx, state, id, adapter))

	rel, err := timeseries.Latest[models.Relationships](ctx, ac.Store, timeseries.AssetKey(id.String(), activity.MetricRelationships))
	require.NoError(t, err)
	require.NotNil(t, rel)
	require.NotNil(t, rel.USD)
	assert.Equal(t, 30.0, *rel.USD)

	entry := rel.Breakdown[priced.String()]
	require.NotNil(t, entry.USD)
	assert.Equal(t, 30.0, *entry.USD)
	assert.Equal(t, 10.0, *entry.Price)

	entry = rel.Breakdown[unpriced.String()]
	assert.Equal(t, 7.0, entry.Amount)
	assert.Nil(t, entry.Price)
	assert.Nil(t, entry.USD)
}

func TestRelationsSkipsBaseAssets(t *testing.T) {
	ac, _ := newTestContext(t)
	ctx := context.Background()
	id := models.ID{System: "ethereum", Address: "0xbase"}
	state := newRunState(nil)

	require.NoError(t, ac.Relations(ctx, state, id, &fakeAsset{}))

	rel, err := timeseries.Latest[models.Relationships](ctx, ac.Store, timeseries.AssetKey(id.String(), activity.MetricRelationships))
	require.NoError(t, err)
	assert.Nil(t, rel)
}

func TestMarketCapJoinsNearestRecords(t *testing.T) {
	ac, _ := newTestContext(t)
	ctx := context.Background()
	id := models.ID{System: "ethereum", Address: "0xabc"}
	state := newRunState(nil)

	require.NoError(t, timeseries.Append(ctx, ac.Store,
		timeseries.AssetKey(id.String(), activity.MetricPrice),
		models.Price{Timestamp: state.RunTime.Add(-time.Hour), USD: 2}))
	require.NoError(t, timeseries.Append(ctx, ac.Store,
		timeseries.AssetKey(id.String(), activity.MetricSupply),
		models.Supply{Timestamp: state.RunTime.Add(-20 * time.Hour), Total: f(1000)}))

	require.NoError(t, ac.MarketCap(ctx, state, id))

	mc, err := timeseries.Latest[models.MarketCap](ctx, ac.Store, timeseries.AssetKey(id.String(), activity.MetricMarketCap))
	require.NoError(t, err)
	require.NotNil(t, mc)
	assert.Equal(t, 2000.0, mc.USD)
	assert.Equal(t, "total", mc.Supply.Source)
}

func TestMarketCapUnknownWritesNothing(t *testing.T) {
	ac, _ := newTestContext(t)
	ctx := context.Background()
	id := models.ID{System: "ethereum", Address: "0xabc"}
	state := newRunState(nil)

	// Price but no supply: the valuation stays unknown.
	require.NoError(t, timeseries.Append(ctx, ac.Store,
		timeseries.AssetKey(id.String(), activity.MetricPrice),
		models.Price{Timestamp: state.RunTime, USD: 2}))

	require.NoError(t, ac.MarketCap(ctx, state, id))

	mc, err := timeseries.Latest[models.MarketCap](ctx, ac.Store, timeseries.AssetKey(id.String(), activity.MetricMarketCap))
	require.NoError(t, err)
	assert.Nil(t, mc)
}

func TestMarketCapIgnoresStaleSupply(t *testing.T) {
	ac, _ := newTestContext(t)
	ctx := context.Background()
	id := models.ID{System: "ethereum", Address: "0xabc"}
	state := newRunState(nil)

	require.NoError(t, timeseries.Append(ctx, ac.Store,
		timeseries.AssetKey(id.String(), activity.MetricPrice),
		models.Price{Timestamp: state.RunTime, USD: 2}))
	require.NoError(t, timeseries.Append(ctx, ac.Store,
		timeseries.AssetKey(id.String(), activity.MetricSupply),
		models.Supply{Timestamp: state.RunTime.Add(-40 * time.Hour), Total: f(1000)}))

	require.NoError(t, ac.MarketCap(ctx, state, id))

	mc, err := timeseries.Latest[models.MarketCap](ctx, ac.Store, timeseries.AssetKey(id.String(), activity.MetricMarketCap))
	require.NoError(t, err)
	assert.Nil(t, mc)
}

func TestCollateralizationRatio(t *testing.T) {
	ac, _ := newTestContext(t)
	ctx := context.Background()
	id := models.ID{System: "ethereum", Address: "0xabc"}
	state := newRunState(nil)

	require.NoError(t, timeseries.Append(ctx, ac.Store,
		timeseries.AssetKey(id.String(), activity.MetricMarketCap),
		models.MarketCap{Timestamp: state.RunTime, USD: 1000}))
	require.NoError(t, timeseries.Append(ctx, ac.Store,
		timeseries.AssetKey(id.String(), activity.MetricRelationships),
		models.Relationships{Timestamp: state.RunTime, USD: f(1100)}))

	require.NoError(t, ac.CollateralizationRatio(ctx, state, id))

	c, err := timeseries.Latest[models.Collateralization](ctx, ac.Store, timeseries.AssetKey(id.String(), activity.MetricCollateralization))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.InDelta(t, 1.1, c.Ratio, 1e-9)
}

func TestUnderlyingAssetsDiscovery(t *testing.T) {
	ac, _ := newTestContext(t)
	ctx := context.Background()
	id := models.ID{System: "ethereum", Address: "0xwrap"}
	state := newRunState(nil)

	require.NoError(t, timeseries.Append(ctx, ac.Store,
		timeseries.AssetKey(id.String(), activity.MetricBacking),
		models.Backing{Timestamp: state.RunTime, Underlying: map[string]float64{
			"ethereum:0xgold": 3,
			"not-an-id":       1,
		}}))

	require.NoError(t, ac.UnderlyingAssets(ctx, state, id))

	discovered := state.Discovered()
	require.Len(t, discovered, 1)
	assert.Equal(t, "ethereum:0xgold", discovered[0].String())
}

func TestTVLEntityMembers(t *testing.T) {
	ac, _ := newTestContext(t)
	ctx := context.Background()

	listed := models.ID{System: "ethereum", Address: "0xlisted"}
	issued := models.ID{System: "ethereum", Address: "0xissued"}
	state := newRunState(map[models.ID]sources.AssetAdapter{
		listed: &fakeAsset{},
		issued: &fakeAsset{},
	})
	state.SetEntityDetails(models.EntityDetails{ID: "acme", Assets: []models.ID{listed}})
	state.SetDetails(models.Details{ID: issued, Issuer: "acme"})

	for i, id := range []models.ID{listed, issued} {
		require.NoError(t, timeseries.Append(ctx, ac.Store,
			timeseries.AssetKey(id.String(), activity.MetricRelationships),
			models.Relationships{Timestamp: state.RunTime, USD: f(float64(100 * (i + 1)))}))
	}

	require.NoError(t, ac.TVLEntity(ctx, state, "acme"))

	tvl, err := timeseries.Latest[models.TVL](ctx, ac.Store, timeseries.EntityKey("acme", activity.MetricTVL))
	require.NoError(t, err)
	require.NotNil(t, tvl)
	require.NotNil(t, tvl.USD)
	assert.Equal(t, 300.0, *tvl.USD)
	assert.Len(t, tvl.Breakdown, 2)
}

func TestTVLSystemSkipsWithoutMembers(t *testing.T) {
	ac, _ := newTestContext(t)
	ctx := context.Background()
	state := newRunState(nil)

	require.NoError(t, ac.TVLSystem(ctx, state, "ethereum"))

	tvl, err := timeseries.Latest[models.TVL](ctx, ac.Store, timeseries.SystemKey("ethereum", activity.MetricTVL))
	require.NoError(t, err)
	assert.Nil(t, tvl)
}

func TestAssembleGraphSnapshot(t *testing.T) {
	ac, _ := newTestContext(t)
	ctx := context.Background()

	a := models.ID{System: "eth", Address: "a"}
	b := models.ID{System: "eth", Address: "b"}
	state := newRunState(map[models.ID]sources.AssetAdapter{
		a: &fakeAsset{},
		b: &fakeAsset{},
	})

	require.NoError(t, timeseries.Append(ctx, ac.Store,
		timeseries.AssetKey(a.String(), activity.MetricCollateralization),
		models.Collateralization{
			Timestamp:  state.RunTime,
			MarketCap:  models.MarketCap{USD: 100},
			Collateral: models.Relationships{USD: f(110), Breakdown: map[string]models.BreakdownEntry{b.String(): {Amount: 1, USD: f(110)}}},
			Ratio:      1.1,
		}))
	// b was never collateralized but carries a valuation, so it still gets
	// a node of its own.
	require.NoError(t, timeseries.Append(ctx, ac.Store,
		timeseries.AssetKey(b.String(), activity.MetricMarketCap),
		models.MarketCap{Timestamp: state.RunTime, USD: 110}))

	require.NoError(t, ac.AssembleGraph(ctx, state))

	snap, err := timeseries.Latest[graph.Snapshot](ctx, ac.Store, activity.GraphKey)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.Stats.Nodes)
	assert.Equal(t, 1, snap.Stats.Links)
	assert.Equal(t, 1, snap.Stats.Roots)
	assert.Equal(t, 1, snap.Stats.Leaves)
}

func TestCompileAssetGathersLatest(t *testing.T) {
	ac, comp := newTestContext(t)
	ctx := context.Background()
	id := models.ID{System: "ethereum", Address: "0xabc"}
	state := newRunState(nil)
	state.SetDetails(models.Details{ID: id, Symbol: "WTH"})

	require.NoError(t, timeseries.Append(ctx, ac.Store,
		timeseries.AssetKey(id.String(), activity.MetricPrice),
		models.Price{Timestamp: state.RunTime, USD: 2}))
	require.NoError(t, timeseries.Append(ctx, ac.Store,
		timeseries.AssetKey(id.String(), activity.MetricMarketCap),
		models.MarketCap{Timestamp: state.RunTime, USD: 2000}))

	require.NoError(t, ac.CompileAsset(ctx, state, id))

	resource, ok := comp.assets[id.String()]
	require.True(t, ok)
	assert.Equal(t, "WTH", resource.Details.Symbol)
	require.NotNil(t, resource.Price)
	assert.Equal(t, 2.0, resource.Price.USD)
	require.NotNil(t, resource.MarketCap)
	assert.Nil(t, resource.Supply)
	assert.Nil(t, resource.Collateralization)
}

func TestCompileAssetLeavesStaleWithoutDetails(t *testing.T) {
	ac, comp := newTestContext(t)
	id := models.ID{System: "ethereum", Address: "0xabc"}
	state := newRunState(nil)

	require.NoError(t, ac.CompileAsset(context.Background(), state, id))
	assert.Empty(t, comp.assets)
}

func TestUpdateEntityIdentityMismatch(t *testing.T) {
	ac, _ := newTestContext(t)
	state := newRunState(nil)

	adapter := &fakeEntity{details: models.EntityDetails{ID: "someone-else"}}
	err := ac.UpdateEntity(context.Background(), state, "acme", adapter)
	require.ErrorIs(t, err, activity.ErrIdentityMismatch)

	adapter = &fakeEntity{details: models.EntityDetails{ID: "acme", Name: "Acme Corp"}}
	require.NoError(t, ac.UpdateEntity(context.Background(), state, "acme", adapter))
	details, ok := state.EntityDetails("acme")
	require.True(t, ok)
	assert.Equal(t, "Acme Corp", details.Name)
}

func TestFetchAssetAdapterFailure(t *testing.T) {
	ac, _ := newTestContext(t)
	id := models.ID{System: "ethereum", Address: "0xabc"}
	adapter := &fakeAsset{err: errors.New("rate limited")}
	state := newRunState(map[models.ID]sources.AssetAdapter{id: adapter})

	err := ac.FetchAsset(context.Background(), state, id, adapter)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}
