package activity

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/alerting"
	"github.com/backingwatch/backingx/pkg/compiler"
	"github.com/backingwatch/backingx/pkg/sources"
	"github.com/backingwatch/backingx/pkg/timeseries"
	"github.com/backingwatch/backingx/pkg/utils"
)

// Metric names, one append-only log per (identifier, metric).
const (
	MetricPrice             = "price"
	MetricSupply            = "supply"
	MetricBacking           = "backing"
	MetricMarketCap         = "market-cap"
	MetricRelationships     = "relationships"
	MetricCollateralization = "collateralization"
	MetricTVL               = "tvl"
)

// GraphKey is the single whole-universe log the graph stage appends to.
var GraphKey = timeseries.Key{Kind: "global", ID: "collateralization", Metric: "graph"}

// ErrIdentityMismatch marks a fetched details document whose id does not
// match the storage slot it was fetched for. It indicates misconfiguration
// and is surfaced loudly, but still only fails its own task.
var ErrIdentityMismatch = errors.New("identity mismatch")

// Context carries the collaborators every pipeline task needs. Constructed
// once per process and shared read-only across tasks; per-run state lives in
// workflow.State instead.
type Context struct {
	Logger   *zap.Logger
	Store    timeseries.Store
	Registry sources.Registry
	Alerter  alerting.Alerter
	Compiler compiler.Compiler

	// RefreshTolerance is the approximate daily-cadence guard: a metric whose
	// latest record is this close to now is not refetched. Timezone-naive by
	// design; it bounds source traffic, it is not a consistency mechanism.
	RefreshTolerance time.Duration

	// JoinTolerance bounds the closest-record lookup used to join
	// independently-updated series (e.g. price against supply) by nearness.
	JoinTolerance time.Duration
}

// NewContext applies the env-tunable tolerances.
func NewContext(logger *zap.Logger, store timeseries.Store, registry sources.Registry, alerter alerting.Alerter, comp compiler.Compiler) *Context {
	return &Context{
		Logger:           logger,
		Store:            store,
		Registry:         registry,
		Alerter:          alerter,
		Compiler:         comp,
		RefreshTolerance: utils.EnvDuration("REFRESH_TOLERANCE", 23*time.Hour+59*time.Minute),
		JoinTolerance:    utils.EnvDuration("JOIN_TOLERANCE", 36*time.Hour),
	}
}
