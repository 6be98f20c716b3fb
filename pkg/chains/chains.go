package chains

import (
	"context"
	"fmt"
	"math/big"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/models"
)

// Module is the query capability one chain family exposes. Amounts come back
// in raw on-chain units; callers scale by GetDecimals.
type Module interface {
	GetBalance(ctx context.Context, token, holder string) (*big.Int, error)
	GetSupply(ctx context.Context, token string) (*big.Int, error)
	GetDecimals(ctx context.Context, token string) (uint8, error)
}

// Constructor builds the module for one concrete system of a family.
type Constructor func(ctx context.Context, logger *zap.Logger, system models.SystemDetails) (Module, error)

// Dispatcher resolves a system id to its chain module: a keyed registry of
// family constructors plus a cache of lazily constructed module instances.
// One module instance serves all lookups for its system.
type Dispatcher struct {
	logger       *zap.Logger
	constructors map[string]Constructor
	modules      *xsync.Map[string, Module]
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger:       logger,
		constructors: make(map[string]Constructor),
		modules:      xsync.NewMap[string, Module](),
	}
}

// Register installs the constructor for a chain family. Call during wiring,
// before any Resolve; registration is not synchronized with lookups.
func (d *Dispatcher) Register(family string, ctor Constructor) {
	d.constructors[family] = ctor
}

// Resolve returns the cached module for the system, constructing it on first
// use. An unregistered family is an error, not a panic: a misconfigured
// system must only fail its own tasks.
func (d *Dispatcher) Resolve(ctx context.Context, system models.SystemDetails) (Module, error) {
	if m, ok := d.modules.Load(system.ID); ok {
		return m, nil
	}

	ctor, ok := d.constructors[system.Family]
	if !ok {
		return nil, fmt.Errorf("no chain module registered for family %q (system %s)", system.Family, system.ID)
	}

	m, err := ctor(ctx, d.logger.With(zap.String("system", system.ID)), system)
	if err != nil {
		return nil, fmt.Errorf("construct chain module for %s: %w", system.ID, err)
	}

	actual, _ := d.modules.LoadOrStore(system.ID, m)
	return actual, nil
}
