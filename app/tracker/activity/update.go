package activity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/sources"
)

// UpdateEntity refreshes one entity's source and captures its details for
// the compile stage.
func (ac *Context) UpdateEntity(ctx context.Context, state *State, id string, adapter sources.EntityAdapter) error {
	if err := adapter.Update(ctx); err != nil {
		return fmt.Errorf("update entity %s: %w", id, err)
	}
	details, err := adapter.GetDetails(ctx)
	if err != nil {
		return fmt.Errorf("fetch details for entity %s: %w", id, err)
	}
	if details.ID != id {
		return fmt.Errorf("%w: slot %s got details for entity %s", ErrIdentityMismatch, id, details.ID)
	}
	state.SetEntityDetails(*details)
	ac.Logger.Debug("Updated entity", zap.String("entity", id))
	return nil
}

// UpdateSystem refreshes one system's source and captures its details.
func (ac *Context) UpdateSystem(ctx context.Context, state *State, id string, adapter sources.SystemAdapter) error {
	if err := adapter.Update(ctx); err != nil {
		return fmt.Errorf("update system %s: %w", id, err)
	}
	details, err := adapter.GetDetails(ctx)
	if err != nil {
		return fmt.Errorf("fetch details for system %s: %w", id, err)
	}
	if details.ID != id {
		return fmt.Errorf("%w: slot %s got details for system %s", ErrIdentityMismatch, id, details.ID)
	}
	state.SetSystemDetails(*details)
	ac.Logger.Debug("Updated system", zap.String("system", id))
	return nil
}
