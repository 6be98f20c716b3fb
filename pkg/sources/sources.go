package sources

import (
	"context"

	"github.com/backingwatch/backingx/pkg/models"
)

// AssetAdapter is the capability one tracked asset's data source supplies.
// Fetch methods may return multiple records (historical catch-up windows);
// the pipeline appends each one and lets the store's duplicate-timestamp
// check drop what a previous run already wrote.
type AssetAdapter interface {
	GetDetails(ctx context.Context) (*models.Details, error)
	GetPrice(ctx context.Context) ([]models.Price, error)
	GetSupply(ctx context.Context) ([]models.Supply, error)
	GetBacking(ctx context.Context) ([]models.Backing, error)
}

// EntityAdapter supplies an organization's details and a refresh hook.
type EntityAdapter interface {
	GetDetails(ctx context.Context) (*models.EntityDetails, error)
	Update(ctx context.Context) error
}

// SystemAdapter supplies a chain's details and a refresh hook.
type SystemAdapter interface {
	GetDetails(ctx context.Context) (*models.SystemDetails, error)
	Update(ctx context.Context) error
}

// Registry enumerates the tracked universe. A failure here is the one
// condition that aborts a whole run: with no identifiers there is nothing
// to isolate.
type Registry interface {
	Assets(ctx context.Context) (map[models.ID]AssetAdapter, error)
	Entities(ctx context.Context) (map[string]EntityAdapter, error)
	Systems(ctx context.Context) (map[string]SystemAdapter, error)
}
