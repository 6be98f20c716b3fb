package sources

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/chains"
	"github.com/backingwatch/backingx/pkg/models"
)

// OnChainAsset reads supply directly from the hosting chain through the
// chain dispatcher and takes price from a JSON source API. Assets whose
// issuer publishes no supply endpoint are tracked this way.
type OnChainAsset struct {
	logger     *zap.Logger
	dispatcher *chains.Dispatcher
	system     models.SystemDetails
	details    models.Details
	price      *HTTPAsset
}

func NewOnChainAsset(logger *zap.Logger, dispatcher *chains.Dispatcher, system models.SystemDetails, details models.Details, priceBaseURL string) *OnChainAsset {
	a := &OnChainAsset{
		logger:     logger.With(zap.String("asset", details.ID.String())),
		dispatcher: dispatcher,
		system:     system,
		details:    details,
	}
	if priceBaseURL != "" {
		a.price = NewHTTPAsset(logger, nil, details.ID, priceBaseURL)
	}
	return a
}

func (a *OnChainAsset) GetDetails(context.Context) (*models.Details, error) {
	details := a.details
	return &details, nil
}

func (a *OnChainAsset) GetPrice(ctx context.Context) ([]models.Price, error) {
	if a.price == nil {
		return nil, nil
	}
	return a.price.GetPrice(ctx)
}

func (a *OnChainAsset) GetSupply(ctx context.Context) ([]models.Supply, error) {
	module, err := a.dispatcher.Resolve(ctx, a.system)
	if err != nil {
		return nil, err
	}

	token := a.details.ID.Address
	raw, err := module.GetSupply(ctx, token)
	if err != nil {
		return nil, err
	}
	decimals, err := module.GetDecimals(ctx, token)
	if err != nil {
		return nil, err
	}

	total := scale(raw, decimals)
	// Chain state only answers total issuance; circulating, burned and the
	// rest stay unknown rather than zero.
	return []models.Supply{{
		Timestamp: time.Now().UTC(),
		Total:     &total,
	}}, nil
}

// GetBacking reports nothing: on-chain supply sources carry no backing
// attestation. Base assets are exactly the ones backed by nothing tracked.
func (a *OnChainAsset) GetBacking(context.Context) ([]models.Backing, error) {
	return nil, nil
}

func scale(raw *big.Int, decimals uint8) float64 {
	f := new(big.Float).SetInt(raw)
	if decimals > 0 {
		div := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
		f.Quo(f, div)
	}
	out, _ := f.Float64()
	return out
}

var _ AssetAdapter = (*OnChainAsset)(nil)
