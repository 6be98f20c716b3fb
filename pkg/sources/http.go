package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/models"
	"github.com/backingwatch/backingx/pkg/retry"
	"github.com/backingwatch/backingx/pkg/utils"
)

// HTTPAsset adapts a JSON source API for one asset. It is the reference
// adapter implementation; source-specific adapters follow the same shape.
type HTTPAsset struct {
	logger  *zap.Logger
	client  *resty.Client
	id      models.ID
	baseURL string
}

func NewHTTPAsset(logger *zap.Logger, client *resty.Client, id models.ID, baseURL string) *HTTPAsset {
	if client == nil {
		client = NewHTTPClient()
	}
	return &HTTPAsset{
		logger:  logger.With(zap.String("asset", id.String())),
		client:  client,
		id:      id,
		baseURL: baseURL,
	}
}

// NewHTTPClient builds the shared resty client used by HTTP adapters.
func NewHTTPClient() *resty.Client {
	return resty.New().
		SetTransport(&http.Transport{Proxy: http.ProxyFromEnvironment}).
		SetTimeout(utils.EnvDuration("SOURCE_TIMEOUT", 30*time.Second)).
		SetHeader("Accept", "application/json")
}

func (a *HTTPAsset) GetDetails(ctx context.Context) (*models.Details, error) {
	var details models.Details
	if err := a.get(ctx, "details", &details); err != nil {
		return nil, err
	}
	return &details, nil
}

func (a *HTTPAsset) GetPrice(ctx context.Context) ([]models.Price, error) {
	var prices []models.Price
	if err := a.get(ctx, "price", &prices); err != nil {
		return nil, err
	}
	return prices, nil
}

func (a *HTTPAsset) GetSupply(ctx context.Context) ([]models.Supply, error) {
	var supplies []models.Supply
	if err := a.get(ctx, "supply", &supplies); err != nil {
		return nil, err
	}
	return supplies, nil
}

func (a *HTTPAsset) GetBacking(ctx context.Context) ([]models.Backing, error) {
	var backing []models.Backing
	if err := a.get(ctx, "backing", &backing); err != nil {
		return nil, err
	}
	return backing, nil
}

func (a *HTTPAsset) get(ctx context.Context, resource string, out any) error {
	url := fmt.Sprintf("%s/v1/assets/%s/%s/%s", a.baseURL, a.id.System, a.id.Address, resource)
	return getJSON(ctx, a.logger, a.client, url, out)
}

func getJSON(ctx context.Context, logger *zap.Logger, client *resty.Client, url string, out any) error {
	return retry.WithBackoff(ctx, retry.DefaultConfig(), logger, "fetch "+url, func() error {
		resp, err := client.R().SetContext(ctx).Get(url)
		if err != nil {
			return fmt.Errorf("get %s: %w", url, err)
		}
		if code := resp.StatusCode(); code != http.StatusOK {
			err := fmt.Errorf("get %s: unexpected status %d", url, code)
			if !retryableStatus(code) {
				return retry.Permanent(err)
			}
			return err
		}
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			// The document will not get better on a refetch.
			return retry.Permanent(fmt.Errorf("decode %s: %w", url, err))
		}
		return nil
	})
}

// retryableStatus reports whether a non-200 response can resolve itself:
// rate limits, timeouts and server errors do, the rest of the 4xx range
// does not.
func retryableStatus(code int) bool {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	case code >= 500:
		return true
	}
	return false
}
