// Package rest queries systems that expose a JSON indexer API instead of a
// node RPC (custodial ledgers, explorers for exotic chains).
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/chains"
	"github.com/backingwatch/backingx/pkg/models"
	"github.com/backingwatch/backingx/pkg/retry"
	"github.com/backingwatch/backingx/pkg/utils"
)

type module struct {
	logger  *zap.Logger
	client  *resty.Client
	baseURL string
}

// NewModule targets the system's first endpoint as the API base URL.
func NewModule(_ context.Context, logger *zap.Logger, system models.SystemDetails) (chains.Module, error) {
	endpoints := utils.Dedup(system.Endpoints)
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("rest system %s has no endpoints", system.ID)
	}
	client := resty.New().
		SetTimeout(utils.EnvDuration("REST_TIMEOUT", 30*time.Second)).
		SetHeader("Accept", "application/json")
	return &module{logger: logger, client: client, baseURL: endpoints[0]}, nil
}

type amountResponse struct {
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

func (m *module) GetBalance(ctx context.Context, token, holder string) (*big.Int, error) {
	url := fmt.Sprintf("%s/v1/accounts/%s/balances/%s", m.baseURL, holder, token)
	resp, err := m.get(ctx, "balance", url)
	if err != nil {
		return nil, err
	}
	return parseAmount(resp.Amount)
}

func (m *module) GetSupply(ctx context.Context, token string) (*big.Int, error) {
	url := fmt.Sprintf("%s/v1/assets/%s/supply", m.baseURL, token)
	resp, err := m.get(ctx, "supply", url)
	if err != nil {
		return nil, err
	}
	return parseAmount(resp.Amount)
}

func (m *module) GetDecimals(ctx context.Context, token string) (uint8, error) {
	url := fmt.Sprintf("%s/v1/assets/%s/supply", m.baseURL, token)
	resp, err := m.get(ctx, "decimals", url)
	if err != nil {
		return 0, err
	}
	return resp.Decimals, nil
}

func (m *module) get(ctx context.Context, operation, url string) (*amountResponse, error) {
	var out amountResponse
	err := retry.WithBackoff(ctx, retry.DefaultConfig(), m.logger, operation, func() error {
		resp, err := m.client.R().SetContext(ctx).Get(url)
		if err != nil {
			return fmt.Errorf("get %s: %w", url, err)
		}
		if code := resp.StatusCode(); code != http.StatusOK {
			err := fmt.Errorf("get %s: unexpected status %d", url, code)
			if code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout {
				return retry.Permanent(err)
			}
			return err
		}
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return retry.Permanent(fmt.Errorf("decode %s: %w", url, err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func parseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}
