package evm

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/backingwatch/backingx/pkg/chains"
	"github.com/backingwatch/backingx/pkg/models"
	"github.com/backingwatch/backingx/pkg/utils"
)

// NativeToken addresses the chain's own coin instead of an ERC-20 contract.
const NativeToken = "native"

// ERC-20 function selectors.
var (
	selBalanceOf   = common.Hex2Bytes("70a08231")
	selTotalSupply = common.Hex2Bytes("18160ddd")
	selDecimals    = common.Hex2Bytes("313ce567")
)

type module struct {
	logger *zap.Logger
	client *ethclient.Client
}

// NewModule dials the first configured endpoint of an EVM system.
func NewModule(ctx context.Context, logger *zap.Logger, system models.SystemDetails) (chains.Module, error) {
	endpoints := utils.Dedup(system.Endpoints)
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("evm system %s has no endpoints", system.ID)
	}
	client, err := ethclient.DialContext(ctx, endpoints[0])
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoints[0], err)
	}
	return &module{logger: logger, client: client}, nil
}

func (m *module) GetBalance(ctx context.Context, token, holder string) (*big.Int, error) {
	if !common.IsHexAddress(holder) {
		return nil, fmt.Errorf("invalid holder address %q", holder)
	}
	holderAddr := common.HexToAddress(holder)

	if token == NativeToken {
		return m.client.BalanceAt(ctx, holderAddr, nil)
	}

	data := append(append([]byte{}, selBalanceOf...), common.LeftPadBytes(holderAddr.Bytes(), 32)...)
	out, err := m.call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s) on %s: %w", holder, token, err)
	}
	return new(big.Int).SetBytes(out), nil
}

func (m *module) GetSupply(ctx context.Context, token string) (*big.Int, error) {
	out, err := m.call(ctx, token, selTotalSupply)
	if err != nil {
		return nil, fmt.Errorf("totalSupply on %s: %w", token, err)
	}
	return new(big.Int).SetBytes(out), nil
}

func (m *module) GetDecimals(ctx context.Context, token string) (uint8, error) {
	if token == NativeToken {
		return 18, nil
	}
	out, err := m.call(ctx, token, selDecimals)
	if err != nil {
		return 0, fmt.Errorf("decimals on %s: %w", token, err)
	}
	d := new(big.Int).SetBytes(out)
	if !d.IsUint64() || d.Uint64() > 0xff {
		return 0, fmt.Errorf("decimals on %s out of range: %s", token, d)
	}
	return uint8(d.Uint64()), nil
}

func (m *module) call(ctx context.Context, token string, data []byte) ([]byte, error) {
	if !common.IsHexAddress(token) {
		return nil, fmt.Errorf("invalid token address %q", token)
	}
	to := common.HexToAddress(token)
	return m.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}
