// Package venue holds the per-venue quote and transaction encoding rules.
package venue

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"vp-trade/pkg/evm"
)

// Chain is the read side of the signing account
type Chain interface {
	Address() common.Address
	Nonce(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// GasEstimable fills gas limit and fee fields of a request
type GasEstimable interface {
	EstimateGas(ctx context.Context, req *evm.TxRequest) error
}

// AllowanceCapable queries and mutates ERC20 allowance state
type AllowanceCapable interface {
	RequireBalance(ctx context.Context, amount *big.Int, token common.Address) error
	CheckAllowance(ctx context.Context, amount *big.Int, token, spender common.Address) (bool, error)
	ApproveAllowance(ctx context.Context, amount *big.Int, token, spender common.Address) (common.Hash, error)
}

// newRequest fills the account-derived fields shared by every venue call
func newRequest(ctx context.Context, chain Chain, to common.Address, data []byte) (*evm.TxRequest, error) {
	nonce, err := chain.Nonce(ctx)
	if err != nil {
		return nil, err
	}
	chainID, err := chain.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	return &evm.TxRequest{
		From:    chain.Address(),
		To:      to,
		Data:    data,
		Value:   new(big.Int),
		Nonce:   nonce,
		ChainID: chainID,
	}, nil
}
