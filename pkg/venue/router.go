package venue

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"vp-trade/pkg/evm"
	"vp-trade/pkg/types"
	"vp-trade/pkg/units"
)

// SwapDeadline is how long a built router swap stays valid
const SwapDeadline = 20 * time.Minute

// RouterSwap trades sentient tokens through a constant-product router.
// BUY and SELL are the same swap with from/to reversed.
type RouterSwap struct {
	router    common.Address
	chain     Chain
	gas       GasEstimable
	allowance AllowanceCapable
	now       func() time.Time
}

// NewRouterSwap creates the sentient venue
func NewRouterSwap(router common.Address, chain Chain, gas GasEstimable, allowance AllowanceCapable) *RouterSwap {
	return &RouterSwap{
		router:    router,
		chain:     chain,
		gas:       gas,
		allowance: allowance,
		now:       time.Now,
	}
}

// Spender is the address that must be approved to move the from token
func (v *RouterSwap) Spender() common.Address {
	return v.router
}

// AmountsOut asks the router for the output of every hop along path
func (v *RouterSwap) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	data, err := UniswapV2Router.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getAmountsOut data: %w", err)
	}
	result, err := v.chain.Call(ctx, v.router, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call getAmountsOut: %w", err)
	}
	out, err := UniswapV2Router.Unpack("getAmountsOut", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getAmountsOut result: %w", err)
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getAmountsOut result type %T", out[0])
	}
	return amounts, nil
}

// AmountOutMin applies slippage percent with integer truncation:
// amountOut - amountOut*slippage/100
func AmountOutMin(amountOut *big.Int, slippagePercent uint16) *big.Int {
	cut := new(big.Int).Mul(amountOut, big.NewInt(int64(slippagePercent)))
	cut.Div(cut, big.NewInt(100))
	return new(big.Int).Sub(amountOut, cut)
}

// BuildSwapRequest encodes a fee-on-transfer safe exact-input swap of
// amount fromToken into toToken, paid out to the account.
func (v *RouterSwap) BuildSwapRequest(ctx context.Context, fromToken, toToken common.Address, amount string, opt *types.Option) (*evm.TxRequest, error) {
	slippage := opt.SlippagePercent()
	if slippage > 100 {
		return nil, fmt.Errorf("slippage must be between 0 and 100 percent, got %d", slippage)
	}

	amountIn, err := units.ParseEther(amount)
	if err != nil {
		return nil, err
	}

	if err := v.allowance.RequireBalance(ctx, amountIn, fromToken); err != nil {
		return nil, err
	}

	path := []common.Address{fromToken, toToken}
	amounts, err := v.AmountsOut(ctx, amountIn, path)
	if err != nil {
		return nil, err
	}
	if len(amounts) < 2 || amounts[1] == nil || amounts[1].Sign() <= 0 {
		return nil, fmt.Errorf("%w: router returned no output for %s -> %s", types.ErrQuote, fromToken.Hex(), toToken.Hex())
	}

	amountOutMin := AmountOutMin(amounts[1], slippage)
	log.WithFields(log.Fields{
		"from":           fromToken.Hex(),
		"to":             toToken.Hex(),
		"amount_in":      amount,
		"amount_out_min": units.FormatEther(amountOutMin),
		"slippage":       slippage,
	}).Info("minimum amount out")

	deadline := big.NewInt(v.now().Add(SwapDeadline).Unix())
	data, err := UniswapV2Router.Pack(swapMethod, amountIn, amountOutMin, path, v.chain.Address(), deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to pack swap data: %w", err)
	}
	data = AppendBuilderTag(data, opt)

	req, err := newRequest(ctx, v.chain, v.router, data)
	if err != nil {
		return nil, err
	}
	if err := v.gas.EstimateGas(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// CheckAllowance reports whether the router may already move amount of fromToken
func (v *RouterSwap) CheckAllowance(ctx context.Context, amount string, fromToken common.Address) (bool, error) {
	amountIn, err := units.ParseEther(amount)
	if err != nil {
		return false, err
	}
	return v.allowance.CheckAllowance(ctx, amountIn, fromToken, v.router)
}

// ApproveAllowance approves the router for exactly amount of fromToken
func (v *RouterSwap) ApproveAllowance(ctx context.Context, amount string, fromToken common.Address) (common.Hash, error) {
	amountIn, err := units.ParseEther(amount)
	if err != nil {
		return common.Hash{}, err
	}
	return v.allowance.ApproveAllowance(ctx, amountIn, fromToken, v.router)
}
