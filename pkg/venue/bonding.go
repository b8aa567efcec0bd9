package venue

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"vp-trade/pkg/evm"
	"vp-trade/pkg/types"
	"vp-trade/pkg/units"
)

// BondingCurveConfig holds the fixed addresses of the prototype market
type BondingCurveConfig struct {
	BaseToken    common.Address // asset the curve is priced in
	Router       common.Address // quote source and allowance spender
	BondingCurve common.Address // execution target
	TaxRate      decimal.Decimal
}

// BondingCurve trades prototype tokens against the bonding curve.
// Request builders never touch allowances; callers check and approve first.
type BondingCurve struct {
	cfg       BondingCurveConfig
	chain     Chain
	gas       GasEstimable
	allowance AllowanceCapable
}

// NewBondingCurve creates the prototype venue
func NewBondingCurve(cfg BondingCurveConfig, chain Chain, gas GasEstimable, allowance AllowanceCapable) *BondingCurve {
	return &BondingCurve{
		cfg:       cfg,
		chain:     chain,
		gas:       gas,
		allowance: allowance,
	}
}

// Spender is the address that must be approved to move the spent token
func (v *BondingCurve) Spender() common.Address {
	return v.cfg.Router
}

// SpentToken returns the token the account pays with on side
func (v *BondingCurve) SpentToken(side types.Side, token common.Address) common.Address {
	if side == types.Buy {
		return v.cfg.BaseToken
	}
	return token
}

// Quote estimates the output of trading amount on side. BUY deducts the
// tax before asking the router; SELL asks for the zero-address asset,
// which the router reads as the base asset.
func (v *BondingCurve) Quote(ctx context.Context, side types.Side, amount string, token common.Address) (*big.Int, error) {
	asset := common.Address{}
	quoteAmount := amount
	if side == types.Buy {
		asset = v.cfg.BaseToken
		taxed, err := units.ApplyRate(amount, v.cfg.TaxRate)
		if err != nil {
			return nil, err
		}
		quoteAmount = taxed
	}

	amountIn, err := units.ParseEther(quoteAmount)
	if err != nil {
		return nil, err
	}

	data, err := FRouter.Pack("getAmountsOut", token, asset, amountIn)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getAmountsOut data: %w", err)
	}
	result, err := v.chain.Call(ctx, v.cfg.Router, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call getAmountsOut: %w", err)
	}
	out, err := FRouter.Unpack("getAmountsOut", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getAmountsOut result: %w", err)
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getAmountsOut result type %T", out[0])
	}
	return amountOut, nil
}

// BuildBuyRequest encodes buy(amountIn, token) against the bonding curve
func (v *BondingCurve) BuildBuyRequest(ctx context.Context, token common.Address, amount string, opt *types.Option) (*evm.TxRequest, error) {
	return v.build(ctx, types.Buy, token, amount, opt)
}

// BuildSellRequest encodes sell(amountIn, token) against the bonding curve
func (v *BondingCurve) BuildSellRequest(ctx context.Context, token common.Address, amount string, opt *types.Option) (*evm.TxRequest, error) {
	return v.build(ctx, types.Sell, token, amount, opt)
}

// CheckAllowance reports whether the router may already move amount of fromToken
func (v *BondingCurve) CheckAllowance(ctx context.Context, amount string, fromToken common.Address) (bool, error) {
	amountIn, err := units.ParseEther(amount)
	if err != nil {
		return false, err
	}
	return v.allowance.CheckAllowance(ctx, amountIn, fromToken, v.Spender())
}

// ApproveAllowance approves the router for exactly amount of fromToken
func (v *BondingCurve) ApproveAllowance(ctx context.Context, amount string, fromToken common.Address) (common.Hash, error) {
	amountIn, err := units.ParseEther(amount)
	if err != nil {
		return common.Hash{}, err
	}
	return v.allowance.ApproveAllowance(ctx, amountIn, fromToken, v.Spender())
}

func (v *BondingCurve) build(ctx context.Context, side types.Side, token common.Address, amount string, opt *types.Option) (*evm.TxRequest, error) {
	amountIn, err := units.ParseEther(amount)
	if err != nil {
		return nil, err
	}

	if err := v.allowance.RequireBalance(ctx, amountIn, v.SpentToken(side, token)); err != nil {
		return nil, err
	}

	// informational only, the curve enforces its own pricing
	quote, err := v.Quote(ctx, side, amount, token)
	if err != nil {
		log.WithError(err).WithField("token", token.Hex()).Warn("failed to get bonding curve quote")
	} else {
		log.WithFields(log.Fields{
			"side":      side,
			"token":     token.Hex(),
			"amount":    amount,
			"estimated": units.FormatEther(quote),
		}).Info("estimated bonding curve output")
	}

	method := "sell"
	if side == types.Buy {
		method = "buy"
	}
	data, err := Bonding.Pack(method, amountIn, token)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s data: %w", method, err)
	}
	data = AppendBuilderTag(data, opt)

	req, err := newRequest(ctx, v.chain, v.cfg.BondingCurve, data)
	if err != nil {
		return nil, err
	}
	if err := v.gas.EstimateGas(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}
