package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/params"
	log "github.com/sirupsen/logrus"

	sdktypes "vp-trade/pkg/types"
)

// GasBufferPercent is the safety margin added to gas limit and fee fields
const GasBufferPercent = 15

// defaultPriorityFee is used when the node cannot suggest a tip
var defaultPriorityFee = big.NewInt(params.GWei)

// FeeData is the network's current fee view. GasPrice is set on legacy
// networks; MaxFeePerGas/MaxPriorityFeePerGas when a base fee exists.
type FeeData struct {
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// FeeEstimator fills gas limit and fee fields of a request
type FeeEstimator struct {
	backend Backend
}

// NewFeeEstimator creates a fee estimator over a backend
func NewFeeEstimator(backend Backend) *FeeEstimator {
	return &FeeEstimator{backend: backend}
}

// EstimateGas estimates the call, adds the buffer to the gas limit and
// populates either the dynamic or the legacy fee fields, each buffered.
func (f *FeeEstimator) EstimateGas(ctx context.Context, req *TxRequest) error {
	if f.backend == nil {
		return sdktypes.ErrNoProvider
	}

	gas, err := f.backend.EstimateGas(ctx, req.CallMsg())
	if err != nil {
		return fmt.Errorf("failed to estimate gas: %w", err)
	}

	fee, err := f.FeeData(ctx)
	if err != nil {
		return err
	}

	req.GasLimit = BufferGasLimit(gas)
	switch {
	case fee.MaxFeePerGas != nil && fee.MaxPriorityFeePerGas != nil:
		req.MaxFeePerGas = bufferFee(fee.MaxFeePerGas)
		req.MaxPriorityFeePerGas = bufferFee(fee.MaxPriorityFeePerGas)
		req.GasPrice = nil
	case fee.GasPrice != nil:
		req.GasPrice = bufferFee(fee.GasPrice)
		req.MaxFeePerGas = nil
		req.MaxPriorityFeePerGas = nil
	default:
		return sdktypes.ErrFeeDataUnavailable
	}

	log.WithFields(log.Fields{
		"estimated_gas": gas,
		"gas_limit":     req.GasLimit,
		"dynamic_fee":   req.IsDynamicFee(),
	}).Debug("gas estimated")
	return nil
}

// FeeData queries the network fee market. A base fee on the latest block
// means the priority-fee market is available.
func (f *FeeEstimator) FeeData(ctx context.Context) (*FeeData, error) {
	if f.backend == nil {
		return nil, sdktypes.ErrNoProvider
	}

	fee := &FeeData{}
	if gasPrice, err := f.backend.SuggestGasPrice(ctx); err == nil {
		fee.GasPrice = gasPrice
	} else {
		log.WithError(err).Debug("failed to get gas price")
	}

	header, err := f.backend.HeaderByNumber(ctx, nil)
	if err == nil && header != nil && header.BaseFee != nil {
		tip, err := f.backend.SuggestGasTipCap(ctx)
		if err != nil || tip == nil {
			tip = new(big.Int).Set(defaultPriorityFee)
		}
		fee.MaxPriorityFeePerGas = tip
		fee.MaxFeePerGas = new(big.Int).Add(new(big.Int).Mul(header.BaseFee, big.NewInt(2)), tip)
	}

	if fee.GasPrice == nil && fee.MaxFeePerGas == nil {
		return nil, sdktypes.ErrFeeDataUnavailable
	}
	return fee, nil
}

// BufferGasLimit returns ceil(gas * 1.15)
func BufferGasLimit(gas uint64) uint64 {
	return (gas*(100+GasBufferPercent) + 99) / 100
}

func bufferFee(v *big.Int) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(100+GasBufferPercent))
	return out.Div(out, big.NewInt(100))
}
