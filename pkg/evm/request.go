package evm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxRequest is an unsigned transaction. Fee fields are either GasPrice
// (legacy) or MaxFeePerGas + MaxPriorityFeePerGas (EIP-1559), never both.
type TxRequest struct {
	From    common.Address
	To      common.Address
	Data    []byte
	Value   *big.Int
	Nonce   uint64
	ChainID *big.Int

	GasLimit             uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// IsDynamicFee reports whether the request uses the priority-fee market
func (r *TxRequest) IsDynamicFee() bool {
	return r.MaxFeePerGas != nil && r.MaxPriorityFeePerGas != nil
}

// CallMsg converts the request into a message for eth_call / eth_estimateGas
func (r *TxRequest) CallMsg() ethereum.CallMsg {
	to := r.To
	return ethereum.CallMsg{
		From:  r.From,
		To:    &to,
		Value: r.value(),
		Data:  r.Data,
	}
}

// Transaction builds the go-ethereum transaction ready for signing
func (r *TxRequest) Transaction() (*types.Transaction, error) {
	if r.GasLimit == 0 {
		return nil, fmt.Errorf("gas limit not set")
	}
	if r.ChainID == nil {
		return nil, fmt.Errorf("chain id not set")
	}

	to := r.To
	if r.IsDynamicFee() {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   r.ChainID,
			Nonce:     r.Nonce,
			GasTipCap: r.MaxPriorityFeePerGas,
			GasFeeCap: r.MaxFeePerGas,
			Gas:       r.GasLimit,
			To:        &to,
			Value:     r.value(),
			Data:      r.Data,
		}), nil
	}
	if r.GasPrice == nil {
		return nil, fmt.Errorf("fee fields not set")
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    r.Nonce,
		GasPrice: r.GasPrice,
		Gas:      r.GasLimit,
		To:       &to,
		Value:    r.value(),
		Data:     r.Data,
	}), nil
}

func (r *TxRequest) value() *big.Int {
	if r.Value == nil {
		return new(big.Int)
	}
	return r.Value
}
