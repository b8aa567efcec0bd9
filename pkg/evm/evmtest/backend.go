// Package evmtest provides an in-memory evm.Backend for tests.
package evmtest

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TestKey is a throwaway private key used across tests
const TestKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// CallHandler answers a decoded contract call with output values
type CallHandler func(args []interface{}) ([]interface{}, error)

type callKey struct {
	to       common.Address
	selector [4]byte
}

type callRoute struct {
	method  abi.Method
	handler CallHandler
}

// Backend is a scriptable fake of the JSON-RPC surface
type Backend struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	Nonce        uint64
	GasEstimate  uint64
	GasPrice     *big.Int // nil makes SuggestGasPrice fail
	BaseFee      *big.Int // nil means a legacy network
	TipCap       *big.Int

	EstimateErr error
	SendErr     error
	// NoReceipt keeps TransactionReceipt answering NotFound forever
	NoReceipt bool
	// Revert makes every receipt report failure
	Revert bool
	// OnSend runs for every accepted transaction
	OnSend func(tx *types.Transaction)

	Sent      []*types.Transaction
	Estimated []ethereum.CallMsg
	Calls     []ethereum.CallMsg

	routes map[callKey]callRoute
}

// NewBackend returns a legacy-fee backend on chain 8453
func NewBackend() *Backend {
	return &Backend{
		ChainIDValue: big.NewInt(8453),
		GasEstimate:  21000,
		GasPrice:     big.NewInt(1_000_000_000),
		TipCap:       big.NewInt(100_000_000),
		routes:       make(map[callKey]callRoute),
	}
}

// Handle routes calls of method on contract to to handler
func (b *Backend) Handle(to common.Address, method abi.Method, handler CallHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sel [4]byte
	copy(sel[:], method.ID)
	b.routes[callKey{to: to, selector: sel}] = callRoute{method: method, handler: handler}
}

// SentCount returns how many transactions were broadcast
func (b *Backend) SentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Sent)
}

// SentWithSelector returns broadcast transactions whose data starts with selector
func (b *Backend) SentWithSelector(selector []byte) []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*types.Transaction
	for _, tx := range b.Sent {
		if bytes.HasPrefix(tx.Data(), selector) {
			out = append(out, tx)
		}
	}
	return out
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.ChainIDValue), nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Nonce, nil
}

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	b.Calls = append(b.Calls, msg)
	if msg.To == nil || len(msg.Data) < 4 {
		b.mu.Unlock()
		return nil, fmt.Errorf("invalid call")
	}
	var sel [4]byte
	copy(sel[:], msg.Data[:4])
	route, ok := b.routes[callKey{to: *msg.To, selector: sel}]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("execution reverted: no handler for %x on %s", sel, msg.To.Hex())
	}

	args, err := route.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	out, err := route.handler(args)
	if err != nil {
		return nil, err
	}
	return route.method.Outputs.Pack(out...)
}

func (b *Backend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Estimated = append(b.Estimated, msg)
	if b.EstimateErr != nil {
		return 0, b.EstimateErr
	}
	return b.GasEstimate, nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if b.GasPrice == nil {
		return nil, fmt.Errorf("gas price unavailable")
	}
	return new(big.Int).Set(b.GasPrice), nil
}

func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if b.TipCap == nil {
		return nil, fmt.Errorf("tip cap unavailable")
	}
	return new(big.Int).Set(b.TipCap), nil
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	h := &types.Header{Number: big.NewInt(1)}
	if b.BaseFee != nil {
		h.BaseFee = new(big.Int).Set(b.BaseFee)
	}
	return h, nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	if b.SendErr != nil {
		b.mu.Unlock()
		return b.SendErr
	}
	b.Sent = append(b.Sent, tx)
	b.Nonce++
	onSend := b.OnSend
	b.mu.Unlock()

	if onSend != nil {
		onSend(tx)
	}
	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.NoReceipt {
		return nil, ethereum.NotFound
	}
	for _, tx := range b.Sent {
		if tx.Hash() == txHash {
			status := types.ReceiptStatusSuccessful
			if b.Revert {
				status = types.ReceiptStatusFailed
			}
			return &types.Receipt{
				TxHash:      txHash,
				Status:      status,
				BlockNumber: big.NewInt(1),
				GasUsed:     tx.Gas(),
			}, nil
		}
	}
	return nil, ethereum.NotFound
}
