package evmtest

import (
	"bytes"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"vp-trade/pkg/evm"
)

// Token is a fake ERC20 wired into a Backend. Approvals broadcast to the
// backend update its allowance table.
type Token struct {
	Address common.Address

	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[[2]common.Address]*big.Int
}

// NewToken registers balanceOf/allowance handlers for addr on b
func NewToken(b *Backend, addr common.Address) *Token {
	t := &Token{
		Address:    addr,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[[2]common.Address]*big.Int),
	}

	b.Handle(addr, evm.ERC20.Methods["balanceOf"], func(args []interface{}) ([]interface{}, error) {
		return []interface{}{t.BalanceOf(args[0].(common.Address))}, nil
	})
	b.Handle(addr, evm.ERC20.Methods["allowance"], func(args []interface{}) ([]interface{}, error) {
		return []interface{}{t.Allowance(args[0].(common.Address), args[1].(common.Address))}, nil
	})

	prev := b.OnSend
	b.OnSend = func(tx *types.Transaction) {
		if prev != nil {
			prev(tx)
		}
		t.applyApprove(tx)
	}
	return t
}

// SetBalance sets owner's balance
func (t *Token) SetBalance(owner common.Address, v *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[owner] = new(big.Int).Set(v)
}

// SetAllowance sets spender's allowance over owner's tokens
func (t *Token) SetAllowance(owner, spender common.Address, v *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[[2]common.Address{owner, spender}] = new(big.Int).Set(v)
}

// BalanceOf returns owner's balance
func (t *Token) BalanceOf(owner common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.balances[owner]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Allowance returns spender's allowance over owner's tokens
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.allowances[[2]common.Address{owner, spender}]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (t *Token) applyApprove(tx *types.Transaction) {
	if tx.To() == nil || *tx.To() != t.Address {
		return
	}
	method := evm.ERC20.Methods["approve"]
	if !bytes.HasPrefix(tx.Data(), method.ID) {
		return
	}
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		return
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return
	}
	t.SetAllowance(from, args[0].(common.Address), args[1].(*big.Int))
}
