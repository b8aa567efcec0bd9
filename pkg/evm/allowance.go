package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	sdktypes "vp-trade/pkg/types"
)

// AllowanceLedger reads and mutates ERC20 balance and allowance state of
// the configured account. Nothing is cached; every call hits the chain.
type AllowanceLedger struct {
	account   *Account
	estimator *FeeEstimator
}

// NewAllowanceLedger creates an allowance ledger for an account
func NewAllowanceLedger(account *Account, estimator *FeeEstimator) *AllowanceLedger {
	return &AllowanceLedger{
		account:   account,
		estimator: estimator,
	}
}

// BalanceOf returns the token balance of owner
func (l *AllowanceLedger) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := l.callUint(ctx, token, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to get token balance: %w", err)
	}
	return out, nil
}

// Allowance returns how much spender may move on behalf of owner
func (l *AllowanceLedger) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := l.callUint(ctx, token, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to get allowance: %w", err)
	}
	return out, nil
}

// RequireBalance fails with ErrInsufficientBalance when the account holds
// less than amount of token
func (l *AllowanceLedger) RequireBalance(ctx context.Context, amount *big.Int, token common.Address) error {
	balance, err := l.BalanceOf(ctx, token, l.account.Address())
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s of token %s", sdktypes.ErrInsufficientBalance, balance, amount, token.Hex())
	}
	return nil
}

// CheckAllowance fails with ErrInsufficientBalance when the account holds
// less than amount, and otherwise reports whether spender's allowance
// already covers amount.
func (l *AllowanceLedger) CheckAllowance(ctx context.Context, amount *big.Int, token, spender common.Address) (bool, error) {
	owner := l.account.Address()

	if err := l.RequireBalance(ctx, amount, token); err != nil {
		return false, err
	}

	allowance, err := l.Allowance(ctx, token, owner, spender)
	if err != nil {
		return false, err
	}

	log.WithFields(log.Fields{
		"token":     token.Hex(),
		"spender":   spender.Hex(),
		"allowance": allowance.String(),
		"required":  amount.String(),
	}).Debug("allowance checked")

	return allowance.Cmp(amount) >= 0, nil
}

// ApproveAllowance approves exactly amount (never unlimited) to spender and
// waits for the approval to be mined. An allowance that already covers
// amount is left untouched and the zero hash is returned.
func (l *AllowanceLedger) ApproveAllowance(ctx context.Context, amount *big.Int, token, spender common.Address) (common.Hash, error) {
	current, err := l.Allowance(ctx, token, l.account.Address(), spender)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", sdktypes.ErrApprovalFailed, err)
	}
	if current.Cmp(amount) >= 0 {
		log.WithFields(log.Fields{
			"token":     token.Hex(),
			"spender":   spender.Hex(),
			"allowance": current.String(),
		}).Info("connected wallet already has enough allowance")
		return common.Hash{}, nil
	}

	hash, err := l.approve(ctx, amount, token, spender)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %w", sdktypes.ErrApprovalFailed, err)
	}

	log.WithFields(log.Fields{
		"tx_hash": hash.Hex(),
		"token":   token.Hex(),
		"spender": spender.Hex(),
		"amount":  amount.String(),
	}).Info("allowance has been approved")
	return hash, nil
}

func (l *AllowanceLedger) approve(ctx context.Context, amount *big.Int, token, spender common.Address) (common.Hash, error) {
	data, err := ERC20.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack approve data: %w", err)
	}

	nonce, err := l.account.Nonce(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	chainID, err := l.account.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	req := &TxRequest{
		From:    l.account.Address(),
		To:      token,
		Data:    data,
		Value:   new(big.Int),
		Nonce:   nonce,
		ChainID: chainID,
	}
	if err := l.estimator.EstimateGas(ctx, req); err != nil {
		return common.Hash{}, err
	}

	receipt, err := l.account.SendAndWait(ctx, req)
	if err != nil {
		return common.Hash{}, err
	}
	if !receipt.Success {
		return receipt.TxHash, fmt.Errorf("%w: approve transaction %s reverted", sdktypes.ErrTransactionFailed, receipt.TxHash.Hex())
	}
	return receipt.TxHash, nil
}

func (l *AllowanceLedger) callUint(ctx context.Context, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	data, err := ERC20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s data: %w", method, err)
	}
	result, err := l.account.Call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	out, err := ERC20.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	if len(out) == 0 {
		return new(big.Int), nil
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result type %T", method, out[0])
	}
	return value, nil
}
