// Package trade turns a trade intent into a broadcast, confirmed transaction.
package trade

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"vp-trade/pkg/evm"
	sdktypes "vp-trade/pkg/types"
)

// Signer is the account side the orchestrator needs
type Signer interface {
	Backend() (evm.Backend, error)
	Sign(req *evm.TxRequest) (*types.Transaction, error)
	Broadcast(ctx context.Context, tx *types.Transaction) error
	WaitReceipt(ctx context.Context, txHash common.Hash) (*evm.Receipt, error)
}

// AllowanceVenue is the approval surface shared by both venues
type AllowanceVenue interface {
	CheckAllowance(ctx context.Context, amount string, fromToken common.Address) (bool, error)
	ApproveAllowance(ctx context.Context, amount string, fromToken common.Address) (common.Hash, error)
}

// PrototypeVenue builds bonding curve trades
type PrototypeVenue interface {
	AllowanceVenue
	BuildBuyRequest(ctx context.Context, token common.Address, amount string, opt *sdktypes.Option) (*evm.TxRequest, error)
	BuildSellRequest(ctx context.Context, token common.Address, amount string, opt *sdktypes.Option) (*evm.TxRequest, error)
}

// SentientVenue builds router swaps
type SentientVenue interface {
	AllowanceVenue
	BuildSwapRequest(ctx context.Context, fromToken, toToken common.Address, amount string, opt *sdktypes.Option) (*evm.TxRequest, error)
}

// Orchestrator resolves an intent to its venue, then signs, broadcasts and
// waits for the receipt. Calls against one account must be serialized by
// the caller since each build reads the pending nonce.
type Orchestrator struct {
	signer    Signer
	baseToken common.Address
	prototype PrototypeVenue
	sentient  SentientVenue
}

// NewOrchestrator creates an orchestrator over both venues
func NewOrchestrator(signer Signer, baseToken common.Address, prototype PrototypeVenue, sentient SentientVenue) *Orchestrator {
	return &Orchestrator{
		signer:    signer,
		baseToken: baseToken,
		prototype: prototype,
		sentient:  sentient,
	}
}

// SpentToken returns the token the intent pays with. BUY spends the base
// asset, SELL spends the traded token.
func (o *Orchestrator) SpentToken(intent *sdktypes.TradeIntent) common.Address {
	if intent.Side == sdktypes.Buy {
		return o.baseToken
	}
	return intent.CounterToken
}

// CheckAllowance reports whether the intent's venue may already spend its amount
func (o *Orchestrator) CheckAllowance(ctx context.Context, intent *sdktypes.TradeIntent) (bool, error) {
	v, err := o.allowanceVenue(intent.Venue)
	if err != nil {
		return false, err
	}
	return v.CheckAllowance(ctx, intent.Amount, o.SpentToken(intent))
}

// ApproveAllowance approves the intent's venue for exactly its amount
func (o *Orchestrator) ApproveAllowance(ctx context.Context, intent *sdktypes.TradeIntent) (common.Hash, error) {
	v, err := o.allowanceVenue(intent.Venue)
	if err != nil {
		return common.Hash{}, err
	}
	return v.ApproveAllowance(ctx, intent.Amount, o.SpentToken(intent))
}

// EnsureAllowance approves the venue only when the current allowance is short.
// It returns the zero hash when no approval was needed.
func (o *Orchestrator) EnsureAllowance(ctx context.Context, intent *sdktypes.TradeIntent) (common.Hash, error) {
	ok, err := o.CheckAllowance(ctx, intent)
	if err != nil {
		return common.Hash{}, err
	}
	if ok {
		return common.Hash{}, nil
	}
	return o.ApproveAllowance(ctx, intent)
}

// Build resolves the intent to a venue and returns its unsigned request
func (o *Orchestrator) Build(ctx context.Context, intent *sdktypes.TradeIntent) (*evm.TxRequest, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	opt := &intent.Option

	switch intent.Venue {
	case sdktypes.Prototype:
		if intent.Side == sdktypes.Buy {
			return o.prototype.BuildBuyRequest(ctx, intent.CounterToken, intent.Amount, opt)
		}
		return o.prototype.BuildSellRequest(ctx, intent.CounterToken, intent.Amount, opt)
	case sdktypes.Sentient:
		if intent.Side == sdktypes.Buy {
			return o.sentient.BuildSwapRequest(ctx, o.baseToken, intent.CounterToken, intent.Amount, opt)
		}
		return o.sentient.BuildSwapRequest(ctx, intent.CounterToken, o.baseToken, intent.Amount, opt)
	default:
		return nil, fmt.Errorf("unsupported venue %q", intent.Venue)
	}
}

// Execute builds, signs, broadcasts and confirms the intent. Allowance is
// not touched; call EnsureAllowance first.
func (o *Orchestrator) Execute(ctx context.Context, intent *sdktypes.TradeIntent) (*evm.Receipt, error) {
	if _, err := o.signer.Backend(); err != nil {
		return nil, err
	}

	logger := log.WithFields(log.Fields{
		"op_id": uuid.New().String(),
		"side":  intent.Side,
		"venue": intent.Venue,
		"token": intent.CounterToken.Hex(),
	})

	req, err := o.Build(ctx, intent)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", intent.Venue, err)
	}
	logger.WithFields(log.Fields{
		"to":        req.To.Hex(),
		"nonce":     req.Nonce,
		"gas_limit": req.GasLimit,
	}).Debug("request built")

	signedTx, err := o.signer.Sign(req)
	if err != nil {
		return nil, err
	}
	if err := o.signer.Broadcast(ctx, signedTx); err != nil {
		return nil, err
	}
	logger.WithField("tx_hash", signedTx.Hash().Hex()).Info("transaction broadcast")

	receipt, err := o.signer.WaitReceipt(ctx, signedTx.Hash())
	if err != nil {
		return nil, err
	}
	if !receipt.Success {
		logger.WithField("tx_hash", receipt.TxHash.Hex()).Error("transaction reverted")
		return receipt, fmt.Errorf("%w: %s reverted", sdktypes.ErrTransactionFailed, receipt.TxHash.Hex())
	}

	logger.WithFields(log.Fields{
		"tx_hash":  receipt.TxHash.Hex(),
		"block":    receipt.BlockNumber,
		"gas_used": receipt.GasUsed,
	}).Info("transaction confirmed")
	return receipt, nil
}

// Trade ensures the allowance then executes the intent
func (o *Orchestrator) Trade(ctx context.Context, intent *sdktypes.TradeIntent) (*evm.Receipt, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if _, err := o.signer.Backend(); err != nil {
		return nil, err
	}
	if _, err := o.EnsureAllowance(ctx, intent); err != nil {
		return nil, err
	}
	return o.Execute(ctx, intent)
}

func (o *Orchestrator) allowanceVenue(v sdktypes.Venue) (AllowanceVenue, error) {
	switch v {
	case sdktypes.Prototype:
		return o.prototype, nil
	case sdktypes.Sentient:
		return o.sentient, nil
	default:
		return nil, fmt.Errorf("unsupported venue %q", v)
	}
}
