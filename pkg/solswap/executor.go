// Package solswap executes token swaps on Solana through the Jupiter
// aggregator: token accounts are created on demand, the aggregator builds
// the transaction, and it is signed locally, submitted and confirmed.
package solswap

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"vp-trade/pkg/types"
)

const (
	DefaultRPCURL         = rpc.MainNetBeta_RPC
	DefaultLamportUnit    = 1_000_000_000
	DefaultMaxRetries     = 2
	DefaultConfirmTimeout = 90 * time.Second
	DefaultPollInterval   = 2 * time.Second
	ExplorerTxURL         = "https://solscan.io/tx/%s/"
)

// RPC is the subset of the Solana JSON-RPC client the executor uses
type RPC interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	SendRawTransactionWithOpts(ctx context.Context, txData []byte, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Aggregator quotes routes and builds swap transactions
type Aggregator interface {
	Quote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error)
	Swap(ctx context.Context, quote *QuoteResponse, userPublicKey string, opts *SwapOptions) (*SwapResponse, error)
}

// SwapConfig describes one swap. Amount is a human decimal multiplied by
// LamportUnit to reach the input mint's smallest unit.
type SwapConfig struct {
	InputMint                  string
	OutputMint                 string
	Amount                     string
	SlippageBps                uint16
	RestrictIntermediateTokens *bool
	MaxRetries                 *uint
	SkipPreflight              *bool
	LamportUnit                uint64
	Jupiter                    *SwapOptions
}

// Executor runs swaps for one keypair
type Executor struct {
	rpc          RPC
	aggregator   Aggregator
	privateKey   solana.PrivateKey
	publicKey    solana.PublicKey
	timeout      time.Duration
	pollInterval time.Duration
}

// Option tunes confirmation polling
type Option func(*Executor)

// WithConfirmTimeout bounds how long Confirm polls
func WithConfirmTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithPollInterval sets the signature status polling period
func WithPollInterval(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// NewExecutor creates an executor signing with privateKey
func NewExecutor(client RPC, aggregator Aggregator, privateKey solana.PrivateKey, opts ...Option) *Executor {
	e := &Executor{
		rpc:          client,
		aggregator:   aggregator,
		privateKey:   privateKey,
		publicKey:    privateKey.PublicKey(),
		timeout:      DefaultConfirmTimeout,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ParsePrivateKey accepts a base58 secret key or the hex of a 64-byte one
func ParsePrivateKey(s string) (solana.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: solana private key is not configured", types.ErrConfiguration)
	}
	if raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x")); err == nil && len(raw) == 64 {
		return solana.PrivateKey(raw), nil
	}
	key, err := solana.PrivateKeyFromBase58(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid solana private key: %v", types.ErrConfiguration, err)
	}
	if len(key) != 64 {
		return nil, fmt.Errorf("%w: solana private key must be 64 bytes, got %d", types.ErrConfiguration, len(key))
	}
	return key, nil
}

// PublicKey returns the executor's wallet address
func (e *Executor) PublicKey() solana.PublicKey {
	return e.publicKey
}

// EnsureTokenAccountExist returns owner's associated token account for
// mint, creating it first when it is absent. Safe to call repeatedly.
func (e *Executor) EnsureTokenAccountExist(ctx context.Context, mint, owner solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive associated token address: %w", err)
	}

	exists, err := e.accountExists(ctx, ata)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to check token account %s: %w", ata, err)
	}
	if exists {
		return ata, nil
	}

	recent, err := e.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			associatedtokenaccount.NewCreateInstruction(e.publicKey, owner, mint).Build(),
		},
		recent.Value.Blockhash,
		solana.TransactionPayer(e.publicKey),
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to create transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(e.publicKey) {
			return &e.privateKey
		}
		return nil
	}); err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := e.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: failed to create token account: %v", types.ErrBroadcastFailed, err)
	}
	log.WithFields(log.Fields{
		"mint":      mint.String(),
		"account":   ata.String(),
		"signature": sig.String(),
	}).Info("creating associated token account")

	if err := e.Confirm(ctx, sig, recent.Value.LastValidBlockHeight); err != nil {
		return solana.PublicKey{}, err
	}
	return ata, nil
}

// GetQuote converts the human amount and asks the aggregator for a route
func (e *Executor) GetQuote(ctx context.Context, cfg SwapConfig) (*QuoteResponse, error) {
	amount, err := toLamports(cfg.Amount, cfg.LamportUnit)
	if err != nil {
		return nil, err
	}
	return e.aggregator.Quote(ctx, QuoteRequest{
		InputMint:                  cfg.InputMint,
		OutputMint:                 cfg.OutputMint,
		Amount:                     amount,
		SlippageBps:                cfg.SlippageBps,
		RestrictIntermediateTokens: cfg.RestrictIntermediateTokens,
	})
}

// GetSerializedTransaction asks the aggregator to build the swap for this wallet
func (e *Executor) GetSerializedTransaction(ctx context.Context, quote *QuoteResponse, opts *SwapOptions) (*SwapResponse, error) {
	return e.aggregator.Swap(ctx, quote, e.publicKey.String(), opts)
}

// SignTransaction decodes the aggregator's base64 versioned transaction,
// signs it in this wallet's signer slot and returns the wire bytes.
func (e *Executor) SignTransaction(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode swap transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize swap transaction: %w", err)
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	index := -1
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(e.publicKey) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("wallet %s is not a signer of the swap transaction", e.publicKey)
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	sig, err := e.privateKey.Sign(message)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	// the aggregator leaves one empty slot per required signer
	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
	tx.Signatures[index] = sig

	out, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return out, nil
}

// Submit sends signed wire bytes with a bounded node-side retry count
func (e *Executor) Submit(ctx context.Context, signed []byte, maxRetries *uint, skipPreflight *bool) (solana.Signature, error) {
	retries := uint(DefaultMaxRetries)
	if maxRetries != nil {
		retries = *maxRetries
	}
	skip := true
	if skipPreflight != nil {
		skip = *skipPreflight
	}

	sig, err := e.rpc.SendRawTransactionWithOpts(ctx, signed, rpc.TransactionOpts{
		SkipPreflight:       skip,
		PreflightCommitment: rpc.CommitmentFinalized,
		MaxRetries:          &retries,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %w", types.ErrBroadcastFailed, err)
	}
	return sig, nil
}

// Confirm polls until sig is finalized. An on-chain error fails with a
// TransactionFailedError. If the block height passes lastValidBlockHeight
// or the timeout expires first, the outcome is reported as unavailable.
func (e *Executor) Confirm(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		status, err := e.signatureStatus(ctx, sig)
		switch {
		case err != nil:
			log.WithError(err).WithField("signature", sig.String()).Debug("failed to get signature status, retrying")
			lastErr = err
		case status != nil && status.Err != nil:
			return &types.TransactionFailedError{
				Signature:   sig.String(),
				OnChainErr:  status.Err,
				ExplorerURL: fmt.Sprintf(ExplorerTxURL, sig),
			}
		case status != nil && status.ConfirmationStatus == rpc.ConfirmationStatusFinalized:
			return nil
		}

		if lastValidBlockHeight > 0 {
			height, err := e.rpc.GetBlockHeight(ctx, rpc.CommitmentFinalized)
			if err == nil && height > lastValidBlockHeight {
				return &types.ReceiptUnavailableError{
					TxHash: sig.String(),
					Err:    fmt.Errorf("block height %d exceeded last valid height %d", height, lastValidBlockHeight),
				}
			}
		}

		select {
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return &types.ReceiptUnavailableError{TxHash: sig.String(), Err: lastErr}
		case <-ticker.C:
		}
	}
}

// Swap runs the whole pipeline and returns the finalized signature
func (e *Executor) Swap(ctx context.Context, cfg SwapConfig) (solana.Signature, error) {
	inputMint, err := solana.PublicKeyFromBase58(cfg.InputMint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid input mint: %w", err)
	}
	outputMint, err := solana.PublicKeyFromBase58(cfg.OutputMint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid output mint: %w", err)
	}

	if _, err := e.EnsureTokenAccountExist(ctx, inputMint, e.publicKey); err != nil {
		return solana.Signature{}, err
	}
	if _, err := e.EnsureTokenAccountExist(ctx, outputMint, e.publicKey); err != nil {
		return solana.Signature{}, err
	}

	quote, err := e.GetQuote(ctx, cfg)
	if err != nil {
		return solana.Signature{}, err
	}
	log.WithFields(log.Fields{
		"input_mint":  quote.InputMint,
		"output_mint": quote.OutputMint,
		"in_amount":   quote.InAmount,
		"out_amount":  quote.OutAmount,
	}).Info("jupiter quote")

	swap, err := e.GetSerializedTransaction(ctx, quote, cfg.Jupiter)
	if err != nil {
		return solana.Signature{}, err
	}

	signed, err := e.SignTransaction(swap.SwapTransaction)
	if err != nil {
		return solana.Signature{}, err
	}

	sig, err := e.Submit(ctx, signed, cfg.MaxRetries, cfg.SkipPreflight)
	if err != nil {
		return solana.Signature{}, err
	}
	log.WithField("signature", sig.String()).Info("swap transaction submitted")

	lastValid := swap.LastValidBlockHeight
	if lastValid == 0 {
		recent, err := e.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return sig, fmt.Errorf("failed to get latest blockhash: %w", err)
		}
		lastValid = recent.Value.LastValidBlockHeight
	}
	if err := e.Confirm(ctx, sig, lastValid); err != nil {
		return sig, err
	}
	log.WithField("signature", sig.String()).Info("swap finalized")
	return sig, nil
}

func (e *Executor) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	info, err := e.rpc.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return info != nil && info.Value != nil, nil
}

func (e *Executor) signatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	out, err := e.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Value) == 0 {
		return nil, nil
	}
	return out.Value[0], nil
}

func toLamports(amount string, unit uint64) (uint64, error) {
	if unit == 0 {
		unit = DefaultLamportUnit
	}
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("amount must be positive, got %s", amount)
	}
	v := d.Mul(decimal.NewFromBigInt(new(big.Int).SetUint64(unit), 0)).Truncate(0).BigInt()
	if !v.IsUint64() {
		return 0, fmt.Errorf("amount %s overflows the smallest unit", amount)
	}
	return v.Uint64(), nil
}
