package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"

	sdktypes "vp-trade/pkg/types"
)

const (
	DefaultReceiptTimeout      = 3 * time.Minute
	DefaultReceiptPollInterval = 2 * time.Second
)

// Receipt is the terminal state of a broadcast transaction
type Receipt struct {
	TxHash      common.Hash
	Success     bool
	BlockNumber *big.Int
	GasUsed     uint64
	Raw         *types.Receipt
}

// Account is the one configured signer, bound to one RPC backend.
// The private key never leaves the process.
type Account struct {
	backend      Backend
	privateKey   *ecdsa.PrivateKey
	address      common.Address
	timeout      time.Duration
	pollInterval time.Duration
}

// AccountOption tunes receipt waiting
type AccountOption func(*Account)

// WithReceiptTimeout bounds how long WaitReceipt polls
func WithReceiptTimeout(d time.Duration) AccountOption {
	return func(a *Account) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithReceiptPollInterval sets the receipt polling period
func WithReceiptPollInterval(d time.Duration) AccountOption {
	return func(a *Account) {
		if d > 0 {
			a.pollInterval = d
		}
	}
}

// NewAccount parses a hex private key and binds it to a backend.
// A nil backend is allowed; any network operation then fails with ErrNoProvider.
func NewAccount(hexKey string, backend Backend, opts ...AccountOption) (*Account, error) {
	privateKey, err := ParsePrivateKey(hexKey)
	if err != nil {
		return nil, err
	}

	a := &Account{
		backend:      backend,
		privateKey:   privateKey,
		address:      crypto.PubkeyToAddress(privateKey.PublicKey),
		timeout:      DefaultReceiptTimeout,
		pollInterval: DefaultReceiptPollInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ParsePrivateKey decodes a hex private key with or without 0x prefix
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if key == "" {
		return nil, fmt.Errorf("%w: private key is not configured", sdktypes.ErrConfiguration)
	}
	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key: %v", sdktypes.ErrConfiguration, err)
	}
	return privateKey, nil
}

// Address returns the account address
func (a *Account) Address() common.Address {
	return a.address
}

// Backend returns the attached backend, or ErrNoProvider
func (a *Account) Backend() (Backend, error) {
	if a.backend == nil {
		return nil, sdktypes.ErrNoProvider
	}
	return a.backend, nil
}

// Nonce returns the account's next transaction count
func (a *Account) Nonce(ctx context.Context) (uint64, error) {
	b, err := a.Backend()
	if err != nil {
		return 0, err
	}
	nonce, err := b.PendingNonceAt(ctx, a.address)
	if err != nil {
		return 0, fmt.Errorf("failed to get nonce: %w", err)
	}
	return nonce, nil
}

// ChainID returns the network chain id
func (a *Account) ChainID(ctx context.Context) (*big.Int, error) {
	b, err := a.Backend()
	if err != nil {
		return nil, err
	}
	chainID, err := b.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	return chainID, nil
}

// Call executes a read-only contract call against the latest block
func (a *Account) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	b, err := a.Backend()
	if err != nil {
		return nil, err
	}
	return b.CallContract(ctx, ethereum.CallMsg{From: a.address, To: &to, Data: data}, nil)
}

// Sign signs the request locally
func (a *Account) Sign(req *TxRequest) (*types.Transaction, error) {
	tx, err := req.Transaction()
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(req.ChainID), a.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signedTx, nil
}

// Broadcast submits a signed transaction
func (a *Account) Broadcast(ctx context.Context, tx *types.Transaction) error {
	b, err := a.Backend()
	if err != nil {
		return err
	}
	if err := b.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("%w: %w", sdktypes.ErrBroadcastFailed, err)
	}
	log.WithField("tx_hash", tx.Hash().Hex()).Debug("transaction broadcast")
	return nil
}

// WaitReceipt polls until the transaction is included or the timeout passes
func (a *Account) WaitReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	b, err := a.Backend()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		receipt, err := b.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return newReceipt(receipt), nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			log.WithError(err).WithField("tx_hash", txHash.Hex()).Debug("failed to get receipt, retrying")
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return nil, &sdktypes.ReceiptUnavailableError{TxHash: txHash.Hex(), Err: lastErr}
		case <-ticker.C:
		}
	}
}

// SendAndWait signs, broadcasts and waits for a request's receipt
func (a *Account) SendAndWait(ctx context.Context, req *TxRequest) (*Receipt, error) {
	signedTx, err := a.Sign(req)
	if err != nil {
		return nil, err
	}
	if err := a.Broadcast(ctx, signedTx); err != nil {
		return nil, err
	}
	return a.WaitReceipt(ctx, signedTx.Hash())
}

// SignMessage produces an EIP-191 personal-sign signature
func (a *Account) SignMessage(message []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), a.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// TransactionStatus returns the receipt of txHash, or nil while it is pending
func (a *Account) TransactionStatus(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	b, err := a.Backend()
	if err != nil {
		return nil, err
	}
	receipt, err := b.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return newReceipt(receipt), nil
}

func newReceipt(receipt *types.Receipt) *Receipt {
	return &Receipt{
		TxHash:      receipt.TxHash,
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
		Raw:         receipt,
	}
}
