package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned for a bad key, URL or address at construction
	ErrConfiguration = errors.New("configuration error")
	// ErrNoProvider is returned when the signing account has no RPC backend
	ErrNoProvider = errors.New("no provider found for the connected wallet")
	// ErrInsufficientBalance is a local precondition failure, nothing is submitted
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrApprovalFailed      = errors.New("failed to approve allowance")
	ErrBroadcastFailed     = errors.New("failed to broadcast transaction")
	ErrTransactionFailed   = errors.New("transaction failed")
	ErrQuote               = errors.New("quote error")
	ErrSimulation          = errors.New("simulation error")
	// ErrReceiptUnavailable means the transaction was broadcast but its outcome is unknown
	ErrReceiptUnavailable = errors.New("transaction receipt unavailable")
	ErrFeeDataUnavailable = errors.New("failed to estimate gas: no fee data available")
	ErrTokenNotFound      = errors.New("token not found")
)

// ReceiptUnavailableError reports a broadcast transaction whose receipt
// could not be obtained. The transaction may still be included later.
type ReceiptUnavailableError struct {
	TxHash string
	Err    error
}

func (e *ReceiptUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s for %s: %v", ErrReceiptUnavailable, e.TxHash, e.Err)
	}
	return fmt.Sprintf("%s for %s", ErrReceiptUnavailable, e.TxHash)
}

func (e *ReceiptUnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrReceiptUnavailable}
	}
	return []error{ErrReceiptUnavailable, e.Err}
}

// TransactionFailedError is a confirmed on-chain failure
type TransactionFailedError struct {
	Signature   string
	OnChainErr  interface{}
	ExplorerURL string
}

func (e *TransactionFailedError) Error() string {
	detail, err := json.Marshal(e.OnChainErr)
	if err != nil {
		detail = []byte(fmt.Sprintf("%v", e.OnChainErr))
	}
	return fmt.Sprintf("%s: %s\n%s", ErrTransactionFailed, detail, e.ExplorerURL)
}

func (e *TransactionFailedError) Unwrap() error {
	return ErrTransactionFailed
}
