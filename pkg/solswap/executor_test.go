package solswap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"

	"vp-trade/pkg/types"
)

const (
	wsolMint = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qGd8w9Rt2X9WGxBaWY4WsJ6ENb"
)

type fakeRPC struct {
	mu sync.Mutex

	accounts map[solana.PublicKey]bool
	// statusErr is reported as the on-chain error of every signature
	statusErr   interface{}
	pending     bool
	blockHeight uint64
	sendErr     error

	created []*solana.Transaction
	raw     [][]byte
	rawOpts []rpc.TransactionOpts
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{accounts: make(map[solana.PublicKey]bool)}
}

func (f *fakeRPC) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.accounts[account] {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{Lamports: 2039280}}, nil
}

func (f *fakeRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            solana.Hash{1, 2, 3},
			LastValidBlockHeight: 1000,
		},
	}, nil
}

func (f *fakeRPC) GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockHeight, nil
}

func (f *fakeRPC) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.created = append(f.created, tx)
	// the created account is the second account of the create instruction
	ix := tx.Message.Instructions[0]
	f.accounts[tx.Message.AccountKeys[ix.Accounts[1]]] = true
	return tx.Signatures[0], nil
}

func (f *fakeRPC) SendRawTransactionWithOpts(ctx context.Context, txData []byte, opts rpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(txData))
	if err != nil {
		return solana.Signature{}, err
	}
	f.raw = append(f.raw, txData)
	f.rawOpts = append(f.rawOpts, opts)
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending {
		return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
	}
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{{
			Slot:               10,
			Err:                f.statusErr,
			ConfirmationStatus: rpc.ConfirmationStatusFinalized,
		}},
	}, nil
}

// unsignedSwapTx mimics the aggregator: one empty signature slot for payer
func unsignedSwapTx(t *testing.T, payer solana.PublicKey) string {
	t.Helper()
	return unsignedTxVersion(t, payer, solana.MessageVersionV0)
}

func unsignedTxVersion(t *testing.T, payer solana.PublicKey, version solana.MessageVersion) string {
	t.Helper()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(1, payer, solana.MustPublicKeyFromBase58(usdcMint)).Build(),
		},
		solana.Hash{9},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)
	tx.Message.SetVersion(version)
	tx.Signatures = make([]solana.Signature, 1)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

type jupiterStub struct {
	quoteQuery  chan map[string]string
	swapBody    chan map[string]interface{}
	apiKey      chan string
	quoteError  string
	swapError   string
	simulation  bool
	transaction string
}

func (s *jupiterStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		s.quoteQuery <- q
		s.apiKey <- r.Header.Get("x-api-key")
		if s.quoteError != "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": s.quoteError})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"inputMint":  q["inputMint"],
			"inAmount":   q["amount"],
			"outputMint": q["outputMint"],
			"outAmount":  "123",
			"routePlan":  []interface{}{},
		})
	})
	mux.HandleFunc("/swap", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		s.swapBody <- body
		if s.swapError != "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": s.swapError})
			return
		}
		if s.simulation {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"simulationError": map[string]string{"errorCode": "INSUFFICIENT_FUNDS", "error": "insufficient lamports"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"swapTransaction":      s.transaction,
			"lastValidBlockHeight": 500,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newStub() *jupiterStub {
	return &jupiterStub{
		quoteQuery: make(chan map[string]string, 4),
		swapBody:   make(chan map[string]interface{}, 4),
		apiKey:     make(chan string, 4),
	}
}

func newTestExecutor(t *testing.T, client RPC, stubURL string) *Executor {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return NewExecutor(client, NewJupiterClient(stubURL, "jup-key"), key,
		WithPollInterval(time.Millisecond), WithConfirmTimeout(200*time.Millisecond))
}

func TestEnsureTokenAccountExistIsIdempotent(t *testing.T) {
	fake := newFakeRPC()
	e := newTestExecutor(t, fake, "http://unused")
	mint := solana.MustPublicKeyFromBase58(usdcMint)
	ctx := context.Background()

	first, err := e.EnsureTokenAccountExist(ctx, mint, e.PublicKey())
	require.NoError(t, err)
	require.Len(t, fake.created, 1)

	want, _, err := solana.FindAssociatedTokenAddress(e.PublicKey(), mint)
	require.NoError(t, err)
	require.Equal(t, want, first)

	second, err := e.EnsureTokenAccountExist(ctx, mint, e.PublicKey())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, fake.created, 1)
}

func TestEnsureTokenAccountExistSkipsExisting(t *testing.T) {
	fake := newFakeRPC()
	e := newTestExecutor(t, fake, "http://unused")
	mint := solana.MustPublicKeyFromBase58(usdcMint)
	ata, _, err := solana.FindAssociatedTokenAddress(e.PublicKey(), mint)
	require.NoError(t, err)
	fake.accounts[ata] = true

	got, err := e.EnsureTokenAccountExist(context.Background(), mint, e.PublicKey())
	require.NoError(t, err)
	require.Equal(t, ata, got)
	require.Empty(t, fake.created)
}

func TestSignTransactionFillsSignerSlot(t *testing.T) {
	tests := []struct {
		name    string
		version solana.MessageVersion
	}{
		{name: "v0", version: solana.MessageVersionV0},
		{name: "legacy", version: solana.MessageVersionLegacy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExecutor(t, newFakeRPC(), "http://unused")

			signed, err := e.SignTransaction(unsignedTxVersion(t, e.PublicKey(), tt.version))
			require.NoError(t, err)

			tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(signed))
			require.NoError(t, err)
			require.Equal(t, tt.version, tx.Message.GetVersion())
			require.Len(t, tx.Signatures, 1)

			message, err := tx.Message.MarshalBinary()
			require.NoError(t, err)
			require.True(t, tx.Signatures[0].Verify(e.PublicKey(), message))
		})
	}
}

func TestSignTransactionRejectsForeignPayer(t *testing.T) {
	e := newTestExecutor(t, newFakeRPC(), "http://unused")
	other, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	_, err = e.SignTransaction(unsignedSwapTx(t, other.PublicKey()))
	require.Error(t, err)
}

func TestSwap(t *testing.T) {
	fake := newFakeRPC()
	stub := newStub()
	srv := stub.server(t)
	e := newTestExecutor(t, fake, srv.URL)
	stub.transaction = unsignedSwapTx(t, e.PublicKey())

	sig, err := e.Swap(context.Background(), SwapConfig{
		InputMint:   wsolMint,
		OutputMint:  usdcMint,
		Amount:      "0.5",
		SlippageBps: 50,
	})
	require.NoError(t, err)
	require.NotEqual(t, solana.Signature{}, sig)

	// both token accounts created once
	require.Len(t, fake.created, 2)

	q := <-stub.quoteQuery
	require.Equal(t, "500000000", q["amount"])
	require.Equal(t, "50", q["slippageBps"])
	require.Equal(t, "true", q["restrictIntermediateTokens"])
	require.Equal(t, "jup-key", <-stub.apiKey)

	body := <-stub.swapBody
	require.Equal(t, e.PublicKey().String(), body["userPublicKey"])
	require.Equal(t, true, body["dynamicComputeUnitLimit"])
	require.Equal(t, true, body["dynamicSlippage"])
	fee := body["prioritizationFeeLamports"].(map[string]interface{})["priorityLevelWithMaxLamports"].(map[string]interface{})
	require.Equal(t, float64(1_000_000), fee["maxLamports"])
	require.Equal(t, "veryHigh", fee["priorityLevel"])
	require.Equal(t, "123", body["quoteResponse"].(map[string]interface{})["outAmount"])

	require.Len(t, fake.rawOpts, 1)
	require.True(t, fake.rawOpts[0].SkipPreflight)
	require.Equal(t, uint(2), *fake.rawOpts[0].MaxRetries)
}

func TestSwapQuoteError(t *testing.T) {
	fake := newFakeRPC()
	stub := newStub()
	stub.quoteError = "Could not find any route"
	e := newTestExecutor(t, fake, stub.server(t).URL)

	_, err := e.Swap(context.Background(), SwapConfig{InputMint: wsolMint, OutputMint: usdcMint, Amount: "1", SlippageBps: 50})
	require.ErrorIs(t, err, types.ErrQuote)
	require.Contains(t, err.Error(), "Could not find any route")
	require.Empty(t, fake.raw)
}

func TestSwapSimulationError(t *testing.T) {
	fake := newFakeRPC()
	stub := newStub()
	stub.simulation = true
	e := newTestExecutor(t, fake, stub.server(t).URL)

	_, err := e.Swap(context.Background(), SwapConfig{InputMint: wsolMint, OutputMint: usdcMint, Amount: "1", SlippageBps: 50})
	require.ErrorIs(t, err, types.ErrSimulation)
	require.Empty(t, fake.raw)
}

func TestSwapErrorReport(t *testing.T) {
	fake := newFakeRPC()
	stub := newStub()
	stub.swapError = "Invalid quoteResponse"
	e := newTestExecutor(t, fake, stub.server(t).URL)

	_, err := e.Swap(context.Background(), SwapConfig{InputMint: wsolMint, OutputMint: usdcMint, Amount: "1", SlippageBps: 50})
	require.ErrorIs(t, err, types.ErrSimulation)
	require.Contains(t, err.Error(), "Invalid quoteResponse")
	require.Empty(t, fake.raw)
}

func TestSubmitKeepsNodeError(t *testing.T) {
	fake := newFakeRPC()
	fake.sendErr = context.DeadlineExceeded
	e := newTestExecutor(t, fake, "http://unused")

	signed, err := e.SignTransaction(unsignedSwapTx(t, e.PublicKey()))
	require.NoError(t, err)

	_, err = e.Submit(context.Background(), signed, nil, nil)
	require.ErrorIs(t, err, types.ErrBroadcastFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConfirmReportsOnChainFailure(t *testing.T) {
	fake := newFakeRPC()
	fake.statusErr = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
	e := newTestExecutor(t, fake, "http://unused")
	sig := solana.Signature{7}

	err := e.Confirm(context.Background(), sig, 0)
	require.ErrorIs(t, err, types.ErrTransactionFailed)

	var failed *types.TransactionFailedError
	require.True(t, errors.As(err, &failed))
	require.Equal(t, "https://solscan.io/tx/"+sig.String()+"/", failed.ExplorerURL)
	require.Contains(t, err.Error(), "InstructionError")
}

func TestConfirmExpiredBlockhash(t *testing.T) {
	fake := newFakeRPC()
	fake.pending = true
	fake.blockHeight = 2000
	e := newTestExecutor(t, fake, "http://unused")

	err := e.Confirm(context.Background(), solana.Signature{1}, 1000)
	require.ErrorIs(t, err, types.ErrReceiptUnavailable)
}

func TestConfirmTimeout(t *testing.T) {
	fake := newFakeRPC()
	fake.pending = true
	e := newTestExecutor(t, fake, "http://unused")

	err := e.Confirm(context.Background(), solana.Signature{1}, 0)
	require.ErrorIs(t, err, types.ErrReceiptUnavailable)
}

func TestParsePrivateKey(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	fromBase58, err := ParsePrivateKey(key.String())
	require.NoError(t, err)
	require.Equal(t, key.PublicKey(), fromBase58.PublicKey())

	_, err = ParsePrivateKey("")
	require.ErrorIs(t, err, types.ErrConfiguration)
	_, err = ParsePrivateKey("not-a-key")
	require.ErrorIs(t, err, types.ErrConfiguration)
}

func TestToLamports(t *testing.T) {
	tests := []struct {
		amount string
		unit   uint64
		want   uint64
		err    bool
	}{
		{amount: "1", want: 1_000_000_000},
		{amount: "0.1", want: 100_000_000},
		{amount: "2.5", unit: 1_000_000, want: 2_500_000},
		{amount: "0.0000000019", want: 1},
		{amount: "0", err: true},
		{amount: "-1", err: true},
		{amount: "abc", err: true},
	}
	for _, tt := range tests {
		got, err := toLamports(tt.amount, tt.unit)
		if tt.err {
			require.Error(t, err, tt.amount)
			continue
		}
		require.NoError(t, err, tt.amount)
		require.Equal(t, tt.want, got, tt.amount)
	}
}
