package sdk

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"vp-trade/config"
	"vp-trade/pkg/client"
	"vp-trade/pkg/evm"
	"vp-trade/pkg/evm/evmtest"
	"vp-trade/pkg/types"
	"vp-trade/pkg/units"
	"vp-trade/pkg/venue"
)

var token = common.HexToAddress("0x3333333333333333333333333333333333333333")

func testConfig() *config.Config {
	return &config.Config{
		PrivateKey:          evmtest.TestKey,
		RPCURL:              "https://rpc.example.org",
		APIURL:              "https://api.example.org",
		APIURLV2:            "https://api2.example.org",
		ReceiptTimeout:      time.Second,
		ReceiptPollInterval: time.Millisecond,
		LogLevel:            "info",
		DefaultSlippage:     5,
		Contracts: config.ContractsConfig{
			BaseToken:       common.HexToAddress(config.DefaultBaseToken),
			FRouter:         common.HexToAddress(config.DefaultFRouter),
			BondingCurve:    common.HexToAddress(config.DefaultBondingCurve),
			UniswapV2Router: common.HexToAddress(config.DefaultUniswapV2Router),
			TaxRate:         decimal.RequireFromString(config.DefaultTaxRate),
		},
	}
}

func ether(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := units.ParseEther(s)
	require.NoError(t, err)
	return v
}

func TestNewRejectsBadKey(t *testing.T) {
	cfg := testConfig()
	cfg.PrivateKey = "zz"
	_, err := New(cfg, evmtest.NewBackend())
	require.ErrorIs(t, err, types.ErrConfiguration)
}

func TestNewRejectsBadSolanaKey(t *testing.T) {
	cfg := testConfig()
	cfg.Solana.PrivateKey = "bad key"
	_, err := New(cfg, evmtest.NewBackend())
	require.ErrorIs(t, err, types.ErrConfiguration)
}

func TestSolanaSwapWithoutKey(t *testing.T) {
	c, err := New(testConfig(), evmtest.NewBackend())
	require.NoError(t, err)

	_, err = c.SolanaAddress()
	require.ErrorIs(t, err, types.ErrConfiguration)
}

func TestAddressAndSignMessage(t *testing.T) {
	c, err := New(testConfig(), nil)
	require.NoError(t, err)

	key, err := evm.ParsePrivateKey(evmtest.TestKey)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), c.Address())

	sigHex, err := c.SignMessage("hello")
	require.NoError(t, err)
	sig, err := hexutil.Decode(sigHex)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	sig[crypto.RecoveryIDOffset] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash([]byte("hello")), sig)
	require.NoError(t, err)
	require.Equal(t, c.Address(), crypto.PubkeyToAddress(*pub))
}

func TestTradeWithoutProvider(t *testing.T) {
	c, err := New(testConfig(), nil)
	require.NoError(t, err)

	_, err = c.BuySentientTokens(context.Background(), token, "1", nil)
	require.ErrorIs(t, err, types.ErrNoProvider)
}

func TestBuyPrototypeAppliesConfiguredBuilderID(t *testing.T) {
	cfg := testConfig()
	cfg.BuilderID = 0x0102
	backend := evmtest.NewBackend()
	c, err := New(cfg, backend)
	require.NoError(t, err)

	base := evmtest.NewToken(backend, cfg.Contracts.BaseToken)
	base.SetBalance(c.Address(), ether(t, "10"))

	receipt, err := c.BuyPrototypeTokens(context.Background(), token, "10", nil)
	require.NoError(t, err)
	require.True(t, receipt.Success)

	sent := backend.SentWithSelector(venue.Bonding.Methods["buy"].ID)
	require.Len(t, sent, 1)
	data := sent[0].Data()
	require.Equal(t, []byte{0x01, 0x02}, data[len(data)-2:])
	require.Equal(t, cfg.Contracts.BondingCurve, *sent[0].To())
}

func TestSellSentientUsesCallerSlippage(t *testing.T) {
	cfg := testConfig()
	backend := evmtest.NewBackend()
	c, err := New(cfg, backend)
	require.NoError(t, err)

	evmtest.NewToken(backend, token).SetBalance(c.Address(), ether(t, "2"))
	backend.Handle(cfg.Contracts.UniswapV2Router, venue.UniswapV2Router.Methods["getAmountsOut"], func(args []interface{}) ([]interface{}, error) {
		return []interface{}{[]*big.Int{args[0].(*big.Int), big.NewInt(1_000_000)}}, nil
	})

	slippage := uint16(20)
	_, err = c.SellSentientTokens(context.Background(), token, "2", &types.Option{Slippage: &slippage})
	require.NoError(t, err)

	sent := backend.SentWithSelector(venue.UniswapV2Router.Methods["swapExactTokensForTokensSupportingFeeOnTransferTokens"].ID)
	require.Len(t, sent, 1)
	args, err := venue.UniswapV2Router.Methods["swapExactTokensForTokensSupportingFeeOnTransferTokens"].Inputs.Unpack(sent[0].Data()[4:])
	require.NoError(t, err)
	require.Equal(t, "800000", args[1].(*big.Int).String())
	require.Equal(t, []common.Address{token, cfg.Contracts.BaseToken}, args[2])
}

func TestAllowanceDefaultsToBaseToken(t *testing.T) {
	cfg := testConfig()
	backend := evmtest.NewBackend()
	c, err := New(cfg, backend)
	require.NoError(t, err)

	base := evmtest.NewToken(backend, cfg.Contracts.BaseToken)
	base.SetBalance(c.Address(), ether(t, "3"))

	ok, err := c.CheckSentientAllowance(context.Background(), "3", common.Address{})
	require.NoError(t, err)
	require.False(t, ok)

	hash, err := c.ApproveSentientAllowance(context.Background(), "3", common.Address{})
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, hash)
	require.Equal(t, ether(t, "3").String(), base.Allowance(c.Address(), cfg.Contracts.UniswapV2Router).String())

	ok, err = c.CheckSentientAllowance(context.Background(), "3", common.Address{})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.CheckPrototypeAllowance(context.Background(), "3", common.Address{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListingGoesThroughConfiguredAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/virtuals", r.URL.Path)
		require.Equal(t, "1", r.URL.Query().Get("filters[status]"))
		_, _ = w.Write([]byte(`{"data":[{"symbol":"PROTO","preToken":"0xabc"}]}`))
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.APIURL = srv.URL
	c, err := New(cfg, nil)
	require.NoError(t, err)

	list, err := c.GetPrototypeListing(context.Background(), 0, 0, client.ChainAll)
	require.NoError(t, err)
	require.Len(t, list.Tokens, 1)
	require.Equal(t, "0xabc", list.Tokens[0].TokenAddress)
}

func TestTradeAutoApprovesSpentToken(t *testing.T) {
	cfg := testConfig()
	backend := evmtest.NewBackend()
	c, err := New(cfg, backend)
	require.NoError(t, err)

	evmtest.NewToken(backend, token).SetBalance(c.Address(), ether(t, "4"))

	intent := &types.TradeIntent{
		Side:         types.Sell,
		Venue:        types.Prototype,
		CounterToken: token,
		Amount:       "4",
	}

	_, err = c.Trade(context.Background(), intent, false)
	require.NoError(t, err)
	require.Len(t, backend.SentWithSelector(evm.ERC20.Methods["approve"].ID), 0)

	receipt, err := c.Trade(context.Background(), intent, true)
	require.NoError(t, err)
	require.True(t, receipt.Success)
	require.Len(t, backend.SentWithSelector(evm.ERC20.Methods["approve"].ID), 1)
	require.Nil(t, intent.Option.Slippage)
}
