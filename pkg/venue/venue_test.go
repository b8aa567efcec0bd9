package venue

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"vp-trade/pkg/evm"
	"vp-trade/pkg/evm/evmtest"
	"vp-trade/pkg/types"
	"vp-trade/pkg/units"
)

var (
	baseToken      = common.HexToAddress("0x0b3e328455c4059EEb9e3f84b5543F74E24e7E1b")
	frouterAddr    = common.HexToAddress("0x8292B43aB73EfAC11FAF357419C38ACF448202C5")
	bondingAddr    = common.HexToAddress("0xF66DeA7b3e897cD44A5a231c61B6B4423d613259")
	uniRouterAddr  = common.HexToAddress("0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24")
	prototypeToken = common.HexToAddress("0x1111111111111111111111111111111111111111")
	sentientToken  = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type fixture struct {
	backend   *evmtest.Backend
	account   *evm.Account
	base      *evmtest.Token
	prototype *evmtest.Token
	sentient  *evmtest.Token
	ledger    *evm.AllowanceLedger
	estimator *evm.FeeEstimator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	backend := evmtest.NewBackend()
	account, err := evm.NewAccount(evmtest.TestKey, backend, evm.WithReceiptPollInterval(time.Millisecond))
	require.NoError(t, err)
	estimator := evm.NewFeeEstimator(backend)

	f := &fixture{
		backend:   backend,
		account:   account,
		base:      evmtest.NewToken(backend, baseToken),
		prototype: evmtest.NewToken(backend, prototypeToken),
		sentient:  evmtest.NewToken(backend, sentientToken),
		ledger:    evm.NewAllowanceLedger(account, estimator),
		estimator: estimator,
	}
	return f
}

func (f *fixture) bonding() *BondingCurve {
	return NewBondingCurve(BondingCurveConfig{
		BaseToken:    baseToken,
		Router:       frouterAddr,
		BondingCurve: bondingAddr,
		TaxRate:      decimal.RequireFromString("0.01"),
	}, f.account, f.estimator, f.ledger)
}

func ether(t *testing.T, s string) *big.Int {
	t.Helper()
	v, err := units.ParseEther(s)
	require.NoError(t, err)
	return v
}

func uint16Ptr(v uint16) *uint16 { return &v }

func TestAppendBuilderTag(t *testing.T) {
	base := []byte{0xde, 0xad, 0xbe, 0xef}

	tests := []struct {
		name string
		opt  *types.Option
		want string
	}{
		{name: "nil option", opt: nil, want: "deadbeef"},
		{name: "no tag", opt: &types.Option{}, want: "deadbeef"},
		{name: "zero tag", opt: &types.Option{BuilderID: uint16Ptr(0)}, want: "deadbeef"},
		{name: "small tag is zero padded", opt: &types.Option{BuilderID: uint16Ptr(5)}, want: "deadbeef0005"},
		{name: "two byte tag", opt: &types.Option{BuilderID: uint16Ptr(0x1234)}, want: "deadbeef1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AppendBuilderTag(base, tt.opt)
			require.Equal(t, tt.want, hex.EncodeToString(got))
			require.Equal(t, "deadbeef", hex.EncodeToString(base))
		})
	}
}

func TestBondingQuote(t *testing.T) {
	f := newFixture(t)

	var gotToken, gotAsset common.Address
	var gotAmount *big.Int
	f.backend.Handle(frouterAddr, FRouter.Methods["getAmountsOut"], func(args []interface{}) ([]interface{}, error) {
		gotToken = args[0].(common.Address)
		gotAsset = args[1].(common.Address)
		gotAmount = args[2].(*big.Int)
		return []interface{}{big.NewInt(42)}, nil
	})

	out, err := f.bonding().Quote(context.Background(), types.Buy, "100", prototypeToken)
	require.NoError(t, err)
	require.Equal(t, "42", out.String())
	require.Equal(t, prototypeToken, gotToken)
	require.Equal(t, baseToken, gotAsset)
	require.Equal(t, ether(t, "99").String(), gotAmount.String())

	_, err = f.bonding().Quote(context.Background(), types.Sell, "100", prototypeToken)
	require.NoError(t, err)
	require.Equal(t, common.Address{}, gotAsset)
	require.Equal(t, ether(t, "100").String(), gotAmount.String())
}

func TestBondingBuildBuyWithZeroAllowance(t *testing.T) {
	f := newFixture(t)
	f.base.SetBalance(f.account.Address(), ether(t, "1000"))
	f.backend.Nonce = 9
	f.backend.Handle(frouterAddr, FRouter.Methods["getAmountsOut"], func(args []interface{}) ([]interface{}, error) {
		return []interface{}{big.NewInt(1)}, nil
	})

	req, err := f.bonding().BuildBuyRequest(context.Background(), prototypeToken, "100", nil)
	require.NoError(t, err)

	require.Equal(t, bondingAddr, req.To)
	require.Equal(t, f.account.Address(), req.From)
	require.Equal(t, uint64(9), req.Nonce)
	require.Equal(t, "8453", req.ChainID.String())
	require.Equal(t, uint64(24150), req.GasLimit)
	require.NotNil(t, req.GasPrice)

	// amount is encoded untaxed
	method := Bonding.Methods["buy"]
	require.Equal(t, method.ID, req.Data[:4])
	args, err := method.Inputs.Unpack(req.Data[4:])
	require.NoError(t, err)
	require.Equal(t, ether(t, "100").String(), args[0].(*big.Int).String())
	require.Equal(t, prototypeToken, args[1])
	require.Len(t, req.Data, 4+64)

	// no approval side effect during build
	require.Zero(t, f.backend.SentCount())
	require.Zero(t, f.base.Allowance(f.account.Address(), frouterAddr).Sign())
}

func TestBondingBuildSellAppendsBuilderTag(t *testing.T) {
	f := newFixture(t)
	f.prototype.SetBalance(f.account.Address(), ether(t, "10"))

	plain, err := f.bonding().BuildSellRequest(context.Background(), prototypeToken, "10", nil)
	require.NoError(t, err)
	tagged, err := f.bonding().BuildSellRequest(context.Background(), prototypeToken, "10", &types.Option{BuilderID: uint16Ptr(7)})
	require.NoError(t, err)

	require.Equal(t, Bonding.Methods["sell"].ID, plain.Data[:4])
	require.Len(t, tagged.Data, len(plain.Data)+BuilderTagSize)
	require.Equal(t, hex.EncodeToString(plain.Data)+"0007", hex.EncodeToString(tagged.Data))
}

func TestBondingBuildInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.prototype.SetBalance(f.account.Address(), ether(t, "1"))

	_, err := f.bonding().BuildSellRequest(context.Background(), prototypeToken, "2", nil)
	require.ErrorIs(t, err, types.ErrInsufficientBalance)
	require.Empty(t, f.backend.Estimated)
	require.Zero(t, f.backend.SentCount())
}

func TestBondingAllowanceUsesRouterAsSpender(t *testing.T) {
	f := newFixture(t)
	f.base.SetBalance(f.account.Address(), ether(t, "5"))

	ok, err := f.bonding().CheckAllowance(context.Background(), "5", baseToken)
	require.NoError(t, err)
	require.False(t, ok)

	hash, err := f.bonding().ApproveAllowance(context.Background(), "5", baseToken)
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, hash)
	require.Equal(t, ether(t, "5").String(), f.base.Allowance(f.account.Address(), frouterAddr).String())
}

func TestAmountOutMin(t *testing.T) {
	tests := []struct {
		out      int64
		slippage uint16
		want     int64
	}{
		{out: 1_000_000, slippage: 5, want: 950_000},
		{out: 1_000_000, slippage: 0, want: 1_000_000},
		{out: 1_000_000, slippage: 100, want: 0},
		{out: 999, slippage: 5, want: 950}, // 999*5/100 = 49 truncated
		{out: 19, slippage: 5, want: 19},
	}
	for _, tt := range tests {
		got := AmountOutMin(big.NewInt(tt.out), tt.slippage)
		require.Equal(t, tt.want, got.Int64(), "out %d slippage %d", tt.out, tt.slippage)
	}
}

func newRouter(f *fixture, amountOut *big.Int) *RouterSwap {
	f.backend.Handle(uniRouterAddr, UniswapV2Router.Methods["getAmountsOut"], func(args []interface{}) ([]interface{}, error) {
		return []interface{}{[]*big.Int{args[0].(*big.Int), amountOut}}, nil
	})
	r := NewRouterSwap(uniRouterAddr, f.account, f.estimator, f.ledger)
	r.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return r
}

func TestRouterBuildSwapRequest(t *testing.T) {
	f := newFixture(t)
	f.base.SetBalance(f.account.Address(), ether(t, "3"))
	router := newRouter(f, big.NewInt(1_000_000))

	req, err := router.BuildSwapRequest(context.Background(), baseToken, sentientToken, "3", nil)
	require.NoError(t, err)
	require.Equal(t, uniRouterAddr, req.To)

	method := UniswapV2Router.Methods[swapMethod]
	require.Equal(t, method.ID, req.Data[:4])
	args, err := method.Inputs.Unpack(req.Data[4:])
	require.NoError(t, err)
	require.Equal(t, ether(t, "3").String(), args[0].(*big.Int).String())
	require.Equal(t, "950000", args[1].(*big.Int).String())
	require.Equal(t, []common.Address{baseToken, sentientToken}, args[2])
	require.Equal(t, f.account.Address(), args[3])
	require.Equal(t, int64(1_700_000_000+20*60), args[4].(*big.Int).Int64())
	require.Zero(t, f.backend.SentCount())
}

func TestRouterBuildSwapCustomSlippageAndTag(t *testing.T) {
	f := newFixture(t)
	f.sentient.SetBalance(f.account.Address(), ether(t, "3"))
	router := newRouter(f, big.NewInt(1_000_000))

	opt := &types.Option{Slippage: uint16Ptr(10), BuilderID: uint16Ptr(0xabcd)}
	req, err := router.BuildSwapRequest(context.Background(), sentientToken, baseToken, "3", opt)
	require.NoError(t, err)

	method := UniswapV2Router.Methods[swapMethod]
	body := req.Data[:len(req.Data)-BuilderTagSize]
	require.Equal(t, "abcd", hex.EncodeToString(req.Data[len(req.Data)-BuilderTagSize:]))
	args, err := method.Inputs.Unpack(body[4:])
	require.NoError(t, err)
	require.Equal(t, "900000", args[1].(*big.Int).String())
}

func TestRouterBuildSwapDegenerateQuote(t *testing.T) {
	f := newFixture(t)
	f.base.SetBalance(f.account.Address(), ether(t, "3"))
	router := newRouter(f, big.NewInt(0))

	_, err := router.BuildSwapRequest(context.Background(), baseToken, sentientToken, "3", nil)
	require.ErrorIs(t, err, types.ErrQuote)
	require.Empty(t, f.backend.Estimated)
}

func TestRouterBuildSwapRejectsSlippageAbove100(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f, big.NewInt(1))

	_, err := router.BuildSwapRequest(context.Background(), baseToken, sentientToken, "1", &types.Option{Slippage: uint16Ptr(101)})
	require.Error(t, err)
}
