package parser

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"vp-trade/pkg/types"
)

func TestParseTradeCommand(t *testing.T) {
	addr := "0x0b3e328455c4059EEb9e3f84b5543F74E24e7E1b"

	tests := []struct {
		command string
		amount  string
		err     bool
	}{
		{command: "100 " + addr, amount: "100"},
		{command: "  0.5 of " + addr + " ", amount: "0.5"},
		{command: "1.25 OF " + addr, amount: "1.25"},
		{command: "abc " + addr, err: true},
		{command: "100 0x1234", err: true},
		{command: "100", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			intent, err := ParseTradeCommand(types.Buy, types.Prototype, tt.command)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.amount, intent.Amount)
			require.Equal(t, common.HexToAddress(addr), intent.CounterToken)
			require.Equal(t, types.Buy, intent.Side)
			require.Equal(t, types.Prototype, intent.Venue)
		})
	}
}

func TestParseSolSwapCommand(t *testing.T) {
	sol := "So11111111111111111111111111111111111111112"
	usdc := "EPjFWdd5AufqSSqeM2qGd8w9Rt2X9WGxBaWY4WsJ6ENb"

	req, err := ParseSolSwapCommand("swap 0.1 " + sol + " to " + usdc)
	require.NoError(t, err)
	require.Equal(t, &SolSwapRequest{Amount: "0.1", InputMint: sol, OutputMint: usdc}, req)

	req, err = ParseSolSwapCommand("2 " + usdc + " TO " + sol)
	require.NoError(t, err)
	require.Equal(t, usdc, req.InputMint)

	_, err = ParseSolSwapCommand("1 " + sol + " to " + sol)
	require.Error(t, err)
	_, err = ParseSolSwapCommand("1 SOL to USDC")
	require.Error(t, err)
}

func TestParseOption(t *testing.T) {
	opt, err := ParseOption(0, 0, false)
	require.NoError(t, err)
	require.Nil(t, opt.BuilderID)
	require.Nil(t, opt.Slippage)

	opt, err = ParseOption(7, 0, true)
	require.NoError(t, err)
	require.Equal(t, uint16(7), *opt.BuilderID)
	require.Equal(t, uint16(0), *opt.Slippage)

	_, err = ParseOption(70000, 0, false)
	require.Error(t, err)
	_, err = ParseOption(0, 101, true)
	require.Error(t, err)
}
