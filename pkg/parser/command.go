package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"vp-trade/pkg/types"
)

var (
	// <amount> [of] <token>
	tradePattern = regexp.MustCompile(`(?i)^(\d+\.?\d*)\s+(?:of\s+)?(0x[0-9a-f]{40})$`)
	// <amount> <input-mint> to <output-mint>
	swapPattern = regexp.MustCompile(`(?i)^(\d+\.?\d*)\s+([1-9A-HJ-NP-Za-km-z]{32,44})\s+to\s+([1-9A-HJ-NP-Za-km-z]{32,44})$`)
)

// SolSwapRequest is a parsed Solana swap command
type SolSwapRequest struct {
	Amount     string
	InputMint  string
	OutputMint string
}

// ParseTradeCommand parses the arguments of a buy or sell command
// Examples:
//   - "100 0x1234...abcd"
//   - "0.5 of 0x1234...abcd"
func ParseTradeCommand(side types.Side, venue types.Venue, command string) (*types.TradeIntent, error) {
	command = strings.TrimSpace(command)

	matches := tradePattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid trade command format. Expected: '<amount> <token-address>' (e.g., '100 0x0b3e328455c4059EEb9e3f84b5543F74E24e7E1b')")
	}

	intent := &types.TradeIntent{
		Side:         side,
		Venue:        venue,
		CounterToken: common.HexToAddress(matches[2]),
		Amount:       matches[1],
	}
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	return intent, nil
}

// ParseSolSwapCommand parses a Solana swap command
// Examples:
//   - "swap 0.1 So11111111111111111111111111111111111111112 to EPjFWdd5AufqSSqeM2qGd8w9Rt2X9WGxBaWY4WsJ6ENb"
func ParseSolSwapCommand(command string) (*SolSwapRequest, error) {
	command = strings.TrimSpace(command)
	if len(command) > 5 && strings.EqualFold(command[:5], "swap ") {
		command = strings.TrimSpace(command[5:])
	}

	matches := swapPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: '<amount> <input-mint> to <output-mint>'")
	}
	if matches[2] == matches[3] {
		return nil, fmt.Errorf("input and output mint must differ")
	}

	return &SolSwapRequest{
		Amount:     matches[1],
		InputMint:  matches[2],
		OutputMint: matches[3],
	}, nil
}

// ParseOption builds a trade option from CLI flag values. Zero values mean
// the flag was not given.
func ParseOption(builderID, slippage int, slippageSet bool) (*types.Option, error) {
	opt := &types.Option{}
	if builderID < 0 || builderID > 0xffff {
		return nil, fmt.Errorf("builder id must fit in 2 bytes, got %d", builderID)
	}
	if builderID > 0 {
		id := uint16(builderID)
		opt.BuilderID = &id
	}
	if slippageSet {
		if slippage < 0 || slippage > 100 {
			return nil, fmt.Errorf("slippage must be between 0 and 100 percent, got %d", slippage)
		}
		s := uint16(slippage)
		opt.Slippage = &s
	}
	return opt, nil
}
