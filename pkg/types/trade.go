package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Side is the direction of a trade relative to the target token
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Venue identifies which on-chain market a token trades on
type Venue string

const (
	// Prototype tokens still trade against the bonding curve
	Prototype Venue = "PROTOTYPE"
	// Sentient tokens have graduated to the constant-product router
	Sentient Venue = "SENTIENT"
)

// DefaultSlippagePercent is applied to router swaps when the caller gives none
const DefaultSlippagePercent = 5

// Option carries the optional knobs of a trade
type Option struct {
	BuilderID *uint16 // attribution tag appended to the call data when non-zero
	Slippage  *uint16 // percent, router swaps only
}

// BuilderTag returns the builder tag and whether it should be appended
func (o *Option) BuilderTag() (uint16, bool) {
	if o == nil || o.BuilderID == nil || *o.BuilderID == 0 {
		return 0, false
	}
	return *o.BuilderID, true
}

// SlippagePercent returns the requested slippage or the default
func (o *Option) SlippagePercent() uint16 {
	if o == nil || o.Slippage == nil {
		return DefaultSlippagePercent
	}
	return *o.Slippage
}

// TradeIntent represents a single buy or sell request against one venue
type TradeIntent struct {
	Side         Side
	Venue        Venue
	CounterToken common.Address // the prototype or sentient token being traded
	Amount       string         // human decimal amount of the token being spent
	Option       Option
}

// Validate checks that a trade intent has all required fields
func (t *TradeIntent) Validate() error {
	if t.Side != Buy && t.Side != Sell {
		return fmt.Errorf("side must be BUY or SELL, got %q", t.Side)
	}
	if t.Venue != Prototype && t.Venue != Sentient {
		return fmt.Errorf("venue must be PROTOTYPE or SENTIENT, got %q", t.Venue)
	}
	if t.CounterToken == (common.Address{}) {
		return fmt.Errorf("token address is required")
	}
	if strings.TrimSpace(t.Amount) == "" {
		return fmt.Errorf("amount is required")
	}
	if s := t.Option.Slippage; s != nil && *s > 100 {
		return fmt.Errorf("slippage must be between 0 and 100 percent, got %d", *s)
	}
	return nil
}

// ParseSide converts user input into a Side
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "B":
		return Buy, nil
	case "SELL", "S":
		return Sell, nil
	default:
		return "", fmt.Errorf("unknown side: %s", s)
	}
}

// ParseVenue converts user input into a Venue
func ParseVenue(s string) (Venue, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PROTOTYPE", "PROTO", "P", "BONDING":
		return Prototype, nil
	case "SENTIENT", "S", "AGENT", "ROUTER":
		return Sentient, nil
	default:
		return "", fmt.Errorf("unknown venue: %s", s)
	}
}
