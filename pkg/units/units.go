// Package units converts between human decimal amounts and integer base units.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// EVMDecimals is the fixed point used by every EVM token this SDK trades
const EVMDecimals = 18

// ParseUnits converts a decimal string such as "1.5" into base units.
// Digits beyond the requested precision are truncated.
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative: %s", amount)
	}
	return d.Shift(decimals).BigInt(), nil
}

// ParseEther converts a decimal string into 18-decimal base units
func ParseEther(amount string) (*big.Int, error) {
	return ParseUnits(amount, EVMDecimals)
}

// FormatUnits renders base units as a decimal string
func FormatUnits(value *big.Int, decimals int32) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -decimals).String()
}

// FormatEther renders 18-decimal base units as a decimal string
func FormatEther(value *big.Int) string {
	return FormatUnits(value, EVMDecimals)
}

// ApplyRate multiplies a decimal amount by (1 - rate), e.g. to deduct a tax
func ApplyRate(amount string, rate decimal.Decimal) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return "", fmt.Errorf("invalid amount format: %s", amount)
	}
	return d.Mul(decimal.NewFromInt(1).Sub(rate)).String(), nil
}
