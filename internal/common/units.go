package common

import (
	"fmt"
	"strconv"
	"strings"
)

// TokenDecimals is the number of decimals of the split token (USDC-style).
const TokenDecimals = 6

// FeeDenominator is the basis-point denominator for fee arithmetic.
const FeeDenominator = 10_000

// FormatAmount converts base units to a decimal string without float precision loss
func FormatAmount(base uint64) string {
	return formatWithDecimals(base, TokenDecimals)
}

// ParseAmount converts a decimal string to base units without float precision loss
func ParseAmount(s string) (uint64, error) {
	return parseWithDecimals(s, TokenDecimals)
}

// FeeBps computes fee = amount * bps / 10000 in base units.
// The multiplication is split to avoid uint64 overflow on large amounts.
func FeeBps(amount uint64, bps uint32) uint64 {
	whole := amount / FeeDenominator
	rem := amount % FeeDenominator
	return whole*uint64(bps) + rem*uint64(bps)/FeeDenominator
}

// formatWithDecimals converts integer to decimal string by inserting decimal point
// Example: formatWithDecimals(1500000, 6) = "1.500000"
func formatWithDecimals(value uint64, decimals int) string {
	s := fmt.Sprintf("%d", value)

	// Pad with leading zeros if needed
	for len(s) <= decimals {
		s = "0" + s
	}

	// Insert decimal point
	pos := len(s) - decimals
	return s[:pos] + "." + s[pos:]
}

// parseWithDecimals converts decimal string to integer by removing decimal point
// Example: parseWithDecimals("1.5", 6) = 1500000
func parseWithDecimals(s string, decimals int) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty string")
	}

	parts := strings.Split(s, ".")

	if len(parts) == 1 {
		// No decimal point - multiply by 10^decimals
		n, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return 0, err
		}
		for i := 0; i < decimals; i++ {
			n *= 10
		}
		return n, nil
	}

	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid decimal format")
	}

	whole := parts[0]
	frac := parts[1]

	// Pad or truncate fractional part to exact decimals
	if len(frac) < decimals {
		frac += strings.Repeat("0", decimals-len(frac))
	} else if len(frac) > decimals {
		frac = frac[:decimals]
	}

	// Combine and parse
	combined := whole + frac
	return strconv.ParseUint(combined, 10, 64)
}
