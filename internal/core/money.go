// Package core provides money parsing and handling utilities.
//
// This file contains the boundary parser for user-typed amounts and the
// helpers used to render decimals for display and export.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-typed amount to a positive decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs,
// exponents, thousands separators and anything non-numeric are rejected, as
// are zero amounts. No rounding is applied: the amount is kept exactly as typed.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("0")     -> 0, ErrInvalidAmount
//	ParseAmount("12abc") -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// Only positive values allowed
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	digits := 0
	for _, part := range parts {
		for _, r := range part {
			if !unicode.IsDigit(r) || r > unicode.MaxASCII {
				return decimal.Zero, ErrInvalidAmount
			}
			digits++
		}
	}
	if digits == 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	if parts[0] == "" {
		parts[0] = "0"
	}
	if len(parts) == 2 && parts[1] == "" {
		parts = parts[:1]
	}
	d, err := decimal.NewFromString(strings.Join(parts, "."))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Sum adds up the amounts of the given expenses.
func Sum(expenses []Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}
