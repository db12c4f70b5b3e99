// Package core provides the expense domain types and amount parsing.
//
// This file contains functions for parsing signed decimal amounts typed by
// users or read back from storage and spreadsheets.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to an exact amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign. Refunds are recorded as negative amounts, so the sign
// is preserved. Digit grouping, exponents and currency symbols are rejected.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("-4.5")   -> -4.5, nil
//	ParseAmount("1.2.3")  -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	body := strings.TrimLeft(s, "+-")
	if len(s)-len(body) > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.Split(body, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	digits := 0
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
			digits++
		}
	}
	if digits == 0 {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(strings.TrimPrefix(s, "+"))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatAmount renders an amount with two decimals and its currency code,
// e.g. "45.00 USD".
func FormatAmount(d decimal.Decimal, currency string) string {
	out := d.StringFixed(2)
	if c := strings.TrimSpace(currency); c != "" {
		out += " " + c
	}
	return out
}
