package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parseBaseUnits converts a non-negative decimal string such as "30" or
// "29.95" into integer token base units. Monetary comparisons stay in base
// units end to end; floating point never touches the threshold.
func parseBaseUnits(value string, decimals int) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(value, "-") || strings.HasPrefix(value, "+") {
		return 0, fmt.Errorf("amount %q must be an unsigned decimal", value)
	}
	whole, frac, _ := strings.Cut(value, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return 0, fmt.Errorf("amount %q has more than %d fractional digits", value, decimals)
	}
	for _, r := range frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid amount %q: fractional part must be digits", value)
		}
	}
	frac += strings.Repeat("0", decimals-len(frac))

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	fracUnits := int64(0)
	if frac != "" {
		fracUnits, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", value, err)
		}
	}
	scale := int64(1)
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	if units > (1<<62)/scale {
		return 0, fmt.Errorf("amount %q overflows base units", value)
	}
	return units*scale + fracUnits, nil
}

// formatBaseUnits renders base units as a trimmed decimal string for display.
func formatBaseUnits(raw int64, decimals int) string {
	if decimals <= 0 {
		return strconv.FormatInt(raw, 10)
	}
	scale := int64(1)
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	whole := raw / scale
	frac := raw % scale
	if frac == 0 {
		return strconv.FormatInt(whole, 10)
	}
	text := fmt.Sprintf("%d.%0*d", whole, decimals, frac)
	return strings.TrimRight(text, "0")
}
