// Package fx converts amounts between currencies using a remote exchange-rate service.
package fx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrConversionRejected is returned when the rate service answers but refuses the pair.
	ErrConversionRejected = errors.New("conversion rejected")

	// ErrNotConfigured is returned by Unavailable for every conversion.
	ErrNotConfigured = errors.New("currency conversion not configured")
)

// Converter converts an amount from one currency code to another.
type Converter interface {
	Convert(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error)
}

// Unavailable is the converter used when no rate service is configured. Every call fails.
type Unavailable struct {
	Reason string
}

// Convert always returns ErrNotConfigured.
func (u Unavailable) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, error) {
	if u.Reason == "" {
		return decimal.Zero, ErrNotConfigured
	}
	return decimal.Zero, fmt.Errorf("%w: %s", ErrNotConfigured, u.Reason)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
