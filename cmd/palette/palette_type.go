package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hfarhat1982/gestion-tournee/pkg/types"
)

// parsePaletteType builds a catalog entry from command line values. An
// empty price leaves the price unset.
func parsePaletteType(id, name, description, price string) (*types.PaletteType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("-name is required")
	}

	pt := &types.PaletteType{
		ID:          strings.TrimSpace(id),
		Name:        name,
		Description: strings.TrimSpace(description),
	}
	if price = strings.TrimSpace(price); price != "" {
		d, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", price, err)
		}
		if d.IsNegative() {
			return nil, fmt.Errorf("invalid price %q: must not be negative", price)
		}
		pt.Price = decimal.NewNullDecimal(d)
	}
	return pt, nil
}
