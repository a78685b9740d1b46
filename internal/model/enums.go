package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order or fill.
// Keep these values stable; they are intended for CSV output.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Sign returns +1 for buys and -1 for sells.
func (s OrderSide) Sign() decimal.Decimal {
	if s == SideBuy {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// PositionSide is the market exposure of a position.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionFlat  PositionSide = "FLAT"
	PositionShort PositionSide = "SHORT"
)

func PositionSideFromQuantity(signedQty decimal.Decimal) PositionSide {
	switch {
	case signedQty.IsPositive():
		return PositionLong
	case signedQty.IsNegative():
		return PositionShort
	default:
		return PositionFlat
	}
}

// OMSType controls how fills are attributed to positions at a venue.
// HEDGING opens a new position per entry, NETTING keeps one position per instrument.
type OMSType string

const (
	OMSHedging OMSType = "HEDGING"
	OMSNetting OMSType = "NETTING"
)

func ParseOMSType(s string) (OMSType, error) {
	switch OMSType(strings.ToUpper(strings.TrimSpace(s))) {
	case OMSHedging:
		return OMSHedging, nil
	case OMSNetting:
		return OMSNetting, nil
	default:
		return "", fmt.Errorf("invalid oms type %q", s)
	}
}

type AccountType string

const (
	AccountMargin AccountType = "MARGIN"
	AccountCash   AccountType = "CASH"
)

func ParseAccountType(s string) (AccountType, error) {
	switch AccountType(strings.ToUpper(strings.TrimSpace(s))) {
	case AccountMargin:
		return AccountMargin, nil
	case AccountCash:
		return AccountCash, nil
	default:
		return "", fmt.Errorf("invalid account type %q", s)
	}
}
