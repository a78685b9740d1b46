package model

import "github.com/shopspring/decimal"

// Price is a price rounded to a fixed number of decimals.
type Price struct {
	Value     decimal.Decimal
	Precision int32
}

func NewPrice(v float64, precision int32) Price {
	return Price{Value: decimal.NewFromFloat(v).Round(precision), Precision: precision}
}

func (p Price) String() string { return p.Value.StringFixed(p.Precision) }

// Quantity is a size rounded to a fixed number of decimals.
type Quantity struct {
	Value     decimal.Decimal
	Precision int32
}

func NewQuantity(v float64, precision int32) Quantity {
	return Quantity{Value: decimal.NewFromFloat(v).Round(precision), Precision: precision}
}

func (q Quantity) String() string { return q.Value.StringFixed(q.Precision) }

// QuoteTick is a top-of-book quote.
// TsEvent and TsInit are nanoseconds; the engine orders data by TsInit.
type QuoteTick struct {
	InstrumentID InstrumentID

	BidPrice Price
	AskPrice Price
	BidSize  Quantity
	AskSize  Quantity

	TsEvent int64
	TsInit  int64
}

// Extract returns the price of the tick for the given price type.
func (q QuoteTick) Extract(pt PriceType) decimal.Decimal {
	switch pt {
	case PriceBid:
		return q.BidPrice.Value
	case PriceAsk:
		return q.AskPrice.Value
	default:
		return q.BidPrice.Value.Add(q.AskPrice.Value).Div(decimal.NewFromInt(2))
	}
}

// ExtractSize returns the size of the tick for the given price type.
func (q QuoteTick) ExtractSize(pt PriceType) decimal.Decimal {
	switch pt {
	case PriceBid:
		return q.BidSize.Value
	case PriceAsk:
		return q.AskSize.Value
	default:
		return q.BidSize.Value.Add(q.AskSize.Value).Div(decimal.NewFromInt(2))
	}
}
