package data

import (
	"fmt"
	"strings"

	"backtest-leakcheck/internal/model"
)

// QuoteSpec is the fixed content stamped onto every synthetic quote.
type QuoteSpec struct {
	InstrumentID   model.InstrumentID
	BidPrice       float64
	AskPrice       float64
	PricePrecision int32
	BidSize        float64
	AskSize        float64
	SizePrecision  int32
}

func DefaultQuoteSpec() QuoteSpec {
	return QuoteSpec{
		InstrumentID:   model.InstrumentID{Symbol: "EUR/USD", Venue: "SIM"},
		BidPrice:       1.234,
		AskPrice:       1.234,
		PricePrecision: 4,
		BidSize:        5,
		AskSize:        5,
		SizePrecision:  0,
	}
}

// TimestampMode controls where each batch's timestamps start.
type TimestampMode string

const (
	// TimestampsReset restarts every batch at 0.
	TimestampsReset TimestampMode = "reset"
	// TimestampsContinuous starts every batch at the caller's sequence offset.
	TimestampsContinuous TimestampMode = "continuous"
)

func ParseTimestampMode(s string) (TimestampMode, error) {
	switch m := TimestampMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return TimestampsReset, nil
	case TimestampsReset, TimestampsContinuous:
		return m, nil
	default:
		return "", fmt.Errorf("invalid timestamp mode %q, expected reset or continuous", s)
	}
}

// QuoteGenerator produces identical, deterministic quote batches.
type QuoteGenerator struct {
	Spec QuoteSpec
	Mode TimestampMode
}

func NewQuoteGenerator(spec QuoteSpec, mode TimestampMode) *QuoteGenerator {
	return &QuoteGenerator{Spec: spec, Mode: mode}
}

// Generate returns batchSize quotes with timestamps 0..batchSize-1, or
// startSeq..startSeq+batchSize-1 in continuous mode. Every quote gets its
// own price and size values.
func (g *QuoteGenerator) Generate(batchSize int, startSeq int64) []model.QuoteTick {
	if batchSize <= 0 {
		return []model.QuoteTick{}
	}
	var base int64
	if g.Mode == TimestampsContinuous {
		base = startSeq
	}

	s := g.Spec
	out := make([]model.QuoteTick, batchSize)
	for i := range out {
		ts := base + int64(i)
		out[i] = model.QuoteTick{
			InstrumentID: s.InstrumentID,
			BidPrice:     model.NewPrice(s.BidPrice, s.PricePrecision),
			AskPrice:     model.NewPrice(s.AskPrice, s.PricePrecision),
			BidSize:      model.NewQuantity(s.BidSize, s.SizePrecision),
			AskSize:      model.NewQuantity(s.AskSize, s.SizePrecision),
			TsEvent:      ts,
			TsInit:       ts,
		}
	}
	return out
}
