package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type BarAggregation string

const (
	AggregationSecond BarAggregation = "SECOND"
	AggregationMinute BarAggregation = "MINUTE"
	AggregationHour   BarAggregation = "HOUR"
)

func (a BarAggregation) unit() (time.Duration, bool) {
	switch a {
	case AggregationSecond:
		return time.Second, true
	case AggregationMinute:
		return time.Minute, true
	case AggregationHour:
		return time.Hour, true
	default:
		return 0, false
	}
}

type PriceType string

const (
	PriceBid PriceType = "BID"
	PriceAsk PriceType = "ASK"
	PriceMid PriceType = "MID"
)

type AggregationSource string

const (
	SourceExternal AggregationSource = "EXTERNAL"
	SourceInternal AggregationSource = "INTERNAL"
)

// BarSpecification describes how quotes are aggregated into a bar.
type BarSpecification struct {
	Step        int
	Aggregation BarAggregation
	PriceType   PriceType
}

// Interval returns the bar length.
func (s BarSpecification) Interval() time.Duration {
	unit, _ := s.Aggregation.unit()
	return time.Duration(s.Step) * unit
}

// BarType identifies a bar series, e.g. "EUR/USD.SIM-1-HOUR-ASK-EXTERNAL".
type BarType struct {
	InstrumentID InstrumentID
	Spec         BarSpecification
	Source       AggregationSource
}

func (b BarType) String() string {
	return fmt.Sprintf("%s-%d-%s-%s-%s",
		b.InstrumentID, b.Spec.Step, b.Spec.Aggregation, b.Spec.PriceType, b.Source)
}

func ParseBarType(s string) (BarType, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) < 5 {
		return BarType{}, fmt.Errorf("invalid bar type %q", s)
	}
	n := len(parts)
	id, err := ParseInstrumentID(strings.Join(parts[:n-4], "-"))
	if err != nil {
		return BarType{}, fmt.Errorf("invalid bar type %q: %w", s, err)
	}
	step, err := strconv.Atoi(parts[n-4])
	if err != nil || step <= 0 {
		return BarType{}, fmt.Errorf("invalid step in bar type %q", s)
	}
	agg := BarAggregation(parts[n-3])
	if _, ok := agg.unit(); !ok {
		return BarType{}, fmt.Errorf("unsupported aggregation %q in bar type %q", parts[n-3], s)
	}
	pt := PriceType(parts[n-2])
	switch pt {
	case PriceBid, PriceAsk, PriceMid:
	default:
		return BarType{}, fmt.Errorf("unsupported price type %q in bar type %q", parts[n-2], s)
	}
	src := AggregationSource(parts[n-1])
	if src != SourceExternal && src != SourceInternal {
		return BarType{}, fmt.Errorf("unsupported source %q in bar type %q", parts[n-1], s)
	}
	return BarType{
		InstrumentID: id,
		Spec:         BarSpecification{Step: step, Aggregation: agg, PriceType: pt},
		Source:       src,
	}, nil
}

// Bar is one closed OHLCV bar.
type Bar struct {
	Type BarType

	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal

	TsEvent int64
	TsInit  int64
}
