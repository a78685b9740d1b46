package backtest

import (
	"time"

	"backtest-leakcheck/internal/model"

	"github.com/shopspring/decimal"
)

// LedgerRow is one fill as seen by the account.
type LedgerRow struct {
	Index int

	TsEvent    int64
	OrderID    string
	PositionID string
	Instrument model.InstrumentID

	Side     model.OrderSide
	Quantity decimal.Decimal
	Price    decimal.Decimal

	RealizedPnL decimal.Decimal
	CumPnL      decimal.Decimal
}

type Result struct {
	EngineID string

	Ticks         int
	Bars          int
	Orders        int
	DeniedOrders  int
	Fills         int
	Positions     int
	OpenPositions int

	Ledger   []LedgerRow
	TotalPnL decimal.Decimal
	Balances []model.Money

	Elapsed time.Duration
}
