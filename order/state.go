package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side 订单方向，创建后不可变。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Status represents order lifecycle.
type Status string

const (
	StatusSubmitted Status = "SUBMITTED"
	StatusOpen      Status = "OPEN"
	StatusMoving    Status = "MOVING"
	StatusCancelled Status = "CANCELLED"
	StatusFilled    Status = "FILLED"
	StatusRejected  Status = "REJECTED"
)

// Terminal 终态订单不再接受任何修改。
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusFilled, StatusRejected:
		return true
	default:
		return false
	}
}

// Ticker 由调用方在创建时提供的盘口快照（最优买/卖价）。
type Ticker struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// suborder 交易所侧的一次挂单；改价/改量后被替换但保留成交量。
type suborder struct {
	id       string
	amount   decimal.Decimal
	filled   decimal.Decimal
	placedAt time.Time
}

// SuborderView 子订单只读视图。
type SuborderView struct {
	ID       string
	Amount   decimal.Decimal
	Filled   decimal.Decimal
	PlacedAt time.Time
}

// Snapshot holds a read-only view of a logical order.
type Snapshot struct {
	ID         string
	Side       Side
	Price      decimal.Decimal
	Amount     decimal.Decimal
	Filled     decimal.Decimal
	Status     Status
	PostOnly   bool
	SuborderID string
	Suborders  []SuborderView
	LastError  string
}
