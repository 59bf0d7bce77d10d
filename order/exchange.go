package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange 交易所能力契约。实现方需保证并发安全：多个订单共享同一个实例。
// 传输层的超时与重试属于实现方，订单核心不做重试。
type Exchange interface {
	RoundPrice(price decimal.Decimal) decimal.Decimal
	RoundAmount(amount decimal.Decimal) decimal.Decimal

	Submit(ctx context.Context, req SubmitRequest) (string, error)
	CancelOrder(ctx context.Context, suborderID string) (CancelResult, error)
	CheckOrder(ctx context.Context, suborderID string) (CheckResult, error)
	GetOrder(ctx context.Context, suborderID string) (Trade, error)
}

// SubmitRequest 一次子订单提交。Amount 已扣除 AlreadyFilled。
type SubmitRequest struct {
	Side          Side
	Amount        decimal.Decimal
	Price         decimal.Decimal
	AlreadyFilled decimal.Decimal
	PostOnly      bool
	ClientID      string
}

// CancelResult 撤单结果。Filled 表示撤单落地前子订单已全部成交；
// FilledAmount 为交易所报告的该子订单累计成交量（可为零）。
type CancelResult struct {
	Filled       bool
	FilledAmount decimal.Decimal
}

// CheckResult 轮询结果。
type CheckResult struct {
	Open         bool
	Executed     bool
	FilledAmount decimal.Decimal
}

// Trade 单个子订单的成交明细，仅用于汇总。
type Trade struct {
	Price      decimal.Decimal
	Amount     decimal.Decimal
	Date       time.Time
	Fees       map[string]decimal.Decimal
	FeePercent decimal.NullDecimal
}
