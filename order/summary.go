package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"limit-order-go/metrics"
)

// Summary 逻辑订单结束后的成交汇总：按成交量加权的均价与费率。
type Summary struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
	Date   time.Time // 最后一笔成交的时间
	Side   Side
	Orders int // 有成交的子订单数

	// Fees 按币种累计；没有任何成交报告手续费时为 nil
	Fees map[string]decimal.Decimal
	// FeePercent 只在至少一笔成交报告了费率时有效
	FeePercent decimal.NullDecimal
}

// createSummary 逐个拉取有成交的子订单明细。调用之间间隔 SummaryInterval，不并发，以照顾交易所限流。
func (o *LimitOrder) createSummary(ctx context.Context) (Summary, error) {
	trades := make([]Trade, 0, len(o.suborders))
	for _, sub := range o.suborders {
		if !sub.filled.IsPositive() {
			continue
		}
		timer := time.NewTimer(o.cfg.SummaryInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Summary{}, ctx.Err()
		}

		start := time.Now()
		trade, err := o.exch.GetOrder(ctx, sub.id)
		metrics.ObserveGatewayCall("get_order", err, time.Since(start))
		if err != nil {
			return Summary{}, &GatewayError{Op: "get_order", SuborderID: sub.id, Err: err}
		}
		trades = append(trades, trade)
	}

	s := Summarize(o.side, trades)
	o.log.Info("order summary",
		zap.String("price", s.Price.String()),
		zap.String("amount", s.Amount.String()),
		zap.Int("orders", s.Orders))
	return s, nil
}

// Summarize 合并多笔成交：
//
//	price' = (price*amount + tradePrice*tradeAmount) / (amount + tradeAmount)
//
// 费率使用同样的加权方式，但跳过未报告或为零的费率。
func Summarize(side Side, trades []Trade) Summary {
	s := Summary{
		Price:  decimal.Zero,
		Amount: decimal.Zero,
		Side:   side,
		Orders: len(trades),
	}

	for _, t := range trades {
		s.Date = t.Date
		total := s.Amount.Add(t.Amount)
		if total.IsPositive() {
			s.Price = s.Price.Mul(s.Amount).Add(t.Price.Mul(t.Amount)).Div(total)
		}
		s.Amount = total
	}

	for _, t := range trades {
		if len(t.Fees) == 0 {
			continue
		}
		if s.Fees == nil {
			s.Fees = make(map[string]decimal.Decimal)
		}
		for currency, fee := range t.Fees {
			s.Fees[currency] = s.Fees[currency].Add(fee)
		}
	}

	weighted := decimal.Zero
	for _, t := range trades {
		if !t.FeePercent.Valid {
			continue
		}
		if !s.FeePercent.Valid {
			s.FeePercent = decimal.NewNullDecimal(decimal.Zero)
		}
		if t.FeePercent.Decimal.IsZero() {
			continue
		}
		total := weighted.Add(t.Amount)
		if !total.IsPositive() {
			continue
		}
		s.FeePercent.Decimal = s.FeePercent.Decimal.Mul(weighted).Add(t.FeePercent.Decimal.Mul(t.Amount)).Div(total)
		weighted = total
	}

	return s
}
