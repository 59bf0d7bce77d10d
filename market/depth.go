package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Depth 保存某个交易对的最优 bid/ask。
type Depth struct {
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Time   time.Time
}

// Update 使用增量更新 bid/ask；非正数视为缺失，保留旧值。
func (d *Depth) Update(bid, ask decimal.Decimal) {
	if bid.IsPositive() {
		d.Bid = bid
	}
	if ask.IsPositive() {
		d.Ask = ask
	}
}
