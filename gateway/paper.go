package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"limit-order-go/order"
)

type paperOrder struct {
	id       string
	side     order.Side
	price    decimal.Decimal
	amount   decimal.Decimal
	filled   decimal.Decimal
	open     bool
	rejected bool
	fillAt   time.Time
}

// PaperExchange 内存撮合的交易所，用于 dry-run 与测试。
// 挂单在盘口穿越其价格时按挂单价成交；postOnly 穿越盘口时被拒绝。
type PaperExchange struct {
	Constraints SymbolConstraints
	FeeAsset    string
	FeePercent  decimal.NullDecimal
	// Latency 每次调用前的模拟延迟。
	Latency time.Duration

	mu     sync.Mutex
	seq    int
	bid    decimal.Decimal
	ask    decimal.Decimal
	orders map[string]*paperOrder
	log    *zap.Logger
	now    func() time.Time
}

var _ order.Exchange = (*PaperExchange)(nil)

func NewPaperExchange(c SymbolConstraints, logger *zap.Logger) *PaperExchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperExchange{
		Constraints: c,
		FeeAsset:    "USDT",
		orders:      make(map[string]*paperOrder),
		log:         logger,
		now:         time.Now,
	}
}

func (p *PaperExchange) RoundPrice(price decimal.Decimal) decimal.Decimal {
	return p.Constraints.RoundPrice(price)
}

func (p *PaperExchange) RoundAmount(amount decimal.Decimal) decimal.Decimal {
	return p.Constraints.RoundAmount(amount)
}

// OnTicker 更新盘口并撮合所有被穿越的挂单。可直接作为行情回调。
func (p *PaperExchange) OnTicker(bid, ask decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bid, p.ask = bid, ask
	for _, o := range p.orders {
		if o.open && p.crossed(o) {
			p.fillLocked(o, o.amount)
		}
	}
}

// Fill 手动部分成交（累计到 qty 为止），用于模拟盘口深度不足的情况。
func (p *PaperExchange) Fill(id string, qty decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[id]
	if !ok {
		return fmt.Errorf("paper: unknown order %s", id)
	}
	if !o.open {
		return fmt.Errorf("paper: order %s not open", id)
	}
	p.fillLocked(o, decimal.Min(qty, o.amount))
	return nil
}

func (p *PaperExchange) crossed(o *paperOrder) bool {
	if o.side == order.SideBuy {
		return p.ask.IsPositive() && o.price.GreaterThanOrEqual(p.ask)
	}
	return p.bid.IsPositive() && o.price.LessThanOrEqual(p.bid)
}

func (p *PaperExchange) fillLocked(o *paperOrder, qty decimal.Decimal) {
	if !qty.GreaterThan(o.filled) {
		return
	}
	o.filled = qty
	o.fillAt = p.now()
	if o.filled.GreaterThanOrEqual(o.amount) {
		o.open = false
	}
	p.log.Debug("paper fill",
		zap.String("suborder_id", o.id),
		zap.String("filled", o.filled.String()),
		zap.Bool("complete", !o.open))
}

func (p *PaperExchange) Submit(ctx context.Context, req order.SubmitRequest) (string, error) {
	if err := p.delay(ctx); err != nil {
		return "", err
	}
	if err := p.Constraints.Validate(req.Price, req.Amount); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	o := &paperOrder{
		id:     fmt.Sprintf("paper-%d", p.seq),
		side:   req.Side,
		price:  req.Price,
		amount: req.Amount,
		filled: decimal.Zero,
		open:   true,
	}
	p.orders[o.id] = o
	if p.crossed(o) {
		if req.PostOnly {
			// 与交易所一致：返回订单号，随后查询为未成交且不在簿上
			o.open = false
			o.rejected = true
		} else {
			p.fillLocked(o, o.amount)
		}
	}
	return o.id, nil
}

func (p *PaperExchange) CancelOrder(ctx context.Context, id string) (order.CancelResult, error) {
	if err := p.delay(ctx); err != nil {
		return order.CancelResult{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[id]
	if !ok {
		return order.CancelResult{}, fmt.Errorf("paper: unknown order %s", id)
	}
	filled := !o.open && !o.rejected && o.filled.GreaterThanOrEqual(o.amount)
	o.open = false
	return order.CancelResult{Filled: filled, FilledAmount: o.filled}, nil
}

func (p *PaperExchange) CheckOrder(ctx context.Context, id string) (order.CheckResult, error) {
	if err := p.delay(ctx); err != nil {
		return order.CheckResult{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[id]
	if !ok {
		return order.CheckResult{}, fmt.Errorf("paper: unknown order %s", id)
	}
	return order.CheckResult{
		Open:         o.open,
		Executed:     !o.open && o.filled.GreaterThanOrEqual(o.amount),
		FilledAmount: o.filled,
	}, nil
}

func (p *PaperExchange) GetOrder(ctx context.Context, id string) (order.Trade, error) {
	if err := p.delay(ctx); err != nil {
		return order.Trade{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[id]
	if !ok {
		return order.Trade{}, fmt.Errorf("paper: unknown order %s", id)
	}
	t := order.Trade{
		Price:      o.price,
		Amount:     o.filled,
		Date:       o.fillAt,
		FeePercent: p.FeePercent,
	}
	if p.FeePercent.Valid && p.FeePercent.Decimal.IsPositive() {
		fee := o.price.Mul(o.filled).Mul(p.FeePercent.Decimal).Div(decimal.NewFromInt(100))
		t.Fees = map[string]decimal.Decimal{p.FeeAsset: fee}
	}
	return t, nil
}

func (p *PaperExchange) delay(ctx context.Context) error {
	if p.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
