package order

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"limit-order-go/metrics"
)

const DefaultCheckInterval = 1500 * time.Millisecond

// DefaultPriceOffset 未指定价格时，买单挂在 bid-1，卖单挂在 ask+1。
var DefaultPriceOffset = decimal.NewFromInt(1)

// Config 订单运行参数。
type Config struct {
	CheckInterval   time.Duration       // 轮询间隔
	SummaryInterval time.Duration       // 汇总时逐个拉取成交明细的间隔，默认等于 CheckInterval
	PriceOffset     decimal.NullDecimal // 未设置时为 DefaultPriceOffset，显式 0 表示直接挂在 bid/ask
	Logger          *zap.Logger
	Sink            EventSink
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.SummaryInterval <= 0 {
		c.SummaryInterval = c.CheckInterval
	}
	if !c.PriceOffset.Valid {
		c.PriceOffset = decimal.NewNullDecimal(DefaultPriceOffset)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// CreateParams 创建逻辑订单的参数。Price 无效时由 Ticker 和 PriceOffset 推导。
type CreateParams struct {
	ID       string
	Side     Side
	Amount   decimal.Decimal
	Price    decimal.NullDecimal
	PostOnly bool
	Ticker   Ticker
}

type opKind int

const (
	opNone opKind = iota
	opSubmit
	opCancel
	opCheck
)

func (k opKind) String() string {
	switch k {
	case opSubmit:
		return "submit"
	case opCancel:
		return "cancel"
	case opCheck:
		return "check"
	default:
		return "none"
	}
}

type result struct {
	op         opKind
	suborderID string

	id     string
	amount decimal.Decimal
	cancel CancelResult
	check  CheckResult
	err    error
}

// LimitOrder 一个逻辑限价单。所有状态由单个执行协程持有，
// 对外的改单入口只投递命令，不等待交易所结果。
type LimitOrder struct {
	id       string
	side     Side
	postOnly bool
	exch     Exchange
	cfg      Config
	log      *zap.Logger
	sink     EventSink
	machine  *StateMachine

	inbox   *mailbox
	results chan result
	closed  chan struct{} // 进入终态或失败后关闭，之后的改单直接丢弃
	done    chan struct{} // 汇总完成（或失败）后关闭

	snap    atomic.Pointer[Snapshot]
	summary *Summary
	err     error

	// 以下字段仅由执行协程访问
	status    Status
	price     decimal.Decimal
	amount    decimal.Decimal
	filled    decimal.Decimal
	suborders []*suborder
	current   *suborder
	pending   pendingIntents
	inflight  opKind
	checking  bool
	amending  intentKind
	pollTimer *time.Timer
	pollC     <-chan time.Time
	finished  bool
}

// Create 校验并归一化参数，然后在后台提交首个子订单。
// postOnly 订单若会穿越盘口，直接返回 ErrCrossesBook，不调用交易所。
func Create(ctx context.Context, exch Exchange, p CreateParams, cfg Config) (*LimitOrder, error) {
	if !p.Side.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSide, p.Side)
	}
	cfg = cfg.withDefaults()

	price := p.Price.Decimal
	if !p.Price.Valid {
		if p.Side == SideBuy {
			price = p.Ticker.Bid.Sub(cfg.PriceOffset.Decimal)
		} else {
			price = p.Ticker.Ask.Add(cfg.PriceOffset.Decimal)
		}
	}
	price = exch.RoundPrice(price)
	amount := exch.RoundAmount(p.Amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	if p.PostOnly && crossesBook(p.Side, price, p.Ticker) {
		metrics.OrdersRejectedLocal.Inc()
		return nil, fmt.Errorf("%w: %s %s (bid %s, ask %s)", ErrCrossesBook, p.Side, price, p.Ticker.Bid, p.Ticker.Ask)
	}

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	o := &LimitOrder{
		id:       id,
		side:     p.Side,
		postOnly: p.PostOnly,
		exch:     exch,
		cfg:      cfg,
		log:      cfg.Logger.With(zap.String("order_id", id), zap.String("side", string(p.Side))),
		sink:     cfg.Sink,
		machine:  defaultMachine,
		inbox:    newMailbox(),
		results:  make(chan result, 1),
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
		status:   StatusSubmitted,
		price:    price,
		amount:   amount,
		filled:   decimal.Zero,
	}
	o.publish()
	go o.run(ctx)
	return o, nil
}

// crossesBook 使用订单自身的方向判断；盘口价缺失（为零）时不做检查。
func crossesBook(side Side, price decimal.Decimal, t Ticker) bool {
	switch side {
	case SideBuy:
		return t.Ask.IsPositive() && price.GreaterThanOrEqual(t.Ask)
	case SideSell:
		return t.Bid.IsPositive() && price.LessThanOrEqual(t.Bid)
	}
	return false
}

func (o *LimitOrder) ID() string { return o.id }

func (o *LimitOrder) Side() Side { return o.side }

func (o *LimitOrder) PostOnly() bool { return o.postOnly }

// Snapshot 返回最近一次状态变化后的只读视图。
func (o *LimitOrder) Snapshot() Snapshot { return *o.snap.Load() }

func (o *LimitOrder) Status() Status { return o.snap.Load().Status }

// Done 在订单结束（汇总完成或失败）后关闭。
func (o *LimitOrder) Done() <-chan struct{} { return o.done }

// Wait 阻塞直到订单结束，返回成交汇总或导致订单终止的错误。
func (o *LimitOrder) Wait(ctx context.Context) (Summary, error) {
	select {
	case <-o.done:
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}
	if o.err != nil {
		return Summary{}, o.err
	}
	return *o.summary, nil
}

// MovePrice 请求改价。已有交易所调用在途时请求被推迟，同类请求后到覆盖先到。
func (o *LimitOrder) MovePrice(price decimal.Decimal) {
	o.send(intent{kind: intentPrice, target: price})
}

// MoveAmount 请求改量。新数量包含已成交部分，重挂时只提交剩余量。
func (o *LimitOrder) MoveAmount(amount decimal.Decimal) {
	o.send(intent{kind: intentAmount, target: amount})
}

// Cancel 请求撤单，优先级高于任何未应用的改价/改量。
func (o *LimitOrder) Cancel() {
	o.send(intent{kind: intentCancel})
}

// send 从不阻塞调用方：请求进入邮箱，同类请求在执行协程取走前合并。
func (o *LimitOrder) send(it intent) {
	select {
	case <-o.closed:
		return
	default:
	}
	o.inbox.push(it)
}

func (o *LimitOrder) run(ctx context.Context) {
	defer close(o.done)

	metrics.IncrementStatus(string(o.status))
	o.emit(Event{Kind: EventStatus, Status: o.status})
	o.log.Info("order submitted",
		zap.String("price", o.price.String()),
		zap.String("amount", o.amount.String()),
		zap.Bool("post_only", o.postOnly))
	o.submitRemaining(ctx)

	for !o.finished {
		select {
		case <-ctx.Done():
			o.fail(ctx.Err())
		case <-o.inbox.ready:
			o.drainCommands(ctx)
		case r := <-o.results:
			// 结果到达前已投递的命令先登记，保证请求顺序不被 select 打乱
			o.drainCommands(ctx)
			o.handleResult(ctx, r)
		case <-o.pollC:
			o.pollC = nil
			o.pollTimer = nil
			o.checkOrder(ctx)
		}
	}
	o.stopPoll()
	if o.err != nil {
		return
	}

	summary, err := o.createSummary(ctx)
	if err != nil {
		o.err = err
		o.publish()
		o.log.Error("create summary failed", zap.Error(err))
		o.emit(Event{Kind: EventError, Err: err})
		return
	}
	o.summary = &summary
	o.emit(Event{Kind: EventSummary, Summary: &summary})
}

func (o *LimitOrder) drainCommands(ctx context.Context) {
	for _, it := range o.inbox.take() {
		o.handleIntent(ctx, it)
	}
}

func (o *LimitOrder) handleIntent(ctx context.Context, it intent) {
	if o.finished {
		return
	}
	switch it.kind {
	case intentCancel:
		o.cancel(ctx)
	case intentAmount:
		o.moveAmount(ctx, it.target)
	case intentPrice:
		o.movePrice(ctx, it.target)
	}
}

// busy 是否有交易所调用在途（提交、撤单或轮询）。
func (o *LimitOrder) busy() bool {
	return o.inflight != opNone || o.checking ||
		o.status == StatusSubmitted || o.status == StatusMoving
}

func (o *LimitOrder) deferIntent(it intent) {
	o.pending.put(it)
	metrics.IncrementDeferred(it.kind.String())
	o.log.Debug("amendment deferred",
		zap.String("kind", it.kind.String()),
		zap.String("target", it.target.String()),
		zap.String("inflight", o.inflight.String()))
}

func (o *LimitOrder) movePrice(ctx context.Context, target decimal.Decimal) {
	if o.status.Terminal() {
		return
	}
	price := o.exch.RoundPrice(target)
	if price.Equal(o.price) {
		o.pending.drop(intentPrice)
		return
	}
	if !price.IsPositive() {
		o.log.Warn("ignoring non-positive price", zap.String("price", price.String()))
		return
	}
	if o.busy() {
		o.deferIntent(intent{kind: intentPrice, target: target})
		return
	}
	o.price = price
	o.amend(ctx, intentPrice)
}

func (o *LimitOrder) moveAmount(ctx context.Context, target decimal.Decimal) {
	if o.status.Terminal() {
		return
	}
	amount := o.exch.RoundAmount(target)
	if amount.Equal(o.amount) {
		o.pending.drop(intentAmount)
		return
	}
	if !amount.IsPositive() {
		o.log.Warn("ignoring non-positive amount", zap.String("amount", amount.String()))
		return
	}
	if o.busy() {
		o.deferIntent(intent{kind: intentAmount, target: target})
		return
	}
	o.amount = amount
	o.amend(ctx, intentAmount)
}

func (o *LimitOrder) cancel(ctx context.Context) {
	if o.status.Terminal() {
		return
	}
	if o.busy() {
		o.deferIntent(intent{kind: intentCancel})
		return
	}
	o.amend(ctx, intentCancel)
}

// amend 撤掉当前子订单；改价/改量在撤单确认后重挂。
func (o *LimitOrder) amend(ctx context.Context, kind intentKind) {
	o.stopPoll()
	o.amending = kind
	if kind != intentCancel {
		if !o.setStatus(StatusMoving) {
			return
		}
	}
	metrics.IncrementApplied(kind.String())
	o.log.Info("amendment applied",
		zap.String("kind", kind.String()),
		zap.String("price", o.price.String()),
		zap.String("amount", o.amount.String()),
		zap.String("suborder_id", o.current.id))

	id := o.current.id
	o.call(ctx, opCancel, id, func(ctx context.Context) result {
		res, err := o.exch.CancelOrder(ctx, id)
		return result{cancel: res, err: err}
	})
}

// drainPending 按 CANCEL > AMOUNT > PRICE 应用被推迟的请求；
// 若因此发起了新的交易所调用或进入终态，返回 true。
func (o *LimitOrder) drainPending(ctx context.Context) bool {
	for !o.pending.empty() {
		it, _ := o.pending.pop()
		if it.kind == intentCancel {
			o.pending.clear()
		}
		o.handleIntent(ctx, it)
		if o.finished || o.busy() {
			return true
		}
	}
	return false
}

// submitRemaining 提交剩余未成交量；总量已全部成交时直接进入 FILLED。
func (o *LimitOrder) submitRemaining(ctx context.Context) {
	already := o.totalFilled()
	remaining := o.exch.RoundAmount(o.amount.Sub(already))
	if !remaining.IsPositive() {
		o.log.Info("nothing left to work",
			zap.String("amount", o.amount.String()),
			zap.String("filled", already.String()))
		o.complete(StatusFilled, true)
		return
	}
	req := SubmitRequest{
		Side:          o.side,
		Amount:        remaining,
		Price:         o.price,
		AlreadyFilled: already,
		PostOnly:      o.postOnly,
		ClientID:      uuid.NewString(),
	}
	o.call(ctx, opSubmit, "", func(ctx context.Context) result {
		id, err := o.exch.Submit(ctx, req)
		return result{id: id, amount: remaining, err: err}
	})
}

// call 在独立协程里执行一次交易所调用，结果回送到执行协程。同一时刻至多一个。
func (o *LimitOrder) call(ctx context.Context, op opKind, suborderID string, fn func(context.Context) result) {
	o.inflight = op
	if op == opCheck {
		o.checking = true
	}
	go func() {
		start := time.Now()
		r := fn(ctx)
		metrics.ObserveGatewayCall(op.String(), r.err, time.Since(start))
		r.op = op
		r.suborderID = suborderID
		o.results <- r
	}()
}

func (o *LimitOrder) handleResult(ctx context.Context, r result) {
	o.inflight = opNone
	switch r.op {
	case opSubmit:
		o.handleCreate(ctx, r)
	case opCancel:
		o.handleCancel(ctx, r)
	case opCheck:
		o.handleCheck(ctx, r)
	}
}

func (o *LimitOrder) handleCreate(ctx context.Context, r result) {
	if o.status.Terminal() {
		o.log.Warn("discarding stale submit response", zap.String("suborder_id", r.id))
		return
	}
	if r.err != nil {
		o.fail(&GatewayError{Op: "submit", Err: r.err})
		return
	}
	sub := &suborder{id: r.id, amount: r.amount, filled: decimal.Zero, placedAt: time.Now()}
	o.suborders = append(o.suborders, sub)
	o.current = sub
	o.log.Info("suborder placed",
		zap.String("suborder_id", sub.id),
		zap.String("price", o.price.String()),
		zap.String("amount", sub.amount.String()))

	if !o.setStatus(StatusOpen) {
		return
	}
	if o.drainPending(ctx) {
		return
	}
	o.schedulePoll()
}

func (o *LimitOrder) handleCancel(ctx context.Context, r result) {
	if o.status.Terminal() {
		o.log.Warn("discarding stale cancel response", zap.String("suborder_id", r.suborderID))
		return
	}
	if r.err != nil {
		o.fail(&GatewayError{Op: "cancel", SuborderID: r.suborderID, Err: r.err})
		return
	}
	o.recordFill(r.cancel.FilledAmount)

	if r.cancel.Filled {
		// 撤单落地前已被成交：以最后的挂单价记为成交价，不再重挂
		o.recordFill(o.current.amount)
		o.complete(StatusFilled, true)
		return
	}
	if o.amending == intentCancel {
		o.complete(StatusCancelled, false)
		return
	}
	o.submitRemaining(ctx)
}

// recordFill 更新当前子订单的成交量；只增不减。
func (o *LimitOrder) recordFill(subFilled decimal.Decimal) {
	if o.current == nil || !subFilled.GreaterThan(o.current.filled) {
		return
	}
	delta := subFilled.Sub(o.current.filled)
	o.current.filled = subFilled
	o.filled = o.totalFilled()
	metrics.AddFilled(string(o.side), delta.InexactFloat64())
	o.publish()
	o.log.Info("fill progress",
		zap.String("suborder_id", o.current.id),
		zap.String("filled", o.filled.String()))
	o.emit(Event{Kind: EventFill, Filled: o.filled})
}

func (o *LimitOrder) totalFilled() decimal.Decimal {
	total := decimal.Zero
	for _, sub := range o.suborders {
		total = total.Add(sub.filled)
	}
	return total
}

func (o *LimitOrder) setStatus(st Status) bool {
	if err := o.machine.ValidateTransition(o.status, st); err != nil {
		o.fail(err)
		return false
	}
	if o.status == st {
		return true
	}
	o.status = st
	metrics.IncrementStatus(string(st))
	o.publish()
	o.emit(Event{Kind: EventStatus, Status: st})
	return true
}

// complete 进入终态；之后的改单请求与迟到的响应都被丢弃。
func (o *LimitOrder) complete(st Status, completed bool) {
	o.stopPoll()
	o.pending.clear()
	if !o.setStatus(st) {
		return
	}
	o.finished = true
	close(o.closed)
	o.log.Info("order finished",
		zap.String("status", string(st)),
		zap.Bool("filled", completed),
		zap.String("price", o.price.String()),
		zap.String("filled_amount", o.filled.String()))
	o.emit(Event{Kind: EventFinish, Status: st, Completed: completed, Price: o.price})
}

// fail 交易所故障对订单是致命的：停止推进并把错误交给所有者。
func (o *LimitOrder) fail(err error) {
	o.stopPoll()
	o.pending.clear()
	o.err = err
	o.finished = true
	close(o.closed)
	o.publish()
	o.log.Error("order failed", zap.String("status", string(o.status)), zap.Error(err))
	o.emit(Event{Kind: EventError, Err: err})
}

func (o *LimitOrder) publish() {
	s := &Snapshot{
		ID:       o.id,
		Side:     o.side,
		Price:    o.price,
		Amount:   o.amount,
		Filled:   o.filled,
		Status:   o.status,
		PostOnly: o.postOnly,
	}
	if o.current != nil {
		s.SuborderID = o.current.id
	}
	s.Suborders = make([]SuborderView, 0, len(o.suborders))
	for _, sub := range o.suborders {
		s.Suborders = append(s.Suborders, SuborderView{
			ID:       sub.id,
			Amount:   sub.amount,
			Filled:   sub.filled,
			PlacedAt: sub.placedAt,
		})
	}
	if o.err != nil {
		s.LastError = o.err.Error()
	}
	o.snap.Store(s)
}

func (o *LimitOrder) emit(e Event) {
	if o.sink == nil {
		return
	}
	e.OrderID = o.id
	if e.Status == "" {
		e.Status = o.status
	}
	o.sink(e)
}
