package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// call 一次被拦截的交易所调用，测试通过 reply 决定何时、如何返回。
type call struct {
	op    string
	id    string
	req   SubmitRequest
	reply chan reply
}

type reply struct {
	id     string
	cancel CancelResult
	check  CheckResult
	trade  Trade
	err    error
}

// scriptedExchange 每次调用都阻塞，直到测试给出回复。
type scriptedExchange struct {
	calls chan *call
}

func newScriptedExchange() *scriptedExchange {
	return &scriptedExchange{calls: make(chan *call, 16)}
}

func (e *scriptedExchange) RoundPrice(p decimal.Decimal) decimal.Decimal  { return p.Round(2) }
func (e *scriptedExchange) RoundAmount(a decimal.Decimal) decimal.Decimal { return a.Round(4) }

func (e *scriptedExchange) do(ctx context.Context, c *call) reply {
	c.reply = make(chan reply, 1)
	e.calls <- c
	select {
	case r := <-c.reply:
		return r
	case <-ctx.Done():
		return reply{err: ctx.Err()}
	}
}

func (e *scriptedExchange) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	r := e.do(ctx, &call{op: "submit", req: req})
	return r.id, r.err
}

func (e *scriptedExchange) CancelOrder(ctx context.Context, id string) (CancelResult, error) {
	r := e.do(ctx, &call{op: "cancel", id: id})
	return r.cancel, r.err
}

func (e *scriptedExchange) CheckOrder(ctx context.Context, id string) (CheckResult, error) {
	r := e.do(ctx, &call{op: "check", id: id})
	return r.check, r.err
}

func (e *scriptedExchange) GetOrder(ctx context.Context, id string) (Trade, error) {
	r := e.do(ctx, &call{op: "get_order", id: id})
	return r.trade, r.err
}

func (e *scriptedExchange) expect(t *testing.T, op string) *call {
	t.Helper()
	select {
	case c := <-e.calls:
		require.Equal(t, op, c.op, "unexpected gateway call (id=%s)", c.id)
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", op)
	}
	return nil
}

func (e *scriptedExchange) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case c := <-e.calls:
		t.Fatalf("unexpected gateway call %s %s", c.op, c.id)
	case <-time.After(wait):
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) sink(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) byKind(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) statuses() []Status {
	var out []Status
	for _, e := range r.byKind(EventStatus) {
		out = append(out, e.Status)
	}
	return out
}

func (r *recorder) fills() []string {
	var out []string
	for _, e := range r.byKind(EventFill) {
		out = append(out, e.Filled.String())
	}
	return out
}

var defaultTicker = Ticker{Bid: decimal.NewFromInt(100), Ask: decimal.NewFromInt(101)}

func newTestOrder(t *testing.T, ex Exchange, p CreateParams, cfg Config) (*LimitOrder, *recorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rec := &recorder{}
	cfg.Sink = rec.sink
	if p.Ticker == (Ticker{}) {
		p.Ticker = defaultTicker
	}
	o, err := Create(ctx, ex, p, cfg)
	require.NoError(t, err)
	return o, rec
}

// openOrder 创建买单（价格 99）并确认首个子订单 S1。
func openOrder(t *testing.T, ex *scriptedExchange, cfg Config) (*LimitOrder, *recorder) {
	t.Helper()
	o, rec := newTestOrder(t, ex, CreateParams{Side: SideBuy, Amount: d("10")}, cfg)
	ex.expect(t, "submit").reply <- reply{id: "S1"}
	waitStatus(t, o, StatusOpen)
	return o, rec
}

func waitStatus(t *testing.T, o *LimitOrder, st Status) {
	t.Helper()
	require.Eventually(t, func() bool { return o.Status() == st }, 2*time.Second, time.Millisecond,
		"status stuck at %s, want %s", o.Status(), st)
}

func wait(t *testing.T, o *LimitOrder) (Summary, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return o.Wait(ctx)
}
