package order

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instantExchange 立即应答的交易所：挂单一直在簿上，撤单总能成功。
type instantExchange struct {
	mu     sync.Mutex
	seq    int
	placed []SubmitRequest
}

func (e *instantExchange) RoundPrice(p decimal.Decimal) decimal.Decimal  { return p.Round(2) }
func (e *instantExchange) RoundAmount(a decimal.Decimal) decimal.Decimal { return a.Round(4) }

func (e *instantExchange) Submit(_ context.Context, req SubmitRequest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	e.placed = append(e.placed, req)
	return fmt.Sprintf("X%d", e.seq), nil
}

func (e *instantExchange) CancelOrder(context.Context, string) (CancelResult, error) {
	return CancelResult{}, nil
}

func (e *instantExchange) CheckOrder(context.Context, string) (CheckResult, error) {
	return CheckResult{Open: true, FilledAmount: decimal.Zero}, nil
}

func (e *instantExchange) GetOrder(context.Context, string) (Trade, error) {
	return Trade{}, nil
}

func (e *instantExchange) submits() []SubmitRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]SubmitRequest(nil), e.placed...)
}

func newTestManager(t *testing.T) (*Manager, *instantExchange) {
	t.Helper()
	ex := &instantExchange{}
	m := NewManager(ex, Config{CheckInterval: 10 * time.Millisecond})
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop() })
	return m, ex
}

func TestManagerRequiresStart(t *testing.T) {
	m := NewManager(&instantExchange{}, Config{})
	_, err := m.Submit(CreateParams{Side: SideBuy, Amount: d("1"), Ticker: defaultTicker})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Error(t, m.Health())
}

func TestManagerSubmitMoveCancel(t *testing.T) {
	m, ex := newTestManager(t)
	require.NoError(t, m.Health())

	o, err := m.Submit(CreateParams{ID: "order-1", Side: SideBuy, Amount: d("2"), Ticker: defaultTicker})
	require.NoError(t, err)
	assert.Equal(t, "order-1", o.ID())
	waitStatus(t, o, StatusOpen)

	require.NoError(t, m.MovePrice("order-1", d("98.5")))
	require.Eventually(t, func() bool { return len(ex.submits()) == 2 }, 2*time.Second, time.Millisecond)
	assert.True(t, ex.submits()[1].Price.Equal(d("98.5")))
	waitStatus(t, o, StatusOpen)

	require.NoError(t, m.MoveAmount("order-1", d("3")))
	require.Eventually(t, func() bool { return len(ex.submits()) == 3 }, 2*time.Second, time.Millisecond)
	assert.True(t, ex.submits()[2].Amount.Equal(d("3")))
	waitStatus(t, o, StatusOpen)

	require.NoError(t, m.Cancel("order-1"))
	waitStatus(t, o, StatusCancelled)

	st, ok := m.Status("order-1")
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, st)
}

func TestManagerUnknownOrder(t *testing.T) {
	m, _ := newTestManager(t)
	assert.ErrorIs(t, m.Cancel("missing"), ErrUnknownOrder)
	assert.ErrorIs(t, m.MovePrice("missing", d("1")), ErrUnknownOrder)
	assert.ErrorIs(t, m.MoveAmount("missing", d("1")), ErrUnknownOrder)
	_, ok := m.Status("missing")
	assert.False(t, ok)
}

func TestManagerRejectsInvalidCreate(t *testing.T) {
	m, ex := newTestManager(t)
	_, err := m.Submit(CreateParams{
		Side: SideBuy, Amount: d("1"), PostOnly: true,
		Price: decimal.NewNullDecimal(d("200")), Ticker: defaultTicker,
	})
	assert.ErrorIs(t, err, ErrCrossesBook)
	assert.Empty(t, m.List())
	assert.Empty(t, ex.submits())
}

func TestManagerListAndRetention(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetRetention(0)

	a, err := m.Submit(CreateParams{ID: "b", Side: SideSell, Amount: d("1"), Ticker: defaultTicker})
	require.NoError(t, err)
	_, err = m.Submit(CreateParams{ID: "a", Side: SideBuy, Amount: d("1"), Ticker: defaultTicker})
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	waitStatus(t, a, StatusOpen)
	require.NoError(t, m.Cancel("b"))
	require.Eventually(t, func() bool {
		_, ok := m.Get("b")
		return !ok
	}, 2*time.Second, time.Millisecond)
	assert.Len(t, m.List(), 1)
}

func TestManagerStopCancelsOrders(t *testing.T) {
	ex := &instantExchange{}
	m := NewManager(ex, Config{CheckInterval: 10 * time.Millisecond})
	require.NoError(t, m.Start(context.Background()))

	o, err := m.Submit(CreateParams{Side: SideBuy, Amount: d("1"), Ticker: defaultTicker})
	require.NoError(t, err)
	waitStatus(t, o, StatusOpen)

	require.NoError(t, m.Stop())
	select {
	case <-o.Done():
	default:
		t.Fatal("order should be done after Stop")
	}
	_, err = o.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Error(t, m.Health())

	_, err = m.Submit(CreateParams{Side: SideBuy, Amount: d("1"), Ticker: defaultTicker})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManagerSetIntervalsKeepsSummaryInterval(t *testing.T) {
	m := NewManager(&instantExchange{}, Config{CheckInterval: time.Second, SummaryInterval: 50 * time.Millisecond})

	m.SetIntervals(2*time.Second, 50*time.Millisecond)
	assert.Equal(t, 2*time.Second, m.cfg.CheckInterval)
	assert.Equal(t, 50*time.Millisecond, m.cfg.SummaryInterval)

	// 0 表示跟随轮询间隔
	m.SetIntervals(3*time.Second, 0)
	assert.Equal(t, 3*time.Second, m.cfg.CheckInterval)
	assert.Equal(t, 3*time.Second, m.cfg.SummaryInterval)

	m.SetIntervals(0, 10*time.Millisecond)
	assert.Equal(t, 3*time.Second, m.cfg.CheckInterval)
	assert.Equal(t, 10*time.Millisecond, m.cfg.SummaryInterval)
}
