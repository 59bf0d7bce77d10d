package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limit-order-go/order"
)

// flakyExchange 在 err 非空时让 CheckOrder 失败。
type flakyExchange struct {
	*PaperExchange
	err error
}

func (f *flakyExchange) CheckOrder(ctx context.Context, id string) (order.CheckResult, error) {
	if f.err != nil {
		return order.CheckResult{}, f.err
	}
	return f.PaperExchange.CheckOrder(ctx, id)
}

func newBreakerFixture(t *testing.T) (*BreakerExchange, *flakyExchange, *time.Time, string) {
	t.Helper()
	inner := &flakyExchange{PaperExchange: newPaper()}
	id, err := inner.Submit(context.Background(), order.SubmitRequest{Side: order.SideBuy, Amount: dec("1"), Price: dec("99")})
	require.NoError(t, err)

	ex := NewBreakerExchange(inner, BreakerConfig{Threshold: 3, Cooldown: time.Minute, Probes: 1}, nil)
	now := time.Unix(1700000000, 0)
	ex.Breaker.now = func() time.Time { return now }
	return ex, inner, &now, id
}

func TestBreakerOpensAfterConsecutiveFaults(t *testing.T) {
	ex, inner, _, id := newBreakerFixture(t)
	ctx := context.Background()
	inner.err = errors.New("connection reset")

	for i := 0; i < 3; i++ {
		_, err := ex.CheckOrder(ctx, id)
		require.ErrorIs(t, err, inner.err)
	}
	assert.Equal(t, BreakerOpen, ex.Breaker.State())
	assert.ErrorIs(t, ex.Health(), ErrBreakerOpen)

	inner.err = nil
	_, err := ex.CheckOrder(ctx, id)
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestBreakerIgnoresBusinessRejections(t *testing.T) {
	ex, inner, _, id := newBreakerFixture(t)
	inner.err = &APIError{Status: http.StatusBadRequest, Code: -2010, Msg: "insufficient balance"}

	for i := 0; i < 5; i++ {
		_, _ = ex.CheckOrder(context.Background(), id)
	}
	assert.Equal(t, BreakerClosed, ex.Breaker.State())

	inner.err = &APIError{Status: http.StatusBadGateway}
	for i := 0; i < 3; i++ {
		_, _ = ex.CheckOrder(context.Background(), id)
	}
	assert.Equal(t, BreakerOpen, ex.Breaker.State())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	ex, inner, now, id := newBreakerFixture(t)
	ctx := context.Background()
	inner.err = errors.New("timeout")
	for i := 0; i < 3; i++ {
		_, _ = ex.CheckOrder(ctx, id)
	}
	require.Equal(t, BreakerOpen, ex.Breaker.State())

	// 冷却后探测失败，重新打开
	*now = now.Add(time.Minute)
	_, err := ex.CheckOrder(ctx, id)
	require.ErrorIs(t, err, inner.err)
	assert.Equal(t, BreakerOpen, ex.Breaker.State())

	*now = now.Add(time.Minute)
	inner.err = nil
	res, err := ex.CheckOrder(ctx, id)
	require.NoError(t, err)
	assert.True(t, res.Open)
	assert.Equal(t, BreakerClosed, ex.Breaker.State())
	assert.NoError(t, ex.Health())
}

func TestBreakerCancelledCallsDoNotCount(t *testing.T) {
	ex, inner, _, id := newBreakerFixture(t)
	inner.err = context.Canceled
	for i := 0; i < 5; i++ {
		_, _ = ex.CheckOrder(context.Background(), id)
	}
	assert.Equal(t, BreakerClosed, ex.Breaker.State())

	ex.Breaker.Reset()
	assert.Equal(t, "CLOSED", ex.Breaker.State().String())
}
