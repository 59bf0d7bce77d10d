package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limit-order-go/gateway"
	"limit-order-go/order"
)

type staticTicker struct {
	ticker order.Ticker
	ok     bool
	age    time.Duration
}

func (s staticTicker) Ticker(string) (order.Ticker, bool) { return s.ticker, s.ok }

func (s staticTicker) Staleness(string) time.Duration { return s.age }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	router *gin.Engine
	paper  *gateway.PaperExchange
	mgr    *order.Manager
}

func newFixture(t *testing.T, ticker staticTicker) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	paper := gateway.NewPaperExchange(gateway.SymbolConstraints{TickSize: dec("0.01"), StepSize: dec("0.001")}, nil)
	paper.OnTicker(dec("100"), dec("101"))
	mgr := order.NewManager(paper, order.Config{CheckInterval: 5 * time.Millisecond, SummaryInterval: time.Millisecond})
	require.NoError(t, mgr.Start(context.Background()))
	t.Cleanup(func() { _ = mgr.Stop() })

	r := gin.New()
	NewHandler(mgr, ticker, "BTCUSDT", time.Second).Register(r)
	return &fixture{router: r, paper: paper, mgr: mgr}
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) get(t *testing.T, id string) orderView {
	t.Helper()
	w := f.do(http.MethodGet, "/orders/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var v orderView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

var liveTicker = staticTicker{ticker: order.Ticker{Bid: dec("100"), Ask: dec("101")}, ok: true}

func TestCreateMoveAndFill(t *testing.T) {
	f := newFixture(t, liveTicker)

	w := f.do(http.MethodPost, "/orders", gin.H{"id": "o-1", "side": "buy", "amount": "2"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created orderView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "o-1", created.ID)
	assert.True(t, created.Price.Equal(dec("99")))

	require.Eventually(t, func() bool { return f.get(t, "o-1").Status == order.StatusOpen }, time.Second, 2*time.Millisecond)

	w = f.do(http.MethodPost, "/orders/o-1/price", gin.H{"price": "101"})
	assert.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool { return f.get(t, "o-1").Summary != nil }, 2*time.Second, 2*time.Millisecond)
	v := f.get(t, "o-1")
	assert.Equal(t, order.StatusFilled, v.Status)
	assert.True(t, v.Summary.Amount.Equal(dec("2")))
	assert.True(t, v.Summary.Price.Equal(dec("101")))
	assert.Len(t, v.Suborders, 2)

	w = f.do(http.MethodGet, "/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []orderView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t, liveTicker)
	w := f.do(http.MethodPost, "/orders", gin.H{"id": "o-2", "side": "sell", "amount": "1", "price": "105"})
	require.Equal(t, http.StatusCreated, w.Code)

	assert.Equal(t, http.StatusAccepted, f.do(http.MethodDelete, "/orders/o-2", nil).Code)
	require.Eventually(t, func() bool { return f.get(t, "o-2").Status == order.StatusCancelled }, time.Second, 2*time.Millisecond)

	w = f.do(http.MethodPost, "/orders/o-2/amount", gin.H{"amount": "3"})
	assert.Equal(t, http.StatusAccepted, w.Code, "amendments after terminal are accepted and ignored")
	assert.True(t, f.get(t, "o-2").Amount.Equal(dec("1")))
}

func TestCreateErrors(t *testing.T) {
	f := newFixture(t, liveTicker)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/orders", gin.H{"amount": "1"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/orders", gin.H{"side": "hold", "amount": "1"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/orders", gin.H{"side": "buy", "amount": "0"}).Code)
	assert.Equal(t, http.StatusConflict,
		f.do(http.MethodPost, "/orders", gin.H{"side": "buy", "amount": "1", "price": "101", "postOnly": true}).Code)
}

func TestCreateWithoutMarketData(t *testing.T) {
	f := newFixture(t, staticTicker{})
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodPost, "/orders", gin.H{"side": "buy", "amount": "1"}).Code)
	assert.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/orders", gin.H{"side": "buy", "amount": "1", "price": "90"}).Code)

	// postOnly 没有盘口就无法检查是否穿越
	w := f.do(http.MethodPost, "/orders", gin.H{"side": "buy", "amount": "1", "price": "90", "postOnly": true})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Len(t, f.mgr.List(), 1)
}

func TestCreateRejectsStaleMarketData(t *testing.T) {
	stale := liveTicker
	stale.age = 2 * time.Second
	f := newFixture(t, stale)

	assert.Equal(t, http.StatusServiceUnavailable,
		f.do(http.MethodPost, "/orders", gin.H{"side": "buy", "amount": "1", "price": "90", "postOnly": true}).Code)
	assert.Equal(t, http.StatusServiceUnavailable,
		f.do(http.MethodPost, "/orders", gin.H{"side": "buy", "amount": "1"}).Code)
	// 显式价格且非 postOnly 不依赖盘口
	assert.Equal(t, http.StatusCreated,
		f.do(http.MethodPost, "/orders", gin.H{"side": "buy", "amount": "1", "price": "90"}).Code)
}

func TestUnknownOrderAndValidation(t *testing.T) {
	f := newFixture(t, liveTicker)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/orders/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/orders/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/orders/nope/price", gin.H{"price": "1"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/orders/nope/price", gin.H{"price": "-1"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/orders/nope/amount", gin.H{}).Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, liveTicker)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", nil).Code)
	require.NoError(t, f.mgr.Stop())
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/health", nil).Code)
}
