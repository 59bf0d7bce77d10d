package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"limit-order-go/order"
)

// OrderService 由 order.Manager 实现。
type OrderService interface {
	Submit(p order.CreateParams) (*order.LimitOrder, error)
	Get(id string) (*order.LimitOrder, bool)
	MovePrice(id string, price decimal.Decimal) error
	MoveAmount(id string, amount decimal.Decimal) error
	Cancel(id string) error
	List() []order.Snapshot
	Health() error
}

// TickerSource 提供创建订单时的盘口快照。
type TickerSource interface {
	Ticker(symbol string) (order.Ticker, bool)
	Staleness(symbol string) time.Duration
}

type createRequest struct {
	ID       string              `json:"id"`
	Side     order.Side          `json:"side" binding:"required"`
	Amount   decimal.Decimal     `json:"amount"`
	Price    decimal.NullDecimal `json:"price"`
	PostOnly bool                `json:"postOnly"`
}

type priceRequest struct {
	Price decimal.Decimal `json:"price"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type suborderView struct {
	ID       string          `json:"id"`
	Amount   decimal.Decimal `json:"amount"`
	Filled   decimal.Decimal `json:"filled"`
	PlacedAt time.Time       `json:"placedAt"`
}

type summaryView struct {
	Price      decimal.Decimal            `json:"price"`
	Amount     decimal.Decimal            `json:"amount"`
	Date       time.Time                  `json:"date"`
	Side       order.Side                 `json:"side"`
	Orders     int                        `json:"orders"`
	Fees       map[string]decimal.Decimal `json:"fees,omitempty"`
	FeePercent *decimal.Decimal           `json:"feePercent,omitempty"`
}

type orderView struct {
	ID         string          `json:"id"`
	Side       order.Side      `json:"side"`
	Status     order.Status    `json:"status"`
	Price      decimal.Decimal `json:"price"`
	Amount     decimal.Decimal `json:"amount"`
	Filled     decimal.Decimal `json:"filled"`
	PostOnly   bool            `json:"postOnly"`
	SuborderID string          `json:"suborderId,omitempty"`
	Suborders  []suborderView  `json:"suborders"`
	Error      string          `json:"error,omitempty"`
	Summary    *summaryView    `json:"summary,omitempty"`
}

func newOrderView(s order.Snapshot) orderView {
	v := orderView{
		ID:         s.ID,
		Side:       s.Side,
		Status:     s.Status,
		Price:      s.Price,
		Amount:     s.Amount,
		Filled:     s.Filled,
		PostOnly:   s.PostOnly,
		SuborderID: s.SuborderID,
		Suborders:  make([]suborderView, 0, len(s.Suborders)),
		Error:      s.LastError,
	}
	for _, sub := range s.Suborders {
		v.Suborders = append(v.Suborders, suborderView(sub))
	}
	return v
}

func newSummaryView(s order.Summary) *summaryView {
	v := &summaryView{
		Price:  s.Price,
		Amount: s.Amount,
		Date:   s.Date,
		Side:   s.Side,
		Orders: s.Orders,
		Fees:   s.Fees,
	}
	if s.FeePercent.Valid {
		fp := s.FeePercent.Decimal
		v.FeePercent = &fp
	}
	return v
}

// Handler 订单 HTTP 接口。
type Handler struct {
	orders   OrderService
	market   TickerSource
	symbol   string
	maxStale time.Duration // 0 表示不检查快照新鲜度
}

func NewHandler(orders OrderService, market TickerSource, symbol string, maxStale time.Duration) *Handler {
	return &Handler{orders: orders, market: market, symbol: symbol, maxStale: maxStale}
}

// Register 挂载路由。
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.health)
	r.POST("/orders", h.createOrder)
	r.GET("/orders", h.listOrders)
	r.GET("/orders/:id", h.getOrder)
	r.POST("/orders/:id/price", h.movePrice)
	r.POST("/orders/:id/amount", h.moveAmount)
	r.DELETE("/orders/:id", h.cancelOrder)
}

func (h *Handler) health(c *gin.Context) {
	if err := h.orders.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) createOrder(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order payload"})
		return
	}

	// 推导价格和 postOnly 检查都依赖盘口快照
	ticker, ok := h.market.Ticker(h.symbol)
	if req.PostOnly || !req.Price.Valid {
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No market data for price derivation or postOnly check"})
			return
		}
		if h.maxStale > 0 {
			if age := h.market.Staleness(h.symbol); age > h.maxStale {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Market data is stale", "age": age.String()})
				return
			}
		}
	}

	o, err := h.orders.Submit(order.CreateParams{
		ID:       req.ID,
		Side:     req.Side,
		Amount:   req.Amount,
		Price:    req.Price,
		PostOnly: req.PostOnly,
		Ticker:   ticker,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, newOrderView(o.Snapshot()))
}

func (h *Handler) listOrders(c *gin.Context) {
	snaps := h.orders.List()
	out := make([]orderView, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, newOrderView(s))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getOrder(c *gin.Context) {
	o, ok := h.orders.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": order.ErrUnknownOrder.Error()})
		return
	}
	view := newOrderView(o.Snapshot())
	select {
	case <-o.Done():
		// 已结束：Wait 立即返回
		if s, err := o.Wait(context.Background()); err == nil {
			view.Summary = newSummaryView(s)
		}
	default:
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) movePrice(c *gin.Context) {
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Price.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Price must be positive"})
		return
	}
	h.accepted(c, h.orders.MovePrice(c.Param("id"), req.Price))
}

func (h *Handler) moveAmount(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Amount must be positive"})
		return
	}
	h.accepted(c, h.orders.MoveAmount(c.Param("id"), req.Amount))
}

func (h *Handler) cancelOrder(c *gin.Context) {
	h.accepted(c, h.orders.Cancel(c.Param("id")))
}

// accepted 改单只是投递请求，真正结果通过 GET 观察。
func (h *Handler) accepted(c *gin.Context, err error) {
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, order.ErrUnknownOrder):
		return http.StatusNotFound
	case errors.Is(err, order.ErrCrossesBook):
		return http.StatusConflict
	case errors.Is(err, order.ErrInvalidSide), errors.Is(err, order.ErrInvalidAmount), errors.Is(err, order.ErrInvalidPrice):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
