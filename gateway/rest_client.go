package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"limit-order-go/order"
)

// 交易所订单状态
const (
	statusNew             = "NEW"
	statusPartiallyFilled = "PARTIALLY_FILLED"
	statusFilled          = "FILLED"
)

// codeUnknownOrder 撤单时订单已不在簿上（通常是刚刚成交）。
const codeUnknownOrder = -2011

// APIError 交易所返回的业务错误。
type APIError struct {
	Status int
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange status %d code %d: %s", e.Status, e.Code, e.Msg)
}

// RESTClient 签名 REST 客户端，实现 order.Exchange。
// 每次调用先经过 Limiter；单次请求受 HTTPClient 超时约束，不做重试。
type RESTClient struct {
	BaseURL      string
	APIKey       string
	Secret       string
	Symbol       string
	RecvWindowMs int64
	HTTPClient   *http.Client
	Limiter      RateLimiter
	Constraints  SymbolConstraints
	// FeePercent 账户费率；交易所成交明细不带费率时用它填充汇总。
	FeePercent decimal.NullDecimal
	Logger     *zap.Logger
}

var _ order.Exchange = (*RESTClient)(nil)

type orderResp struct {
	OrderID     json.Number     `json:"orderId"`
	Status      string          `json:"status"`
	ExecutedQty decimal.Decimal `json:"executedQty"`
}

type tradeResp struct {
	Price           decimal.Decimal `json:"price"`
	Qty             decimal.Decimal `json:"qty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
	Time            int64           `json:"time"`
}

func (c *RESTClient) RoundPrice(price decimal.Decimal) decimal.Decimal {
	return c.Constraints.RoundPrice(price)
}

func (c *RESTClient) RoundAmount(amount decimal.Decimal) decimal.Decimal {
	return c.Constraints.RoundAmount(amount)
}

// Submit 调用 /api/v3/order 下 LIMIT 单；postOnly 使用 LIMIT_MAKER，穿越盘口时由交易所拒绝。
func (c *RESTClient) Submit(ctx context.Context, req order.SubmitRequest) (string, error) {
	if err := c.Constraints.Validate(req.Price, req.Amount); err != nil {
		return "", err
	}
	params := map[string]string{
		"symbol":   c.Symbol,
		"side":     strings.ToUpper(string(req.Side)),
		"price":    req.Price.String(),
		"quantity": req.Amount.String(),
	}
	if req.PostOnly {
		params["type"] = "LIMIT_MAKER"
	} else {
		params["type"] = "LIMIT"
		params["timeInForce"] = "GTC"
	}
	if req.ClientID != "" {
		params["newClientOrderId"] = req.ClientID
	}

	var resp orderResp
	if err := c.do(ctx, http.MethodPost, "/api/v3/order", params, &resp); err != nil {
		return "", err
	}
	if resp.OrderID == "" {
		return "", errors.New("empty orderId")
	}
	c.logger().Debug("rest submit",
		zap.String("suborder_id", resp.OrderID.String()),
		zap.String("client_id", req.ClientID))
	return resp.OrderID.String(), nil
}

// CancelOrder 撤单。订单已不存在时查询一次最终状态，以区分“已成交”与真正的错误。
func (c *RESTClient) CancelOrder(ctx context.Context, suborderID string) (order.CancelResult, error) {
	var resp orderResp
	err := c.do(ctx, http.MethodDelete, "/api/v3/order", c.orderParams(suborderID), &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeUnknownOrder {
		if qerr := c.do(ctx, http.MethodGet, "/api/v3/order", c.orderParams(suborderID), &resp); qerr != nil {
			return order.CancelResult{}, err
		}
		if resp.Status != statusFilled {
			return order.CancelResult{}, err
		}
	} else if err != nil {
		return order.CancelResult{}, err
	}
	return order.CancelResult{
		Filled:       resp.Status == statusFilled,
		FilledAmount: resp.ExecutedQty,
	}, nil
}

// CheckOrder 查询子订单状态。
func (c *RESTClient) CheckOrder(ctx context.Context, suborderID string) (order.CheckResult, error) {
	var resp orderResp
	if err := c.do(ctx, http.MethodGet, "/api/v3/order", c.orderParams(suborderID), &resp); err != nil {
		return order.CheckResult{}, err
	}
	open := resp.Status == statusNew || resp.Status == statusPartiallyFilled
	return order.CheckResult{
		Open:         open,
		Executed:     resp.Status == statusFilled,
		FilledAmount: resp.ExecutedQty,
	}, nil
}

// GetOrder 拉取子订单的全部成交并合并为一条。
func (c *RESTClient) GetOrder(ctx context.Context, suborderID string) (order.Trade, error) {
	var fills []tradeResp
	if err := c.do(ctx, http.MethodGet, "/api/v3/myTrades", c.orderParams(suborderID), &fills); err != nil {
		return order.Trade{}, err
	}
	if len(fills) == 0 {
		return order.Trade{}, fmt.Errorf("no trades for order %s", suborderID)
	}

	trade := order.Trade{Price: decimal.Zero, Amount: decimal.Zero, FeePercent: c.FeePercent}
	notional := decimal.Zero
	var last int64
	for _, f := range fills {
		notional = notional.Add(f.Price.Mul(f.Qty))
		trade.Amount = trade.Amount.Add(f.Qty)
		if f.CommissionAsset != "" && !f.Commission.IsZero() {
			if trade.Fees == nil {
				trade.Fees = make(map[string]decimal.Decimal)
			}
			trade.Fees[f.CommissionAsset] = trade.Fees[f.CommissionAsset].Add(f.Commission)
		}
		if f.Time > last {
			last = f.Time
		}
	}
	if trade.Amount.IsPositive() {
		trade.Price = notional.Div(trade.Amount)
	}
	trade.Date = time.UnixMilli(last).UTC()
	return trade, nil
}

func (c *RESTClient) orderParams(suborderID string) map[string]string {
	return map[string]string{
		"symbol":  c.Symbol,
		"orderId": suborderID,
	}
}

func (c *RESTClient) do(ctx context.Context, method, path string, params map[string]string, out any) error {
	if c == nil || c.HTTPClient == nil {
		return errors.New("http client not set")
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	query, sig := SignParams(params, c.Secret, c.RecvWindowMs)
	endpoint := c.BaseURL + path + "?" + query + "&signature=" + url.QueryEscape(sig)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-MBX-APIKEY", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jerr := json.Unmarshal(body, apiErr); jerr != nil || apiErr.Msg == "" {
			apiErr.Msg = strings.TrimSpace(string(body))
		}
		c.logger().Warn("rest call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Int("code", apiErr.Code))
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *RESTClient) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
