package order

import (
	"errors"
	"fmt"
)

var (
	// ErrCrossesBook postOnly 订单在提交时已穿越对手盘。
	ErrCrossesBook   = errors.New("order crosses the book")
	ErrInvalidSide   = errors.New("invalid order side")
	ErrInvalidAmount = errors.New("order amount must be > 0")
	ErrInvalidPrice  = errors.New("order price must be > 0")
	ErrUnknownOrder  = errors.New("unknown order")
	ErrClosed        = errors.New("order closed")
)

// GatewayError 交易所调用失败；对订单来说是致命的，核心不会重试。
type GatewayError struct {
	Op         string
	SuborderID string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.SuborderID == "" {
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway %s %s: %v", e.Op, e.SuborderID, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }
