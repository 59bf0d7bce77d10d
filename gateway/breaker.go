package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"limit-order-go/metrics"
	"limit-order-go/order"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrBreakerOpen 熔断期间直接拒绝调用，不占用限流令牌。
var ErrBreakerOpen = errors.New("gateway circuit breaker open")

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	Threshold int           // 连续传输故障次数阈值
	Cooldown  time.Duration // 打开后等待多久进入半开
	Probes    int           // 半开状态连续成功多少次后关闭
}

// CircuitBreaker 按连续传输故障熔断。交易所的业务拒绝（4xx）不计入。
type CircuitBreaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu          sync.Mutex
	state       BreakerState
	consecutive int
	probes      int
	inFlight    int
	openedAt    time.Time
}

func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// allow 半开状态同时只放行 Probes 个探测请求。
func (b *CircuitBreaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		wait := b.cfg.Cooldown - b.now().Sub(b.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w, retry in %v", ErrBreakerOpen, wait)
		}
		b.setState(BreakerHalfOpen)
		b.probes = 0
		b.inFlight = 0
		fallthrough
	case BreakerHalfOpen:
		if b.inFlight >= b.cfg.Probes {
			return ErrBreakerOpen
		}
		b.inFlight++
	}
	return nil
}

func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen && b.inFlight > 0 {
		b.inFlight--
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	if !countsAsFault(err) {
		b.consecutive = 0
		if b.state == BreakerHalfOpen {
			b.probes++
			if b.probes >= b.cfg.Probes {
				b.setState(BreakerClosed)
			}
		}
		return
	}

	b.consecutive++
	if b.state == BreakerHalfOpen || b.consecutive >= b.cfg.Threshold {
		b.openedAt = b.now()
		b.setState(BreakerOpen)
	}
}

func (b *CircuitBreaker) setState(s BreakerState) {
	b.state = s
	metrics.GatewayBreakerState.Set(float64(s))
}

// Reset 手动恢复
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	b.probes = 0
	b.inFlight = 0
	b.setState(BreakerClosed)
}

// countsAsFault 只有传输层错误和 5xx 算故障。
func countsAsFault(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return true
}

// BreakerExchange 给任意 order.Exchange 加上熔断。
type BreakerExchange struct {
	order.Exchange
	Breaker *CircuitBreaker
	Logger  *zap.Logger
}

var _ order.Exchange = (*BreakerExchange)(nil)

func NewBreakerExchange(inner order.Exchange, cfg BreakerConfig, logger *zap.Logger) *BreakerExchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BreakerExchange{Exchange: inner, Breaker: NewCircuitBreaker(cfg), Logger: logger}
}

// Health 熔断打开时报告不健康。
func (e *BreakerExchange) Health() error {
	if s := e.Breaker.State(); s == BreakerOpen {
		return ErrBreakerOpen
	}
	return nil
}

func (e *BreakerExchange) guard(op string, fn func() error) error {
	if err := e.Breaker.allow(); err != nil {
		e.Logger.Warn("gateway call short-circuited", zap.String("op", op), zap.Error(err))
		return err
	}
	err := fn()
	before := e.Breaker.State()
	e.Breaker.record(err)
	if after := e.Breaker.State(); after != before {
		e.Logger.Warn("gateway breaker state changed",
			zap.String("op", op),
			zap.String("from", before.String()),
			zap.String("to", after.String()),
			zap.Error(err))
	}
	return err
}

func (e *BreakerExchange) Submit(ctx context.Context, req order.SubmitRequest) (id string, err error) {
	err = e.guard("submit", func() error {
		id, err = e.Exchange.Submit(ctx, req)
		return err
	})
	return id, err
}

func (e *BreakerExchange) CancelOrder(ctx context.Context, id string) (res order.CancelResult, err error) {
	err = e.guard("cancel", func() error {
		res, err = e.Exchange.CancelOrder(ctx, id)
		return err
	})
	return res, err
}

func (e *BreakerExchange) CheckOrder(ctx context.Context, id string) (res order.CheckResult, err error) {
	err = e.guard("check", func() error {
		res, err = e.Exchange.CheckOrder(ctx, id)
		return err
	})
	return res, err
}

func (e *BreakerExchange) GetOrder(ctx context.Context, id string) (t order.Trade, err error) {
	err = e.guard("get_order", func() error {
		t, err = e.Exchange.GetOrder(ctx, id)
		return err
	})
	return t, err
}
