package market

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"limit-order-go/metrics"
	"limit-order-go/order"
)

// Service 维护各交易对最新的最优 bid/ask，并向订阅者广播。
// 订单创建时从这里取盘口快照。
type Service struct {
	pub   *Publisher
	mu    sync.RWMutex
	depth map[string]Depth
	now   func() time.Time
}

func NewService(pub *Publisher) *Service {
	if pub == nil {
		pub = NewPublisher()
	}
	return &Service{
		pub:   pub,
		depth: make(map[string]Depth),
		now:   time.Now,
	}
}

func (s *Service) Publisher() *Publisher { return s.pub }

// OnBookTicker 更新并广播。
func (s *Service) OnBookTicker(symbol string, bid, ask decimal.Decimal) {
	s.mu.Lock()
	d := s.depth[symbol]
	d.Symbol = symbol
	d.Update(bid, ask)
	d.Time = s.now()
	s.depth[symbol] = d
	s.mu.Unlock()

	metrics.UpdateMarketData(symbol, d.Bid.InexactFloat64(), d.Ask.InexactFloat64())
	s.pub.PublishDepth(d)
}

// Ticker 返回盘口快照；ok 为 false 表示还没有收到该交易对的行情。
func (s *Service) Ticker(symbol string) (order.Ticker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.depth[symbol]
	if !ok {
		return order.Ticker{}, false
	}
	return order.Ticker{Bid: d.Bid, Ask: d.Ask}, true
}

// Staleness 返回距离上次更新的时间间隔；如无数据返回一年。
func (s *Service) Staleness(symbol string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.depth[symbol]
	if !ok {
		return time.Hour * 24 * 365
	}
	return s.now().Sub(d.Time)
}
