package order

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"limit-order-go/metrics"
)

// DefaultRetention 结束的订单在注册表里保留多久，便于查询最终状态。
const DefaultRetention = 5 * time.Minute

// Manager 管理多个逻辑订单；各订单互相独立并行，只共享同一个 Exchange。
type Manager struct {
	exch      Exchange
	log       *zap.Logger
	retention time.Duration

	mu     sync.RWMutex
	cfg    Config
	orders map[string]*LimitOrder
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(exch Exchange, cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		exch:      exch,
		log:       cfg.Logger,
		retention: DefaultRetention,
		cfg:       cfg,
		orders:    make(map[string]*LimitOrder),
	}
}

// SetRetention 修改结束订单的保留时长；<=0 表示立即移除。
func (m *Manager) SetRetention(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retention = d
}

// Start 绑定所有订单的父 context；Stop 会取消它。
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	return nil
}

// Stop 取消所有未结束的订单并等待其执行协程退出。
func (m *Manager) Stop() error {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	m.wg.Wait()
	return nil
}

func (m *Manager) Health() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ctx == nil {
		return errors.New("order manager not started")
	}
	return m.ctx.Err()
}

// SetIntervals 配置热更新入口；只影响之后创建的订单。
// check <= 0 时保持原值，summary <= 0 表示跟随轮询间隔。
func (m *Manager) SetIntervals(check, summary time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if check > 0 {
		m.cfg.CheckInterval = check
	}
	if summary <= 0 {
		summary = m.cfg.CheckInterval
	}
	m.cfg.SummaryInterval = summary
}

// Submit 创建并登记一个逻辑订单。
func (m *Manager) Submit(p CreateParams) (*LimitOrder, error) {
	m.mu.RLock()
	ctx := m.ctx
	cfg := m.cfg
	m.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return nil, ErrClosed
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	o, err := Create(ctx, m.exch, p, cfg)
	if err != nil {
		m.log.Warn("order create rejected",
			zap.String("order_id", p.ID),
			zap.String("side", string(p.Side)),
			zap.String("amount", p.Amount.String()),
			zap.Error(err))
		return nil, err
	}

	m.mu.Lock()
	m.orders[o.ID()] = o
	m.mu.Unlock()
	metrics.OrdersCreated.Inc()
	metrics.ActiveOrders.Inc()

	m.wg.Add(1)
	go m.reap(ctx, o)
	return o, nil
}

func (m *Manager) reap(ctx context.Context, o *LimitOrder) {
	<-o.Done()
	metrics.ActiveOrders.Dec()
	m.wg.Done()

	m.mu.RLock()
	retention := m.retention
	m.mu.RUnlock()
	if retention > 0 {
		timer := time.NewTimer(retention)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
	m.mu.Lock()
	delete(m.orders, o.ID())
	m.mu.Unlock()
}

// Get 按逻辑订单 ID 查询。
func (m *Manager) Get(id string) (*LimitOrder, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	return o, ok
}

// MovePrice 投递改价请求。
func (m *Manager) MovePrice(id string, price decimal.Decimal) error {
	o, ok := m.Get(id)
	if !ok {
		return ErrUnknownOrder
	}
	o.MovePrice(price)
	return nil
}

// MoveAmount 投递改量请求。
func (m *Manager) MoveAmount(id string, amount decimal.Decimal) error {
	o, ok := m.Get(id)
	if !ok {
		return ErrUnknownOrder
	}
	o.MoveAmount(amount)
	return nil
}

// Cancel 投递撤单请求。
func (m *Manager) Cancel(id string) error {
	o, ok := m.Get(id)
	if !ok {
		return ErrUnknownOrder
	}
	o.Cancel()
	return nil
}

// Status 返回订单当前状态，如不存在则第二个返回值为 false。
func (m *Manager) Status(id string) (Status, bool) {
	o, ok := m.Get(id)
	if !ok {
		return "", false
	}
	return o.Status(), true
}

// List 返回全部订单快照，按 ID 排序。
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	res := make([]Snapshot, 0, len(m.orders))
	for _, o := range m.orders {
		res = append(res, o.Snapshot())
	}
	m.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}
