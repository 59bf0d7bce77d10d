package order

import (
	"sync"

	"github.com/shopspring/decimal"
)

// intentKind 按优先级排序：数值越小越先应用。
type intentKind int

const (
	intentCancel intentKind = iota
	intentAmount
	intentPrice
	intentKinds
)

func (k intentKind) String() string {
	switch k {
	case intentCancel:
		return "cancel"
	case intentAmount:
		return "amount"
	case intentPrice:
		return "price"
	default:
		return "unknown"
	}
}

// intent 一次改单请求。cancel 不带目标值。
type intent struct {
	kind   intentKind
	target decimal.Decimal
}

// pendingIntents 被推迟的改单请求。每个优先级类别最多一条，同类后到覆盖先到。
type pendingIntents struct {
	slots [intentKinds]intent
	set   [intentKinds]bool
}

func (p *pendingIntents) put(it intent) {
	p.slots[it.kind] = it
	p.set[it.kind] = true
}

func (p *pendingIntents) drop(kind intentKind) {
	p.set[kind] = false
	p.slots[kind] = intent{}
}

// pop 取出优先级最高的一条：CANCEL > AMOUNT > PRICE。
func (p *pendingIntents) pop() (intent, bool) {
	for k := intentCancel; k < intentKinds; k++ {
		if p.set[k] {
			it := p.slots[k]
			p.drop(k)
			return it, true
		}
	}
	return intent{}, false
}

func (p *pendingIntents) clear() {
	*p = pendingIntents{}
}

func (p *pendingIntents) empty() bool {
	for _, s := range p.set {
		if s {
			return false
		}
	}
	return true
}

// mailbox 外部请求到执行协程的无界投递。保持到达顺序，
// 同类请求只保留最新的一条，因此最多积压 intentKinds 条。
type mailbox struct {
	mu    sync.Mutex
	items []intent
	ready chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (m *mailbox) push(it intent) {
	m.mu.Lock()
	replaced := false
	for i := range m.items {
		if m.items[i].kind == it.kind {
			m.items[i] = it
			replaced = true
			break
		}
	}
	if !replaced {
		m.items = append(m.items, it)
	}
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

func (m *mailbox) take() []intent {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}
