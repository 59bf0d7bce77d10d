package market

import "sync"

// Publisher 一个轻量事件分发器；订阅者跟不上时丢弃旧值。
type Publisher struct {
	mu        sync.RWMutex
	depthSubs []chan Depth
}

func NewPublisher() *Publisher {
	return &Publisher{depthSubs: make([]chan Depth, 0)}
}

func (p *Publisher) SubscribeDepth() <-chan Depth {
	ch := make(chan Depth, 1)
	p.mu.Lock()
	p.depthSubs = append(p.depthSubs, ch)
	p.mu.Unlock()
	return ch
}

func (p *Publisher) PublishDepth(d Depth) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.depthSubs {
		select {
		case ch <- d:
		default:
		}
	}
}
