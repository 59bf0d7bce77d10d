package order

import "github.com/shopspring/decimal"

// EventKind 通知类型。
type EventKind string

const (
	EventStatus  EventKind = "status"
	EventFill    EventKind = "fill"
	EventFinish  EventKind = "finish"
	EventSummary EventKind = "summary"
	EventError   EventKind = "error"
)

// Event 订单向其所有者发出的通知。同一订单的事件按状态转换发生的顺序依次送达。
type Event struct {
	Kind    EventKind
	OrderID string
	Status  Status

	// EventFill: 所有子订单的累计成交量
	Filled decimal.Decimal

	// EventFinish: Completed 为 true 表示成交（含撤单竞态中的成交），Price 为记录的成交价
	Completed bool
	Price     decimal.Decimal

	Summary *Summary
	Err     error
}

// EventSink 在订单的执行协程上同步调用；不应长时间阻塞。
type EventSink func(Event)

// Fanout 将事件依次分发给多个 sink，nil 会被跳过。
func Fanout(sinks ...EventSink) EventSink {
	return func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s(e)
			}
		}
	}
}
