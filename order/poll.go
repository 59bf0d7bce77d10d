package order

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// schedulePoll 仅在没有交易所调用在途、且推迟的请求已全部应用后调用。
func (o *LimitOrder) schedulePoll() {
	o.stopPoll()
	o.pollTimer = time.NewTimer(o.cfg.CheckInterval)
	o.pollC = o.pollTimer.C
}

func (o *LimitOrder) stopPoll() {
	if o.pollTimer != nil {
		o.pollTimer.Stop()
		o.pollTimer = nil
	}
	o.pollC = nil
}

// checkOrder 定时器触发：再次确认订单仍在挂单且空闲，避免过期定时器在撤单后生效。
func (o *LimitOrder) checkOrder(ctx context.Context) {
	if o.status.Terminal() || o.busy() || o.current == nil {
		return
	}
	id := o.current.id
	o.call(ctx, opCheck, id, func(ctx context.Context) result {
		res, err := o.exch.CheckOrder(ctx, id)
		return result{check: res, err: err}
	})
}

func (o *LimitOrder) handleCheck(ctx context.Context, r result) {
	o.checking = false
	if o.status.Terminal() {
		o.log.Debug("discarding stale poll response", zap.String("suborder_id", r.suborderID))
		return
	}
	if r.err != nil {
		o.fail(&GatewayError{Op: "check", SuborderID: r.suborderID, Err: r.err})
		return
	}

	if r.check.Open {
		o.recordFill(r.check.FilledAmount)
		if o.drainPending(ctx) {
			return
		}
		o.schedulePoll()
		return
	}

	if !r.check.Executed {
		// 不在簿上且未成交：从未挂上
		o.complete(StatusRejected, false)
		return
	}

	o.recordFill(o.current.amount)
	o.complete(StatusFilled, true)
}
