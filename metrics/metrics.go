// Package metrics provides Prometheus metrics for the limit order lifecycle
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "limitorder"

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_created_total",
		Help:      "逻辑订单创建总数",
	})
	OrdersRejectedLocal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_rejected_local_total",
		Help:      "本地策略拒绝（postOnly 穿越盘口）的订单数",
	})
	ActiveOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_orders",
		Help:      "当前未结束的逻辑订单数",
	})
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_total",
		Help:      "订单状态转换次数（按目标状态）",
	}, []string{"status"})
	AmendmentsDeferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "amendments_deferred_total",
		Help:      "因已有交易所调用在途而推迟的改单请求",
	}, []string{"kind"})
	AmendmentsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "amendments_applied_total",
		Help:      "实际下发到交易所的改单请求",
	}, []string{"kind"})
	FilledVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "filled_volume_total",
		Help:      "累计成交量（按方向）",
	}, []string{"side"})
	GatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_calls_total",
		Help:      "交易所调用次数",
	}, []string{"op", "result"})
	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gateway_latency_seconds",
		Help:      "交易所调用延迟分布（秒）",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"op"})
	GatewayBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "gateway_breaker_state",
		Help:      "交易所熔断器状态：0=closed 1=open 2=half_open",
	})
	MarketBid = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "market_best_bid",
		Help:      "最新最优买价",
	}, []string{"symbol"})
	MarketAsk = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "market_best_ask",
		Help:      "最新最优卖价",
	}, []string{"symbol"})
)

// ObserveGatewayCall 记录一次交易所调用的结果与耗时。
func ObserveGatewayCall(op string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	GatewayCalls.WithLabelValues(op, result).Inc()
	GatewayLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func IncrementStatus(status string) {
	StatusTransitions.WithLabelValues(status).Inc()
}

func IncrementDeferred(kind string) {
	AmendmentsDeferred.WithLabelValues(kind).Inc()
}

func IncrementApplied(kind string) {
	AmendmentsApplied.WithLabelValues(kind).Inc()
}

func AddFilled(side string, qty float64) {
	if qty <= 0 {
		return
	}
	FilledVolume.WithLabelValues(side).Add(qty)
}

func UpdateMarketData(symbol string, bid, ask float64) {
	MarketBid.WithLabelValues(symbol).Set(bid)
	MarketAsk.WithLabelValues(symbol).Set(ask)
}

// Handler 返回 /metrics 处理器。
func Handler() http.Handler {
	return promhttp.Handler()
}
