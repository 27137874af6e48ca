package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "affiliate_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "affiliate_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
	}, []string{"method", "route"})

	earningsCredited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "affiliate_earnings_credited_total",
		Help: "Earnings appended to the ledger, by type",
	}, []string{"type"})

	earningsAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "affiliate_earnings_amount_usd_total",
		Help: "Sum of credited earning amounts in USD, by type",
	}, []string{"type"})

	payoutTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "affiliate_payout_transitions_total",
		Help: "Payout state transitions, by resulting status",
	}, []string{"status"})

	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "affiliate_webhook_events_total",
		Help: "Upstream events processed, by source, type and outcome",
	}, []string{"source", "type", "outcome"})

	ledgerDivergence = promauto.NewCounter(prometheus.CounterOpts{
		Name: "affiliate_ledger_divergence_total",
		Help: "Accounts whose stored balance diverged from the replayed event log",
	})

	reconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "affiliate_reconcile_runs_total",
		Help: "Reconciliation runs, by result",
	}, []string{"result"})
)

// RecordEarning 记录入账，冲正（负数）只计次数
func RecordEarning(earningType string, amount float64) {
	earningsCredited.WithLabelValues(earningType).Inc()
	if amount > 0 {
		earningsAmount.WithLabelValues(earningType).Add(amount)
	}
}

// RecordPayoutTransition 记录提现状态流转
func RecordPayoutTransition(status string) {
	payoutTransitions.WithLabelValues(status).Inc()
}

// RecordWebhookEvent 记录上游事件处理结果
func RecordWebhookEvent(source, eventType, outcome string) {
	webhookEvents.WithLabelValues(source, eventType, outcome).Inc()
}

// RecordLedgerDivergence 记录对账异常
func RecordLedgerDivergence() {
	ledgerDivergence.Inc()
}

// RecordReconcileRun 记录对账执行结果（clean / diverged / failed）
func RecordReconcileRun(result string) {
	reconcileRuns.WithLabelValues(result).Inc()
}

// GinMiddleware HTTP 请求指标中间件
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		httpLatency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler 返回 Prometheus 抓取端点
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
