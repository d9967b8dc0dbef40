package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bazaar"

// Metrics 结算链路指标，nil 接收者上的调用全部为空操作
type Metrics struct {
	ordersCreated  *prometheus.CounterVec
	flashSaleBuys  *prometheus.CounterVec
	groupBuyEvents *prometheus.CounterVec
	webhookEvents  *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	compensations  *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobResults     *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	rateLimited    *prometheus.CounterVec
}

// New 在给定 registerer 上注册全部指标
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders persisted, by entry point.",
		}, []string{"source"}),
		flashSaleBuys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flash_sale_purchases_total",
			Help:      "Flash sale purchase attempts, by result.",
		}, []string{"result"}),
		groupBuyEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "group_buy_events_total",
			Help:      "Group buy start/join/expire events, by result.",
		}, []string{"action", "result"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhooks_total",
			Help:      "Payment webhook deliveries, by provider and result.",
		}, []string{"provider", "result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions, by target status and result.",
		}, []string{"to", "result"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensation_failures_total",
			Help:      "Compensating writes that failed and need manual reconciliation.",
		}, []string{"kind"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of background jobs in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		jobResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_results_total",
			Help:      "Background job executions, by result.",
		}, []string{"job", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by rate limiting, by rule.",
		}, []string{"rule"}),
	}
	reg.MustRegister(
		m.ordersCreated,
		m.flashSaleBuys,
		m.groupBuyEvents,
		m.webhookEvents,
		m.transitions,
		m.compensations,
		m.jobDuration,
		m.jobResults,
		m.httpRequests,
		m.httpDuration,
		m.rateLimited,
	)
	return m
}

// OrderCreated 记录订单落库
func (m *Metrics) OrderCreated(source string, count int) {
	if m == nil || m.ordersCreated == nil || count <= 0 {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(source)).Add(float64(count))
}

// FlashSalePurchase 记录秒杀抢购结果
func (m *Metrics) FlashSalePurchase(result string) {
	if m == nil || m.flashSaleBuys == nil {
		return
	}
	m.flashSaleBuys.WithLabelValues(normalizeLabel(result)).Inc()
}

// GroupBuyEvent 记录拼团事件
func (m *Metrics) GroupBuyEvent(action, result string) {
	if m == nil || m.groupBuyEvents == nil {
		return
	}
	m.groupBuyEvents.WithLabelValues(normalizeLabel(action), normalizeLabel(result)).Inc()
}

// WebhookEvent 记录支付回调处理结果
func (m *Metrics) WebhookEvent(provider, result string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(provider), normalizeLabel(result)).Inc()
}

// Transition 记录订单状态流转
func (m *Metrics) Transition(to, result string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to), normalizeLabel(result)).Inc()
}

// CompensationFailed 记录补偿写入失败
func (m *Metrics) CompensationFailed(kind string) {
	if m == nil || m.compensations == nil {
		return
	}
	m.compensations.WithLabelValues(normalizeLabel(kind)).Inc()
}

// ObserveJob 记录后台任务耗时与结果
func (m *Metrics) ObserveJob(job string, duration time.Duration, err error) {
	if m == nil || m.jobDuration == nil || m.jobResults == nil {
		return
	}
	job = normalizeLabel(job)
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.jobResults.WithLabelValues(job, result).Inc()
}

// ObserveHTTP 记录一次 HTTP 请求；route 取路由模板避免高基数
func (m *Metrics) ObserveHTTP(method, route string, code int, duration time.Duration) {
	if m == nil || m.httpRequests == nil || m.httpDuration == nil {
		return
	}
	route = normalizeLabel(route)
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RateLimited 记录被限流拒绝的请求
func (m *Metrics) RateLimited(rule string) {
	if m == nil || m.rateLimited == nil {
		return
	}
	m.rateLimited.WithLabelValues(normalizeLabel(rule)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
