// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// セッション管理やプロフィール調停の各層から利用する。
type MetricsCollector interface {
	RecordSessionTransition(state string)
	RecordStaleFetchDiscard()
	RecordRegisterOutcome(outcome string)
	RecordProfileUpdateOutcome(subOp string, outcome string)
	RecordBackendLatency(op string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	sessionTransition *prometheus.CounterVec
	staleFetchDiscard prometheus.Counter
	registerOutcome   *prometheus.CounterVec
	profileUpdate     *prometheus.CounterVec
	backendLatency    *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gakuseki_session_transition_total",
			Help: "セッション状態遷移の合計数（遷移先の状態別）",
		}, []string{"state"}),
		staleFetchDiscard: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gakuseki_stale_fetch_discard_total",
			Help: "後続の通知に追い越されて破棄されたプロフィール取得の合計数",
		}),
		registerOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gakuseki_register_total",
			Help: "登録処理の結果別の合計数",
		}, []string{"outcome"}),
		profileUpdate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gakuseki_profile_update_total",
			Help: "プロフィール更新サブ操作の結果別の合計数",
		}, []string{"sub_op", "outcome"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gakuseki_backend_latency_seconds",
			Help:    "バックエンド呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}

	reg.MustRegister(
		c.sessionTransition,
		c.staleFetchDiscard,
		c.registerOutcome,
		c.profileUpdate,
		c.backendLatency,
	)

	return c
}

// RecordSessionTransition はセッション状態の遷移を記録する。
func (c *Collector) RecordSessionTransition(state string) {
	c.sessionTransition.WithLabelValues(state).Inc()
}

// RecordStaleFetchDiscard は破棄された古いプロフィール取得を記録する。
func (c *Collector) RecordStaleFetchDiscard() {
	c.staleFetchDiscard.Inc()
}

// RecordRegisterOutcome は登録処理の結果を記録する。
func (c *Collector) RecordRegisterOutcome(outcome string) {
	c.registerOutcome.WithLabelValues(outcome).Inc()
}

// RecordProfileUpdateOutcome はプロフィール更新サブ操作の結果を記録する。
func (c *Collector) RecordProfileUpdateOutcome(subOp string, outcome string) {
	c.profileUpdate.WithLabelValues(subOp, outcome).Inc()
}

// RecordBackendLatency はバックエンド呼び出しのレイテンシを記録する。
func (c *Collector) RecordBackendLatency(op string, duration time.Duration) {
	c.backendLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
