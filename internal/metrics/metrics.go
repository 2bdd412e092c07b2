// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// セッション管理、プロフィール、ワーカー、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordAuthAttempt(op, result string)
	RecordAuthError(kind string)
	RecordProfileEnsure(outcome string)
	RecordAvatarUpload(result string)
	SetActiveSessions(n int)
	RecordHTTPStatus(statusCode int)
	RecordExploreImport(result string, items int)
	RecordExploreLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts   *prometheus.CounterVec
	authErrors     *prometheus.CounterVec
	profileEnsure  *prometheus.CounterVec
	avatarUploads  *prometheus.CounterVec
	activeSessions prometheus.Gauge
	httpStatus     *prometheus.CounterVec
	exploreImports *prometheus.CounterVec
	exploreItems   prometheus.Gauge
	exploreLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revculture_auth_attempts_total",
			Help: "認証操作の試行数（操作・結果別）",
		}, []string{"op", "result"}),
		authErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revculture_auth_errors_total",
			Help: "認証エラーの分類別件数",
		}, []string{"kind"}),
		profileEnsure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revculture_profile_ensure_total",
			Help: "プロフィール自動作成の結果別件数",
		}, []string{"outcome"}),
		avatarUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revculture_avatar_uploads_total",
			Help: "アバターアップロードの結果別件数",
		}, []string{"result"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "revculture_active_sessions",
			Help: "メモリ上に保持しているセッションマネージャー数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revculture_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		exploreImports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revculture_explore_imports_total",
			Help: "Explore用フィード取り込みの結果別件数",
		}, []string{"result"}),
		exploreItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "revculture_explore_imported_items",
			Help: "直近の取り込みで得たExplore記事数",
		}),
		exploreLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "revculture_explore_fetch_latency_seconds",
			Help:    "Explore用フィード取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.authErrors,
		c.profileEnsure,
		c.avatarUploads,
		c.activeSessions,
		c.httpStatus,
		c.exploreImports,
		c.exploreItems,
		c.exploreLatency,
	)

	return c
}

// RecordAuthAttempt は認証操作の試行を記録する。opはsign_up/sign_in/sign_out、resultはsuccess/failure。
func (c *Collector) RecordAuthAttempt(op, result string) {
	c.authAttempts.WithLabelValues(op, result).Inc()
}

// RecordAuthError は認証エラーの分類を記録する。
func (c *Collector) RecordAuthError(kind string) {
	c.authErrors.WithLabelValues(kind).Inc()
}

// RecordProfileEnsure はプロフィール自動作成の結果（created/existing/failed）を記録する。
func (c *Collector) RecordProfileEnsure(outcome string) {
	c.profileEnsure.WithLabelValues(outcome).Inc()
}

// RecordAvatarUpload はアバターアップロードの結果（success/rejected/failed）を記録する。
func (c *Collector) RecordAvatarUpload(result string) {
	c.avatarUploads.WithLabelValues(result).Inc()
}

// SetActiveSessions は保持中のセッションマネージャー数を設定する。
func (c *Collector) SetActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordExploreImport はフィード取り込みの結果を記録する。成功時は取り込んだ記事数も更新する。
func (c *Collector) RecordExploreImport(result string, items int) {
	c.exploreImports.WithLabelValues(result).Inc()
	if result == "success" {
		c.exploreItems.Set(float64(items))
	}
}

// RecordExploreLatency はフィード取得のレイテンシを記録する。
func (c *Collector) RecordExploreLatency(duration time.Duration) {
	c.exploreLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。メトリクスを使わない構成とテストで使用する。
type Nop struct{}

func (Nop) RecordAuthAttempt(string, string) {}
func (Nop) RecordAuthError(string) {}
func (Nop) RecordProfileEnsure(string) {}
func (Nop) RecordAvatarUpload(string) {}
func (Nop) SetActiveSessions(int) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordExploreImport(string, int) {}
func (Nop) RecordExploreLatency(time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
