// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OutcomeSuccess は成功を表すoutcomeラベル値。
const OutcomeSuccess = "success"

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やミドルウェアから利用する。
// outcomeには"success"またはエラーコードを渡す。
type MetricsCollector interface {
	RecordRegistration(outcome string)
	RecordLogin(outcome string)
	RecordVerification(outcome string)
	RecordResend(outcome string)
	RecordEmailSend(success bool)
	RecordTokenValidation(valid bool)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations    *prometheus.CounterVec
	logins           *prometheus.CounterVec
	verifications    *prometheus.CounterVec
	resends          *prometheus.CounterVec
	emailSends       *prometheus.CounterVec
	tokenValidations *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	requestLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "budgetauth_registrations_total",
			Help: "アカウント登録の試行数（結果別）",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "budgetauth_logins_total",
			Help: "ログインの試行数（結果別）",
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "budgetauth_verifications_total",
			Help: "検証コード照合の試行数（結果別）",
		}, []string{"outcome"}),
		resends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "budgetauth_verification_resends_total",
			Help: "検証コード再送の試行数（結果別）",
		}, []string{"outcome"}),
		emailSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "budgetauth_email_sends_total",
			Help: "検証メール送信数（成否別）",
		}, []string{"result"}),
		tokenValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "budgetauth_token_validations_total",
			Help: "Bearerトークン検証数（有効/無効別）",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "budgetauth_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "budgetauth_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.registrations,
		c.logins,
		c.verifications,
		c.resends,
		c.emailSends,
		c.tokenValidations,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordRegistration は登録結果を記録する。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordVerification は検証コード照合の結果を記録する。
func (c *Collector) RecordVerification(outcome string) {
	c.verifications.WithLabelValues(outcome).Inc()
}

// RecordResend は検証コード再送の結果を記録する。
func (c *Collector) RecordResend(outcome string) {
	c.resends.WithLabelValues(outcome).Inc()
}

// RecordEmailSend はメール送信の成否を記録する。
func (c *Collector) RecordEmailSend(success bool) {
	c.emailSends.WithLabelValues(resultLabel(success, "sent", "failed")).Inc()
}

// RecordTokenValidation はトークン検証の結果を記録する。
func (c *Collector) RecordTokenValidation(valid bool) {
	c.tokenValidations.WithLabelValues(resultLabel(valid, "valid", "invalid")).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

func resultLabel(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type NopCollector struct{}

func (NopCollector) RecordRegistration(string)           {}
func (NopCollector) RecordLogin(string)                  {}
func (NopCollector) RecordVerification(string)           {}
func (NopCollector) RecordResend(string)                 {}
func (NopCollector) RecordEmailSend(bool)                {}
func (NopCollector) RecordTokenValidation(bool)          {}
func (NopCollector) RecordHTTPStatus(int)                {}
func (NopCollector) RecordRequestLatency(time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewHTTPMiddleware はレスポンスのステータスコードと処理時間を記録するミドルウェアを返す。
func NewHTTPMiddleware(collector MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			collector.RecordHTTPStatus(rec.statusCode)
			collector.RecordRequestLatency(time.Since(start))
		})
	}
}

// statusRecorder はステータスコードを記録するResponseWriter。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
