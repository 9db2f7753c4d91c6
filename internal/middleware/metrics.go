package middleware

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequestsTotal 记录 HTTP 请求总数
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ssfile",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration 记录 HTTP 请求耗时
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ssfile",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// httpRequestBytes 记录实际读取的请求体字节数（上传为流式，ContentLength 可能未知）
	httpRequestBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ssfile",
			Name:      "http_request_bytes_total",
			Help:      "Request body bytes read by handlers",
		},
		[]string{"method", "path"},
	)

	// httpResponseBytes 记录响应字节数
	httpResponseBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ssfile",
			Name:      "http_response_bytes_total",
			Help:      "Response body bytes written",
		},
		[]string{"method", "path"},
	)

	// activeRequests 当前活跃请求数
	activeRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ssfile",
		Name:      "http_active_requests",
		Help:      "Number of active HTTP requests",
	})
)

// bodyCounter 包装请求体以统计读取的字节数
type bodyCounter struct {
	io.ReadCloser
	bytesRead int64
}

func (b *bodyCounter) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.bytesRead += int64(n)
	return n, err
}

// Metrics 创建 Prometheus 指标收集中间件
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			activeRequests.Inc()
			defer activeRequests.Dec()

			var body *bodyCounter
			if r.Body != nil && r.Body != http.NoBody {
				body = &bodyCounter{ReadCloser: r.Body}
				r.Body = body
			}

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// 获取路由模式而非实际路径，避免 /{key} 产生高基数
			routePattern := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				routePattern = rctx.RoutePattern()
			}
			if routePattern == "" {
				routePattern = "unknown"
			}

			method := r.Method
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			httpRequestsTotal.WithLabelValues(method, routePattern, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(method, routePattern).Observe(time.Since(start).Seconds())
			httpResponseBytes.WithLabelValues(method, routePattern).Add(float64(ww.BytesWritten()))
			if body != nil {
				httpRequestBytes.WithLabelValues(method, routePattern).Add(float64(body.bytesRead))
			}
		})
	}
}
