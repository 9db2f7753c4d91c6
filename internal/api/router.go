package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ssfile/internal/config"
	"ssfile/internal/middleware"
	"ssfile/internal/writers"
)

// NewRouter 构建 HTTP 路由，集中注册所有对外服务的端点。
// 对象 key 的字符集不含 i、l、u，因此 /healthz、/metrics、/up 不会与 /{key} 冲突。
func NewRouter(cfg *config.Config, fileHandler *FileHandler, registry writers.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLog())
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.GetHead)

	message := cfg.DefaultMessage
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(message))
	})

	// 健康检查不需要鉴权
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus 指标端点
	r.Handle("/metrics", promhttp.Handler())

	if fileHandler != nil {
		r.Get("/{key}", fileHandler.Download)

		// 先限流再鉴权，避免被用来暴力猜测 API Key
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
			r.Use(middleware.APIKeyAuth(registry))
			r.Post("/up", fileHandler.Upload)
		})
	}

	return r
}
