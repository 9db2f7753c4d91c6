package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"ssfile/internal/writers"
)

// APIKeyHeader 是上传方携带 API Key 的请求头。
const APIKeyHeader = "Api-Key"

const invalidKeyMessage = "API KEY INVALID!"

// writerContextKey 是存储在 context 中的 writer id 的键。
type writerContextKey struct{}

// APIKeyAuth 创建 API Key 鉴权中间件。
// 支持两种请求头：Api-Key: <key> 或 Authorization: ApiKey <key>。
// 验证成功后将 writer id 存入 context。
func APIKeyAuth(registry writers.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := extractAPIKey(r)
			if apiKey == "" || registry == nil {
				writeAuthError(w, http.StatusForbidden, invalidKeyMessage)
				return
			}

			writerID, err := registry.Resolve(r.Context(), apiKey)
			if err != nil {
				if errors.Is(err, writers.ErrUnknownKey) {
					writeAuthError(w, http.StatusForbidden, invalidKeyMessage)
					return
				}
				log.Error().Err(err).Msg("resolve api key")
				writeAuthError(w, http.StatusInternalServerError, "internal error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithWriterID(r.Context(), writerID)))
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}

	// 兼容格式: "Authorization: ApiKey <token>"
	const prefix = "ApiKey "
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
}

// WithWriterID 返回携带 writer id 的 context。
func WithWriterID(ctx context.Context, id uint8) context.Context {
	return context.WithValue(ctx, writerContextKey{}, id)
}

// WriterID 从 context 中获取经过鉴权的 writer id。
func WriterID(ctx context.Context) (uint8, bool) {
	id, ok := ctx.Value(writerContextKey{}).(uint8)
	return id, ok
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
