package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"ssfile/internal/storage/namegen"
)

// WriterSource 决定 API Key 与 writer id 的映射来源。
const (
	WriterSourceStatic   = "static"
	WriterSourcePostgres = "postgres"
)

// Config 聚合服务启动需要的关键配置，全部来自环境变量。
type Config struct {
	HTTPHost string `envconfig:"HOST" default:"0.0.0.0"`
	HTTPPort string `envconfig:"PORT" default:"8080"`

	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"0s"` // 0 表示不限制，下载为流式输出
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`

	// 存储配置
	UploadsDir            string `envconfig:"UPLOADS_DIR" default:"./uploads"`
	KeyLength             int    `envconfig:"KEY_LENGTH" default:"6"`
	MaxAllocationAttempts int    `envconfig:"MAX_ALLOCATION_ATTEMPTS" default:"16"`
	CompressionLevel      int    `envconfig:"COMPRESSION_LEVEL" default:"6"`
	MaxUploadBytes        int64  `envconfig:"MAX_UPLOAD_BYTES" default:"104857600"`

	DefaultMessage string `envconfig:"DEFAULT_MESSAGE" default:"ssfile"`

	// 鉴权配置
	WriterSource string   `envconfig:"WRITER_SOURCE" default:"static"`
	APIKeys      []string `envconfig:"API_KEYS" default:"dev-api-key-123456"`

	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS"`
	RateLimitRequests  int           `envconfig:"RATE_LIMIT_REQUESTS" default:"30"`
	RateLimitWindow    time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`

	DBHost     string `envconfig:"DB_HOST" default:"127.0.0.1"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"ssfile"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"ssfile"`
	DBName     string `envconfig:"DB_NAME" default:"ssfile"`
	DBSSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
}

// Load 从环境变量加载配置、校验取值，并确保上传目录存在。
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	cfg.APIKeys = trimList(cfg.APIKeys)
	cfg.CORSAllowedOrigins = trimList(cfg.CORSAllowedOrigins)
	cfg.WriterSource = strings.ToLower(strings.TrimSpace(cfg.WriterSource))

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := ensureDir(cfg.UploadsDir); err != nil {
		return nil, fmt.Errorf("确保上传目录失败: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.KeyLength < 1 || c.KeyLength > namegen.MaxKeyLength:
		return fmt.Errorf("KEY_LENGTH 必须在 1..%d 之间，当前为 %d", namegen.MaxKeyLength, c.KeyLength)
	case c.MaxAllocationAttempts < 1:
		return fmt.Errorf("MAX_ALLOCATION_ATTEMPTS 必须为正数，当前为 %d", c.MaxAllocationAttempts)
	case c.CompressionLevel < 1 || c.CompressionLevel > 9:
		return fmt.Errorf("COMPRESSION_LEVEL 必须在 1..9 之间，当前为 %d", c.CompressionLevel)
	case c.MaxUploadBytes <= 0:
		return fmt.Errorf("MAX_UPLOAD_BYTES 必须为正数")
	case c.UploadsDir == "":
		return fmt.Errorf("UPLOADS_DIR 不能为空")
	}

	switch c.WriterSource {
	case WriterSourceStatic:
		if len(c.APIKeys) == 0 {
			return fmt.Errorf("WRITER_SOURCE=static 需要至少一个 API_KEYS")
		}
		if len(c.APIKeys) > 256 {
			return fmt.Errorf("API_KEYS 最多 256 个（writer id 占 1 字节），当前为 %d", len(c.APIKeys))
		}
	case WriterSourcePostgres:
	default:
		return fmt.Errorf("未知的 WRITER_SOURCE: %q", c.WriterSource)
	}
	return nil
}

// Addr 返回 HTTP 监听地址。
func (c *Config) Addr() string {
	return net.JoinHostPort(c.HTTPHost, c.HTTPPort)
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("路径 %s 已存在但不是目录", path)
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0o755)
	}

	return err
}

func trimList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// PostgresDSN 生成标准 postgres:// 连接串，供 writer 注册表使用。
func (c *Config) PostgresDSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   net.JoinHostPort(c.DBHost, fmt.Sprint(c.DBPort)),
		Path:   c.DBName,
	}

	q := url.Values{}
	if c.DBSSLMode != "" {
		q.Set("sslmode", c.DBSSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}
