package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup 配置全局 zerolog 日志器，各包通过 zerolog/log 使用。
// pretty 为 true 时输出便于阅读的控制台格式，否则输出 JSON。
func Setup(level string, pretty bool) error {
	return setup(os.Stdout, level, pretty)
}

func setup(out io.Writer, level string, pretty bool) error {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return err
	}
	if parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parsed)

	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "Jan _2 03:04:05 pm"}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Str("service", "ssfile").Logger()
	return nil
}
