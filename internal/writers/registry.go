// Package writers maps uploader API keys to the one-byte writer id recorded
// in every stored object.
package writers

import (
	"context"
	"errors"
)

// ErrUnknownKey 表示 API Key 未登记。
var ErrUnknownKey = errors.New("writers: unknown api key")

// MaxWriters 是 writer id 能表示的上限（1 字节）。
const MaxWriters = 256

// Registry 将 API Key 解析为 writer id。
type Registry interface {
	Resolve(ctx context.Context, apiKey string) (uint8, error)
}
