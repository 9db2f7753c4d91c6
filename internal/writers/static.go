package writers

import (
	"context"
	"fmt"
	"strings"
)

// Static 使用固定顺序的 key 列表，writer id 即 key 在列表中的位置。
type Static struct {
	ids map[string]uint8
}

var _ Registry = (*Static)(nil)

// NewStatic 校验列表并构建注册表。空白或重复的 key 会被拒绝，
// 否则后续 key 的位置（即 writer id）会悄悄发生偏移。
func NewStatic(keys []string) (*Static, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("writers: at least one api key is required")
	}
	if len(keys) > MaxWriters {
		return nil, fmt.Errorf("writers: %d api keys exceed the %d writer ids available", len(keys), MaxWriters)
	}

	ids := make(map[string]uint8, len(keys))
	for i, key := range keys {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			return nil, fmt.Errorf("writers: api key at position %d is blank", i)
		}
		if prev, dup := ids[trimmed]; dup {
			return nil, fmt.Errorf("writers: api key at position %d duplicates position %d", i, prev)
		}
		ids[trimmed] = uint8(i)
	}
	return &Static{ids: ids}, nil
}

// Resolve 查找 key 对应的 writer id。
func (s *Static) Resolve(_ context.Context, apiKey string) (uint8, error) {
	if s == nil {
		return 0, ErrUnknownKey
	}
	id, ok := s.ids[apiKey]
	if !ok {
		return 0, ErrUnknownKey
	}
	return id, nil
}
