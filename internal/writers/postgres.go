package writers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier 是 *pgxpool.Pool 与 pgx.Tx 的公共子集。
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres 从 writers 表解析 API Key。
type Postgres struct {
	db Querier
}

var _ Registry = (*Postgres)(nil)

// NewPostgres 返回基于 writers 表的注册表。
func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

const resolveQuery = `SELECT id FROM writers WHERE api_key = $1`

// Resolve 查询 key 对应的 writer id。
func (p *Postgres) Resolve(ctx context.Context, apiKey string) (uint8, error) {
	if p == nil || p.db == nil {
		return 0, fmt.Errorf("writers: postgres registry not initialized")
	}
	if apiKey == "" {
		return 0, ErrUnknownKey
	}

	var id int16
	if err := p.db.QueryRow(ctx, resolveQuery, apiKey).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUnknownKey
		}
		return 0, fmt.Errorf("writers: resolve api key: %w", err)
	}

	// 表上有 CHECK 约束，这里再兜底一次
	if id < 0 || id >= MaxWriters {
		return 0, fmt.Errorf("writers: stored writer id %d out of range", id)
	}
	return uint8(id), nil
}
