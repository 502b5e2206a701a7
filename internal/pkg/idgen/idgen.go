package idgen

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"orders_manager/internal/pkg/clock"

	"github.com/redis/go-redis/v9"
)

// KeyOrderID 订单 id 自增序列的 Redis key
const KeyOrderID = "orders:shard:id:generator"

// sequenceSpan 日期前缀之后留给序列号的位数 10^13
const sequenceSpan int64 = 10_000_000_000_000

// Generator 订单 id 生成器
// id = yyMMdd * 10^13 + 自增序列，唯一性完全由序列的原子自增保证
type Generator interface {
	Next(ctx context.Context) (int64, error)
}

type redisGenerator struct {
	client *redis.Client
	clock  clock.Clock
}

// NewRedisGenerator 基于 Redis INCR 的生成器，多实例共享同一个计数器
func NewRedisGenerator(client *redis.Client, clk clock.Clock) Generator {
	return &redisGenerator{client: client, clock: clk}
}

func (g *redisGenerator) Next(ctx context.Context) (int64, error) {
	seq, err := g.client.Incr(ctx, KeyOrderID).Result()
	if err != nil {
		return 0, fmt.Errorf("incr order id sequence: %w", err)
	}
	return Compose(g.clock, seq)
}

// MemoryGenerator 进程内生成器（开发/测试）
type MemoryGenerator struct {
	seq   atomic.Int64
	clock clock.Clock
}

func NewMemoryGenerator(clk clock.Clock) *MemoryGenerator {
	return &MemoryGenerator{clock: clk}
}

func (g *MemoryGenerator) Next(ctx context.Context) (int64, error) {
	return Compose(g.clock, g.seq.Add(1))
}

// Compose 拼接日期前缀与序列号
func Compose(clk clock.Clock, seq int64) (int64, error) {
	if seq <= 0 || seq >= sequenceSpan {
		return 0, fmt.Errorf("order id sequence out of range: %d", seq)
	}
	prefix, err := strconv.ParseInt(clk.Now().Format("060102"), 10, 64)
	if err != nil {
		return 0, err
	}
	return prefix*sequenceSpan + seq, nil
}
