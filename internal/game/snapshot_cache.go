package game

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wfunc/arcade-server/internal/config"
	"github.com/wfunc/arcade-server/internal/logger"
	"go.uber.org/zap"
)

const snapshotKeyPrefix = "arcade:session:snapshot:"

// SnapshotCache 基于Redis的快照写穿缓存
//
// 缓存是加速层不是协调层，所有方法对nil接收者安全，
// 未启用缓存时直接落到数据库路径。
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewSnapshotCache 创建快照缓存，配置未启用时返回nil
func NewSnapshotCache(cfg *config.CacheConfig) *SnapshotCache {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &SnapshotCache{
		client: client,
		ttl:    cfg.TTL,
		log:    logger.GetModuleLogger("game"),
	}
}

// Get 读取缓存中的快照
func (c *SnapshotCache) Get(ctx context.Context, sessionID string) (string, bool) {
	if c == nil {
		return "", false
	}

	val, err := c.client.Get(ctx, snapshotKeyPrefix+sessionID).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.log.Warn("快照缓存读取失败",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return "", false
	}
	return val, true
}

// Set 写入快照，失败只记日志
func (c *SnapshotCache) Set(ctx context.Context, sessionID string, snapshot string) {
	if c == nil {
		return
	}

	if err := c.client.Set(ctx, snapshotKeyPrefix+sessionID, snapshot, c.ttl).Err(); err != nil {
		c.log.Warn("快照缓存写入失败",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// Delete 删除快照（会话结束后清理）
func (c *SnapshotCache) Delete(ctx context.Context, sessionID string) {
	if c == nil {
		return
	}

	if err := c.client.Del(ctx, snapshotKeyPrefix+sessionID).Err(); err != nil {
		c.log.Warn("快照缓存删除失败",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// Close 关闭Redis连接
func (c *SnapshotCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
