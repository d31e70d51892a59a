package matchmaking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/arcade-server/internal/errors"
	"github.com/wfunc/arcade-server/internal/logger"
	"github.com/wfunc/arcade-server/internal/models"
	"github.com/wfunc/arcade-server/internal/repository"
	"go.uber.org/zap"
)

// waiter 排队中的玩家
type waiter struct {
	userID     uint
	enqueuedAt time.Time
}

// Queue 按游戏分桶的先进先出匹配队列
//
// 同一个玩家在同一个游戏里最多排一个位置，凑齐两人立即开局。
type Queue struct {
	mu      sync.Mutex
	waiting map[string][]*waiter

	gameRepo    repository.GameRepository
	sessionRepo repository.MatchSessionRepository
	log         *zap.Logger
}

// NewQueue 创建匹配队列
func NewQueue(gameRepo repository.GameRepository, sessionRepo repository.MatchSessionRepository) *Queue {
	return &Queue{
		waiting:     make(map[string][]*waiter),
		gameRepo:    gameRepo,
		sessionRepo: sessionRepo,
		log:         logger.GetModuleLogger("matchmaking"),
	}
}

// Enqueue 玩家加入匹配队列
//
// 返回值为nil时玩家进入等待；凑齐两人时返回已按角色0/1落库的
// 会话（状态waiting），由调用方负责通知双方。
func (q *Queue) Enqueue(ctx context.Context, gameKey string, mode string, userID uint) (*models.MatchSession, error) {
	// 只有多人模式参与匹配
	if mode != models.ModeMulti {
		return nil, errors.Newf(errors.ErrModeNotQueueable, "mode=%s", mode)
	}

	// 校验游戏存在且开放（没有服务端状态机的游戏走透传路径，同样可以配对）
	game, err := q.gameRepo.FindByKey(ctx, gameKey)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrUnknownGame, "gameKey=%s", gameKey)
	}
	if !game.IsActive() {
		return nil, errors.Newf(errors.ErrModeNotQueueable, "gameKey=%s", gameKey)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	bucket := q.waiting[gameKey]
	for _, w := range bucket {
		if w.userID == userID {
			return nil, errors.Newf(errors.ErrAlreadyQueued, "user=%d game=%s", userID, gameKey)
		}
	}

	bucket = append(bucket, &waiter{userID: userID, enqueuedAt: time.Now()})
	q.waiting[gameKey] = bucket

	q.log.Info("玩家加入匹配队列",
		zap.String("game_key", gameKey),
		zap.Uint("user_id", userID),
		zap.Int("queue_len", len(bucket)),
	)

	if len(bucket) < 2 {
		return nil, nil
	}

	// 取队首两人配对
	first, second := bucket[0], bucket[1]
	q.waiting[gameKey] = bucket[2:]

	session := &models.MatchSession{
		SessionID: uuid.New().String(),
		GameKey:   gameKey,
		Status:    models.SessionStatusWaiting,
		Players: models.MatchPlayers{
			{UserID: first.userID, Role: 0},
			{UserID: second.userID, Role: 1},
		},
	}

	if err := q.sessionRepo.Create(ctx, session); err != nil {
		// 落库失败时把两人按原顺序放回队首，保持先来后到
		q.waiting[gameKey] = append([]*waiter{first, second}, q.waiting[gameKey]...)
		q.log.Error("会话落库失败，玩家重新排队",
			zap.String("game_key", gameKey),
			zap.Error(err),
		)
		return nil, errors.Wrap(err, errors.ErrPairingFailed)
	}

	q.log.Info("配对成功",
		zap.String("game_key", gameKey),
		zap.String("session_id", session.SessionID),
		zap.Uint("player0", first.userID),
		zap.Uint("player1", second.userID),
	)

	return session, nil
}

// Dequeue 玩家离开匹配队列，幂等
//
// 返回玩家是否确实在队列中。
func (q *Queue) Dequeue(gameKey string, userID uint) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	bucket := q.waiting[gameKey]
	for i, w := range bucket {
		if w.userID == userID {
			q.waiting[gameKey] = append(bucket[:i], bucket[i+1:]...)
			q.log.Info("玩家离开匹配队列",
				zap.String("game_key", gameKey),
				zap.Uint("user_id", userID),
			)
			return true
		}
	}
	return false
}

// DequeueAll 玩家从所有队列中移除（断线时调用）
func (q *Queue) DequeueAll(userID uint) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for gameKey, bucket := range q.waiting {
		for i, w := range bucket {
			if w.userID == userID {
				q.waiting[gameKey] = append(bucket[:i], bucket[i+1:]...)
				removed++
				break
			}
		}
	}
	return removed
}

// Len 查询某游戏当前排队人数
func (q *Queue) Len(gameKey string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting[gameKey])
}

// Contains 查询玩家是否在某游戏队列中
func (q *Queue) Contains(gameKey string, userID uint) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, w := range q.waiting[gameKey] {
		if w.userID == userID {
			return true
		}
	}
	return false
}

// Reset 清空所有队列（测试和停机时使用）
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.waiting = make(map[string][]*waiter)
}
