package game

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/arcade-server/internal/errors"
	"github.com/wfunc/arcade-server/internal/logger"
	"github.com/wfunc/arcade-server/internal/models"
	"github.com/wfunc/arcade-server/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Broadcaster 会话频道广播接口，由websocket Hub实现
type Broadcaster interface {
	BroadcastToSession(sessionID string, event string, payload interface{})
}

// Scoring 结算积分规则
type Scoring struct {
	Win  int64
	Draw int64
	Loss int64
}

// DefaultScoring 默认积分规则
func DefaultScoring() Scoring {
	return Scoring{Win: 100, Draw: 50, Loss: 25}
}

// JoinInfo 加入会话的结果
type JoinInfo struct {
	SessionID string
	GameKey   string
	Role      int // -1表示观战者
	Players   models.MatchPlayers
	State     interface{}
	Activated bool // 本次加入是否触发开局
}

// GameOverPayload 结算广播内容
type GameOverPayload struct {
	Winner     string      `json:"winner"`
	FinalState interface{} `json:"finalState"`
	Reason     string      `json:"reason,omitempty"`
}

// Registry 活跃会话注册表
//
// 每个sessionId至多持有一个LiveSession，首次访问时从快照恢复，
// 所有参与者断开后无条件驱逐以约束内存。
type Registry struct {
	mu   sync.Mutex
	live map[string]*LiveSession

	sessionRepo repository.MatchSessionRepository
	scoreRepo   repository.ScoreRecordRepository
	cache       *SnapshotCache
	broadcaster Broadcaster
	scoring     Scoring
	log         *zap.Logger
}

// NewRegistry 创建会话注册表
func NewRegistry(
	sessionRepo repository.MatchSessionRepository,
	scoreRepo repository.ScoreRecordRepository,
	cache *SnapshotCache,
	broadcaster Broadcaster,
	scoring Scoring,
) *Registry {
	return &Registry{
		live:        make(map[string]*LiveSession),
		sessionRepo: sessionRepo,
		scoreRepo:   scoreRepo,
		cache:       cache,
		broadcaster: broadcaster,
		scoring:     scoring,
		log:         logger.GetModuleLogger("game"),
	}
}

// EnsureLive 获取或恢复LiveSession
//
// 驻留期间多次调用返回同一个实例。没有服务端状态机的游戏
// 返回ErrNoRealtimeEngine，由调用方落到透传路径。
func (r *Registry) EnsureLive(ctx context.Context, sessionID string) (*LiveSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if live, ok := r.live[sessionID]; ok {
		return live, nil
	}

	record, err := r.sessionRepo.FindBySessionID(ctx, sessionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Newf(errors.ErrSessionNotFound, "sessionId=%s", sessionID)
		}
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}

	engine := NewEngine(record.GameKey)
	if engine == nil {
		return nil, errors.Newf(errors.ErrNoRealtimeEngine, "gameKey=%s", record.GameKey)
	}

	live := newLiveSession(record, engine)

	// 快照恢复顺序：缓存优先，缺失时回退到会话记录
	snapshot, ok := r.cache.Get(ctx, sessionID)
	if !ok {
		snapshot = record.Snapshot
	}
	if snapshot != "" {
		if err := engine.Restore(snapshot); err != nil {
			// 快照损坏时从初始局面重来，不阻塞对局
			r.log.Warn("快照恢复失败，重置局面",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			engine.Reset()
		}
	}

	r.live[sessionID] = live
	r.log.Info("会话已驻留",
		zap.String("session_id", sessionID),
		zap.String("game_key", record.GameKey),
		zap.String("status", record.Status),
	)

	return live, nil
}

// Resident 查询驻留中的LiveSession，不触发恢复
func (r *Registry) Resident(sessionID string) (*LiveSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	live, ok := r.live[sessionID]
	return live, ok
}

// Attach 注册连接到会话
//
// 调用方需先把连接加入会话频道，开局广播才能送达。
// 所有角色都有连接时触发开局：重置局面、记录开始时间并广播初始局面。
func (r *Registry) Attach(ctx context.Context, sessionID string, userID uint, connID string) (*JoinInfo, error) {
	live, err := r.EnsureLive(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	live.mu.Lock()

	role := live.attachLocked(userID, connID)
	info := &JoinInfo{
		SessionID: live.sessionID,
		GameKey:   live.gameKey,
		Role:      role,
		Players:   live.playersLocked(),
	}

	// 就绪检查：全部角色在线且尚未开局时进入对局
	if !live.active && !live.finalized && live.readyLocked() {
		live.engine.Reset()
		live.active = true
		live.startedAt = time.Now()
		info.Activated = true
	}
	info.State = live.engine.State()

	var snapshot string
	if info.Activated {
		snapshot, _ = live.engine.Snapshot()
	}

	live.mu.Unlock()

	if info.Activated {
		// 广播先行，持久化尽力而为
		r.broadcaster.BroadcastToSession(sessionID, "state_snapshot", info.State)

		if err := r.sessionRepo.ActivateSession(ctx, sessionID); err != nil {
			r.log.Error("会话激活落库失败",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
		r.persistSnapshot(ctx, sessionID, snapshot)

		r.log.Info("对局开始",
			zap.String("session_id", sessionID),
			zap.String("game_key", live.gameKey),
		)
	}

	return info, nil
}

// Detach 移除连接
//
// 对局进行中一方全部断线而另一方仍在线时判负；
// 所有参与者断开后驱逐LiveSession（与是否结算无关）。
func (r *Registry) Detach(ctx context.Context, sessionID string, userID uint, connID string) {
	live, ok := r.Resident(sessionID)
	if !ok {
		return
	}

	live.mu.Lock()

	emptied := live.detachLocked(userID, connID)

	var (
		forfeit    bool
		winnerID   uint
		winnerRole int
	)
	if emptied && live.active && !live.finalized {
		if sole, ok := live.soleConnectedLocked(); ok {
			forfeit = true
			winnerID = sole
			winnerRole = live.participants[sole].role
		}
	}
	deserted := live.desertedLocked()

	live.mu.Unlock()

	if forfeit {
		r.log.Info("玩家断线判负",
			zap.String("session_id", sessionID),
			zap.Uint("loser", userID),
			zap.Uint("winner", winnerID),
		)
		r.finalize(ctx, live, winnerRole, true, "forfeit")
	}

	if deserted {
		r.evict(sessionID)
	}
}

// HandleMove 处理落子
//
// 拒绝只反馈给调用方；接受的落子先广播再持久化，
// 持久化失败不回滚已广播的局面。
func (r *Registry) HandleMove(ctx context.Context, sessionID string, userID uint, x, y int) error {
	live, ok := r.Resident(sessionID)
	if !ok {
		return errors.Newf(errors.ErrSessionNotFound, "sessionId=%s", sessionID)
	}

	live.mu.Lock()

	if live.finalized {
		live.mu.Unlock()
		return errors.New(errors.ErrSessionFinished)
	}
	if !live.active {
		live.mu.Unlock()
		return errors.New(errors.ErrGameNotStarted)
	}

	p, isParticipant := live.participants[userID]
	if !isParticipant {
		live.mu.Unlock()
		return errors.Newf(errors.ErrNotParticipant, "user=%d", userID)
	}

	if err := live.engine.Move(p.role, x, y); err != nil {
		live.mu.Unlock()
		return err
	}

	state := live.engine.State()
	snapshot, _ := live.engine.Snapshot()
	finished := live.engine.Finished()
	winnerRole, hasWinner := live.engine.WinnerRole()

	live.mu.Unlock()

	// 广播先行，持久化尽力而为
	r.broadcaster.BroadcastToSession(sessionID, "state_snapshot", state)
	r.persistSnapshot(ctx, sessionID, snapshot)

	if finished {
		reason := ""
		r.finalize(ctx, live, winnerRole, hasWinner, reason)
	}

	return nil
}

// finalize 结算会话，finalized标志保证恰好执行一次
func (r *Registry) finalize(ctx context.Context, live *LiveSession, winnerRole int, hasWinner bool, reason string) {
	live.mu.Lock()

	if live.finalized {
		live.mu.Unlock()
		return
	}
	live.finalized = true

	// 时长至少1毫秒，避免零时长记录
	durationMs := time.Since(live.startedAt).Milliseconds()
	if durationMs < 1 {
		durationMs = 1
	}

	winnerLabel := "draw"
	if hasWinner {
		winnerLabel = live.engine.RoleLabel(winnerRole)
	}

	finalState := live.engine.State()
	snapshot, _ := live.engine.Snapshot()
	players := live.playersLocked()
	sessionID := live.sessionID
	gameKey := live.gameKey

	live.mu.Unlock()

	// 结算广播先行
	r.broadcaster.BroadcastToSession(sessionID, "game_over", GameOverPayload{
		Winner:     winnerLabel,
		FinalState: finalState,
		Reason:     reason,
	})

	// 每个参与者一条成绩记录
	for _, p := range players {
		score := r.scoring.Draw
		if hasWinner {
			if p.Role == winnerRole {
				score = r.scoring.Win
			} else {
				score = r.scoring.Loss
			}
		}

		record := &models.ScoreRecord{
			UserID:     p.UserID,
			GameKey:    gameKey,
			Score:      score,
			DurationMs: durationMs,
			Mode:       models.ModeMulti,
			SessionID:  sessionID,
		}
		if err := r.scoreRepo.Create(ctx, record); err != nil {
			r.log.Error("成绩落库失败",
				zap.String("session_id", sessionID),
				zap.Uint("user_id", p.UserID),
				zap.Error(err),
			)
		}
	}

	// 会话标记结束并写入最终快照
	if err := r.sessionRepo.FinishSession(ctx, sessionID); err != nil {
		r.log.Error("会话结束落库失败",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	if err := r.sessionRepo.SaveSnapshot(ctx, sessionID, snapshot); err != nil {
		r.log.Error("最终快照落库失败",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	r.cache.Delete(ctx, sessionID)

	r.log.Info("会话已结算",
		zap.String("session_id", sessionID),
		zap.String("game_key", gameKey),
		zap.String("winner", winnerLabel),
		zap.Int64("duration_ms", durationMs),
	)
}

// persistSnapshot 写穿快照：缓存与会话记录都尽力写入
func (r *Registry) persistSnapshot(ctx context.Context, sessionID string, snapshot string) {
	if snapshot == "" {
		return
	}

	r.cache.Set(ctx, sessionID, snapshot)
	if err := r.sessionRepo.SaveSnapshot(ctx, sessionID, snapshot); err != nil {
		r.log.Error("快照落库失败",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// evict 驱逐LiveSession
func (r *Registry) evict(sessionID string) {
	r.mu.Lock()
	delete(r.live, sessionID)
	r.mu.Unlock()

	r.log.Info("会话已驱逐", zap.String("session_id", sessionID))
}

// Count 驻留中的会话数量
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Reset 清空注册表（测试和停机时使用）
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = make(map[string]*LiveSession)
}
