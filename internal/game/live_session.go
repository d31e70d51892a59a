package game

import (
	"sync"
	"time"

	"github.com/wfunc/arcade-server/internal/models"
)

// participant 会话参与者的连接集合
type participant struct {
	role  int
	conns map[string]struct{}
}

// LiveSession 驻留内存的权威对局实例
//
// 同一个sessionId任意时刻至多存在一个LiveSession，由Registry保证。
type LiveSession struct {
	mu sync.Mutex

	sessionID    string
	gameKey      string
	participants map[uint]*participant
	spectators   map[string]struct{}
	engine       Engine

	active    bool
	startedAt time.Time
	finalized bool
}

// newLiveSession 从会话记录构建LiveSession
func newLiveSession(record *models.MatchSession, engine Engine) *LiveSession {
	live := &LiveSession{
		sessionID:    record.SessionID,
		gameKey:      record.GameKey,
		participants: make(map[uint]*participant, len(record.Players)),
		spectators:   make(map[string]struct{}),
		engine:       engine,
	}

	for _, p := range record.Players {
		live.participants[p.UserID] = &participant{
			role:  p.Role,
			conns: make(map[string]struct{}),
		}
	}

	if record.Status == models.SessionStatusActive {
		live.active = true
		if record.StartedAt != nil {
			live.startedAt = *record.StartedAt
		} else {
			live.startedAt = time.Now()
		}
	}
	if record.IsFinished() {
		live.active = true
		live.finalized = true
	}

	return live
}

// SessionID 会话标识
func (s *LiveSession) SessionID() string {
	return s.sessionID
}

// GameKey 游戏标识
func (s *LiveSession) GameKey() string {
	return s.gameKey
}

// Role 参与者的角色，非参与者返回-1
func (s *LiveSession) Role(userID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[userID]; ok {
		return p.role
	}
	return -1
}

// Players 参与者列表（按角色排序）
func (s *LiveSession) Players() models.MatchPlayers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playersLocked()
}

func (s *LiveSession) playersLocked() models.MatchPlayers {
	players := make(models.MatchPlayers, 0, len(s.participants))
	for userID, p := range s.participants {
		players = append(players, models.MatchPlayer{UserID: userID, Role: p.role})
	}
	// 角色数量固定为2，直接交换即可
	if len(players) == 2 && players[0].Role > players[1].Role {
		players[0], players[1] = players[1], players[0]
	}
	return players
}

// State 当前局面
func (s *LiveSession) State() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.State()
}

// Active 对局是否已开始
func (s *LiveSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Finalized 是否已结算
func (s *LiveSession) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

// ConnectedCount 某参与者的连接数
func (s *LiveSession) ConnectedCount(userID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[userID]; ok {
		return len(p.conns)
	}
	return 0
}

// attachLocked 注册连接，返回角色（观战者为-1）
func (s *LiveSession) attachLocked(userID uint, connID string) int {
	if p, ok := s.participants[userID]; ok {
		p.conns[connID] = struct{}{}
		return p.role
	}
	// 非参与者按观战者处理，只收广播不可落子
	s.spectators[connID] = struct{}{}
	return -1
}

// detachLocked 移除连接，返回该用户是否为参与者且连接集合被清空
func (s *LiveSession) detachLocked(userID uint, connID string) bool {
	if p, ok := s.participants[userID]; ok {
		delete(p.conns, connID)
		return len(p.conns) == 0
	}
	delete(s.spectators, connID)
	return false
}

// readyLocked 所有角色是否都有至少一条连接
func (s *LiveSession) readyLocked() bool {
	for _, p := range s.participants {
		if len(p.conns) == 0 {
			return false
		}
	}
	return len(s.participants) > 0
}

// desertedLocked 所有参与者是否都已断开
func (s *LiveSession) desertedLocked() bool {
	for _, p := range s.participants {
		if len(p.conns) > 0 {
			return false
		}
	}
	return true
}

// soleConnectedLocked 恰好剩一个参与者在线时返回其ID
func (s *LiveSession) soleConnectedLocked() (uint, bool) {
	var (
		found uint
		count int
	)
	for userID, p := range s.participants {
		if len(p.conns) > 0 {
			found = userID
			count++
		}
	}
	if count == 1 {
		return found, true
	}
	return 0, false
}
