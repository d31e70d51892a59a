package api

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/arcade-server/internal/game"
	"github.com/wfunc/arcade-server/internal/matchmaking"
	"github.com/wfunc/arcade-server/internal/models"
	"github.com/wfunc/arcade-server/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GameHandler 游戏目录与会话查询处理器
type GameHandler struct {
	gameRepo    repository.GameRepository
	sessionRepo repository.MatchSessionRepository
	queue       *matchmaking.Queue
	registry    *game.Registry
	logger      *zap.Logger
}

// NewGameHandler 创建游戏处理器
func NewGameHandler(
	gameRepo repository.GameRepository,
	sessionRepo repository.MatchSessionRepository,
	queue *matchmaking.Queue,
	registry *game.Registry,
	logger *zap.Logger,
) *GameHandler {
	return &GameHandler{
		gameRepo:    gameRepo,
		sessionRepo: sessionRepo,
		queue:       queue,
		registry:    registry,
		logger:      logger,
	}
}

// GameInfo 游戏目录条目
type GameInfo struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	MaxPlayers int    `json:"max_players"`
	Realtime   bool   `json:"realtime"`
}

// SessionInfo 会话查询响应
type SessionInfo struct {
	SessionID  string              `json:"session_id"`
	GameKey    string              `json:"game_key"`
	Status     string              `json:"status"`
	Players    models.MatchPlayers `json:"players"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	Live       bool                `json:"live"`
}

// ListGames 列出可玩的游戏
func (h *GameHandler) ListGames(c *gin.Context) {
	games, err := h.gameRepo.ListActive(c.Request.Context())
	if err != nil {
		h.logger.Error("游戏目录查询失败", zap.Error(err))
		c.JSON(500, gin.H{"error": "游戏目录查询失败"})
		return
	}

	out := make([]GameInfo, 0, len(games))
	for _, g := range games {
		out = append(out, GameInfo{
			Key:        g.Key,
			Name:       g.Name,
			MaxPlayers: g.MaxPlayers,
			Realtime:   g.Realtime,
		})
	}

	c.JSON(200, gin.H{"games": out})
}

// GetSession 查询会话
func (h *GameHandler) GetSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	record, err := h.sessionRepo.FindBySessionID(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(404, gin.H{"error": "会话不存在"})
			return
		}
		h.logger.Error("会话查询失败",
			zap.String("session_id", sessionID),
			zap.Error(err))
		c.JSON(500, gin.H{"error": "会话查询失败"})
		return
	}

	_, live := h.registry.Resident(sessionID)

	c.JSON(200, SessionInfo{
		SessionID:  record.SessionID,
		GameKey:    record.GameKey,
		Status:     record.Status,
		Players:    record.Players,
		StartedAt:  record.StartedAt,
		FinishedAt: record.FinishedAt,
		Live:       live,
	})
}

// QueueStatus 查询某个游戏的排队人数
func (h *GameHandler) QueueStatus(c *gin.Context) {
	gameKey := c.Param("gameKey")

	c.JSON(200, gin.H{
		"game_key": gameKey,
		"waiting":  h.queue.Len(gameKey),
	})
}
