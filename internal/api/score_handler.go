package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/arcade-server/internal/middleware"
	"github.com/wfunc/arcade-server/internal/models"
	"github.com/wfunc/arcade-server/internal/repository"
	"go.uber.org/zap"
)

// ScoreHandler 成绩与排行榜处理器
type ScoreHandler struct {
	scoreRepo repository.ScoreRecordRepository
	gameRepo  repository.GameRepository
	logger    *zap.Logger
}

// NewScoreHandler 创建成绩处理器
func NewScoreHandler(scoreRepo repository.ScoreRecordRepository, gameRepo repository.GameRepository, logger *zap.Logger) *ScoreHandler {
	return &ScoreHandler{
		scoreRepo: scoreRepo,
		gameRepo:  gameRepo,
		logger:    logger,
	}
}

// ReportRequest 单机成绩上报请求
type ReportRequest struct {
	GameKey    string `json:"game_key" binding:"required"`
	Score      int64  `json:"score" binding:"required,min=1"`
	DurationMs int64  `json:"duration_ms" binding:"required,min=1"`
	Mode       string `json:"mode"`
}

// Report 上报单机成绩
//
// 联机对局由服务端结算，这里只接收单机与透传路径的上报。
func (h *ScoreHandler) Report(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists || userID == 0 {
		c.JSON(401, gin.H{"error": "未登录"})
		return
	}

	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "参数错误: " + err.Error()})
		return
	}

	if req.Mode == "" {
		req.Mode = models.ModeSingle
	}
	if req.Mode != models.ModeSingle && req.Mode != models.ModeMulti {
		c.JSON(400, gin.H{"error": "mode必须是single或multi"})
		return
	}

	if _, err := h.gameRepo.FindByKey(c.Request.Context(), req.GameKey); err != nil {
		c.JSON(400, gin.H{"error": "未知的游戏"})
		return
	}

	record := &models.ScoreRecord{
		UserID:     userID,
		GameKey:    req.GameKey,
		Score:      req.Score,
		DurationMs: req.DurationMs,
		Mode:       req.Mode,
	}
	if err := h.scoreRepo.Create(c.Request.Context(), record); err != nil {
		h.logger.Error("成绩落库失败",
			zap.Uint("user_id", userID),
			zap.String("game_key", req.GameKey),
			zap.Error(err))
		c.JSON(500, gin.H{"error": "成绩保存失败"})
		return
	}

	c.JSON(200, gin.H{
		"id":      record.ID,
		"message": "成绩已记录",
	})
}

// Leaderboard 查询排行榜
func (h *ScoreHandler) Leaderboard(c *gin.Context) {
	gameKey := c.Param("gameKey")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	entries, err := h.scoreRepo.Leaderboard(c.Request.Context(), gameKey, limit)
	if err != nil {
		h.logger.Error("排行榜查询失败",
			zap.String("game_key", gameKey),
			zap.Error(err))
		c.JSON(500, gin.H{"error": "排行榜查询失败"})
		return
	}

	c.JSON(200, gin.H{
		"game_key": gameKey,
		"entries":  entries,
	})
}

// MyScores 查询自己的成绩记录
func (h *ScoreHandler) MyScores(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists || userID == 0 {
		c.JSON(401, gin.H{"error": "未登录"})
		return
	}

	gameKey := c.Query("game_key")
	mode := c.Query("mode")
	if mode != "" && mode != models.ModeSingle && mode != models.ModeMulti {
		c.JSON(400, gin.H{"error": "mode必须是single或multi"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	p := repository.NewPagination(page, pageSize)
	records, err := h.scoreRepo.FindByUserID(c.Request.Context(), userID, gameKey, mode, p)
	if err != nil {
		h.logger.Error("成绩查询失败",
			zap.Uint("user_id", userID),
			zap.Error(err))
		c.JSON(500, gin.H{"error": "成绩查询失败"})
		return
	}

	c.JSON(200, gin.H{
		"records":   records,
		"total":     p.Total,
		"page":      p.Page,
		"page_size": p.PageSize,
	})
}

// PersonalBest 查询自己在某个游戏的最高分
func (h *ScoreHandler) PersonalBest(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists || userID == 0 {
		c.JSON(401, gin.H{"error": "未登录"})
		return
	}

	gameKey := c.Param("gameKey")
	best, err := h.scoreRepo.PersonalBest(c.Request.Context(), userID, gameKey)
	if err != nil {
		h.logger.Error("最高分查询失败",
			zap.Uint("user_id", userID),
			zap.String("game_key", gameKey),
			zap.Error(err))
		c.JSON(500, gin.H{"error": "最高分查询失败"})
		return
	}

	if best == nil {
		c.JSON(200, gin.H{"game_key": gameKey, "best": nil})
		return
	}

	c.JSON(200, gin.H{"game_key": gameKey, "best": best})
}
