package api

import (
	"github.com/gin-gonic/gin"
	"github.com/wfunc/arcade-server/internal/config"
	"github.com/wfunc/arcade-server/internal/game"
	"github.com/wfunc/arcade-server/internal/matchmaking"
	"github.com/wfunc/arcade-server/internal/middleware"
	"github.com/wfunc/arcade-server/internal/repository"
	"github.com/wfunc/arcade-server/internal/utils"
	ws "github.com/wfunc/arcade-server/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Router API路由器
type Router struct {
	engine         *gin.Engine
	db             *gorm.DB
	gameHandler    *GameHandler
	scoreHandler   *ScoreHandler
	wsHandler      *WebSocketHandler
	authMiddleware *middleware.AuthMiddleware
	log            *zap.Logger
}

// RouterDeps 路由依赖
type RouterDeps struct {
	DB          *gorm.DB
	Config      *config.Config
	Hub         *ws.Hub
	Queue       *matchmaking.Queue
	Registry    *game.Registry
	GameRepo    repository.GameRepository
	SessionRepo repository.MatchSessionRepository
	ScoreRepo   repository.ScoreRecordRepository
	JWTManager  *utils.JWTManager
	Log         *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(deps *RouterDeps) *Router {
	if deps.Config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// 全局中间件
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	lobbyHandler := ws.NewLobbyHandler(deps.Hub, deps.Queue)
	sessionHandler := ws.NewSessionHandler(
		deps.Hub,
		deps.Registry,
		deps.SessionRepo,
		deps.ScoreRepo,
		deps.Config.WebSocket.MaxChatLength,
	)

	router := &Router{
		engine:         engine,
		db:             deps.DB,
		gameHandler:    NewGameHandler(deps.GameRepo, deps.SessionRepo, deps.Queue, deps.Registry, deps.Log),
		scoreHandler:   NewScoreHandler(deps.ScoreRepo, deps.GameRepo, deps.Log),
		wsHandler:      NewWebSocketHandler(deps.Hub, lobbyHandler, sessionHandler, &deps.Config.WebSocket, deps.Log),
		authMiddleware: middleware.NewAuthMiddleware(deps.JWTManager),
		log:            deps.Log,
	}

	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// API v1路由组
	v1 := r.engine.Group("/api/v1")
	{
		// 游戏目录与会话查询（无需登录）
		v1.GET("/games", r.gameHandler.ListGames)
		v1.GET("/sessions/:sessionId", r.gameHandler.GetSession)
		v1.GET("/matchmaking/queue/:gameKey", r.gameHandler.QueueStatus)

		// 排行榜（无需登录）
		v1.GET("/scores/leaderboard/:gameKey", r.scoreHandler.Leaderboard)

		// 成绩相关路由（需要认证）
		scores := v1.Group("/scores")
		scores.Use(r.authMiddleware.RequireAuth())
		{
			scores.POST("", r.scoreHandler.Report)
			scores.GET("/me", r.scoreHandler.MyScores)
			scores.GET("/best/:gameKey", r.scoreHandler.PersonalBest)
		}
	}

	// WebSocket路由（令牌走Query参数）
	wsGroup := r.engine.Group("/ws")
	wsGroup.Use(r.authMiddleware.RequireAuth())
	{
		wsGroup.GET("/lobby", r.wsHandler.LobbyWebSocket)
		wsGroup.GET("/game/:sessionId", r.wsHandler.GameWebSocket)
	}

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	sqlDB, err := r.db.DB()
	if err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "数据库连接失败",
		})
		return
	}

	if err := sqlDB.Ping(); err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "数据库ping失败",
		})
		return
	}

	c.JSON(200, gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
	})
}

// Run 运行服务器
func (r *Router) Run(addr string) error {
	r.log.Info("Starting API server", zap.String("address", addr))
	return r.engine.Run(addr)
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
