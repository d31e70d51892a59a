package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/wfunc/arcade-server/internal/api"
	"github.com/wfunc/arcade-server/internal/config"
	"github.com/wfunc/arcade-server/internal/database"
	"github.com/wfunc/arcade-server/internal/errors"
	"github.com/wfunc/arcade-server/internal/game"
	"github.com/wfunc/arcade-server/internal/logger"
	"github.com/wfunc/arcade-server/internal/matchmaking"
	"github.com/wfunc/arcade-server/internal/repository"
	"github.com/wfunc/arcade-server/internal/utils"
	ws "github.com/wfunc/arcade-server/internal/websocket"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	hub      *ws.Hub
	queue    *matchmaking.Queue
	registry *game.Registry
	cache    *game.SnapshotCache
	router   *api.Router
	httpSrv  *http.Server

	shutdownCh chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
}

func main() {
	// .env用于本地开发，不存在时静默跳过
	_ = godotenv.Load()

	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	// 创建服务器实例
	server := NewServer(cfg)

	// 启动服务器
	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	// 等待退出信号
	server.WaitForShutdown()

	// 优雅关闭
	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
	logger.Cleanup()
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动街机对战服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	if err := s.initDatabase(); err != nil {
		return err
	}

	s.initComponents()

	// HTTP与WebSocket共用一个端口
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router.GetEngine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("HTTP服务器异常退出", zap.Error(err))
		}
	}()

	// 定期清理长时间无活动的未结束会话
	go s.runSessionJanitor()

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.cfg = newCfg
		s.logger.Info("配置已重新加载")
	})

	s.logger.Info("服务器启动成功", zap.String("address", addr))

	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	s.logger.Info("初始化数据库...")

	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	if !database.IsConnected() {
		return errors.New(errors.ErrDatabaseConnect, "数据库连接检查失败")
	}

	s.logger.Info("数据库初始化完成")
	return nil
}

// initComponents 组装各组件
func (s *Server) initComponents() {
	db := database.GetDB()

	gameRepo := repository.NewGameRepository(db)
	sessionRepo := repository.NewMatchSessionRepository(db)
	scoreRepo := repository.NewScoreRecordRepository(db)

	s.hub = ws.NewHub(logger.GetModuleLogger("websocket"))
	go s.hub.Run()

	s.queue = matchmaking.NewQueue(gameRepo, sessionRepo)
	s.cache = game.NewSnapshotCache(&s.cfg.Cache)

	scoring := game.Scoring{
		Win:  s.cfg.Game.Scoring.Win,
		Draw: s.cfg.Game.Scoring.Draw,
		Loss: s.cfg.Game.Scoring.Loss,
	}
	s.registry = game.NewRegistry(sessionRepo, scoreRepo, s.cache, s.hub, scoring)

	jwtManager := utils.NewJWTManager(
		s.cfg.Security.JWT.Secret,
		time.Duration(s.cfg.Security.JWT.ExpireHours)*time.Hour,
	)

	s.router = api.NewRouter(&api.RouterDeps{
		DB:          db,
		Config:      s.cfg,
		Hub:         s.hub,
		Queue:       s.queue,
		Registry:    s.registry,
		GameRepo:    gameRepo,
		SessionRepo: sessionRepo,
		ScoreRepo:   scoreRepo,
		JWTManager:  jwtManager,
		Log:         logger.GetModuleLogger("api"),
	})
}

// runSessionJanitor 定期把僵尸会话标记为结束
func (s *Server) runSessionJanitor() {
	idle := s.cfg.Game.SessionIdleTimeout
	if idle <= 0 {
		return
	}

	sessionRepo := repository.NewMatchSessionRepository(database.GetDB())
	ticker := time.NewTicker(idle)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			cleaned, err := sessionRepo.CleanupStaleSessions(s.ctx, time.Now().Add(-idle))
			if err != nil {
				s.logger.Error("僵尸会话清理失败", zap.Error(err))
				continue
			}
			if cleaned > 0 {
				s.logger.Info("已清理僵尸会话", zap.Int64("count", cleaned))
			}
		}
	}
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))

	close(s.shutdownCh)
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接收新请求
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP服务器关闭超时", zap.Error(err))
		}
	}

	// 触发后台goroutine退出
	s.cancel()

	// 关闭组件
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("关闭快照缓存失败", zap.Error(err))
		}
	}

	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}

	return nil
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("街机对战服务器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
