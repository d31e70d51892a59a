package database

import (
	"fmt"

	"github.com/wfunc/arcade-server/internal/logger"
	"github.com/wfunc/arcade-server/internal/models"
	"go.uber.org/zap"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	// 定义需要迁移的模型
	migrationModels := []interface{}{
		&models.User{},
		&models.Game{},
		&models.MatchSession{},
		&models.ScoreRecord{},
	}

	logger.Info("开始数据库迁移...")

	// SQLite 迁移期间关闭外键约束，避免重建表时的问题
	if DB.Dialector.Name() == "sqlite" {
		DB.Exec("PRAGMA foreign_keys = OFF")
		defer DB.Exec("PRAGMA foreign_keys = ON")
	}

	for _, model := range migrationModels {
		if err := DB.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	// 创建索引
	if err := createIndexes(); err != nil {
		return err
	}

	// 初始化默认数据
	if err := initDefaultData(); err != nil {
		return err
	}

	logger.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建数据库索引
func createIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_score_records_user_game ON score_records(user_id, game_key)",
		"CREATE INDEX IF NOT EXISTS idx_score_records_game_score ON score_records(game_key, score)",
		"CREATE INDEX IF NOT EXISTS idx_score_records_created_at ON score_records(created_at)",
		"CREATE INDEX IF NOT EXISTS idx_match_sessions_game_status ON match_sessions(game_key, status)",
	}

	for _, idx := range indexes {
		if err := DB.Exec(idx).Error; err != nil {
			logger.Warn("创建索引失败", zap.String("index", idx), zap.Error(err))
		}
	}

	logger.Info("数据库索引创建完成")
	return nil
}

// initDefaultData 初始化默认数据
func initDefaultData() error {
	// 检查是否已有游戏目录数据
	var count int64
	DB.Model(&models.Game{}).Count(&count)
	if count > 0 {
		return nil
	}

	// 创建默认游戏目录
	defaultGames := []models.Game{
		{
			Key:         "snake",
			Name:        "贪吃蛇",
			Description: "经典贪吃蛇，吃到食物变长",
			Genre:       "arcade",
			Status:      "active",
			MaxPlayers:  1,
			Realtime:    false,
			SortOrder:   1,
		},
		{
			Key:         "tetris",
			Name:        "俄罗斯方块",
			Description: "经典俄罗斯方块消行游戏",
			Genre:       "puzzle",
			Status:      "active",
			MaxPlayers:  1,
			Realtime:    false,
			SortOrder:   2,
		},
		{
			Key:         "mario",
			Name:        "横版闯关",
			Description: "横版平台跳跃闯关",
			Genre:       "platformer",
			Status:      "active",
			MaxPlayers:  1,
			Realtime:    false,
			SortOrder:   3,
		},
		{
			Key:         "tictactoe",
			Name:        "井字棋",
			Description: "双人对战井字棋，服务端裁决",
			Genre:       "board",
			Status:      "active",
			MaxPlayers:  2,
			Realtime:    true,
			SortOrder:   4,
		},
	}

	for _, game := range defaultGames {
		if err := DB.Create(&game).Error; err != nil {
			logger.Error("创建默认游戏失败",
				zap.String("key", game.Key),
				zap.Error(err),
			)
		}
	}

	logger.Info("默认数据初始化完成")
	return nil
}

// DropAllTables 删除所有表（仅用于测试环境）
func DropAllTables() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	var tables []string
	if err := DB.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tables).Error; err != nil {
		return err
	}

	for _, table := range tables {
		if err := DB.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)).Error; err != nil {
			logger.Error("删除表失败", zap.String("table", table), zap.Error(err))
			return err
		}
	}

	logger.Info("所有表已删除")
	return nil
}
