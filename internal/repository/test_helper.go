package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/arcade-server/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 创建测试数据库
func TestDB(t *testing.T) *gorm.DB {
	// 使用内存数据库进行测试（更快，不需要文件系统，在所有环境中都能工作）
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.User{},
		&models.Game{},
		&models.MatchSession{},
		&models.ScoreRecord{},
	)
	require.NoError(t, err)

	return db
}

// CleanupTestDB 清理测试数据库
func CleanupTestDB(db *gorm.DB) {
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// SeedTestData 创建测试数据
func SeedTestData(t *testing.T, db *gorm.DB) {
	// 创建测试用户
	users := []models.User{
		{
			Username: "player1",
			Email:    "player1@example.com",
			Nickname: "玩家一",
			Status:   "active",
		},
		{
			Username: "player2",
			Email:    "player2@example.com",
			Nickname: "玩家二",
			Status:   "active",
		},
	}
	err := db.Create(&users).Error
	require.NoError(t, err)

	// 创建测试游戏目录
	games := []models.Game{
		{
			Key:        "snake",
			Name:       "贪吃蛇",
			Genre:      "arcade",
			Status:     "active",
			MaxPlayers: 1,
			Realtime:   false,
			SortOrder:  1,
		},
		{
			Key:        "tictactoe",
			Name:       "井字棋",
			Genre:      "board",
			Status:     "active",
			MaxPlayers: 2,
			Realtime:   true,
			SortOrder:  2,
		},
	}
	err = db.Create(&games).Error
	require.NoError(t, err)
}

// CreateTestMatchSession 创建测试对战会话
func CreateTestMatchSession(gameKey string, userIDs ...uint) *models.MatchSession {
	players := make(models.MatchPlayers, 0, len(userIDs))
	for i, id := range userIDs {
		players = append(players, models.MatchPlayer{UserID: id, Role: i})
	}
	return &models.MatchSession{
		SessionID: uuid.New().String(),
		GameKey:   gameKey,
		Status:    models.SessionStatusWaiting,
		Players:   players,
	}
}

// CreateTestScoreRecord 创建测试成绩记录
func CreateTestScoreRecord(userID uint, gameKey string, score int64) *models.ScoreRecord {
	return &models.ScoreRecord{
		UserID:     userID,
		GameKey:    gameKey,
		Score:      score,
		DurationMs: 60_000,
		Mode:       models.ModeSingle,
	}
}

// AssertMatchSession 验证对战会话
func AssertMatchSession(t *testing.T, expected, actual *models.MatchSession) {
	assert.Equal(t, expected.SessionID, actual.SessionID)
	assert.Equal(t, expected.GameKey, actual.GameKey)
	assert.Equal(t, expected.Status, actual.Status)
	assert.Equal(t, expected.Players, actual.Players)
}

// AssertScoreRecord 验证成绩记录
func AssertScoreRecord(t *testing.T, expected, actual *models.ScoreRecord) {
	assert.Equal(t, expected.UserID, actual.UserID)
	assert.Equal(t, expected.GameKey, actual.GameKey)
	assert.Equal(t, expected.Score, actual.Score)
	assert.Equal(t, expected.Mode, actual.Mode)
}

// WaitRecent 检查时间戳是否在最近几秒内
func WaitRecent(t *testing.T, ts *time.Time) {
	require.NotNil(t, ts)
	assert.WithinDuration(t, time.Now(), *ts, 5*time.Second)
}
