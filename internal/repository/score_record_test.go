package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/arcade-server/internal/models"
)

func TestScoreRecordRepository_Create(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)
	SeedTestData(t, db)

	repo := NewScoreRecordRepository(db)
	ctx := context.Background()

	record := CreateTestScoreRecord(1, "snake", 420)
	err := repo.Create(ctx, record)
	require.NoError(t, err)
	assert.NotZero(t, record.ID)

	found, err := repo.FindByID(ctx, record.ID)
	require.NoError(t, err)
	AssertScoreRecord(t, record, found)
}

func TestScoreRecordRepository_Create_ClampsDuration(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)
	SeedTestData(t, db)

	repo := NewScoreRecordRepository(db)
	ctx := context.Background()

	record := CreateTestScoreRecord(1, "snake", 100)
	record.DurationMs = 0
	require.NoError(t, repo.Create(ctx, record))

	found, err := repo.FindByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), found.DurationMs)
}

func TestScoreRecordRepository_FindByUserID(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)
	SeedTestData(t, db)

	repo := NewScoreRecordRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, CreateTestScoreRecord(1, "snake", 100)))
	require.NoError(t, repo.Create(ctx, CreateTestScoreRecord(1, "snake", 200)))
	require.NoError(t, repo.Create(ctx, CreateTestScoreRecord(1, "tetris", 300)))
	require.NoError(t, repo.Create(ctx, CreateTestScoreRecord(2, "snake", 400)))

	// 按游戏过滤
	p := NewPagination(1, 10)
	records, err := repo.FindByUserID(ctx, 1, "snake", "", p)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, int64(2), p.Total)

	// 不过滤游戏
	p2 := NewPagination(1, 10)
	all, err := repo.FindByUserID(ctx, 1, "", "", p2)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, int64(3), p2.Total)

	// 分页
	p3 := NewPagination(1, 2)
	page1, err := repo.FindByUserID(ctx, 1, "", "", p3)
	require.NoError(t, err)
	assert.Len(t, page1, 2)
	assert.Equal(t, int64(3), p3.Total)

	// 按模式过滤
	multi := CreateTestScoreRecord(1, "tictactoe", 100)
	multi.Mode = models.ModeMulti
	require.NoError(t, repo.Create(ctx, multi))

	p4 := NewPagination(1, 10)
	multiOnly, err := repo.FindByUserID(ctx, 1, "", models.ModeMulti, p4)
	require.NoError(t, err)
	assert.Len(t, multiOnly, 1)
	assert.Equal(t, "tictactoe", multiOnly[0].GameKey)
}

func TestScoreRecordRepository_Leaderboard(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)
	SeedTestData(t, db)

	repo := NewScoreRecordRepository(db)
	ctx := context.Background()

	// 玩家一最高200，玩家二最高400（两次达成）
	require.NoError(t, repo.Create(ctx, CreateTestScoreRecord(1, "snake", 100)))
	require.NoError(t, repo.Create(ctx, CreateTestScoreRecord(1, "snake", 200)))
	require.NoError(t, repo.Create(ctx, CreateTestScoreRecord(2, "snake", 400)))
	require.NoError(t, repo.Create(ctx, CreateTestScoreRecord(2, "snake", 400)))
	require.NoError(t, repo.Create(ctx, CreateTestScoreRecord(2, "tetris", 999)))

	entries, err := repo.Leaderboard(ctx, "snake", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, uint(2), entries[0].UserID)
	assert.Equal(t, int64(400), entries[0].Score)
	assert.Equal(t, "player2", entries[0].Username)

	assert.Equal(t, uint(1), entries[1].UserID)
	assert.Equal(t, int64(200), entries[1].Score)

	// 达成时间取自最高分那条记录本身
	assert.False(t, entries[0].PlayedAt.IsZero())
	assert.False(t, entries[1].PlayedAt.IsZero())
}

func TestScoreRecordRepository_PersonalBest(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)
	SeedTestData(t, db)

	repo := NewScoreRecordRepository(db)
	ctx := context.Background()

	// 没有记录时返回nil
	best, err := repo.PersonalBest(ctx, 1, "snake")
	require.NoError(t, err)
	assert.Nil(t, best)

	require.NoError(t, repo.Create(ctx, CreateTestScoreRecord(1, "snake", 100)))
	require.NoError(t, repo.Create(ctx, CreateTestScoreRecord(1, "snake", 300)))
	require.NoError(t, repo.Create(ctx, CreateTestScoreRecord(1, "snake", 200)))

	best, err = repo.PersonalBest(ctx, 1, "snake")
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, int64(300), best.Score)
}

func TestScoreRecordRepository_CountSince(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)
	SeedTestData(t, db)

	repo := NewScoreRecordRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, CreateTestScoreRecord(1, "snake", 100)))
	require.NoError(t, repo.Create(ctx, CreateTestScoreRecord(1, "snake", 200)))

	count, err := repo.CountSince(ctx, 1, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = repo.CountSince(ctx, 1, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestGameRepository_FindByKey(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)
	SeedTestData(t, db)

	repo := NewGameRepository(db)
	ctx := context.Background()

	game, err := repo.FindByKey(ctx, "tictactoe")
	require.NoError(t, err)
	assert.Equal(t, "tictactoe", game.Key)
	assert.True(t, game.Realtime)
	assert.Equal(t, 2, game.MaxPlayers)

	_, err = repo.FindByKey(ctx, "pacman")
	assert.Error(t, err)
}

func TestGameRepository_ListActive(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)
	SeedTestData(t, db)

	repo := NewGameRepository(db)
	ctx := context.Background()

	// 加一个停服的游戏，不应出现在列表里
	require.NoError(t, repo.Create(ctx, &models.Game{
		Key:    "legacy",
		Name:   "下架游戏",
		Status: "disabled",
	}))

	games, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, games, 2)
	assert.Equal(t, "snake", games[0].Key)
	assert.Equal(t, "tictactoe", games[1].Key)
}

func TestUserRepository_CreateAndFind(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)

	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &models.User{Username: "newbie"}
	require.NoError(t, repo.Create(ctx, user))

	// BeforeCreate钩子填充默认值
	found, err := repo.FindByUsername(ctx, "newbie")
	require.NoError(t, err)
	assert.Equal(t, "newbie", found.Nickname)
	assert.Equal(t, "active", found.Status)
	assert.True(t, found.IsActive())

	require.NoError(t, repo.UpdateLastLogin(ctx, found.ID))
	again, err := repo.FindByID(ctx, found.ID)
	require.NoError(t, err)
	WaitRecent(t, again.LastLoginAt)
}
