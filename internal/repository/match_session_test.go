package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/arcade-server/internal/models"
)

func TestMatchSessionRepository_Create(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)
	SeedTestData(t, db)

	repo := NewMatchSessionRepository(db)
	ctx := context.Background()

	session := CreateTestMatchSession("tictactoe", 1, 2)
	err := repo.Create(ctx, session)
	require.NoError(t, err)
	assert.NotZero(t, session.ID)

	found, err := repo.FindBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	AssertMatchSession(t, session, found)
	assert.Equal(t, 0, found.PlayerRole(1))
	assert.Equal(t, 1, found.PlayerRole(2))
	assert.Equal(t, -1, found.PlayerRole(99))
}

func TestMatchSessionRepository_FindBySessionID_NotFound(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)

	repo := NewMatchSessionRepository(db)

	_, err := repo.FindBySessionID(context.Background(), "no-such-session")
	assert.Error(t, err)
}

func TestMatchSessionRepository_ActivateAndFinish(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)
	SeedTestData(t, db)

	repo := NewMatchSessionRepository(db)
	ctx := context.Background()

	session := CreateTestMatchSession("tictactoe", 1, 2)
	require.NoError(t, repo.Create(ctx, session))

	// waiting -> active
	require.NoError(t, repo.ActivateSession(ctx, session.SessionID))
	found, err := repo.FindBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, found.Status)
	WaitRecent(t, found.StartedAt)

	// 再次激活不应改变已激活的会话
	require.NoError(t, repo.ActivateSession(ctx, session.SessionID))
	again, err := repo.FindBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, again.Status)

	// active -> finished
	require.NoError(t, repo.FinishSession(ctx, session.SessionID))
	finished, err := repo.FindBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFinished, finished.Status)
	WaitRecent(t, finished.FinishedAt)
	assert.True(t, finished.IsFinished())
}

func TestMatchSessionRepository_SaveSnapshot(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)
	SeedTestData(t, db)

	repo := NewMatchSessionRepository(db)
	ctx := context.Background()

	session := CreateTestMatchSession("tictactoe", 1, 2)
	require.NoError(t, repo.Create(ctx, session))

	snapshot := `{"board":[[null,null,null],[null,"X",null],[null,null,null]],"current":"O","winner":null}`
	require.NoError(t, repo.SaveSnapshot(ctx, session.SessionID, snapshot))

	found, err := repo.FindBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, snapshot, found.Snapshot)
}

func TestMatchSessionRepository_FindByUserID(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)
	SeedTestData(t, db)

	repo := NewMatchSessionRepository(db)
	ctx := context.Background()

	s1 := CreateTestMatchSession("tictactoe", 1, 2)
	s2 := CreateTestMatchSession("tictactoe", 1, 3)
	s3 := CreateTestMatchSession("tictactoe", 2, 3)
	// 12和13的会话不能因为ID前缀相同算到用户1头上
	s4 := CreateTestMatchSession("tictactoe", 12, 13)
	require.NoError(t, repo.Create(ctx, s1))
	require.NoError(t, repo.Create(ctx, s2))
	require.NoError(t, repo.Create(ctx, s3))
	require.NoError(t, repo.Create(ctx, s4))

	p := NewPagination(1, 10)
	sessions, err := repo.FindByUserID(ctx, 1, p)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	assert.Equal(t, int64(2), p.Total)

	p2 := NewPagination(1, 10)
	sessions3, err := repo.FindByUserID(ctx, 3, p2)
	require.NoError(t, err)
	assert.Len(t, sessions3, 2)

	p3 := NewPagination(1, 10)
	sessions12, err := repo.FindByUserID(ctx, 12, p3)
	require.NoError(t, err)
	assert.Len(t, sessions12, 1)
}

func TestMatchSessionRepository_CleanupStaleSessions(t *testing.T) {
	db := TestDB(t)
	defer CleanupTestDB(db)
	SeedTestData(t, db)

	repo := NewMatchSessionRepository(db)
	ctx := context.Background()

	stale := CreateTestMatchSession("tictactoe", 1, 2)
	require.NoError(t, repo.Create(ctx, stale))

	// 把更新时间回拨，模拟长时间无活动
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, db.Model(&models.MatchSession{}).
		Where("session_id = ?", stale.SessionID).
		UpdateColumn("updated_at", past).Error)

	fresh := CreateTestMatchSession("tictactoe", 2, 3)
	require.NoError(t, repo.Create(ctx, fresh))

	affected, err := repo.CleanupStaleSessions(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	found, err := repo.FindBySessionID(ctx, stale.SessionID)
	require.NoError(t, err)
	assert.True(t, found.IsFinished())

	kept, err := repo.FindBySessionID(ctx, fresh.SessionID)
	require.NoError(t, err)
	assert.False(t, kept.IsFinished())
}
