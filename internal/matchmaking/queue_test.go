package matchmaking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/arcade-server/internal/errors"
	"github.com/wfunc/arcade-server/internal/models"
	"github.com/wfunc/arcade-server/internal/repository"
	"gorm.io/gorm"
)

func newTestQueue(t *testing.T) (*Queue, repository.MatchSessionRepository, func()) {
	db := repository.TestDB(t)
	repository.SeedTestData(t, db)

	gameRepo := repository.NewGameRepository(db)
	sessionRepo := repository.NewMatchSessionRepository(db)
	queue := NewQueue(gameRepo, sessionRepo)

	return queue, sessionRepo, func() { repository.CleanupTestDB(db) }
}

func TestQueue_EnqueueWaits(t *testing.T) {
	queue, _, cleanup := newTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	result, err := queue.Enqueue(ctx, "tictactoe", models.ModeMulti, 1)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 1, queue.Len("tictactoe"))
	assert.True(t, queue.Contains("tictactoe", 1))
}

func TestQueue_EnqueuePairsTwoEarliest(t *testing.T) {
	queue, sessionRepo, cleanup := newTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	_, err := queue.Enqueue(ctx, "tictactoe", models.ModeMulti, 1)
	require.NoError(t, err)

	session, err := queue.Enqueue(ctx, "tictactoe", models.ModeMulti, 2)
	require.NoError(t, err)
	require.NotNil(t, session)

	// 角色按先来后到分配
	assert.Equal(t, "tictactoe", session.GameKey)
	assert.Equal(t, models.SessionStatusWaiting, session.Status)
	assert.Equal(t, 0, session.PlayerRole(1))
	assert.Equal(t, 1, session.PlayerRole(2))

	// 队列清空
	assert.Equal(t, 0, queue.Len("tictactoe"))

	// 会话已落库
	persisted, err := sessionRepo.FindBySessionID(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.Players, persisted.Players)
}

func TestQueue_EnqueueRejectsSingleMode(t *testing.T) {
	queue, _, cleanup := newTestQueue(t)
	defer cleanup()

	_, err := queue.Enqueue(context.Background(), "tictactoe", models.ModeSingle, 1)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrModeNotQueueable))
}

func TestQueue_EnqueueRejectsUnknownGame(t *testing.T) {
	queue, _, cleanup := newTestQueue(t)
	defer cleanup()

	_, err := queue.Enqueue(context.Background(), "pacman", models.ModeMulti, 1)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnknownGame))
}

func TestQueue_EnqueuePassthroughGame(t *testing.T) {
	queue, _, cleanup := newTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	// snake没有服务端状态机，走透传路径，同样可以配对
	session, err := queue.Enqueue(ctx, "snake", models.ModeMulti, 1)
	require.NoError(t, err)
	assert.Nil(t, session)

	session, err = queue.Enqueue(ctx, "snake", models.ModeMulti, 2)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "snake", session.GameKey)
	assert.Equal(t, models.SessionStatusWaiting, session.Status)
}

func TestQueue_EnqueueRejectsDuplicate(t *testing.T) {
	queue, _, cleanup := newTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	_, err := queue.Enqueue(ctx, "tictactoe", models.ModeMulti, 1)
	require.NoError(t, err)

	_, err = queue.Enqueue(ctx, "tictactoe", models.ModeMulti, 1)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrAlreadyQueued))
	assert.Equal(t, 1, queue.Len("tictactoe"))
}

func TestQueue_DequeueIdempotent(t *testing.T) {
	queue, _, cleanup := newTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	_, err := queue.Enqueue(ctx, "tictactoe", models.ModeMulti, 1)
	require.NoError(t, err)

	assert.True(t, queue.Dequeue("tictactoe", 1))
	assert.False(t, queue.Dequeue("tictactoe", 1))
	assert.Equal(t, 0, queue.Len("tictactoe"))
}

func TestQueue_DequeuedPlayerNotPaired(t *testing.T) {
	queue, _, cleanup := newTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	_, err := queue.Enqueue(ctx, "tictactoe", models.ModeMulti, 1)
	require.NoError(t, err)
	queue.Dequeue("tictactoe", 1)

	// 取消后第二个玩家继续等待
	result, err := queue.Enqueue(ctx, "tictactoe", models.ModeMulti, 2)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, 1, queue.Len("tictactoe"))
}

func TestQueue_FIFOOrder(t *testing.T) {
	queue, _, cleanup := newTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	_, err := queue.Enqueue(ctx, "tictactoe", models.ModeMulti, 1)
	require.NoError(t, err)
	_, err = queue.Enqueue(ctx, "tictactoe", models.ModeMulti, 2)
	require.NoError(t, err)

	// 三四号玩家重新排队后配到一起
	_, err = queue.Enqueue(ctx, "tictactoe", models.ModeMulti, 3)
	require.NoError(t, err)
	session, err := queue.Enqueue(ctx, "tictactoe", models.ModeMulti, 4)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, 0, session.PlayerRole(3))
	assert.Equal(t, 1, session.PlayerRole(4))
}

func TestQueue_DequeueAll(t *testing.T) {
	queue, _, cleanup := newTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	_, err := queue.Enqueue(ctx, "tictactoe", models.ModeMulti, 1)
	require.NoError(t, err)

	removed := queue.DequeueAll(1)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, queue.Len("tictactoe"))
}

// flakySessionRepo 可开关的落库故障注入
type flakySessionRepo struct {
	repository.MatchSessionRepository
	fail bool
}

func (r *flakySessionRepo) Create(ctx context.Context, session *models.MatchSession) error {
	if r.fail {
		return gorm.ErrInvalidTransaction
	}
	return r.MatchSessionRepository.Create(ctx, session)
}

func TestQueue_PersistFailureRequeuesInOrder(t *testing.T) {
	db := repository.TestDB(t)
	defer repository.CleanupTestDB(db)
	repository.SeedTestData(t, db)

	flaky := &flakySessionRepo{
		MatchSessionRepository: repository.NewMatchSessionRepository(db),
		fail:                   true,
	}
	queue := NewQueue(repository.NewGameRepository(db), flaky)
	ctx := context.Background()

	_, err := queue.Enqueue(ctx, "tictactoe", models.ModeMulti, 1)
	require.NoError(t, err)

	_, err = queue.Enqueue(ctx, "tictactoe", models.ModeMulti, 2)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrPairingFailed))

	// 落库失败后两人都回到队列
	assert.Equal(t, 2, queue.Len("tictactoe"))
	assert.True(t, queue.Contains("tictactoe", 1))
	assert.True(t, queue.Contains("tictactoe", 2))

	// 故障恢复后配对仍按先来后到，三号继续等待
	flaky.fail = false
	session, err := queue.Enqueue(ctx, "tictactoe", models.ModeMulti, 3)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, 0, session.PlayerRole(1))
	assert.Equal(t, 1, session.PlayerRole(2))
	assert.True(t, queue.Contains("tictactoe", 3))
	assert.Equal(t, 1, queue.Len("tictactoe"))
}

func TestQueue_Reset(t *testing.T) {
	queue, _, cleanup := newTestQueue(t)
	defer cleanup()
	ctx := context.Background()

	_, err := queue.Enqueue(ctx, "tictactoe", models.ModeMulti, 1)
	require.NoError(t, err)

	queue.Reset()
	assert.Equal(t, 0, queue.Len("tictactoe"))
}
