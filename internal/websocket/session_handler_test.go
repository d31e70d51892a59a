package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/arcade-server/internal/game"
	"github.com/wfunc/arcade-server/internal/models"
	"github.com/wfunc/arcade-server/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type sessionFixture struct {
	hub         *Hub
	registry    *game.Registry
	handler     *SessionHandler
	sessionRepo repository.MatchSessionRepository
	scoreRepo   repository.ScoreRecordRepository
	db          *gorm.DB
}

func newSessionFixture(t *testing.T) *sessionFixture {
	db := repository.TestDB(t)
	repository.SeedTestData(t, db)
	t.Cleanup(func() { repository.CleanupTestDB(db) })

	sessionRepo := repository.NewMatchSessionRepository(db)
	scoreRepo := repository.NewScoreRecordRepository(db)

	hub := NewHub(zap.NewNop())
	registry := game.NewRegistry(sessionRepo, scoreRepo, nil, hub, game.DefaultScoring())
	handler := NewSessionHandler(hub, registry, sessionRepo, scoreRepo, MaxChatLength)

	return &sessionFixture{
		hub:         hub,
		registry:    registry,
		handler:     handler,
		sessionRepo: sessionRepo,
		scoreRepo:   scoreRepo,
		db:          db,
	}
}

// createSession 建一条会话记录并返回sessionId
func (f *sessionFixture) createSession(t *testing.T, gameKey string, userIDs ...uint) string {
	session := repository.CreateTestMatchSession(gameKey, userIDs...)
	require.NoError(t, f.sessionRepo.Create(context.Background(), session))
	return session.SessionID
}

// connect 连接并加入会话频道
func (f *sessionFixture) connect(userID uint, username, sessionID string) *Client {
	c := newTestClient(f.hub, userID, username, SessionChannel(sessionID), f.handler)
	f.hub.registerClient(c)
	return c
}

func (f *sessionFixture) join(c *Client) {
	f.handler.HandleMessage(c, []byte(`{"event":"join_room"}`))
}

func (f *sessionFixture) move(c *Client, x, y int) {
	f.handler.HandleMessage(c, []byte(fmt.Sprintf(`{"event":"make_move","data":{"x":%d,"y":%d}}`, x, y)))
}

func TestSessionHandler_JoinEngineSession(t *testing.T) {
	f := newSessionFixture(t)
	sid := f.createSession(t, "tictactoe", 1, 2)

	c1 := f.connect(1, "player1", sid)
	f.join(c1)

	// 一人在场：成员通告加当前局面，不开局
	events := drainEvents(t, c1)
	names := eventNames(events)
	assert.Equal(t, []string{EventRoomUpdate, EventStateSnapshot}, names)

	var update RoomUpdatePayload
	require.NoError(t, json.Unmarshal(events[0].Data, &update))
	assert.Equal(t, sid, update.SessionID)
	assert.Equal(t, 0, update.Role)
	assert.Len(t, update.Players, 2)
}

func TestSessionHandler_SecondJoinActivates(t *testing.T) {
	f := newSessionFixture(t)
	sid := f.createSession(t, "tictactoe", 1, 2)

	c1 := f.connect(1, "player1", sid)
	f.join(c1)
	drainEvents(t, c1)

	c2 := f.connect(2, "player2", sid)
	f.join(c2)

	// 开局广播发给整个频道，加入流程随后补发成员通告
	c1Names := eventNames(drainEvents(t, c1))
	assert.Equal(t, []string{EventStateSnapshot, EventRoomUpdate}, c1Names)

	c2Names := eventNames(drainEvents(t, c2))
	assert.Equal(t, []string{EventStateSnapshot, EventRoomUpdate}, c2Names)

	record, err := f.sessionRepo.FindBySessionID(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, record.Status)
}

func TestSessionHandler_MoveBroadcastsSnapshot(t *testing.T) {
	f := newSessionFixture(t)
	sid := f.createSession(t, "tictactoe", 1, 2)

	c1 := f.connect(1, "player1", sid)
	c2 := f.connect(2, "player2", sid)
	f.join(c1)
	f.join(c2)
	drainEvents(t, c1)
	drainEvents(t, c2)

	f.move(c1, 0, 0)

	for _, c := range []*Client{c1, c2} {
		events := drainEvents(t, c)
		require.Len(t, events, 1)
		assert.Equal(t, EventStateSnapshot, events[0].Event)
	}
}

func TestSessionHandler_RejectedMoveIsPrivate(t *testing.T) {
	f := newSessionFixture(t)
	sid := f.createSession(t, "tictactoe", 1, 2)

	c1 := f.connect(1, "player1", sid)
	c2 := f.connect(2, "player2", sid)
	f.join(c1)
	f.join(c2)
	drainEvents(t, c1)
	drainEvents(t, c2)

	// O方先手无效
	f.move(c2, 0, 0)

	events := drainEvents(t, c2)
	require.Len(t, events, 1)
	assert.Equal(t, EventRoomError, events[0].Event)

	// 拒绝不广播
	assert.Empty(t, drainEvents(t, c1))
}

func TestSessionHandler_MalformedMoveRejected(t *testing.T) {
	f := newSessionFixture(t)
	sid := f.createSession(t, "tictactoe", 1, 2)

	c1 := f.connect(1, "player1", sid)
	f.join(c1)
	drainEvents(t, c1)

	f.handler.HandleMessage(c1, []byte(`{"event":"make_move","data":{"x":1}}`))

	events := drainEvents(t, c1)
	require.Len(t, events, 1)
	assert.Equal(t, EventRoomError, events[0].Event)
}

func TestSessionHandler_ChatStampedByServer(t *testing.T) {
	f := newSessionFixture(t)
	sid := f.createSession(t, "tictactoe", 1, 2)

	c1 := f.connect(1, "player1", sid)
	c2 := f.connect(2, "player2", sid)

	f.handler.HandleMessage(c1, []byte(`{"event":"chat_message","data":{"message":"  gg  ","from":"forged","at":1}}`))

	for _, c := range []*Client{c1, c2} {
		events := drainEvents(t, c)
		require.Len(t, events, 1)
		assert.Equal(t, EventChatMessage, events[0].Event)

		var chat ChatBroadcast
		require.NoError(t, json.Unmarshal(events[0].Data, &chat))
		// 署名与时间戳以服务端为准
		assert.Equal(t, "player1", chat.From)
		assert.Equal(t, "gg", chat.Message)
		assert.Greater(t, chat.At, int64(1))
	}
}

func TestSessionHandler_EmptyChatRejected(t *testing.T) {
	f := newSessionFixture(t)
	sid := f.createSession(t, "tictactoe", 1, 2)

	c1 := f.connect(1, "player1", sid)
	f.handler.HandleMessage(c1, []byte(`{"event":"chat_message","data":{"message":"   "}}`))

	events := drainEvents(t, c1)
	require.Len(t, events, 1)
	assert.Equal(t, EventRoomError, events[0].Event)
}

func TestSessionHandler_PlayerStateRejectedOnEngineSession(t *testing.T) {
	f := newSessionFixture(t)
	sid := f.createSession(t, "tictactoe", 1, 2)

	c1 := f.connect(1, "player1", sid)
	f.join(c1)
	drainEvents(t, c1)

	f.handler.HandleMessage(c1, []byte(`{"event":"player_state","data":{"pos":5}}`))

	events := drainEvents(t, c1)
	require.Len(t, events, 1)
	assert.Equal(t, EventRoomError, events[0].Event)
}

func TestSessionHandler_PassthroughJoinAndRelay(t *testing.T) {
	f := newSessionFixture(t)
	sid := f.createSession(t, "snake", 1, 2)

	c1 := f.connect(1, "player1", sid)
	c2 := f.connect(2, "player2", sid)
	f.join(c1)
	f.join(c2)
	drainEvents(t, c1)
	drainEvents(t, c2)

	// 透传局面原样转发给其他连接，不回发给发送者
	f.handler.HandleMessage(c1, []byte(`{"event":"player_state","data":{"snake":[[1,2]],"food":[3,4]}}`))

	assert.Empty(t, drainEvents(t, c1))

	events := drainEvents(t, c2)
	require.Len(t, events, 1)
	assert.Equal(t, EventPlayerState, events[0].Event)
	assert.JSONEq(t, `{"snake":[[1,2]],"food":[3,4]}`, string(events[0].Data))
}

func TestSessionHandler_PassthroughJoinNotifiesOthers(t *testing.T) {
	f := newSessionFixture(t)
	sid := f.createSession(t, "snake", 1, 2)

	c1 := f.connect(1, "player1", sid)
	f.join(c1)
	drainEvents(t, c1)

	c2 := f.connect(2, "player2", sid)
	f.join(c2)

	// 先到者收到新成员通告
	events := drainEvents(t, c1)
	require.Len(t, events, 1)
	assert.Equal(t, EventRoomUpdate, events[0].Event)

	events = drainEvents(t, c2)
	require.Len(t, events, 1)
	assert.Equal(t, EventRoomUpdate, events[0].Event)

	var update RoomUpdatePayload
	require.NoError(t, json.Unmarshal(events[0].Data, &update))
	assert.Equal(t, 1, update.Role)
}

func TestSessionHandler_PassthroughGameOver(t *testing.T) {
	f := newSessionFixture(t)
	sid := f.createSession(t, "snake", 1, 2)

	c1 := f.connect(1, "player1", sid)
	c2 := f.connect(2, "player2", sid)
	f.join(c1)
	f.join(c2)
	drainEvents(t, c1)
	drainEvents(t, c2)

	f.handler.HandleMessage(c1, []byte(`{"event":"game_over","data":{"gameKey":"snake","score":420,"durationMs":60000}}`))

	// 上报者产生一条成绩记录
	var records []models.ScoreRecord
	require.NoError(t, f.db.Where("user_id = ?", 1).Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, "snake", records[0].GameKey)
	assert.Equal(t, int64(420), records[0].Score)
	assert.Equal(t, models.ModeMulti, records[0].Mode)
	assert.Equal(t, sid, records[0].SessionID)

	// 其他连接收到转发
	assert.Empty(t, drainEvents(t, c1))
	events := drainEvents(t, c2)
	require.Len(t, events, 1)
	assert.Equal(t, EventGameOver, events[0].Event)
}

func TestSessionHandler_GameOverRejectedOnEngineSession(t *testing.T) {
	f := newSessionFixture(t)
	sid := f.createSession(t, "tictactoe", 1, 2)

	c1 := f.connect(1, "player1", sid)
	f.join(c1)
	drainEvents(t, c1)

	f.handler.HandleMessage(c1, []byte(`{"event":"game_over","data":{"gameKey":"tictactoe","score":1,"durationMs":1}}`))

	events := drainEvents(t, c1)
	require.Len(t, events, 1)
	assert.Equal(t, EventRoomError, events[0].Event)

	var count int64
	require.NoError(t, f.db.Model(&models.ScoreRecord{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestSessionHandler_JoinUnknownSession(t *testing.T) {
	f := newSessionFixture(t)

	c := f.connect(1, "player1", "no-such-session")
	f.join(c)

	events := drainEvents(t, c)
	require.Len(t, events, 1)
	assert.Equal(t, EventRoomError, events[0].Event)
}

func TestSessionHandler_DisconnectForfeitsActiveGame(t *testing.T) {
	f := newSessionFixture(t)
	sid := f.createSession(t, "tictactoe", 1, 2)

	c1 := f.connect(1, "player1", sid)
	c2 := f.connect(2, "player2", sid)
	f.join(c1)
	f.join(c2)
	drainEvents(t, c1)
	drainEvents(t, c2)

	// 对局进行中一方断开，另一方判胜
	f.hub.unregisterClient(c2)

	events := drainEvents(t, c1)
	require.Len(t, events, 1)
	assert.Equal(t, EventGameOver, events[0].Event)

	var payload game.GameOverPayload
	require.NoError(t, json.Unmarshal(events[0].Data, &payload))
	assert.Equal(t, "X", payload.Winner)
	assert.Equal(t, "forfeit", payload.Reason)

	record, err := f.sessionRepo.FindBySessionID(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFinished, record.Status)
}
