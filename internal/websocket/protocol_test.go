package websocket

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"event":"make_move","data":{"x":1,"y":2}}`))
	require.NoError(t, err)
	assert.Equal(t, "make_move", env.Event)
	assert.JSONEq(t, `{"x":1,"y":2}`, string(env.Data))
}

func TestDecodeEnvelope_Rejects(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{not json`))
	assert.Error(t, err)

	_, err = DecodeEnvelope([]byte(`{"data":{}}`))
	assert.Error(t, err)
}

func TestEncodeEnvelope(t *testing.T) {
	data, err := EncodeEnvelope(EventQueueCancelled, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"queue_cancelled"}`, string(data))

	data, err = EncodeEnvelope(EventChatMessage, ChatBroadcast{From: "alice", Message: "hi", At: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"chat_message","data":{"from":"alice","message":"hi","at":1}}`, string(data))
}

func TestDecodeMatchRequest(t *testing.T) {
	p, err := DecodeMatchRequest(json.RawMessage(`{"gameKey":"tictactoe","mode":"multi"}`))
	require.NoError(t, err)
	assert.Equal(t, "tictactoe", p.GameKey)
	assert.Equal(t, "multi", p.Mode)
}

func TestDecodeMatchRequest_Rejects(t *testing.T) {
	cases := []string{
		`{"mode":"multi"}`,
		`{"gameKey":"tictactoe"}`,
		`{"gameKey":"tictactoe","mode":"ranked"}`,
		`{"gameKey":"tictactoe","mode":1}`,
	}
	for _, c := range cases {
		_, err := DecodeMatchRequest(json.RawMessage(c))
		assert.Error(t, err, c)
	}
}

func TestDecodeMove(t *testing.T) {
	x, y, err := DecodeMove(json.RawMessage(`{"x":0,"y":2}`))
	require.NoError(t, err)
	assert.Equal(t, 0, x)
	assert.Equal(t, 2, y)
}

func TestDecodeMove_Rejects(t *testing.T) {
	cases := []string{
		`{}`,
		`{"x":1}`,
		`{"y":1}`,
		`{"x":"1","y":"2"}`,
	}
	for _, c := range cases {
		_, _, err := DecodeMove(json.RawMessage(c))
		assert.Error(t, err, c)
	}
}

func TestDecodeChat(t *testing.T) {
	msg, err := DecodeChat(json.RawMessage(`{"message":"  你好  "}`), 0)
	require.NoError(t, err)
	assert.Equal(t, "你好", msg)
}

func TestDecodeChat_Rejects(t *testing.T) {
	// 空消息
	_, err := DecodeChat(json.RawMessage(`{"message":"   "}`), 0)
	assert.Error(t, err)

	// 超长消息
	long := strings.Repeat("a", MaxChatLength+1)
	_, err = DecodeChat(json.RawMessage(`{"message":"`+long+`"}`), 0)
	assert.Error(t, err)

	// 恰好达到上限的消息合法
	exact := strings.Repeat("a", MaxChatLength)
	msg, err := DecodeChat(json.RawMessage(`{"message":"`+exact+`"}`), 0)
	require.NoError(t, err)
	assert.Len(t, msg, MaxChatLength)

	// 按字符数而不是字节数计算长度
	wide := strings.Repeat("字", MaxChatLength)
	msg, err = DecodeChat(json.RawMessage(`{"message":"`+wide+`"}`), 0)
	require.NoError(t, err)
	assert.Equal(t, MaxChatLength, len([]rune(msg)))
}

func TestDecodeChat_CustomLimit(t *testing.T) {
	_, err := DecodeChat(json.RawMessage(`{"message":"abcdef"}`), 5)
	assert.Error(t, err)

	msg, err := DecodeChat(json.RawMessage(`{"message":"abcde"}`), 5)
	require.NoError(t, err)
	assert.Equal(t, "abcde", msg)
}

func TestDecodeGameOverReport(t *testing.T) {
	p, err := DecodeGameOverReport(json.RawMessage(`{"gameKey":"snake","score":420,"durationMs":60000,"mode":"single"}`))
	require.NoError(t, err)
	assert.Equal(t, "snake", p.GameKey)
	assert.Equal(t, int64(420), *p.Score)
	assert.Equal(t, int64(60000), *p.DurationMs)
	assert.Equal(t, "single", p.Mode)
}

func TestDecodeGameOverReport_Rejects(t *testing.T) {
	cases := []string{
		`{"score":1,"durationMs":1}`,
		`{"gameKey":"snake","durationMs":1}`,
		`{"gameKey":"snake","score":-1,"durationMs":1}`,
		`{"gameKey":"snake","score":1}`,
		`{"gameKey":"snake","score":1,"durationMs":0}`,
		`{"gameKey":"snake","score":1,"durationMs":1,"mode":"ranked"}`,
	}
	for _, c := range cases {
		_, err := DecodeGameOverReport(json.RawMessage(c))
		assert.Error(t, err, c)
	}
}

func TestSessionChannel(t *testing.T) {
	assert.Equal(t, "game:abc", SessionChannel("abc"))
}
