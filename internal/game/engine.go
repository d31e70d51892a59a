package game

import (
	"sync"

	"github.com/wfunc/arcade-server/internal/game/tictactoe"
)

// Engine 对局状态机接口
//
// 实现不要求并发安全，由LiveSession串行化调用。
type Engine interface {
	// Reset 重置到初始局面
	Reset()
	// Move 指定角色在(x, y)落子
	Move(role, x, y int) error
	// Finished 对局是否已结束
	Finished() bool
	// WinnerRole 获胜角色，平局或未结束时第二个返回值为false
	WinnerRole() (int, bool)
	// IsDraw 是否平局
	IsDraw() bool
	// RoleLabel 角色在局面中的标识（如井字棋的X/O）
	RoleLabel(role int) string
	// State 当前局面，用于state_snapshot广播
	State() interface{}
	// Snapshot 序列化局面
	Snapshot() (string, error)
	// Restore 从快照恢复局面
	Restore(snapshot string) error
}

var (
	factoryMu       sync.RWMutex
	engineFactories = map[string]func() Engine{
		"tictactoe": func() Engine { return tictactoe.New() },
	}
)

// RegisterEngine 注册游戏状态机工厂
func RegisterEngine(gameKey string, factory func() Engine) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	engineFactories[gameKey] = factory
}

// NewEngine 创建指定游戏的状态机，没有注册时返回nil
func NewEngine(gameKey string) Engine {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	if factory, ok := engineFactories[gameKey]; ok {
		return factory()
	}
	return nil
}

// HasEngine 查询游戏是否有服务端状态机
func HasEngine(gameKey string) bool {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	_, ok := engineFactories[gameKey]
	return ok
}
