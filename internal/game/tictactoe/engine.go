package tictactoe

import (
	"encoding/json"

	"github.com/wfunc/arcade-server/internal/errors"
)

// 棋子符号，角色0执X先手，角色1执O
const (
	SymbolX = "X"
	SymbolO = "O"
	// WinnerDraw 平局时的winner取值
	WinnerDraw = "draw"
)

// State 对外广播的局面（board单元格为nil表示空位）
type State struct {
	Board   [3][3]*string `json:"board"`
	Current string        `json:"current"`
	Winner  *string       `json:"winner"`
}

// Engine 井字棋状态机
//
// 非并发安全，调用方负责串行化。
type Engine struct {
	board   [3][3]string
	current string
	winner  string // 空串表示对局未分出结果
}

// New 创建初始局面的井字棋
func New() *Engine {
	e := &Engine{}
	e.Reset()
	return e
}

// Reset 重置到初始局面，X先手
func (e *Engine) Reset() {
	e.board = [3][3]string{}
	e.current = SymbolX
	e.winner = ""
}

// SymbolFor 角色对应的棋子符号，未知角色返回空串
func SymbolFor(role int) string {
	switch role {
	case 0:
		return SymbolX
	case 1:
		return SymbolO
	default:
		return ""
	}
}

// RoleLabel 角色对应的棋子符号
func (e *Engine) RoleLabel(role int) string {
	return SymbolFor(role)
}

// Move 指定角色在(x, y)落子
func (e *Engine) Move(role, x, y int) error {
	if e.winner != "" {
		return errors.New(errors.ErrSessionFinished)
	}

	symbol := SymbolFor(role)
	if symbol == "" {
		return errors.Newf(errors.ErrNotParticipant, "role=%d", role)
	}
	if symbol != e.current {
		return errors.Newf(errors.ErrNotYourTurn, "current=%s", e.current)
	}
	if x < 0 || x > 2 || y < 0 || y > 2 {
		return errors.Newf(errors.ErrIllegalMove, "坐标越界: (%d, %d)", x, y)
	}
	if e.board[y][x] != "" {
		return errors.Newf(errors.ErrIllegalMove, "位置已占用: (%d, %d)", x, y)
	}

	e.board[y][x] = symbol
	e.evaluate()

	if e.winner == "" {
		if symbol == SymbolX {
			e.current = SymbolO
		} else {
			e.current = SymbolX
		}
	}

	return nil
}

// evaluate 检查胜负与平局
func (e *Engine) evaluate() {
	lines := [][3][2]int{
		// 行
		{{0, 0}, {1, 0}, {2, 0}},
		{{0, 1}, {1, 1}, {2, 1}},
		{{0, 2}, {1, 2}, {2, 2}},
		// 列
		{{0, 0}, {0, 1}, {0, 2}},
		{{1, 0}, {1, 1}, {1, 2}},
		{{2, 0}, {2, 1}, {2, 2}},
		// 对角线
		{{0, 0}, {1, 1}, {2, 2}},
		{{2, 0}, {1, 1}, {0, 2}},
	}

	for _, line := range lines {
		a := e.board[line[0][1]][line[0][0]]
		b := e.board[line[1][1]][line[1][0]]
		c := e.board[line[2][1]][line[2][0]]
		if a != "" && a == b && b == c {
			e.winner = a
			return
		}
	}

	// 棋盘填满且无人连线为平局
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			if e.board[y][x] == "" {
				return
			}
		}
	}
	e.winner = WinnerDraw
}

// Finished 对局是否已结束
func (e *Engine) Finished() bool {
	return e.winner != ""
}

// WinnerRole 获胜角色，平局或未结束时第二个返回值为false
func (e *Engine) WinnerRole() (int, bool) {
	switch e.winner {
	case SymbolX:
		return 0, true
	case SymbolO:
		return 1, true
	default:
		return -1, false
	}
}

// IsDraw 是否平局
func (e *Engine) IsDraw() bool {
	return e.winner == WinnerDraw
}

// State 当前局面
func (e *Engine) State() interface{} {
	var state State
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			if e.board[y][x] != "" {
				cell := e.board[y][x]
				state.Board[y][x] = &cell
			}
		}
	}
	state.Current = e.current
	if e.winner != "" {
		winner := e.winner
		state.Winner = &winner
	}
	return state
}

// Snapshot 序列化局面
func (e *Engine) Snapshot() (string, error) {
	data, err := json.Marshal(e.State())
	if err != nil {
		return "", errors.Wrap(err, errors.ErrSnapshotCorrupt)
	}
	return string(data), nil
}

// Restore 从快照恢复局面
func (e *Engine) Restore(snapshot string) error {
	var state State
	if err := json.Unmarshal([]byte(snapshot), &state); err != nil {
		return errors.Wrap(err, errors.ErrSnapshotCorrupt)
	}

	e.Reset()
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			if state.Board[y][x] != nil {
				e.board[y][x] = *state.Board[y][x]
			}
		}
	}
	if state.Current == SymbolX || state.Current == SymbolO {
		e.current = state.Current
	}
	if state.Winner != nil {
		e.winner = *state.Winner
	}
	return nil
}
