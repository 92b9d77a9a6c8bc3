package match

import "time"

// MessageType 出站訊息類型
type MessageType string

const (
	MsgConnectionEstablished MessageType = "connection_established"
	MsgGameState             MessageType = "game_state"
	MsgPaddlePosition        MessageType = "paddle_position"
	MsgGameStatusChanged     MessageType = "game_status_changed"
	MsgPlayerStatus          MessageType = "player_status"
)

// Message 發送給客戶端的訊息
//
// 只有對應類型的欄位會被填入，其餘以 omitempty 省略。
type Message struct {
	Type         MessageType `json:"type"`
	PlayerNumber int         `json:"player_number,omitempty"`
	MatchID      string      `json:"match_id,omitempty"`
	State        *Snapshot   `json:"state,omitempty"`
	Player       int         `json:"player,omitempty"`
	Position     *float64    `json:"position,omitempty"`
	Connected    *bool       `json:"connected,omitempty"`
	Status       Status      `json:"status,omitempty"`
	Winner       string      `json:"winner,omitempty"`
	Reason       string      `json:"reason,omitempty"`
}

func connectionEstablished(matchID string, player int) Message {
	return Message{Type: MsgConnectionEstablished, MatchID: matchID, PlayerNumber: player}
}

func gameState(s Snapshot) Message {
	return Message{Type: MsgGameState, State: &s}
}

func paddlePosition(player int, y float64) Message {
	return Message{Type: MsgPaddlePosition, Player: player, Position: &y}
}

func statusChanged(status Status, winner, reason string) Message {
	return Message{Type: MsgGameStatusChanged, Status: status, Winner: winner, Reason: reason}
}

func playerStatus(player int, connected bool) Message {
	return Message{Type: MsgPlayerStatus, Player: player, Connected: &connected}
}

// CommandType 入站指令類型
type CommandType string

const (
	CmdPaddleMove  CommandType = "paddle_move"
	CmdStartGame   CommandType = "start_game"
	CmdTogglePause CommandType = "toggle_pause"
	CmdNextMatch   CommandType = "next_match"
	CmdRestartGame CommandType = "restart_game"
)

// Command 玩家送來的指令
type Command struct {
	Type     CommandType `json:"type"`
	Position *float64    `json:"position,omitempty"`
}

// StatusEvent 狀態變更事件（對外發布用，不送給客戶端）
type StatusEvent struct {
	MatchID     string    `json:"match_id"`
	From        Status    `json:"from"`
	To          Status    `json:"to"`
	Winner      string    `json:"winner,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	RoundNumber int       `json:"round_number"`
	Scores      [2]int    `json:"scores"`
	RoundWins   [2]int    `json:"round_wins"`
	At          time.Time `json:"at"`
}

// Transition 一次狀態機操作的結果
//
// Messages 在持鎖時依序廣播，Events 在釋放鎖之後才發布。
type Transition struct {
	Messages  []Message
	Events    []StatusEvent
	StartLoop bool
}

func (t *Transition) send(msg Message) {
	t.Messages = append(t.Messages, msg)
}
