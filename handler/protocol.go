package handler

import (
	"encoding/json"
	"fmt"

	"github.com/touka-aoi/drawsync/application/domain"
	"github.com/touka-aoi/drawsync/application/state"
)

// Event はフレームの種別。
type Event string

const (
	// client -> server
	EventJoinRoom Event = "join-room"
	EventDrawMove Event = "draw-move"

	// server -> client
	EventRoomState Event = "room-state"
	EventUserJoin  Event = "user-joined"
	EventUserLeft  Event = "user-left"
	EventActionAck Event = "action-ack"
	EventError     Event = "error"

	// 双方向
	EventDrawPath   Event = Event(domain.KindDrawPath)
	EventDrawShape  Event = Event(domain.KindDrawShape)
	EventDrawText   Event = Event(domain.KindDrawText)
	EventErase      Event = Event(domain.KindErase)
	EventDrawStart  Event = Event(domain.KindDrawStart)
	EventDrawEnd    Event = Event(domain.KindDrawEnd)
	EventClear      Event = "clear-canvas"
	EventUndo       Event = "undo"
	EventRedo       Event = "redo"
	EventCursorMove Event = "cursor-move"
)

// ActionKind はアクション投稿イベントであればその種別を返す。
func (e Event) ActionKind() (domain.Kind, bool) {
	k := domain.Kind(e)
	return k, k.Valid()
}

// Frame は WebSocket 上でやり取りする1メッセージ。
type Frame struct {
	Type Event           `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DecodeFrame はフレームを読み取る。
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("invalid frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("invalid frame: missing type")
	}
	return f, nil
}

// EncodeFrame はペイロードをフレームに包んでエンコードする。
func EncodeFrame(ev Event, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", ev, err)
		}
		raw = b
	}
	return json.Marshal(Frame{Type: ev, Data: raw})
}

// RoomStateMessage は参加直後のスナップショット。
type RoomStateMessage = state.Snapshot

// PresenceMessage は user-joined / user-left の本体。
type PresenceMessage struct {
	UserID       string         `json:"userId"`
	DisplayName  string         `json:"displayName,omitempty"`
	DisplayColor string         `json:"displayColor,omitempty"`
	Users        []state.Member `json:"users"`
}

// AckMessage は投稿者だけに返す採番結果。
type AckMessage struct {
	ClientID  string          `json:"clientId,omitempty"`
	ID        domain.ActionID `json:"id"`
	UserID    string          `json:"userId"`
	Timestamp int64           `json:"timestamp"`
}

// HistoryMessage は undo / redo の通知。redo のときだけ Action を含む。
type HistoryMessage struct {
	UserID   string          `json:"userId"`
	ActionID domain.ActionID `json:"actionId"`
	Action   *domain.Action  `json:"action,omitempty"`
}

// ClearMessage は clear-canvas の通知。
type ClearMessage struct {
	UserID string `json:"userId"`
}

// CursorMessage は cursor-move / draw-move の中継。
type CursorMessage struct {
	UserID       string  `json:"userId"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	DisplayName  string  `json:"displayName,omitempty"`
	DisplayColor string  `json:"displayColor,omitempty"`
}

// ErrorMessage は不正なフレームを送った接続にだけ返す。
type ErrorMessage struct {
	Event   Event  `json:"event,omitempty"`
	Message string `json:"message"`
}
