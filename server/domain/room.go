package domain

import (
	"context"
	"errors"
	"log/slog"
)

type RoomID string

// IsEmpty はRoomIDが空かどうかを判定します
func (id RoomID) IsEmpty() bool {
	return id == ""
}

func (id RoomID) String() string { return string(id) }

var ErrRoomClosed = errors.New("room topic closed")

// Room は1ルーム分のイベントを単一ゴルーチンで逐次処理します。
// アクションログの更新とその結果の配送はすべてこのループ上で行われるため、
// 参加者は常にログと同じ順序で配送を受け取ります。
type Room struct {
	ID RoomID

	pubsub     PubSub
	dispatcher Dispatcher // 外部からアプリケーションロジックを注入できる
	msgCh      <-chan Message

	// RoomManager が設定するライフサイクル通知
	onJoined  func()
	tryRetire func() bool
}

func NewRoom(id RoomID, pubsub PubSub, dispatcher Dispatcher) *Room {
	return &Room{
		ID:         id,
		pubsub:     pubsub,
		dispatcher: dispatcher,
		onJoined:   func() {},
		tryRetire:  func() bool { return false },
	}
}

// Subscribe はルームトピックの購読を開始します。Run より前に呼べば
// ループ起動前に発行されたメッセージも取りこぼしません。
func (r *Room) Subscribe() {
	if r.msgCh == nil {
		r.msgCh = r.pubsub.Subscribe(RoomTopic(r.ID))
	}
}

// SendTo は1セッションにデータを配送します。
func (r *Room) SendTo(ctx context.Context, sessionID SessionID, data []byte) {
	r.pubsub.Publish(ctx, SessionTopic(sessionID), Message{SessionID: sessionID, Data: data})
}

// Broadcast は targets のうち exclude 以外に配送します。exclude が空なら全員に配送します。
func (r *Room) Broadcast(ctx context.Context, targets []SessionID, data []byte, exclude SessionID) {
	for _, sessionID := range targets {
		if sessionID == exclude {
			continue
		}
		r.SendTo(ctx, sessionID, data)
	}
}

func (r *Room) Run(ctx context.Context) error {
	r.Subscribe()
	defer r.pubsub.Unsubscribe(RoomTopic(r.ID), r.msgCh)

	slog.InfoContext(ctx, "room: started", "roomID", r.ID)
	defer slog.InfoContext(ctx, "room: stopped", "roomID", r.ID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-r.msgCh:
			if !ok {
				return ErrRoomClosed
			}
			if err := r.dispatcher.Dispatch(ctx, r, msg); err != nil {
				slog.WarnContext(ctx, "room handle message failed", "roomID", r.ID, "sessionID", msg.SessionID, "kind", msg.Kind, "err", err)
			}
			switch msg.Kind {
			case MessageJoin:
				r.onJoined()
				if r.retireIfEmpty() {
					return nil
				}
			case MessageLeave:
				if r.retireIfEmpty() {
					return nil
				}
			}
		}
	}
}

func (r *Room) retireIfEmpty() bool {
	if r.dispatcher.Occupancy(r.ID) > 0 {
		return false
	}
	return r.tryRetire()
}
