package domain

import "context"

// Dispatcher はルームのループからアプリケーション層へのイベント配送を担当します。
// Dispatch は同一ルームについては常に同じゴルーチンから逐次呼び出されます。
type Dispatcher interface {
	// Dispatch はルームトピックで受信したメッセージを処理します。
	Dispatch(ctx context.Context, room *Room, msg Message) error
	// Occupancy はルームの現在の参加者数を返します。
	Occupancy(roomID RoomID) int
}
