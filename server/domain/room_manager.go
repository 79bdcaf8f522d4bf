package domain

import "context"

// RoomManager はルームのループの起動と終了を管理します。
type RoomManager interface {
	// Acquire は参加要求を送る前に呼び出し、ルームのループが
	// そのメッセージを受信できる状態であることを保証します。
	Acquire(ctx context.Context, roomID RoomID) error
}
