package state

import (
	"context"
	"time"

	"github.com/touka-aoi/drawsync/application/domain"
)

// Snapshot は新規参加者へ渡すルームの全アクション列。
type Snapshot struct {
	Actions   []domain.Action `json:"actions"`
	Timestamp int64           `json:"timestamp"`
}

// ActionLog はルームごとの権威的なアクションログ。
// デフォルトのインメモリ実装は `repository/state/memory` パッケージを参照。
// 同一ルームへの操作は直列に、異なるルームへの操作は並行に呼び出してよい。
type ActionLog interface {
	Snapshot(roomID string) Snapshot
	Append(roomID string, draft domain.Action) domain.Action
	Undo(roomID, actorID string) (domain.Action, bool)
	Redo(roomID, actorID string) (domain.Action, bool)
	Clear(roomID string)
	RemoveByID(roomID string, id domain.ActionID) bool
	Drop(roomID string)
	Len(roomID string) int
}

// Member はルームに接続中の参加者の表示情報。
type Member struct {
	UserID       string `json:"userId"`
	RoomID       string `json:"-"`
	DisplayName  string `json:"displayName"`
	DisplayColor string `json:"displayColor"`
}

// Registry は接続とルームの対応、および表示名・表示色を管理する。
type Registry interface {
	Join(roomID, userID, displayName, displayColor string) Member
	Leave(roomID, userID string) bool
	Members(roomID string) []Member
	Lookup(userID string) (Member, bool)
	Rooms() []string
	Count(roomID string) int
}

// MetricsRecorder はイベント処理の統計収集を抽象化する。
type MetricsRecorder interface {
	RecordLatency(ctx context.Context, event string, duration time.Duration)
	IncrementCounter(ctx context.Context, name string, delta int)
}
