package memory

import (
	"sync"
	"time"

	"github.com/touka-aoi/drawsync/application/domain"
	"github.com/touka-aoi/drawsync/application/state"
)

// Option は ActionLog の生成時オプション。
type Option func(*ActionLog)

// WithClock は追記時刻の取得元を差し替える。テストで固定時刻を使うためのもの。
func WithClock(now func() time.Time) Option {
	return func(l *ActionLog) {
		l.now = now
	}
}

type roomStore struct {
	mu   sync.Mutex
	base *store
}

// ActionLog はルーム単位でロックするインメモリのアクションログ。
type ActionLog struct {
	mu    sync.RWMutex
	rooms map[string]*roomStore
	now   func() time.Time
}

func NewActionLog(opts ...Option) *ActionLog {
	l := &ActionLog{
		rooms: make(map[string]*roomStore),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// room はルームのストアを返す。create が false で未作成なら nil。
func (l *ActionLog) room(roomID string, create bool) *roomStore {
	l.mu.RLock()
	rs, ok := l.rooms[roomID]
	l.mu.RUnlock()
	if ok || !create {
		return rs
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if rs, ok = l.rooms[roomID]; ok {
		return rs
	}
	rs = &roomStore{base: newStore()}
	l.rooms[roomID] = rs
	return rs
}

func (l *ActionLog) Snapshot(roomID string) state.Snapshot {
	snap := state.Snapshot{Actions: []domain.Action{}, Timestamp: l.now().UnixMilli()}
	rs := l.room(roomID, false)
	if rs == nil {
		return snap
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	snap.Actions = rs.base.snapshot()
	return snap
}

func (l *ActionLog) Append(roomID string, draft domain.Action) domain.Action {
	rs := l.room(roomID, true)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.base.append(draft, l.now().UnixMilli())
}

func (l *ActionLog) Undo(roomID, actorID string) (domain.Action, bool) {
	rs := l.room(roomID, false)
	if rs == nil {
		return domain.Action{}, false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.base.undoBy(actorID)
}

func (l *ActionLog) Redo(roomID, actorID string) (domain.Action, bool) {
	rs := l.room(roomID, false)
	if rs == nil {
		return domain.Action{}, false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.base.redoBy(actorID)
}

// Clear はログと全ユーザーの undo スタックを破棄する。ID の採番は継続する。
func (l *ActionLog) Clear(roomID string) {
	rs := l.room(roomID, false)
	if rs == nil {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.base.reset()
}

func (l *ActionLog) RemoveByID(roomID string, id domain.ActionID) bool {
	rs := l.room(roomID, false)
	if rs == nil {
		return false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.base.removeByID(id)
}

// Drop はルームのログを丸ごと忘れる。
func (l *ActionLog) Drop(roomID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rooms, roomID)
}

func (l *ActionLog) Len(roomID string) int {
	rs := l.room(roomID, false)
	if rs == nil {
		return 0
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.base.len()
}

var _ state.ActionLog = (*ActionLog)(nil)
