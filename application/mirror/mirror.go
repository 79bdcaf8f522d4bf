// Package mirror はクライアント側でルームのアクション列を再生するローカルミラー。
// 権威的な状態は持たず、アクション列だけから描画面を再構築できる。
package mirror

import (
	"sync"

	"github.com/touka-aoi/drawsync/application/domain"
)

// Surface は描画面。ラスタライズは外部の実装に任せる。
type Surface interface {
	Clear()
	Draw(action domain.Action)
}

type item struct {
	action   domain.Action
	clientID string // 自分が送信して ack 待ちの間だけ設定される
}

// Mirror は適用済みアクションの順序付きコピーと描画面を保持する。
//
// 自分の操作は Submit で即座に反映し (ローカル適用)、他者の操作は
// ApplyRemote で受信時に反映する (リモート適用)。自分の操作はサーバーから
// 戻ってこないため二重描画は起きない。
type Mirror struct {
	mu      sync.Mutex
	items   []item
	surface Surface
}

func New(surface Surface) *Mirror {
	return &Mirror{surface: surface}
}

// Submit は送信した下書きをローカルに適用する。clientID は後続の Ack で ID を確定させるためのキー。
func (m *Mirror) Submit(clientID string, draft domain.Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item{action: draft.Clone(), clientID: clientID})
	m.drawLocked(draft)
}

// Ack はサーバーが割り当てた ID と時刻をローカル適用済みのアクションに反映する。
func (m *Mirror) Ack(clientID string, id domain.ActionID, userID string, timestamp int64) bool {
	if clientID == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].clientID != clientID {
			continue
		}
		m.items[i].action.ID = id
		m.items[i].action.UserID = userID
		m.items[i].action.Timestamp = timestamp
		m.items[i].clientID = ""
		return true
	}
	return false
}

// Discard は送信できなかった ack 待ちのアクションを取り除き、再描画する。
func (m *Mirror) Discard(clientID string) bool {
	if clientID == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].clientID == clientID {
			m.items = append(m.items[:i], m.items[i+1:]...)
			m.redrawLocked()
			return true
		}
	}
	return false
}

// LoadSnapshot はローカルのコピーを丸ごと置き換えて再描画する。
func (m *Mirror) LoadSnapshot(actions []domain.Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = m.items[:0]
	for _, a := range actions {
		m.items = append(m.items, item{action: a.Clone()})
	}
	m.redrawLocked()
}

// ApplyRemote は他の参加者のアクションを末尾に追加し、差分だけ描画する。
func (m *Mirror) ApplyRemote(action domain.Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item{action: action.Clone()})
	m.drawLocked(action)
}

// ApplyUndo は該当IDのアクションを取り除き全体を再描画する。見つからなければ何もしない。
func (m *Mirror) ApplyUndo(id domain.ActionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].clientID == "" && m.items[i].action.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			m.redrawLocked()
			return true
		}
	}
	return false
}

// ApplyRedo は再追記されたアクションを末尾に加える。
func (m *Mirror) ApplyRedo(action domain.Action) {
	m.ApplyRemote(action)
}

// ApplyClear はローカルのコピーを空にして描画面を消去する。
func (m *Mirror) ApplyClear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = m.items[:0]
	m.surface.Clear()
}

// Redraw はコピーから描画面を作り直す。
func (m *Mirror) Redraw() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redrawLocked()
}

// Actions は適用済みアクションのコピーを返す。
func (m *Mirror) Actions() []domain.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Action, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it.action.Clone())
	}
	return out
}

// Pending は ack 待ちのローカル適用数を返す。
func (m *Mirror) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, it := range m.items {
		if it.clientID != "" {
			n++
		}
	}
	return n
}

func (m *Mirror) redrawLocked() {
	m.surface.Clear()
	for _, it := range m.items {
		m.drawLocked(it.action)
	}
}

func (m *Mirror) drawLocked(action domain.Action) {
	if action.Type.Replayable() {
		m.surface.Draw(action)
	}
}
