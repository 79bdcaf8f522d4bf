package memory

import (
	"container/list"

	"github.com/touka-aoi/drawsync/application/domain"
)

// entry はログ上の1アクションとその位置情報。
type entry struct {
	action domain.Action
	elem   *list.Element
	pos    uint64 // 追記・再追記のたびに増える位置スタンプ
	live   bool
}

// store は1ルーム分のアクションログと undo スタック。
// 排他制御は呼び出し側 (ActionLog) が行う。
type store struct {
	nextID domain.ActionID
	pos    uint64

	order *list.List
	byID  map[domain.ActionID]*entry

	// owned はユーザーごとの undo 候補を位置順に保持する。キー "" は userId を持たないアクション。
	// 削除済みのエントリは末尾に来た時点で捨てる。
	owned map[string][]*entry

	// undo はユーザーごとの undo スタック。redo はこのスタックから取り出す。
	undo map[string][]domain.Action
}

func newStore() *store {
	s := &store{}
	s.reset()
	return s
}

func (s *store) reset() {
	s.order = list.New()
	s.byID = make(map[domain.ActionID]*entry)
	s.owned = make(map[string][]*entry)
	s.undo = make(map[string][]domain.Action)
}

func (s *store) snapshot() []domain.Action {
	actions := make([]domain.Action, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		actions = append(actions, el.Value.(*entry).action.Clone())
	}
	return actions
}

func (s *store) append(draft domain.Action, nowMilli int64) domain.Action {
	s.nextID++
	action := draft.Clone()
	action.ID = s.nextID
	action.Timestamp = nowMilli
	s.push(action)
	return action.Clone()
}

// push はアクションを末尾に置き、undo 候補として登録する。
func (s *store) push(action domain.Action) {
	s.pos++
	e := &entry{action: action, pos: s.pos, live: true}
	e.elem = s.order.PushBack(e)
	s.byID[action.ID] = e
	if !action.Type.Marker() {
		s.owned[action.UserID] = append(s.owned[action.UserID], e)
	}
}

func (s *store) remove(e *entry) {
	s.order.Remove(e.elem)
	delete(s.byID, e.action.ID)
	e.live = false
}

// lastOwned は userID の undo 候補のうち最も後ろにある生存エントリを返す。
func (s *store) lastOwned(userID string) *entry {
	entries := s.owned[userID]
	for len(entries) > 0 && !entries[len(entries)-1].live {
		entries = entries[:len(entries)-1]
	}
	if len(entries) == 0 {
		delete(s.owned, userID)
		return nil
	}
	s.owned[userID] = entries
	return entries[len(entries)-1]
}

func (s *store) undoBy(actorID string) (domain.Action, bool) {
	target := s.lastOwned(actorID)
	if actorID != "" {
		if untagged := s.lastOwned(""); untagged != nil && (target == nil || untagged.pos > target.pos) {
			target = untagged
		}
	}
	if target == nil {
		return domain.Action{}, false
	}
	s.remove(target)
	s.owned[target.action.UserID] = s.owned[target.action.UserID][:len(s.owned[target.action.UserID])-1]
	s.undo[actorID] = append(s.undo[actorID], target.action)
	return target.action.Clone(), true
}

func (s *store) redoBy(actorID string) (domain.Action, bool) {
	stack := s.undo[actorID]
	if len(stack) == 0 {
		return domain.Action{}, false
	}
	action := stack[len(stack)-1]
	if len(stack) == 1 {
		delete(s.undo, actorID)
	} else {
		s.undo[actorID] = stack[:len(stack)-1]
	}
	s.push(action)
	return action.Clone(), true
}

func (s *store) removeByID(id domain.ActionID) bool {
	e, ok := s.byID[id]
	if !ok {
		return false
	}
	s.remove(e)
	return true
}

func (s *store) len() int {
	return s.order.Len()
}
