package memory

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/touka-aoi/drawsync/application/state"
)

// Palette は表示色が指定されなかった参加者に割り当てる色。
var Palette = []string{
	"#3B82F6",
	"#8B5CF6",
	"#EC4899",
	"#10B981",
	"#F59E0B",
	"#EF4444",
	"#06B6D4",
	"#F97316",
}

const defaultNameLen = 6

// Registry はルームの参加者をインメモリで管理する。
type Registry struct {
	mu    sync.RWMutex
	rooms map[string][]string // roomID -> 参加順の userID
	users map[string]state.Member
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string][]string),
		users: make(map[string]state.Member),
	}
}

// Join は参加者を登録する。別のルームに参加中であればそちらからは抜ける。
func (r *Registry) Join(roomID, userID, displayName, displayColor string) state.Member {
	if displayName == "" {
		displayName = DefaultDisplayName(userID)
	}
	if displayColor == "" {
		displayColor = DefaultDisplayColor(userID)
	}
	m := state.Member{
		UserID:       userID,
		RoomID:       roomID,
		DisplayName:  displayName,
		DisplayColor: displayColor,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.users[userID]; ok {
		if prev.RoomID == roomID {
			r.users[userID] = m
			return m
		}
		r.leaveLocked(prev.RoomID, userID)
	}
	r.users[userID] = m
	r.rooms[roomID] = append(r.rooms[roomID], userID)
	return m
}

// Leave は参加者を取り除き、ルームが空になればエントリごと削除する。
func (r *Registry) Leave(roomID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.users[userID]
	if !ok || m.RoomID != roomID {
		return false
	}
	r.leaveLocked(roomID, userID)
	return true
}

func (r *Registry) leaveLocked(roomID, userID string) {
	delete(r.users, userID)
	ids := r.rooms[roomID]
	for i, id := range ids {
		if id == userID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(r.rooms, roomID)
		return
	}
	r.rooms[roomID] = ids
}

func (r *Registry) Members(roomID string) []state.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.rooms[roomID]
	members := make([]state.Member, 0, len(ids))
	for _, id := range ids {
		members = append(members, r.users[id])
	}
	return members
}

func (r *Registry) Lookup(userID string) (state.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.users[userID]
	return m, ok
}

func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return rooms
}

func (r *Registry) Count(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// DefaultDisplayName は接続IDの先頭から表示名を作る。
func DefaultDisplayName(userID string) string {
	if len(userID) > defaultNameLen {
		userID = userID[:defaultNameLen]
	}
	return "User-" + userID
}

// DefaultDisplayColor は接続IDのハッシュからパレットの色を選ぶ。
func DefaultDisplayColor(userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return Palette[h.Sum32()%uint32(len(Palette))]
}

var _ state.Registry = (*Registry)(nil)
