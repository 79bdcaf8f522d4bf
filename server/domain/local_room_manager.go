package domain

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrManagerClosed は停止済みの RoomManager に参加しようとした場合に返されるエラーです。
var ErrManagerClosed = errors.New("room manager is closed")

// RoomHook はルームの開始・終了時に呼ばれるコールバックです。
type RoomHook func(ctx context.Context, roomID RoomID)

type managedRoom struct {
	room    *Room
	cancel  context.CancelFunc
	done    chan struct{}
	pending int // Acquire 済みでまだループが処理していない参加要求の数
}

// LocalRoomManager はプロセス内でルームのループを起動・回収します。
// 最初の参加で起動し、最後の参加者が抜けて保留中の参加要求が無くなった時点で停止します。
type LocalRoomManager struct {
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	pubsub     PubSub
	dispatcher Dispatcher
	rooms      map[RoomID]*managedRoom
	closed     bool

	onOpen  []RoomHook
	onClose []RoomHook
}

// NewLocalRoomManager は新しいLocalRoomManagerを作成します。
func NewLocalRoomManager(pubsub PubSub, dispatcher Dispatcher) *LocalRoomManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalRoomManager{
		ctx:        ctx,
		cancel:     cancel,
		pubsub:     pubsub,
		dispatcher: dispatcher,
		rooms:      make(map[RoomID]*managedRoom),
	}
}

// OnOpen はルームのループ起動時に呼ばれるフックを登録します。
func (m *LocalRoomManager) OnOpen(hook RoomHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOpen = append(m.onOpen, hook)
}

// OnClose はルームのループ終了時に呼ばれるフックを登録します。
// フックはマネージャーのロックを保持したまま呼ばれるため、同じルームへの
// 次の参加はフックの完了後に処理されます。
func (m *LocalRoomManager) OnClose(hook RoomHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = append(m.onClose, hook)
}

func (m *LocalRoomManager) Acquire(ctx context.Context, roomID RoomID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	if mr, ok := m.rooms[roomID]; ok {
		mr.pending++
		return nil
	}

	room := NewRoom(roomID, m.pubsub, m.dispatcher)
	roomCtx, cancel := context.WithCancel(m.ctx)
	mr := &managedRoom{room: room, cancel: cancel, done: make(chan struct{}), pending: 1}
	room.onJoined = func() { m.joined(roomID) }
	room.tryRetire = func() bool { return m.retire(roomCtx, roomID, mr) }
	m.rooms[roomID] = mr

	// 参加要求が発行される前に購読しておく
	room.Subscribe()
	go func() {
		defer close(mr.done)
		defer cancel()
		if err := room.Run(roomCtx); err != nil {
			slog.ErrorContext(roomCtx, "room loop exited", "roomID", roomID, "err", err)
		}
	}()
	for _, hook := range m.onOpen {
		hook(ctx, roomID)
	}
	return nil
}

func (m *LocalRoomManager) joined(roomID RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mr, ok := m.rooms[roomID]; ok && mr.pending > 0 {
		mr.pending--
	}
}

func (m *LocalRoomManager) retire(ctx context.Context, roomID RoomID, mr *managedRoom) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[roomID]; !ok || cur != mr || mr.pending > 0 {
		return false
	}
	if m.dispatcher.Occupancy(roomID) > 0 {
		return false
	}
	delete(m.rooms, roomID)
	for _, hook := range m.onClose {
		hook(ctx, roomID)
	}
	return true
}

// Active は稼働中のルーム数を返します。
func (m *LocalRoomManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// IsActive はルームのループが稼働中かどうかを返します。
func (m *LocalRoomManager) IsActive(roomID RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[roomID]
	return ok
}

// Shutdown はすべてのルームのループを停止し、終了を待ちます。
func (m *LocalRoomManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	dones := make([]chan struct{}, 0, len(m.rooms))
	for _, mr := range m.rooms {
		dones = append(dones, mr.done)
	}
	m.rooms = make(map[RoomID]*managedRoom)
	m.mu.Unlock()

	m.cancel()
	for _, done := range dones {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

var _ RoomManager = (*LocalRoomManager)(nil)
