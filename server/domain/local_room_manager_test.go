package domain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeDispatcher は参加・退出で在室者を数え、受信メッセージを記録します。
type fakeDispatcher struct {
	mu       sync.Mutex
	members  map[RoomID]map[SessionID]bool
	received chan Message
	echo     bool
	gate     chan struct{} // nil でなければ閉じられるまで処理を止める
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		members:  make(map[RoomID]map[SessionID]bool),
		received: make(chan Message, 64),
	}
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, room *Room, msg Message) error {
	if d.gate != nil {
		<-d.gate
	}
	d.mu.Lock()
	switch msg.Kind {
	case MessageJoin:
		if d.members[room.ID] == nil {
			d.members[room.ID] = make(map[SessionID]bool)
		}
		d.members[room.ID][msg.SessionID] = true
	case MessageLeave:
		delete(d.members[room.ID], msg.SessionID)
	}
	d.mu.Unlock()

	if d.echo && msg.Kind == MessageData {
		room.SendTo(ctx, msg.SessionID, append([]byte("echo:"), msg.Data...))
	}
	d.received <- msg
	return nil
}

func (d *fakeDispatcher) Occupancy(roomID RoomID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.members[roomID])
}

func (d *fakeDispatcher) next(t *testing.T) Message {
	t.Helper()
	select {
	case msg := <-d.received:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher received nothing")
		return Message{}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLocalRoomManager_Lifecycle(t *testing.T) {
	pubsub := NewSimplePubSub(16)
	d := newFakeDispatcher()
	m := NewLocalRoomManager(pubsub, d)

	var mu sync.Mutex
	var opened, closed []RoomID
	m.OnOpen(func(_ context.Context, id RoomID) {
		mu.Lock()
		defer mu.Unlock()
		opened = append(opened, id)
	})
	m.OnClose(func(_ context.Context, id RoomID) {
		mu.Lock()
		defer mu.Unlock()
		closed = append(closed, id)
	})

	ctx := context.Background()
	if err := m.Acquire(ctx, "r1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	// Acquire の直後に発行した参加要求も取りこぼさない
	pubsub.Publish(ctx, RoomTopic("r1"), Message{SessionID: "s1", Kind: MessageJoin})
	if msg := d.next(t); msg.Kind != MessageJoin {
		t.Fatalf("first message kind = %s", msg.Kind)
	}
	if !m.IsActive("r1") || m.Active() != 1 {
		t.Fatalf("room not active after join")
	}

	pubsub.Publish(ctx, RoomTopic("r1"), Message{SessionID: "s1", Kind: MessageLeave})
	d.next(t)
	waitFor(t, "room retired", func() bool { return !m.IsActive("r1") })

	mu.Lock()
	defer mu.Unlock()
	if len(opened) != 1 || len(closed) != 1 || opened[0] != "r1" || closed[0] != "r1" {
		t.Errorf("hooks opened=%v closed=%v", opened, closed)
	}
}

func TestLocalRoomManager_PendingJoinKeepsRoomAlive(t *testing.T) {
	pubsub := NewSimplePubSub(16)
	d := newFakeDispatcher()
	m := NewLocalRoomManager(pubsub, d)
	ctx := context.Background()

	if err := m.Acquire(ctx, "r1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pubsub.Publish(ctx, RoomTopic("r1"), Message{SessionID: "s1", Kind: MessageJoin})
	d.next(t)

	// s2 の Acquire 後、参加要求が処理される前に s1 が抜ける
	if err := m.Acquire(ctx, "r1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pubsub.Publish(ctx, RoomTopic("r1"), Message{SessionID: "s1", Kind: MessageLeave})
	d.next(t)
	if !m.IsActive("r1") {
		t.Fatal("room retired while a join was pending")
	}

	pubsub.Publish(ctx, RoomTopic("r1"), Message{SessionID: "s2", Kind: MessageJoin})
	d.next(t)
	if got := d.Occupancy("r1"); got != 1 {
		t.Errorf("Occupancy = %d, want 1", got)
	}
	if !m.IsActive("r1") {
		t.Error("room retired with a member present")
	}
}

func TestLocalRoomManager_Shutdown(t *testing.T) {
	pubsub := NewSimplePubSub(16)
	d := newFakeDispatcher()
	m := NewLocalRoomManager(pubsub, d)
	ctx := context.Background()

	for _, id := range []RoomID{"a", "b"} {
		if err := m.Acquire(ctx, id); err != nil {
			t.Fatalf("Acquire(%s): %v", id, err)
		}
	}
	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.Shutdown(sctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if m.Active() != 0 {
		t.Errorf("Active = %d after Shutdown", m.Active())
	}
	if err := m.Acquire(ctx, "c"); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Acquire after Shutdown = %v, want ErrManagerClosed", err)
	}
	waitFor(t, "room topics unsubscribed", func() bool {
		return pubsub.Subscribers(RoomTopic("a")) == 0 && pubsub.Subscribers(RoomTopic("b")) == 0
	})
}

func TestLocalRoomManager_LeaveSurvivesFullTopic(t *testing.T) {
	pubsub := NewSimplePubSub(2)
	d := newFakeDispatcher()
	d.gate = make(chan struct{})
	m := NewLocalRoomManager(pubsub, d)
	ctx := context.Background()
	topic := RoomTopic("r")

	if err := m.Acquire(ctx, "r"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := pubsub.PublishControl(ctx, topic, Message{SessionID: "s1", Kind: MessageJoin}); err != nil {
		t.Fatalf("join: %v", err)
	}
	// ループが止まっている間にチャネルを埋める。溢れた分は捨てられる
	for i := 0; i < 4; i++ {
		pubsub.Publish(ctx, topic, Message{SessionID: "s1", Kind: MessageData})
	}

	left := make(chan error, 1)
	go func() {
		left <- pubsub.PublishControl(context.Background(), topic, Message{SessionID: "s1", Kind: MessageLeave})
	}()
	select {
	case err := <-left:
		t.Fatalf("leave returned before the room drained: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(d.gate)
	if err := <-left; err != nil {
		t.Fatalf("leave: %v", err)
	}
	var sawLeave bool
	for !sawLeave {
		sawLeave = d.next(t).Kind == MessageLeave
	}
	if got := d.Occupancy("r"); got != 0 {
		t.Errorf("Occupancy = %d after leave, want 0", got)
	}
	waitFor(t, "room retired", func() bool { return !m.IsActive("r") })
}
