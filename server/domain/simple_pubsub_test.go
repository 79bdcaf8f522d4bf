package domain

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSimplePubSub_PublishToSubscribers(t *testing.T) {
	p := NewSimplePubSub(4)
	topic := RoomTopic("r1")
	a := p.Subscribe(topic)
	b := p.Subscribe(topic)
	other := p.Subscribe(RoomTopic("r2"))

	p.Publish(context.Background(), topic, Message{SessionID: "s1", Kind: MessageJoin, Data: []byte("x")})

	for name, ch := range map[string]<-chan Message{"a": a, "b": b} {
		select {
		case msg := <-ch:
			if msg.SessionID != "s1" || msg.Kind != MessageJoin || string(msg.Data) != "x" {
				t.Errorf("%s received %+v", name, msg)
			}
		default:
			t.Errorf("%s received nothing", name)
		}
	}
	select {
	case msg := <-other:
		t.Errorf("other topic received %+v", msg)
	default:
	}
}

func TestSimplePubSub_Unsubscribe(t *testing.T) {
	p := NewSimplePubSub(1)
	topic := SessionTopic("s1")
	ch := p.Subscribe(topic)
	if got := p.Subscribers(topic); got != 1 {
		t.Fatalf("Subscribers = %d, want 1", got)
	}

	p.Unsubscribe(topic, ch)
	if _, ok := <-ch; ok {
		t.Error("channel not closed after Unsubscribe")
	}
	if got := p.Subscribers(topic); got != 0 {
		t.Errorf("Subscribers = %d, want 0", got)
	}
	// 購読者がいなくても Publish は失敗しない
	p.Publish(context.Background(), topic, Message{})
}

func TestSimplePubSub_FullChannelDrops(t *testing.T) {
	p := NewSimplePubSub(1)
	topic := SessionTopic("s1")
	ch := p.Subscribe(topic)

	ctx := context.Background()
	p.Publish(ctx, topic, Message{Data: []byte("1")})
	p.Publish(ctx, topic, Message{Data: []byte("2")})

	if msg := <-ch; string(msg.Data) != "1" {
		t.Errorf("first = %q, want 1", msg.Data)
	}
	select {
	case msg := <-ch:
		t.Errorf("overflow delivered: %q", msg.Data)
	default:
	}
}

func TestTopics(t *testing.T) {
	if got := SessionTopic("abc"); got != "session:abc" {
		t.Errorf("SessionTopic = %q", got)
	}
	if got := RoomTopic("r"); got != "room:r" {
		t.Errorf("RoomTopic = %q", got)
	}
}

func TestSimplePubSub_PublishControlWaitsForSpace(t *testing.T) {
	p := NewSimplePubSub(1)
	topic := RoomTopic("r1")
	ch := p.Subscribe(topic)
	p.Publish(context.Background(), topic, Message{Kind: MessageData})

	done := make(chan error, 1)
	go func() {
		done <- p.PublishControl(context.Background(), topic, Message{Kind: MessageLeave})
	}()
	select {
	case err := <-done:
		t.Fatalf("PublishControl returned on a full channel: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	if msg := <-ch; msg.Kind != MessageData {
		t.Fatalf("first kind = %s", msg.Kind)
	}
	if err := <-done; err != nil {
		t.Fatalf("PublishControl: %v", err)
	}
	if msg := <-ch; msg.Kind != MessageLeave {
		t.Errorf("second kind = %s, want leave", msg.Kind)
	}
}

func TestSimplePubSub_PublishControlGivesUp(t *testing.T) {
	p := NewSimplePubSub(1)
	topic := RoomTopic("r1")
	ch := p.Subscribe(topic)
	p.Publish(context.Background(), topic, Message{Kind: MessageData})

	// 購読解除されたら待つのをやめる
	done := make(chan error, 1)
	go func() {
		done <- p.PublishControl(context.Background(), topic, Message{Kind: MessageLeave})
	}()
	time.Sleep(10 * time.Millisecond)
	p.Unsubscribe(topic, ch)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("PublishControl after unsubscribe = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PublishControl blocked after unsubscribe")
	}

	// コンテキストの終了でも諦める
	ch = p.Subscribe(topic)
	p.Publish(context.Background(), topic, Message{Kind: MessageData})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.PublishControl(ctx, topic, Message{Kind: MessageLeave}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	p.Unsubscribe(topic, ch)
}
