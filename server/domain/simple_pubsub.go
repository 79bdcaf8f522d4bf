package domain

import (
	"context"
	"log/slog"
	"sync"
)

const (
	// DefaultChannelBuffer はSubscribeで作成されるチャネルのデフォルトバッファサイズです。
	DefaultChannelBuffer = 1024
)

type subscription struct {
	ch   chan Message
	done chan struct{} // 購読解除の開始で閉じる
	once sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// SimplePubSub はインメモリのPubSub実装です。
type SimplePubSub struct {
	mu          sync.RWMutex
	subscribers map[Topic][]*subscription
	buffer      int

	// 受信チャネル -> subscription。Unsubscribe がロックを待たずに
	// PublishControl の待機を解くために使う。
	byChannel sync.Map
}

// NewSimplePubSub は新しいSimplePubSubを作成します。buffer が 0 以下ならデフォルト値を使います。
func NewSimplePubSub(buffer int) *SimplePubSub {
	if buffer <= 0 {
		buffer = DefaultChannelBuffer
	}
	return &SimplePubSub{
		subscribers: make(map[Topic][]*subscription),
		buffer:      buffer,
	}
}

// Subscribe はトピックを購読し、メッセージを受信するチャネルを返します。
func (p *SimplePubSub) Subscribe(topic Topic) <-chan Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub := &subscription{
		ch:   make(chan Message, p.buffer),
		done: make(chan struct{}),
	}
	p.subscribers[topic] = append(p.subscribers[topic], sub)
	var recv <-chan Message = sub.ch
	p.byChannel.Store(recv, sub)
	return recv
}

// Unsubscribe は購読を解除します。
func (p *SimplePubSub) Unsubscribe(topic Topic, ch <-chan Message) {
	// 満杯のチャネルで待っている PublishControl を先に解放する
	if v, ok := p.byChannel.Load(ch); ok {
		v.(*subscription).stop()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.subscribers[topic]
	for i, sub := range subs {
		if (<-chan Message)(sub.ch) == ch {
			close(sub.ch)
			p.byChannel.Delete(ch)
			// 新しいスライスを作り、Publish 中のスナップショットを壊さない
			next := make([]*subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			p.subscribers[topic] = next
			break
		}
	}

	// 購読者がいなくなったらトピックを削除
	if len(p.subscribers[topic]) == 0 {
		delete(p.subscribers, topic)
	}
}

// Publish はトピックにメッセージを配信します。
// 配送はbest-effort: チャネルが満杯の購読者はスキップして継続します。
// 購読解除と競合しないよう読み取りロックを保持したまま送信します。
func (p *SimplePubSub) Publish(ctx context.Context, topic Topic, msg Message) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	slog.DebugContext(ctx, "pub/sub: publishing message", "topic", topic, "kind", msg.Kind, "bytes", len(msg.Data))

	for _, sub := range p.subscribers[topic] {
		select {
		case <-ctx.Done():
			return
		case sub.ch <- msg:
		default:
			slog.WarnContext(ctx, "pub/sub: channel full, message dropped", "topic", topic, "kind", msg.Kind)
		}
	}
}

// PublishControl は購読者ごとにチャネルに空きが出るまで待って配信します。
// 購読解除が始まった購読者は飛ばします。ctx が終了した場合はそのエラーを返します。
func (p *SimplePubSub) PublishControl(ctx context.Context, topic Topic, msg Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	slog.DebugContext(ctx, "pub/sub: publishing control message", "topic", topic, "kind", msg.Kind)

	for _, sub := range p.subscribers[topic] {
		select {
		case sub.ch <- msg:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribers はトピックの購読者数を返します。
func (p *SimplePubSub) Subscribers(topic Topic) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers[topic])
}

var _ PubSub = (*SimplePubSub)(nil)
