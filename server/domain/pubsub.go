package domain

import "context"

// Topic はPubSubのトピックを表します。
type Topic string

// SessionTopic はセッション宛の配送トピックです。
func SessionTopic(id SessionID) Topic {
	return Topic("session:" + id.String())
}

// RoomTopic はルーム宛の受信トピックです。
func RoomTopic(id RoomID) Topic {
	return Topic("room:" + id.String())
}

// Message はPubSubで配送されるメッセージを表します。
type Message struct {
	SessionID SessionID
	Kind      MessageKind
	Data      []byte
}

// PubSub はトピックベースのメッセージ配送を提供します。
type PubSub interface {
	// Subscribe はトピックを購読し、メッセージを受信するチャネルを返します。
	Subscribe(topic Topic) <-chan Message

	// Unsubscribe は購読を解除します。
	Unsubscribe(topic Topic, ch <-chan Message)

	// Publish はトピックにメッセージを配信します。
	// 配送はbest-effort（一部の購読者への配送失敗は無視して継続）。
	Publish(ctx context.Context, topic Topic, msg Message)

	// PublishControl は参加・退出のように落とせないメッセージを配信します。
	// 購読者のチャネルに空きが出るまで待ちます。
	PublishControl(ctx context.Context, topic Topic, msg Message) error
}
