package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrBackpressure は書き込みチャネルが満杯の場合に返されるエラーです。
	ErrBackpressure = errors.New("write channel is full, apply backpressure")
	// ErrInitializationFailed はセッションエンドポイントの初期化に失敗した場合に返されるエラーです。
	ErrInitializationFailed = errors.New("failed to initialize session endpoint")
)

// JoinDecoder は受信データが参加要求であれば参加先のルームを返します。
type JoinDecoder func(data []byte) (RoomID, bool)

// EndpointConfig はセッションエンドポイントの動作設定です。
type EndpointConfig struct {
	// IdleTimeout を超えて受信も pong も無ければ切断します。0 で無効。
	IdleTimeout time.Duration
	// PingInterval ごとに ping を送ります。0 で無効。
	PingInterval time.Duration
	// WriteBuffer は書き込みチャネルの容量です。
	WriteBuffer int
}

// DefaultEndpointConfig は既定の設定を返します。
func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		IdleTimeout:  60 * time.Second,
		PingInterval: 20 * time.Second,
		WriteBuffer:  1024,
	}
}

type SessionEndpoint struct {
	ctx    context.Context
	cancel context.CancelFunc

	session     *Session
	connection  *Connection
	pubsub      PubSub
	roomManager RoomManager
	decodeJoin  JoinDecoder
	config      EndpointConfig

	roomID atomic.Pointer[RoomID] // 参加中のルーム。readLoop だけが更新する

	ctrlCh  chan endpointEvent // 制御用チャネル
	writeCh chan []byte        // 書き込み用チャネル

	// lifecycle
	closed atomic.Bool
}

func NewSessionEndpoint(session *Session, connection *Connection, pubsub PubSub, roomManager RoomManager, decodeJoin JoinDecoder, config EndpointConfig) (*SessionEndpoint, error) {
	if session == nil || connection == nil || pubsub == nil || roomManager == nil || decodeJoin == nil {
		return nil, ErrInitializationFailed
	}
	if config.WriteBuffer <= 0 {
		config.WriteBuffer = DefaultEndpointConfig().WriteBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	se := &SessionEndpoint{
		ctx:         ctx,
		cancel:      cancel,
		session:     session,
		connection:  connection,
		pubsub:      pubsub,
		roomManager: roomManager,
		decodeJoin:  decodeJoin,
		config:      config,
		ctrlCh:      make(chan endpointEvent, 16),
		writeCh:     make(chan []byte, config.WriteBuffer),
	}
	return se, nil
}

// Run は接続が閉じるまでブロックします。終了時には参加中のルームへ退出を通知します。
func (se *SessionEndpoint) Run() error {
	// 自分宛のメッセージを購読
	sessionTopic := SessionTopic(se.session.ID())
	msgCh := se.pubsub.Subscribe(sessionTopic)
	defer se.pubsub.Unsubscribe(sessionTopic, msgCh)
	defer se.leaveRoom()
	defer se.close()

	slog.InfoContext(se.ctx, "session: connected", "sessionID", se.session.ID())

	eg, ctx := errgroup.WithContext(se.ctx)
	eg.Go(func() error {
		se.ownerLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.readLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.writeLoop(ctx)
		return nil
	})
	eg.Go(func() error {
		se.subscribeLoop(ctx, msgCh)
		return nil
	})
	return eg.Wait()
}

func (se *SessionEndpoint) Session() *Session {
	return se.session
}

// RoomID は参加中のルームを返します。未参加なら空です。
func (se *SessionEndpoint) RoomID() RoomID {
	if id := se.roomID.Load(); id != nil {
		return *id
	}
	return ""
}

func (se *SessionEndpoint) Send(data []byte) error {
	select {
	case se.writeCh <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (se *SessionEndpoint) Close(ctx context.Context) {
	se.sendCtrlEvent(ctx, endpointEvent{kind: evClose, err: nil})
}

func (se *SessionEndpoint) ForceClose() {
	se.close()
}

// ownerLoop は論理セッションの状態を監視し、必要に応じて接続の管理を行います。
func (se *SessionEndpoint) ownerLoop(ctx context.Context) {
	interval := se.config.PingInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-se.ctrlCh:
			se.handleControlEvent(ctx, ev)
		case <-ticker.C:
			if se.config.PingInterval > 0 {
				se.ping(ctx)
			}
			if ok, reason := se.session.IsIdle(se.config.IdleTimeout); ok {
				se.handleControlEvent(ctx, endpointEvent{
					kind: evClose,
					err:  errors.New(reason.String()),
				})
			}
		}
	}
}

func (se *SessionEndpoint) ping(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, se.config.PingInterval)
	defer cancel()
	if err := se.connection.Ping(pingCtx); err != nil {
		se.handleControlEvent(ctx, endpointEvent{kind: evPingError, err: err})
		return
	}
	se.handleControlEvent(ctx, endpointEvent{kind: evPong})
}

func (se *SessionEndpoint) readLoop(ctx context.Context) {
	for {
		data, err := se.connection.Read(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case errors.Is(err, io.EOF):
				slog.DebugContext(ctx, "readLoop: peer closed", "sessionID", se.session.ID())
			default:
				slog.InfoContext(ctx, "readLoop: read failed", "sessionID", se.session.ID(), "err", err)
			}
			se.close()
			return
		}
		se.session.TouchRead()

		if roomID, ok := se.decodeJoin(data); ok {
			if err := se.joinRoom(ctx, roomID, data); err != nil {
				slog.WarnContext(ctx, "readLoop: join failed", "sessionID", se.session.ID(), "roomID", roomID, "err", err)
			}
			continue
		}
		roomID := se.RoomID()
		if roomID.IsEmpty() {
			slog.DebugContext(ctx, "readLoop: frame before join dropped", "sessionID", se.session.ID())
			continue
		}
		se.pubsub.Publish(ctx, RoomTopic(roomID), Message{
			SessionID: se.session.ID(),
			Kind:      MessageData,
			Data:      data,
		})
	}
}

// joinRoom は参加中のルームがあれば退出してから新しいルームに参加します。
func (se *SessionEndpoint) joinRoom(ctx context.Context, roomID RoomID, data []byte) error {
	if cur := se.RoomID(); !cur.IsEmpty() && cur != roomID {
		se.leaveRoom()
	}
	if err := se.roomManager.Acquire(ctx, roomID); err != nil {
		return err
	}
	se.roomID.Store(&roomID)
	// Acquire で予約した参加は必ずルームに届ける。届かないとルームが回収されない
	return se.pubsub.PublishControl(context.WithoutCancel(ctx), RoomTopic(roomID), Message{
		SessionID: se.session.ID(),
		Kind:      MessageJoin,
		Data:      data,
	})
}

// leaveRoom はルームへ退出を通知します。ルームのチャネルが満杯でも空くまで待ち、
// ルームの停止時だけ諦めます。
func (se *SessionEndpoint) leaveRoom() {
	id := se.roomID.Swap(nil)
	if id == nil {
		return
	}
	err := se.pubsub.PublishControl(context.Background(), RoomTopic(*id), Message{
		SessionID: se.session.ID(),
		Kind:      MessageLeave,
	})
	if err != nil {
		slog.Warn("session: leave not delivered", "sessionID", se.session.ID(), "roomID", *id, "err", err)
	}
}

func (se *SessionEndpoint) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-se.writeCh:
			err := se.connection.Write(ctx, data)
			if err != nil {
				se.sendCtrlEvent(ctx, endpointEvent{kind: evWriteError, err: err})
				continue
			}
			se.session.TouchWrite()
		}
	}
}

// subscribeLoop はpubsubからのメッセージをwriteChに転送します。
func (se *SessionEndpoint) subscribeLoop(ctx context.Context, msgCh <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			if err := se.Send(msg.Data); err != nil {
				slog.WarnContext(ctx, "subscribeLoop: writeCh full, message dropped", "sessionID", se.session.ID())
			}
		}
	}
}

func (se *SessionEndpoint) close() {
	if !se.closed.CompareAndSwap(false, true) {
		return
	}
	se.cancel()
	se.session.Close()
	se.connection.Close()
	slog.Info("session: closed", "sessionID", se.session.ID())
}

// handleControlEvent は制御チャネルからのイベントを処理し論理セッションの状態を更新する唯一の関数です。
func (se *SessionEndpoint) handleControlEvent(ctx context.Context, ev endpointEvent) {
	switch ev.kind {
	case evClose:
		if ev.err != nil {
			slog.InfoContext(ctx, "session: closing", "sessionID", se.session.ID(), "reason", ev.err)
		}
		se.close()
	case evPong:
		se.session.TouchPong()
	case evWriteError, evPingError:
		slog.DebugContext(ctx, "session: transport error", "sessionID", se.session.ID(), "kind", ev.kind, "err", ev.err)
		se.close()
	case evReadError:
		se.close()
	default:
		slog.WarnContext(ctx, "unknown endpoint event kind", "kind", ev.kind)
	}
}

func (se *SessionEndpoint) sendCtrlEvent(ctx context.Context, ev endpointEvent) {
	select {
	case se.ctrlCh <- ev:
	case <-ctx.Done():
	}
}
