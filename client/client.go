// Package client はサーバーに WebSocket で接続し、ローカルミラーを同期させるクライアント。
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/touka-aoi/drawsync/application/domain"
	"github.com/touka-aoi/drawsync/application/mirror"
	"github.com/touka-aoi/drawsync/handler"
)

var (
	ErrNotJoined = errors.New("client: not joined to a room")
	ErrClosed    = errors.New("client: connection closed")
)

type Options struct {
	DisplayName  string
	DisplayColor string
	HTTPClient   *http.Client
	// OnEvent はミラーへの反映後に受信フレームごとに呼ばれる。読み取りゴルーチン上で実行される。
	OnEvent func(frame handler.Frame)
}

// Client は1接続分の同期クライアント。
type Client struct {
	conn   *websocket.Conn
	mirror *mirror.Mirror
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	mu       sync.Mutex
	roomID   string
	userID   string
	joined   bool
	awaiting bool          // room-state 受信後、自分の user-joined を待っている
	joinReq  chan struct{} // 自分の user-joined 受信で閉じる
}

// Dial は url に接続し、受信ループを開始する。受信した状態は surface に描画される。
func Dial(ctx context.Context, url string, surface mirror.Surface, opts Options) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: opts.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	conn.SetReadLimit(1 << 22)
	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:   conn,
		mirror: mirror.New(surface),
		opts:   opts,
		ctx:    cctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Mirror はこの接続のローカルミラーを返す。
func (c *Client) Mirror() *mirror.Mirror {
	return c.mirror
}

// UserID はサーバーが割り当てた接続IDを返す。参加完了までは空。
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Join は roomID に参加し、スナップショットをミラーに読み込んで自分の参加通知を受け取るまで待つ。
func (c *Client) Join(ctx context.Context, roomID string) error {
	c.mu.Lock()
	c.roomID = roomID
	c.joined = false
	wait := make(chan struct{})
	c.joinReq = wait
	c.mu.Unlock()

	if err := c.send(ctx, handler.EventJoinRoom, handler.JoinPayload{
		RoomID:       roomID,
		DisplayName:  c.opts.DisplayName,
		DisplayColor: c.opts.DisplayColor,
	}); err != nil {
		return err
	}
	select {
	case <-wait:
		return nil
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit は下書きをローカルに適用してから送信し、ack の照合に使う clientId を返す。
// 送信に失敗した場合はローカルの適用を取り消す。
func (c *Client) Submit(ctx context.Context, draft domain.Action) (string, error) {
	if err := c.requireJoined(); err != nil {
		return "", err
	}
	if err := draft.Validate(); err != nil {
		return "", err
	}
	clientID := uuid.NewString()
	c.mirror.Submit(clientID, draft)
	if err := c.send(ctx, handler.Event(draft.Type), handler.ActionPayload{ClientID: clientID, Action: draft}); err != nil {
		// サーバに届かなかったものは ack されないので描画から外す
		c.mirror.Discard(clientID)
		return "", err
	}
	return clientID, nil
}

func (c *Client) Undo(ctx context.Context) error {
	return c.sendJoined(ctx, handler.EventUndo, struct{}{})
}

func (c *Client) Redo(ctx context.Context) error {
	return c.sendJoined(ctx, handler.EventRedo, struct{}{})
}

func (c *Client) Clear(ctx context.Context) error {
	return c.sendJoined(ctx, handler.EventClear, struct{}{})
}

func (c *Client) Cursor(ctx context.Context, x, y float64) error {
	return c.sendJoined(ctx, handler.EventCursorMove, handler.CursorPayload{X: x, Y: y})
}

// DrawMove はストローク途中の位置を他の参加者に中継する。ログには残らない。
func (c *Client) DrawMove(ctx context.Context, x, y float64) error {
	return c.sendJoined(ctx, handler.EventDrawMove, handler.CursorPayload{X: x, Y: y})
}

// Done は受信ループが終了すると閉じる。
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err は受信ループの終了理由を返す。Close による終了なら ErrClosed。
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Client) Close() error {
	c.cancel()
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	<-c.done
	return err
}

func (c *Client) requireJoined() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.joined {
		return ErrNotJoined
	}
	return nil
}

func (c *Client) sendJoined(ctx context.Context, ev handler.Event, payload any) error {
	if err := c.requireJoined(); err != nil {
		return err
	}
	return c.send(ctx, ev, payload)
}

func (c *Client) send(ctx context.Context, ev handler.Event, payload any) error {
	data, err := handler.EncodeFrame(ev, payload)
	if err != nil {
		return err
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("client: write %s: %w", ev, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				c.err = ErrClosed
			} else {
				c.err = err
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		frame, err := handler.DecodeFrame(data)
		if err != nil {
			slog.WarnContext(c.ctx, "client: malformed frame", "err", err)
			continue
		}
		if err := c.apply(frame); err != nil {
			slog.WarnContext(c.ctx, "client: apply frame failed", "event", frame.Type, "err", err)
			continue
		}
		if c.opts.OnEvent != nil {
			c.opts.OnEvent(frame)
		}
	}
}

// apply は受信フレームをミラーに反映する。
func (c *Client) apply(frame handler.Frame) error {
	if _, ok := frame.Type.ActionKind(); ok {
		var action domain.Action
		if err := json.Unmarshal(frame.Data, &action); err != nil {
			return err
		}
		c.mirror.ApplyRemote(action)
		return nil
	}

	switch frame.Type {
	case handler.EventRoomState:
		var snap handler.RoomStateMessage
		if err := json.Unmarshal(frame.Data, &snap); err != nil {
			return err
		}
		c.mirror.LoadSnapshot(snap.Actions)
		c.mu.Lock()
		c.joined = true
		c.awaiting = true
		c.mu.Unlock()
	case handler.EventUserJoin:
		var msg handler.PresenceMessage
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			return err
		}
		// room-state の直後に届く user-joined は自分自身の参加通知
		c.mu.Lock()
		if c.awaiting {
			c.userID = msg.UserID
			c.awaiting = false
			if c.joinReq != nil {
				close(c.joinReq)
				c.joinReq = nil
			}
		}
		c.mu.Unlock()
	case handler.EventActionAck:
		var ack handler.AckMessage
		if err := json.Unmarshal(frame.Data, &ack); err != nil {
			return err
		}
		c.mirror.Ack(ack.ClientID, ack.ID, ack.UserID, ack.Timestamp)
	case handler.EventUndo:
		var msg handler.HistoryMessage
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			return err
		}
		c.mirror.ApplyUndo(msg.ActionID)
	case handler.EventRedo:
		var msg handler.HistoryMessage
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			return err
		}
		if msg.Action != nil {
			c.mirror.ApplyRedo(*msg.Action)
		}
	case handler.EventClear:
		c.mirror.ApplyClear()
	case handler.EventError:
		var msg handler.ErrorMessage
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			return err
		}
		slog.WarnContext(c.ctx, "client: server rejected frame", "event", msg.Event, "message", msg.Message)
	}
	return nil
}
