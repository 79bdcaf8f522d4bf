package transport

import (
	"context"
	"io"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/touka-aoi/drawsync/server/domain"
)

// WebSocket は coder/websocket の接続を domain.Transport として扱うアダプタです。
type WebSocket struct {
	conn *websocket.Conn
}

func NewWebSocket(conn *websocket.Conn, readLimit int64) *WebSocket {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	return &WebSocket{conn: conn}
}

// Read はテキストフレームを1つ読み取ります。バイナリフレームは読み捨てます。
func (w *WebSocket) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := w.conn.Read(ctx)
		if err != nil {
			if isNormalClosure(err) {
				return nil, io.EOF
			}
			return nil, err
		}
		if typ == websocket.MessageText {
			return data, nil
		}
		slog.DebugContext(ctx, "transport: binary frame dropped", "bytes", len(data))
	}
}

func (w *WebSocket) Write(ctx context.Context, data []byte) error {
	return w.conn.Write(ctx, websocket.MessageText, data)
}

func (w *WebSocket) Ping(ctx context.Context) error {
	return w.conn.Ping(ctx)
}

func (w *WebSocket) Close(code int32, reason string) error {
	return w.conn.Close(websocket.StatusCode(code), reason)
}

// isNormalClosure は err が相手側からの正常な切断かどうかを判定します。
func isNormalClosure(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

var _ domain.Transport = (*WebSocket)(nil)
