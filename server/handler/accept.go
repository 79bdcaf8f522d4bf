package handler

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/touka-aoi/drawsync/server/domain"
	"github.com/touka-aoi/drawsync/server/transport"
)

// AcceptOptions は WebSocket 受け付け時の設定です。
type AcceptOptions struct {
	// OriginPatterns は許可する Origin のホストパターンです。空なら同一オリジンのみ。
	OriginPatterns []string
	// ReadLimit は1フレームの最大バイト数です。0 でライブラリの既定値。
	ReadLimit int64
	Endpoint  domain.EndpointConfig
}

// AcceptHandler は WebSocket 接続を受け付け、セッションエンドポイントを起動します。
type AcceptHandler struct {
	pubsub      domain.PubSub
	roomManager domain.RoomManager
	decodeJoin  domain.JoinDecoder
	opts        AcceptOptions

	mu        sync.Mutex
	endpoints map[*domain.SessionEndpoint]struct{}
}

func NewAcceptHandler(pubsub domain.PubSub, roomManager domain.RoomManager, decodeJoin domain.JoinDecoder, opts AcceptOptions) *AcceptHandler {
	return &AcceptHandler{
		pubsub:      pubsub,
		roomManager: roomManager,
		decodeJoin:  decodeJoin,
		opts:        opts,
		endpoints:   make(map[*domain.SessionEndpoint]struct{}),
	}
}

func (h *AcceptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to accept websocket connection", "remote", r.RemoteAddr, "err", err)
		return
	}

	session := domain.NewSession()
	connection := domain.NewConnection(domain.ConnectionID(session.ID()), transport.NewWebSocket(conn, h.opts.ReadLimit))
	endpoint, err := domain.NewSessionEndpoint(session, connection, h.pubsub, h.roomManager, h.decodeJoin, h.opts.Endpoint)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create session endpoint", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "initialization failed")
		return
	}

	h.track(endpoint)
	defer h.untrack(endpoint)
	if err := endpoint.Run(); err != nil {
		slog.WarnContext(ctx, "session endpoint stopped", "sessionID", session.ID(), "err", err)
	}
}

// Connections は接続中のセッション数を返します。
func (h *AcceptHandler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.endpoints)
}

// CloseAll はすべての接続を閉じます。http.Server.Shutdown は
// ハイジャック済みの接続を閉じないため、サーバー停止時に呼びます。
func (h *AcceptHandler) CloseAll() {
	h.mu.Lock()
	endpoints := make([]*domain.SessionEndpoint, 0, len(h.endpoints))
	for ep := range h.endpoints {
		endpoints = append(endpoints, ep)
	}
	h.mu.Unlock()
	for _, ep := range endpoints {
		ep.ForceClose()
	}
}

func (h *AcceptHandler) track(ep *domain.SessionEndpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.endpoints[ep] = struct{}{}
}

func (h *AcceptHandler) untrack(ep *domain.SessionEndpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.endpoints, ep)
}
