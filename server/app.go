package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/touka-aoi/drawsync/handler"
	"github.com/touka-aoi/drawsync/repository/state/memory"
	"github.com/touka-aoi/drawsync/server/domain"
	shandler "github.com/touka-aoi/drawsync/server/handler"
	"github.com/touka-aoi/drawsync/service"
)

// AppOptions はサーバー一式を組み立てるための設定です。
type AppOptions struct {
	Accept          shandler.AcceptOptions
	PubSubBuffer    int
	PurgeEmptyRooms bool
	// ActionLog を省略するとインメモリのログを作ります。
	ActionLog *memory.ActionLog
}

// App はプロセス内のルーム状態と HTTP ハンドラを束ねたものです。
type App struct {
	Log      *memory.ActionLog
	Registry *memory.Registry
	Metrics  *memory.Metrics
	Rooms    *domain.LocalRoomManager
	Accept   *shandler.AcceptHandler
	Handler  http.Handler
}

func NewApp(opts AppOptions) (*App, error) {
	log := opts.ActionLog
	if log == nil {
		log = memory.NewActionLog()
	}
	registry := memory.NewRegistry()
	metrics := memory.NewMetrics()

	syncSvc, err := service.NewSyncService(log, registry, metrics)
	if err != nil {
		return nil, err
	}
	roomSvc, err := service.NewRoomService(log, registry)
	if err != nil {
		return nil, err
	}

	pubsub := domain.NewSimplePubSub(opts.PubSubBuffer)
	rooms := domain.NewLocalRoomManager(pubsub, syncSvc)
	rooms.OnOpen(func(ctx context.Context, roomID domain.RoomID) {
		metrics.IncrementCounter(ctx, "rooms.opened", 1)
	})
	rooms.OnClose(func(ctx context.Context, roomID domain.RoomID) {
		metrics.IncrementCounter(ctx, "rooms.closed", 1)
		slog.InfoContext(ctx, "room closed", "roomID", roomID, "actions", log.Len(roomID.String()))
	})
	if opts.PurgeEmptyRooms {
		rooms.OnClose(func(ctx context.Context, roomID domain.RoomID) {
			log.Drop(roomID.String())
			slog.InfoContext(ctx, "room log purged", "roomID", roomID)
		})
	}

	accept := shandler.NewAcceptHandler(pubsub, rooms, DecodeJoin, opts.Accept)
	return &App{
		Log:      log,
		Registry: registry,
		Metrics:  metrics,
		Rooms:    rooms,
		Accept:   accept,
		Handler:  Route(Routes{
			Accept:      accept,
			Rooms:       roomSvc,
			Metrics:     metrics,
			ActiveRooms: rooms.Active,
		}),
	}, nil
}

// Shutdown は接続を閉じ、すべてのルームのループを止めます。
func (a *App) Shutdown(ctx context.Context) error {
	a.Accept.CloseAll()
	return a.Rooms.Shutdown(ctx)
}

// DecodeJoin は join-room フレームから参加先のルームを取り出します。
func DecodeJoin(data []byte) (domain.RoomID, bool) {
	id, ok := handler.JoinRoomID(data)
	return domain.RoomID(id), ok
}
