package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/touka-aoi/drawsync/handler/rest"
	"github.com/touka-aoi/drawsync/repository/state/memory"
	"github.com/touka-aoi/drawsync/server/handler"
	"github.com/touka-aoi/drawsync/service"
)

// Routes はルーターが束ねるハンドラの依存です。
type Routes struct {
	Accept      *handler.AcceptHandler
	Rooms       service.RoomService
	Metrics     *memory.Metrics
	ActiveRooms func() int
}

func Route(routes Routes) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/ws", routes.Accept)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.Handle("/rooms", rest.NewRoomsHandler(routes.Rooms)).Methods(http.MethodGet)
	r.Handle("/rooms/{roomID}", rest.NewRoomHandler(routes.Rooms)).Methods(http.MethodGet)
	r.Handle("/stats", rest.NewStatsHandler(routes.Metrics, routes.Accept.Connections, routes.ActiveRooms)).Methods(http.MethodGet)
	return r
}
