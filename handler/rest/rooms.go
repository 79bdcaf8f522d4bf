package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/touka-aoi/drawsync/service"
)

type RoomListResponse struct {
	Rooms []service.RoomSummary `json:"rooms"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RoomsHandler はルーム一覧を返す。
type RoomsHandler struct {
	svc service.RoomService
}

func NewRoomsHandler(svc service.RoomService) *RoomsHandler {
	return &RoomsHandler{svc: svc}
}

func (h *RoomsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, RoomListResponse{Rooms: h.svc.List(r.Context())})
}

// RoomHandler は `{roomID}` で指定されたルームの参加者とログ件数を返す。
type RoomHandler struct {
	svc service.RoomService
}

func NewRoomHandler(svc service.RoomService) *RoomHandler {
	return &RoomHandler{svc: svc}
}

func (h *RoomHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]
	detail, ok := h.svc.Get(r.Context(), roomID)
	if !ok {
		writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "room not found"})
		return
	}
	writeJSON(w, r, http.StatusOK, detail)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.WarnContext(r.Context(), "rest: encode response failed", "path", r.URL.Path, "err", err)
	}
}
