package service

import (
	"context"
	"log/slog"

	"github.com/touka-aoi/drawsync/application/state"
)

// RoomSummary はルーム一覧の1行。
type RoomSummary struct {
	RoomID  string `json:"roomId"`
	Members int    `json:"members"`
	Actions int    `json:"actions"`
}

// RoomDetail はルームの参加者とログの状況。
type RoomDetail struct {
	RoomID  string         `json:"roomId"`
	Members []state.Member `json:"members"`
	Actions int            `json:"actions"`
}

// RoomService は参照専用のルーム情報を提供する。
type RoomService interface {
	List(ctx context.Context) []RoomSummary
	Get(ctx context.Context, roomID string) (RoomDetail, bool)
}

type roomService struct {
	log      state.ActionLog
	registry state.Registry
}

func NewRoomService(log state.ActionLog, registry state.Registry) (RoomService, error) {
	if log == nil || registry == nil {
		return nil, ErrMissingDeps
	}
	return &roomService{log: log, registry: registry}, nil
}

func (s *roomService) List(ctx context.Context) []RoomSummary {
	rooms := s.registry.Rooms()
	out := make([]RoomSummary, 0, len(rooms))
	for _, id := range rooms {
		out = append(out, RoomSummary{
			RoomID:  id,
			Members: s.registry.Count(id),
			Actions: s.log.Len(id),
		})
	}
	slog.DebugContext(ctx, "rooms listed", "count", len(out))
	return out
}

// Get は参加者がいるかログが残っているルームの情報を返す。
func (s *roomService) Get(_ context.Context, roomID string) (RoomDetail, bool) {
	members := s.registry.Members(roomID)
	actions := s.log.Len(roomID)
	if len(members) == 0 && actions == 0 {
		return RoomDetail{}, false
	}
	return RoomDetail{RoomID: roomID, Members: members, Actions: actions}, true
}
