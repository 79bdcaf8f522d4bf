package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/touka-aoi/drawsync/application/domain"
	"github.com/touka-aoi/drawsync/application/state"
	"github.com/touka-aoi/drawsync/handler"
	sdomain "github.com/touka-aoi/drawsync/server/domain"
)

var (
	ErrInvalidPayload = errors.New("service: invalid payload")
	ErrUnsupported    = errors.New("service: unsupported event")
	ErrMissingDeps    = errors.New("service: missing dependency")
)

// SyncService はルームのループから呼ばれ、同期プロトコルを実装する。
// アクションログの更新と、その結果の配送はすべてルームのループ上で行う。
type SyncService struct {
	log      state.ActionLog
	registry state.Registry
	metrics  state.MetricsRecorder
}

func NewSyncService(log state.ActionLog, registry state.Registry, metrics state.MetricsRecorder) (*SyncService, error) {
	if log == nil || registry == nil || metrics == nil {
		return nil, ErrMissingDeps
	}
	return &SyncService{
		log:      log,
		registry: registry,
		metrics:  metrics,
	}, nil
}

func (s *SyncService) Occupancy(roomID sdomain.RoomID) int {
	return s.registry.Count(roomID.String())
}

func (s *SyncService) Dispatch(ctx context.Context, room *sdomain.Room, msg sdomain.Message) error {
	switch msg.Kind {
	case sdomain.MessageJoin:
		return s.join(ctx, room, msg)
	case sdomain.MessageLeave:
		s.leave(ctx, room, msg.SessionID)
		return nil
	}

	frame, err := handler.DecodeFrame(msg.Data)
	if err != nil {
		s.reject(ctx, room, msg.SessionID, "", err)
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	member, ok := s.registry.Lookup(msg.SessionID.String())
	if !ok || member.RoomID != room.ID.String() {
		// 既に退出済みの接続
		return nil
	}

	start := time.Now()
	defer s.record(ctx, string(frame.Type), start)

	if kind, ok := frame.Type.ActionKind(); ok {
		return s.submit(ctx, room, member, kind, frame)
	}
	switch frame.Type {
	case handler.EventUndo:
		return s.undo(ctx, room, member)
	case handler.EventRedo:
		return s.redo(ctx, room, member)
	case handler.EventClear:
		return s.clear(ctx, room, member)
	case handler.EventCursorMove, handler.EventDrawMove:
		return s.cursor(ctx, room, member, frame)
	default:
		err := fmt.Errorf("%w: %s", ErrUnsupported, frame.Type)
		s.reject(ctx, room, msg.SessionID, frame.Type, err)
		return err
	}
}

func (s *SyncService) join(ctx context.Context, room *sdomain.Room, msg sdomain.Message) error {
	frame, err := handler.DecodeFrame(msg.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	var payload handler.JoinPayload
	if err := decode(frame, &payload); err != nil {
		s.reject(ctx, room, msg.SessionID, frame.Type, err)
		return err
	}
	if err := payload.Validate(); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		s.reject(ctx, room, msg.SessionID, frame.Type, err)
		return err
	}
	if payload.RoomID != room.ID.String() {
		return fmt.Errorf("%w: join for %q routed to %q", ErrInvalidPayload, payload.RoomID, room.ID)
	}

	userID := msg.SessionID.String()
	if prev, ok := s.registry.Lookup(userID); ok && prev.RoomID != payload.RoomID {
		// ルームを移る場合は移動元の参加者に先に退出を知らせる
		s.depart(ctx, room, prev)
	}
	member := s.registry.Join(payload.RoomID, userID, payload.DisplayName, payload.DisplayColor)

	snapshot := s.log.Snapshot(payload.RoomID)
	if err := s.send(ctx, room, msg.SessionID, handler.EventRoomState, snapshot); err != nil {
		return err
	}
	members := s.registry.Members(payload.RoomID)
	s.broadcast(ctx, room, members, handler.EventUserJoin, handler.PresenceMessage{
		UserID:       member.UserID,
		DisplayName:  member.DisplayName,
		DisplayColor: member.DisplayColor,
		Users:        members,
	}, "")
	s.metrics.IncrementCounter(ctx, "events."+string(handler.EventJoinRoom), 1)
	slog.InfoContext(ctx, "sync: user joined", "roomID", payload.RoomID, "userID", userID, "displayName", member.DisplayName, "actions", len(snapshot.Actions))
	return nil
}

// leave はこのルームに参加中の接続だけを退出させる。
// 別のルームへ移った後に届いた退出通知は無視する。
func (s *SyncService) leave(ctx context.Context, room *sdomain.Room, sessionID sdomain.SessionID) {
	member, ok := s.registry.Lookup(sessionID.String())
	if !ok || member.RoomID != room.ID.String() {
		return
	}
	s.depart(ctx, room, member)
}

func (s *SyncService) depart(ctx context.Context, room *sdomain.Room, member state.Member) {
	if !s.registry.Leave(member.RoomID, member.UserID) {
		return
	}
	members := s.registry.Members(member.RoomID)
	s.broadcast(ctx, room, members, handler.EventUserLeft, handler.PresenceMessage{
		UserID: member.UserID,
		Users:  members,
	}, "")
	s.metrics.IncrementCounter(ctx, "events."+string(handler.EventUserLeft), 1)
	slog.InfoContext(ctx, "sync: user left", "roomID", member.RoomID, "userID", member.UserID)
}

func (s *SyncService) submit(ctx context.Context, room *sdomain.Room, member state.Member, kind domain.Kind, frame handler.Frame) error {
	var payload handler.ActionPayload
	if err := decode(frame, &payload); err != nil {
		s.reject(ctx, room, sdomain.SessionID(member.UserID), frame.Type, err)
		return err
	}
	payload.Type = kind
	if err := payload.Validate(); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		s.reject(ctx, room, sdomain.SessionID(member.UserID), frame.Type, err)
		return err
	}

	draft := payload.Draft(kind)
	draft.UserID = member.UserID
	stored := s.log.Append(member.RoomID, draft)

	if err := s.send(ctx, room, sdomain.SessionID(member.UserID), handler.EventActionAck, handler.AckMessage{
		ClientID:  payload.ClientID,
		ID:        stored.ID,
		UserID:    stored.UserID,
		Timestamp: stored.Timestamp,
	}); err != nil {
		return err
	}
	s.broadcast(ctx, room, s.registry.Members(member.RoomID), frame.Type, stored, member.UserID)
	return nil
}

func (s *SyncService) undo(ctx context.Context, room *sdomain.Room, member state.Member) error {
	action, ok := s.log.Undo(member.RoomID, member.UserID)
	if !ok {
		slog.DebugContext(ctx, "sync: nothing to undo", "roomID", member.RoomID, "userID", member.UserID)
		return nil
	}
	s.broadcast(ctx, room, s.registry.Members(member.RoomID), handler.EventUndo, handler.HistoryMessage{
		UserID:   member.UserID,
		ActionID: action.ID,
	}, "")
	return nil
}

func (s *SyncService) redo(ctx context.Context, room *sdomain.Room, member state.Member) error {
	action, ok := s.log.Redo(member.RoomID, member.UserID)
	if !ok {
		slog.DebugContext(ctx, "sync: nothing to redo", "roomID", member.RoomID, "userID", member.UserID)
		return nil
	}
	s.broadcast(ctx, room, s.registry.Members(member.RoomID), handler.EventRedo, handler.HistoryMessage{
		UserID:   member.UserID,
		ActionID: action.ID,
		Action:   &action,
	}, "")
	return nil
}

func (s *SyncService) clear(ctx context.Context, room *sdomain.Room, member state.Member) error {
	s.log.Clear(member.RoomID)
	s.broadcast(ctx, room, s.registry.Members(member.RoomID), handler.EventClear, handler.ClearMessage{
		UserID: member.UserID,
	}, "")
	slog.InfoContext(ctx, "sync: canvas cleared", "roomID", member.RoomID, "userID", member.UserID)
	return nil
}

func (s *SyncService) cursor(ctx context.Context, room *sdomain.Room, member state.Member, frame handler.Frame) error {
	var payload handler.CursorPayload
	if err := decode(frame, &payload); err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	s.broadcast(ctx, room, s.registry.Members(member.RoomID), frame.Type, handler.CursorMessage{
		UserID:       member.UserID,
		X:            payload.X,
		Y:            payload.Y,
		DisplayName:  member.DisplayName,
		DisplayColor: member.DisplayColor,
	}, member.UserID)
	return nil
}

func (s *SyncService) send(ctx context.Context, room *sdomain.Room, to sdomain.SessionID, ev handler.Event, payload any) error {
	data, err := handler.EncodeFrame(ev, payload)
	if err != nil {
		return err
	}
	room.SendTo(ctx, to, data)
	return nil
}

func (s *SyncService) broadcast(ctx context.Context, room *sdomain.Room, members []state.Member, ev handler.Event, payload any, exclude string) {
	data, err := handler.EncodeFrame(ev, payload)
	if err != nil {
		slog.ErrorContext(ctx, "sync: encode broadcast failed", "event", ev, "err", err)
		return
	}
	targets := make([]sdomain.SessionID, 0, len(members))
	for _, m := range members {
		targets = append(targets, sdomain.SessionID(m.UserID))
	}
	room.Broadcast(ctx, targets, data, sdomain.SessionID(exclude))
}

func (s *SyncService) reject(ctx context.Context, room *sdomain.Room, to sdomain.SessionID, ev handler.Event, cause error) {
	if err := s.send(ctx, room, to, handler.EventError, handler.ErrorMessage{Event: ev, Message: cause.Error()}); err != nil {
		slog.ErrorContext(ctx, "sync: encode error frame failed", "err", err)
	}
	s.metrics.IncrementCounter(ctx, "errors.invalid_payload", 1)
}

func (s *SyncService) record(ctx context.Context, event string, started time.Time) {
	s.metrics.RecordLatency(ctx, event, time.Since(started))
	s.metrics.IncrementCounter(ctx, "events."+event, 1)
}

func decode(frame handler.Frame, v any) error {
	if len(frame.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(frame.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

var _ sdomain.Dispatcher = (*SyncService)(nil)
