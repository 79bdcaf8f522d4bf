package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/touka-aoi/drawsync/application/domain"
)

const maxRoomIDLen = 128

// Validator はサービス層へ渡す前にペイロードを検証する。
type Validator interface {
	Validate() error
}

type JoinPayload struct {
	RoomID       string `json:"roomId"`
	DisplayName  string `json:"displayName,omitempty"`
	DisplayColor string `json:"displayColor,omitempty"`
}

// ActionPayload は描画アクションの下書き。clientId は ack の照合にだけ使う。
type ActionPayload struct {
	ClientID string `json:"clientId,omitempty"`
	domain.Action
}

type CursorPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p *JoinPayload) Validate() error {
	p.RoomID = strings.TrimSpace(p.RoomID)
	if p.RoomID == "" {
		return errors.New("room id is required")
	}
	if len(p.RoomID) > maxRoomIDLen {
		return fmt.Errorf("room id exceeds %d bytes", maxRoomIDLen)
	}
	return nil
}

func (p *ActionPayload) Validate() error {
	return p.Action.Validate()
}

// Draft はサーバー側で付与するフィールドを落とした下書きを返す。
func (p *ActionPayload) Draft(kind domain.Kind) domain.Action {
	a := p.Action.Clone()
	a.Type = kind
	a.ID = 0
	a.UserID = ""
	a.Timestamp = 0
	return a
}

func (p *CursorPayload) Validate() error {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return fmt.Errorf("invalid position: (%v, %v)", p.X, p.Y)
	}
	return nil
}

// JoinRoomID は受信データが有効な join-room であれば参加先ルームIDを返す。
func JoinRoomID(data []byte) (string, bool) {
	frame, err := DecodeFrame(data)
	if err != nil || frame.Type != EventJoinRoom {
		return "", false
	}
	var p JoinPayload
	if err := json.Unmarshal(frame.Data, &p); err != nil {
		return "", false
	}
	if err := p.Validate(); err != nil {
		return "", false
	}
	return p.RoomID, true
}
