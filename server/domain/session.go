package domain

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type SessionID string

// NewSessionID は新しいSessionIDを生成する
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

func (id SessionID) String() string { return string(id) }

// IdleReason はセッションがアイドルと判定された理由のビット集合です。
type IdleReason uint8

const (
	IdleNone     IdleReason = 0
	IdleRead     IdleReason = 1 << 0
	IdlePong     IdleReason = 1 << 1
	IdleDisabled IdleReason = 1 << 7
)

func (r IdleReason) String() string {
	if r == IdleNone {
		return "none"
	}
	if r&IdleDisabled != 0 {
		return "disabled"
	}
	var parts []string
	if r&IdleRead != 0 {
		parts = append(parts, "read idle")
	}
	if r&IdlePong != 0 {
		parts = append(parts, "pong idle")
	}
	return strings.Join(parts, ", ")
}

// Session は1接続の論理的な接続状態を表す構造体です。
type Session struct {
	id  SessionID
	now func() time.Time

	// activity
	lastRead  atomic.Int64
	lastWrite atomic.Int64
	lastPong  atomic.Int64

	// lifecycle
	closed atomic.Bool
}

func NewSession() *Session {
	return newSessionAt(NewSessionID(), time.Now)
}

func newSessionAt(id SessionID, now func() time.Time) *Session {
	s := &Session{
		id:  id,
		now: now,
	}
	t := now().UnixNano()
	s.lastRead.Store(t)
	s.lastWrite.Store(t)
	s.lastPong.Store(t)
	return s
}

func (s *Session) TouchRead() {
	s.lastRead.Store(s.now().UnixNano())
}

func (s *Session) TouchWrite() {
	s.lastWrite.Store(s.now().UnixNano())
}

func (s *Session) TouchPong() {
	s.lastPong.Store(s.now().UnixNano())
}

func (s *Session) Close() bool {
	return s.closed.CompareAndSwap(false, true)
}

// IsIdle は受信と pong の両方が timeout を超えて途絶えているかを判定します。
// 書き込みが無いだけの参加者（見ているだけのユーザー）はアイドル扱いしません。
func (s *Session) IsIdle(timeout time.Duration) (bool, IdleReason) {
	if timeout <= 0 {
		return false, IdleDisabled
	}
	var reason IdleReason
	if s.IsReadIdle(timeout) {
		reason |= IdleRead
	}
	if s.IsPongIdle(timeout) {
		reason |= IdlePong
	}
	return reason == IdleRead|IdlePong, reason
}

func (s *Session) IsReadIdle(timeout time.Duration) bool {
	return s.idleSince(s.lastRead.Load(), timeout)
}

func (s *Session) IsWriteIdle(timeout time.Duration) bool {
	return s.idleSince(s.lastWrite.Load(), timeout)
}

func (s *Session) IsPongIdle(timeout time.Duration) bool {
	return s.idleSince(s.lastPong.Load(), timeout)
}

func (s *Session) ID() SessionID {
	return s.id
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

func (s *Session) idleSince(lastNano int64, timeout time.Duration) bool {
	return s.now().Sub(time.Unix(0, lastNano)) > timeout
}
