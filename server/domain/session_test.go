package domain

import (
	"sync"
	"testing"
	"time"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSession_IsIdle(t *testing.T) {
	const timeout = 10 * time.Second

	tests := []struct {
		name       string
		touch      func(s *Session)
		wantIdle   bool
		wantReason IdleReason
	}{
		{
			name:       "read and pong idle",
			touch:      func(*Session) {},
			wantIdle:   true,
			wantReason: IdleRead | IdlePong,
		},
		{
			name:       "pong keeps a silent viewer alive",
			touch:      func(s *Session) { s.TouchPong() },
			wantIdle:   false,
			wantReason: IdleRead,
		},
		{
			name:       "recent read",
			touch:      func(s *Session) { s.TouchRead() },
			wantIdle:   false,
			wantReason: IdlePong,
		},
		{
			name:       "writes alone do not count",
			touch:      func(s *Session) { s.TouchWrite() },
			wantIdle:   true,
			wantReason: IdleRead | IdlePong,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &manualClock{now: time.Unix(1000, 0)}
			s := newSessionAt("s1", clock.Now)
			clock.Advance(timeout + time.Second)
			tt.touch(s)

			idle, reason := s.IsIdle(timeout)
			if idle != tt.wantIdle || reason != tt.wantReason {
				t.Errorf("IsIdle = (%v, %s), want (%v, %s)", idle, reason, tt.wantIdle, tt.wantReason)
			}
		})
	}
}

func TestSession_IsIdleDisabled(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	s := newSessionAt("s1", clock.Now)
	clock.Advance(time.Hour)
	if idle, reason := s.IsIdle(0); idle || reason != IdleDisabled {
		t.Errorf("IsIdle(0) = (%v, %s)", idle, reason)
	}
}

func TestSession_CloseOnce(t *testing.T) {
	s := NewSession()
	if s.ID() == "" {
		t.Fatal("empty session id")
	}
	if !s.Close() {
		t.Error("first Close = false")
	}
	if s.Close() {
		t.Error("second Close = true")
	}
	if !s.IsClosed() {
		t.Error("IsClosed = false")
	}
}

func TestIdleReason_String(t *testing.T) {
	tests := map[IdleReason]string{
		IdleNone:           "none",
		IdleRead:           "read idle",
		IdleRead | IdlePong: "read idle, pong idle",
		IdleDisabled:       "disabled",
	}
	for r, want := range tests {
		if got := r.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", r, got, want)
		}
	}
}
