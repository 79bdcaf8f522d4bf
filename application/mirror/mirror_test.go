package mirror

import (
	"testing"

	"github.com/touka-aoi/drawsync/application/domain"
)

type recordingSurface struct {
	clears int
	drawn  []domain.Action
}

func (s *recordingSurface) Clear() {
	s.clears++
	s.drawn = nil
}

func (s *recordingSurface) Draw(a domain.Action) {
	s.drawn = append(s.drawn, a)
}

func path(id domain.ActionID) domain.Action {
	return domain.Action{ID: id, Type: domain.KindDrawPath, UserID: "u", Path: []domain.Point{{X: 1, Y: 1}}}
}

func TestMirror_LoadSnapshotRedraws(t *testing.T) {
	s := &recordingSurface{}
	m := New(s)
	m.LoadSnapshot([]domain.Action{
		path(1),
		{ID: 2, Type: domain.KindDrawStart},
		{ID: 3, Type: domain.KindErase, Radius: 3},
		{ID: 4, Type: domain.KindDrawText, Text: "x"},
		{ID: 5, Type: domain.KindDrawEnd},
	})

	if s.clears != 1 {
		t.Errorf("clears = %d, want 1", s.clears)
	}
	if len(s.drawn) != 2 {
		t.Errorf("drawn = %d, want 2 replayable actions", len(s.drawn))
	}
	if got := len(m.Actions()); got != 5 {
		t.Errorf("Actions = %d, want 5", got)
	}
}

func TestMirror_ApplyRemoteIsIncremental(t *testing.T) {
	s := &recordingSurface{}
	m := New(s)
	m.ApplyRemote(path(1))
	m.ApplyRemote(domain.Action{ID: 2, Type: domain.KindDrawEnd})

	if s.clears != 0 {
		t.Errorf("clears = %d, want 0", s.clears)
	}
	if len(s.drawn) != 1 {
		t.Errorf("drawn = %d, want 1", len(s.drawn))
	}
	if got := len(m.Actions()); got != 2 {
		t.Errorf("Actions = %d, want 2 (markers are kept)", got)
	}
}

func TestMirror_ApplyUndoRemovesAndRedraws(t *testing.T) {
	s := &recordingSurface{}
	m := New(s)
	m.LoadSnapshot([]domain.Action{path(1), path(2), path(3)})

	if !m.ApplyUndo(2) {
		t.Fatal("ApplyUndo existing = false")
	}
	if s.clears != 2 {
		t.Errorf("clears = %d, want 2", s.clears)
	}
	if len(s.drawn) != 2 || s.drawn[0].ID != 1 || s.drawn[1].ID != 3 {
		t.Errorf("drawn = %+v", s.drawn)
	}
	if m.ApplyUndo(2) {
		t.Error("ApplyUndo unknown id should be false")
	}
}

func TestMirror_LocalSubmitThenAck(t *testing.T) {
	s := &recordingSurface{}
	m := New(s)
	m.Submit("c1", domain.Action{Type: domain.KindDrawPath, Path: []domain.Point{{}}})

	if len(s.drawn) != 1 {
		t.Fatalf("local submit drawn = %d, want 1", len(s.drawn))
	}
	if m.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", m.Pending())
	}
	// ack 前は ID で消せない
	if m.ApplyUndo(0) {
		t.Error("pending action must not match undo")
	}
	if !m.Ack("c1", 7, "me", 1000) {
		t.Fatal("Ack = false")
	}
	if m.Pending() != 0 {
		t.Errorf("Pending after ack = %d, want 0", m.Pending())
	}
	got := m.Actions()[0]
	if got.ID != 7 || got.UserID != "me" || got.Timestamp != 1000 {
		t.Errorf("acked action = %+v", got)
	}
	if !m.ApplyUndo(7) {
		t.Error("undo of acked action = false")
	}
	if m.Ack("c1", 8, "me", 0) {
		t.Error("second ack for same client id should be false")
	}
}

func TestMirror_DiscardPending(t *testing.T) {
	s := &recordingSurface{}
	m := New(s)
	m.ApplyRemote(path(1))
	m.Submit("c1", domain.Action{Type: domain.KindDrawPath, Path: []domain.Point{{}}})

	if m.Discard("other") {
		t.Error("Discard of unknown client id = true")
	}
	if !m.Discard("c1") {
		t.Fatal("Discard = false")
	}
	if m.Pending() != 0 || len(m.Actions()) != 1 {
		t.Errorf("Pending = %d, Actions = %d after discard", m.Pending(), len(m.Actions()))
	}
	// 取り除いた分は描画面からも消える
	if s.clears != 1 || len(s.drawn) != 1 {
		t.Errorf("clears = %d, drawn = %d", s.clears, len(s.drawn))
	}
	// ack 済みのものは消さない
	m.Submit("c2", path(0))
	m.Ack("c2", 2, "me", 0)
	if m.Discard("c2") {
		t.Error("Discard of acked action = true")
	}
}

func TestMirror_ApplyRedoAppendsAtTail(t *testing.T) {
	s := &recordingSurface{}
	m := New(s)
	m.LoadSnapshot([]domain.Action{path(2)})
	m.ApplyRedo(path(1))

	acts := m.Actions()
	if len(acts) != 2 || acts[1].ID != 1 {
		t.Errorf("Actions = %+v", acts)
	}
}

func TestMirror_ApplyClear(t *testing.T) {
	s := &recordingSurface{}
	m := New(s)
	m.LoadSnapshot([]domain.Action{path(1)})
	m.ApplyClear()

	if len(m.Actions()) != 0 {
		t.Error("Actions not empty after clear")
	}
	if len(s.drawn) != 0 {
		t.Error("surface not cleared")
	}
}

func TestMirror_RedrawReconstructsSurface(t *testing.T) {
	s := &recordingSurface{}
	m := New(s)
	m.ApplyRemote(path(1))
	m.ApplyRemote(path(2))
	s.drawn = nil

	m.Redraw()
	if len(s.drawn) != 2 {
		t.Errorf("drawn after Redraw = %d, want 2", len(s.drawn))
	}
}
