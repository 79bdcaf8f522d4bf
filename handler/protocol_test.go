package handler

import (
	"encoding/json"
	"testing"

	"github.com/touka-aoi/drawsync/application/domain"
)

func TestEvent_ActionKind(t *testing.T) {
	tests := []struct {
		ev     Event
		want   domain.Kind
		wantOK bool
	}{
		{EventDrawPath, domain.KindDrawPath, true},
		{EventErase, domain.KindErase, true},
		{EventDrawEnd, domain.KindDrawEnd, true},
		{EventUndo, "", false},
		{EventCursorMove, "", false},
		{EventDrawMove, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.ev), func(t *testing.T) {
			got, ok := tt.ev.ActionKind()
			if ok != tt.wantOK || (ok && got != tt.want) {
				t.Errorf("ActionKind() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestEncodeFrame(t *testing.T) {
	data, err := EncodeFrame(EventUndo, HistoryMessage{UserID: "u1", ActionID: 3})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(raw["type"]) != `"undo"` {
		t.Errorf("type = %s", raw["type"])
	}
	if string(raw["data"]) != `{"userId":"u1","actionId":3}` {
		t.Errorf("data = %s", raw["data"])
	}

	data, err = EncodeFrame(EventClear, nil)
	if err != nil {
		t.Fatalf("EncodeFrame(nil): %v", err)
	}
	if string(data) != `{"type":"clear-canvas"}` {
		t.Errorf("frame = %s", data)
	}
}

func TestDecodeFrame_Errors(t *testing.T) {
	for _, data := range []string{``, `[]`, `{"data":{}}`, `{"type":""}`} {
		if _, err := DecodeFrame([]byte(data)); err == nil {
			t.Errorf("DecodeFrame(%q) = nil error", data)
		}
	}
}
