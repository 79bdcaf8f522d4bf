package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ActionID はルーム内で単調増加するアクション識別子。
type ActionID uint64

// Kind はアクションの種別タグ。
type Kind string

const (
	KindDrawPath  Kind = "draw-path"
	KindDrawShape Kind = "draw-shape"
	KindDrawText  Kind = "draw-text"
	KindErase     Kind = "erase"
	KindDrawStart Kind = "draw-start"
	KindDrawEnd   Kind = "draw-end"
)

// Valid は既知の種別かどうかを返す。
func (k Kind) Valid() bool {
	switch k {
	case KindDrawPath, KindDrawShape, KindDrawText, KindErase, KindDrawStart, KindDrawEnd:
		return true
	}
	return false
}

// Replayable はローカルミラーが描画する種別かどうかを返す。
func (k Kind) Replayable() bool {
	return k == KindDrawPath || k == KindDrawShape || k == KindDrawText
}

// Marker は描画効果を持たないマーカー種別かどうかを返す。
// マーカーはログには残るが undo の対象にはならない。
func (k Kind) Marker() bool {
	return k == KindDrawStart || k == KindDrawEnd
}

// Point はキャンバス座標上の点。
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Shape は矩形・楕円・直線などの始点と終点。
type Shape struct {
	StartX float64 `json:"startX"`
	StartY float64 `json:"startY"`
	EndX   float64 `json:"endX"`
	EndY   float64 `json:"endY"`
}

// Action はルームのログに記録される描画操作。
// 追記後は不変として扱う。
type Action struct {
	ID        ActionID `json:"id"`
	Type      Kind     `json:"type"`
	UserID    string   `json:"userId,omitempty"`
	Timestamp int64    `json:"timestamp"`

	// draw-path / draw-shape / draw-start
	Path        []Point `json:"path,omitempty"`
	Shape       *Shape  `json:"shape,omitempty"`
	Tool        string  `json:"tool,omitempty"`
	Color       string  `json:"color,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
	Fill        bool    `json:"fill,omitempty"`

	// draw-text
	Text       string  `json:"text,omitempty"`
	FontSize   float64 `json:"fontSize,omitempty"`
	FontFamily string  `json:"fontFamily,omitempty"`

	// draw-text / erase / draw-start
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Radius float64 `json:"radius,omitempty"`
}

// Time は追記時刻を time.Time で返す。
func (a Action) Time() time.Time {
	return time.UnixMilli(a.Timestamp)
}

// Clone はスライスを共有しないコピーを返す。
func (a Action) Clone() Action {
	c := a
	if a.Path != nil {
		c.Path = make([]Point, len(a.Path))
		copy(c.Path, a.Path)
	}
	if a.Shape != nil {
		s := *a.Shape
		c.Shape = &s
	}
	return c
}

var (
	ErrUnknownKind   = errors.New("unknown action type")
	ErrEmptyPath     = errors.New("path must contain at least one point")
	ErrMissingShape  = errors.New("shape is required")
	ErrEmptyText     = errors.New("text is required")
	ErrInvalidRadius = errors.New("radius must be positive")
	ErrNotFinite     = errors.New("coordinates must be finite")
)

// Validate は下書きが種別ごとの必須フィールドを満たしているか検証する。
// ID・UserID・Timestamp は追記時に付与されるため検証しない。
func (a *Action) Validate() error {
	if !a.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, a.Type)
	}
	if !finite(a.X, a.Y, a.StrokeWidth, a.Opacity, a.FontSize, a.Radius) {
		return ErrNotFinite
	}
	switch a.Type {
	case KindDrawPath:
		if len(a.Path) == 0 {
			return ErrEmptyPath
		}
		for _, p := range a.Path {
			if !finite(p.X, p.Y) {
				return ErrNotFinite
			}
		}
	case KindDrawShape:
		if a.Shape == nil {
			return ErrMissingShape
		}
		if !finite(a.Shape.StartX, a.Shape.StartY, a.Shape.EndX, a.Shape.EndY) {
			return ErrNotFinite
		}
	case KindDrawText:
		if a.Text == "" {
			return ErrEmptyText
		}
	case KindErase:
		if a.Radius <= 0 {
			return ErrInvalidRadius
		}
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
