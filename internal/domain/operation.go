package domain

import (
	"fmt"
	"strings"
)

// OperationKind 是绘图操作的类型。
type OperationKind string

const (
	KindBrush      OperationKind = "brush"
	KindEraser     OperationKind = "eraser"
	KindBucket     OperationKind = "bucket"
	KindRectangle  OperationKind = "rectangle"
	KindCircle     OperationKind = "circle"
	KindTriangle   OperationKind = "triangle"
	KindLine       OperationKind = "line"
	KindText       OperationKind = "text"
	KindPaste      OperationKind = "paste"
	KindAIGenerate OperationKind = "ai-generate"
)

var validKinds = map[OperationKind]struct{}{
	KindBrush: {}, KindEraser: {}, KindBucket: {}, KindRectangle: {}, KindCircle: {},
	KindTriangle: {}, KindLine: {}, KindText: {}, KindPaste: {}, KindAIGenerate: {},
}

// Valid reports whether k is a known operation kind.
func (k OperationKind) Valid() bool {
	_, ok := validKinds[k]
	return ok
}

// Point 是画笔轨迹上的一个坐标。
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// OperationPayload 保存各类操作特有的几何、颜色、文本或图像数据。
type OperationPayload struct {
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	EndX        *float64 `json:"endX,omitempty"`
	EndY        *float64 `json:"endY,omitempty"`
	Color       string   `json:"color,omitempty"`
	Size        float64  `json:"size,omitempty"`
	Text        string   `json:"text,omitempty"`
	FontSize    float64  `json:"fontSize,omitempty"`
	ImageData   string   `json:"imageData,omitempty"`
	FillColor   string   `json:"fillColor,omitempty"`
	Coordinates []Point  `json:"coordinates,omitempty"`
}

// DrawingOperation 是同步的最小单位，创建后不可变。
type DrawingOperation struct {
	Kind      OperationKind    `json:"drawingType"`
	UserID    string           `json:"userId"`
	RoomID    string           `json:"roomId"`
	Timestamp int64            `json:"timestamp"` // unix 毫秒
	Payload   OperationPayload `json:"payload"`
}

// Validate checks that the operation carries a known kind and the fields
// that kind needs to be rendered. An operation that passes is never dropped
// by the renderer for missing geometry.
func (op *DrawingOperation) Validate() error {
	if !op.Kind.Valid() {
		return fmt.Errorf("unknown drawing type %q", op.Kind)
	}
	p := &op.Payload
	hasOrigin := p.X != nil && p.Y != nil

	switch op.Kind {
	case KindBrush, KindEraser:
		if len(p.Coordinates) == 0 && !hasOrigin {
			return fmt.Errorf("%s needs coordinates", op.Kind)
		}
	case KindRectangle, KindCircle, KindTriangle, KindLine:
		if !hasOrigin || p.EndX == nil || p.EndY == nil {
			return fmt.Errorf("%s needs x, y, endX and endY", op.Kind)
		}
	case KindBucket:
		if !hasOrigin {
			return fmt.Errorf("bucket needs x and y")
		}
		fill := p.FillColor
		if fill == "" {
			fill = p.Color
		}
		if fill != "" && !isHexColor(fill) {
			return fmt.Errorf("bucket color %q is not #rgb or #rrggbb", fill)
		}
	case KindText:
		if !hasOrigin {
			return fmt.Errorf("text needs x and y")
		}
	case KindPaste, KindAIGenerate:
		if p.ImageData == "" {
			return fmt.Errorf("%s needs imageData", op.Kind)
		}
	}
	return nil
}

func isHexColor(s string) bool {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 3 && len(s) != 6 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
