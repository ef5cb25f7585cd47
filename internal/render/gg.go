package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/fogleman/gg"

	"retro-paint/internal/domain"
)

const (
	defaultStrokeSize = 2
	defaultColor      = "#000000"
	eraserColor       = "#FFFFFF"
)

// GGRenderer 是基于 fogleman/gg 的默认渲染器。
type GGRenderer struct{}

// NewGGRenderer 创建默认渲染器
func NewGGRenderer() *GGRenderer { return &GGRenderer{} }

// Apply 在 surface 的副本上执行 op。
func (r *GGRenderer) Apply(surface *image.RGBA, op domain.DrawingOperation) (*image.RGBA, error) {
	out := Clone(surface)
	p := op.Payload

	switch op.Kind {
	case domain.KindBucket:
		x, y, ok := origin(p)
		if !ok {
			return nil, fmt.Errorf("render: bucket needs x,y")
		}
		fill := p.FillColor
		if fill == "" {
			fill = colorOr(p.Color)
		}
		c, err := parseHexColor(fill)
		if err != nil {
			return nil, err
		}
		floodFill(out, int(x), int(y), c)
		return out, nil

	case domain.KindPaste, domain.KindAIGenerate:
		// 粘贴的图片不得大于画布本身
		img, err := DecodeDataURLWithin(p.ImageData, surface.Rect.Size())
		if err != nil {
			return nil, err
		}
		x, y, _ := origin(p)
		dc := gg.NewContextForRGBA(out)
		dc.DrawImage(img, int(x), int(y))
		return out, nil
	}

	dc := gg.NewContextForRGBA(out)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)
	dc.SetLineWidth(sizeOr(p.Size))
	dc.SetHexColor(colorOr(p.Color))

	switch op.Kind {
	case domain.KindBrush, domain.KindEraser:
		if op.Kind == domain.KindEraser {
			dc.SetHexColor(eraserColor)
		}
		strokePath(dc, p)

	case domain.KindRectangle, domain.KindCircle, domain.KindTriangle, domain.KindLine:
		x, y, ok := origin(p)
		if !ok || p.EndX == nil || p.EndY == nil {
			return nil, fmt.Errorf("render: %s needs x,y,endX,endY", op.Kind)
		}
		ex, ey := *p.EndX, *p.EndY
		switch op.Kind {
		case domain.KindRectangle:
			dc.DrawRectangle(x, y, ex-x, ey-y)
		case domain.KindCircle:
			dc.DrawCircle(x, y, math.Hypot(ex-x, ey-y))
		case domain.KindTriangle:
			dc.MoveTo(x, y)
			dc.LineTo(ex, ey)
			dc.LineTo(x-(ex-x), ey)
			dc.ClosePath()
		case domain.KindLine:
			dc.MoveTo(x, y)
			dc.LineTo(ex, ey)
		}
		dc.Stroke()

	case domain.KindText:
		x, y, ok := origin(p)
		if !ok {
			return nil, fmt.Errorf("render: text needs x,y")
		}
		// 使用 gg 内置的 7x13 点阵字体，fontSize 不参与渲染
		dc.DrawString(p.Text, x, y)

	default:
		return nil, fmt.Errorf("render: unsupported drawing type %q", op.Kind)
	}
	return out, nil
}

func strokePath(dc *gg.Context, p domain.OperationPayload) {
	pts := p.Coordinates
	if len(pts) == 0 {
		if x, y, ok := origin(p); ok {
			pts = []domain.Point{{X: x, Y: y}}
		}
	}
	switch len(pts) {
	case 0:
		return
	case 1:
		dc.DrawCircle(pts[0].X, pts[0].Y, sizeOr(p.Size)/2)
		dc.Fill()
		return
	}
	dc.MoveTo(pts[0].X, pts[0].Y)
	for _, pt := range pts[1:] {
		dc.LineTo(pt.X, pt.Y)
	}
	dc.Stroke()
}

// floodFill 用 4 邻域扫描填充把与起点同色的连通区域替换为 c。
func floodFill(img *image.RGBA, sx, sy int, c color.RGBA) {
	b := img.Bounds()
	if !(image.Point{X: sx, Y: sy}).In(b) {
		return
	}
	target := img.RGBAAt(sx, sy)
	if target == c {
		return
	}
	stack := []image.Point{{X: sx, Y: sy}}
	for len(stack) > 0 {
		pt := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !pt.In(b) || img.RGBAAt(pt.X, pt.Y) != target {
			continue
		}
		img.SetRGBA(pt.X, pt.Y, c)
		stack = append(stack,
			image.Point{X: pt.X + 1, Y: pt.Y}, image.Point{X: pt.X - 1, Y: pt.Y},
			image.Point{X: pt.X, Y: pt.Y + 1}, image.Point{X: pt.X, Y: pt.Y - 1})
	}
}

func origin(p domain.OperationPayload) (float64, float64, bool) {
	if p.X == nil || p.Y == nil {
		return 0, 0, false
	}
	return *p.X, *p.Y, true
}

func sizeOr(size float64) float64 {
	if size <= 0 {
		return defaultStrokeSize
	}
	return size
}

func colorOr(c string) string {
	if c == "" {
		return defaultColor
	}
	return c
}

var _ Renderer = (*GGRenderer)(nil)
