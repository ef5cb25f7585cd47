// Package render 把单个绘图操作应用到光栅画布上。
//
// 渲染被当作纯函数 (surface, op) -> surface：输入画布不会被修改。
package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	_ "image/jpeg" // paste 的图片可能是 JPEG

	"retro-paint/internal/domain"
)

const dataURLPrefix = "data:image/png;base64,"

var (
	// ErrInvalidImage 表示 data URL 或图像数据无法解码
	ErrInvalidImage = errors.New("render: invalid image data")
	// ErrImageTooLarge 表示图像尺寸超出允许的上限
	ErrImageTooLarge = errors.New("render: image too large")
)

// Renderer 把一个绘图操作应用到画布上并返回新的画布。
type Renderer interface {
	Apply(surface *image.RGBA, op domain.DrawingOperation) (*image.RGBA, error)
}

// Blank 返回指定尺寸的白色画布。
func Blank(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

// Clone 复制画布像素。
func Clone(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}

// EncodeDataURL 把画布编码为 PNG data URL，与浏览器 canvas.toDataURL() 格式一致。
func EncodeDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("render: encode png: %w", err)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeDataURL 解码 data URL (或裸 base64) 为 RGBA 画布，不限制尺寸。
// 只用于可信来源；客户端上传的数据用 DecodeDataURLWithin。
func DecodeDataURL(s string) (*image.RGBA, error) {
	return DecodeDataURLWithin(s, image.Point{})
}

// DecodeDataURLWithin 解码 data URL，宽或高超过 limit 时返回 ErrImageTooLarge。
// 尺寸只从图像头读取，超限的图像不会被完整解码。limit 的分量为 0 表示不限。
func DecodeDataURLWithin(s string, limit image.Point) (*image.RGBA, error) {
	raw, err := checkedBytes(s, limit)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba, nil
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba, nil
}

// CheckDataURL 只读取图像头，校验格式与尺寸，不解码像素。
func CheckDataURL(s string, limit image.Point) error {
	_, err := checkedBytes(s, limit)
	return err
}

func checkedBytes(s string, limit image.Point) ([]byte, error) {
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", ErrInvalidImage, cfg.Width, cfg.Height)
	}
	if (limit.X > 0 && cfg.Width > limit.X) || (limit.Y > 0 && cfg.Height > limit.Y) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height, limit.X, limit.Y)
	}
	return raw, nil
}

// parseHexColor 解析 "#rgb" 或 "#rrggbb"。
func parseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(s, "#")
	var r, g, b uint8
	switch len(s) {
	case 6:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
			return color.RGBA{}, fmt.Errorf("render: invalid color %q", s)
		}
	case 3:
		if _, err := fmt.Sscanf(s, "%1x%1x%1x", &r, &g, &b); err != nil {
			return color.RGBA{}, fmt.Errorf("render: invalid color %q", s)
		}
		r, g, b = r*17, g*17, b*17
	default:
		return color.RGBA{}, fmt.Errorf("render: invalid color %q", s)
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xff}, nil
}
