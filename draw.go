package vision

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// MarkerSize 点击标记的边长
const MarkerSize = 10

// MarkerColor 点击标记的颜色
var MarkerColor = color.RGBA{G: 128, A: 255}

// DrawMarker 在点击位置绘制实心方块, 方块左上角对齐点击点
//
// # Params:
//
//	img: 被绘制的图像
//	x, y: 点击坐标
//	c: 方块颜色
func DrawMarker(img draw.Image, x, y int, c color.Color) {
	r := image.Rect(x, y, x+MarkerSize, y+MarkerSize).Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// TextDrawer 文本绘制工具, 用于在画布上标注状态和分数
type TextDrawer struct {
	font     *opentype.Font
	face     font.Face
	fontSize float64
}

// NewTextDrawer 从字体文件创建文本绘制工具
//
// # Params:
//
//	fontPath: 字体路径
func NewTextDrawer(fontPath string) (*TextDrawer, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("打开字体文件失败：%w", err)
	}
	return NewTextDrawerFromBytes(fontBytes)
}

// NewTextDrawerFromBytes 从字体数据创建文本绘制工具
func NewTextDrawerFromBytes(fontBytes []byte) (*TextDrawer, error) {
	ttFont, err := opentype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("解析字体文件失败：%w", err)
	}

	d := &TextDrawer{font: ttFont}
	if err := d.SetSize(12); err != nil {
		return nil, err
	}
	return d, nil
}

// SetSize 动态调整字体大小
func (d *TextDrawer) SetSize(fontSize float64) error {
	if d.face != nil && d.fontSize == fontSize {
		return nil
	}

	nf, err := opentype.NewFace(d.font, &opentype.FaceOptions{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return err
	}

	// 释放旧 Face 内存
	if d.face != nil {
		d.face.Close()
	}
	d.face = nf
	d.fontSize = fontSize
	return nil
}

// DrawText 绘制文本, (x, y) 为基线起点
//
// # Params:
//
//	img: 被绘制的图像
//	text: 绘制的文本
//	x, y: 绘制的坐标
//	c: 绘制的颜色
func (d *TextDrawer) DrawText(img draw.Image, text string, x, y int, c color.Color) {
	dr := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: d.face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	dr.DrawString(text)
}

// DrawLabel 在左上角绘制带底色的单行文本
func (d *TextDrawer) DrawLabel(img draw.Image, text string, fg, bg color.Color) {
	dr := &font.Drawer{Face: d.face}
	width := dr.MeasureString(text).Ceil()
	metrics := d.face.Metrics()
	height := (metrics.Ascent + metrics.Descent).Ceil()

	const pad = 4
	origin := img.Bounds().Min
	box := image.Rect(origin.X, origin.Y, origin.X+width+2*pad, origin.Y+height+2*pad)
	draw.Draw(img, box.Intersect(img.Bounds()), image.NewUniform(bg), image.Point{}, draw.Over)
	d.DrawText(img, text, origin.X+pad, origin.Y+pad+metrics.Ascent.Ceil(), fg)
}

// Close 释放资源
func (d *TextDrawer) Close() {
	if d.face != nil {
		d.face.Close()
		d.face = nil
	}
}
