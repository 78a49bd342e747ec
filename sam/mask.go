package sam

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// MaskResult 解码器输出
type MaskResult struct {
	Masks          []float32 // [1, N, H, W] logits, H/W 与 orig_im_size 一致
	MaskShape      []int64
	LowResMasks    []float32 // [1, N, 256, 256]
	LowResShape    []int64
	IoUPredictions []float32 // [1, N]
	IoUShape       []int64
}

// maskDims 返回 mask 数量和单个 mask 的宽高
func (r *MaskResult) maskDims() (n, h, w int) {
	s := r.MaskShape
	if len(s) < 2 {
		return 0, 0, 0
	}
	h, w = int(s[len(s)-2]), int(s[len(s)-1])
	if h <= 0 || w <= 0 {
		return 0, 0, 0
	}
	return len(r.Masks) / (h * w), h, w
}

// Best 返回 IoU 最高的 mask 下标及分数
func (r *MaskResult) Best() (int, float32) {
	n, _, _ := r.maskDims()
	if n == 0 {
		return 0, 0
	}

	bestIdx := 0
	bestScore := float32(-100.0)
	for i := 0; i < n && i < len(r.IoUPredictions); i++ {
		if r.IoUPredictions[i] > bestScore {
			bestScore = r.IoUPredictions[i]
			bestIdx = i
		}
	}
	if len(r.IoUPredictions) == 0 {
		bestScore = 0
	}
	return bestIdx, bestScore
}

// Binary 取 IoU 最高的 mask 并按阈值二值化, 前景为 255
func (r *MaskResult) Binary(threshold float32) *image.Gray {
	n, h, w := r.maskDims()
	if n == 0 {
		return image.NewGray(image.Rectangle{})
	}
	idx, _ := r.Best()
	logits := r.Masks[idx*h*w : (idx+1)*h*w]

	img := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range logits {
		if v > threshold {
			img.Pix[i] = 255
		}
	}
	return img
}

// Overlay 把 mask 以 alpha 不透明度叠加到画布图片上
//
// mask 尺寸与画布不一致时按最近邻缩放到画布尺寸
//
// # Params:
//
//	base: 画布上显示的图片
//	mask: Binary 的结果
//	alpha: 不透明度 0-1
func Overlay(base image.Image, mask *image.Gray, alpha float64) *image.RGBA {
	bounds := base.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), base, bounds.Min, draw.Src)

	if mask == nil || mask.Rect.Empty() || alpha <= 0 {
		return out
	}

	layer := image.Image(mask)
	if mask.Rect.Dx() != out.Rect.Dx() || mask.Rect.Dy() != out.Rect.Dy() {
		scaled := image.NewGray(out.Rect)
		xdraw.NearestNeighbor.Scale(scaled, scaled.Rect, mask, mask.Rect, draw.Src, nil)
		layer = scaled
	}

	a := min(alpha, 1)
	opacity := image.NewUniform(color.Alpha{A: uint8(a*255 + 0.5)})
	draw.DrawMask(out, out.Rect, layer, layer.Bounds().Min, opacity, image.Point{}, draw.Over)
	return out
}

// OutputDump 单个输出的摘要
type OutputDump struct {
	Name string    `json:"name"`
	Data []float32 `json:"data"` // 前 n 个值
	Size int       `json:"size"`
	Dims []int64   `json:"dims"`
}

// Dump 返回三个输出的摘要, 每个输出最多保留 n 个值
func (r *MaskResult) Dump(n int) []OutputDump {
	head := func(v []float32) []float32 {
		return append([]float32(nil), v[:min(n, len(v))]...)
	}
	iouDims := r.IoUShape
	if iouDims == nil {
		iouDims = []int64{1, int64(len(r.IoUPredictions))}
	}
	return []OutputDump{
		{Name: keyMasks, Data: head(r.Masks), Size: len(r.Masks), Dims: r.MaskShape},
		{Name: keyLowResMasks, Data: head(r.LowResMasks), Size: len(r.LowResMasks), Dims: r.LowResShape},
		{Name: keyIoUPrediction, Data: head(r.IoUPredictions), Size: len(r.IoUPredictions), Dims: iouDims},
	}
}
