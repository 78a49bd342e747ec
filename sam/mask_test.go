package sam

import (
	"image"
	"image/color"
	"testing"
)

func TestMaskResult_BestAndBinary(t *testing.T) {
	// 两个 2x3 的 mask, 第二个 IoU 更高
	res := &MaskResult{
		Masks: []float32{
			1, 1, 1, 1, 1, 1,
			-1, 2, -1, 0, 0.5, -3,
		},
		MaskShape:      []int64{1, 2, 2, 3},
		IoUPredictions: []float32{0.3, 0.9},
	}

	idx, score := res.Best()
	if idx != 1 || score != 0.9 {
		t.Fatalf("最佳 mask 错误: idx=%d score=%v", idx, score)
	}

	m := res.Binary(0)
	if b := m.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Fatalf("mask 尺寸错误: %v", b)
	}
	want := []uint8{0, 255, 0, 0, 255, 0}
	for i, v := range want {
		if m.Pix[i] != v {
			t.Fatalf("像素 %d = %d, want %d", i, m.Pix[i], v)
		}
	}
}

func TestMaskResult_Empty(t *testing.T) {
	res := &MaskResult{}
	if idx, score := res.Best(); idx != 0 || score != 0 {
		t.Fatalf("空结果: idx=%d score=%v", idx, score)
	}
	if !res.Binary(0).Rect.Empty() {
		t.Fatal("空结果应返回空 mask")
	}
}

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d >= -2 && d <= 2
}

func TestOverlay(t *testing.T) {
	base := uniformImage(4, 2, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	mask := image.NewGray(image.Rect(0, 0, 4, 2))
	mask.SetGray(0, 0, color.Gray{Y: 255})

	out := Overlay(base, mask, 0.5)

	fg := out.RGBAAt(0, 0)
	if !near(fg.R, 228) || !near(fg.G, 178) || !near(fg.B, 153) {
		t.Fatalf("前景叠加错误: %v", fg)
	}
	bg := out.RGBAAt(1, 0)
	if !near(bg.R, 100) || !near(bg.G, 50) || !near(bg.B, 25) {
		t.Fatalf("背景叠加错误: %v", bg)
	}
	if base.RGBAAt(0, 0).R != 200 {
		t.Fatal("Overlay 不应修改原图")
	}
}

func TestOverlay_ScalesMask(t *testing.T) {
	base := uniformImage(8, 8, color.RGBA{R: 100, A: 255})
	mask := image.NewGray(image.Rect(0, 0, 2, 2))
	mask.SetGray(0, 0, color.Gray{Y: 255})

	out := Overlay(base, mask, 1)
	if out.RGBAAt(3, 3).R != 255 || out.RGBAAt(4, 4).R != 0 {
		t.Fatalf("mask 应按最近邻缩放: %v %v", out.RGBAAt(3, 3), out.RGBAAt(4, 4))
	}
}

func TestOverlay_NoMask(t *testing.T) {
	base := uniformImage(3, 3, color.RGBA{G: 9, A: 255})
	out := Overlay(base, nil, 0.5)
	if out.RGBAAt(1, 1) != base.RGBAAt(1, 1) {
		t.Fatal("无 mask 时应返回原图拷贝")
	}
}

func TestMaskResult_Dump(t *testing.T) {
	res := &MaskResult{
		Masks:          make([]float32, 100),
		MaskShape:      []int64{1, 1, 10, 10},
		LowResMasks:    []float32{1, 2, 3},
		LowResShape:    []int64{1, 1, 1, 3},
		IoUPredictions: []float32{0.5},
	}
	d := res.Dump(20)
	if len(d) != 3 {
		t.Fatalf("应有三个输出: %d", len(d))
	}
	if d[0].Name != "masks" || len(d[0].Data) != 20 || d[0].Size != 100 {
		t.Fatalf("masks 摘要错误: %+v", d[0])
	}
	if len(d[1].Data) != 3 || d[1].Name != "low_res_masks" {
		t.Fatalf("low_res_masks 摘要错误: %+v", d[1])
	}
	if d[2].Name != "iou_predictions" || d[2].Dims[1] != 1 {
		t.Fatalf("iou_predictions 摘要错误: %+v", d[2])
	}
}
