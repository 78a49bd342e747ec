package sam

import (
	"image"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
)

// ScaleRecord 缩放记录, 用于把画布坐标和 mask 对应回图片
type ScaleRecord struct {
	ResizedWidth  int
	ResizedHeight int
	ScaleFactor   float32 // 缩放后长边 / 原图长边
}

// NormalizedTensor 编码器输入
type NormalizedTensor struct {
	Data  []float32 // 3 x Size x Size, CHW, 取值 0-255
	Size  int
	Scale ScaleRecord

	// Display 缩放后未填充的图片, 即画布上显示的内容, 颜色未预乘 alpha
	Display *image.NRGBA
}

// Shape 返回编码器输入形状 [1, 3, S, S]
func (t *NormalizedTensor) Shape() []int64 {
	return []int64{1, 3, int64(t.Size), int64(t.Size)}
}

// CanvasSize 返回画布尺寸 (高, 宽)
func (t *NormalizedTensor) CanvasSize() (height, width int) {
	return t.Scale.ResizedHeight, t.Scale.ResizedWidth
}

// resizedDims 长边缩放到 size, 短边按比例四舍五入
func resizedDims(w, h, size int) (int, int) {
	if h > w {
		rw := int(math.Round(float64(w) / float64(h) * float64(size)))
		return max(rw, 1), size
	}
	rh := int(math.Round(float64(h) / float64(w) * float64(size)))
	return size, max(rh, 1)
}

// Normalize 预处理: 保持比例缩放, 丢弃 alpha, 转为 CHW 并在右侧和下方补零
//
// # Params:
//
//	img: 原图
//	size: 编码器输入边长
func Normalize(img image.Image, size int) (*NormalizedTensor, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if img == nil {
		return nil, ErrInvalidImage
	}
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()
	if origW <= 0 || origH <= 0 {
		return nil, ErrInvalidImage
	}

	newW, newH := resizedDims(origW, origH, size)

	resized := image.NewNRGBA(image.Rect(0, 0, newW, newH))
	if src, ok := img.(*image.NRGBA); ok && newW == origW && newH == origH {
		for y := 0; y < newH; y++ {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(resized.Pix[y*resized.Stride:(y+1)*resized.Stride], src.Pix[off:off+newW*4])
		}
	} else if newW == origW && newH == origH {
		draw.Draw(resized, resized.Bounds(), img, bounds.Min, draw.Src)
	} else {
		xdraw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Src, nil)
	}

	return &NormalizedTensor{
		Data: chwPadded(resized, size),
		Size: size,
		Scale: ScaleRecord{
			ResizedWidth:  newW,
			ResizedHeight: newH,
			ScaleFactor:   float32(size) / float32(max(origW, origH)),
		},
		Display: resized,
	}, nil
}

// chwPadded 把 NRGBA 图片的 RGB 写入 3 x size x size 的张量, 超出部分保持为 0
func chwPadded(src *image.NRGBA, size int) []float32 {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	plane := size * size
	data := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+3]
			idx := y*size + x
			data[idx] = float32(p[0])
			data[plane+idx] = float32(p[1])
			data[2*plane+idx] = float32(p[2])
		}
	}
	return data
}
