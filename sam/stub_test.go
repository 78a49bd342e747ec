package sam

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
)

// stubModel 记录调用次数的模型替身
//
// Embed 把张量第一个像素的 R 值作为特征, 用于区分不同图片;
// Decode 生成 orig_im_size 大小的 mask, 点击点左侧为前景, IoU 等于特征值
type stubModel struct {
	mu          sync.Mutex
	embedCalls  int
	decodeCalls int
	inputs      []*DecoderInput
	embeddings  []float32

	embedErr  error
	decodeErr error

	// 非 nil 时, 第一个特征值为 blockOn 的 Embed (blockDec 为 true 时为 Decode)
	// 调用会先通知 started, 然后阻塞到 release 关闭
	blockOn  *float32
	blockDec bool
	blocked  bool
	started  chan struct{}
	release  chan struct{}
}

func (m *stubModel) shouldBlock(id float32, decode bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blockOn == nil || *m.blockOn != id || m.blockDec != decode || m.blocked {
		return false
	}
	m.blocked = true
	return true
}

func (m *stubModel) Embed(ctx context.Context, t *NormalizedTensor) (*Embedding, error) {
	m.mu.Lock()
	m.embedCalls++
	m.mu.Unlock()

	if m.embedErr != nil {
		return nil, m.embedErr
	}
	id := t.Data[0]
	if m.shouldBlock(id, false) {
		m.started <- struct{}{}
		<-m.release
	}
	return &Embedding{Data: []float32{id}, Shape: []int64{1, 1}}, nil
}

func (m *stubModel) Decode(ctx context.Context, e *Embedding, in *DecoderInput) (*MaskResult, error) {
	m.mu.Lock()
	m.decodeCalls++
	m.inputs = append(m.inputs, in)
	m.embeddings = append(m.embeddings, e.Data[0])
	m.mu.Unlock()

	if m.decodeErr != nil {
		return nil, m.decodeErr
	}
	if m.shouldBlock(e.Data[0], true) {
		m.started <- struct{}{}
		<-m.release
	}

	h, w := int(in.OrigImSize[0]), int(in.OrigImSize[1])
	masks := make([]float32, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			masks[y*w+x] = -1
			if float32(x) <= in.PointCoords[0] {
				masks[y*w+x] = 1
			}
		}
	}
	return &MaskResult{
		Masks:          masks,
		MaskShape:      []int64{1, 1, int64(h), int64(w)},
		LowResMasks:    make([]float32, MaskInputSize*MaskInputSize),
		LowResShape:    []int64{1, 1, MaskInputSize, MaskInputSize},
		IoUPredictions: []float32{e.Data[0]},
		IoUShape:       []int64{1, 1},
	}, nil
}

func (m *stubModel) counts() (embed, decode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCalls, m.decodeCalls
}

// uniformImage 生成纯色图片
func uniformImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// smallConfig 测试使用小尺寸输入
func smallConfig(size int) Config {
	cfg := DefaultConfig()
	cfg.InputSize = size
	return cfg
}

func ptr[T any](v T) *T { return &v }

// rgba 生成只有 R 通道的不透明颜色
func rgba(r uint8) color.RGBA {
	return color.RGBA{R: r, A: 255}
}
