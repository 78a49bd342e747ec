package sam

import (
	"context"
	"fmt"
	"time"

	vision "github.com/getcharzp/go-vision-sam"
	"go.uber.org/zap"
)

// Embedding 图片特征, 创建后只读
type Embedding struct {
	Data  []float32
	Shape []int64
}

// Point 画布坐标系下的点击点
type Point struct {
	X, Y float32
}

// DecoderInput 解码器的固定输入 (不含图片特征)
type DecoderInput struct {
	PointCoords  [4]float32 // [[x, y], [0, 0]]
	PointLabels  [2]float32 // [label, -1]
	MaskInput    []float32  // 1 x 1 x 256 x 256, 全 0
	HasMaskInput float32    // 恒为 0
	OrigImSize   [2]float32 // [画布高, 画布宽]
}

// Model 模型能力: 编码一次, 解码多次
type Model interface {
	Embed(ctx context.Context, t *NormalizedTensor) (*Embedding, error)
	Decode(ctx context.Context, e *Embedding, in *DecoderInput) (*MaskResult, error)
}

// Transcode 把点击坐标组装为解码器输入, 坐标直接使用画布坐标, 不做缩放
//
// # Params:
//
//	clickX, clickY: 点击坐标
//	canvasHeight, canvasWidth: 当前画布尺寸
func Transcode(clickX, clickY float32, canvasHeight, canvasWidth int) *DecoderInput {
	return transcodeWithLabel(clickX, clickY, canvasHeight, canvasWidth, LabelPoint)
}

func transcodeWithLabel(clickX, clickY float32, canvasHeight, canvasWidth int, label Label) *DecoderInput {
	return &DecoderInput{
		PointCoords:  [4]float32{clickX, clickY, 0, 0},
		PointLabels:  [2]float32{float32(label), float32(LabelPadding)},
		MaskInput:    make([]float32, MaskInputSize*MaskInputSize),
		HasMaskInput: 0,
		OrigImSize:   [2]float32{float32(canvasHeight), float32(canvasWidth)},
	}
}

// Embed 调用编码器生成图片特征, 失败时不重试
func Embed(ctx context.Context, m Model, t *NormalizedTensor) (*Embedding, error) {
	if t == nil || t.Size <= 0 || len(t.Data) != 3*t.Size*t.Size {
		return nil, ErrInvalidTensor
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	emb, err := m.Embed(ctx, t)
	if err != nil {
		return nil, &InferenceError{Stage: StageEncode, Err: err}
	}
	if emb == nil || len(emb.Data) == 0 {
		return nil, &InferenceError{Stage: StageEncode, Err: ErrEmptyOutput}
	}

	vision.Logger().Debug("image embedding generated",
		zap.Int64s("shape", emb.Shape),
		zap.Duration("cost", time.Since(start)))
	return emb, nil
}

// Decode 调用解码器生成 mask, 同一个 Embedding 可以反复调用
func Decode(ctx context.Context, m Model, e *Embedding, in *DecoderInput) (*MaskResult, error) {
	if e == nil {
		return nil, ErrNotReady
	}
	if in == nil || len(in.MaskInput) != MaskInputSize*MaskInputSize {
		return nil, fmt.Errorf("%w: mask_input 长度应为 %d", ErrInvalidTensor, MaskInputSize*MaskInputSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := m.Decode(ctx, e, in)
	if err != nil {
		return nil, &InferenceError{Stage: StageDecode, Err: err}
	}
	if res == nil || len(res.Masks) == 0 {
		return nil, &InferenceError{Stage: StageDecode, Err: ErrEmptyOutput}
	}

	vision.Logger().Debug("mask generated",
		zap.Float32s("point", in.PointCoords[:2]),
		zap.Int64s("dims", res.MaskShape),
		zap.Duration("cost", time.Since(start)))
	return res, nil
}
