package sam

import (
	"context"
	"fmt"

	vision "github.com/getcharzp/go-vision-sam"
	"github.com/up-zero/gotool/convertutil"
	ort "github.com/yalue/onnxruntime_go"
)

// Engine 持有编码器和解码器的 ONNX Session, 实现 Model
type Engine struct {
	encoderSession *ort.DynamicAdvancedSession
	decoderSession *ort.DynamicAdvancedSession
	onnxConfig     *vision.OnnxConfig
	config         Config
}

var _ Model = (*Engine)(nil)

// NewEngine 初始化 SAM 引擎
func NewEngine(cfg Config) (*Engine, error) {
	onnxConfig := new(vision.OnnxConfig)
	if err := convertutil.CopyProperties(cfg, onnxConfig); err != nil {
		return nil, fmt.Errorf("复制参数失败: %w", err)
	}
	// 初始化 ONNX
	if err := onnxConfig.New(); err != nil {
		return nil, err
	}

	encInputs := []string{keyInputImage}
	encOutputs := []string{keyImageEmbeddings}
	encSession, err := ort.NewDynamicAdvancedSession(cfg.EncodeModelPath, encInputs, encOutputs, onnxConfig.SessionOptions)
	if err != nil {
		onnxConfig.Destroy()
		return nil, fmt.Errorf("创建 Encoder ONNX 会话失败: %w", err)
	}

	decInputs := []string{
		keyImageEmbeddings, keyPointCoords, keyPointLabels,
		keyMaskInput, keyHasMaskInput, keyOrigImSize,
	}
	decOutputs := []string{keyMasks, keyLowResMasks, keyIoUPrediction}
	decSession, err := ort.NewDynamicAdvancedSession(cfg.DecodeModelPath, decInputs, decOutputs, onnxConfig.SessionOptions)
	if err != nil {
		encSession.Destroy()
		onnxConfig.Destroy()
		return nil, fmt.Errorf("创建 Decoder ONNX 会话失败: %w", err)
	}

	return &Engine{
		encoderSession: encSession,
		decoderSession: decSession,
		onnxConfig:     onnxConfig,
		config:         cfg,
	}, nil
}

// Config 返回引擎配置
func (e *Engine) Config() Config {
	return e.config
}

// Destroy 释放相关资源
func (e *Engine) Destroy() error {
	if e.encoderSession != nil {
		if err := e.encoderSession.Destroy(); err != nil {
			return fmt.Errorf("销毁 Encoder ONNX 会话失败: %w", err)
		}
		e.encoderSession = nil
	}
	if e.decoderSession != nil {
		if err := e.decoderSession.Destroy(); err != nil {
			return fmt.Errorf("销毁 Decoder ONNX 会话失败: %w", err)
		}
		e.decoderSession = nil
	}
	if e.onnxConfig != nil {
		e.onnxConfig.Destroy()
	}
	return nil
}

// Embed 编码器推理, 输入 [1, 3, S, S]
func (e *Engine) Embed(ctx context.Context, t *NormalizedTensor) (*Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(t.Shape()...), t.Data)
	if err != nil {
		return nil, fmt.Errorf("创建图片 Input Tensor 失败: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.encoderSession.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, err
	}
	defer destroyValues(outputs)

	data, shape, err := tensorData(outputs[0], keyImageEmbeddings)
	if err != nil {
		return nil, err
	}
	return &Embedding{Data: data, Shape: shape}, nil
}

// Decode 解码器推理
func (e *Engine) Decode(ctx context.Context, emb *Embedding, in *DecoderInput) (*MaskResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var inputs []ort.Value
	defer func() { destroyValues(inputs) }()

	add := func(name string, shape ort.Shape, data []float32) error {
		v, err := ort.NewTensor(shape, data)
		if err != nil {
			return fmt.Errorf("创建 %s Tensor 失败: %w", name, err)
		}
		inputs = append(inputs, v)
		return nil
	}

	// 顺序与 NewEngine 中的 decInputs 保持一致
	if err := add(keyImageEmbeddings, ort.NewShape(emb.Shape...), emb.Data); err != nil {
		return nil, err
	}
	if err := add(keyPointCoords, ort.NewShape(1, 2, 2), in.PointCoords[:]); err != nil {
		return nil, err
	}
	if err := add(keyPointLabels, ort.NewShape(1, 2), in.PointLabels[:]); err != nil {
		return nil, err
	}
	if err := add(keyMaskInput, ort.NewShape(1, 1, MaskInputSize, MaskInputSize), in.MaskInput); err != nil {
		return nil, err
	}
	if err := add(keyHasMaskInput, ort.NewShape(1), []float32{in.HasMaskInput}); err != nil {
		return nil, err
	}
	if err := add(keyOrigImSize, ort.NewShape(2), in.OrigImSize[:]); err != nil {
		return nil, err
	}

	outputs := make([]ort.Value, 3)
	if err := e.decoderSession.Run(inputs, outputs); err != nil {
		return nil, err
	}
	defer destroyValues(outputs)

	var err error
	res := new(MaskResult)
	if res.Masks, res.MaskShape, err = tensorData(outputs[0], keyMasks); err != nil {
		return nil, err
	}
	if res.LowResMasks, res.LowResShape, err = tensorData(outputs[1], keyLowResMasks); err != nil {
		return nil, err
	}
	if res.IoUPredictions, res.IoUShape, err = tensorData(outputs[2], keyIoUPrediction); err != nil {
		return nil, err
	}
	return res, nil
}

// tensorData 拷贝输出数据, 输出 Value 随后会被销毁
func tensorData(v ort.Value, name string) ([]float32, []int64, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok || t == nil {
		return nil, nil, fmt.Errorf("输出 %s 不是 float32 张量: %w", name, ErrEmptyOutput)
	}
	data := append([]float32(nil), t.GetData()...)
	shape := append([]int64(nil), t.GetShape()...)
	return data, shape, nil
}

func destroyValues(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			v.Destroy()
		}
	}
}
