package sam

import (
	"path/filepath"

	vision "github.com/getcharzp/go-vision-sam"
)

// Label 提示点标签
type Label float32

const (
	// LabelPoint 单点提示使用的标签, 与浏览器演示保持一致
	LabelPoint Label = 0
	// LabelForeground SAM 参考实现中的前景标签
	LabelForeground Label = 1
	// LabelPadding 填充槽位, 解码器忽略该点
	LabelPadding Label = -1
)

const (
	// DefaultInputSize 编码器输入的正方形边长
	DefaultInputSize = 1024
	// MaskInputSize 解码器 mask_input 的边长
	MaskInputSize = 256
	// DefaultMaskThreshold mask logits 二值化阈值
	DefaultMaskThreshold = 0.0
	// DefaultOverlayAlpha 叠加 mask 时的不透明度
	DefaultOverlayAlpha = 0.5
)

// 编码器与解码器的输入输出名称
const (
	keyInputImage      = "input_image"
	keyImageEmbeddings = "image_embeddings"

	keyPointCoords   = "point_coords"
	keyPointLabels   = "point_labels"
	keyMaskInput     = "mask_input"
	keyHasMaskInput  = "has_mask_input"
	keyOrigImSize    = "orig_im_size"
	keyMasks         = "masks"
	keyLowResMasks   = "low_res_masks"
	keyIoUPrediction = "iou_predictions"
)

// Config 配置项
type Config struct {
	// 必填参数
	OnnxRuntimeLibPath string // onnxruntime.dll (或 .so, .dylib) 的路径
	EncodeModelPath    string // 图片特征提取模型
	DecodeModelPath    string // Mask解码模型

	// 模型参数
	InputSize     int     // 编码器输入边长, 默认 1024
	MaskThreshold float32 // Mask 二值化阈值, 默认 0.0
	PointLabel    Label   // 点击点的标签, 默认 LabelPoint
	OverlayAlpha  float64 // Mask 叠加不透明度, 默认 0.5

	// 可选参数
	UseCuda    bool   // (可选) 是否启用 CUDA
	NumThreads int    // (可选) ONNX 线程数, 默认由CPU核心数决定
	ModelID    string // (可选) 特征缓存键中的模型标识, 默认取编码器文件名
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		OnnxRuntimeLibPath: vision.DefaultLibraryPath(),
		EncodeModelPath:    "./sam_weights/sam_vit_b_01ec64.encoder.onnx",
		DecodeModelPath:    "./sam_weights/sam_vit_b_01ec64.decoder.onnx",
		InputSize:          DefaultInputSize,
		MaskThreshold:      DefaultMaskThreshold,
		PointLabel:         LabelPoint,
		OverlayAlpha:       DefaultOverlayAlpha,
	}
}

func (c Config) inputSize() int {
	if c.InputSize <= 0 {
		return DefaultInputSize
	}
	return c.InputSize
}

func (c Config) overlayAlpha() float64 {
	if c.OverlayAlpha <= 0 {
		return DefaultOverlayAlpha
	}
	return c.OverlayAlpha
}

// modelID 区分不同编码器的特征缓存
func (c Config) modelID() string {
	if c.ModelID != "" {
		return c.ModelID
	}
	return filepath.Base(c.EncodeModelPath)
}
