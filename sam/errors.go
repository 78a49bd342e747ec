package sam

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidImage     = errors.New("图片为空或尺寸无效")
	ErrInvalidSize      = errors.New("输入尺寸必须为正数")
	ErrInvalidTensor    = errors.New("输入张量形状不匹配")
	ErrNotReady         = errors.New("图片特征尚未生成, 点击被忽略")
	ErrPointOutOfBounds = errors.New("点击坐标超出画布")
	ErrSuperseded       = errors.New("图片已被更新的图片替换")
	ErrEmptyOutput      = errors.New("模型输出为空")
)

// Stage 推理阶段
type Stage string

const (
	StageEncode Stage = "encoder"
	StageDecode Stage = "decoder"
)

// InferenceError 模型推理失败
type InferenceError struct {
	Stage Stage
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s 推理失败: %v", e.Stage, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// IsInferenceError 判断是否为推理错误并返回对应阶段
func IsInferenceError(err error) (Stage, bool) {
	var ie *InferenceError
	if errors.As(err, &ie) {
		return ie.Stage, true
	}
	return "", false
}
