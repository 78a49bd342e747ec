package sam

import (
	"context"
	"errors"
	"testing"
)

func TestTranscode(t *testing.T) {
	in := Transcode(500, 300, 512, 1024)

	if in.PointCoords != [4]float32{500, 300, 0, 0} {
		t.Fatalf("point_coords 错误: %v", in.PointCoords)
	}
	if in.PointLabels != [2]float32{0, -1} {
		t.Fatalf("point_labels 错误: %v", in.PointLabels)
	}
	if in.OrigImSize != [2]float32{512, 1024} {
		t.Fatalf("orig_im_size 应为 [高, 宽]: %v", in.OrigImSize)
	}
	if in.HasMaskInput != 0 {
		t.Fatalf("has_mask_input 应为 0: %v", in.HasMaskInput)
	}
	if len(in.MaskInput) != 256*256 {
		t.Fatalf("mask_input 长度错误: %d", len(in.MaskInput))
	}
	for i, v := range in.MaskInput {
		if v != 0 {
			t.Fatalf("mask_input[%d] 非零", i)
		}
	}
}

func TestTranscode_PaddingSlotFixed(t *testing.T) {
	for _, label := range []Label{LabelPoint, LabelForeground} {
		in := transcodeWithLabel(7, 9, 10, 20, label)
		if in.PointLabels[1] != float32(LabelPadding) {
			t.Fatalf("第二个标签必须为填充标签: %v", in.PointLabels)
		}
		if in.PointCoords[2] != 0 || in.PointCoords[3] != 0 {
			t.Fatalf("填充点必须为 (0,0): %v", in.PointCoords)
		}
		if in.PointLabels[0] != float32(label) {
			t.Fatalf("点击标签错误: %v", in.PointLabels)
		}
	}
}

func TestEmbed_InferenceError(t *testing.T) {
	runtimeErr := errors.New("load model failed")
	m := &stubModel{embedErr: runtimeErr}
	nt, err := Normalize(uniformImage(8, 8, rgba(1)), 8)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Embed(context.Background(), m, nt)
	stage, ok := IsInferenceError(err)
	if !ok || stage != StageEncode {
		t.Fatalf("应返回编码阶段推理错误: %v", err)
	}
	if !errors.Is(err, runtimeErr) {
		t.Fatalf("应保留原始错误: %v", err)
	}
}

func TestEmbed_InvalidTensor(t *testing.T) {
	m := &stubModel{}
	bad := &NormalizedTensor{Size: 4, Data: make([]float32, 10)}
	if _, err := Embed(context.Background(), m, bad); !errors.Is(err, ErrInvalidTensor) {
		t.Fatalf("形状错误的张量应被拒绝: %v", err)
	}
	if embed, _ := m.counts(); embed != 0 {
		t.Fatal("形状错误时不应调用编码器")
	}
}

func TestEmbed_CanceledContext(t *testing.T) {
	m := &stubModel{}
	nt, _ := Normalize(uniformImage(8, 8, rgba(1)), 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Embed(ctx, m, nt); !errors.Is(err, context.Canceled) {
		t.Fatalf("应返回 context.Canceled: %v", err)
	}
}

func TestDecode_Errors(t *testing.T) {
	runtimeErr := errors.New("shape mismatch")
	m := &stubModel{decodeErr: runtimeErr}
	emb := &Embedding{Data: []float32{1}, Shape: []int64{1}}

	_, err := Decode(context.Background(), m, emb, Transcode(1, 1, 4, 4))
	if stage, ok := IsInferenceError(err); !ok || stage != StageDecode {
		t.Fatalf("应返回解码阶段推理错误: %v", err)
	}
	if !errors.Is(err, runtimeErr) {
		t.Fatalf("应保留原始错误: %v", err)
	}

	if _, err := Decode(context.Background(), m, nil, Transcode(1, 1, 4, 4)); !errors.Is(err, ErrNotReady) {
		t.Fatalf("缺少特征时应返回 ErrNotReady: %v", err)
	}
	if _, err := Decode(context.Background(), m, emb, &DecoderInput{}); !errors.Is(err, ErrInvalidTensor) {
		t.Fatalf("mask_input 缺失时应返回 ErrInvalidTensor: %v", err)
	}
}

func TestDecode_ReusesEmbedding(t *testing.T) {
	m := &stubModel{}
	nt, _ := Normalize(uniformImage(16, 8, rgba(3)), 16)
	emb, err := Embed(context.Background(), m, nt)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		if _, err := Decode(context.Background(), m, emb, Transcode(float32(i), 1, 8, 16)); err != nil {
			t.Fatal(err)
		}
	}
	if embed, decode := m.counts(); embed != 1 || decode != 5 {
		t.Fatalf("编码应只调用一次: embed=%d decode=%d", embed, decode)
	}
}
