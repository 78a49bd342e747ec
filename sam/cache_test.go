package sam

import (
	"reflect"
	"testing"
)

func TestEmbeddingCodec(t *testing.T) {
	e := &Embedding{
		Data:  []float32{0, -1.5, 3.25, 1e-7, 65504},
		Shape: []int64{1, 5},
	}
	got, err := UnmarshalEmbedding(MarshalEmbedding(e))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, e) {
		t.Fatalf("got %+v, want %+v", got, e)
	}
}

func TestUnmarshalEmbedding_Corrupt(t *testing.T) {
	valid := MarshalEmbedding(&Embedding{Data: []float32{1, 2}, Shape: []int64{2}})

	tests := map[string][]byte{
		"过短":   {1, 0},
		"零维":   {0, 0, 0, 0},
		"截断":   valid[:len(valid)-1],
		"多余数据": append(append([]byte(nil), valid...), 0, 0, 0, 0),
		// 各维乘积溢出为 0, 与空数据长度恰好相等
		"形状溢出": MarshalEmbedding(&Embedding{Shape: []int64{1 << 62, 4}}),
		"形状过大": MarshalEmbedding(&Embedding{Data: []float32{1, 2}, Shape: []int64{1 << 40, 1 << 40, 2}}),
	}
	for name, data := range tests {
		if _, err := UnmarshalEmbedding(data); err == nil {
			t.Fatalf("%s: 应返回错误", name)
		}
	}
}
