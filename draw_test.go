package vision

import (
	"image"
	"image/color"
	"testing"

	"golang.org/x/image/font/gofont/goregular"
)

func TestDrawMarker(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	DrawMarker(img, 15, 15, MarkerColor)

	if got := img.RGBAAt(15, 15); got != MarkerColor {
		t.Fatalf("标记起点颜色错误: %v", got)
	}
	if got := img.RGBAAt(19, 19); got != MarkerColor {
		t.Fatalf("标记应被裁剪到图像内: %v", got)
	}
	if got := img.RGBAAt(14, 14); got != (color.RGBA{}) {
		t.Fatalf("标记不应覆盖左上方像素: %v", got)
	}

	// 完全越界时不绘制
	DrawMarker(img, 40, 40, MarkerColor)
}

func TestDrawer_DrawLabel(t *testing.T) {
	d, err := NewTextDrawerFromBytes(goregular.TTF)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if err := d.SetSize(14); err != nil {
		t.Fatal(err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 200, 40))
	d.DrawLabel(img, "IoU 0.97", color.White, color.Black)

	if got := img.RGBAAt(1, 1); got != (color.RGBA{A: 255}) {
		t.Fatalf("底色未绘制: %v", got)
	}
	if got := img.RGBAAt(199, 39); got != (color.RGBA{}) {
		t.Fatalf("底色超出文本区域: %v", got)
	}
}

func TestNewTextDrawer_MissingFont(t *testing.T) {
	if _, err := NewTextDrawer("./fonts/missing.ttf"); err == nil {
		t.Fatal("缺失字体文件应返回错误")
	}
}

func TestLibraryPath(t *testing.T) {
	tests := []struct {
		goos, goarch, want string
	}{
		{"windows", "amd64", "./lib/onnxruntime.dll"},
		{"linux", "arm64", "./lib/onnxruntime_arm64.so"},
		{"darwin", "arm64", "./lib/onnxruntime_arm64.dylib"},
		{"plan9", "386", "./lib/onnxruntime_amd64.so"},
	}
	for _, tt := range tests {
		if got := libraryPath("./lib/", tt.goos, tt.goarch); got != tt.want {
			t.Fatalf("%s/%s: got %s, want %s", tt.goos, tt.goarch, got, tt.want)
		}
	}
}

func TestOnnxConfig_New_RequiresLibPath(t *testing.T) {
	cfg := new(OnnxConfig)
	if err := cfg.New(); err == nil {
		t.Fatal("缺少 OnnxRuntimeLibPath 应返回错误")
	}
	cfg.OnnxRuntimeLibPath = "./lib/does-not-exist.so"
	if err := cfg.New(); err == nil {
		t.Fatal("不存在的动态库应返回错误")
	}
}
