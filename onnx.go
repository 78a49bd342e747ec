package vision

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// OnnxConfig ONNX Runtime 环境与会话参数
type OnnxConfig struct {
	SessionOptions *ort.SessionOptions

	// 必填参数
	OnnxRuntimeLibPath string // onnxruntime.dll (或 .so, .dylib) 的路径
	// 可选参数
	UseCuda    bool // (可选) 是否启用 CUDA
	NumThreads int  // (可选) ONNX 线程数, 默认由CPU核心数决定
}

var (
	envErr  error
	envOnce sync.Once
)

// New 初始化 ONNX 环境并生成会话选项
//
// 环境在进程内只初始化一次, 之后的调用只创建新的 SessionOptions
func (cfg *OnnxConfig) New() error {
	if cfg.OnnxRuntimeLibPath == "" {
		return fmt.Errorf("OnnxRuntimeLibPath 不能为空")
	}
	if _, err := os.Stat(cfg.OnnxRuntimeLibPath); err != nil {
		return fmt.Errorf("ONNX Runtime 动态库不可用: %w", err)
	}

	envOnce.Do(func() {
		ort.SetSharedLibraryPath(cfg.OnnxRuntimeLibPath)
		envErr = ort.InitializeEnvironment()
		if envErr == nil {
			Logger().Info("onnxruntime environment initialized",
				zap.String("lib", cfg.OnnxRuntimeLibPath))
		}
	})
	if envErr != nil {
		return fmt.Errorf("初始化 ONNX Runtime 环境失败: %w", envErr)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("创建 SessionOptions 失败: %w", err)
	}
	if cfg.NumThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			options.Destroy()
			return fmt.Errorf("设置线程数失败: %w", err)
		}
	}

	if cfg.UseCuda {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			options.Destroy()
			return fmt.Errorf("创建 CUDAProviderOptions 失败: %w", err)
		}
		defer cudaOptions.Destroy()
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			options.Destroy()
			return fmt.Errorf("添加 CUDA 执行提供者失败: %w", err)
		}
	}
	cfg.SessionOptions = options

	return nil
}

// Destroy 释放会话选项, 环境本身随进程存在
func (cfg *OnnxConfig) Destroy() {
	if cfg.SessionOptions != nil {
		cfg.SessionOptions.Destroy()
		cfg.SessionOptions = nil
	}
}

// DefaultLibraryPath 根据运行时环境判断加载哪个库文件
func DefaultLibraryPath() string {
	return libraryPath("./lib/", runtime.GOOS, runtime.GOARCH)
}

// libraryPath 拼接动态库路径: ./lib/onnxruntime[_arch].{dll,so,dylib}
func libraryPath(baseDir, goos, goarch string) string {
	const libName = "onnxruntime"

	switch goos {
	case "windows":
		return baseDir + libName + ".dll"
	case "darwin":
		return fmt.Sprintf("%s%s_%s.dylib", baseDir, libName, goarch)
	case "linux":
		return fmt.Sprintf("%s%s_%s.so", baseDir, libName, goarch)
	default:
		return baseDir + libName + "_amd64.so"
	}
}
