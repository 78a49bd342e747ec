package vision

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// SetLogger 设置库内部使用的日志, nil 表示关闭日志
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

// Logger 返回库内部使用的日志
func Logger() *zap.Logger {
	return logger.Load()
}
