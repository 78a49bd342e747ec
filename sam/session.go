package sam

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"image"
	"image/draw"
	"sync"
	"time"

	vision "github.com/getcharzp/go-vision-sam"
	"go.uber.org/zap"
)

// Frame 当前图片的状态: 预处理结果与图片特征
type Frame struct {
	Generation uint64
	Key        string // 缓存键, 由画布像素计算
	Tensor     *NormalizedTensor
	Embedding  *Embedding
	FromCache  bool
	EmbedCost  time.Duration
}

// Render 一次点击的解码结果
type Render struct {
	Generation uint64 // 所属图片
	Seq        uint64 // 显示序号, 未显示时为 0
	Point      Point
	Result     *MaskResult
	Mask       *image.Gray
	Score      float32
	Cost       time.Duration
}

// Session 单个图片会话, 持有当前图片特征和最近一次显示的结果
//
// 新图片覆盖旧图片; 旧图片上仍在进行的解码会继续使用自己捕获的特征,
// 但结果不会再被显示
type Session struct {
	model Model
	cfg   Config
	cache EmbeddingCache

	mu      sync.Mutex
	nextGen uint64
	seq     uint64
	frame   *Frame
	latest  *Render
}

// Option Session 选项
type Option func(*Session)

// WithConfig 设置输入尺寸, 标签, 阈值等参数
func WithConfig(cfg Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithCache 设置图片特征缓存
func WithCache(c EmbeddingCache) Option {
	return func(s *Session) { s.cache = c }
}

// NewSession 创建会话
func NewSession(m Model, opts ...Option) *Session {
	s := &Session{
		model: m,
		cfg:   DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadImage 加载新图片并生成图片特征
//
// 调用开始时即清空当前图片, 完成前的点击会返回 ErrNotReady.
// 若期间有更新的 LoadImage 开始, 本次结果被丢弃并返回 ErrSuperseded
func (s *Session) LoadImage(ctx context.Context, img image.Image) (*Frame, error) {
	s.mu.Lock()
	s.nextGen++
	gen := s.nextGen
	s.frame = nil
	s.latest = nil
	s.mu.Unlock()

	start := time.Now()
	t, err := Normalize(img, s.cfg.inputSize())
	if err != nil {
		return nil, err
	}
	vision.Logger().Debug("image preprocessed",
		zap.Uint64("generation", gen),
		zap.Int("resized_width", t.Scale.ResizedWidth),
		zap.Int("resized_height", t.Scale.ResizedHeight),
		zap.Duration("cost", time.Since(start)))

	frame := &Frame{
		Generation: gen,
		Key:        tensorKey(s.cfg.modelID(), t),
		Tensor:     t,
	}

	if s.cache != nil {
		emb, err := s.cache.Get(ctx, frame.Key)
		if err != nil {
			vision.Logger().Warn("embedding cache get failed", zap.String("key", frame.Key), zap.Error(err))
		} else if emb != nil {
			frame.Embedding = emb
			frame.FromCache = true
		}
	}

	if frame.Embedding == nil {
		embedStart := time.Now()
		emb, err := Embed(ctx, s.model, t)
		if err != nil {
			return nil, err
		}
		frame.Embedding = emb
		frame.EmbedCost = time.Since(embedStart)

		if s.cache != nil {
			if err := s.cache.Set(ctx, frame.Key, emb); err != nil {
				vision.Logger().Warn("embedding cache set failed", zap.String("key", frame.Key), zap.Error(err))
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.nextGen {
		return nil, ErrSuperseded
	}
	s.frame = frame

	vision.Logger().Info("image loaded",
		zap.Uint64("generation", gen),
		zap.Bool("from_cache", frame.FromCache),
		zap.Duration("embed_cost", frame.EmbedCost))
	return frame, nil
}

// Ready 是否已有可用的图片特征
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame != nil
}

// Frame 返回当前图片, 未就绪时为 nil
func (s *Session) Frame() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Latest 返回当前显示的解码结果
func (s *Session) Latest() *Render {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Click 在画布坐标 (x, y) 处生成 mask
//
// 多次点击的解码互不等待, 最后完成的结果成为显示结果
func (s *Session) Click(ctx context.Context, x, y float32) (*Render, error) {
	frame := s.Frame()
	if frame == nil {
		return nil, ErrNotReady
	}

	h, w := frame.Tensor.CanvasSize()
	if x < 0 || y < 0 || x >= float32(w) || y >= float32(h) {
		return nil, ErrPointOutOfBounds
	}

	start := time.Now()
	in := transcodeWithLabel(x, y, h, w, s.cfg.PointLabel)
	res, err := Decode(ctx, s.model, frame.Embedding, in)
	if err != nil {
		return nil, err
	}

	_, score := res.Best()
	r := &Render{
		Generation: frame.Generation,
		Point:      Point{X: x, Y: y},
		Result:     res,
		Mask:       res.Binary(s.cfg.MaskThreshold),
		Score:      score,
		Cost:       time.Since(start),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == frame {
		s.seq++
		r.Seq = s.seq
		s.latest = r
	}
	return r, nil
}

// Canvas 返回画布内容: 当前图片, 点击标记和叠加的 mask
//
// 同时返回绘制所用的解码结果, 尚无结果时为 nil
func (s *Session) Canvas() (*image.RGBA, *Render, error) {
	s.mu.Lock()
	frame, latest := s.frame, s.latest
	s.mu.Unlock()

	if frame == nil {
		return nil, nil, ErrNotReady
	}

	display := frame.Tensor.Display
	base := image.NewRGBA(display.Rect)
	draw.Draw(base, base.Rect, display, display.Rect.Min, draw.Src)
	if latest == nil {
		return base, nil, nil
	}

	vision.DrawMarker(base, int(latest.Point.X), int(latest.Point.Y), vision.MarkerColor)
	return Overlay(base, latest.Mask, s.cfg.overlayAlpha()), latest, nil
}

// tensorKey 由模型标识, 画布像素和输入尺寸计算缓存键
func tensorKey(model string, t *NormalizedTensor) string {
	h := md5.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(t.Size))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(t.Scale.ResizedWidth))
	binary.LittleEndian.PutUint32(hdr[8:], uint32(t.Scale.ResizedHeight))
	h.Write(hdr[:])
	h.Write(t.Display.Pix)
	return hex.EncodeToString(h.Sum(nil))
}

// IsIgnorable 判断点击错误是否应被静默忽略
func IsIgnorable(err error) bool {
	return errors.Is(err, ErrNotReady) || errors.Is(err, ErrPointOutOfBounds)
}
