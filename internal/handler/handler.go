package handler

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strings"
	"sync"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/webp"

	vision "github.com/getcharzp/go-vision-sam"
	"github.com/getcharzp/go-vision-sam/internal/api"
	"github.com/getcharzp/go-vision-sam/internal/config"
	"github.com/getcharzp/go-vision-sam/sam"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// Handler 分割接口
type Handler struct {
	cfg   *config.Config
	store *SessionStore
	log   *zap.Logger

	textMu sync.Mutex // Face 不支持并发使用
	text   *vision.TextDrawer
}

// New 创建接口处理器, text 为 nil 时画布上不标注分数
func New(cfg *config.Config, store *SessionStore, text *vision.TextDrawer, log *zap.Logger) *Handler {
	return &Handler{
		cfg:   cfg,
		store: store,
		text:  text,
		log:   log,
	}
}

// Register 注册路由
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/sessions", h.CreateSession)
	r.PUT("/sessions/:id/image", h.ReplaceImage)
	r.POST("/sessions/:id/click", h.Click)
	r.GET("/sessions/:id/canvas", h.Canvas)
	r.DELETE("/sessions/:id", h.DeleteSession)
}

// CreateSession 上传图片并创建会话, 图片加载成功后会话才加入存储
func (h *Handler) CreateSession(c *gin.Context) {
	img, ok := h.readImage(c)
	if !ok {
		return
	}

	sess := h.store.NewSession()
	frame, err := sess.LoadImage(c.Request.Context(), img)
	if err != nil {
		h.fail(c, err, "生成图片特征失败")
		return
	}
	h.loaded(c, h.store.Add(sess), frame)
}

// ReplaceImage 替换会话中的图片, 旧图片特征被丢弃
func (h *Handler) ReplaceImage(c *gin.Context) {
	id := c.Param("id")
	sess, ok := h.session(c)
	if !ok {
		return
	}
	img, ok := h.readImage(c)
	if !ok {
		return
	}

	frame, err := sess.LoadImage(c.Request.Context(), img)
	if err != nil {
		h.fail(c, err, "生成图片特征失败")
		return
	}
	h.loaded(c, id, frame)
}

func (h *Handler) loaded(c *gin.Context, id string, frame *sam.Frame) {
	rec := frame.Tensor.Scale
	message := fmt.Sprintf("Embedding generated in : %.3f seconds. Click on the image to generate a mask",
		frame.EmbedCost.Seconds())
	if frame.FromCache {
		message = "Embedding loaded from cache. Click on the image to generate a mask"
	}

	h.log.Info("image loaded",
		zap.String("session", id),
		zap.Int("width", rec.ResizedWidth),
		zap.Int("height", rec.ResizedHeight),
		zap.Bool("from_cache", frame.FromCache),
		zap.Duration("embed_cost", frame.EmbedCost))

	c.JSON(http.StatusOK, api.ImageResponse{
		Success:   true,
		Message:   message,
		SessionID: id,
		Width:     rec.ResizedWidth,
		Height:    rec.ResizedHeight,
		Scale:     rec.ScaleFactor,
		FromCache: frame.FromCache,
		EmbedMs:   frame.EmbedCost.Milliseconds(),
	})
}

// Click 在画布坐标处生成 mask
func (h *Handler) Click(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	x, y, err := clickPoint(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Success: false,
			Message: "点击坐标无效",
			Error:   err.Error(),
		})
		return
	}

	r, err := sess.Click(c.Request.Context(), x, y)
	if err != nil {
		message := "生成 mask 失败"
		if sam.IsIgnorable(err) {
			message = "点击已忽略"
		}
		h.fail(c, err, message)
		return
	}

	resp := api.ClickResponse{
		Success:   true,
		Message:   "Mask generated. Click on the image to generate a new mask",
		X:         x,
		Y:         y,
		Score:     r.Score,
		Displayed: r.Seq > 0,
		DecodeMs:  r.Cost.Milliseconds(),
		Outputs:   r.Result.Dump(h.cfg.Render.DumpValues),
	}
	if resp.Displayed {
		if data, err := h.canvasPNG(sess); err == nil {
			resp.Canvas = base64.StdEncoding.EncodeToString(data)
		} else {
			h.log.Warn("failed to render canvas", zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Canvas 返回当前画布 PNG
func (h *Handler) Canvas(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	data, err := h.canvasPNG(sess)
	if err != nil {
		h.fail(c, err, "获取画布失败")
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

// DeleteSession 删除会话
func (h *Handler) DeleteSession(c *gin.Context) {
	if !h.store.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Success: false, Message: "会话不存在"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) session(c *gin.Context) (*sam.Session, bool) {
	sess, ok := h.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Success: false, Message: "会话不存在"})
		return nil, false
	}
	return sess, true
}

// readImage 读取并解码上传的图片
func (h *Handler) readImage(c *gin.Context) (image.Image, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Success: false,
			Message: "请上传图片文件",
			Error:   err.Error(),
		})
		return nil, false
	}

	if file.Size > h.cfg.Upload.MaxSize {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("文件大小超过限制 (%d MB)", h.cfg.Upload.MaxSize/(1024*1024)),
		})
		return nil, false
	}

	f, err := file.Open()
	if err != nil {
		h.fail(c, err, "读取文件失败")
		return nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.fail(c, err, "读取文件失败")
		return nil, false
	}

	contentType := http.DetectContentType(data)
	if !h.isAllowedType(contentType) {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Success: false,
			Message: "不支持的文件类型",
			Error:   contentType,
		})
		return nil, false
	}

	// 先读取尺寸, 避免按伪造的图片头分配超大内存
	imgCfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Success: false,
			Message: "图片解码失败",
			Error:   err.Error(),
		})
		return nil, false
	}
	if limit := h.cfg.Upload.MaxPixels; limit > 0 && int64(imgCfg.Width)*int64(imgCfg.Height) > limit {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("图片像素超过限制 (%d)", limit),
			Error:   fmt.Sprintf("%dx%d", imgCfg.Width, imgCfg.Height),
		})
		return nil, false
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Success: false,
			Message: "图片解码失败",
			Error:   err.Error(),
		})
		return nil, false
	}
	return img, true
}

func (h *Handler) isAllowedType(contentType string) bool {
	for _, allowed := range h.cfg.Upload.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}

func (h *Handler) canvasPNG(sess *sam.Session) ([]byte, error) {
	canvas, latest, err := sess.Canvas()
	if err != nil {
		return nil, err
	}
	if latest != nil && h.text != nil {
		h.textMu.Lock()
		h.text.DrawLabel(canvas, fmt.Sprintf("IoU %.3f", latest.Score), color.White, color.RGBA{A: 160})
		h.textMu.Unlock()
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fail 按错误类型返回状态码
func (h *Handler) fail(c *gin.Context, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sam.ErrNotReady), errors.Is(err, sam.ErrSuperseded):
		status = http.StatusConflict
	case errors.Is(err, sam.ErrPointOutOfBounds), errors.Is(err, sam.ErrInvalidImage):
		status = http.StatusBadRequest
	default:
		if stage, ok := sam.IsInferenceError(err); ok {
			status = http.StatusBadGateway
			h.log.Error("inference failed", zap.String("stage", string(stage)), zap.Error(err))
		}
	}
	_ = c.Error(err)
	c.JSON(status, api.ErrorResponse{
		Success: false,
		Message: message,
		Error:   err.Error(),
	})
}

// clickPoint 从 JSON, 表单或查询参数读取点击坐标
func clickPoint(c *gin.Context) (float32, float32, error) {
	raw := map[string]any{}
	if c.ContentType() == "application/json" {
		if err := c.ShouldBindJSON(&raw); err != nil {
			return 0, 0, err
		}
	} else {
		for _, key := range []string{"x", "y"} {
			if v, ok := c.GetPostForm(key); ok {
				raw[key] = v
			} else if v, ok := c.GetQuery(key); ok {
				raw[key] = v
			}
		}
	}

	var coords [2]float32
	for i, key := range []string{"x", "y"} {
		v, ok := raw[key]
		if !ok {
			return 0, 0, fmt.Errorf("缺少参数 %s", key)
		}
		f, err := cast.ToFloat32E(v)
		if err != nil {
			return 0, 0, fmt.Errorf("参数 %s 无效: %w", key, err)
		}
		coords[i] = f
	}
	return coords[0], coords[1], nil
}
