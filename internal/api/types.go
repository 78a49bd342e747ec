package api

import "github.com/getcharzp/go-vision-sam/sam"

// ImageResponse 图片加载结果
type ImageResponse struct {
	Success   bool    `json:"success"`
	Message   string  `json:"message"`
	SessionID string  `json:"session_id"`
	Width     int     `json:"width"`  // 画布宽
	Height    int     `json:"height"` // 画布高
	Scale     float32 `json:"scale"`  // 画布 / 原图
	FromCache bool    `json:"from_cache"`
	EmbedMs   int64   `json:"embed_ms"`
}

// ClickResponse 点击解码结果
type ClickResponse struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	X         float32          `json:"x"`
	Y         float32          `json:"y"`
	Score     float32          `json:"score"`
	Displayed bool             `json:"displayed"`
	DecodeMs  int64            `json:"decode_ms"`
	Outputs   []sam.OutputDump `json:"outputs"`
	Canvas    string           `json:"canvas,omitempty"` // base64 PNG
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
