package config

import (
	"fmt"
	"time"

	"github.com/getcharzp/go-vision-sam/sam"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Model   ModelConfig   `mapstructure:"model"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Render  RenderConfig  `mapstructure:"render"`
	Session SessionConfig `mapstructure:"session"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type ModelConfig struct {
	OnnxRuntimeLibPath string  `mapstructure:"onnxruntime_lib_path"`
	EncoderPath        string  `mapstructure:"encoder_path"`
	DecoderPath        string  `mapstructure:"decoder_path"`
	InputSize          int     `mapstructure:"input_size"`
	MaskThreshold      float32 `mapstructure:"mask_threshold"`
	PointLabel         float32 `mapstructure:"point_label"`
	UseCuda            bool    `mapstructure:"use_cuda"`
	NumThreads         int     `mapstructure:"num_threads"`
	ModelID            string  `mapstructure:"model_id"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	MaxPixels    int64    `mapstructure:"max_pixels"` // 解码前按图片头校验, 0 表示不限制
	AllowedTypes []string `mapstructure:"allowed_types"`
}

type RenderConfig struct {
	OverlayAlpha float64 `mapstructure:"overlay_alpha"`
	FontPath     string  `mapstructure:"font_path"`
	DumpValues   int     `mapstructure:"dump_values"`
}

type SessionConfig struct {
	MaxSessions int           `mapstructure:"max_sessions"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SAM")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// New 使用指定路径加载配置, 失败时返回默认配置
func New(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		return Default()
	}
	return cfg
}

// Default 默认配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// SAM 转换为推理引擎配置
func (c *Config) SAM() sam.Config {
	cfg := sam.DefaultConfig()
	if c.Model.OnnxRuntimeLibPath != "" {
		cfg.OnnxRuntimeLibPath = c.Model.OnnxRuntimeLibPath
	}
	cfg.EncodeModelPath = c.Model.EncoderPath
	cfg.DecodeModelPath = c.Model.DecoderPath
	cfg.InputSize = c.Model.InputSize
	cfg.MaskThreshold = c.Model.MaskThreshold
	cfg.PointLabel = sam.Label(c.Model.PointLabel)
	cfg.OverlayAlpha = c.Render.OverlayAlpha
	cfg.UseCuda = c.Model.UseCuda
	cfg.NumThreads = c.Model.NumThreads
	cfg.ModelID = c.Model.ModelID
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)

	def := sam.DefaultConfig()
	v.SetDefault("model.onnxruntime_lib_path", def.OnnxRuntimeLibPath)
	v.SetDefault("model.encoder_path", def.EncodeModelPath)
	v.SetDefault("model.decoder_path", def.DecodeModelPath)
	v.SetDefault("model.input_size", def.InputSize)
	v.SetDefault("model.mask_threshold", def.MaskThreshold)
	v.SetDefault("model.point_label", float32(def.PointLabel))
	v.SetDefault("model.use_cuda", false)
	v.SetDefault("model.num_threads", 0)
	v.SetDefault("model.model_id", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("upload.max_size", 20*1024*1024)
	v.SetDefault("upload.max_pixels", 50_000_000)
	v.SetDefault("upload.allowed_types", []string{"image/jpeg", "image/png", "image/jpg", "image/gif", "image/webp"})

	v.SetDefault("render.overlay_alpha", def.OverlayAlpha)
	v.SetDefault("render.font_path", "")
	v.SetDefault("render.dump_values", 20)

	v.SetDefault("session.max_sessions", 16)
	v.SetDefault("session.idle_timeout", 30*time.Minute)
}
