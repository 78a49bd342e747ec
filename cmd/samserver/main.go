package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	vision "github.com/getcharzp/go-vision-sam"
	"github.com/getcharzp/go-vision-sam/internal/config"
	"github.com/getcharzp/go-vision-sam/internal/handler"
	"github.com/getcharzp/go-vision-sam/internal/logger"
	"github.com/getcharzp/go-vision-sam/internal/middleware"
	"github.com/getcharzp/go-vision-sam/sam"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg := config.New(*configPath)

	// 初始化日志
	log, err := logger.New(cfg.Server.Mode)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	vision.SetLogger(log)

	log.Info("starting sam server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	// 初始化推理引擎, 所有会话共享
	engine, err := sam.NewEngine(cfg.SAM())
	if err != nil {
		log.Fatal("failed to create sam engine", zap.Error(err))
	}
	defer engine.Destroy()

	// 初始化Redis
	var cache sam.EmbeddingCache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Warn("redis connection failed, embedding cache disabled", zap.Error(err))
		} else {
			log.Info("redis connected successfully")
			cache = sam.NewRedisCache(client, cfg.Redis.TTL)
		}
	}

	// 画布分数标注字体, 可选
	var text *vision.TextDrawer
	if cfg.Render.FontPath != "" {
		text, err = vision.NewTextDrawer(cfg.Render.FontPath)
		if err != nil {
			log.Warn("failed to load font, score label disabled", zap.Error(err))
		} else {
			defer text.Close()
		}
	}

	samCfg := cfg.SAM()
	store := handler.NewSessionStore(cfg.Session.MaxSessions, cfg.Session.IdleTimeout, func() *sam.Session {
		opts := []sam.Option{sam.WithConfig(samCfg)}
		if cache != nil {
			opts = append(opts, sam.WithCache(cache))
		}
		return sam.NewSession(engine, opts...)
	})
	h := handler.New(cfg, store, text, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 定期清理空闲会话
	if cfg.Session.IdleTimeout > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Session.IdleTimeout / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n := store.Sweep(); n > 0 {
						log.Info("idle sessions removed", zap.Int("count", n), zap.Int("remaining", store.Len()))
					}
				}
			}
		}()
	}

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	// 创建路由
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS())

	// 健康检查和版本信息
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"version":  Version,
			"sessions": store.Len(),
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	// API路由
	h.Register(r.Group("/api/v1"))

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
}
