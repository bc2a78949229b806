package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"M1Pose/cache"
	"M1Pose/config"
	"M1Pose/core/pose"
	"M1Pose/core/worker"
	"M1Pose/logger"
	"M1Pose/repository"
	"M1Pose/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	})

	// 设置服务器超时。分析请求会在工作池上长时间挂起，写超时要放宽
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Create necessary directories if they don't exist
	ensureDirExists(cfg.PoseTmpDir)

	// Result store backend: in-memory by default, redis when configured
	var results repository.ResultStore
	switch cfg.ResultStore {
	case "redis":
		if err := cache.ConnectRedis(cfg); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer cache.CloseRedis()
		log.Println("Successfully connected to Redis")
		results = cache.NewRedisResultStore(cache.RedisClient, cfg.ResultCacheTTL)
	default:
		results = repository.NewMemoryResultStore()
	}

	// 初始化 MinIO 产物镜像（可选）
	if cfg.ArtifactMirror == "minio" {
		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("Failed to initialize MinIO: %v", err)
		}
	}

	registry := repository.NewMemorySessionRegistry()
	dispatcher := worker.NewDispatcher(cfg.PoseWorkers)
	toolkit := pose.NewToolkitProcessor(cfg.PoseToolPath)
	encoder := pose.NewFFmpegEncoder(cfg.FFmpegPath)
	artifacts := pose.NewArtifactWriter(cfg)

	analyzer := pose.NewAnalyzer(registry, results, artifacts, toolkit, toolkit, encoder, dispatcher)

	janitor := pose.NewJanitor(registry, results, cfg.SessionTTL, cfg.SweepInterval)
	janitor.Start()
	defer janitor.Stop()

	// 初始化处理器
	poseHandler := NewPoseHandler(registry, results, analyzer, cfg)
	artifactHandler := NewArtifactHandler(cfg)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 动作对比API端点
	router.HandleFunc("/pose/upload", poseHandler.UploadHandler).Methods(http.MethodPost)
	router.HandleFunc("/pose/analyze", poseHandler.AnalyzeHandler).Methods(http.MethodPost)
	router.HandleFunc("/pose/results", poseHandler.ResultsHandler).Methods(http.MethodGet)
	router.HandleFunc("/pose/progress/{session_id}", poseHandler.ProgressHandler).Methods(http.MethodGet)

	// 健康检查
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	// 会话产物只读静态服务
	mountPrefix := strings.TrimSuffix(cfg.PoseMountPrefix, "/")
	router.PathPrefix(mountPrefix + "/").Handler(artifactHandler)

	server.Handler = router

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		log.Printf("Server starting on %s...", cfg.ServerAddr)
		log.Println("Upload video pairs via POST to /pose/upload")
		log.Println("Run analysis via POST to /pose/analyze")
		log.Println("Fetch cached results via GET /pose/results?session_id=...")
		log.Printf("Artifacts served read-only under %s/{sessionId}/", mountPrefix)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待中断信号
	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 优雅关闭服务器；已提交的流水线任务继续跑完
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	dispatcher.Drain()

	log.Println("Server stopped")
}

func ensureDirExists(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("Creating directory: %s", path)
		if err := os.MkdirAll(path, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", path, err)
		}
	} else if err != nil {
		log.Fatalf("Failed to check directory %s: %v", path, err)
	}
}
