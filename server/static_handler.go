package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"M1Pose/config"
	"M1Pose/logger"
	"M1Pose/storage"

	"github.com/minio/minio-go/v7"
)

// ArtifactHandler 只读地对外提供会话产物：{mountPrefix}/{sessionId}/{fileName}。
// 优先从本地工作目录读取；启用MinIO镜像时本地缺失则回源镜像。
type ArtifactHandler struct {
	cfg *config.Config
}

// NewArtifactHandler 创建 ArtifactHandler 实例
func NewArtifactHandler(cfg *config.Config) *ArtifactHandler {
	return &ArtifactHandler{cfg: cfg}
}

// ServeHTTP 实现 http.Handler 接口
func (h *ArtifactHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSuffix(h.cfg.PoseMountPrefix, "/") + "/"
	objectPath := strings.TrimPrefix(r.URL.Path, prefix)

	// 只接受 sessionId/fileName 两段，拒绝路径穿越
	parts := strings.Split(objectPath, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" ||
		strings.Contains(objectPath, "..") {
		http.Error(w, "Invalid artifact path", http.StatusBadRequest)
		return
	}

	localPath := filepath.Join(h.cfg.PoseTmpDir, parts[0], parts[1])
	if file, err := os.Open(localPath); err == nil {
		defer file.Close()
		h.writeHeaders(w, parts[1])
		if _, err := io.Copy(w, file); err != nil {
			logger.Warn("产物传输中断", logger.ErrorField(err))
		}
		return
	}

	if h.cfg.ArtifactMirror == "minio" {
		h.serveFromMirror(w, objectPath, parts[1])
		return
	}

	http.Error(w, "Artifact not found", http.StatusNotFound)
}

func (h *ArtifactHandler) serveFromMirror(w http.ResponseWriter, objectPath, fileName string) {
	client := storage.GetMinioClient()
	if client == nil {
		http.Error(w, "Artifact not found", http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	object, err := client.GetObject(ctx, h.cfg.MinioBucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		http.Error(w, "Artifact not found", http.StatusNotFound)
		return
	}
	defer object.Close()

	// GetObject 是惰性的，读第一个字节才知道对象是否存在
	if _, err := object.Stat(); err != nil {
		http.Error(w, "Artifact not found", http.StatusNotFound)
		return
	}

	h.writeHeaders(w, fileName)
	if _, err := io.Copy(w, object); err != nil {
		logger.Warn("镜像产物传输中断", logger.ErrorField(err))
	}
}

func (h *ArtifactHandler) writeHeaders(w http.ResponseWriter, fileName string) {
	w.Header().Set("Content-Type", artifactContentType(fileName))
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "public, max-age=31536000") // 缓存一年
}

// artifactContentType 根据扩展名检测内容类型
func artifactContentType(fileName string) string {
	switch filepath.Ext(fileName) {
	case ".mp4":
		return "video/mp4"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
