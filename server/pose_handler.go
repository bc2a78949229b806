package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"M1Pose/config"
	"M1Pose/core/pose"
	"M1Pose/logger"
	"M1Pose/model"
	"M1Pose/repository"

	"github.com/google/uuid"
)

// uploadChunkSize 上传落盘的分块大小，避免整段文件驻留内存
const uploadChunkSize = 1 << 20

// uploadSemaphore 限制并发上传数量
var uploadSemaphore = make(chan struct{}, 8)

// PoseHandler 处理动作对比相关的API请求
type PoseHandler struct {
	registry repository.SessionRegistry
	results  repository.ResultStore
	analyzer *pose.Analyzer
	cfg      *config.Config
}

// NewPoseHandler 创建新的动作对比处理器
func NewPoseHandler(
	registry repository.SessionRegistry,
	results repository.ResultStore,
	analyzer *pose.Analyzer,
	cfg *config.Config,
) *PoseHandler {
	return &PoseHandler{
		registry: registry,
		results:  results,
		analyzer: analyzer,
		cfg:      cfg,
	}
}

// newSessionID 生成不可猜测的会话令牌（uuid4 的十六进制形式）
func newSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// storedVideoName 保留原始文件名的扩展名，缺失时回退为 .mp4
func storedVideoName(role, originalName string) string {
	ext := filepath.Ext(originalName)
	if ext == "" {
		ext = ".mp4"
	}
	return role + ext
}

// UploadHandler handles POST /pose/upload: two multipart video files are
// streamed to the session's working directory and the session registered.
func (h *PoseHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	logger.Info("开始处理视频上传",
		logger.String("remoteAddr", r.RemoteAddr),
		logger.Int64("contentLength", r.ContentLength))

	if h.cfg.MaxUploadBytes > 0 && r.ContentLength > h.cfg.MaxUploadBytes {
		logger.Warn("请求体过大，拒绝处理",
			logger.Int64("contentLength", r.ContentLength),
			logger.Int64("maxSize", h.cfg.MaxUploadBytes))
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Upload too large. Maximum size is %d MB", h.cfg.MaxUploadBytes>>20))
		return
	}

	// 获取信号量，控制并发
	select {
	case uploadSemaphore <- struct{}{}:
		defer func() { <-uploadSemaphore }()
	default:
		logger.Warn("服务器繁忙，拒绝新的上传请求")
		writeError(w, http.StatusServiceUnavailable, "Server is busy, please try again later")
		return
	}

	if h.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Expected multipart form upload")
		return
	}

	sessionID := newSessionID()
	sessionDir := filepath.Join(h.cfg.PoseTmpDir, sessionID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		logger.Error("创建会话目录失败",
			logger.String("sessionId", sessionID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to prepare session storage")
		return
	}

	var (
		referencePath, comparisonPath string
		referenceName, comparisonName string
	)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			os.RemoveAll(sessionDir)
			logger.Error("读取上传分段失败", logger.ErrorField(err))
			writeError(w, http.StatusBadRequest, "Failed to read upload stream")
			return
		}

		var role string
		switch part.FormName() {
		case "reference_video":
			role = "reference"
		case "comparison_video":
			role = "comparison"
		default:
			part.Close()
			continue
		}

		destination := filepath.Join(sessionDir, storedVideoName(role, part.FileName()))
		if err := saveUploadPart(part, destination); err != nil {
			part.Close()
			os.RemoveAll(sessionDir)
			logger.Error("保存上传文件失败",
				logger.String("sessionId", sessionID),
				logger.String("role", role),
				logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Failed to store uploaded video")
			return
		}
		part.Close()

		if role == "reference" {
			referencePath = destination
			referenceName = part.FileName()
		} else {
			comparisonPath = destination
			comparisonName = part.FileName()
		}
	}

	if referencePath == "" || comparisonPath == "" {
		os.RemoveAll(sessionDir)
		writeError(w, http.StatusBadRequest, "Both reference_video and comparison_video are required")
		return
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	record := &model.SessionUploadRecord{
		SessionID:              sessionID,
		ReferencePath:          referencePath,
		ComparisonPath:         comparisonPath,
		SessionDir:             sessionDir,
		ReferenceOriginalName:  referenceName,
		ComparisonOriginalName: comparisonName,
		UploadedAt:             timestamp,
	}

	if err := h.registry.Register(record); err != nil {
		// 令牌冲突理论上不可能发生，一旦发生必须大声失败
		os.RemoveAll(sessionDir)
		logger.Error("会话注册失败",
			logger.String("sessionId", sessionID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to register upload session")
		return
	}

	// 清掉同令牌的历史结果。令牌是新生成的，这一步通常是空操作
	if err := h.results.Delete(r.Context(), sessionID); err != nil {
		logger.Warn("清理历史结果失败",
			logger.String("sessionId", sessionID),
			logger.ErrorField(err))
	}

	logger.Info("视频上传完成",
		logger.String("sessionId", sessionID),
		logger.String("reference", referenceName),
		logger.String("comparison", comparisonName))

	writeJSON(w, http.StatusOK, model.UploadResponse{
		SessionID:       sessionID,
		ReferenceVideo:  referenceName,
		ComparisonVideo: comparisonName,
		UploadedAt:      timestamp,
	})
}

// saveUploadPart 以固定大小的分块把上传流写入磁盘
func saveUploadPart(part *multipart.Part, destination string) error {
	file, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destination, err)
	}
	defer file.Close()

	buf := make([]byte, uploadChunkSize)
	if _, err := io.CopyBuffer(file, part, buf); err != nil {
		return fmt.Errorf("failed to stream upload to %s: %w", destination, err)
	}
	return nil
}

// AnalyzeHandler handles POST /pose/analyze: validates the session, runs
// the pipeline on the worker pool and returns the full result payload.
func (h *PoseHandler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	var req model.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), req.SessionID, req.Settings())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "Session not found. Upload videos first.")
		case errors.Is(err, repository.ErrAnalysisInProgress):
			writeError(w, http.StatusConflict, "Analysis already in progress for this session")
		case errors.Is(err, fs.ErrNotExist):
			writeError(w, http.StatusNotFound, "Uploaded video is no longer available")
		default:
			// 细节只进日志，客户端拿到的是笼统错误
			logger.Error("分析流水线失败",
				logger.String("sessionId", req.SessionID),
				logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Analysis failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ResultsHandler handles GET /pose/results?session_id=...: returns the
// cached payload of the most recent successful analyze.
func (h *PoseHandler) ResultsHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	result, err := h.results.Get(r.Context(), sessionID)
	if err == nil {
		writeJSON(w, http.StatusOK, result)
		return
	}
	if !errors.Is(err, repository.ErrResultNotFound) {
		logger.Error("读取结果缓存失败",
			logger.String("sessionId", sessionID),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to load results")
		return
	}

	// 没有结果时把会话状态带给调用方，而不是干巴巴的404
	writeError(w, http.StatusNotFound, h.resultsMissDetail(sessionID))
}

func (h *PoseHandler) resultsMissDetail(sessionID string) string {
	record, err := h.registry.Lookup(sessionID)
	if err != nil {
		return "Results not found for session"
	}
	switch record.State {
	case model.SessionStateAnalyzing:
		return "Analysis is still in progress for this session"
	case model.SessionStateFailed:
		if record.FailureReason != "" {
			return "Last analysis failed; upload again or retry analyze"
		}
		return "Last analysis failed"
	default:
		return "No analysis has been run for this session yet"
	}
}
