package pose

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"M1Pose/config"
	"M1Pose/logger"
	"M1Pose/storage"
)

// Deterministic artifact filenames inside each session directory.
const (
	PreviewReferenceName    = "preview_reference.mp4"
	PreviewComparisonName   = "preview_comparison.mp4"
	ReferenceLandmarksName  = "reference_landmarks.json"
	ComparisonLandmarksName = "comparison_landmarks.json"
	ResultsDocumentName     = "results.json"
)

// ArtifactWriter persists derived files into a session's working directory
// and builds their public URLs. When the MinIO mirror is enabled each
// artifact is additionally uploaded under {sessionId}/{fileName}.
type ArtifactWriter struct {
	mountPrefix string
	mirror      bool
	bucket      string
}

// NewArtifactWriter creates an ArtifactWriter from the configuration.
func NewArtifactWriter(cfg *config.Config) *ArtifactWriter {
	return &ArtifactWriter{
		mountPrefix: strings.TrimSuffix(cfg.PoseMountPrefix, "/"),
		mirror:      cfg.ArtifactMirror == "minio",
		bucket:      cfg.MinioBucket,
	}
}

// URL builds the public URL for a file in a session's directory:
// {mountPrefix}/{sessionId}/{fileName}.
func (w *ArtifactWriter) URL(sessionID, fileName string) string {
	return fmt.Sprintf("%s/%s/%s", w.mountPrefix, sessionID, fileName)
}

// Write persists one named byte payload and returns its public URL.
// Creates the session directory if absent.
func (w *ArtifactWriter) Write(ctx context.Context, sessionDir, sessionID, fileName string, data []byte) (string, error) {
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create session dir %s: %w", sessionDir, err)
	}

	target := filepath.Join(sessionDir, fileName)
	if err := os.WriteFile(target, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", fileName, err)
	}

	if w.mirror {
		objectName := fmt.Sprintf("%s/%s", sessionID, fileName)
		if err := storage.PutArtifact(ctx, w.bucket, objectName, data, contentTypeFor(fileName)); err != nil {
			// 镜像失败不终止流水线，本地产物仍然可用
			logger.Warn("产物镜像上传失败",
				logger.String("object", objectName),
				logger.ErrorField(err))
		}
	}

	return w.URL(sessionID, fileName), nil
}

// WriteJSON marshals the payload with indentation (matching the documents
// the frontend downloads) and persists it like Write.
func (w *ArtifactWriter) WriteJSON(ctx context.Context, sessionDir, sessionID, fileName string, payload interface{}) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", fileName, err)
	}
	return w.Write(ctx, sessionDir, sessionID, fileName, data)
}

// contentTypeFor 根据产物扩展名返回内容类型
func contentTypeFor(fileName string) string {
	switch filepath.Ext(fileName) {
	case ".mp4":
		return "video/mp4"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
