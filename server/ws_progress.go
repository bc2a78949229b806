package server

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"M1Pose/core/pose"
	"M1Pose/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// progressEvent 推送给前端的进度消息
type progressEvent struct {
	Type      string `json:"type"` // state | artifact | complete
	SessionID string `json:"sessionId"`
	State     string `json:"state,omitempty"`
	File      string `json:"file,omitempty"`
	At        string `json:"at"`
}

// ProgressHandler 通过WebSocket实时推送一个会话的分析进度：
// 监听会话工作目录，每个产物落盘推一条消息，results.json 出现即完成。
func (h *PoseHandler) ProgressHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	record, err := h.registry.Lookup(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Session not found. Upload videos first.")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	// 先推一条当前状态
	h.sendProgress(conn, progressEvent{
		Type:      "state",
		SessionID: sessionID,
		State:     record.State,
		At:        time.Now().UTC().Format(time.RFC3339),
	})

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("watcher failed", logger.ErrorField(err))
		return
	}
	defer watcher.Close()

	if err := watcher.Add(record.SessionDir); err != nil {
		logger.Error("watcher add failed",
			logger.String("dir", record.SessionDir),
			logger.ErrorField(err))
		return
	}

	// 客户端断开时结束写循环
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pushed := make(map[string]bool)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if !isArtifactName(name) || pushed[name] {
				continue
			}
			pushed[name] = true

			h.sendProgress(conn, progressEvent{
				Type:      "artifact",
				SessionID: sessionID,
				File:      name,
				At:        time.Now().UTC().Format(time.RFC3339),
			})

			// results.json 是流水线的最后一个产物
			if name == pose.ResultsDocumentName {
				h.sendProgress(conn, progressEvent{
					Type:      "complete",
					SessionID: sessionID,
					At:        time.Now().UTC().Format(time.RFC3339),
				})
				return
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher error", logger.ErrorField(err))

		case <-clientGone:
			return
		}
	}
}

func (h *PoseHandler) sendProgress(conn *websocket.Conn, event progressEvent) {
	if err := conn.WriteJSON(event); err != nil {
		logger.Warn("websocket write", logger.ErrorField(err))
	}
}

// isArtifactName 只推流水线已知的产物文件
func isArtifactName(name string) bool {
	switch name {
	case pose.PreviewReferenceName, pose.PreviewComparisonName,
		pose.ReferenceLandmarksName, pose.ComparisonLandmarksName,
		pose.ResultsDocumentName:
		return true
	}
	return strings.HasPrefix(name, "reference.") || strings.HasPrefix(name, "comparison.")
}
