package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"M1Pose/core/pose"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProgressServer(t *testing.T, f *handlerFixture) *httptest.Server {
	t.Helper()

	router := mux.NewRouter()
	router.HandleFunc("/pose/progress/{session_id}", f.handler.ProgressHandler).Methods("GET")
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestProgressUnknownSessionReturns404(t *testing.T) {
	f := newHandlerFixture(t)
	server := newProgressServer(t, f)

	resp, err := http.Get(server.URL + "/pose/progress/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProgressStreamsArtifactEvents(t *testing.T) {
	f := newHandlerFixture(t)
	session := uploadSession(t, f)
	server := newProgressServer(t, f)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/pose/progress/" + session.SessionID
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	readEvent := func() progressEvent {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var event progressEvent
		require.NoError(t, json.Unmarshal(raw, &event))
		return event
	}

	// 连接建立先收到当前状态
	event := readEvent()
	assert.Equal(t, "state", event.Type)
	assert.Equal(t, session.SessionID, event.SessionID)
	assert.Equal(t, "created", event.State)

	record, err := f.registry.Lookup(session.SessionID)
	require.NoError(t, err)

	// 状态消息发送在目录监听建立之前，等监听就位再落盘
	time.Sleep(200 * time.Millisecond)

	// 模拟流水线落盘一个预览产物
	previewPath := filepath.Join(record.SessionDir, pose.PreviewReferenceName)
	require.NoError(t, os.WriteFile(previewPath, []byte("x"), 0644))

	event = readEvent()
	assert.Equal(t, "artifact", event.Type)
	assert.Equal(t, pose.PreviewReferenceName, event.File)

	// results.json 落盘后推 complete 并结束流
	resultsPath := filepath.Join(record.SessionDir, pose.ResultsDocumentName)
	require.NoError(t, os.WriteFile(resultsPath, []byte("{}"), 0644))

	event = readEvent()
	assert.Equal(t, "artifact", event.Type)
	assert.Equal(t, pose.ResultsDocumentName, event.File)

	event = readEvent()
	assert.Equal(t, "complete", event.Type)
	assert.Equal(t, session.SessionID, event.SessionID)
}

func TestIsArtifactName(t *testing.T) {
	assert.True(t, isArtifactName(pose.PreviewComparisonName))
	assert.True(t, isArtifactName(pose.ResultsDocumentName))
	assert.True(t, isArtifactName("reference.mp4"))
	assert.True(t, isArtifactName("comparison.mov"))
	assert.False(t, isArtifactName("scratch.tmp"))
	assert.False(t, isArtifactName(".DS_Store"))
}
