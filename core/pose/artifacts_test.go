package pose

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"M1Pose/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(mountPrefix string) *ArtifactWriter {
	return NewArtifactWriter(&config.Config{
		PoseMountPrefix: mountPrefix,
		ArtifactMirror:  "none",
	})
}

func TestArtifactURLShape(t *testing.T) {
	w := newTestWriter("/tmp")
	assert.Equal(t, "/tmp/abc123/results.json", w.URL("abc123", ResultsDocumentName))

	// 挂载前缀尾部的斜杠不能产生双斜杠 URL
	w = newTestWriter("/artifacts/")
	assert.Equal(t, "/artifacts/abc123/preview_reference.mp4", w.URL("abc123", PreviewReferenceName))
}

func TestWriteCreatesSessionDir(t *testing.T) {
	w := newTestWriter("/tmp")
	sessionDir := filepath.Join(t.TempDir(), "deadbeef")

	url, err := w.Write(context.Background(), sessionDir, "deadbeef", PreviewReferenceName, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/deadbeef/preview_reference.mp4", url)

	data, err := os.ReadFile(filepath.Join(sessionDir, PreviewReferenceName))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestWriteOverwritesPreviousArtifact(t *testing.T) {
	w := newTestWriter("/tmp")
	sessionDir := filepath.Join(t.TempDir(), "deadbeef")

	_, err := w.Write(context.Background(), sessionDir, "deadbeef", ResultsDocumentName, []byte("first"))
	require.NoError(t, err)
	_, err = w.Write(context.Background(), sessionDir, "deadbeef", ResultsDocumentName, []byte("second"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(sessionDir, ResultsDocumentName))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestWriteJSONIndentsDocument(t *testing.T) {
	w := newTestWriter("/tmp")
	sessionDir := filepath.Join(t.TempDir(), "deadbeef")

	payload := map[string]interface{}{"session_id": "deadbeef", "score": 0.75}
	url, err := w.WriteJSON(context.Background(), sessionDir, "deadbeef", ResultsDocumentName, payload)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/deadbeef/results.json", url)

	raw, err := os.ReadFile(filepath.Join(sessionDir, ResultsDocumentName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"score\"")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "deadbeef", decoded["session_id"])
	assert.Equal(t, 0.75, decoded["score"])
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "video/mp4", contentTypeFor(PreviewComparisonName))
	assert.Equal(t, "application/json", contentTypeFor(ReferenceLandmarksName))
	assert.Equal(t, "application/octet-stream", contentTypeFor("frames.rgb"))
}
