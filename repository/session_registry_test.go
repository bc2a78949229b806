package repository

import (
	"testing"
	"time"

	"M1Pose/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(id string) *model.SessionUploadRecord {
	return &model.SessionUploadRecord{
		SessionID:              id,
		ReferencePath:          "/data/" + id + "/reference.mp4",
		ComparisonPath:         "/data/" + id + "/comparison.mp4",
		SessionDir:             "/data/" + id,
		ReferenceOriginalName:  "ref.mp4",
		ComparisonOriginalName: "cmp.mp4",
		UploadedAt:             "2026-01-02T03:04:05Z",
	}
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewMemorySessionRegistry()

	require.NoError(t, r.Register(newRecord("s1")))

	record, err := r.Lookup("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", record.SessionID)
	assert.Equal(t, model.SessionStateCreated, record.State)
	assert.Equal(t, "ref.mp4", record.ReferenceOriginalName)
}

func TestLookupUnknownSession(t *testing.T) {
	r := NewMemorySessionRegistry()

	_, err := r.Lookup("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegisterRejectsDuplicateToken(t *testing.T) {
	r := NewMemorySessionRegistry()

	require.NoError(t, r.Register(newRecord("dup")))
	err := r.Register(newRecord("dup"))
	assert.ErrorIs(t, err, ErrSessionExists)
}

func TestLookupReturnsSnapshot(t *testing.T) {
	r := NewMemorySessionRegistry()
	require.NoError(t, r.Register(newRecord("snap")))

	first, err := r.Lookup("snap")
	require.NoError(t, err)
	first.State = "mangled"

	second, err := r.Lookup("snap")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStateCreated, second.State)
}

func TestAnalysisStateTransitions(t *testing.T) {
	r := NewMemorySessionRegistry()
	require.NoError(t, r.Register(newRecord("s1")))

	record, err := r.BeginAnalysis("s1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStateAnalyzing, record.State)

	// 分析进行中不允许并发第二次
	_, err = r.BeginAnalysis("s1")
	assert.ErrorIs(t, err, ErrAnalysisInProgress)

	r.FinishAnalysis("s1", nil)
	record, err = r.Lookup("s1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStateAnalyzed, record.State)

	// 重新分析与失败路径
	_, err = r.BeginAnalysis("s1")
	require.NoError(t, err)
	r.FinishAnalysis("s1", assert.AnError)

	record, err = r.Lookup("s1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStateFailed, record.State)
	assert.Equal(t, assert.AnError.Error(), record.FailureReason)

	// 失败后的会话仍可重试
	_, err = r.BeginAnalysis("s1")
	assert.NoError(t, err)
}

func TestBeginAnalysisUnknownSession(t *testing.T) {
	r := NewMemorySessionRegistry()

	_, err := r.BeginAnalysis("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRemove(t *testing.T) {
	r := NewMemorySessionRegistry()
	require.NoError(t, r.Register(newRecord("gone")))

	require.NoError(t, r.Remove("gone"))
	_, err := r.Lookup("gone")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, r.Remove("gone"), ErrSessionNotFound)
}

func TestExpiredBefore(t *testing.T) {
	r := NewMemorySessionRegistry()

	old := newRecord("old")
	old.LastActivity = time.Now().Add(-48 * time.Hour)
	require.NoError(t, r.Register(old))

	fresh := newRecord("fresh")
	require.NoError(t, r.Register(fresh))

	busy := newRecord("busy")
	busy.LastActivity = time.Now().Add(-48 * time.Hour)
	require.NoError(t, r.Register(busy))
	_, err := r.BeginAnalysis("busy")
	require.NoError(t, err)

	expired := r.ExpiredBefore(time.Now().Add(-24 * time.Hour))
	require.Len(t, expired, 1)
	assert.Equal(t, "old", expired[0].SessionID)
}
