package model

import "time"

// Session analysis states. A session is created by an upload and moves
// through analyzing into analyzed or failed; a retry moves it back to
// analyzing.
const (
	SessionStateCreated   = "created"
	SessionStateAnalyzing = "analyzing"
	SessionStateAnalyzed  = "analyzed"
	SessionStateFailed    = "failed"
)

// SessionUploadRecord links one reference video and one comparison video
// to an opaque session token. Paths are fixed at upload time; only the
// analysis state fields change afterwards, and only through the registry.
type SessionUploadRecord struct {
	SessionID              string    `json:"sessionId"`
	ReferencePath          string    `json:"-"` // Absolute path to the stored reference video
	ComparisonPath         string    `json:"-"` // Absolute path to the stored comparison video
	SessionDir             string    `json:"-"` // Working directory for this session's artifacts
	ReferenceOriginalName  string    `json:"referenceOriginalName"`
	ComparisonOriginalName string    `json:"comparisonOriginalName"`
	UploadedAt             string    `json:"uploadedAt"` // RFC3339 UTC
	State                  string    `json:"state"`
	FailureReason          string    `json:"failureReason,omitempty"`
	LastActivity           time.Time `json:"-"` // Drives TTL eviction
}

// AnalysisSettings are the recognized analyze options, passed through to
// the pose estimator.
type AnalysisSettings struct {
	ModelComplexity        int     `json:"model_complexity"`
	MinDetectionConfidence float64 `json:"min_detection_confidence"`
	MinTrackingConfidence  float64 `json:"min_tracking_confidence"`
}

// DefaultAnalysisSettings mirrors the estimator's own defaults.
func DefaultAnalysisSettings() AnalysisSettings {
	return AnalysisSettings{
		ModelComplexity:        1,
		MinDetectionConfidence: 0.5,
		MinTrackingConfidence:  0.5,
	}
}

// VideoPair holds one URL (or name) per uploaded video.
type VideoPair struct {
	Reference  string `json:"reference"`
	Comparison string `json:"comparison"`
}

// DownloadLinks holds the URLs for the three downloadable documents.
type DownloadLinks struct {
	Metrics             string `json:"metrics"`
	ReferenceLandmarks  string `json:"reference_landmarks"`
	ComparisonLandmarks string `json:"comparison_landmarks"`
}

// AnalysisResult is the payload produced by a successful pipeline run and
// cached per session. A repeat analyze replaces it wholesale.
type AnalysisResult struct {
	SessionID         string             `json:"session_id"`
	Metrics           map[string]float64 `json:"metrics"`
	AnalysisSettings  AnalysisSettings   `json:"analysis_settings"`
	PreviewVideos     VideoPair          `json:"preview_videos"`
	Downloads         DownloadLinks      `json:"downloads"`
	SourceVideos      VideoPair          `json:"source_videos"`
	OriginalFilenames VideoPair          `json:"original_filenames"`
	UploadedAt        string             `json:"uploaded_at"`
	UpdatedAt         string             `json:"updated_at"`
}

// LandmarkFrame carries the named landmark coordinates for one frame.
// Each landmark maps to its coordinate vector (x, y[, z, visibility]).
type LandmarkFrame struct {
	FrameID   int                  `json:"frame_id"`
	Landmarks map[string][]float64 `json:"landmarks"`
}

// LandmarkSequence is the ordered per-frame landmark output of the pose
// estimator for one video. Read-only input to rendering and comparison.
type LandmarkSequence struct {
	SequenceID string          `json:"sequence_id"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	FrameCount int             `json:"frame_count"`
	SourcePath string          `json:"source_path"`
	Frames     []LandmarkFrame `json:"frames"`
}

// RenderAnchor is the alignment reference chosen while rendering the first
// sequence and reused to align the second. Opaque to the orchestrator.
type RenderAnchor struct {
	FrameID int     `json:"frame_id"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
	Scale   float64 `json:"scale"`
}

// UploadResponse is returned by the upload endpoint.
type UploadResponse struct {
	SessionID       string `json:"session_id"`
	ReferenceVideo  string `json:"reference_video"`
	ComparisonVideo string `json:"comparison_video"`
	UploadedAt      string `json:"uploaded_at"`
}

// AnalyzeRequest is the analyze endpoint's JSON body. Pointer fields
// distinguish "absent" from zero so defaults can be applied.
type AnalyzeRequest struct {
	SessionID              string   `json:"session_id"`
	ModelComplexity        *int     `json:"model_complexity,omitempty"`
	MinDetectionConfidence *float64 `json:"min_detection_confidence,omitempty"`
	MinTrackingConfidence  *float64 `json:"min_tracking_confidence,omitempty"`
}

// Settings resolves the request against the defaults.
func (r *AnalyzeRequest) Settings() AnalysisSettings {
	s := DefaultAnalysisSettings()
	if r.ModelComplexity != nil {
		s.ModelComplexity = *r.ModelComplexity
	}
	if r.MinDetectionConfidence != nil {
		s.MinDetectionConfidence = *r.MinDetectionConfidence
	}
	if r.MinTrackingConfidence != nil {
		s.MinTrackingConfidence = *r.MinTrackingConfidence
	}
	return s
}
