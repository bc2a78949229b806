package pose

import (
	"context"

	"M1Pose/model"
)

// Estimator defines the contract for the external pose estimation
// capability: per-video landmark extraction plus sequence comparison.
type Estimator interface {
	ExtractLandmarks(ctx context.Context, videoPath string, settings model.AnalysisSettings) (*model.LandmarkSequence, error)
	CompareSequences(reference, comparison *model.LandmarkSequence) (map[string]float64, error)
}

// FrameSet is an ordered run of rendered raster frames, raw RGB24,
// each len(frame) == Width*Height*3.
type FrameSet struct {
	Width  int
	Height int
	Frames [][]byte
}

// Renderer defines the contract for the external frame renderer. Rendering
// with a nil anchor lets the renderer choose one and return it; passing a
// previous call's anchor aligns the new sequence to it.
type Renderer interface {
	RenderSequence(ctx context.Context, seq *model.LandmarkSequence, canvasWidth, canvasHeight int, alignTo *model.RenderAnchor) (*FrameSet, *model.RenderAnchor, error)
}

// Encoder defines the contract for the external video encoder.
type Encoder interface {
	EncodeVideo(ctx context.Context, frames *FrameSet) ([]byte, error)
}
