package pose

import (
	"testing"

	"M1Pose/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSequence(id string, width, height, frames int, shift float64) *model.LandmarkSequence {
	seq := &model.LandmarkSequence{
		SequenceID: id,
		Width:      width,
		Height:     height,
		FrameCount: frames,
		SourcePath: "/videos/" + id + ".mp4",
	}
	for i := 0; i < frames; i++ {
		seq.Frames = append(seq.Frames, model.LandmarkFrame{
			FrameID: i,
			Landmarks: map[string][]float64{
				"nose":     {float64(width)/2 + shift, float64(height) / 4},
				"left_hip": {float64(width)/3 + shift, float64(height) / 2},
			},
		})
	}
	return seq
}

func TestCompareIdenticalSequences(t *testing.T) {
	a := makeSequence("a", 640, 480, 10, 0)
	b := makeSequence("b", 640, 480, 10, 0)

	metrics, err := CompareLandmarkSequences(a, b)
	require.NoError(t, err)

	assert.Equal(t, 0.0, metrics["mean_joint_deviation"])
	assert.Equal(t, 0.0, metrics["max_joint_deviation"])
	assert.Equal(t, 1.0, metrics["pose_similarity"])
	assert.Equal(t, 1.0, metrics["frame_coverage"])
	assert.Equal(t, 10.0, metrics["compared_frames"])
}

func TestCompareIsDeterministic(t *testing.T) {
	a := makeSequence("a", 640, 480, 10, 0)
	b := makeSequence("b", 800, 600, 8, 15)

	first, err := CompareLandmarkSequences(a, b)
	require.NoError(t, err)
	second, err := CompareLandmarkSequences(a, b)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCompareShiftedSequencesDeviate(t *testing.T) {
	a := makeSequence("a", 640, 480, 10, 0)
	b := makeSequence("b", 640, 480, 10, 64)

	metrics, err := CompareLandmarkSequences(a, b)
	require.NoError(t, err)

	assert.Greater(t, metrics["mean_joint_deviation"], 0.0)
	assert.Less(t, metrics["pose_similarity"], 1.0)
}

func TestCompareFrameCoverage(t *testing.T) {
	a := makeSequence("a", 640, 480, 10, 0)
	b := makeSequence("b", 640, 480, 5, 0)

	metrics, err := CompareLandmarkSequences(a, b)
	require.NoError(t, err)

	assert.Equal(t, 5.0, metrics["compared_frames"])
	assert.Equal(t, 0.5, metrics["frame_coverage"])
}

func TestCompareEmptySequence(t *testing.T) {
	a := makeSequence("a", 640, 480, 10, 0)
	empty := makeSequence("b", 640, 480, 0, 0)

	_, err := CompareLandmarkSequences(a, empty)
	assert.Error(t, err)

	_, err = CompareLandmarkSequences(nil, a)
	assert.Error(t, err)
}

func TestCompareDisjointLandmarks(t *testing.T) {
	a := makeSequence("a", 640, 480, 3, 0)
	b := makeSequence("b", 640, 480, 3, 0)
	for i := range b.Frames {
		b.Frames[i].Landmarks = map[string][]float64{"right_ear": {1, 2}}
	}

	_, err := CompareLandmarkSequences(a, b)
	assert.Error(t, err)
}
