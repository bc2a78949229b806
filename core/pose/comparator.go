package pose

import (
	"fmt"
	"math"

	"M1Pose/model"
)

// CompareLandmarkSequences 对比两段关键点序列，输出命名的数值指标。
// 指标含义由前端解释，这里只保证确定性：相同输入永远得到相同输出。
func CompareLandmarkSequences(reference, comparison *model.LandmarkSequence) (map[string]float64, error) {
	if reference == nil || comparison == nil {
		return nil, fmt.Errorf("both sequences are required for comparison")
	}
	if len(reference.Frames) == 0 || len(comparison.Frames) == 0 {
		return nil, fmt.Errorf("cannot compare empty landmark sequences (reference=%d, comparison=%d frames)",
			len(reference.Frames), len(comparison.Frames))
	}

	// 逐帧对齐：较短的一段决定可对比帧数
	frames := len(reference.Frames)
	if len(comparison.Frames) < frames {
		frames = len(comparison.Frames)
	}

	var (
		totalDeviation float64
		maxDeviation   float64
		samples        int
	)

	for i := 0; i < frames; i++ {
		refFrame := reference.Frames[i]
		cmpFrame := comparison.Frames[i]

		for name, refCoords := range refFrame.Landmarks {
			cmpCoords, ok := cmpFrame.Landmarks[name]
			if !ok {
				continue
			}
			d := landmarkDistance(refCoords, cmpCoords,
				reference.Width, reference.Height,
				comparison.Width, comparison.Height)
			if d < 0 {
				continue
			}
			totalDeviation += d
			if d > maxDeviation {
				maxDeviation = d
			}
			samples++
		}
	}

	if samples == 0 {
		return nil, fmt.Errorf("sequences share no named landmarks")
	}

	meanDeviation := totalDeviation / float64(samples)

	// 相似度与平均偏差成反比，落在 (0, 1]
	similarity := 1.0 / (1.0 + meanDeviation)

	coverage := float64(frames) / float64(maxInt(len(reference.Frames), len(comparison.Frames)))

	return map[string]float64{
		"mean_joint_deviation": round4(meanDeviation),
		"max_joint_deviation":  round4(maxDeviation),
		"pose_similarity":      round4(similarity),
		"frame_coverage":       round4(coverage),
		"compared_frames":      float64(frames),
	}, nil
}

// landmarkDistance 计算两个关键点在各自画幅归一化后的欧氏距离。
// 坐标不足二维时返回负值表示跳过。
func landmarkDistance(ref, cmp []float64, refW, refH, cmpW, cmpH int) float64 {
	if len(ref) < 2 || len(cmp) < 2 {
		return -1
	}
	if refW <= 0 || refH <= 0 || cmpW <= 0 || cmpH <= 0 {
		return -1
	}

	dx := ref[0]/float64(refW) - cmp[0]/float64(cmpW)
	dy := ref[1]/float64(refH) - cmp[1]/float64(cmpH)
	return math.Sqrt(dx*dx + dy*dy)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
