package pose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"M1Pose/logger"
	"M1Pose/model"
)

// ToolkitProcessor implements Estimator and Renderer by shelling out to an
// external landmark toolkit binary (mediapipe-based). The toolkit exposes
// two subcommands:
//
//	extract --input <video> [--model-complexity N] [--min-detection-confidence F] [--min-tracking-confidence F]
//	    writes a LandmarkSequence as JSON to stdout
//	render --input <sequence.json> --width W --height H [--anchor <anchor.json>] --output <dir>
//	    writes frame_%06d.rgb files plus anchor.json into the output dir
type ToolkitProcessor struct {
	toolPath string
}

// NewToolkitProcessor creates a processor around the given toolkit binary.
func NewToolkitProcessor(toolPath string) *ToolkitProcessor {
	return &ToolkitProcessor{toolPath: toolPath}
}

// ExtractLandmarks runs the toolkit's extract subcommand on one video.
func (p *ToolkitProcessor) ExtractLandmarks(ctx context.Context, videoPath string, settings model.AnalysisSettings) (*model.LandmarkSequence, error) {
	// 先确认视频存在，区分 404 与流水线失败
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("source video %s: %w", videoPath, err)
	}

	args := []string{
		"extract",
		"--input", videoPath,
		"--model-complexity", strconv.Itoa(settings.ModelComplexity),
		"--min-detection-confidence", strconv.FormatFloat(settings.MinDetectionConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(settings.MinTrackingConfidence, 'f', -1, 64),
	}

	cmd := exec.CommandContext(ctx, p.toolPath, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	logger.Debug("执行姿态提取",
		logger.String("tool", p.toolPath),
		logger.String("video", videoPath))

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("landmark extraction failed for %s: %w\nToolkit Error: %s", videoPath, err, stderr.String())
	}

	var sequence model.LandmarkSequence
	if err := json.Unmarshal(out.Bytes(), &sequence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal landmark sequence for %s: %w", videoPath, err)
	}

	if sequence.Width <= 0 || sequence.Height <= 0 {
		return nil, fmt.Errorf("toolkit returned invalid dimensions %dx%d for %s", sequence.Width, sequence.Height, videoPath)
	}
	if sequence.FrameCount == 0 {
		sequence.FrameCount = len(sequence.Frames)
	}
	if sequence.SourcePath == "" {
		sequence.SourcePath = videoPath
	}

	return &sequence, nil
}

// CompareSequences produces the named metric mapping for two sequences.
func (p *ToolkitProcessor) CompareSequences(reference, comparison *model.LandmarkSequence) (map[string]float64, error) {
	return CompareLandmarkSequences(reference, comparison)
}

// RenderSequence runs the toolkit's render subcommand: skeleton overlay
// frames on a canvas of the given size. With alignTo nil the toolkit picks
// the anchor and reports it back via anchor.json.
func (p *ToolkitProcessor) RenderSequence(ctx context.Context, seq *model.LandmarkSequence, canvasWidth, canvasHeight int, alignTo *model.RenderAnchor) (*FrameSet, *model.RenderAnchor, error) {
	workDir, err := os.MkdirTemp("", "m1pose-render-")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create render work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	seqPath := filepath.Join(workDir, "sequence.json")
	seqData, err := json.Marshal(seq)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal landmark sequence: %w", err)
	}
	if err := os.WriteFile(seqPath, seqData, 0644); err != nil {
		return nil, nil, fmt.Errorf("failed to write sequence file: %w", err)
	}

	outDir := filepath.Join(workDir, "frames")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create frame output dir: %w", err)
	}

	args := []string{
		"render",
		"--input", seqPath,
		"--width", strconv.Itoa(canvasWidth),
		"--height", strconv.Itoa(canvasHeight),
		"--output", outDir,
	}

	if alignTo != nil {
		anchorPath := filepath.Join(workDir, "align_to.json")
		anchorData, err := json.Marshal(alignTo)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal render anchor: %w", err)
		}
		if err := os.WriteFile(anchorPath, anchorData, 0644); err != nil {
			return nil, nil, fmt.Errorf("failed to write anchor file: %w", err)
		}
		args = append(args, "--anchor", anchorPath)
	}

	cmd := exec.CommandContext(ctx, p.toolPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("执行骨架渲染",
		logger.String("sequence", seq.SequenceID),
		logger.Int("canvasWidth", canvasWidth),
		logger.Int("canvasHeight", canvasHeight))

	if err := cmd.Run(); err != nil {
		return nil, nil, fmt.Errorf("frame rendering failed for %s: %w\nToolkit Error: %s", seq.SequenceID, err, stderr.String())
	}

	frames, err := readRGBFrames(outDir, canvasWidth, canvasHeight)
	if err != nil {
		return nil, nil, err
	}

	anchorData, err := os.ReadFile(filepath.Join(outDir, "anchor.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("toolkit did not report a render anchor: %w", err)
	}
	var anchor model.RenderAnchor
	if err := json.Unmarshal(anchorData, &anchor); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal render anchor: %w", err)
	}

	return &FrameSet{Width: canvasWidth, Height: canvasHeight, Frames: frames}, &anchor, nil
}

// readRGBFrames loads the toolkit's frame_*.rgb output in order and checks
// each frame against the expected canvas size.
func readRGBFrames(dir string, width, height int) ([][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame dir %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".rgb") {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("toolkit produced no frames in %s", dir)
	}
	sort.Strings(names)

	expected := width * height * 3
	frames := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read frame %s: %w", name, err)
		}
		if len(data) != expected {
			return nil, fmt.Errorf("frame %s has %d bytes, expected %d for %dx%d RGB24", name, len(data), expected, width, height)
		}
		frames = append(frames, data)
	}
	return frames, nil
}
