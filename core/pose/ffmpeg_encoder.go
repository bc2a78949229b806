package pose

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"M1Pose/logger"
)

const defaultFrameRate = 30

// FFmpegEncoder implements the Encoder interface by piping raw RGB24
// frames into ffmpeg and reading a fragmented MP4 back from stdout.
type FFmpegEncoder struct {
	ffmpegPath string
	frameRate  int
}

// NewFFmpegEncoder creates a new FFmpegEncoder.
func NewFFmpegEncoder(ffmpegPath string) *FFmpegEncoder {
	return &FFmpegEncoder{ffmpegPath: ffmpegPath, frameRate: defaultFrameRate}
}

// EncodeVideo encodes the frame set into an MP4 byte stream.
func (e *FFmpegEncoder) EncodeVideo(ctx context.Context, frames *FrameSet) ([]byte, error) {
	if frames == nil || len(frames.Frames) == 0 {
		return nil, fmt.Errorf("no frames to encode")
	}
	frameSize := frames.Width * frames.Height * 3
	for i, frame := range frames.Frames {
		if len(frame) != frameSize {
			return nil, fmt.Errorf("frame %d has %d bytes, expected %d for %dx%d RGB24", i, len(frame), frameSize, frames.Width, frames.Height)
		}
	}

	args := []string{
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", frames.Width, frames.Height),
		"-r", fmt.Sprintf("%d", e.frameRate),
		"-i", "-",
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		// stdout 不可 seek，必须用分段 MP4
		"-movflags", "+frag_keyframe+empty_moov",
		"-f", "mp4",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	var input bytes.Buffer
	input.Grow(frameSize * len(frames.Frames))
	for _, frame := range frames.Frames {
		input.Write(frame)
	}
	cmd.Stdin = &input

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	logger.Debug("执行视频编码",
		logger.Int("frames", len(frames.Frames)),
		logger.Int("width", frames.Width),
		logger.Int("height", frames.Height))

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg encoding failed: %w\nFFmpeg Error: %s", err, stderr.String())
	}

	if out.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %d frames", len(frames.Frames))
	}

	return out.Bytes(), nil
}
