// Package ffmpegencoder encodes chunks by piping raw frames into an ffmpeg
// subprocess. It serves both the hardware encoders exposed by ffmpeg
// (VideoToolbox, NVENC, Quick Sync, Media Foundation) and the software ones.
package ffmpegencoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/user/screenrec/pkg/pipeline"
)

var (
	// ErrFFmpegNotFound is returned when no ffmpeg binary can be located.
	ErrFFmpegNotFound = errors.New("ffmpeg not found")
	// ErrNotInitialized is returned when the encoder is used before Begin or after End.
	ErrNotInitialized = errors.New("encoder not initialized")
)

const probeTimeout = 15 * time.Second

// FindFFmpeg searches for ffmpeg.
// Priority: 1) customPath, 2) FFMPEG_PATH env, 3) PATH, 4) common locations
func FindFFmpeg(customPath string) (string, error) {
	if customPath != "" {
		if _, err := os.Stat(customPath); err == nil {
			return customPath, nil
		}
		return "", fmt.Errorf("%w: custom path %s not found", ErrFFmpegNotFound, customPath)
	}

	if envPath := os.Getenv("FFMPEG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: FFMPEG_PATH %s not found", ErrFFmpegNotFound, envPath)
	}

	execName := "ffmpeg"
	if runtime.GOOS == "windows" {
		execName = "ffmpeg.exe"
	}
	if path, err := exec.LookPath(execName); err == nil {
		return path, nil
	}

	var commonPaths []string
	switch runtime.GOOS {
	case "windows":
		commonPaths = []string{
			`C:\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
		}
	case "darwin":
		commonPaths = []string{
			"/opt/homebrew/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/usr/bin/ffmpeg",
		}
	default:
		commonPaths = []string{
			"/usr/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/snap/bin/ffmpeg",
		}
	}

	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", ErrFFmpegNotFound
}

// HardwareEncoders returns the ffmpeg hardware encoder names worth probing
// for codec on this platform, most preferred first.
func HardwareEncoders(codec pipeline.Codec) []string {
	var suffixes []string
	switch runtime.GOOS {
	case "darwin":
		suffixes = []string{"videotoolbox"}
	case "windows":
		suffixes = []string{"nvenc", "qsv", "amf", "mf"}
	default:
		suffixes = []string{"nvenc", "qsv"}
	}

	var prefix string
	switch codec {
	case pipeline.CodecHEVC:
		prefix = "hevc_"
	case pipeline.CodecH264:
		prefix = "h264_"
	default:
		return nil
	}

	names := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		names = append(names, prefix+s)
	}
	return names
}

// SoftwareEncoder returns the ffmpeg software encoder name for codec, or ""
// when ffmpeg has none worth using.
func SoftwareEncoder(codec pipeline.Codec) string {
	switch codec {
	case pipeline.CodecHEVC:
		return "libx265"
	case pipeline.CodecH264:
		return "libx264"
	default:
		return ""
	}
}

// IsHardware reports whether an ffmpeg encoder name refers to a hardware encoder.
func IsHardware(encoderName string) bool {
	return !strings.HasPrefix(encoderName, "lib")
}

// Probe proves that ffmpeg can initialize encoderName by encoding a single
// synthetic frame into the null muxer.
func Probe(ctx context.Context, ffmpegPath, encoderName string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=c=black:s=256x256:r=1",
		"-frames:v", "1",
		"-c:v", encoderName,
		"-f", "null", "-",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("probe %s: %w: %s", encoderName, err, strings.TrimSpace(string(out)))
	}
	return nil
}
