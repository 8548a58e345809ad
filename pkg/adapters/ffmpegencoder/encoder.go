package ffmpegencoder

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/user/screenrec/pkg/ports"
)

// maxGapFrames caps how many repeated frames are written to cover a gap in
// the input timeline.
const maxGapFrames = 30

// Encoder implements ports.VideoEncoder with an ffmpeg subprocess reading raw
// RGBA frames on stdin and writing a fragmented MP4 chunk file.
type Encoder struct {
	ffmpegPath  string
	encoderName string

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  bytes.Buffer
	path    string
	width   int
	height  int
	opts    ports.EncoderOptions
	canvas  *image.RGBA
	written int // frames written to ffmpeg, including gap repeats
	frames  int // frames submitted by the caller
	closed  bool
}

// New creates an encoder that drives encoderName through the ffmpeg binary at ffmpegPath.
func New(ffmpegPath, encoderName string) *Encoder {
	return &Encoder{
		ffmpegPath:  ffmpegPath,
		encoderName: encoderName,
	}
}

// Begin starts ffmpeg writing to path.
func (e *Encoder) Begin(path string, width, height int, opts ports.EncoderOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd != nil {
		return fmt.Errorf("encoder already started")
	}

	// yuv420p requires even dimensions
	e.width = width &^ 1
	e.height = height &^ 1
	if e.width == 0 || e.height == 0 {
		return fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if opts.FPS <= 0 {
		opts.FPS = 1
	}
	e.opts = opts
	e.path = path
	e.canvas = image.NewRGBA(image.Rect(0, 0, e.width, e.height))

	e.cmd = exec.Command(e.ffmpegPath, e.buildArgs()...)
	e.cmd.Stderr = &e.stderr

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	e.stdin = stdin

	if err := e.cmd.Start(); err != nil {
		e.stdin = nil
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return nil
}

func (e *Encoder) buildArgs() []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", e.width, e.height),
		"-r", strconv.FormatFloat(e.opts.FPS, 'f', -1, 64),
		"-i", "pipe:0",
		"-an",
		"-c:v", e.encoderName,
	}

	switch e.encoderName {
	case "libx264":
		args = append(args, "-preset", "veryfast", "-tune", "stillimage")
	case "libx265":
		args = append(args, "-preset", "fast", "-x265-params", "log-level=error")
	}

	if e.opts.BitrateKbps > 0 {
		args = append(args,
			"-b:v", fmt.Sprintf("%dk", e.opts.BitrateKbps),
			"-maxrate", fmt.Sprintf("%dk", e.opts.BitrateKbps*3/2),
			"-bufsize", fmt.Sprintf("%dk", e.opts.BitrateKbps*2),
		)
	}

	if e.opts.KeyFrameInterval > 0 {
		args = append(args, "-g", strconv.Itoa(e.opts.KeyFrameInterval))
	}

	if e.encoderName == "libx265" || e.encoderName == "hevc_videotoolbox" {
		args = append(args, "-tag:v", "hvc1")
	}

	// Fragmented output keeps everything written so far readable if the
	// process dies before End.
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-movflags", "+frag_keyframe+empty_moov+default_base_moof",
		"-f", "mp4",
		e.path,
	)
	return args
}

// EncodeFrame scales img onto the output canvas and writes it to ffmpeg.
// ffmpeg timestamps frames at the nominal rate, so gaps in the input timeline
// are covered by repeating the previous frame.
func (e *Encoder) EncodeFrame(img image.Image, offset time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stdin == nil || e.closed {
		return ErrNotInitialized
	}

	if e.written > 0 {
		expected := int(math.Round(offset.Seconds() * e.opts.FPS))
		gap := expected - e.written
		if gap > maxGapFrames {
			gap = maxGapFrames
		}
		for i := 0; i < gap; i++ {
			if _, err := e.stdin.Write(e.canvas.Pix); err != nil {
				return fmt.Errorf("failed to write gap frame: %w", err)
			}
			e.written++
		}
	}

	if img.Bounds().Dx() == e.width && img.Bounds().Dy() == e.height {
		draw.Draw(e.canvas, e.canvas.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(e.canvas, e.canvas.Bounds(), img, img.Bounds(), draw.Src, nil)
	}

	if _, err := e.stdin.Write(e.canvas.Pix); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	e.written++
	e.frames++
	return nil
}

// End closes ffmpeg's input, waits for it to finish and reports the file size.
func (e *Encoder) End() (ports.EncodeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stdin == nil || e.closed {
		return ports.EncodeResult{}, ErrNotInitialized
	}

	e.stdin.Close()
	e.stdin = nil
	e.closed = true

	if err := e.cmd.Wait(); err != nil {
		return ports.EncodeResult{}, fmt.Errorf("ffmpeg encoding failed: %w\nstderr: %s", err, e.stderr.String())
	}

	info, err := os.Stat(e.path)
	if err != nil {
		return ports.EncodeResult{}, fmt.Errorf("failed to stat output: %w", err)
	}

	return ports.EncodeResult{Bytes: info.Size(), Frames: e.frames}, nil
}

// Abort kills ffmpeg if it is still running.
func (e *Encoder) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stdin != nil {
		e.stdin.Close()
		e.stdin = nil
	}
	if e.cmd != nil && e.cmd.Process != nil && !e.closed {
		e.cmd.Process.Kill()
		e.cmd.Wait()
	}
	e.closed = true
}

// Ensure Encoder implements ports.VideoEncoder
var _ ports.VideoEncoder = (*Encoder)(nil)
