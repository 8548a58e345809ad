// Package mjpegencoder is the pure-Go baseline encoder. Every frame is a JPEG
// key frame, streamed into a fragmented MP4 file so a chunk stays readable up
// to the last completed fragment.
package mjpegencoder

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"os"
	"sync"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"golang.org/x/image/draw"

	"github.com/user/screenrec/pkg/ports"
)

const (
	timescale     = 1000 // milliseconds
	baseQuality   = 50
	minQuality    = 5
	maxQuality    = 95
	minScale      = 0.5
	fragmentFlush = 30 // samples per fragment when no key frame interval is set
)

var (
	// ErrNotInitialized is returned when the encoder is used before Begin or after End.
	ErrNotInitialized = errors.New("encoder not initialized")
)

type sample struct {
	data       []byte
	decodeTime uint64
}

// Encoder implements ports.VideoEncoder with image/jpeg and mp4ff.
type Encoder struct {
	mu sync.Mutex

	file    *os.File
	w       *bufio.Writer
	width   int
	height  int
	opts    ports.EncoderOptions
	quality int
	canvas  *image.RGBA

	pending  *sample
	fragment []mp4.FullSample
	seq      uint32
	frames   int
	lastTime uint64
}

// New creates a new MJPEG encoder.
func New() *Encoder {
	return &Encoder{}
}

// Probe always succeeds; the encoder depends on nothing outside the process.
func Probe() error {
	return nil
}

// QualityFor maps a quality multiplier to a JPEG quality and a resolution scale.
// Multipliers below 1.0 first reduce resolution, down to half size.
func QualityFor(multiplier float64) (quality int, scale float64) {
	if multiplier <= 0 {
		multiplier = 1
	}
	quality = int(math.Round(baseQuality * multiplier))
	if quality < minQuality {
		quality = minQuality
	}
	if quality > maxQuality {
		quality = maxQuality
	}
	scale = 1
	if multiplier < 1 {
		scale = math.Max(minScale, math.Sqrt(multiplier))
	}
	return quality, scale
}

// Begin creates the chunk file and writes its initialization segment.
func (e *Encoder) Begin(path string, width, height int, opts ports.EncoderOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file != nil {
		return fmt.Errorf("encoder already started")
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if opts.FPS <= 0 {
		opts.FPS = 1
	}

	quality, scale := QualityFor(opts.Quality)
	e.quality = quality
	e.width = int(float64(width) * scale)
	e.height = int(float64(height) * scale)
	e.opts = opts
	e.canvas = image.NewRGBA(image.Rect(0, 0, e.width, e.height))
	e.seq = 0
	e.frames = 0
	e.pending = nil
	e.fragment = nil

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	e.file = f
	e.w = bufio.NewWriter(f)

	if err := e.writeInit(); err != nil {
		e.file.Close()
		e.file = nil
		return err
	}
	return nil
}

func (e *Encoder) writeInit() error {
	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(timescale, "video", "und")
	trak := init.Moov.Trak

	entry := mp4.CreateVisualSampleEntryBox("jpeg", uint16(e.width), uint16(e.height), nil)
	trak.Mdia.Minf.Stbl.Stsd.AddChild(entry)
	trak.Tkhd.Width = mp4.Fixed32(e.width << 16)
	trak.Tkhd.Height = mp4.Fixed32(e.height << 16)

	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso6", "mp41"})
	if err := ftyp.Encode(e.w); err != nil {
		return fmt.Errorf("encode ftyp: %w", err)
	}
	if err := init.Moov.Encode(e.w); err != nil {
		return fmt.Errorf("encode moov: %w", err)
	}
	return nil
}

// EncodeFrame compresses img to JPEG and queues it as the next sample.
// A sample's duration is known once the following frame arrives.
func (e *Encoder) EncodeFrame(img image.Image, offset time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return ErrNotInitialized
	}

	draw.ApproxBiLinear.Scale(e.canvas, e.canvas.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, e.canvas, &jpeg.Options{Quality: e.quality}); err != nil {
		return fmt.Errorf("jpeg encode: %w", err)
	}

	decodeTime := uint64(offset.Milliseconds())
	if e.frames > 0 && decodeTime <= e.lastTime {
		decodeTime = e.lastTime + 1
	}
	e.lastTime = decodeTime

	if e.pending != nil {
		if err := e.queue(uint32(decodeTime - e.pending.decodeTime)); err != nil {
			return err
		}
	}
	e.pending = &sample{data: buf.Bytes(), decodeTime: decodeTime}
	e.frames++
	return nil
}

// queue moves the pending sample into the current fragment with duration dur
// and writes the fragment out when it is full.
func (e *Encoder) queue(dur uint32) error {
	e.fragment = append(e.fragment, mp4.FullSample{
		Sample: mp4.Sample{
			Flags: mp4.SyncSampleFlags,
			Size:  uint32(len(e.pending.data)),
			Dur:   dur,
		},
		DecodeTime: e.pending.decodeTime,
		Data:       e.pending.data,
	})
	e.pending = nil

	limit := e.opts.KeyFrameInterval
	if limit <= 0 {
		limit = fragmentFlush
	}
	if len(e.fragment) >= limit {
		return e.flushFragment()
	}
	return nil
}

func (e *Encoder) flushFragment() error {
	if len(e.fragment) == 0 {
		return nil
	}
	e.seq++
	frag, err := mp4.CreateFragment(e.seq, 1)
	if err != nil {
		return fmt.Errorf("create fragment: %w", err)
	}
	for _, s := range e.fragment {
		frag.AddFullSample(s)
	}
	if err := frag.Encode(e.w); err != nil {
		return fmt.Errorf("encode fragment: %w", err)
	}
	e.fragment = e.fragment[:0]
	return e.w.Flush()
}

// End writes the remaining samples, closes the file and reports its size.
func (e *Encoder) End() (ports.EncodeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return ports.EncodeResult{}, ErrNotInitialized
	}
	f := e.file
	e.file = nil
	fail := func(err error) (ports.EncodeResult, error) {
		f.Close()
		return ports.EncodeResult{}, err
	}

	if e.pending != nil {
		if err := e.queue(uint32(float64(timescale) / e.opts.FPS)); err != nil {
			return fail(err)
		}
	}
	if err := e.flushFragment(); err != nil {
		return fail(err)
	}
	if err := e.w.Flush(); err != nil {
		return fail(fmt.Errorf("flush output: %w", err))
	}

	info, err := f.Stat()
	if err != nil {
		return fail(fmt.Errorf("stat output: %w", err))
	}
	if err := f.Close(); err != nil {
		return ports.EncodeResult{}, fmt.Errorf("close output: %w", err)
	}

	return ports.EncodeResult{Bytes: info.Size(), Frames: e.frames}, nil
}

// Abort closes the file without flushing pending samples.
func (e *Encoder) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file != nil {
		e.file.Close()
		e.file = nil
	}
	e.pending = nil
	e.fragment = nil
}

// Ensure Encoder implements ports.VideoEncoder
var _ ports.VideoEncoder = (*Encoder)(nil)
