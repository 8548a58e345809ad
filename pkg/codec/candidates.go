package codec

import (
	"context"

	"github.com/user/screenrec/pkg/adapters/ffmpegencoder"
	"github.com/user/screenrec/pkg/adapters/mjpegencoder"
	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/ports"
)

// DefaultPreferences is the codec order used when none is configured.
var DefaultPreferences = []pipeline.Codec{pipeline.CodecHEVC, pipeline.CodecH264, pipeline.CodecMJPEG}

// Options configures the default candidate list.
type Options struct {
	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string
	// Preferences is the codec order. Defaults to DefaultPreferences.
	Preferences []pipeline.Codec
}

// DefaultCandidates expands codec preferences into concrete candidates:
// for each ffmpeg-backed codec the platform's hardware encoders come first,
// then the software encoder. MJPEG maps to the in-process baseline.
func DefaultCandidates(opts Options) []Candidate {
	prefs := opts.Preferences
	if len(prefs) == 0 {
		prefs = DefaultPreferences
	}

	ffmpegPath, findErr := ffmpegencoder.FindFFmpeg(opts.FFmpegPath)

	var candidates []Candidate
	for _, codec := range prefs {
		if codec == pipeline.CodecMJPEG {
			candidates = append(candidates, Candidate{
				Info:  Info{Name: "mjpeg", Codec: pipeline.CodecMJPEG, Backend: BackendBaseline},
				Probe: func(context.Context) error { return mjpegencoder.Probe() },
				New:   func() ports.VideoEncoder { return mjpegencoder.New() },
			})
			continue
		}

		names := ffmpegencoder.HardwareEncoders(codec)
		if sw := ffmpegencoder.SoftwareEncoder(codec); sw != "" {
			names = append(names, sw)
		}
		for _, name := range names {
			backend := BackendSoftware
			if ffmpegencoder.IsHardware(name) {
				backend = BackendHardware
			}
			candidates = append(candidates, ffmpegCandidate(codec, name, backend, ffmpegPath, findErr))
		}
	}
	return candidates
}

func ffmpegCandidate(codec pipeline.Codec, name string, backend Backend, ffmpegPath string, findErr error) Candidate {
	return Candidate{
		Info: Info{Name: name, Codec: codec, Backend: backend},
		Probe: func(ctx context.Context) error {
			if findErr != nil {
				return findErr
			}
			return ffmpegencoder.Probe(ctx, ffmpegPath, name)
		},
		New: func() ports.VideoEncoder {
			return ffmpegencoder.New(ffmpegPath, name)
		},
	}
}
