// Package codec selects the encoder a recording session uses.
//
// Candidates are tried in preference order, each probed exactly once; the
// first one that initializes wins and stays fixed for the whole session.
package codec

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/user/screenrec/pkg/pipeline"
	"github.com/user/screenrec/pkg/ports"
)

// Backend represents the kind of encoder behind a candidate.
type Backend string

const (
	// BackendHardware represents a GPU or media-engine encoder reached through ffmpeg.
	BackendHardware Backend = "hardware"
	// BackendSoftware represents a CPU encoder reached through ffmpeg.
	BackendSoftware Backend = "software"
	// BackendBaseline represents the in-process encoder that needs no external tools.
	BackendBaseline Backend = "baseline"
)

// Info contains information about a candidate or the selected encoder.
type Info struct {
	// Name is the encoder name, e.g. "hevc_videotoolbox" or "mjpeg".
	Name string
	// Codec is the codec family produced.
	Codec pipeline.Codec
	// Backend is the encoding backend.
	Backend Backend
	// FallbackUsed indicates that a more preferred candidate failed.
	FallbackUsed bool
}

// Factory creates a fresh encoder for one segment.
type Factory func() ports.VideoEncoder

// Candidate is one entry of the preference list.
type Candidate struct {
	Info
	// Probe proves the encoder can initialize on this machine.
	Probe func(ctx context.Context) error
	// New creates encoders once the candidate is selected.
	New Factory
}

// Handle is the selected encoder, fixed for the lifetime of a session.
type Handle struct {
	info    Info
	factory Factory
}

// NewHandle wraps a factory as a selected handle. Mostly useful in tests.
func NewHandle(info Info, factory Factory) *Handle {
	return &Handle{info: info, factory: factory}
}

// Info returns what was selected.
func (h *Handle) Info() Info {
	return h.info
}

// NewEncoder creates an encoder instance for one segment.
func (h *Handle) NewEncoder() ports.VideoEncoder {
	if h == nil || h.factory == nil {
		return nil
	}
	return h.factory()
}

// Attempt records the outcome of one probe.
type Attempt struct {
	Info Info
	Err  error
}

// UnavailableError is returned when every candidate failed.
// It matches pipeline.ErrCodecUnavailable with errors.Is.
type UnavailableError struct {
	Attempts []Attempt
}

func (e *UnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return "codec unavailable: no candidates configured"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Info.Name, a.Err))
	}
	return "codec unavailable: " + strings.Join(parts, "; ")
}

func (e *UnavailableError) Is(target error) bool {
	return target == pipeline.ErrCodecUnavailable
}

func (e *UnavailableError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Provider selects a codec from an ordered candidate list.
type Provider struct {
	candidates []Candidate
	logger     ports.Logger
}

// NewProvider creates a provider over candidates, most preferred first.
func NewProvider(candidates []Candidate, logger ports.Logger) *Provider {
	return &Provider{
		candidates: candidates,
		logger:     logger.WithComponent("codec"),
	}
}

// Candidates lists the configured candidates in preference order.
func (p *Provider) Candidates() []Info {
	infos := make([]Info, 0, len(p.candidates))
	for _, c := range p.candidates {
		infos = append(infos, c.Info)
	}
	return infos
}

// Select probes candidates in order and returns the first that initializes.
// Each candidate is probed at most once. When all fail the returned error
// is an *UnavailableError carrying every attempt.
func (p *Provider) Select(ctx context.Context) (*Handle, error) {
	var attempts []Attempt

	for i, c := range p.candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := probe(ctx, c)
		if err != nil {
			p.logger.Debug("Codec candidate %s unavailable: %v", c.Name, err)
			attempts = append(attempts, Attempt{Info: c.Info, Err: err})
			continue
		}

		info := c.Info
		info.FallbackUsed = i > 0
		if info.FallbackUsed {
			p.logger.Warn("Preferred codecs unavailable, falling back to %s", c.Name)
		}
		p.logger.Info("Selected codec %s (%s, %s)", info.Name, info.Codec, info.Backend)
		return &Handle{info: info, factory: c.New}, nil
	}

	return nil, &UnavailableError{Attempts: attempts}
}

// Availability probes every candidate without stopping at the first success.
func (p *Provider) Availability(ctx context.Context) []Attempt {
	attempts := make([]Attempt, 0, len(p.candidates))
	for _, c := range p.candidates {
		attempts = append(attempts, Attempt{Info: c.Info, Err: probe(ctx, c)})
	}
	return attempts
}

var errNoFactory = errors.New("candidate has no factory")

func probe(ctx context.Context, c Candidate) error {
	if c.New == nil {
		return errNoFactory
	}
	if c.Probe == nil {
		return nil
	}
	return c.Probe(ctx)
}
