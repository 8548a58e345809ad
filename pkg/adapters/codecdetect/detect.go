// Package codecdetect inspects finished chunk files and reports the codec and
// geometry of their video track.
package codecdetect

import (
	"fmt"
	"io"
	"os"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/screenrec/pkg/pipeline"
)

// CodecUnknown is reported when no supported sample entry is found.
const CodecUnknown pipeline.Codec = "unknown"

// Info describes the video track of a chunk file.
type Info struct {
	Codec       pipeline.Codec
	SampleEntry string // four-character sample entry type, e.g. "hvc1"
	Width       int
	Height      int
	Fragmented  bool
	Fragments   int
}

// DetectFromFile detects the video codec used in an MP4 chunk file.
func DetectFromFile(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{Codec: CodecUnknown}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return DetectFromReader(f)
}

// DetectFromReader detects the video codec from an io.ReadSeeker.
func DetectFromReader(reader io.ReadSeeker) (Info, error) {
	mp4File, err := mp4.DecodeFile(reader)
	if err != nil {
		return Info{Codec: CodecUnknown}, fmt.Errorf("decode mp4: %w", err)
	}

	// Reset reader position for subsequent reads
	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return Info{Codec: CodecUnknown}, fmt.Errorf("seek: %w", err)
	}

	return detectFromMP4File(mp4File)
}

func detectFromMP4File(mp4File *mp4.File) (Info, error) {
	var traks []*mp4.TrakBox
	if mp4File.IsFragmented() && mp4File.Init != nil && mp4File.Init.Moov != nil {
		traks = mp4File.Init.Moov.Traks
	} else if mp4File.Moov != nil {
		traks = mp4File.Moov.Traks
	}

	for _, trak := range traks {
		info, ok := detectFromTrack(trak)
		if !ok {
			continue
		}
		info.Fragmented = mp4File.IsFragmented()
		for _, seg := range mp4File.Segments {
			info.Fragments += len(seg.Fragments)
		}
		return info, nil
	}

	return Info{Codec: CodecUnknown}, fmt.Errorf("no video track found")
}

func detectFromTrack(trak *mp4.TrakBox) (Info, bool) {
	if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
		return Info{}, false
	}
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return Info{}, false
	}

	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		info := Info{SampleEntry: child.Type(), Codec: codecForEntry(child.Type())}
		if info.Codec == CodecUnknown {
			continue
		}
		if vse, ok := child.(*mp4.VisualSampleEntryBox); ok {
			info.Width = int(vse.Width)
			info.Height = int(vse.Height)
		} else if trak.Tkhd != nil {
			// Sample entries mp4ff does not model, such as "jpeg", decode
			// as unknown boxes; fall back to the track header.
			info.Width = int(trak.Tkhd.Width >> 16)
			info.Height = int(trak.Tkhd.Height >> 16)
		}
		return info, true
	}

	return Info{}, false
}

func codecForEntry(entry string) pipeline.Codec {
	switch entry {
	case "hvc1", "hev1":
		return pipeline.CodecHEVC
	case "avc1", "avc3":
		return pipeline.CodecH264
	case "jpeg", "mjpa":
		return pipeline.CodecMJPEG
	case "av01":
		return "av1"
	default:
		return CodecUnknown
	}
}
