package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// ByteSize is a byte count that reads "2GiB", "500MB" or a plain integer.
type ByteSize int64

const (
	KiB ByteSize = humanize.KiByte
	MiB ByteSize = humanize.MiByte
	GiB ByteSize = humanize.GiByte
	TiB ByteSize = humanize.TiByte
)

// ParseByteSize parses a human readable size. Sizes that do not fit in an
// int64 are rejected.
func ParseByteSize(s string) (ByteSize, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, fmt.Errorf("empty size")
	}
	v, err := humanize.ParseBytes(t)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("size %q is out of range", s)
	}
	return ByteSize(v), nil
}

// String formats the size with a binary unit, rounded for display.
func (b ByteSize) String() string {
	if b < 0 {
		return strconv.FormatInt(int64(b), 10)
	}
	return humanize.IBytes(uint64(b))
}

// UnmarshalYAML accepts integers and size strings.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseByteSize(node.Value)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// MarshalYAML writes the human readable form when it reads back to the
// same value, and the exact byte count otherwise.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	if s := b.String(); b >= 0 {
		if v, err := ParseByteSize(s); err == nil && v == b {
			return s, nil
		}
	}
	return int64(b), nil
}
