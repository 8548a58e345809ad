//go:build !linux && !darwin && !freebsd && !windows

package diskspace

import "errors"

func available(path string) (uint64, error) {
	return 0, errors.New("free space probe not supported on this platform")
}
