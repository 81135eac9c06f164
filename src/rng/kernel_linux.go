//go:build linux

package rng

import (
	"errors"

	"golang.org/x/sys/unix"
)

// osFill fills p with getrandom(2), retrying on EINTR.
func osFill(p []byte) (int, error) {
	got := 0
	for got < len(p) {
		n, err := unix.Getrandom(p[got:], 0)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if n > 0 {
			got += n
		}
		if err != nil {
			return got, err
		}
		if n == 0 {
			return got, errors.New("getrandom returned no bytes")
		}
	}
	return got, nil
}
