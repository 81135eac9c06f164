//go:build !linux

package rng

import (
	"crypto/rand"
)

func osFill(p []byte) (int, error) {
	return rand.Read(p)
}
