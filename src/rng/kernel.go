package rng

import (
	"context"
)

// KernelSource reads from the operating system's randomness interface.
// It is treated as always available; the deadline is checked between
// chunks of at most readChunk bytes.
type KernelSource struct {
	key  string
	fill func([]byte) (int, error)
}

func NewKernelSource(key string) *KernelSource {
	return &KernelSource{key: key, fill: osFill}
}

func (s *KernelSource) Key() string  { return s.key }
func (s *KernelSource) Kind() Kind   { return KindKernel }
func (s *KernelSource) Close() error { return nil }

func (s *KernelSource) Read(ctx context.Context, n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}

	buf := make([]byte, n)
	got := 0
	for got < n {
		if expired(ctx) {
			break
		}
		end := got + readChunk
		if end > n {
			end = n
		}
		m, err := s.fill(buf[got:end])
		got += m
		if err != nil {
			return buf[:got], sourceError(ErrUnavailable, s.key, err)
		}
	}
	return buf[:got], nil
}
