package rng_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lost-woods/entropyd/src/rng"
)

// cycleSource returns deterministic bytes counting up from start.
type cycleSource struct {
	key string
	b   byte
}

func (s *cycleSource) Key() string    { return s.key }
func (s *cycleSource) Kind() rng.Kind { return rng.KindKernel }
func (s *cycleSource) Close() error   { return nil }
func (s *cycleSource) Read(_ context.Context, n int) ([]byte, error) {
	p := make([]byte, n)
	for i := range p {
		p[i] = s.b
		s.b++
	}
	return p, nil
}

// xorshiftSource is a seeded pseudo-random stream.
type xorshiftSource struct {
	key string
	x   uint32
}

func (s *xorshiftSource) Key() string    { return s.key }
func (s *xorshiftSource) Kind() rng.Kind { return rng.KindKernel }
func (s *xorshiftSource) Close() error   { return nil }
func (s *xorshiftSource) Read(_ context.Context, n int) ([]byte, error) {
	p := make([]byte, n)
	for i := range p {
		s.x ^= s.x << 13
		s.x ^= s.x >> 17
		s.x ^= s.x << 5
		p[i] = byte(s.x >> 24)
	}
	return p, nil
}

// stallSource returns at most limit bytes of fill per read, then waits for
// the caller's deadline (or forever without one).
type stallSource struct {
	key   string
	fill  byte
	limit int
	err   error

	mu    sync.Mutex
	calls int
}

func (s *stallSource) Key() string    { return s.key }
func (s *stallSource) Kind() rng.Kind { return rng.KindFile }
func (s *stallSource) Close() error   { return nil }
func (s *stallSource) Read(ctx context.Context, n int) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	k := n
	if s.limit < k {
		k = s.limit
	}
	p := make([]byte, k)
	for i := range p {
		p[i] = s.fill
	}
	if s.err != nil {
		return p, s.err
	}
	if k == n {
		return p, nil
	}
	<-ctx.Done()
	return p, nil
}

// lateSource ignores its deadline and answers after delay.
type lateSource struct {
	key   string
	delay time.Duration
	fill  byte
}

func (s *lateSource) Key() string    { return s.key }
func (s *lateSource) Kind() rng.Kind { return rng.KindSerial }
func (s *lateSource) Close() error   { return nil }
func (s *lateSource) Read(_ context.Context, n int) ([]byte, error) {
	time.Sleep(s.delay)
	p := make([]byte, n)
	for i := range p {
		p[i] = s.fill
	}
	return p, nil
}

// stuckSource blocks in Read, whatever its deadline, until it is closed.
type stuckSource struct {
	key    string
	once   sync.Once
	closed chan struct{}
}

func newStuckSource(key string) *stuckSource {
	return &stuckSource{key: key, closed: make(chan struct{})}
}

func (s *stuckSource) Key() string    { return s.key }
func (s *stuckSource) Kind() rng.Kind { return rng.KindSerial }
func (s *stuckSource) Read(context.Context, int) ([]byte, error) {
	<-s.closed
	return nil, errors.New("port closed")
}

func (s *stuckSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// trickleSource produces chunk counting bytes per read, one read per every.
type trickleSource struct {
	key   string
	chunk int
	every time.Duration
	b     byte
}

func (s *trickleSource) Key() string    { return s.key }
func (s *trickleSource) Kind() rng.Kind { return rng.KindSerial }
func (s *trickleSource) Close() error   { return nil }
func (s *trickleSource) Read(ctx context.Context, n int) ([]byte, error) {
	select {
	case <-time.After(s.every):
	case <-ctx.Done():
		return nil, nil
	}
	p := make([]byte, min(n, s.chunk))
	for i := range p {
		p[i] = s.b
		s.b++
	}
	return p, nil
}

// reclaimSource answers after delay and records bytes handed back to it.
type reclaimSource struct {
	lateSource

	mu       sync.Mutex
	returned []byte
}

func (s *reclaimSource) Unread(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.returned = append(s.returned, p...)
}

func (s *reclaimSource) Returned() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.returned...)
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entropy.bin")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func withTimeout(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func xorAll(bufs ...[]byte) []byte {
	out := make([]byte, len(bufs[0]))
	for _, b := range bufs {
		for i := range out {
			out[i] ^= b[i]
		}
	}
	return out
}
