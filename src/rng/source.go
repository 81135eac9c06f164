package rng

import (
	"context"
	"sync"
)

// Kind names a source variant as it appears in configuration.
type Kind string

const (
	KindKernel Kind = "lrng"
	KindFile   Kind = "file"
	KindSerial Kind = "serial"
)

// Source is a single raw entropy channel.
//
// Read returns between 0 and n bytes. When ctx carries a deadline, Read
// returns early with whatever it collected and a nil error; without one it
// blocks until n bytes are available or the source fails permanently. The
// returned slice holds only bytes that were actually read. A non-nil error
// means the source will not produce more; the bytes returned alongside it are
// still valid.
type Source interface {
	Key() string
	Kind() Kind
	Read(ctx context.Context, n int) ([]byte, error)
	Close() error
}

// Unreader is implemented by sources that can take back bytes they produced
// but that were never emitted, so they serve a later request.
type Unreader interface {
	Unread(p []byte)
}

// Failer is implemented by sources that remember a permanent failure, so
// their state can be inspected without reading from them.
type Failer interface {
	Err() error
}

// failure records the first permanent error of a source. It is safe to
// inspect while a read is in progress.
type failure struct {
	mu  sync.Mutex
	err error
}

func (f *failure) set(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
	return f.err
}

func (f *failure) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// readChunk is the most a source reads between deadline checks.
const readChunk = 4096

// unavailableSource stands in for a source that could not be opened.
type unavailableSource struct {
	key  string
	kind Kind
	err  error
}

// NewUnavailable returns a Source that fails every read with ErrUnavailable.
func NewUnavailable(key string, kind Kind, cause error) Source {
	return &unavailableSource{key: key, kind: kind, err: sourceError(ErrUnavailable, key, cause)}
}

func (s *unavailableSource) Key() string  { return s.key }
func (s *unavailableSource) Kind() Kind   { return s.kind }
func (s *unavailableSource) Close() error { return nil }
func (s *unavailableSource) Err() error   { return s.err }

func (s *unavailableSource) Read(context.Context, int) ([]byte, error) {
	return nil, s.err
}

// expired reports whether ctx is done without blocking.
func expired(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
