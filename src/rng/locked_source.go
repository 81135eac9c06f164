package rng

import (
	"context"
)

// LockedSource wraps a Source and serializes Read calls. Unbuffered sources
// are shared across concurrent requests, and their stream position must not
// be advanced by two reads at once. A caller whose deadline passes while
// waiting for its turn gets zero bytes.
type LockedSource struct {
	Source
	sem chan struct{}
}

func (ls *LockedSource) Read(ctx context.Context, n int) ([]byte, error) {
	select {
	case ls.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil
	}
	defer func() { <-ls.sem }()
	return ls.Source.Read(ctx, n)
}

// Unread hands p back to the wrapped source when it can take bytes back.
// The bytes are dropped if another read currently holds the source.
func (ls *LockedSource) Unread(p []byte) {
	u, ok := ls.Source.(Unreader)
	if !ok {
		return
	}
	select {
	case ls.sem <- struct{}{}:
	default:
		return
	}
	defer func() { <-ls.sem }()
	u.Unread(p)
}

func (ls *LockedSource) Close() error {
	ls.sem <- struct{}{}
	defer func() { <-ls.sem }()
	return ls.Source.Close()
}

// NewLockedSource returns a Source that is safe for concurrent use.
// If s is already a *LockedSource or a *BufferedSource, it is returned as-is.
func NewLockedSource(s Source) Source {
	if s == nil {
		return nil
	}
	switch s.(type) {
	case *LockedSource, *BufferedSource:
		return s
	}
	return &LockedSource{Source: s, sem: make(chan struct{}, 1)}
}
