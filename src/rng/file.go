package rng

import (
	"context"
	"errors"
	"io"
	"os"
	"time"
)

// FileSource reads sequentially from a file or device node.
//
// With loop set, reaching end of file rewinds to offset 0 so a fixed sample
// file can be replayed as a repeating stream. Without it the source returns
// what it read together with ErrExhausted, and every later read returns no
// bytes and ErrExhausted. An empty file is exhausted even when looping.
//
// The underlying handle is owned exclusively by the source; a FileSource is
// not safe for concurrent use (see LockedSource).
type FileSource struct {
	key    string
	path   string
	loop   bool
	f      *os.File
	offset int64
	done   failure
}

func NewFileSource(key, path string, loop bool) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, sourceError(ErrUnavailable, key, err)
	}
	return &FileSource{key: key, path: path, loop: loop, f: f}, nil
}

func (s *FileSource) Key() string  { return s.key }
func (s *FileSource) Kind() Kind   { return KindFile }
func (s *FileSource) Path() string { return s.path }

// Err reports why the source stopped producing bytes, or nil while it can
// still be read.
func (s *FileSource) Err() error { return s.done.get() }

func (s *FileSource) Close() error {
	s.done.set(sourceError(ErrUnavailable, s.key, os.ErrClosed))
	return s.f.Close()
}

func (s *FileSource) Read(ctx context.Context, n int) ([]byte, error) {
	if err := s.done.get(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	// Pollable descriptors (pipes, some character devices) honour read
	// deadlines; regular files return ErrNoDeadline and are checked between
	// chunks instead.
	if dl, ok := ctx.Deadline(); ok {
		if err := s.f.SetReadDeadline(dl); err == nil {
			defer s.f.SetReadDeadline(time.Time{}) //nolint:errcheck
		}
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
		m, err := s.f.Read(buf[got:end])
		got += m
		s.offset += int64(m)

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			if !s.loop || s.offset == 0 {
				return buf[:got], s.done.set(sourceError(ErrExhausted, s.key, nil))
			}
			if _, err := s.f.Seek(0, io.SeekStart); err != nil {
				return buf[:got], s.done.set(sourceError(ErrUnavailable, s.key, err))
			}
			s.offset = 0
		case errors.Is(err, os.ErrDeadlineExceeded):
			return buf[:got], nil
		default:
			return buf[:got], s.done.set(sourceError(ErrUnavailable, s.key, err))
		}
	}
	return buf[:got], nil
}
