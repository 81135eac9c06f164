package rng

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/tarm/serial"
)

// SerialConfig describes a hardware TRNG attached to a serial port
// (e.g. a USB CDC device at /dev/ttyACM0).
type SerialConfig struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

// DefaultSerialReadTimeout applies when SerialConfig.ReadTimeout is unset.
// A zero port timeout makes reads block until a byte arrives, so a stalled
// device could never be cancelled.
const DefaultSerialReadTimeout = 100 * time.Millisecond

// SerialSource reads from a hardware TRNG over a serial port. Port read
// timeouts surface as zero-byte reads and are retried until the caller's
// deadline; any other error closes the source.
type SerialSource struct {
	key  string
	port io.ReadCloser
	done failure
}

func NewSerialSource(key string, cfg SerialConfig) (*SerialSource, error) {
	if cfg.Device == "" {
		return nil, sourceError(ErrConfiguration, key, errors.New("serial device is required"))
	}
	if cfg.Baud <= 0 {
		return nil, sourceError(ErrConfiguration, key, errors.New("serial baud rate must be positive"))
	}

	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultSerialReadTimeout
	}

	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		Size:        8,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, sourceError(ErrUnavailable, key, err)
	}
	return newSerialSource(key, p), nil
}

func newSerialSource(key string, port io.ReadCloser) *SerialSource {
	return &SerialSource{key: key, port: port}
}

func (s *SerialSource) Key() string { return s.key }
func (s *SerialSource) Kind() Kind  { return KindSerial }

func (s *SerialSource) Err() error { return s.done.get() }

// Close closes the port. A read blocked on the port returns with an error.
func (s *SerialSource) Close() error {
	s.done.set(sourceError(ErrUnavailable, s.key, errors.New("closed")))
	return s.port.Close()
}

func (s *SerialSource) Read(ctx context.Context, n int) ([]byte, error) {
	if err := s.done.get(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	buf := make([]byte, n)
	got := 0
	for got < n {
		if expired(ctx) {
			break
		}
		m, err := s.port.Read(buf[got:])
		got += m
		if err != nil && !errors.Is(err, io.EOF) {
			return buf[:got], s.done.set(sourceError(ErrUnavailable, s.key, err))
		}
	}
	return buf[:got], nil
}
