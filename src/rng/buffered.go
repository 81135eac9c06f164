package rng

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// State is the replenishment state of a BufferedSource.
type State int32

const (
	StateIdle State = iota
	StateReplenishing
	StateFull
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReplenishing:
		return "replenishing"
	case StateFull:
		return "full"
	default:
		return "closed"
	}
}

const (
	// replenishChunk caps a single replenishment read so slow devices hand
	// over bytes as they arrive instead of only once the buffer is full.
	replenishChunk = 512
	// replenishSlice bounds how long one replenishment read may run.
	replenishSlice = 100 * time.Millisecond
	// idleEvery paces replenishment reads that made no progress.
	idleEvery = 10 * time.Millisecond
	// closeWait bounds how long Close waits for an in-flight replenishment
	// read to notice cancellation.
	closeWait = 2 * replenishSlice
)

// BufferStats is a point-in-time view of a BufferedSource.
type BufferStats struct {
	State    State
	Buffered int
	Capacity int
	Draining int // reads in flight
	Err      error
}

// BufferedSource decouples request latency from a slow Source by keeping a
// ring buffer topped up from a background goroutine. The mutex guards only
// buffer state and is never held across a read of the wrapped source.
type BufferedSource struct {
	src     Source
	log     *zap.SugaredLogger
	limiter *rate.Limiter

	mu       sync.Mutex
	ring     *Ring
	state    State
	err      error
	draining int
	filled   chan struct{} // closed and replaced whenever waiters should recheck
	space    chan struct{}

	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewBufferedSource wraps src with a ring buffer of the given capacity and
// starts replenishing it immediately. The BufferedSource owns src from here
// on and closes it in Close.
func NewBufferedSource(src Source, capacity int, log *zap.SugaredLogger) *BufferedSource {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &BufferedSource{
		src:     src,
		log:     log.With("source", src.Key()),
		limiter: rate.NewLimiter(rate.Every(idleEvery), 1),
		ring:    NewRing(capacity),
		filled:  make(chan struct{}),
		space:   make(chan struct{}, 1),
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	go b.replenish(ctx)
	return b
}

func (b *BufferedSource) Key() string { return b.src.Key() }
func (b *BufferedSource) Kind() Kind  { return b.src.Kind() }

func (b *BufferedSource) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		State:    b.state,
		Buffered: b.ring.Len(),
		Capacity: b.ring.Cap(),
		Draining: b.draining,
		Err:      b.err,
	}
}

// Read returns n bytes straight from the buffer when enough are present.
// Otherwise it drains what is there and waits for the replenisher; when ctx
// expires it returns whatever it collected. Once the wrapped source has
// failed, remaining buffered bytes are still served, after which reads
// return the failure.
func (b *BufferedSource) Read(ctx context.Context, n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}

	b.mu.Lock()
	b.draining++
	defer func() {
		b.mu.Lock()
		b.draining--
		b.mu.Unlock()
	}()

	var out []byte
	for {
		if p := b.ring.Take(n - len(out)); len(p) > 0 {
			out = append(out, p...)
			b.signalSpace()
		}
		if len(out) == n {
			b.mu.Unlock()
			return out, nil
		}
		if b.state == StateClosed {
			err := b.err
			b.mu.Unlock()
			return out, err
		}
		wait := b.filled
		b.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return out, nil
		}
		b.mu.Lock()
	}
}

// Unread returns bytes that this source produced but that were not emitted.
// They become the next bytes served, displacing the newest buffered bytes
// if the buffer is full.
func (b *BufferedSource) Unread(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateClosed && errors.Is(b.err, ErrUnavailable) {
		return
	}
	if b.ring.Unread(p) > 0 {
		b.broadcast()
	}
}

// Close stops replenishment, discards buffered bytes and closes the wrapped
// source. Later reads fail with ErrUnavailable. A replenishment read that
// does not honour cancellation within closeWait is unblocked by closing the
// wrapped source underneath it.
func (b *BufferedSource) Close() error {
	b.cancel()

	var err error
	srcClosed := false
	select {
	case <-b.stopped:
	case <-time.After(closeWait):
		b.log.Warnw("entropy source ignored cancellation; closing it under the reader")
		err = b.src.Close()
		srcClosed = true
		<-b.stopped
	}

	b.mu.Lock()
	b.ring.Reset()
	b.state = StateClosed
	b.err = sourceError(ErrUnavailable, b.src.Key(), errors.New("closed"))
	b.broadcast()
	b.mu.Unlock()

	if !srcClosed {
		err = b.src.Close()
	}
	return err
}

func (b *BufferedSource) replenish(ctx context.Context) {
	defer close(b.stopped)

	for {
		b.mu.Lock()
		free := b.ring.Free()
		if free == 0 {
			b.state = StateFull
		} else {
			b.state = StateReplenishing
		}
		b.mu.Unlock()

		if free == 0 {
			select {
			case <-b.space:
				continue
			case <-ctx.Done():
				return
			}
		}

		want := free
		if want > replenishChunk {
			want = replenishChunk
		}
		sliceCtx, cancel := context.WithTimeout(ctx, replenishSlice)
		p, err := b.src.Read(sliceCtx, want)
		cancel()

		b.mu.Lock()
		if len(p) > 0 {
			b.ring.Write(p)
			b.broadcast()
		}
		if err != nil {
			b.state = StateClosed
			b.err = err
			b.broadcast()
		}
		b.mu.Unlock()

		if err != nil {
			if errors.Is(err, ErrExhausted) {
				b.log.Warnw("entropy source exhausted", "buffered", b.Stats().Buffered)
			} else {
				b.log.Errorw("entropy source failed; replenishment stopped", "error", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		if len(p) == 0 {
			if err := b.limiter.Wait(ctx); err != nil {
				return
			}
		}
	}
}

// broadcast wakes every waiting reader. Must hold b.mu.
func (b *BufferedSource) broadcast() {
	close(b.filled)
	b.filled = make(chan struct{})
}

// signalSpace wakes the replenisher if it is parked on a full buffer.
func (b *BufferedSource) signalSpace() {
	select {
	case b.space <- struct{}{}:
	default:
	}
}
