package rng

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxRequestBytes caps a single request.
const DefaultMaxRequestBytes = 1 << 20

// Gateway is the call surface exposed to consumers. It forwards to the
// current Aggregator, which can be replaced wholesale on reload.
type Gateway struct {
	agg      atomic.Pointer[Aggregator]
	maxBytes uint64
	log      *zap.SugaredLogger
}

func NewGateway(agg *Aggregator, maxBytes uint64, log *zap.SugaredLogger) *Gateway {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if maxBytes == 0 {
		maxBytes = DefaultMaxRequestBytes
	}
	g := &Gateway{maxBytes: maxBytes, log: log}
	g.agg.Store(agg)
	return g
}

// Aggregator returns the aggregator currently serving requests.
func (g *Gateway) Aggregator() *Aggregator { return g.agg.Load() }

// Swap installs a new aggregator. The previous one stops taking reads, and
// its sources are closed once the reads already in flight on it have
// finished.
func (g *Gateway) Swap(agg *Aggregator) {
	old := g.agg.Swap(agg)
	if agg != nil && agg.Set() != nil {
		g.log.Infow("source set swapped", "members", agg.Set().Len())
	}
	if old == nil || old == agg || old.Set() == nil {
		return
	}
	go func() {
		<-old.retire()
		if err := old.Set().Close(); err != nil {
			g.log.Warnw("closing previous source set", "error", err)
		}
	}()
}

// acquire returns the current aggregator with a read registered on it, or
// nil when none is installed. An aggregator retired between the load and
// the registration has already been replaced, so the load is retried.
func (g *Gateway) acquire() *Aggregator {
	for {
		agg := g.agg.Load()
		if agg == nil || agg.acquire() {
			return agg
		}
	}
}

// Close closes the current source set.
func (g *Gateway) Close() error {
	agg := g.agg.Load()
	if agg == nil || agg.Set() == nil {
		return nil
	}
	return agg.Set().Close()
}

// ReadBytes blocks until num bytes are produced or every source has failed.
func (g *Gateway) ReadBytes(ctx context.Context, num uint64) (uint32, []byte) {
	res := g.Read(ctx, num, 0)
	return uint32(res.Status), res.Bytes
}

// ReadBytesTimeout is ReadBytes with a deadline of now + timeoutMs.
func (g *Gateway) ReadBytesTimeout(ctx context.Context, num, timeoutMs uint64) (uint32, []byte) {
	res := g.Read(ctx, num, Milliseconds(timeoutMs))
	return uint32(res.Status), res.Bytes
}

// Milliseconds converts a caller-supplied millisecond count to a Duration,
// saturating instead of overflowing.
func Milliseconds(ms uint64) time.Duration {
	if ms > uint64(math.MaxInt64/int64(time.Millisecond)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms) * time.Millisecond
}

// Read is the shared path behind ReadBytes and ReadBytesTimeout. A zero
// timeout means no deadline beyond what ctx already carries.
func (g *Gateway) Read(ctx context.Context, num uint64, timeout time.Duration) Result {
	if num > g.maxBytes {
		err := &Error{
			Code:    CodeInvalidRequest,
			Message: ErrInvalidRequest.Message,
			Cause:   fmt.Errorf("requested %d bytes exceeds the maximum of %d", num, g.maxBytes),
		}
		g.log.Errorw("rejected entropy request", "error", err)
		return Result{Status: StatusError, Err: err}
	}

	agg := g.acquire()
	if agg == nil {
		return Result{Status: StatusError, Err: ErrConfiguration}
	}
	defer agg.release()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res := agg.Generate(ctx, int(num))
	if res.Status == StatusError {
		g.log.Errorw("entropy request failed", "requested", num, "error", res.Err)
	}
	return res
}
