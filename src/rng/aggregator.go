package rng

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultStragglerGrace is how long the aggregator keeps collecting after a
// deadline, so members that stop on the deadline can still hand in their
// partial bytes.
const DefaultStragglerGrace = 5 * time.Millisecond

// Aggregator reads every member of a SourceSet concurrently and XORs the
// results into one output.
type Aggregator struct {
	set   *SourceSet
	log   *zap.SugaredLogger
	grace time.Duration

	mu      sync.Mutex
	refs    int
	retired bool
	idle    chan struct{} // closed once retired with no reads in flight
}

func NewAggregator(set *SourceSet, grace time.Duration, log *zap.SugaredLogger) *Aggregator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if grace <= 0 {
		grace = DefaultStragglerGrace
	}
	return &Aggregator{set: set, log: log, grace: grace, idle: make(chan struct{})}
}

func (a *Aggregator) Set() *SourceSet { return a.set }

// acquire registers an in-flight read. It fails once the aggregator has been
// retired.
func (a *Aggregator) acquire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.retired {
		return false
	}
	a.refs++
	return true
}

func (a *Aggregator) release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refs--
	if a.retired && a.refs == 0 {
		close(a.idle)
	}
}

// retire refuses further reads and returns a channel that is closed once the
// reads already in flight have finished.
func (a *Aggregator) retire() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.retired {
		a.retired = true
		if a.refs == 0 {
			close(a.idle)
		}
	}
	return a.idle
}

type memberResult struct {
	idx int
	p   []byte
	err error
}

// Generate produces n bytes, each the XOR of the byte at the same position
// from every member. When ctx has a deadline the output is truncated to the
// longest prefix every member filled, and the status says so.
func (a *Aggregator) Generate(ctx context.Context, n int) Result {
	if a.set == nil || a.set.Len() == 0 {
		a.log.Error("no enabled entropy sources configured")
		return Result{Status: StatusError, Err: ErrConfiguration}
	}
	if n < 0 {
		return Result{Status: StatusError, Err: ErrInvalidRequest}
	}

	members := a.set.Members()
	results := a.collect(ctx, members, n)

	common := n
	for i, r := range results {
		if r.err != nil {
			a.log.Warnw("entropy source returned an error",
				"source", members[i].Key(), "bytes", len(r.p), "error", r.err)
		} else {
			a.log.Debugw("entropy source produced bytes", "source", members[i].Key(), "bytes", len(r.p))
		}
		if len(r.p) < common {
			common = len(r.p)
		}
	}

	defer a.returnLeftovers(members, results, common)

	if common == 0 {
		if n == 0 {
			return Result{Status: StatusOK, Bytes: []byte{}}
		}
		return Result{Status: StatusError, Err: a.failure(results)}
	}

	out := make([]byte, common)
	copy(out, results[0].p[:common])
	for _, r := range results[1:] {
		subtle.XORBytes(out, out, r.p[:common])
	}

	if common < n {
		a.log.Infow("deadline limited entropy output", "requested", n, "produced", common)
		return Result{Status: StatusPartial, Bytes: out}
	}
	return Result{Status: StatusOK, Bytes: out}
}

// collect fans a read out to every member and gathers the results. A member
// that has not answered once the deadline and the grace period have passed
// counts as having produced nothing; if it answers later, its bytes go back
// to it.
func (a *Aggregator) collect(ctx context.Context, members []Source, n int) []memberResult {
	ch := make(chan memberResult, len(members))
	for i, m := range members {
		go func(i int, m Source) {
			p, err := m.Read(ctx, n)
			ch <- memberResult{idx: i, p: p, err: err}
		}(i, m)
	}

	results := make([]memberResult, len(members))
	pending := len(members)
	var grace <-chan time.Time
	done := ctx.Done()

	for pending > 0 {
		select {
		case r := <-ch:
			results[r.idx] = r
			pending--
		case <-done:
			done = nil
			t := time.NewTimer(a.grace)
			defer t.Stop()
			grace = t.C
		case <-grace:
			a.abandon(ch, members, pending)
			return results
		}
	}
	return results
}

// abandon drains the results of members that missed the deadline and hands
// their bytes back to them.
func (a *Aggregator) abandon(ch <-chan memberResult, members []Source, pending int) {
	go func() {
		for ; pending > 0; pending-- {
			r := <-ch
			a.log.Warnw("entropy source answered after the deadline",
				"source", members[r.idx].Key(), "bytes", len(r.p))
			if u, ok := members[r.idx].(Unreader); ok {
				u.Unread(r.p)
			}
		}
	}()
}

func (a *Aggregator) returnLeftovers(members []Source, results []memberResult, common int) {
	for i, r := range results {
		if len(r.p) <= common {
			continue
		}
		if u, ok := members[i].(Unreader); ok {
			u.Unread(r.p[common:])
		}
	}
}

// failure picks the error to report when nothing could be combined.
func (a *Aggregator) failure(results []memberResult) error {
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
		}
	}
	if len(errs) == 0 {
		return sourceError(ErrUnavailable, "", errors.New("no entropy collected before the deadline"))
	}
	return errors.Join(errs...)
}
