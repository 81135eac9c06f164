package rng

import (
	"context"
	"strings"
	"sync"
	"time"
)

// SourceHealth describes the availability of one member. It says nothing
// about the statistical quality of the bytes.
type SourceHealth struct {
	Key      string `json:"key"`
	Kind     Kind   `json:"kind"`
	State    string `json:"state"`
	Buffered int    `json:"buffered,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
	Error    string `json:"error,omitempty"`
}

type Health struct {
	mu            sync.RWMutex
	ok            bool
	lastErr       string
	lastCheckedAt time.Time
	sources       []SourceHealth
}

func NewHealth() *Health { return &Health{ok: false} }

// Set records the outcome of a check along with the per-member view that
// produced it.
func (h *Health) Set(ok bool, errMsg string, sources ...SourceHealth) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ok = ok
	h.lastErr = errMsg
	h.lastCheckedAt = time.Now()
	h.sources = sources
}

func (h *Health) Snapshot() (ok bool, errMsg string, t time.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ok, h.lastErr, h.lastCheckedAt
}

// Sources returns the per-member view recorded by the last check.
func (h *Health) Sources() []SourceHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]SourceHealth, len(h.sources))
	copy(out, h.sources)
	return out
}

// InspectSource reports the availability of a single member.
func InspectSource(s Source) SourceHealth {
	sh := SourceHealth{Key: s.Key(), Kind: s.Kind(), State: "direct"}
	if ls, ok := s.(*LockedSource); ok {
		s = ls.Source
	}
	switch v := s.(type) {
	case *BufferedSource:
		st := v.Stats()
		sh.State = st.State.String()
		sh.Buffered = st.Buffered
		sh.Capacity = st.Capacity
		if st.Err != nil {
			sh.Error = st.Err.Error()
		}
	case Failer:
		if err := v.Err(); err != nil {
			sh.State = StateClosed.String()
			sh.Error = err.Error()
		}
	}
	return sh
}

// usable reports whether a member can still contribute bytes. A closed
// buffered member counts until its buffer is drained.
func (sh SourceHealth) usable() bool {
	return sh.State != StateClosed.String() || sh.Buffered > 0
}

// CheckSources records the availability of every member of set. Every
// member contributes to every output byte, so the set is healthy only while
// all of them can still produce bytes.
func CheckSources(set *SourceSet, h *Health) bool {
	var members []Source
	if set != nil {
		members = set.Members()
	}

	sources := make([]SourceHealth, 0, len(members))
	var down []string
	for _, m := range members {
		sh := InspectSource(m)
		if !sh.usable() {
			down = append(down, sh.Key)
		}
		sources = append(sources, sh)
	}

	ok, msg := true, ""
	switch {
	case len(members) == 0:
		ok, msg = false, ErrConfiguration.Message
	case len(down) > 0:
		ok, msg = false, "entropy sources unavailable: "+strings.Join(down, ", ")
	}

	h.Set(ok, msg, sources...)
	return ok
}

// PeriodicHealthCheck re-checks the gateway's current source set every
// interval until ctx is done.
func PeriodicHealthCheck(ctx context.Context, g *Gateway, h *Health, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var set *SourceSet
			if agg := g.Aggregator(); agg != nil {
				set = agg.Set()
			}
			CheckSources(set, h)
		}
	}
}
