package rng

import (
	"errors"
)

// SourceSet is the fixed, ordered collection of sources that take part in
// one aggregation group. Membership never changes after construction; a
// configuration change builds a new set.
type SourceSet struct {
	name    string
	members []Source
}

// NewSourceSet builds a set from already constructed sources. Sources that
// are not buffered are wrapped so concurrent requests take turns on them.
func NewSourceSet(name string, sources ...Source) *SourceSet {
	members := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s == nil {
			continue
		}
		members = append(members, NewLockedSource(s))
	}
	return &SourceSet{name: name, members: members}
}

func (s *SourceSet) Name() string { return s.name }
func (s *SourceSet) Len() int     { return len(s.members) }

// Members returns the sources in configuration order.
func (s *SourceSet) Members() []Source {
	out := make([]Source, len(s.members))
	copy(out, s.members)
	return out
}

// Close closes every member and returns the joined errors.
func (s *SourceSet) Close() error {
	var errs []error
	for _, m := range s.members {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
