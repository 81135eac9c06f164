package rng

import (
	"fmt"

	"go.uber.org/zap"
)

// SourceSpec is the validated, structured description of one enabled source.
type SourceSpec struct {
	Key  string
	Kind Kind

	// file
	Path string
	Loop bool

	// serial
	Serial SerialConfig

	// BufferSize > 0 wraps the source in a BufferedSource of that capacity.
	BufferSize int
}

// OpenSource opens the raw source described by spec.
func OpenSource(spec SourceSpec) (Source, error) {
	switch spec.Kind {
	case KindKernel:
		return NewKernelSource(spec.Key), nil
	case KindFile:
		return NewFileSource(spec.Key, spec.Path, spec.Loop)
	case KindSerial:
		return NewSerialSource(spec.Key, spec.Serial)
	default:
		return nil, sourceError(ErrConfiguration, spec.Key, fmt.Errorf("unknown source kind %q", spec.Kind))
	}
}

// BuildSourceSet opens every spec in order and returns the resulting set.
// A source that cannot be opened still occupies its slot as an unavailable
// member, so it contributes zero bytes instead of silently disappearing.
func BuildSourceSet(name string, specs []SourceSpec, log *zap.SugaredLogger) *SourceSet {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	sources := make([]Source, 0, len(specs))
	for _, spec := range specs {
		src, err := OpenSource(spec)
		if err != nil {
			log.Errorw("failed to open entropy source", "source", spec.Key, "kind", spec.Kind, "error", err)
			sources = append(sources, NewUnavailable(spec.Key, spec.Kind, err))
			continue
		}
		if spec.BufferSize > 0 {
			src = NewBufferedSource(src, spec.BufferSize, log)
		}
		log.Infow("initialized entropy source",
			"source", spec.Key, "kind", spec.Kind, "buffer_size", spec.BufferSize)
		sources = append(sources, src)
	}

	set := NewSourceSet(name, sources...)
	log.Infow("source set ready", "set", name, "members", set.Len())
	return set
}
