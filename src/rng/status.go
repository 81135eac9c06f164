package rng

// Status is the outcome code returned with every read.
type Status uint32

const (
	// StatusOK means every requested byte was produced from every source.
	StatusOK Status = 0
	// StatusPartial means a deadline cut the result short; the bytes are
	// valid but fewer than requested.
	StatusPartial Status = 1
	// StatusError means no usable entropy was collected.
	StatusError Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusPartial:
		return "partial"
	default:
		return "error"
	}
}

// Result is what a single Generate call produces.
type Result struct {
	Status Status
	Bytes  []byte
	Err    error // set when Status is StatusError
}
