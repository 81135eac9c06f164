package rng

// Ring is a fixed-capacity circular byte buffer. Only the Len bytes starting
// at the read cursor are ever exposed; consumed slots are zeroed so stale
// entropy never lingers in memory. Ring is not safe for concurrent use.
type Ring struct {
	buf  []byte
	head int // read cursor
	n    int // filled length
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		panic("rng: ring capacity must be positive")
	}
	return &Ring{buf: make([]byte, capacity)}
}

func (r *Ring) Cap() int  { return len(r.buf) }
func (r *Ring) Len() int  { return r.n }
func (r *Ring) Free() int { return len(r.buf) - r.n }

// Write appends up to Free() bytes of p and reports how many were stored.
func (r *Ring) Write(p []byte) int {
	if len(p) > r.Free() {
		p = p[:r.Free()]
	}
	tail := (r.head + r.n) % len(r.buf)
	c := copy(r.buf[tail:], p)
	if c < len(p) {
		copy(r.buf, p[c:])
	}
	r.n += len(p)
	return len(p)
}

// Take consumes and returns up to n bytes from the front.
func (r *Ring) Take(n int) []byte {
	if n > r.n {
		n = r.n
	}
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)
	c := copy(out, r.buf[r.head:])
	if c < n {
		copy(out[c:], r.buf)
	}
	r.zero(r.head, n)
	r.head = (r.head + n) % len(r.buf)
	r.n -= n
	return out
}

// Unread puts p back in front of the read cursor so those bytes are the
// next ones taken. When the ring lacks room, the newest buffered bytes are
// discarded to make it. At most Cap() bytes of p are kept.
func (r *Ring) Unread(p []byte) int {
	if len(p) > len(r.buf) {
		p = p[:len(r.buf)]
	}
	k := len(p)
	if k == 0 {
		return 0
	}
	if over := k - r.Free(); over > 0 {
		r.zero((r.head+r.n-over)%len(r.buf), over)
		r.n -= over
	}
	r.head = (r.head - k + len(r.buf)) % len(r.buf)
	c := copy(r.buf[r.head:], p)
	if c < k {
		copy(r.buf, p[c:])
	}
	r.n += k
	return k
}

// Reset discards all buffered bytes.
func (r *Ring) Reset() {
	r.zero(r.head, r.n)
	r.head, r.n = 0, 0
}

func (r *Ring) zero(from, n int) {
	for i := 0; i < n; i++ {
		r.buf[(from+i)%len(r.buf)] = 0
	}
}
