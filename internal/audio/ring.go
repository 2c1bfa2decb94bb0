package audio

import "sync"

// Ring keeps the most recent capacity bytes of raw PCM so a finalization
// failure can still recover the tail of a recording.
type Ring struct {
	mu    sync.Mutex
	buf   []byte
	start int
	size  int
}

// NewRing builds a ring sized to hold roughly seconds of s16le audio.
func NewRing(sampleRate, channels, seconds int) *Ring {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	if seconds <= 0 {
		seconds = 30
	}
	return &Ring{buf: make([]byte, sampleRate*channels*2*seconds)}
}

// Write appends PCM, evicting the oldest bytes once full.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(p)
	if n >= len(r.buf) {
		copy(r.buf, p[n-len(r.buf):])
		r.start = 0
		r.size = len(r.buf)
		return n, nil
	}

	end := (r.start + r.size) % len(r.buf)
	first := copy(r.buf[end:], p)
	copy(r.buf, p[first:])

	r.size += n
	if r.size > len(r.buf) {
		r.start = (r.start + r.size - len(r.buf)) % len(r.buf)
		r.size = len(r.buf)
	}
	return n, nil
}

// Bytes returns the buffered tail, oldest first.
func (r *Ring) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, r.size)
	first := copy(out, r.buf[r.start:min(r.start+r.size, len(r.buf))])
	copy(out[first:], r.buf[:r.size-first])
	return out
}

// Reset drops all buffered audio.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = 0
	r.size = 0
}
