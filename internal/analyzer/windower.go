package analyzer

// Windower slices a continuous stream of mono samples into analysis windows
// of a fixed size, advancing by hop samples between windows. hop < size
// gives overlapping windows, hop == size back-to-back ones.
type Windower struct {
	size int
	hop  int
	buf  []float32
}

// NewWindower creates a Windower. A hop outside (0, size] means size.
func NewWindower(size, hop int) *Windower {
	if hop <= 0 || hop > size {
		hop = size
	}
	return &Windower{
		size: size,
		hop:  hop,
		buf:  make([]float32, 0, size*2),
	}
}

// Push appends samples and calls emit for every complete window. The slice
// passed to emit is only valid for the duration of the call.
func (w *Windower) Push(samples []float32, emit func([]float32)) int {
	w.buf = append(w.buf, samples...)
	emitted := 0
	start := 0
	for len(w.buf)-start >= w.size {
		emit(w.buf[start : start+w.size])
		start += w.hop
		emitted++
	}
	if start > 0 {
		n := copy(w.buf, w.buf[start:])
		w.buf = w.buf[:n]
	}
	return emitted
}

// Reset drops any partial window.
func (w *Windower) Reset() {
	w.buf = w.buf[:0]
}
