package vm

// ---------------------------------------------------------------------------
// Thread: the call stack
// ---------------------------------------------------------------------------

// Thread is the single thread of control: an explicit LIFO stack of frames.
// Execution is driven by one flat loop over this stack rather than by host
// recursion, so guest call depth is not bounded by the goroutine stack.
type Thread struct {
	frames   []*Frame
	limit    int
	maxDepth int
}

// NewThread creates an empty call stack holding at most limit frames.
// A limit of zero means unbounded.
func NewThread(limit int) *Thread {
	return &Thread{limit: limit}
}

// Push makes frame the current activation.
func (t *Thread) Push(f *Frame) error {
	if t.limit > 0 && len(t.frames) >= t.limit {
		return ErrFrameOverflow
	}
	t.frames = append(t.frames, f)
	if len(t.frames) > t.maxDepth {
		t.maxDepth = len(t.frames)
	}
	return nil
}

// Pop discards the current activation and returns it.
func (t *Thread) Pop() (*Frame, error) {
	if len(t.frames) == 0 {
		return nil, ErrStackUnderflow
	}
	f := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	return f, nil
}

// Current returns the currently executing frame, or nil when idle.
func (t *Thread) Current() *Frame {
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

// Depth returns the current call-stack depth.
func (t *Thread) Depth() int {
	return len(t.frames)
}

// MaxDepth returns the deepest the call stack has been since the last reset.
func (t *Thread) MaxDepth() int {
	return t.maxDepth
}

// Reset discards all frames and clears the depth high-water mark.
func (t *Thread) Reset() {
	t.frames = t.frames[:0]
	t.maxDepth = 0
}

// scanRoots calls visit for every reference reachable from any frame on the
// call stack.
func (t *Thread) scanRoots(visit func(Ref)) {
	for _, f := range t.frames {
		f.scanRoots(visit)
	}
}
