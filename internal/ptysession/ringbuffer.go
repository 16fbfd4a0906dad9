package ptysession

import "github.com/GAIR-NLP/agentcore/pkg/types"

// ringBuffer is a fixed-capacity FIFO of output lines; the oldest entry
// drops when full (spec.md section 4.1, "Oldest entries drop when full").
// Not safe for concurrent use; callers hold Session.mu.
type ringBuffer struct {
	lines []types.OutputLine
	cap   int
	start int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{lines: make([]types.OutputLine, 0, capacity), cap: capacity}
}

func (r *ringBuffer) Append(line types.OutputLine) {
	if len(r.lines) < r.cap {
		r.lines = append(r.lines, line)
		return
	}
	r.lines[r.start] = line
	r.start = (r.start + 1) % r.cap
}

// Snapshot returns the buffered lines in chronological order.
func (r *ringBuffer) Snapshot() []types.OutputLine {
	if len(r.lines) < r.cap {
		out := make([]types.OutputLine, len(r.lines))
		copy(out, r.lines)
		return out
	}
	out := make([]types.OutputLine, r.cap)
	copy(out, r.lines[r.start:])
	copy(out[r.cap-r.start:], r.lines[:r.start])
	return out
}
