package callbacks

import (
	"slices"

	"Athernet/internel/syncutil"
)

// Recorder appends every input period to its track and outputs silence.
type Recorder struct {
	mu    syncutil.Mutex
	track []int32
}

func (r *Recorder) Update(in, out []int32) {
	r.mu.Lock()
	r.track = append(r.track, in...)
	r.mu.Unlock()
	clear(out)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.track)
}

// Track returns a copy of what has been recorded.
func (r *Recorder) Track() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.track)
}
