// Package callbacks holds device callbacks for diagnostics and tests.
package callbacks

import "Athernet/internel/syncutil"

// Player plays Track once, then silence.
type Player struct {
	mu    syncutil.Mutex
	idx   int
	Track []int32
}

func (p *Player) Update(in, out []int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := copy(out, p.Track[p.idx:])
	p.idx += n
	clear(out[n:])
}

func (p *Player) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idx == len(p.Track)
}

func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idx = 0
}
