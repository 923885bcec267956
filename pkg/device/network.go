package device

import (
	"time"

	"golang.org/x/exp/rand"

	"Athernet/internel/syncutil"
)

// NetworkConfig wires every node's input and output to named buffers. A
// node hears the sum of all outputs written to its input buffer during
// the previous period.
type NetworkConfig[BufferIDType comparable] []struct {
	In  BufferIDType
	Out BufferIDType
}

type networkNode[BufferIDType comparable] struct {
	*Network[BufferIDType]
	input    []int32
	output   []int32
	callback func([]int32, []int32)
}

// Network simulates stations sharing acoustic channels. All nodes run in
// lockstep on one goroutine.
type Network[BufferIDType comparable] struct {
	SampleRate float64                     // the fake sample rate, 0 means no limit
	BufferSize int                         // samples per period, BufferSize when zero
	Config     NetworkConfig[BufferIDType] // the topology of the network
	Noise      int32                       // peak of uniform noise added to every buffer
	LateUpdate func()                      // the post process function

	mu      syncutil.Mutex
	rng     *rand.Rand
	buffers map[BufferIDType][]int32
	devices []*networkNode[BufferIDType]
	running int
	done    chan struct{}
	stopped chan struct{}
}

func (n *Network[BufferIDType]) size() int {
	if n.BufferSize == 0 {
		return BufferSize
	}
	return n.BufferSize
}

func (n *Network[BufferIDType]) getBuffer(name BufferIDType) []int32 {
	buf, ok := n.buffers[name]
	if !ok {
		buf = alloci32(n.size())
		n.buffers[name] = buf
	}
	return buf
}

// Build creates one device per Config entry.
func (n *Network[BufferIDType]) Build() []Device {
	n.buffers = make(map[BufferIDType][]int32)
	n.rng = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	devices := make([]Device, len(n.Config))
	for i, deviceConfig := range n.Config {
		d := &networkNode[BufferIDType]{
			Network: n,
			input:   n.getBuffer(deviceConfig.In),
			output:  alloci32(n.size()),
		}
		n.devices = append(n.devices, d)
		devices[i] = d
	}
	return devices
}

func (n *Network[BufferIDType]) update() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, d := range n.devices {
		if d.callback != nil {
			d.callback(d.input, d.output)
		} else {
			cleari32(d.output)
		}
	}

	// clear the buffers
	for _, buf := range n.buffers {
		cleari32(buf)
	}

	// sum up the output of all the devices to the input buffer
	for i, deviceConfig := range n.Config {
		buf := n.buffers[deviceConfig.Out]
		sumi32(buf, n.devices[i].output, buf)
	}

	if n.Noise > 0 {
		for _, buf := range n.buffers {
			for i := range buf {
				noise := n.rng.Int63n(2*int64(n.Noise)+1) - int64(n.Noise)
				buf[i] = sat32(int64(buf[i]) + noise)
			}
		}
	}

	if n.LateUpdate != nil {
		n.LateUpdate()
	}
}

func (n *Network[BufferIDType]) loop(done, stopped chan struct{}) {
	defer close(stopped)
	p := period(n.size(), n.SampleRate)
	if p == 0 {
		for {
			select {
			case <-done:
				return
			default:
				n.update()
			}
		}
	}
	ticker := time.NewTicker(p)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			n.update()
		}
	}
}

func (d *networkNode[BufferIDType]) Start(callback func([]int32, []int32)) error {
	n := d.Network
	n.mu.Lock()
	defer n.mu.Unlock()

	if d.callback == nil {
		n.running++
	}
	d.callback = callback
	if n.running == 1 && n.done == nil {
		n.done = make(chan struct{})
		n.stopped = make(chan struct{})
		go n.loop(n.done, n.stopped)
	}
	return nil
}

// Stop detaches the node. The shared clock stops with the last node.
func (d *networkNode[BufferIDType]) Stop() error {
	n := d.Network
	n.mu.Lock()
	if d.callback == nil {
		n.mu.Unlock()
		return nil
	}
	d.callback = nil
	n.running--
	var stopped chan struct{}
	if n.running == 0 {
		close(n.done)
		stopped = n.stopped
		n.done, n.stopped = nil, nil
	}
	n.mu.Unlock()

	if stopped != nil {
		<-stopped
	}
	return nil
}
