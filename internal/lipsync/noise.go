package lipsync

// noiseFloor tracks the quietest recent volume so the realtime silence
// threshold can follow the room.
type noiseFloor struct {
	window []float64
	pos    int
	filled bool
}

func newNoiseFloor(size int) *noiseFloor {
	return &noiseFloor{window: make([]float64, size)}
}

func (n *noiseFloor) observe(volume float64) {
	n.window[n.pos] = volume
	n.pos = (n.pos + 1) % len(n.window)
	if n.pos == 0 {
		n.filled = true
	}
}

func (n *noiseFloor) min() float64 {
	end := n.pos
	if n.filled {
		end = len(n.window)
	}
	if end == 0 {
		return 0
	}
	m := n.window[0]
	for _, v := range n.window[1:end] {
		if v < m {
			m = v
		}
	}
	return m
}

// threshold is the running minimum scaled by 1.5, never below base.
func (n *noiseFloor) threshold(base float64) float64 {
	if t := n.min() * 1.5; t > base {
		return t
	}
	return base
}
