package frame

// Pixel is one changed grid cell in a delta plan.
type Pixel struct {
	X, Y int
	C    RGB
}

// DefaultFullThreshold is the changed-pixel fraction above which a full
// frame costs fewer bytes than per-pixel deltas. A delta pixel takes five
// wire bytes against three for its slot in a packed full frame, so the
// break-even sits at 3/5; rounded up to keep small frames honest.
const DefaultFullThreshold = 0.6

// Plan is the outcome of diffing two frames: either a full frame or the
// changed pixels. An empty Pixels slice with a nil Full means nothing
// needs sending.
type Plan struct {
	Full   *Frame
	Pixels []Pixel
}

// IsFull reports whether the plan carries a complete frame.
func (p Plan) IsFull() bool { return p.Full != nil }

// Empty reports whether nothing needs to be written to the device.
func (p Plan) Empty() bool { return p.Full == nil && len(p.Pixels) == 0 }

// Diff compares curr against the last frame known to be on the device.
// A nil prev means the device state is unknown (first send, or after a
// reconnect) and forces a full frame. threshold <= 0 selects the default.
func Diff(prev, curr *Frame, threshold float64) Plan {
	if threshold <= 0 {
		threshold = DefaultFullThreshold
	}
	if prev == nil || prev.W != curr.W || prev.H != curr.H {
		return Plan{Full: curr}
	}

	var changed []Pixel
	limit := int(float64(curr.W*curr.H) * threshold)
	for y := 0; y < curr.H; y++ {
		for x := 0; x < curr.W; x++ {
			c := curr.At(x, y)
			if c != prev.At(x, y) {
				changed = append(changed, Pixel{X: x, Y: y, C: c})
				if len(changed) > limit {
					return Plan{Full: curr}
				}
			}
		}
	}
	return Plan{Pixels: changed}
}

// Apply replays the plan on top of base and returns the resulting frame.
// For a full plan the result is a copy of the carried frame. Used to keep
// the last-sent snapshot in lockstep with the device, and by tests to
// verify the delta round-trip.
func (p Plan) Apply(base *Frame) *Frame {
	if p.Full != nil {
		return p.Full.Clone()
	}
	out := base.Clone()
	for _, px := range p.Pixels {
		out.Set(px.X, px.Y, px.C)
	}
	return out
}
