package render

import (
	"log"
	"time"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/umpdisplay/ump-matrix-display/internal/frame"
)

// Compose renders a full frame for the request at the given elapsed time:
// background fill, then every element in list order (painter's
// algorithm). A failing element is logged and skipped; earlier elements'
// pixels stay put. The returned states mirror the element order.
func Compose(req *Request, env *Env, elapsed time.Duration) (*frame.Frame, []State) {
	f := frame.New(env.W, env.H)
	f.Fill(env.scale(req.Background))

	states := make([]State, len(req.Elements))
	for i, el := range req.Elements {
		st, err := el.Render(f, env, elapsed)
		if err != nil {
			log.Printf("render: skipping element %d (%s): %v", i, el.Type(), err)
			continue
		}
		states[i] = st
	}
	return f, states
}

// TransitionFrame produces one intermediate frame of the whole-canvas
// animation between two composed frames. progress runs 0..1; easing is
// applied here.
func TransitionFrame(from, to *frame.Frame, progress float64, kind string, bg frame.RGB) *frame.Frame {
	w, h := to.W, to.H
	out := frame.New(w, h)
	out.Fill(bg)
	p := easeOutQuad(progress)

	switch kind {
	case TransitionSlideUp:
		off := int(p * float64(h))
		blit(out, from, 0, -off)
		blit(out, to, 0, h-off)
	case TransitionSlideDown:
		off := int(p * float64(h))
		blit(out, from, 0, off)
		blit(out, to, 0, -h+off)
	case TransitionSlideLeft:
		off := int(p * float64(w))
		blit(out, from, -off, 0)
		blit(out, to, w-off, 0)
	case TransitionSlideRight:
		off := int(p * float64(w))
		blit(out, from, off, 0)
		blit(out, to, -w+off, 0)
	case TransitionDissolve:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Set(x, y, mix(from.At(x, y), to.At(x, y), p))
			}
		}
	default:
		if p > 0.5 {
			return to.Clone()
		}
		return from.Clone()
	}
	return out
}

// blit copies src into dst at the given offset, clipping at the edges.
func blit(dst, src *frame.Frame, x0, y0 int) {
	for y := 0; y < src.H; y++ {
		for x := 0; x < src.W; x++ {
			dst.Set(x0+x, y0+y, src.At(x, y))
		}
	}
}

// mix blends two pixels in RGB space, matching the linear blend the
// device firmware's dissolve uses.
func mix(a, b frame.RGB, t float64) frame.RGB {
	ca := colorful.Color{R: float64(a.R) / 255, G: float64(a.G) / 255, B: float64(a.B) / 255}
	cb := colorful.Color{R: float64(b.R) / 255, G: float64(b.G) / 255, B: float64(b.B) / 255}
	m := ca.BlendRgb(cb, t)
	return frame.RGB{
		R: uint8(m.R*255 + 0.5),
		G: uint8(m.G*255 + 0.5),
		B: uint8(m.B*255 + 0.5),
	}
}
