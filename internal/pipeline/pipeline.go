// Package pipeline drives the render → diff → transmit cycle for one
// display target.
package pipeline

import (
	"context"
	"errors"
	"image"
	"log"
	"sync"
	"time"

	"github.com/umpdisplay/ump-matrix-display/internal/frame"
	"github.com/umpdisplay/ump-matrix-display/internal/protocol"
	"github.com/umpdisplay/ump-matrix-display/internal/render"
	"github.com/umpdisplay/ump-matrix-display/internal/transport"
)

// Pipeline owns the single render/transmit loop of one display target.
// At most one tick is in flight at a time; a slow link naturally skips
// intermediate ticks instead of queueing them.
type Pipeline struct {
	adapter   protocol.Adapter
	tr        transport.Transport
	threshold float64

	// opMu serializes the lifecycle operations (Submit, Clear, SetPower,
	// Stop) so stopping the old loop and installing a new one is atomic.
	opMu sync.Mutex

	// sendMu serializes every transport write. The BLE link chunks one
	// packet across several writes; interleaving two packets corrupts
	// reassembly on the device.
	sendMu sync.Mutex

	mu           sync.Mutex
	w, h         int
	icons        render.IconSource
	images       render.ImageSource
	brightness   uint8
	on           bool
	modeSet      bool
	req          *render.Request
	lastSent     *frame.Frame // nil = device state unknown, next send is a full frame
	lastComposed *frame.Frame

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a pipeline for a w×h display behind the given transport.
func New(w, h int, adapter protocol.Adapter, tr transport.Transport, threshold float64, icons render.IconSource, images render.ImageSource) *Pipeline {
	return &Pipeline{
		adapter:    adapter,
		tr:         tr,
		threshold:  threshold,
		w:          w,
		h:          h,
		icons:      icons,
		images:     images,
		brightness: 255,
		on:         true,
	}
}

// env snapshots the render environment under the lock.
func (p *Pipeline) env() *render.Env {
	return &render.Env{W: p.w, H: p.h, Brightness: p.brightness, Icons: p.icons, Images: p.images}
}

// Submit replaces the active draw request. The previous cycle, including
// any pending retry, is cancelled before the new loop starts. The
// request must already be validated.
func (p *Pipeline) Submit(req *render.Request) {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.stopLoop()

	p.mu.Lock()
	p.req = req
	from := p.lastComposed
	env := p.env()
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	done := make(chan struct{})
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		p.ensureReady(ctx)
		if req.Transition != nil {
			p.runTransition(ctx, req, from, env)
		}
		p.loop(ctx, req)
	}()
}

// stopLoop cancels the running loop and waits for its safe point.
func (p *Pipeline) stopLoop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// send is the single funnel for transport writes. Packets go out whole:
// the BLE link splits one packet into MTU chunks, so two callers writing
// at once would interleave chunks and break reassembly on the device.
func (p *Pipeline) send(ctx context.Context, pkt []byte) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	return p.tr.Send(ctx, pkt)
}

// ensureReady pushes power-on and draw-mode packets before the first
// frame. Failures are logged; the frame sends will retry the link anyway.
func (p *Pipeline) ensureReady(ctx context.Context) {
	p.mu.Lock()
	on, modeSet := p.on, p.modeSet
	p.mu.Unlock()

	if !on {
		if pkt, err := p.adapter.EncodeState(true); err == nil {
			if err := p.send(ctx, pkt); err != nil {
				log.Printf("pipeline: power-on failed: %v", err)
				return
			}
		}
		p.mu.Lock()
		p.on = true
		p.mu.Unlock()
	}
	if !modeSet {
		if pkt, err := p.adapter.EncodeMode(0); err == nil {
			if err := p.send(ctx, pkt); err != nil {
				log.Printf("pipeline: mode select failed: %v", err)
				return
			}
		}
		p.mu.Lock()
		p.modeSet = true
		p.mu.Unlock()
	}
}

// runTransition animates from the previously shown frame to the new
// request's first frame. Every transition frame is sent as a full frame.
func (p *Pipeline) runTransition(ctx context.Context, req *render.Request, from *frame.Frame, env *render.Env) {
	to, _ := render.Compose(req, env, 0)
	if from == nil {
		from = frame.New(env.W, env.H)
		from.Fill(env0Background(req, env))
	}

	steps := int(req.Transition.Duration * float64(req.FPS))
	if steps < 1 {
		steps = 1
	}
	delay := time.Second / time.Duration(req.FPS)

	for i := 0; i <= steps; i++ {
		if ctx.Err() != nil {
			return
		}
		progress := float64(i) / float64(steps)
		f := render.TransitionFrame(from, to, progress, req.Transition.Kind, env0Background(req, env))
		p.storeComposed(f)
		if err := p.sendPlan(ctx, frame.Plan{Full: f}); err != nil {
			log.Printf("pipeline: transition frame dropped: %v", err)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func env0Background(req *render.Request, env *render.Env) frame.RGB {
	b := uint16(env.Brightness)
	return frame.RGB{
		R: uint8(uint16(req.Background.R) * b / 255),
		G: uint8(uint16(req.Background.G) * b / 255),
		B: uint8(uint16(req.Background.B) * b / 255),
	}
}

// loop runs the tick cycle until cancelled. The ticker's one-slot buffer
// coalesces ticks that pile up behind a slow send.
func (p *Pipeline) loop(ctx context.Context, req *render.Request) {
	interval := time.Second / time.Duration(req.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	start := time.Now()

	// First frame immediately, then on the ticker.
	p.tick(ctx, req, 0)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, req, time.Since(start))
		}
	}
}

// tick composes, diffs against the last-sent snapshot, and transmits.
func (p *Pipeline) tick(ctx context.Context, req *render.Request, elapsed time.Duration) {
	p.mu.Lock()
	env := p.env()
	last := p.lastSent
	p.mu.Unlock()

	f, _ := render.Compose(req, env, elapsed)
	p.storeComposed(f)

	plan := frame.Diff(last, f, p.threshold)
	if plan.Empty() {
		return
	}
	if err := p.sendPlan(ctx, plan); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("pipeline: frame dropped: %v", err)
	}
}

// sendPlan encodes and transmits a diff plan, keeping the last-sent
// snapshot in lockstep with what the device actually shows. Any send
// error resets the snapshot to unknown so the next success is a
// self-healing full frame.
func (p *Pipeline) sendPlan(ctx context.Context, plan frame.Plan) error {
	var pkt []byte
	var err error
	if plan.IsFull() || !p.adapter.SupportsDiff() {
		full := plan.Full
		if full == nil {
			p.mu.Lock()
			base := p.lastSent
			p.mu.Unlock()
			full = plan.Apply(base)
		}
		pkt, err = p.adapter.EncodeFrame(full)
		plan = frame.Plan{Full: full}
	} else {
		pkt, err = p.adapter.EncodeDiff(p.w, p.h, plan.Pixels)
		if errors.Is(err, protocol.ErrUnsupportedOp) {
			p.mu.Lock()
			base := p.lastSent
			p.mu.Unlock()
			full := plan.Apply(base)
			plan = frame.Plan{Full: full}
			pkt, err = p.adapter.EncodeFrame(full)
		}
	}
	if err != nil {
		return err
	}

	if err := p.send(ctx, pkt); err != nil {
		p.mu.Lock()
		p.lastSent = nil
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	p.lastSent = plan.Apply(p.lastSent)
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) storeComposed(f *frame.Frame) {
	p.mu.Lock()
	p.lastComposed = f
	p.mu.Unlock()
}

// Clear stops the loop and blanks the device immediately, bypassing
// diffing.
func (p *Pipeline) Clear(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	return p.clear(ctx)
}

func (p *Pipeline) clear(ctx context.Context) error {
	p.stopLoop()

	p.mu.Lock()
	p.req = nil
	w, h := p.w, p.h
	p.mu.Unlock()

	blank := frame.New(w, h)
	pkt, err := p.adapter.EncodeClear(frame.RGB{})
	if errors.Is(err, protocol.ErrUnsupportedOp) {
		pkt, err = p.adapter.EncodeFrame(blank)
	}
	if err != nil {
		return err
	}
	if err := p.send(ctx, pkt); err != nil {
		p.mu.Lock()
		p.lastSent = nil
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	p.lastSent = blank
	p.lastComposed = blank
	p.mu.Unlock()
	return nil
}

// SyncTime pushes the current host clock to the device.
func (p *Pipeline) SyncTime(ctx context.Context, now time.Time) error {
	pkt, err := p.adapter.EncodeTimeSync(now)
	if err != nil {
		return err
	}
	return p.send(ctx, pkt)
}

// SetPower turns the device on or off. Turning off stops the render loop.
func (p *Pipeline) SetPower(ctx context.Context, on bool) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if !on {
		p.stopLoop()
	}
	pkt, err := p.adapter.EncodeState(on)
	if errors.Is(err, protocol.ErrUnsupportedOp) {
		// Families without a power packet get a blank frame instead.
		if !on {
			return p.clear(ctx)
		}
		err = nil
		pkt = nil
	}
	if err != nil {
		return err
	}
	if pkt != nil {
		if err := p.send(ctx, pkt); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.on = on
	if !on {
		p.lastSent = nil // panel content after power cycling is unknown
	}
	p.mu.Unlock()
	return nil
}

// SetBrightness rescales all subsequent frames. The running loop picks
// the change up on its next tick.
func (p *Pipeline) SetBrightness(b uint8) {
	p.mu.Lock()
	p.brightness = b
	p.mu.Unlock()
}

// Preview returns the most recently composed frame as a still image.
// It never touches pipeline state beyond reading the snapshot.
func (p *Pipeline) Preview() *image.RGBA {
	p.mu.Lock()
	f := p.lastComposed
	w, h := p.w, p.h
	p.mu.Unlock()
	if f == nil {
		f = frame.New(w, h)
	}
	return f.ToImage()
}

// LinkState exposes the transport's connection state.
func (p *Pipeline) LinkState() transport.State {
	return p.tr.State()
}

// Stop cancels the loop and closes the transport.
func (p *Pipeline) Stop() {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.stopLoop()
	p.tr.Close()
}
