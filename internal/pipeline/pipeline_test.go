package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/umpdisplay/ump-matrix-display/internal/protocol"
	"github.com/umpdisplay/ump-matrix-display/internal/render"
	"github.com/umpdisplay/ump-matrix-display/internal/transport"
)

// fakeTransport records every packet and can be told to fail sends.
type fakeTransport struct {
	mu       sync.Mutex
	sent     [][]byte
	failNext int
}

func (f *fakeTransport) Connect(ctx context.Context) error { return nil }

func (f *fakeTransport) Send(ctx context.Context, pkt []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return &transport.TransportError{Err: errors.New("link reset")}
	}
	f.sent = append(f.sent, append([]byte(nil), pkt...))
	return nil
}

func (f *fakeTransport) State() transport.State { return transport.StateConnected }
func (f *fakeTransport) Close() error           { return nil }

func (f *fakeTransport) packets() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func (f *fakeTransport) failNextSends(n int) {
	f.mu.Lock()
	f.failNext = n
	f.mu.Unlock()
}

func mustParse(t *testing.T, body string) *render.Request {
	t.Helper()
	req, err := render.ParseRequest([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func newTestPipeline(tr transport.Transport) *Pipeline {
	return New(32, 8, protocol.UMP{}, tr, 0, nil, nil)
}

const (
	cmdFrame = 0x01
	cmdDiff  = 0x02
	cmdClear = 0x03
)

func TestTickFullThenDelta(t *testing.T) {
	tr := &fakeTransport{}
	p := newTestPipeline(tr)
	ctx := context.Background()
	req := mustParse(t, `{"elements":[{"type":"pixels","pixels":[[0,0,255,0,0]]}]}`)

	// Device state unknown: first tick goes out as a full frame.
	p.tick(ctx, req, 0)
	pkts := tr.packets()
	if len(pkts) != 1 {
		t.Fatalf("got %d packets, want 1", len(pkts))
	}
	if pkts[0][2] != cmdFrame {
		t.Fatalf("first packet cmd = %#x, want full frame", pkts[0][2])
	}

	// Identical recompose: nothing to send.
	p.tick(ctx, req, time.Second)
	if got := tr.packets(); len(got) != 1 {
		t.Fatalf("steady state sent %d extra packets", len(got)-1)
	}

	// One pixel changes (brightness rescale): a delta packet.
	p.SetBrightness(128)
	p.tick(ctx, req, 2*time.Second)
	pkts = tr.packets()
	if len(pkts) != 2 {
		t.Fatalf("got %d packets, want 2", len(pkts))
	}
	if pkts[1][2] != cmdDiff {
		t.Errorf("third tick cmd = %#x, want delta", pkts[1][2])
	}
	// count u16 == 1, then x=0 y=0 r=128.
	if pkts[1][7] != 0 || pkts[1][8] != 1 {
		t.Errorf("delta count bytes = %#x %#x, want 1 pixel", pkts[1][7], pkts[1][8])
	}
	if pkts[1][11] != 128 {
		t.Errorf("delta red = %d, want 128", pkts[1][11])
	}
}

func TestSendFailureForcesFullResync(t *testing.T) {
	tr := &fakeTransport{}
	p := newTestPipeline(tr)
	ctx := context.Background()
	req := mustParse(t, `{"elements":[{"type":"pixels","pixels":[[0,0,255,0,0]]}]}`)

	p.tick(ctx, req, 0)
	if len(tr.packets()) != 1 {
		t.Fatal("seed frame not sent")
	}

	// The next delta is dropped by the link. The snapshot resets to
	// unknown, so the following successful send is a full frame even
	// though only one pixel differs.
	tr.failNextSends(1)
	p.SetBrightness(128)
	p.tick(ctx, req, time.Second)
	if len(tr.packets()) != 1 {
		t.Fatal("failed send should not record a packet")
	}

	p.tick(ctx, req, 2*time.Second)
	pkts := tr.packets()
	if len(pkts) != 2 {
		t.Fatalf("got %d packets, want 2", len(pkts))
	}
	if pkts[1][2] != cmdFrame {
		t.Errorf("post-failure packet cmd = %#x, want full frame", pkts[1][2])
	}
}

func TestOPCNeverDiffs(t *testing.T) {
	tr := &fakeTransport{}
	p := New(4, 4, protocol.OPC{}, tr, 0, nil, nil)
	ctx := context.Background()
	req := mustParse(t, `{"elements":[{"type":"pixels","pixels":[[0,0,255,0,0]]}]}`)

	p.tick(ctx, req, 0)
	p.SetBrightness(128)
	p.tick(ctx, req, time.Second)

	pkts := tr.packets()
	if len(pkts) != 2 {
		t.Fatalf("got %d packets, want 2", len(pkts))
	}
	for i, pkt := range pkts {
		// OPC set-pixel-colors message: 4-byte header plus full pixel data.
		if len(pkt) != 4+4*4*3 {
			t.Errorf("packet %d length = %d, want full frame", i, len(pkt))
		}
	}
}

func TestClear(t *testing.T) {
	tr := &fakeTransport{}
	p := newTestPipeline(tr)
	ctx := context.Background()
	req := mustParse(t, `{"elements":[{"type":"pixels","pixels":[[0,0,255,0,0]]}]}`)

	p.tick(ctx, req, 0)
	if err := p.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	pkts := tr.packets()
	if len(pkts) != 2 {
		t.Fatalf("got %d packets, want 2", len(pkts))
	}
	if pkts[1][2] != cmdClear {
		t.Errorf("clear cmd = %#x", pkts[1][2])
	}

	// The device is known blank now; recomposing an all-black request
	// sends only the lit pixel as a delta.
	blankReq := mustParse(t, `{"elements":[{"type":"pixels","pixels":[[5,5,0,0,0]]}]}`)
	p.tick(ctx, blankReq, 0)
	if got := tr.packets(); len(got) != 2 {
		t.Errorf("blank frame after clear sent %d extra packets", len(got)-2)
	}
}

func TestSetPowerOffResetsSnapshot(t *testing.T) {
	tr := &fakeTransport{}
	p := newTestPipeline(tr)
	ctx := context.Background()
	req := mustParse(t, `{"elements":[{"type":"pixels","pixels":[[0,0,255,0,0]]}]}`)

	p.tick(ctx, req, 0)
	if err := p.SetPower(ctx, false); err != nil {
		t.Fatal(err)
	}
	pkts := tr.packets()
	if len(pkts) != 2 {
		t.Fatalf("got %d packets, want 2", len(pkts))
	}
	if pkts[1][2] != 0x05 || pkts[1][7] != 0x00 {
		t.Errorf("power-off packet = %#v", pkts[1])
	}

	// Panel content after a power cycle is unknown: next frame is full.
	p.tick(ctx, req, time.Second)
	pkts = tr.packets()
	if pkts[len(pkts)-1][2] != cmdFrame {
		t.Error("first frame after power-off should be full")
	}
}

func TestSyncTime(t *testing.T) {
	tr := &fakeTransport{}
	p := newTestPipeline(tr)

	if err := p.SyncTime(context.Background(), time.Unix(0x01020304, 0)); err != nil {
		t.Fatal(err)
	}
	pkts := tr.packets()
	if len(pkts) != 1 || pkts[0][2] != 0x04 {
		t.Fatalf("timesync packets = %#v", pkts)
	}
	if pkts[0][7] != 0x01 || pkts[0][10] != 0x04 {
		t.Errorf("timesync seconds bytes = %#v", pkts[0][7:])
	}
}

func TestSubmitLifecycle(t *testing.T) {
	tr := &fakeTransport{}
	p := newTestPipeline(tr)
	defer p.Stop()

	p.Submit(mustParse(t, `{"elements":[{"type":"text","content":"Hi"}],"fps":30}`))

	// ensureReady selects the draw mode, then the first frame follows.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(tr.packets()) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	pkts := tr.packets()
	if len(pkts) < 2 {
		t.Fatalf("loop produced %d packets", len(pkts))
	}
	if pkts[0][2] != 0x06 {
		t.Errorf("first packet cmd = %#x, want mode select", pkts[0][2])
	}
	if pkts[1][2] != cmdFrame {
		t.Errorf("second packet cmd = %#x, want full frame", pkts[1][2])
	}

	p.Stop()
	n := len(tr.packets())
	time.Sleep(100 * time.Millisecond)
	if got := len(tr.packets()); got != n {
		t.Errorf("loop kept sending after Stop: %d -> %d packets", n, got)
	}
}

// overlapTransport flags any two Send calls that are in flight at the
// same time. A real BLE send is a sequence of MTU chunk writes, so
// overlapping packets interleave on the wire.
type overlapTransport struct {
	mu      sync.Mutex
	active  int
	total   int
	overlap bool
}

func (o *overlapTransport) Connect(ctx context.Context) error { return nil }

func (o *overlapTransport) Send(ctx context.Context, pkt []byte) error {
	o.mu.Lock()
	o.active++
	o.total++
	if o.active > 1 {
		o.overlap = true
	}
	o.mu.Unlock()

	time.Sleep(2 * time.Millisecond) // a chunked write takes a while

	o.mu.Lock()
	o.active--
	o.mu.Unlock()
	return nil
}

func (o *overlapTransport) State() transport.State { return transport.StateConnected }
func (o *overlapTransport) Close() error           { return nil }

func (o *overlapTransport) overlapped() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.overlap
}

func TestConcurrentOperationsNeverInterleaveSends(t *testing.T) {
	tr := &overlapTransport{}
	p := New(32, 8, protocol.UMP{}, tr, 0, nil, nil)
	defer p.Stop()

	// A marquee changes every tick, so the loop keeps the link busy.
	p.Submit(mustParse(t, `{"elements":[{"type":"scrolling_text","content":"HELLO"}],"fps":30}`))

	var wg sync.WaitGroup
	stop := time.Now().Add(300 * time.Millisecond)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(stop) {
				p.SyncTime(context.Background(), time.Now())
			}
		}()
	}
	wg.Wait()

	if tr.overlapped() {
		t.Error("transport saw two sends in flight at once")
	}
}

func TestConcurrentSubmitLeavesOneLoop(t *testing.T) {
	tr := &fakeTransport{}
	p := newTestPipeline(tr)

	req := mustParse(t, `{"elements":[{"type":"scrolling_text","content":"HELLO"}],"fps":30}`)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Submit(req)
		}()
	}
	wg.Wait()

	// Let whichever loop won run a few ticks, then stop it. A second
	// orphaned loop would keep sending past Stop.
	time.Sleep(100 * time.Millisecond)
	p.Stop()
	n := len(tr.packets())
	if n == 0 {
		t.Fatal("no loop survived the submit storm")
	}
	time.Sleep(150 * time.Millisecond)
	if got := len(tr.packets()); got != n {
		t.Errorf("sends continued after Stop: %d -> %d packets", n, got)
	}
}

func TestPreview(t *testing.T) {
	tr := &fakeTransport{}
	p := newTestPipeline(tr)
	req := mustParse(t, `{"elements":[{"type":"pixels","pixels":[[3,1,255,0,0]]}]}`)

	p.tick(context.Background(), req, 0)
	img := p.Preview()
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 8 {
		t.Fatalf("preview bounds = %v", img.Bounds())
	}
	if c := img.RGBAAt(3, 1); c.R != 255 {
		t.Errorf("preview pixel = %+v", c)
	}

	// Frame snapshot before any tick is a black canvas.
	fresh := newTestPipeline(&fakeTransport{})
	if img := fresh.Preview(); img.RGBAAt(0, 0).R != 0 {
		t.Error("fresh preview should be black")
	}
}
