package frame

import (
	"math/rand"
	"testing"
)

func TestDiffUnknownDeviceState(t *testing.T) {
	curr := New(4, 4)
	if p := Diff(nil, curr, 0); !p.IsFull() {
		t.Error("nil prev must force a full frame")
	}

	prev := New(8, 2)
	if p := Diff(prev, curr, 0); !p.IsFull() {
		t.Error("dimension mismatch must force a full frame")
	}
}

func TestDiffIdentical(t *testing.T) {
	prev := New(4, 4)
	prev.Fill(RGB{10, 20, 30})
	curr := prev.Clone()

	p := Diff(prev, curr, 0)
	if !p.Empty() {
		t.Errorf("identical frames should yield an empty plan, got full=%v pixels=%d",
			p.IsFull(), len(p.Pixels))
	}
}

func TestDiffSparseChanges(t *testing.T) {
	prev := New(8, 8)
	curr := prev.Clone()
	curr.Set(1, 2, RGB{255, 0, 0})
	curr.Set(7, 7, RGB{0, 0, 255})

	p := Diff(prev, curr, 0)
	if p.IsFull() {
		t.Fatal("two changed pixels out of 64 should stay a delta")
	}
	if len(p.Pixels) != 2 {
		t.Fatalf("got %d changed pixels, want 2", len(p.Pixels))
	}
	// Row-major scan order.
	if p.Pixels[0] != (Pixel{X: 1, Y: 2, C: RGB{255, 0, 0}}) {
		t.Errorf("first pixel = %+v", p.Pixels[0])
	}
	if p.Pixels[1] != (Pixel{X: 7, Y: 7, C: RGB{0, 0, 255}}) {
		t.Errorf("second pixel = %+v", p.Pixels[1])
	}
}

func TestDiffThreshold(t *testing.T) {
	// 10x10 grid: 60 changed pixels is the break-even limit, 61 tips over.
	tests := []struct {
		changed  int
		wantFull bool
	}{
		{59, false},
		{60, false},
		{61, true},
		{100, true},
	}
	for _, tt := range tests {
		prev := New(10, 10)
		curr := prev.Clone()
		for i := 0; i < tt.changed; i++ {
			curr.Set(i%10, i/10, RGB{R: 1})
		}
		p := Diff(prev, curr, 0.6)
		if p.IsFull() != tt.wantFull {
			t.Errorf("%d changed: full = %v, want %v", tt.changed, p.IsFull(), tt.wantFull)
		}
	}
}

func TestDiffApplyRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	prev := New(16, 8)
	for i := range prev.Pix {
		prev.Pix[i] = uint8(rng.Intn(256))
	}
	for trial := 0; trial < 50; trial++ {
		curr := prev.Clone()
		for n := rng.Intn(30); n > 0; n-- {
			curr.Set(rng.Intn(16), rng.Intn(8), RGB{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
			})
		}

		p := Diff(prev, curr, 0)
		got := p.Apply(prev)
		if !got.Equal(curr) {
			t.Fatalf("trial %d: applying the plan to prev does not reproduce curr", trial)
		}

		// Once applied, a second diff must be empty.
		if q := Diff(got, curr, 0); !q.Empty() {
			t.Fatalf("trial %d: second diff not empty", trial)
		}
		prev = curr
	}
}

func TestDiffApplyFull(t *testing.T) {
	curr := New(2, 2)
	curr.Fill(RGB{9, 9, 9})
	p := Diff(nil, curr, 0)

	got := p.Apply(nil)
	if !got.Equal(curr) {
		t.Error("full plan must reproduce curr from any base")
	}
	got.Set(0, 0, RGB{1, 1, 1})
	if got.Equal(curr) {
		t.Error("Apply must return an independent copy")
	}
}
