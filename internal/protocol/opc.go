package protocol

import (
	"time"

	opc "github.com/kellydunn/go-opc"

	"github.com/umpdisplay/ump-matrix-display/internal/frame"
)

// OPC targets Open Pixel Control devices (fadecandy boards, simulators).
// The protocol only knows full pixel writes, so diff plans get upgraded
// to full frames and the control operations are not available.
type OPC struct {
	// Channel selects the OPC channel; 0 broadcasts.
	Channel uint8
}

func (OPC) Name() string       { return "opc" }
func (OPC) SupportsDiff() bool { return false }

func (o OPC) EncodeFrame(f *frame.Frame) ([]byte, error) {
	m := opc.NewMessage(o.Channel)
	m.SetLength(uint16(f.W * f.H * 3))
	for y := 0; y < f.H; y++ {
		for x := 0; x < f.W; x++ {
			c := f.At(x, y)
			m.SetPixelColor(y*f.W+x, c.R, c.G, c.B)
		}
	}
	return m.ByteArray(), nil
}

func (o OPC) EncodeDiff(_, _ int, _ []frame.Pixel) ([]byte, error) {
	return nil, ErrUnsupportedOp
}

func (o OPC) EncodeClear(bg frame.RGB) ([]byte, error) {
	// OPC has no fill command; callers pass the cleared frame through
	// EncodeFrame instead.
	return nil, ErrUnsupportedOp
}

func (OPC) EncodeTimeSync(time.Time) ([]byte, error) { return nil, ErrUnsupportedOp }
func (OPC) EncodeState(bool) ([]byte, error)         { return nil, ErrUnsupportedOp }
func (OPC) EncodeMode(uint8) ([]byte, error)         { return nil, ErrUnsupportedOp }
