// Package protocol serializes frames, deltas and control operations into
// the binary formats of the supported device families.
package protocol

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/umpdisplay/ump-matrix-display/internal/frame"
)

// ErrUnsupportedOp is returned by adapters for operations a device family
// has no packet for. The pipeline degrades (full frame instead of diff,
// skip instead of fail) rather than aborting.
var ErrUnsupportedOp = fmt.Errorf("protocol: operation not supported by device family")

// Adapter encodes logical display operations into one device packet.
// The transport layer chunks packets to the link MTU.
type Adapter interface {
	Name() string
	SupportsDiff() bool
	EncodeFrame(f *frame.Frame) ([]byte, error)
	EncodeDiff(w, h int, pixels []frame.Pixel) ([]byte, error)
	EncodeClear(bg frame.RGB) ([]byte, error)
	EncodeTimeSync(t time.Time) ([]byte, error)
	EncodeState(on bool) ([]byte, error)
	EncodeMode(mode uint8) ([]byte, error)
}

// New returns the adapter for a device family name.
func New(family string) (Adapter, error) {
	switch family {
	case "ump", "":
		return UMP{}, nil
	case "opc":
		return OPC{}, nil
	}
	return nil, fmt.Errorf("protocol: unknown device family %q", family)
}

// Chunk splits a packet into MTU-sized link writes. The device reassembles
// using the total length carried in the packet header.
func Chunk(pkt []byte, mtu int) [][]byte {
	if mtu <= 0 || len(pkt) <= mtu {
		return [][]byte{pkt}
	}
	chunks := make([][]byte, 0, (len(pkt)+mtu-1)/mtu)
	for off := 0; off < len(pkt); off += mtu {
		end := off + mtu
		if end > len(pkt) {
			end = len(pkt)
		}
		chunks = append(chunks, pkt[off:end])
	}
	return chunks
}

// Command bytes of the UMP matrix family. Every packet opens with the
// two magic bytes, the command, and a big-endian u32 payload length.
const (
	umpMagic0 = 0x55 // 'U'
	umpMagic1 = 0x4D // 'M'

	cmdFrame    = 0x01 // full frame: w u16, h u16, packed RGB
	cmdDiff     = 0x02 // delta: count u16, then (x u8, y u8, r, g, b) tuples
	cmdClear    = 0x03 // fill: r, g, b
	cmdTimeSync = 0x04 // clock set: unix seconds u32
	cmdState    = 0x05 // power: 0x00 off, 0x01 on
	cmdMode     = 0x06 // device mode selector
)

const umpHeaderLen = 7

// UMP is the binary protocol of the UMP BLE matrix family.
type UMP struct{}

func (UMP) Name() string       { return "ump" }
func (UMP) SupportsDiff() bool { return true }

func umpPacket(cmd byte, payload []byte) []byte {
	pkt := make([]byte, umpHeaderLen+len(payload))
	pkt[0] = umpMagic0
	pkt[1] = umpMagic1
	pkt[2] = cmd
	binary.BigEndian.PutUint32(pkt[3:7], uint32(len(payload)))
	copy(pkt[umpHeaderLen:], payload)
	return pkt
}

func (UMP) EncodeFrame(f *frame.Frame) ([]byte, error) {
	payload := make([]byte, 4+len(f.Pix))
	binary.BigEndian.PutUint16(payload[0:2], uint16(f.W))
	binary.BigEndian.PutUint16(payload[2:4], uint16(f.H))
	copy(payload[4:], f.Pix)
	return umpPacket(cmdFrame, payload), nil
}

func (UMP) EncodeDiff(w, h int, pixels []frame.Pixel) ([]byte, error) {
	// Delta coordinates are single bytes on the wire; larger panels fall
	// back to full frames.
	if w > 256 || h > 256 {
		return nil, ErrUnsupportedOp
	}
	payload := make([]byte, 2+len(pixels)*5)
	binary.BigEndian.PutUint16(payload[0:2], uint16(len(pixels)))
	for i, p := range pixels {
		off := 2 + i*5
		payload[off] = uint8(p.X)
		payload[off+1] = uint8(p.Y)
		payload[off+2] = p.C.R
		payload[off+3] = p.C.G
		payload[off+4] = p.C.B
	}
	return umpPacket(cmdDiff, payload), nil
}

func (UMP) EncodeClear(bg frame.RGB) ([]byte, error) {
	return umpPacket(cmdClear, []byte{bg.R, bg.G, bg.B}), nil
}

func (UMP) EncodeTimeSync(t time.Time) ([]byte, error) {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(t.Unix()))
	return umpPacket(cmdTimeSync, payload), nil
}

func (UMP) EncodeState(on bool) ([]byte, error) {
	b := byte(0x00)
	if on {
		b = 0x01
	}
	return umpPacket(cmdState, []byte{b}), nil
}

func (UMP) EncodeMode(mode uint8) ([]byte, error) {
	return umpPacket(cmdMode, []byte{mode}), nil
}
