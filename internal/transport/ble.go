package transport

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/umpdisplay/ump-matrix-display/internal/protocol"
)

// GATT endpoints of the UMP matrix family.
var (
	umpServiceUUID = bluetooth.New16BitUUID(0xFFF0)
	umpWriteUUID   = bluetooth.New16BitUUID(0xFFF1)
)

const (
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
	scanTimeout     = 10 * time.Second
)

// BLE is the Bluetooth Low Energy transport. One instance serves one
// device; Send is not safe for concurrent use, the pipeline serializes
// all device writes.
type BLE struct {
	stateTracker

	addr string
	mtu  int

	adapter *bluetooth.Adapter
	device  bluetooth.Device
	char    bluetooth.DeviceCharacteristic
	linked  bool
}

// NewBLE creates a transport for the device at the given MAC address.
// mtu bounds a single link write.
func NewBLE(addr string, mtu int) *BLE {
	if mtu <= 0 {
		mtu = 20 // conservative BLE 4.x payload
	}
	return &BLE{addr: addr, mtu: mtu, adapter: bluetooth.DefaultAdapter}
}

// Connect establishes the link with bounded retries and doubling backoff.
func (b *BLE) Connect(ctx context.Context) error {
	b.setState(StateConnecting, "")

	var lastErr error
	backoff := connectBackoff
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			b.setState(StateDisconnected, "")
			return err
		}
		if lastErr = b.connectOnce(ctx); lastErr == nil {
			b.setState(StateConnected, "")
			return nil
		}
		log.Printf("transport: connect %s attempt %d/%d: %v", b.addr, attempt, connectAttempts, lastErr)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			b.setState(StateDisconnected, "")
			return ctx.Err()
		}
		backoff *= 2
	}

	b.setState(StateDisconnected, "")
	return &ConnectionError{Addr: b.addr, Attempts: connectAttempts, Err: lastErr}
}

func (b *BLE) connectOnce(ctx context.Context) error {
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("enabling adapter: %w", err)
	}

	addr, err := b.scan(ctx)
	if err != nil {
		return err
	}

	dev, err := b.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	svcs, err := dev.DiscoverServices([]bluetooth.UUID{umpServiceUUID})
	if err != nil || len(svcs) == 0 {
		dev.Disconnect()
		return fmt.Errorf("discovering service: %w", err)
	}
	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{umpWriteUUID})
	if err != nil || len(chars) == 0 {
		dev.Disconnect()
		return fmt.Errorf("discovering characteristic: %w", err)
	}

	b.device = dev
	b.char = chars[0]
	b.linked = true
	return nil
}

// scan resolves the configured MAC address to a connectable address.
func (b *BLE) scan(ctx context.Context) (bluetooth.Address, error) {
	var found bluetooth.Address
	target := strings.ToUpper(b.addr)

	done := make(chan error, 1)
	go func() {
		done <- b.adapter.Scan(func(a *bluetooth.Adapter, res bluetooth.ScanResult) {
			if strings.EqualFold(res.Address.String(), target) {
				found = res.Address
				a.StopScan()
			}
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			return found, fmt.Errorf("scanning: %w", err)
		}
	case <-time.After(scanTimeout):
		b.adapter.StopScan()
		<-done
		return found, fmt.Errorf("device %s not seen within %v", b.addr, scanTimeout)
	case <-ctx.Done():
		b.adapter.StopScan()
		<-done
		return found, ctx.Err()
	}
	return found, nil
}

// Send writes one protocol packet, chunked to the MTU, one chunk at a
// time. A mid-send failure triggers a single reconnect and a retry of
// the whole packet; a second failure surfaces as TransportError.
func (b *BLE) Send(ctx context.Context, pkt []byte) error {
	if !b.linked {
		if err := b.Connect(ctx); err != nil {
			return err
		}
	}

	if err := b.writeChunks(ctx, pkt); err == nil {
		return nil
	} else {
		log.Printf("transport: write to %s failed, reconnecting: %v", b.addr, err)
		b.setState(StateDegraded, err.Error())
		b.drop()
	}

	if err := b.Connect(ctx); err != nil {
		return &TransportError{Err: err}
	}
	if err := b.writeChunks(ctx, pkt); err != nil {
		b.drop()
		b.setState(StateDisconnected, "")
		return &TransportError{Err: err}
	}
	return nil
}

func (b *BLE) writeChunks(ctx context.Context, pkt []byte) error {
	for _, chunk := range protocol.Chunk(pkt, b.mtu) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := b.char.WriteWithoutResponse(chunk); err != nil {
			return err
		}
	}
	return nil
}

// drop forgets the current link so the next send reconnects.
func (b *BLE) drop() {
	if b.linked {
		b.device.Disconnect()
		b.linked = false
	}
}

// Close tears the link down.
func (b *BLE) Close() error {
	b.drop()
	b.setState(StateDisconnected, "")
	return nil
}
