package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCP streams packets to Open Pixel Control servers (fadecandy bridges,
// simulators). OPC messages are self-delimiting, so no chunking happens
// at this layer.
type TCP struct {
	stateTracker

	addr string
	conn net.Conn
}

func NewTCP(addr string) *TCP {
	return &TCP{addr: addr}
}

func (t *TCP) Connect(ctx context.Context) error {
	t.setState(StateConnecting, "")

	var lastErr error
	backoff := connectBackoff
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		d := net.Dialer{Timeout: 5 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", t.addr)
		if err == nil {
			t.conn = conn
			t.setState(StateConnected, "")
			return nil
		}
		lastErr = err
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			t.setState(StateDisconnected, "")
			return ctx.Err()
		}
		backoff *= 2
	}

	t.setState(StateDisconnected, "")
	return &ConnectionError{Addr: t.addr, Attempts: connectAttempts, Err: lastErr}
}

func (t *TCP) Send(ctx context.Context, pkt []byte) error {
	if t.conn == nil {
		if err := t.Connect(ctx); err != nil {
			return err
		}
	}

	if err := t.write(pkt); err == nil {
		return nil
	} else {
		t.setState(StateDegraded, err.Error())
		t.conn.Close()
		t.conn = nil
	}

	if err := t.Connect(ctx); err != nil {
		return &TransportError{Err: err}
	}
	if err := t.write(pkt); err != nil {
		t.conn.Close()
		t.conn = nil
		t.setState(StateDisconnected, "")
		return &TransportError{Err: err}
	}
	return nil
}

func (t *TCP) write(pkt []byte) error {
	n, err := t.conn.Write(pkt)
	if err != nil {
		return err
	}
	if n != len(pkt) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(pkt))
	}
	return nil
}

func (t *TCP) Close() error {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.setState(StateDisconnected, "")
	return nil
}
