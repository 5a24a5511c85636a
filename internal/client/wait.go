package client

import (
	"context"
	"fmt"
	"net"
	"time"
)

// WaitForServer dials addr until it accepts a connection or timeout passes.
func WaitForServer(ctx context.Context, addr string, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	for {
		dialCtx, dialCancel := context.WithTimeout(ctx, time.Second)
		conn, err := d.DialContext(dialCtx, "tcp", addr)
		dialCancel()
		if err == nil {
			conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("server %s not ready after %s: %w", addr, timeout, err)
		case <-time.After(interval):
		}
	}
}
