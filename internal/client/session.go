package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/signalnine/npubench/internal/bench"
	"github.com/signalnine/npubench/internal/wire"
)

// Defaults for Client.
const (
	DefaultDialTimeout = 10 * time.Second
	DefaultIOTimeout   = 300 * time.Second
)

const (
	msgTimeout    = "Error: Connection timeout"
	msgNoResult   = "Error: No execution result received"
	msgRefusedFmt = "Error: Cannot connect to ARM board %s, please confirm server is running"
)

// Client talks to one board server.
type Client struct {
	Addr        string
	DialTimeout time.Duration
	// IOTimeout bounds the whole session after the connection is up,
	// including the wait for the benchmark.
	IOTimeout time.Duration
}

// RunModel sends req and the bundle in one session and returns the server's
// response text.
func (c *Client) RunModel(ctx context.Context, req wire.RunRequest, b *Bundle) (string, error) {
	dialTimeout := c.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	ioTimeout := c.IOTimeout
	if ioTimeout <= 0 {
		ioTimeout = DefaultIOTimeout
	}

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return "", fmt.Errorf("connecting to %s: %w", c.Addr, err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(ioTimeout)); err != nil {
		return "", fmt.Errorf("setting deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	cmd, err := wire.EncodeRequest(req)
	if err != nil {
		return "", fmt.Errorf("encoding command: %w", err)
	}
	if err := wire.WriteBytes(conn, cmd); err != nil {
		return "", fmt.Errorf("sending command: %w", err)
	}
	if err := wire.WriteUint32(conn, uint32(b.FileCount())); err != nil {
		return "", fmt.Errorf("sending file count: %w", err)
	}
	if _, err := wire.SendPath(conn, b.Bin, filepath.Base(b.Bin)); err != nil {
		return "", err
	}
	if _, err := wire.SendPath(conn, b.Param, filepath.Base(b.Param)); err != nil {
		return "", err
	}
	for _, g := range b.Golden {
		if _, err := wire.SendPath(conn, g, path.Join(bench.GoldenDir, filepath.Base(g))); err != nil {
			return "", err
		}
	}

	resp, err := wire.ReadString(conn)
	if err != nil {
		return "", fmt.Errorf("receiving result: %w", err)
	}
	return resp, nil
}

// ErrorText renders a session error as the result text recorded for a model.
func (c *Client) ErrorText(err error) string {
	var berr *BundleError
	var ne net.Error
	switch {
	case errors.As(err, &berr):
		return berr.Msg
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Sprintf(msgRefusedFmt, c.Addr)
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &ne) && ne.Timeout():
		return msgTimeout
	case errors.Is(err, wire.ErrShortRead):
		return msgNoResult
	}
	return "Error: " + err.Error()
}
