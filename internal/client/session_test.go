package client_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/signalnine/npubench/internal/client"
	"github.com/signalnine/npubench/internal/wire"
	"github.com/stretchr/testify/require"
)

type received struct {
	req   wire.RunRequest
	count uint32
	names []string
}

// fakeBoard accepts one session, stores the files under a temp dir and answers
// with reply.
func fakeBoard(t *testing.T, reply string) (string, <-chan received) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	root := t.TempDir()

	out := make(chan received, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var got received
		raw, err := wire.ReadBytes(conn)
		if err != nil {
			return
		}
		got.req, _ = wire.DecodeRequest(raw)
		got.count, _ = wire.ReadUint32(conn)
		for range got.count {
			name, _, err := wire.ReceiveFile(conn, root)
			if err != nil {
				return
			}
			got.names = append(got.names, name)
		}
		out <- got
		wire.WriteString(conn, reply)
	}()
	return ln.Addr().String(), out
}

func TestRunModel(t *testing.T) {
	addr, got := fakeBoard(t, "=== Return code: 0 ===\n")
	b, err := client.LoadBundle(writeBundle(t, t.TempDir(), "net_a", "x.bin"), true)
	require.NoError(t, err)

	req := wire.NewRunRequest("net_a", []string{"-r", "10"})
	req.UseGolden = true
	c := &client.Client{Addr: addr, DialTimeout: time.Second, IOTimeout: 5 * time.Second}
	resp, err := c.RunModel(context.Background(), req, b)
	require.NoError(t, err)
	require.Equal(t, "=== Return code: 0 ===\n", resp)

	r := <-got
	require.Equal(t, req, r.req)
	require.Equal(t, uint32(3), r.count)
	require.Equal(t, []string{"net_a.bin", "net_a.param", "golden/x.bin"}, r.names)
}

func TestRunModelTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(2 * time.Second)
		}
	}()

	b, err := client.LoadBundle(writeBundle(t, t.TempDir(), "net_a"), false)
	require.NoError(t, err)
	c := &client.Client{Addr: ln.Addr().String(), IOTimeout: 200 * time.Millisecond}
	_, err = c.RunModel(context.Background(), wire.NewRunRequest("net_a", nil), b)
	require.Error(t, err)
	require.Equal(t, "Error: Connection timeout", c.ErrorText(err))
}

func TestErrorTextRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	b, err := client.LoadBundle(writeBundle(t, t.TempDir(), "net_a"), false)
	require.NoError(t, err)
	c := &client.Client{Addr: addr, DialTimeout: time.Second}
	_, err = c.RunModel(context.Background(), wire.NewRunRequest("net_a", nil), b)
	require.Error(t, err)
	require.Equal(t, "Error: Cannot connect to ARM board "+addr+", please confirm server is running", c.ErrorText(err))
}

func TestErrorTextNoResult(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	root := t.TempDir()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// Drain the whole session, then hang up without answering.
		wire.ReadBytes(conn)
		n, _ := wire.ReadUint32(conn)
		for range n {
			wire.ReceiveFile(conn, root)
		}
		conn.Close()
	}()

	b, err := client.LoadBundle(writeBundle(t, t.TempDir(), "net_a"), false)
	require.NoError(t, err)
	c := &client.Client{Addr: ln.Addr().String()}
	_, err = c.RunModel(context.Background(), wire.NewRunRequest("net_a", nil), b)
	require.Error(t, err)
	require.Equal(t, "Error: No execution result received", c.ErrorText(err))
}

func TestWaitForServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	require.NoError(t, client.WaitForServer(context.Background(), ln.Addr().String(), time.Second, 10*time.Millisecond))

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := closed.Addr().String()
	closed.Close()
	require.Error(t, client.WaitForServer(context.Background(), addr, 100*time.Millisecond, 10*time.Millisecond))
}
