//go:build integration

package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalnine/npubench/cmd"
	"github.com/signalnine/npubench/internal/result"
)

const fakeRunner = `#!/bin/sh
echo "loading model"
echo "Performance:"
echo "Npu core: 0"
echo "Graph average time: 4.0 ms"
echo "Npu average time: 3.5 ms"
echo "Npu mem used: 10MB"
echo "Npu core: All"
echo "Graph total FPS: 250.0"
echo "args: $*"
`

// createFixtureModels creates a model root with two complete bundles and one
// without its .param file.
func createFixtureModels(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, name := range []string{"net_a", "net_b", "net_broken"} {
		dir := filepath.Join(root, name)
		os.MkdirAll(dir, 0o755)
		os.WriteFile(filepath.Join(dir, name+".bin"), []byte("weights"), 0o644)
		if name != "net_broken" {
			os.WriteFile(filepath.Join(dir, name+".param"), []byte("graph"), 0o644)
		}
	}
	return root
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().String()
}

func TestServeAndRun(t *testing.T) {
	runner := filepath.Join(t.TempDir(), "npu_runner")
	if err := os.WriteFile(runner, []byte(fakeRunner), 0o755); err != nil {
		t.Fatal(err)
	}
	addr := freeAddr(t)

	// Both trees are built before either runs; the commands share flag variables.
	serveRoot := cmd.NewRootCmd()
	serveRoot.SetArgs([]string{"serve", "--listen", addr, "--model-dir", t.TempDir(), "--runner", runner, "--timeout", "30s"})
	root := cmd.NewRootCmd()
	results := t.TempDir()
	root.SetArgs([]string{"run",
		"--server", addr,
		"--model-dir", createFixtureModels(t),
		"--results-dir", results,
		"-r", "5", "-n", "0",
		"--pace", "10ms",
		"--wait", "10s",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() { serveDone <- serveRoot.ExecuteContext(ctx) }()

	if err := root.Execute(); err != nil {
		t.Fatalf("run: %v", err)
	}

	runDir, err := filepath.EvalSymlinks(filepath.Join(results, "latest"))
	if err != nil {
		t.Fatalf("resolving latest: %v", err)
	}
	meta, err := result.ReadRunMeta(runDir)
	if err != nil {
		t.Fatalf("ReadRunMeta: %v", err)
	}
	if len(meta.Models) != 3 {
		t.Fatalf("models: got %d, want 3", len(meta.Models))
	}
	for _, m := range meta.Models {
		want := m.Name != "net_broken"
		if m.Passed != want {
			t.Errorf("%s: passed=%v, want %v", m.Name, m.Passed, want)
		}
	}

	raw, err := os.ReadFile(result.ModelFile(runDir, "net_a", meta.Stamp))
	if err != nil {
		t.Fatalf("reading model file: %v", err)
	}
	if !strings.Contains(string(raw), "args: -m ") || !strings.Contains(string(raw), "-r 5 -n 0 --peak_performance 4.0") {
		t.Errorf("runner args not forwarded:\n%s", raw)
	}

	csv, err := os.ReadFile(result.ExportPrefix(runDir, meta.Stamp) + ".csv")
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(csv)), "\n")
	if len(lines) != 3 {
		t.Errorf("csv rows: got %d, want header + 2\n%s", len(lines), csv)
	}

	cancel()
	select {
	case err := <-serveDone:
		if err != nil {
			t.Errorf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("serve did not stop")
	}
}
