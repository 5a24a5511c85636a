package docker_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalnine/npubench/internal/bench"
	"github.com/signalnine/npubench/internal/docker"
)

func TestParseMount(t *testing.T) {
	tests := []struct {
		spec    string
		want    docker.Mount
		wantErr bool
	}{
		{spec: "/opt/npu:/opt/npu", want: docker.Mount{Source: "/opt/npu", Target: "/opt/npu"}},
		{spec: "/lib/npu:/usr/lib/npu:ro", want: docker.Mount{Source: "/lib/npu", Target: "/usr/lib/npu", ReadOnly: true}},
		{spec: "/a:/b:rw", want: docker.Mount{Source: "/a", Target: "/b"}},
		{spec: "/a", wantErr: true},
		{spec: "/a:/b:zz", wantErr: true},
		{spec: ":/b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := docker.ParseMount(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMount: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewRequiresImage(t *testing.T) {
	if _, err := docker.New(docker.Options{}, nil); err == nil {
		t.Error("expected error without image")
	}
}

func newRunner(t *testing.T) *docker.Runner {
	t.Helper()
	if os.Getenv("NPUBENCH_DOCKER_TESTS") == "" {
		t.Skip("set NPUBENCH_DOCKER_TESTS=1 to run Docker tests")
	}
	r, err := docker.New(docker.Options{Image: "alpine:latest"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRunContainer(t *testing.T) {
	r := newRunner(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "net_a.param"), []byte("graph"), 0o644)

	res := r.Run(ctx, bench.Invocation{
		Executable: "sh",
		Args:       []string{"-c", "cat net_a.param; echo; echo done > out.txt"},
		Dir:        dir,
		Timeout:    30 * time.Second,
	})
	if !res.Succeeded() {
		t.Fatalf("run failed: %s", res.Report())
	}
	if !strings.Contains(res.Stdout, "graph") {
		t.Errorf("stdout: got %q", res.Stdout)
	}
	content, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(content) != "done\n" {
		t.Errorf("output: got %q", content)
	}
}

func TestRunContainerTimeout(t *testing.T) {
	r := newRunner(t)
	res := r.Run(context.Background(), bench.Invocation{
		Executable: "sleep",
		Args:       []string{"300"},
		Dir:        t.TempDir(),
		Timeout:    2 * time.Second,
	})
	if !res.TimedOut {
		t.Error("expected timeout")
	}
	if !strings.HasPrefix(res.Report(), "Error: Command execution timeout") {
		t.Errorf("report: %q", res.Report())
	}
}

func TestRunContainerCrash(t *testing.T) {
	r := newRunner(t)
	res := r.Run(context.Background(), bench.Invocation{
		Executable: "sh",
		Args:       []string{"-c", "exit 3"},
		Dir:        t.TempDir(),
		Timeout:    10 * time.Second,
	})
	if res.ReturnCode == nil || *res.ReturnCode != 3 {
		t.Fatalf("exit code: got %v", res.ReturnCode)
	}
	if !strings.Contains(res.Report(), "Execution failed!") {
		t.Errorf("report: %q", res.Report())
	}
}
