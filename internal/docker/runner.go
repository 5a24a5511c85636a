// Package docker runs the benchmark inside a container on the board, for
// setups where the runtime libraries live in an image rather than on the host.
package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
	"github.com/signalnine/npubench/internal/bench"
	"github.com/signalnine/npubench/internal/logging"
	"go.uber.org/zap"
)

type Options struct {
	Image       string
	CPULimit    float64
	MemoryLimit int64
	ExtraMounts []Mount
	Devices     []string
	Network     string
}

type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ParseMount parses "source:target[:ro]".
func ParseMount(spec string) (Mount, error) {
	parts := strings.Split(spec, ":")
	switch {
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return Mount{Source: parts[0], Target: parts[1]}, nil
	case len(parts) == 3 && parts[0] != "" && parts[1] != "" && (parts[2] == "ro" || parts[2] == "rw"):
		return Mount{Source: parts[0], Target: parts[1], ReadOnly: parts[2] == "ro"}, nil
	}
	return Mount{}, fmt.Errorf("invalid mount %q, want source:target[:ro]", spec)
}

// Runner implements bench.Runner by starting one container per invocation. The
// invocation's directory is bind-mounted at the same path and used as the
// working directory. The container has a TTY, so stdout and stderr arrive
// merged in Execution.Stdout.
type Runner struct {
	cli  *client.Client
	opts Options
	log  *zap.Logger
}

func New(opts Options, log *zap.Logger) (*Runner, error) {
	if opts.Image == "" {
		return nil, fmt.Errorf("docker runner: image is required")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Runner{cli: cli, opts: opts, log: logging.OrNop(log)}, nil
}

func (r *Runner) Close() error {
	return r.cli.Close()
}

func (r *Runner) Run(ctx context.Context, inv bench.Invocation) *bench.Execution {
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = bench.DefaultTimeout
	}
	res := &bench.Execution{Executable: inv.Executable, Timeout: timeout}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	createResp, err := r.cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     r.containerConfig(inv),
		HostConfig: r.hostConfig(inv),
	})
	if err != nil {
		res.Err = fmt.Errorf("creating container: %w", err)
		return res
	}
	containerID := createResp.ID
	log := r.log.With(zap.String("container", shortID(containerID)))
	defer func() {
		if _, err := r.cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true}); err != nil {
			log.Warn("removing container", zap.Error(err))
		}
	}()

	if _, err := r.cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		res.Err = fmt.Errorf("starting container: %w", err)
		if strings.Contains(err.Error(), "no such file or directory") || strings.Contains(err.Error(), "executable file not found") {
			res.NotFound = true
		}
		return res
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	waitResult := r.cli.ContainerWait(timeoutCtx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	for {
		select {
		case err := <-waitResult.Error:
			if err == nil {
				continue
			}
			if _, kerr := r.cli.ContainerKill(context.Background(), containerID, client.ContainerKillOptions{Signal: "SIGKILL"}); kerr != nil {
				log.Warn("killing container", zap.Error(kerr))
			}
			res.Stdout = r.logs(containerID, log)
			if timeoutCtx.Err() != nil {
				res.TimedOut = true
				log.Warn("container timed out", zap.Duration("timeout", timeout))
			} else {
				res.Err = fmt.Errorf("waiting for container: %w", err)
			}
			return res
		case status := <-waitResult.Result:
			res.Stdout = r.logs(containerID, log)
			code := int(status.StatusCode)
			res.ReturnCode = &code
			return res
		}
	}
}

func (r *Runner) containerConfig(inv bench.Invocation) *container.Config {
	return &container.Config{
		Image:      r.opts.Image,
		Cmd:        append([]string{inv.Executable}, inv.Args...),
		WorkingDir: inv.Dir,
		Tty:        true,
		Labels:     map[string]string{"npubench": "true"},
	}
}

func (r *Runner) hostConfig(inv bench.Invocation) *container.HostConfig {
	mounts := []mount.Mount{{
		Type:   mount.TypeBind,
		Source: inv.Dir,
		Target: inv.Dir,
	}}
	for _, m := range r.opts.ExtraMounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	initTrue := true
	hostCfg := &container.HostConfig{
		Mounts: mounts,
		Init:   &initTrue,
	}
	if r.opts.CPULimit > 0 {
		hostCfg.NanoCPUs = int64(r.opts.CPULimit * 1e9)
	}
	if r.opts.MemoryLimit > 0 {
		hostCfg.Memory = r.opts.MemoryLimit
	}
	for _, d := range r.opts.Devices {
		hostCfg.Devices = append(hostCfg.Devices, container.DeviceMapping{
			PathOnHost:        d,
			PathInContainer:   d,
			CgroupPermissions: "rwm",
		})
	}
	if r.opts.Network != "" {
		hostCfg.NetworkMode = container.NetworkMode(r.opts.Network)
	}
	return hostCfg
}

func (r *Runner) logs(containerID string, log *zap.Logger) string {
	logReader, err := r.cli.ContainerLogs(context.Background(), containerID, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		log.Warn("reading container logs", zap.Error(err))
		return ""
	}
	defer logReader.Close()
	data, err := io.ReadAll(logReader)
	if err != nil {
		log.Warn("reading container logs", zap.Error(err))
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
