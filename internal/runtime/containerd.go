package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/start9labs/appmgr/internal/model"
)

const (
	// Namespace isolates every appmgr-managed container from anything else
	// sharing the host's containerd daemon.
	Namespace = "appmgr"

	// DefaultSocketPath is where the containerd collaborator's socket is
	// expected to live on a standard install.
	DefaultSocketPath = "/run/containerd/containerd.sock"

	stopGracePeriod = 10 * time.Second
)

// Client implements internal/action.Runtime and
// internal/reconciler.ContainerRuntime against a real containerd daemon.
type Client struct {
	client     *containerd.Client
	socketPath string
}

func NewClient(socketPath string) (*Client, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	c, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("runtime: connecting to containerd at %s: %w", socketPath, err)
	}
	return &Client{client: c, socketPath: socketPath}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Restart drops and re-establishes the connection to the containerd socket.
// The sync loop calls this once per sweep when a container is still
// observed running after a stop was issued:
// that almost always means containerd's own state has drifted from the
// task's actual state, and reconnecting is the cheapest recovery that
// doesn't require restarting the containerd process itself.
func (c *Client) Restart(ctx context.Context) error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("runtime: closing stale containerd connection: %w", err)
	}
	newClient, err := containerd.New(c.socketPath)
	if err != nil {
		return fmt.Errorf("runtime: reconnecting to containerd at %s: %w", c.socketPath, err)
	}
	c.client = newClient
	return nil
}

func (c *Client) ns(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, Namespace)
}

// LoadImages imports every image in a docker-save tar stream (an s9pk's
// docker_images section) into containerd's local image store, returning the
// reference of each image imported.
func (c *Client) LoadImages(ctx context.Context, r io.Reader) ([]string, error) {
	ctx = c.ns(ctx)
	images, err := c.client.Import(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("runtime: importing docker image archive: %w", err)
	}
	refs := make([]string, len(images))
	for i, img := range images {
		refs[i] = img.Name
	}
	return refs, nil
}

// CreateContainer pulls img.Image if necessary and creates (but does not
// start) a container named name, with img.Mounts bind-mounted per mounts
// (volume id -> host path) and the given address assigned via an
// environment variable the image's entrypoint is expected to read.
func (c *Client) CreateContainer(ctx context.Context, name string, img model.DockerAction, mounts map[string]model.Mount, ip string) error {
	ctx = c.ns(ctx)

	image, err := c.client.GetImage(ctx, img.Image)
	if err != nil {
		image, err = c.client.Pull(ctx, img.Image, containerd.WithPullUnpack)
		if err != nil {
			return fmt.Errorf("runtime: pulling image %s: %w", img.Image, err)
		}
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv([]string{"APPMGR_IP=" + ip}),
	}
	if len(img.Entrypoint) > 0 {
		opts = append(opts, oci.WithProcessArgs(append(append([]string{}, img.Entrypoint...), img.Args...)...))
	}
	if img.ShmSizeMb > 0 {
		opts = append(opts, oci.WithTmpfsMount("/dev/shm", []string{fmt.Sprintf("size=%dm", img.ShmSizeMb)}))
	}

	if specMounts := buildSpecMounts(img.Mounts, mounts); len(specMounts) > 0 {
		opts = append(opts, oci.WithMounts(specMounts))
	}

	_, err = c.client.NewContainer(
		ctx,
		name,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(name+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return fmt.Errorf("runtime: creating container %s: %w", name, err)
	}
	return nil
}

// buildSpecMounts pairs each of an action's declared container-path mounts
// with the resolved host path and read-only polarity, enforcing the
// invariant that a read-only volume is never bind-mounted writable.
func buildSpecMounts(declared map[model.VolumeId]string, resolved map[string]model.Mount) []specs.Mount {
	var out []specs.Mount
	for volumeId, dest := range declared {
		mount, ok := resolved[string(volumeId)]
		if !ok {
			continue
		}
		opt := "rw"
		if mount.ReadOnly {
			opt = "ro"
		}
		out = append(out, specs.Mount{
			Source:      mount.HostPath,
			Destination: dest,
			Type:        "bind",
			Options:     []string{"bind", opt},
		})
	}
	return out
}

// RunEphemeral creates, starts, waits for, and removes a one-shot
// container from img, feeding stdin and capturing stdout. mounts resolves
// img.Mounts to host paths, exactly as CreateContainer's mounts argument
// does, since sandboxed and backup actions run through this path too.
func (c *Client) RunEphemeral(ctx context.Context, img model.DockerAction, stdin []byte, mounts map[string]model.Mount) ([]byte, int, error) {
	ctx = c.ns(ctx)

	image, err := c.client.GetImage(ctx, img.Image)
	if err != nil {
		image, err = c.client.Pull(ctx, img.Image, containerd.WithPullUnpack)
		if err != nil {
			return nil, -1, fmt.Errorf("runtime: pulling image %s: %w", img.Image, err)
		}
	}

	id := fmt.Sprintf("ephemeral-%d", time.Now().UnixNano())
	opts := []oci.SpecOpts{oci.WithImageConfig(image)}
	if len(img.Entrypoint) > 0 {
		opts = append(opts, oci.WithProcessArgs(append(append([]string{}, img.Entrypoint...), img.Args...)...))
	}
	if specMounts := buildSpecMounts(img.Mounts, mounts); len(specMounts) > 0 {
		opts = append(opts, oci.WithMounts(specMounts))
	}

	container, err := c.client.NewContainer(
		ctx, id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return nil, -1, fmt.Errorf("runtime: creating ephemeral container: %w", err)
	}
	defer container.Delete(ctx, containerd.WithSnapshotCleanup)

	stdout, exitCode, err := runToCompletion(ctx, container, stdin)
	return stdout, exitCode, err
}

// Exec runs args inside containerName's existing task (the Inject path for
// actions that must observe the main process's namespace), feeding stdin
// and capturing stdout.
func (c *Client) Exec(ctx context.Context, containerName string, args []string, stdin []byte) ([]byte, int, error) {
	ctx = c.ns(ctx)

	container, err := c.client.LoadContainer(ctx, containerName)
	if err != nil {
		return nil, -1, fmt.Errorf("runtime: loading container %s: %w", containerName, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil, -1, fmt.Errorf("runtime: container %s has no running task: %w", containerName, err)
	}

	var out bytes.Buffer
	var mu sync.Mutex
	execId := fmt.Sprintf("exec-%d", time.Now().UnixNano())
	process, err := task.Exec(ctx, execId, &specs.Process{Args: args, Cwd: "/"}, cio.NewCreator(
		cio.WithStreams(bytes.NewReader(stdin), lockedWriter{&out, &mu}, lockedWriter{&out, &mu}),
	))
	if err != nil {
		return nil, -1, fmt.Errorf("runtime: exec in %s: %w", containerName, err)
	}
	defer process.Delete(ctx)

	statusC, err := process.Wait(ctx)
	if err != nil {
		return nil, -1, fmt.Errorf("runtime: waiting for exec in %s: %w", containerName, err)
	}
	if err := process.Start(ctx); err != nil {
		return nil, -1, fmt.Errorf("runtime: starting exec in %s: %w", containerName, err)
	}
	status := <-statusC
	return out.Bytes(), int(status.ExitCode()), status.Error()
}

// IsRunning reports whether containerName's main task is currently in the
// running state.
func (c *Client) IsRunning(ctx context.Context, containerName string) (bool, error) {
	ctx = c.ns(ctx)
	container, err := c.client.LoadContainer(ctx, containerName)
	if err != nil {
		return false, nil
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return false, nil
	}
	status, err := task.Status(ctx)
	if err != nil {
		return false, fmt.Errorf("runtime: getting status of %s: %w", containerName, err)
	}
	return status.Status == containerd.Running, nil
}

// Start creates a task for containerName's container (if none exists yet)
// and starts it, the reconciler's desired-stopped-to-running transition.
func (c *Client) Start(ctx context.Context, containerName string) error {
	ctx = c.ns(ctx)
	container, err := c.client.LoadContainer(ctx, containerName)
	if err != nil {
		return fmt.Errorf("runtime: loading container %s: %w", containerName, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		task, err = container.NewTask(ctx, cio.NullIO)
		if err != nil {
			return fmt.Errorf("runtime: creating task for %s: %w", containerName, err)
		}
	}
	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("runtime: starting %s: %w", containerName, err)
	}
	return nil
}

// Stop sends SIGTERM to containerName's task, waits up to timeout, then
// SIGKILLs and deletes the task.
func (c *Client) Stop(ctx context.Context, containerName string, timeout time.Duration) error {
	ctx = c.ns(ctx)
	container, err := c.client.LoadContainer(ctx, containerName)
	if err != nil {
		return fmt.Errorf("runtime: loading container %s: %w", containerName, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	statusC, err := task.Wait(ctx)
	if err != nil {
		return fmt.Errorf("runtime: waiting on %s: %w", containerName, err)
	}
	if err := task.Kill(stopCtx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("runtime: sending SIGTERM to %s: %w", containerName, err)
	}
	select {
	case <-statusC:
	case <-stopCtx.Done():
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil {
			return fmt.Errorf("runtime: sending SIGKILL to %s: %w", containerName, err)
		}
		<-statusC
	}
	if _, err := task.Delete(ctx); err != nil {
		return fmt.Errorf("runtime: deleting task for %s: %w", containerName, err)
	}
	return nil
}

// Pause/Unpause freeze and thaw containerName's task, used for the
// backing-up main status (a package's container is paused, not stopped,
// while its volumes are archived).
func (c *Client) Pause(ctx context.Context, containerName string) error {
	return c.withTask(ctx, containerName, func(task containerd.Task) error {
		return task.Pause(ctx)
	})
}

func (c *Client) Unpause(ctx context.Context, containerName string) error {
	return c.withTask(ctx, containerName, func(task containerd.Task) error {
		return task.Resume(ctx)
	})
}

func (c *Client) withTask(ctx context.Context, containerName string, fn func(containerd.Task) error) error {
	ctx = c.ns(ctx)
	container, err := c.client.LoadContainer(ctx, containerName)
	if err != nil {
		return fmt.Errorf("runtime: loading container %s: %w", containerName, err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return fmt.Errorf("runtime: container %s has no running task: %w", containerName, err)
	}
	return fn(task)
}

// Remove stops (if running) and deletes containerName's container and its
// snapshot.
func (c *Client) Remove(ctx context.Context, containerName string) error {
	if err := c.Stop(ctx, containerName, stopGracePeriod); err != nil {
		return err
	}
	ctx = c.ns(ctx)
	container, err := c.client.LoadContainer(ctx, containerName)
	if err != nil {
		return nil
	}
	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("runtime: deleting container %s: %w", containerName, err)
	}
	return nil
}

func runToCompletion(ctx context.Context, container containerd.Container, stdin []byte) ([]byte, int, error) {
	var out bytes.Buffer
	var mu sync.Mutex
	task, err := container.NewTask(ctx, cio.NewCreator(
		cio.WithStreams(bytes.NewReader(stdin), lockedWriter{&out, &mu}, lockedWriter{&out, &mu}),
	))
	if err != nil {
		return nil, -1, fmt.Errorf("runtime: creating task: %w", err)
	}
	defer task.Delete(ctx)

	statusC, err := task.Wait(ctx)
	if err != nil {
		return nil, -1, fmt.Errorf("runtime: waiting on task: %w", err)
	}
	if err := task.Start(ctx); err != nil {
		return nil, -1, fmt.Errorf("runtime: starting task: %w", err)
	}
	status := <-statusC
	return out.Bytes(), int(status.ExitCode()), status.Error()
}

// lockedWriter serializes writes from containerd's stdout/stderr streams
// into a single buffer, since cio may deliver them concurrently.
type lockedWriter struct {
	buf *bytes.Buffer
	mu  *sync.Mutex
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

var _ io.Writer = lockedWriter{}
