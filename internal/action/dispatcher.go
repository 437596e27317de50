package action

import (
	"bytes"
	"context"
	"fmt"

	"github.com/start9labs/appmgr/internal/apperr"
	"github.com/start9labs/appmgr/internal/model"
)

// systemPackageId substitutes for a package id in the entrypoint of
// actions the daemon itself owns (migrations, the init hooks), which
// aren't tied to a single installed package.
const systemPackageId = "appmgr"

// Runtime is the subset of the container runtime client the dispatcher
// needs: create a container from a DockerAction, run it to completion
// (ephemeral) or exec into an already-running one, and report whether its
// main container is currently running. internal/runtime.Client implements
// this against containerd.
type Runtime interface {
	CreateContainer(ctx context.Context, name string, img model.DockerAction, mounts map[string]model.Mount, ip string) error
	RunEphemeral(ctx context.Context, img model.DockerAction, stdin []byte, mounts map[string]model.Mount) (stdout []byte, exitCode int, err error)
	Exec(ctx context.Context, containerName string, args []string, stdin []byte) (stdout []byte, exitCode int, err error)
	IsRunning(ctx context.Context, containerName string) (bool, error)
}

// IPAllocator hands out the address a newly created container binds to.
// internal/network.IPPool implements this.
type IPAllocator interface {
	Allocate() (string, error)
	Release(ip string)
}

// Dispatcher is the single entry point every subsystem uses to invoke a
// package's container for a named action.
type Dispatcher struct {
	Runtime Runtime
	IPs     IPAllocator
}

func NewDispatcher(rt Runtime, ips IPAllocator) *Dispatcher {
	return &Dispatcher{Runtime: rt, IPs: ips}
}

// Create allocates an address and creates (but does not start) the
// package's main container. The allocated address is returned alongside
// the container name so the caller can persist it for later use by
// interface reachability checks.
func (d *Dispatcher) Create(ctx context.Context, id model.PackageId, version model.Version, img model.DockerAction, mounts map[string]model.Mount) (string, string, error) {
	ip, err := d.IPs.Allocate()
	if err != nil {
		return "", "", apperr.New(apperr.Network, fmt.Sprintf("action: allocating ip for %s", id), err)
	}
	name := ContainerName(id, version)
	if err := d.Runtime.CreateContainer(ctx, name, img, mounts, ip); err != nil {
		d.IPs.Release(ip)
		return "", "", apperr.New(apperr.Docker, "action: creating container "+name, err)
	}
	return name, ip, nil
}

// Execute runs an action, marshaling input through img.IOFormat (if input
// is non-nil) and unmarshaling output the same way. When img.Inject is true
// it execs into the already-running main container (containerName must be
// the value Create returned, already mounted from its own Create call, so
// mounts is ignored on that path); otherwise it runs the image fresh with
// mounts bind-mounted and removes it afterward.
func (d *Dispatcher) Execute(ctx context.Context, containerName string, img model.DockerAction, input any, output any, mounts map[string]model.Mount) error {
	var stdin []byte
	if input != nil && img.IOFormat != "" {
		b, err := Encode(img.IOFormat, input)
		if err != nil {
			return fmt.Errorf("action: encoding input: %w", err)
		}
		stdin = b
	}

	var stdout []byte
	var exitCode int
	var err error
	if img.Inject {
		args := append(append([]string{}, img.Entrypoint...), img.Args...)
		stdout, exitCode, err = d.Runtime.Exec(ctx, containerName, args, stdin)
	} else {
		resolved := img
		if img.System {
			resolved.Entrypoint = substituteSystemId(img.Entrypoint)
		}
		stdout, exitCode, err = d.Runtime.RunEphemeral(ctx, resolved, stdin, mounts)
	}
	if err != nil {
		return fmt.Errorf("action: executing: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("action: container exited %d: %s", exitCode, bytes.TrimSpace(stdout))
	}

	if output == nil || len(stdout) == 0 {
		return nil
	}
	format := img.IOFormat
	if format == "" {
		if sp, ok := output.(*string); ok {
			*sp = string(stdout)
			return nil
		}
		return nil
	}
	return Decode(format, stdout, output)
}

func substituteSystemId(entrypoint []string) []string {
	out := make([]string, len(entrypoint))
	for i, e := range entrypoint {
		if e == "$SYSTEM_PACKAGE_ID" {
			out[i] = systemPackageId
		} else {
			out[i] = e
		}
	}
	return out
}
