package daemon

import (
	"bytes"
	"context"
	"fmt"

	"github.com/start9labs/appmgr/internal/action"
	"github.com/start9labs/appmgr/internal/apperr"
	"github.com/start9labs/appmgr/internal/model"
	"github.com/start9labs/appmgr/internal/volume"
)

// manifestSource resolves an installed package's manifest, letting the
// adapters below turn a bare package id into the container name and
// DockerAction a config/health action actually runs against. Dispatcher
// itself is deliberately manifest-agnostic (driven by an explicit
// DockerAction per call), so that lookup lives here instead.
type manifestSource func(model.PackageId) (model.Manifest, bool)

func (m manifestSource) containerName(id model.PackageId) string {
	manifest, ok := m(id)
	if !ok {
		return ""
	}
	return action.ContainerName(id, manifest.Version)
}

// runAction executes act inside owner's container (Inject) or as a fresh
// ephemeral container, returning the raw exit code rather than collapsing a
// nonzero exit into an error the way internal/action.Dispatcher.Execute
// does — config-check and health-check actions both give exit codes
// meaning distinct from "this failed to run at all", so callers need to see
// them directly.
func runAction(ctx context.Context, rt action.Runtime, owner model.PackageId, manifests manifestSource, act model.DockerAction, input any, mounts map[string]model.Mount) (stdout []byte, exitCode int, err error) {
	var stdin []byte
	if input != nil {
		stdin, err = action.Encode(act.IOFormat, input)
		if err != nil {
			return nil, -1, fmt.Errorf("daemon: encoding input for %s: %w", owner, err)
		}
	}
	if act.Inject {
		// The main container was already created with its own volumes
		// mounted; exec'ing into it needs no separate mount resolution.
		name := manifests.containerName(owner)
		args := append(append([]string{}, act.Entrypoint...), act.Args...)
		return rt.Exec(ctx, name, args, stdin)
	}
	return rt.RunEphemeral(ctx, act, stdin, mounts)
}

// ownMounts resolves owner's manifest-declared volumes at their declared
// polarity, the mount set config get/set and health-check actions run
// against.
func ownMounts(resolver *volume.Resolver, manifests manifestSource, owner model.PackageId) map[string]model.Mount {
	manifest, ok := manifests(owner)
	if !ok {
		return nil
	}
	mounts, err := resolver.Resolve(owner, manifest.Volumes)
	if err != nil {
		return nil
	}
	return mounts
}

// sandboxedMounts resolves owner's manifest-declared volumes forced
// read-only, the mount set a dependency's check/auto-configure action runs
// against against (spec glossary's Sandboxed Action).
func sandboxedMounts(resolver *volume.Resolver, manifests manifestSource, owner model.PackageId) map[string]model.Mount {
	manifest, ok := manifests(owner)
	if !ok {
		return nil
	}
	mounts, err := resolver.ResolveSandboxed(owner, manifest.Volumes)
	if err != nil {
		return nil
	}
	return mounts
}

// configureRunner adapts internal/action.Dispatcher's underlying runtime to
// internal/configure.Runner: config get/set against a package's own
// ConfigActions, and check/auto-configure against a dependent's declared
// DependencyConfig, all evaluated against a candidate config that may not
// yet be committed to the database.
type configureRunner struct {
	runtime   action.Runtime
	manifests manifestSource
	volumes   *volume.Resolver
}

func newConfigureRunner(rt action.Runtime, manifests manifestSource) *configureRunner {
	return &configureRunner{runtime: rt, manifests: manifests, volumes: volume.NewResolver()}
}

func (r *configureRunner) ConfigGet(ctx context.Context, pkg model.PackageId, act model.DockerAction) (map[string]any, error) {
	stdout, exitCode, err := runAction(ctx, r.runtime, pkg, r.manifests, act, nil, ownMounts(r.volumes, r.manifests, pkg))
	if err != nil {
		return nil, apperr.New(apperr.Docker, "running "+string(pkg)+"'s config get action", err)
	}
	if exitCode != 0 {
		return nil, apperr.New(apperr.ConfigGen, fmt.Sprintf("%s's config get action exited %d: %s", pkg, exitCode, bytes.TrimSpace(stdout)), nil)
	}
	var out map[string]any
	if err := action.Decode(act.IOFormat, stdout, &out); err != nil {
		return nil, apperr.New(apperr.Deserialization, "decoding "+string(pkg)+"'s config get output", err)
	}
	return out, nil
}

func (r *configureRunner) ConfigSet(ctx context.Context, pkg model.PackageId, act model.DockerAction, cfg map[string]any) error {
	_, exitCode, err := runAction(ctx, r.runtime, pkg, r.manifests, act, cfg, ownMounts(r.volumes, r.manifests, pkg))
	if err != nil {
		return apperr.New(apperr.Docker, "running "+string(pkg)+"'s config set action", err)
	}
	if exitCode != 0 {
		return apperr.New(apperr.ConfigGen, fmt.Sprintf("%s's config set action exited %d", pkg, exitCode), nil)
	}
	return nil
}

func (r *configureRunner) CheckConfig(ctx context.Context, dependent, dependency model.PackageId, check model.DockerAction, candidate map[string]any) error {
	stdout, exitCode, err := runAction(ctx, r.runtime, dependent, r.manifests, check, candidate, sandboxedMounts(r.volumes, r.manifests, dependent))
	if err != nil {
		return apperr.New(apperr.Docker, fmt.Sprintf("running %s's config check against %s", dependent, dependency), err)
	}
	if exitCode != 0 {
		return apperr.New(apperr.ConfigRulesViolation, checkMessage(stdout), nil)
	}
	return nil
}

// AutoConfigure feeds the dependent's own prior config to its declared
// repair action; the action reads the dependency's new state through its
// sandboxed mounts and emits a replacement config on stdout.
func (r *configureRunner) AutoConfigure(ctx context.Context, dependent, dependency model.PackageId, act model.DockerAction, oldConfig map[string]any) (map[string]any, error) {
	stdout, exitCode, err := runAction(ctx, r.runtime, dependent, r.manifests, act, oldConfig, sandboxedMounts(r.volumes, r.manifests, dependent))
	if err != nil {
		return nil, apperr.New(apperr.Docker, fmt.Sprintf("running %s's auto-configure against %s", dependent, dependency), err)
	}
	if exitCode != 0 {
		return nil, apperr.New(apperr.AutoConfigure, fmt.Sprintf("%s's auto-configure exited %d: %s", dependent, exitCode, bytes.TrimSpace(stdout)), nil)
	}
	var out map[string]any
	if err := action.Decode(act.IOFormat, stdout, &out); err != nil {
		return nil, apperr.New(apperr.Deserialization, "decoding "+string(dependent)+"'s auto-configure output", err)
	}
	return out, nil
}

func checkMessage(b []byte) string {
	s := string(bytes.TrimSpace(b))
	if s == "" {
		return "configuration requirements not satisfied"
	}
	return s
}

// committedConfigChecker adapts the same runtime to
// internal/dependency.ConfigChecker: the already-committed-state variant
// the reconciler's health loop uses to recompute dependency satisfaction,
// where there is no prospective candidate to pass — the check script reads
// the dependency's current config itself, typically via a Pointer-mounted
// volume.
type committedConfigChecker struct {
	runtime   action.Runtime
	manifests manifestSource
	volumes   *volume.Resolver
}

func newCommittedConfigChecker(rt action.Runtime, manifests manifestSource) *committedConfigChecker {
	return &committedConfigChecker{runtime: rt, manifests: manifests, volumes: volume.NewResolver()}
}

func (c *committedConfigChecker) CheckConfig(ctx context.Context, dependent, dependency model.PackageId, check model.DockerAction) error {
	stdout, exitCode, err := runAction(ctx, c.runtime, dependent, c.manifests, check, nil, sandboxedMounts(c.volumes, c.manifests, dependent))
	if err != nil {
		return apperr.New(apperr.Docker, fmt.Sprintf("running %s's config check against %s", dependent, dependency), err)
	}
	if exitCode != 0 {
		return apperr.New(apperr.ConfigRulesViolation, checkMessage(stdout), nil)
	}
	return nil
}

// healthActionRunner adapts the runtime to internal/health.ActionRunner.
type healthActionRunner struct {
	runtime   action.Runtime
	manifests manifestSource
	volumes   *volume.Resolver
}

func newHealthActionRunner(rt action.Runtime, manifests manifestSource) *healthActionRunner {
	return &healthActionRunner{runtime: rt, manifests: manifests, volumes: volume.NewResolver()}
}

func (h *healthActionRunner) RunHealthCheck(ctx context.Context, packageID, checkName string) (int, string, error) {
	manifest, ok := h.manifests(model.PackageId(packageID))
	if !ok {
		return -1, "", apperr.New(apperr.NotFound, "package "+packageID+" not installed", nil)
	}
	var act model.DockerAction
	found := false
	for _, hc := range manifest.HealthChecks {
		if hc.Name == checkName {
			act, found = hc.Action, true
			break
		}
	}
	if !found {
		return -1, "", apperr.New(apperr.NotFound, "health check "+checkName+" not declared by "+packageID, nil)
	}
	stdout, exitCode, err := runAction(ctx, h.runtime, model.PackageId(packageID), h.manifests, act, nil, ownMounts(h.volumes, h.manifests, model.PackageId(packageID)))
	if err != nil {
		return -1, "", apperr.New(apperr.Docker, "running "+packageID+"'s "+checkName+" health check", err)
	}
	return exitCode, string(bytes.TrimSpace(stdout)), nil
}
