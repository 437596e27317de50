package volume

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/start9labs/appmgr/internal/model"
)

// Resolver ensures a package's owned volume directories exist and resolves
// every volume a manifest declares to the host path (and read-only
// polarity) the runtime mounts.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// EnsureOwned creates the host directories a package itself owns (its data
// volume, and its backup staging directory) ahead of container creation.
// Pointer/Certificate/HiddenService volumes are never created here: a
// pointer must already exist (it belongs to the dependency it points
// into), and certificate/hidden-service material is created by whichever
// subsystem derives it, not by volume resolution.
func (r *Resolver) EnsureOwned(pkg model.PackageId, volumes *model.Volumes) error {
	if volumes == nil {
		return nil
	}
	for _, id := range volumes.Ids() {
		v, _ := volumes.Get(id)
		switch v.Kind {
		case model.VolumeKindData, model.VolumeKindBackup:
			path, err := v.PathFor(pkg, id)
			if err != nil {
				return fmt.Errorf("volume: resolving %s: %w", id, err)
			}
			if err := os.MkdirAll(path, 0750); err != nil {
				return fmt.Errorf("volume: creating %s: %w", path, err)
			}
		}
	}
	return nil
}

// Resolve computes the host path and read-only polarity of each of a
// package's declared volumes, keyed by volume id, ready to hand to
// internal/runtime.Client.CreateContainer.
func (r *Resolver) Resolve(pkg model.PackageId, volumes *model.Volumes) (map[string]model.Mount, error) {
	if volumes == nil {
		return map[string]model.Mount{}, nil
	}
	out := make(map[string]model.Mount, len(volumes.Ids()))
	for _, id := range volumes.Ids() {
		v, _ := volumes.Get(id)
		path, err := v.PathFor(pkg, id)
		if err != nil {
			return nil, fmt.Errorf("volume: resolving %s: %w", id, err)
		}
		out[string(id)] = model.Mount{HostPath: path, ReadOnly: v.ReadOnly()}
	}
	return out, nil
}

// ResolveSandboxed resolves pkg's declared volumes with every one forced
// read-only, the mount set a dependency's sandboxed check/auto-configure
// action runs against (spec glossary: "Sandboxed Action ... forbidden from
// mutating them").
func (r *Resolver) ResolveSandboxed(pkg model.PackageId, volumes *model.Volumes) (map[string]model.Mount, error) {
	if volumes == nil {
		return map[string]model.Mount{}, nil
	}
	return r.Resolve(pkg, volumes.ToReadOnly())
}

// ResolveForBackup resolves pkg's declared volumes plus the injected Backup
// volume, with the required polarity: during a backup create,
// every ordinary volume is forced read-only and the Backup volume is
// writable; during a restore, ordinary volumes keep their declared
// polarity and the Backup volume is read-only.
func (r *Resolver) ResolveForBackup(pkg model.PackageId, volumes *model.Volumes, restoring bool) (map[string]model.Mount, error) {
	base := volumes
	if base == nil {
		base = model.NewVolumes()
	}
	if !restoring {
		base = base.ToReadOnly()
	}
	out, err := r.Resolve(pkg, base)
	if err != nil {
		return nil, err
	}
	path, err := model.BackupVolume(restoring).PathFor(pkg, model.BackupVolumeId)
	if err != nil {
		return nil, fmt.Errorf("volume: resolving backup volume: %w", err)
	}
	out[string(model.BackupVolumeId)] = model.Mount{HostPath: path, ReadOnly: restoring}
	return out, nil
}

// Purge removes everything a package owns on disk — its whole volume tree
// and its backup directory — called once an uninstall has stopped and
// deleted the package's container.
func (r *Resolver) Purge(pkg model.PackageId) error {
	for _, path := range []string{
		filepath.Join(model.PkgVolumeDir, string(pkg)),
		filepath.Join(model.BackupDir, string(pkg)),
	} {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("volume: removing %s: %w", path, err)
		}
	}
	return nil
}
