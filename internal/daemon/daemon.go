package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/start9labs/appmgr/internal/action"
	"github.com/start9labs/appmgr/internal/apperr"
	"github.com/start9labs/appmgr/internal/configure"
	"github.com/start9labs/appmgr/internal/daemonconfig"
	"github.com/start9labs/appmgr/internal/db"
	"github.com/start9labs/appmgr/internal/dependency"
	"github.com/start9labs/appmgr/internal/events"
	"github.com/start9labs/appmgr/internal/log"
	"github.com/start9labs/appmgr/internal/metrics"
	"github.com/start9labs/appmgr/internal/model"
	"github.com/start9labs/appmgr/internal/network"
	"github.com/start9labs/appmgr/internal/reconciler"
	"github.com/start9labs/appmgr/internal/runtime"
	"github.com/start9labs/appmgr/internal/s9pk"
	"github.com/start9labs/appmgr/internal/volume"
)

// Version is the appmgr release this binary implements, checked against
// every installed manifest's OsVersionRequired.
var Version = model.MustParseVersion("0.3.0.0")

// Daemon is the single process-wide object wiring the database, the
// container runtime, the action dispatcher, and the reconciler together.
// appmgr manages exactly one host: one database and one runtime to keep
// converged.
type Daemon struct {
	DB         *db.DB
	Runtime    *runtime.Client
	IPs        *network.IPPool
	Dispatcher *action.Dispatcher
	Volumes    *volume.Resolver
	Events     *events.Broker
	Reconciler *reconciler.Reconciler
	Metrics    *metrics.Collector

	logger zerolog.Logger
}

// New opens the database and containerd connection, and wires every
// subsystem cfg names together. It does not start the reconciler or
// metrics collector loops — call Start for that, once the caller is ready
// for background reconciliation to begin.
func New(cfg daemonconfig.Config) (*Daemon, error) {
	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
		Output:     os.Stderr,
	})
	logger := log.WithComponent("daemon")

	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("daemon: creating data directory: %w", err)
	}

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("daemon: opening database: %w", err)
	}

	rt, err := runtime.NewClient(cfg.ContainerdSocket)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("daemon: connecting to container runtime: %w", err)
	}

	ips, err := network.NewIPPool(cfg.IPPoolCIDR)
	if err != nil {
		rt.Close()
		database.Close()
		return nil, fmt.Errorf("daemon: building ip pool: %w", err)
	}

	dispatcher := action.NewDispatcher(rt, ips)
	broker := events.NewBroker()

	checker := newCommittedConfigChecker(rt, manifestSourceForDB(database))
	healthRunner := newHealthActionRunner(rt, manifestSourceForDB(database))
	recStore := newDBReconcilerStore(database)
	rec := reconciler.New(rt, healthRunner, checker, recStore, broker)

	collector := metrics.NewCollector(newStatusSource(database))

	return &Daemon{
		DB:         database,
		Runtime:    rt,
		IPs:        ips,
		Dispatcher: dispatcher,
		Volumes:    volume.NewResolver(),
		Events:     broker,
		Reconciler: rec,
		Metrics:    collector,
		logger:     logger,
	}, nil
}

// Start launches the event broker, the reconciler's sync and health loops,
// and the metrics collector. ctx bounds the reconciler's loops; cancel it
// to stop them (Close still must be called separately to release the
// database and runtime connection).
func (d *Daemon) Start(ctx context.Context) {
	d.Events.Start()
	d.Reconciler.Start(ctx)
	d.Metrics.Start()
	d.logger.Info().Msg("daemon started")
}

// Stop halts the reconciler and metrics loops without releasing the
// database or runtime connection, so a caller can quiesce background work
// ahead of an operation that must run with nothing else touching state.
func (d *Daemon) Stop() {
	d.Reconciler.Stop()
	d.Metrics.Stop()
	d.Events.Stop()
}

// Close releases the database file and the containerd connection. Call
// after Stop.
func (d *Daemon) Close() error {
	rtErr := d.Runtime.Close()
	dbErr := d.DB.Close()
	if rtErr != nil {
		return fmt.Errorf("daemon: closing runtime: %w", rtErr)
	}
	if dbErr != nil {
		return fmt.Errorf("daemon: closing database: %w", dbErr)
	}
	return nil
}

// Install unpacks an s9pk, validates its manifest against this daemon's
// version and the archive's filename stem, loads its container images,
// creates (but does not start) its main container, and generates and
// validates its first configuration. The
// package is left Stopped; a separate StartPackage call (or a CLI "start")
// is what the reconciler's sync loop then converges on.
func (d *Daemon) Install(ctx context.Context, r io.ReadSeeker, filenameStem string) (model.PackageId, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.InstallDuration)

	archive, err := s9pk.Open(r)
	if err != nil {
		return "", apperr.New(apperr.ValidateS9pk, "opening s9pk", err)
	}
	if err := archive.Validate(); err != nil {
		return "", apperr.New(apperr.ValidateS9pk, "validating s9pk", err)
	}
	manifest, err := archive.Manifest()
	if err != nil {
		return "", apperr.New(apperr.ValidateS9pk, "reading manifest", err)
	}
	if err := s9pk.ValidateManifest(manifest, filenameStem, Version); err != nil {
		return "", err
	}

	if err := d.rejectDependencyCycle(manifest.Id, *manifest); err != nil {
		return "", err
	}
	d.Events.Publish(&events.Event{Type: events.EventPackageInstalling, PackageId: string(manifest.Id)})

	if err := d.stashInCache(r, archive, manifest.Id, manifest.Version); err != nil {
		log.WithPackageID(string(manifest.Id)).Warn().Err(err).Msg("staging s9pk in download cache")
	}

	if err := d.unpackPublicAssets(archive, manifest); err != nil {
		return "", err
	}

	images, err := archive.DockerImages()
	if err != nil {
		return "", apperr.New(apperr.ValidateS9pk, "reading docker images section", err)
	}
	refs, err := d.Runtime.LoadImages(ctx, images)
	if err != nil {
		return "", apperr.New(apperr.Docker, "loading "+string(manifest.Id)+"'s images", err)
	}
	if err := validateImageRefs(refs, manifest.Id); err != nil {
		return "", err
	}

	if err := d.Volumes.EnsureOwned(manifest.Id, manifest.Volumes); err != nil {
		return "", apperr.New(apperr.Filesystem, "creating "+string(manifest.Id)+"'s volumes", err)
	}
	mounts, err := d.Volumes.Resolve(manifest.Id, manifest.Volumes)
	if err != nil {
		return "", apperr.New(apperr.Filesystem, "resolving "+string(manifest.Id)+"'s volumes", err)
	}

	_, ip, err := d.Dispatcher.Create(ctx, manifest.Id, manifest.Version, manifest.Main, mounts)
	if err != nil {
		return "", err
	}
	metrics.IPPoolAllocatedTotal.Set(float64(d.IPs.Allocated()))

	err = d.DB.Update(func(tx *db.Tx) error {
		store := newTxStore(tx)
		store.put(manifest.Id, &model.InstalledPackageDataEntry{
			Manifest:  *manifest,
			Status:    model.StoppedStatus(),
			IPAddress: ip,
		})
		if manifest.ConfigSpec == nil {
			return nil
		}
		runner := newConfigureRunner(d.Runtime, manifestSourceFor(tx))
		_, cerr := configure.Configure(ctx, runner, store, manifest.Id, nil)
		return cerr
	})
	if err != nil {
		return "", err
	}

	d.Events.Publish(&events.Event{Type: events.EventPackageInstalled, PackageId: string(manifest.Id)})
	return manifest.Id, nil
}

// StartPackage flips id's desired status to Running; the reconciler's
// Synchronize loop observes the change and actually starts the container.
func (d *Daemon) StartPackage(ctx context.Context, id model.PackageId) error {
	return d.DB.Update(func(tx *db.Tx) error {
		store := newTxStore(tx)
		entry, ok := store.get(id)
		if !ok {
			return apperr.New(apperr.NotFound, "package "+string(id)+" not installed", nil)
		}
		entry.Status = model.RunningStatus(time.Now(), nil)
		store.put(id, entry)
		return nil
	})
}

// StopPackage flips id's desired status to Stopping; the reconciler stops
// the container and settles it to Stopped.
func (d *Daemon) StopPackage(ctx context.Context, id model.PackageId) error {
	return d.DB.Update(func(tx *db.Tx) error {
		store := newTxStore(tx)
		entry, ok := store.get(id)
		if !ok {
			return apperr.New(apperr.NotFound, "package "+string(id)+" not installed", nil)
		}
		entry.Status = model.StoppingStatus()
		store.put(id, entry)
		return nil
	})
}

// ConfigGet returns id's last-persisted configuration.
func (d *Daemon) ConfigGet(ctx context.Context, id model.PackageId) (map[string]any, error) {
	var cfg map[string]any
	err := d.DB.View(func(tx *db.Tx) error {
		entry, ok := newTxStore(tx).get(id)
		if !ok {
			return apperr.New(apperr.NotFound, "package "+string(id)+" not installed", nil)
		}
		cfg = entry.Config
		return nil
	})
	return cfg, err
}

// ConfigSet validates newConfig against id's config spec, propagates the
// change through every satisfied dependent (repairing what auto-configure
// can and recording a DependencyError against what it can't), and then, inside
// the same transaction and before it commits, pushes the new config into each
// configured package via its ConfigSet action; a failing ConfigSet action rolls
// the whole transaction back. When dryRun is true the whole cascade still runs,
// including its config-check and auto-configure actions (so the returned
// Result's Breakages are accurate), but the transaction is rolled back via
// db.ErrDryRun and no ConfigSet action is invoked.
func (d *Daemon) ConfigSet(ctx context.Context, id model.PackageId, newConfig map[string]any, dryRun bool) (*configure.Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ConfigureDuration)

	var result *configure.Result
	err := d.DB.Update(func(tx *db.Tx) error {
		store := newTxStore(tx)
		runner := newConfigureRunner(d.Runtime, manifestSourceFor(tx))
		res, cerr := configure.Configure(ctx, runner, store, id, newConfig)
		if cerr != nil {
			return cerr
		}
		result = res
		if dryRun {
			return db.ErrDryRun
		}
		for _, configured := range res.Configured {
			entry, ok := store.get(configured)
			if !ok || entry.Manifest.ConfigActions == nil {
				continue
			}
			if err := runner.ConfigSet(ctx, configured, entry.Manifest.ConfigActions.Set, entry.Config); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, db.ErrDryRun) {
		return nil, err
	}
	if !dryRun {
		d.Events.Publish(&events.Event{Type: events.EventConfigureApplied, PackageId: string(id)})
	}
	return result, nil
}

// Remove stops and deletes id's container, purges its volumes, returns its
// allocated address to the IP pool, and deletes its database record. The
// reconciler is not consulted: removal is immediate, not something the sync
// loop eases into.
func (d *Daemon) Remove(ctx context.Context, id model.PackageId) error {
	var manifest model.Manifest
	var ip string
	err := d.DB.View(func(tx *db.Tx) error {
		entry, ok := newTxStore(tx).get(id)
		if !ok {
			return apperr.New(apperr.NotFound, "package "+string(id)+" not installed", nil)
		}
		manifest = entry.Manifest
		ip = entry.IPAddress
		return nil
	})
	if err != nil {
		return err
	}

	name := action.ContainerName(id, manifest.Version)
	if err := d.Runtime.Remove(ctx, name); err != nil {
		return apperr.New(apperr.Docker, "removing "+string(id)+"'s container", err)
	}
	if err := d.Volumes.Purge(id); err != nil {
		return apperr.New(apperr.Filesystem, "purging "+string(id)+"'s volumes", err)
	}
	if err := os.RemoveAll(filepath.Join(model.PublicDir, string(id))); err != nil {
		return apperr.New(apperr.Filesystem, "removing "+string(id)+"'s public assets", err)
	}
	if ip != "" {
		d.IPs.Release(ip)
		metrics.IPPoolAllocatedTotal.Set(float64(d.IPs.Allocated()))
	}

	err = d.DB.Update(func(tx *db.Tx) error {
		tx.DeletePackage(id)
		return nil
	})
	if err != nil {
		return err
	}

	d.Events.Publish(&events.Event{Type: events.EventPackageRemoved, PackageId: string(id)})
	return nil
}

// Backup pauses id's main container (if running), runs its manifest's
// backup.create action against every declared volume mounted read-only
// plus a freshly writable Backup volume, and restores the container to its
// prior state. The reconciler's sync loop deliberately ignores BackingUp,
// so Backup drives the pause/unpause bracket itself.
func (d *Daemon) Backup(ctx context.Context, id model.PackageId) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ActionDuration, string(id), "backup")

	entry, manifest, err := d.loadForArchive(id)
	if err != nil {
		return err
	}
	if manifest.BackupActions == nil {
		return apperr.New(apperr.Backup, string(id)+" declares no backup action", nil)
	}

	name := action.ContainerName(id, manifest.Version)
	wasRunning, _ := d.Runtime.IsRunning(ctx, name)
	if wasRunning {
		if err := d.Runtime.Pause(ctx, name); err != nil {
			return apperr.New(apperr.Docker, "pausing "+string(id)+" for backup", err)
		}
	}

	prior := entry.Status
	if err := d.setMainStatus(id, model.BackingUpStatus(prior.Started, prior.Health)); err != nil {
		return err
	}
	d.Events.Publish(&events.Event{Type: events.EventPackageBackingUp, PackageId: string(id)})

	mounts, err := d.Volumes.ResolveForBackup(id, manifest.Volumes, false)
	if err != nil {
		d.restoreMainStatus(ctx, id, prior, wasRunning, name)
		return apperr.New(apperr.Filesystem, "resolving "+string(id)+"'s backup volumes", err)
	}
	runErr := d.Dispatcher.Execute(ctx, name, manifest.BackupActions.Create, nil, nil, mounts)

	d.restoreMainStatus(ctx, id, prior, wasRunning, name)
	if runErr != nil {
		metrics.ActionsTotal.WithLabelValues(string(id), "backup", "failure").Inc()
		log.WithAction("backup").Error().Err(runErr).Str("package_id", string(id)).Msg("backup action failed")
		return apperr.New(apperr.Backup, "running "+string(id)+"'s backup.create action", runErr)
	}
	metrics.ActionsTotal.WithLabelValues(string(id), "backup", "success").Inc()
	d.Events.Publish(&events.Event{Type: events.EventPackageBackedUp, PackageId: string(id)})
	return nil
}

// Restore stops id's main container (unpausing first if it was left
// paused), runs its manifest's backup.restore action against every
// declared volume at its normal polarity plus a read-only Backup volume,
// and — if the container was running beforehand — flips the desired status
// back to Running so the reconciler's sync loop starts it on its next
// tick.
func (d *Daemon) Restore(ctx context.Context, id model.PackageId) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ActionDuration, string(id), "restore")

	_, manifest, err := d.loadForArchive(id)
	if err != nil {
		return err
	}
	if manifest.BackupActions == nil {
		return apperr.New(apperr.Restore, string(id)+" declares no restore action", nil)
	}

	name := action.ContainerName(id, manifest.Version)
	wasRunning, _ := d.Runtime.IsRunning(ctx, name)
	if wasRunning {
		_ = d.Runtime.Unpause(ctx, name)
		if err := d.Runtime.Stop(ctx, name, 30*time.Second); err != nil {
			return apperr.New(apperr.Docker, "stopping "+string(id)+" for restore", err)
		}
	}

	if err := d.setMainStatus(id, model.RestoringStatus(wasRunning)); err != nil {
		return err
	}
	d.Events.Publish(&events.Event{Type: events.EventPackageRestoring, PackageId: string(id)})

	mounts, err := d.Volumes.ResolveForBackup(id, manifest.Volumes, true)
	if err != nil {
		return apperr.New(apperr.Filesystem, "resolving "+string(id)+"'s restore volumes", err)
	}
	runErr := d.Dispatcher.Execute(ctx, name, manifest.BackupActions.Restore, nil, nil, mounts)

	final := model.StoppedStatus()
	if wasRunning {
		final = model.RunningStatus(time.Now(), nil)
	}
	if setErr := d.setMainStatus(id, final); setErr != nil && runErr == nil {
		runErr = setErr
	}
	if runErr != nil {
		metrics.ActionsTotal.WithLabelValues(string(id), "restore", "failure").Inc()
		log.WithAction("restore").Error().Err(runErr).Str("package_id", string(id)).Msg("restore action failed")
		return apperr.New(apperr.Restore, "running "+string(id)+"'s backup.restore action", runErr)
	}
	metrics.ActionsTotal.WithLabelValues(string(id), "restore", "success").Inc()
	d.Events.Publish(&events.Event{Type: events.EventPackageRestored, PackageId: string(id)})
	return nil
}

// stashInCache copies r's raw bytes verbatim to the archive's canonical
// download-cache path (/mnt/appmgr/cache/packages/{pkg}/{version})
// alongside a sidecar file holding HashStr's digest; when that sidecar
// already holds the same digest, the copy is skipped. A
// failure here never aborts the install: the cache is an optimization, not
// a correctness requirement, since Install always reads directly from r
// regardless of whether staging succeeds.
func (d *Daemon) stashInCache(r io.ReadSeeker, archive *s9pk.Reader, id model.PackageId, version model.Version) error {
	hash, err := archive.HashStr()
	if err != nil {
		return fmt.Errorf("daemon: hashing archive: %w", err)
	}

	dest := s9pk.CachePath(id, version)
	if existing, err := os.ReadFile(dest + ".sha256"); err == nil && string(existing) == hash {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return fmt.Errorf("daemon: creating cache directory: %w", err)
	}

	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("daemon: saving read position: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("daemon: seeking to start of archive: %w", err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("daemon: creating %s: %w", dest, err)
	}
	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if _, seekErr := r.Seek(pos, io.SeekStart); seekErr != nil && copyErr == nil {
		copyErr = seekErr
	}
	if copyErr != nil {
		return fmt.Errorf("daemon: staging %s: %w", dest, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("daemon: closing %s: %w", dest, closeErr)
	}

	return os.WriteFile(dest+".sha256", []byte(hash), 0640)
}

// unpackPublicAssets extracts the archive's license, icon, and (when
// present) instructions into the package's public static-files directory
// (/mnt/appmgr/public/package-data/{pkg}/{version}/), the paths
// model.LocalStaticFiles serves them back from. Every extracted filename is
// run through s9pk.ValidatePath first, so a hostile manifest can't steer an
// asset outside the package's own directory.
func (d *Daemon) unpackPublicAssets(archive *s9pk.Reader, m *model.Manifest) error {
	dir := filepath.Join(model.PublicDir, string(m.Id), m.Version.String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperr.New(apperr.Filesystem, "creating "+string(m.Id)+"'s public asset directory", err)
	}

	iconName := "icon"
	if m.Assets.IconType != "" {
		iconName = "icon." + m.Assets.IconType
	}
	sections := []struct {
		name string
		open func() (io.Reader, error)
	}{
		{"LICENSE.md", archive.License},
		{iconName, archive.Icon},
	}
	if archive.HasInstructions() {
		sections = append(sections, struct {
			name string
			open func() (io.Reader, error)
		}{"INSTRUCTIONS.md", archive.Instructions})
	}

	for _, sec := range sections {
		if err := s9pk.ValidatePath(sec.name); err != nil {
			return err
		}
		src, err := sec.open()
		if err != nil {
			return apperr.New(apperr.ValidateS9pk, "reading "+sec.name+" from "+string(m.Id)+"'s archive", err)
		}
		dest := filepath.Join(dir, sec.name)
		f, err := os.Create(dest)
		if err != nil {
			return apperr.New(apperr.Filesystem, "creating "+dest, err)
		}
		_, copyErr := io.Copy(f, src)
		closeErr := f.Close()
		if copyErr != nil {
			return apperr.New(apperr.Filesystem, "unpacking "+dest, copyErr)
		}
		if closeErr != nil {
			return apperr.New(apperr.Filesystem, "closing "+dest, closeErr)
		}
	}
	return nil
}

// validateImageRefs enforces the image-tag invariant on an s9pk's loaded
// images: the archive must tag its own image under the package namespace
// ("start9/{id}") and must not smuggle in an image tagged for any other
// package, which would let one install overwrite another package's image.
func validateImageRefs(refs []string, id model.PackageId) error {
	const ns = "start9/"
	own := ns + string(id)
	found := false
	for _, ref := range refs {
		idx := strings.Index(ref, ns)
		if idx < 0 {
			continue
		}
		rest := ref[idx:]
		if rest == own || strings.HasPrefix(rest, own+":") {
			found = true
			continue
		}
		return apperr.New(apperr.ValidateS9pk, fmt.Sprintf("image archive tags foreign image %q", ref), nil)
	}
	if !found {
		return apperr.New(apperr.ValidateS9pk, fmt.Sprintf("image archive does not tag %q", own), nil)
	}
	return nil
}

// rejectDependencyCycle refuses to install candidate if doing so would close
// a dependency cycle over the combined graph of every already-installed
// package plus candidate itself. Nothing upstream of install guards
// against a cycle, so install is where that has to happen.
func (d *Daemon) rejectDependencyCycle(id model.PackageId, candidate model.Manifest) error {
	installed := map[model.PackageId]model.Manifest{}
	err := d.DB.View(func(tx *db.Tx) error {
		for _, existingId := range newTxStore(tx).allInstalledIds() {
			entry, ok := newTxStore(tx).get(existingId)
			if !ok {
				continue
			}
			installed[existingId] = entry.Manifest
		}
		return nil
	})
	if err != nil {
		return err
	}
	if dependency.HasCycle(dependency.BuildGraph(installed, id, candidate)) {
		return apperr.New(apperr.Pack, "installing "+string(id)+" would close a dependency cycle", nil)
	}
	return nil
}

func (d *Daemon) loadForArchive(id model.PackageId) (*model.InstalledPackageDataEntry, model.Manifest, error) {
	var entry *model.InstalledPackageDataEntry
	err := d.DB.View(func(tx *db.Tx) error {
		e, ok := newTxStore(tx).get(id)
		if !ok {
			return apperr.New(apperr.NotFound, "package "+string(id)+" not installed", nil)
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, model.Manifest{}, err
	}
	return entry, entry.Manifest, nil
}

func (d *Daemon) setMainStatus(id model.PackageId, status model.MainStatus) error {
	return d.DB.Update(func(tx *db.Tx) error {
		store := newTxStore(tx)
		entry, ok := store.get(id)
		if !ok {
			return apperr.New(apperr.NotFound, "package "+string(id)+" not installed", nil)
		}
		entry.Status = status
		store.put(id, entry)
		return nil
	})
}

// restoreMainStatus unpauses the container (if Backup paused it) and puts
// the package's desired status back to what it was before Backup began,
// swallowing its own errors since it runs on Backup's cleanup path where
// the original error (if any) takes priority.
func (d *Daemon) restoreMainStatus(ctx context.Context, id model.PackageId, prior model.MainStatus, wasRunning bool, containerName string) {
	if wasRunning {
		_ = d.Runtime.Unpause(ctx, containerName)
	}
	_ = d.setMainStatus(id, prior)
}
