package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/start9labs/appmgr/internal/action"
	"github.com/start9labs/appmgr/internal/dependency"
	"github.com/start9labs/appmgr/internal/events"
	"github.com/start9labs/appmgr/internal/health"
	"github.com/start9labs/appmgr/internal/log"
	"github.com/start9labs/appmgr/internal/metrics"
	"github.com/start9labs/appmgr/internal/model"
)

const (
	defaultCooldown = 500 * time.Millisecond
	stopTimeout     = 30 * time.Second
)

// ContainerRuntime is the subset of internal/runtime.Client the sync loop
// drives a container's lifecycle through.
type ContainerRuntime interface {
	IsRunning(ctx context.Context, containerName string) (bool, error)
	Start(ctx context.Context, containerName string) error
	Stop(ctx context.Context, containerName string, timeout time.Duration) error
	Restart(ctx context.Context) error
}

// Store is the slice of the document database both loops need: read and
// write a package's durable record, enumerate the installed set, and flag
// whether a package currently has an unsatisfied non-optional dependency.
// internal/daemon's dbReconcilerStore adapts the whole database to this.
type Store interface {
	Entry(id model.PackageId) (*model.InstalledPackageDataEntry, bool)
	SetEntry(id model.PackageId, entry *model.InstalledPackageDataEntry)
	AllInstalledIds() []model.PackageId
	SetBroken(id model.PackageId, broken bool)
}

// storeGraph adapts Store to dependency.Graph so CheckAll/Cascade can walk
// it without internal/dependency needing to know this package's storage
// shape.
type storeGraph struct{ store Store }

func (g storeGraph) Installed(id model.PackageId) (*dependency.Installed, bool) {
	e, ok := g.store.Entry(id)
	if !ok {
		return nil, false
	}
	return &dependency.Installed{Manifest: e.Manifest, Status: e.Status}, true
}

func (g storeGraph) AllIds() []model.PackageId { return g.store.AllInstalledIds() }

// Reconciler runs the sync and health loops against one installed-package
// store.
type Reconciler struct {
	Runtime      ContainerRuntime
	HealthRunner health.ActionRunner
	Checker      dependency.ConfigChecker
	Store        Store
	Events       *events.Broker
	Cooldown     time.Duration

	logger zerolog.Logger
	mu     sync.Mutex
	stopCh chan struct{}
}

func New(rt ContainerRuntime, healthRunner health.ActionRunner, checker dependency.ConfigChecker, store Store, broker *events.Broker) *Reconciler {
	return &Reconciler{
		Runtime:      rt,
		HealthRunner: healthRunner,
		Checker:      checker,
		Store:        store,
		Events:       broker,
		Cooldown:     defaultCooldown,
		logger:       log.WithComponent("reconciler"),
		stopCh:       make(chan struct{}),
	}
}

// Start launches both loops in their own goroutines.
func (r *Reconciler) Start(ctx context.Context) {
	go r.run(ctx, "sync", r.Synchronize)
	go r.run(ctx, "health", r.Health)
}

// Stop halts both loops.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run(ctx context.Context, name string, cycle func(context.Context)) {
	cooldown := r.Cooldown
	if cooldown == 0 {
		cooldown = defaultCooldown
	}
	ticker := time.NewTicker(cooldown)
	defer ticker.Stop()

	r.logger.Info().Str("loop", name).Msg("reconciler loop started")
	for {
		select {
		case <-ticker.C:
			cycle(ctx)
		case <-r.stopCh:
			r.logger.Info().Str("loop", name).Msg("reconciler loop stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Synchronize reads every installed package's desired MainStatus and the
// runtime's observed container state, and applies start/stop transitions to
// close the gap. BackingUp and Restoring are left alone here — those
// transitions are driven by the backup/restore operations themselves, not
// by this loop, since they bracket a single dispatcher-owned action rather
// than a steady-state condition to converge toward.
func (r *Reconciler) Synchronize(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	anomaly := false
	for _, id := range r.Store.AllInstalledIds() {
		entry, ok := r.Store.Entry(id)
		if !ok {
			continue
		}
		containerName := action.ContainerName(id, entry.Manifest.Version)
		running, err := r.Runtime.IsRunning(ctx, containerName)
		if err != nil {
			r.logger.Error().Err(err).Str("package_id", string(id)).Msg("checking container state")
			continue
		}

		switch entry.Status.Kind {
		case model.MainStatusRunning:
			if !running {
				if err := r.Runtime.Start(ctx, containerName); err != nil {
					r.logger.Error().Err(err).Str("package_id", string(id)).Msg("starting container")
					continue
				}
				r.Events.Publish(&events.Event{Type: events.EventPackageStarted, PackageId: string(id)})
			}

		case model.MainStatusStopping:
			if running {
				if err := r.Runtime.Stop(ctx, containerName, stopTimeout); err != nil {
					r.logger.Error().Err(err).Str("package_id", string(id)).Msg("stopping container")
					continue
				}
				stillRunning, _ := r.Runtime.IsRunning(ctx, containerName)
				if stillRunning {
					anomaly = true
					continue
				}
			}
			entry.Status = model.StoppedStatus()
			r.Store.SetEntry(id, entry)
			r.Events.Publish(&events.Event{Type: events.EventPackageStopped, PackageId: string(id)})
			r.cascadeFrom(ctx, id)

		case model.MainStatusStopped:
			// A container observed running for a Stopped package (started by
			// hand, or left over from a crashed operation) is driven back
			// down; the status record itself is already where it should be.
			if running {
				if err := r.Runtime.Stop(ctx, containerName, stopTimeout); err != nil {
					r.logger.Error().Err(err).Str("package_id", string(id)).Msg("stopping rogue container")
					continue
				}
				stillRunning, _ := r.Runtime.IsRunning(ctx, containerName)
				if stillRunning {
					anomaly = true
				}
			}
		}
	}

	if anomaly {
		metrics.RuntimeAnomaliesTotal.Inc()
		r.Events.Publish(&events.Event{Type: events.EventRuntimeAnomaly, Message: "a container was still running after a stop"})
		if err := r.Runtime.Restart(ctx); err != nil {
			r.logger.Error().Err(err).Msg("restarting container runtime after anomaly")
		}
	}
}

// Health runs every Running package's declared health checks, replaces its
// status's health map, transitions any package with a failing critical
// check to Stopping, and recomputes every installed package's dependency
// satisfaction so status.dependencies never drifts from a dependency's own
// state.
func (r *Reconciler) Health(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.Store.AllInstalledIds() {
		entry, ok := r.Store.Entry(id)
		if !ok || entry.Status.Kind != model.MainStatusRunning {
			continue
		}
		r.runHealthChecks(ctx, id, entry)
	}

	r.recomputeDependencies(ctx)
}

func (r *Reconciler) runHealthChecks(ctx context.Context, id model.PackageId, entry *model.InstalledPackageDataEntry) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.HealthCheckDuration, string(id))

	results := make(map[string]model.HealthCheckResult, len(entry.Manifest.HealthChecks)+len(entry.Manifest.Interfaces))
	var mu sync.Mutex
	var wg sync.WaitGroup
	criticalFailed := false

	for _, hc := range entry.Manifest.HealthChecks {
		hc := hc
		wg.Add(1)
		go func() {
			defer wg.Done()
			checker := health.NewActionChecker(r.HealthRunner, string(id), hc.Name)
			res := checker.Check(ctx)

			kind := model.HealthCheckSuccess
			outcome := "success"
			switch {
			case res.Disabled:
				kind, outcome = model.HealthCheckDisabled, "disabled"
			case !res.Healthy:
				kind, outcome = model.HealthCheckFailure, "failure"
			}
			metrics.HealthChecksTotal.WithLabelValues(string(id), hc.Name, outcome).Inc()

			mu.Lock()
			defer mu.Unlock()
			results[hc.Name] = model.HealthCheckResult{Name: hc.Name, Kind: kind, Message: res.Message, CheckedAt: res.CheckedAt}
			if kind == model.HealthCheckFailure && hc.Critical {
				criticalFailed = true
				metrics.HealthChecksCriticalFailuresTotal.WithLabelValues(string(id), hc.Name).Inc()
			}
		}()
	}

	// All interface checks run alongside the declared health-check action,
	// not after it: an unreachable interface is itself reported in
	// status.main.health even though no manifest health check names it.
	for ifaceId, iface := range entry.Manifest.Interfaces {
		if entry.IPAddress == "" {
			continue
		}
		ifaceId, iface := ifaceId, iface
		wg.Add(1)
		go func() {
			defer wg.Done()
			addr := fmt.Sprintf("%s:%d", entry.IPAddress, iface.Port)
			checker := health.NewInterfaceChecker(string(ifaceId), addr)
			res := checker.Check(ctx)

			kind := model.HealthCheckSuccess
			outcome := "success"
			if !res.Healthy {
				kind, outcome = model.HealthCheckFailure, "failure"
			}
			metrics.HealthChecksTotal.WithLabelValues(string(id), "interface:"+string(ifaceId), outcome).Inc()

			mu.Lock()
			defer mu.Unlock()
			results["interface:"+string(ifaceId)] = model.HealthCheckResult{Name: string(ifaceId), Kind: kind, Message: res.Message, CheckedAt: res.CheckedAt}
		}()
	}

	wg.Wait()

	entry.Status.Health = results
	if criticalFailed {
		// Keep the health map that triggered the transition: it's the
		// evidence a caller inspecting the package sees.
		entry.Status.Kind = model.MainStatusStopping
		r.Events.Publish(&events.Event{
			Type:      events.EventHealthCheckCritical,
			PackageId: string(id),
			Message:   "a critical health check failed",
		})
	}
	r.Store.SetEntry(id, entry)
}

// recomputeDependencies is the steady-state baseline: every health tick, it
// recomputes every installed package's dependency verdicts from scratch
// against the store's current state, so status.dependencies never drifts
// even if a cascade somewhere was missed. cascadeFrom (triggered the moment
// Synchronize observes a package stop) additionally repropagates a single
// package's status change to its transitive dependents immediately, rather
// than waiting up to one Cooldown for this sweep to catch it.
func (r *Reconciler) recomputeDependencies(ctx context.Context) {
	graph := storeGraph{store: r.Store}
	for _, id := range r.Store.AllInstalledIds() {
		entry, ok := r.Store.Entry(id)
		if !ok {
			continue
		}
		inst := &dependency.Installed{Manifest: entry.Manifest, Status: entry.Status}
		verdicts, err := dependency.CheckAll(ctx, r.Checker, graph, id, inst)
		if err != nil {
			r.logger.Error().Err(err).Str("package_id", string(id)).Msg("checking dependency satisfaction")
			continue
		}
		r.applyVerdicts(id, entry, verdicts)
	}
}

// cascadeFrom walks id and every package that transitively depends on it
// (internal/dependency.Cascade's breadth-first order) and recomputes each
// one's dependency verdicts immediately, so a dependency breakage
// propagates to dependents-of-dependents, not just to id's direct
// dependents.
func (r *Reconciler) cascadeFrom(ctx context.Context, id model.PackageId) {
	graph := storeGraph{store: r.Store}
	byPkg, err := dependency.Cascade(ctx, r.Checker, graph, id)
	if err != nil {
		r.logger.Error().Err(err).Str("package_id", string(id)).Msg("cascading dependency state")
	}
	for pkgId, verdicts := range byPkg {
		entry, ok := r.Store.Entry(pkgId)
		if !ok {
			continue
		}
		r.applyVerdicts(pkgId, entry, verdicts)
	}
}

// applyVerdicts diffs verdicts against entry.Dependencies, publishes a
// broken/healed event for every dependency whose verdict changed, then
// persists the new verdict map and broken flag.
func (r *Reconciler) applyVerdicts(id model.PackageId, entry *model.InstalledPackageDataEntry, verdicts map[model.PackageId]*model.DependencyError) {
	for depId, verdict := range verdicts {
		prev := entry.Dependencies[depId]
		switch {
		case prev == nil && verdict != nil:
			metrics.DependencyBreaksTotal.WithLabelValues(string(id), string(depId)).Inc()
			r.Events.Publish(&events.Event{
				Type:      events.EventDependencyBroken,
				PackageId: string(id),
				Message:   "dependency " + string(depId) + " broke: " + verdict.Error(),
			})
		case prev != nil && verdict == nil:
			r.Events.Publish(&events.Event{
				Type:      events.EventDependencyHealed,
				PackageId: string(id),
				Message:   "dependency " + string(depId) + " healed",
			})
		}
	}

	entry.Dependencies = verdicts
	r.Store.SetEntry(id, entry)
	r.Store.SetBroken(id, dependency.Broken(verdicts))
}
