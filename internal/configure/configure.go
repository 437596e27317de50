package configure

import (
	"context"
	"hash/fnv"
	"reflect"

	"github.com/start9labs/appmgr/internal/apperr"
	"github.com/start9labs/appmgr/internal/configspec"
	"github.com/start9labs/appmgr/internal/model"
)

// Store is the slice of the document database configure needs: read and
// write a single installed package's durable record. internal/daemon adapts
// a db.Tx to this.
type Store interface {
	Get(id model.PackageId) (*model.InstalledPackageDataEntry, bool)
	Put(id model.PackageId, entry *model.InstalledPackageDataEntry)
	AllInstalledIds() []model.PackageId
}

// Runner is every sandboxed action configure needs to invoke, all mediated
// through internal/action.Dispatcher by internal/daemon. candidateConfig in
// CheckConfig is the dependency's *prospective* new config, not whatever is
// currently persisted — configure must validate a change before committing
// it, which internal/dependency.ConfigChecker (built for the
// already-committed case the reconciler and install path use) can't
// express. AutoConfigure instead receives oldConfig, the dependent's own
// prior config, and returns the repaired replacement for it; the action
// reads the dependency's new state itself through its sandboxed mounts.
type Runner interface {
	ConfigGet(ctx context.Context, pkg model.PackageId, action model.DockerAction) (map[string]any, error)
	ConfigSet(ctx context.Context, pkg model.PackageId, action model.DockerAction, cfg map[string]any) error
	CheckConfig(ctx context.Context, dependent, dependency model.PackageId, check model.DockerAction, candidateConfig map[string]any) error
	AutoConfigure(ctx context.Context, dependent, dependency model.PackageId, action model.DockerAction, oldConfig map[string]any) (map[string]any, error)
}

// Result summarizes everything one Configure call (including whatever it
// recursively propagated) changed.
type Result struct {
	// Config is the final, validated config written for the package
	// Configure was called on.
	Config map[string]any
	// Configured lists every package (including the one Configure was
	// called on) whose stored config actually changed, in the order each
	// was applied.
	Configured []model.PackageId
	// Breakages holds, for every dependent that could not be repaired,
	// the DependencyError now recorded against it.
	Breakages map[model.PackageId]*model.DependencyError
}

// resolverForStore builds a configspec.PointerResolver reading from store's
// current (in-progress) state, so a Pointer targeting a package whose config
// was just updated earlier in this same cascade observes the new value.
type resolverForStore struct {
	store Store
}

func (r *resolverForStore) ResolvePackageConfig(target configspec.PointerTarget) (any, error) {
	entry, ok := r.store.Get(target.Package)
	if !ok {
		return nil, apperr.New(apperr.NotFound, "pointer target package "+string(target.Package)+" not installed", nil)
	}
	return selectPath(entry.Config, target.Selector), nil
}

func (r *resolverForStore) ResolveSystem(selector string) (any, error) {
	// A bare store has no system record (lan-address, tor-address, ...) to
	// read, so a system pointer reached during Configure always fails here.
	return nil, apperr.New(apperr.ConfigGen, "system pointer selector "+selector+" unavailable", nil)
}

// selectPath walks a dot-separated path ("a.b.c") through nested
// map[string]any values, returning nil if any segment is absent or not a
// map. It's deliberately forgiving: an absent value just resolves to a JSON
// null, matched against the Pointer's Nullable()==true contract.
func selectPath(v any, path string) any {
	if path == "" {
		return v
	}
	cur := v
	for _, seg := range splitPath(path) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out = append(out, path[start:i])
			start = i + 1
		}
	}
	out = append(out, path[start:])
	return out
}

// seedFor derives a deterministic generation seed from a package id, so the
// same package always generates the same default config absent any
// override.
func seedFor(id model.PackageId) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64())
}

// Configure sets pkgId's config to newConfig (or, if newConfig is nil,
// regenerates/re-resolves it from its existing stored config) and
// propagates the change to every package that depends on it, repairing or
// breaking each dependent's dependency on pkgId as needed. It returns the
// full set of packages it touched and any breakages it produced.
func Configure(ctx context.Context, runner Runner, store Store, pkgId model.PackageId, newConfig map[string]any) (*Result, error) {
	res := &Result{Breakages: map[model.PackageId]*model.DependencyError{}}
	visited := map[model.PackageId]bool{}
	if err := configureOne(ctx, runner, store, pkgId, newConfig, res, visited); err != nil {
		return nil, err
	}
	return res, nil
}

func configureOne(ctx context.Context, runner Runner, store Store, pkgId model.PackageId, newConfig map[string]any, res *Result, visited map[model.PackageId]bool) error {
	if visited[pkgId] {
		// A dependency cycle (or a diamond already handled this tick) —
		// configure() never revisits a package twice in one cascade.
		return nil
	}
	visited[pkgId] = true

	entry, ok := store.Get(pkgId)
	if !ok {
		return apperr.New(apperr.NotFound, "package "+string(pkgId)+" not installed", nil)
	}
	manifest := entry.Manifest
	if manifest.ConfigSpec == nil {
		return apperr.New(apperr.ConfigGen, string(pkgId)+" declares no configuration", nil)
	}

	resolver := &resolverForStore{store: store}
	spec, err := configspec.Compile(manifest.ConfigSpec.Raw, resolver)
	if err != nil {
		return apperr.New(apperr.ConfigGen, "compiling "+string(pkgId)+"'s config spec", err)
	}

	candidate := newConfig
	if candidate == nil {
		// No explicit value given: this is either the dependent's first
		// configuration (entry.Config empty) or a recursive call re-running
		// Update to re-resolve this package's own pointers before deciding
		// whether anything downstream needs to move.
		if len(entry.Config) == 0 {
			gen, err := configspec.Gen(ctx, spec, seedFor(pkgId))
			if err != nil {
				return apperr.New(apperr.ConfigGen, "generating default config for "+string(pkgId), err)
			}
			genMap, _ := gen.(map[string]any)
			candidate = genMap
		} else {
			ordered := configspec.ToOrderedConfig(spec, entry.Config)
			cfg, ok := ordered.(*configspec.Config)
			if !ok {
				cfg = configspec.NewConfig()
			}
			if err := configspec.Update(spec, cfg); err != nil {
				return apperr.New(apperr.ConfigGen, "refreshing pointers for "+string(pkgId), err)
			}
			candidate, _ = configspec.FromOrderedConfig(cfg).(map[string]any)
		}
	}

	if matchErr := spec.Matches(candidate); matchErr != nil {
		return apperr.New(apperr.ConfigSpecViolation, "new config for "+string(pkgId)+" does not match its spec: "+matchErr.Error(), nil)
	}
	if rules := configspec.CompileRules(manifest.ConfigSpec.Raw); len(rules) > 0 {
		ordered, _ := configspec.ToOrderedConfig(spec, candidate).(*configspec.Config)
		if desc := configspec.EvaluateRules(rules, ordered); desc != "" {
			violation := &configspec.RulesViolationError{Description: desc}
			return apperr.New(apperr.ConfigRulesViolation, "new config for "+string(pkgId)+": "+violation.Error(), nil)
		}
	}

	unchanged := reflect.DeepEqual(candidate, entry.Config)
	if unchanged {
		return nil
	}

	entry.Config = candidate
	entry.Configured = true
	store.Put(pkgId, entry)
	if len(res.Configured) == 0 {
		// The first package configured in a cascade is always the one
		// Configure was called on; dependents come after it.
		res.Config = candidate
	}
	res.Configured = append(res.Configured, pkgId)

	return propagate(ctx, runner, store, pkgId, candidate, res, visited)
}

// propagate walks every package that declares pkgId as a dependency and
// either confirms it's still satisfied, repairs it via its declared
// auto_configure action, or marks it broken — then recurses into any
// dependent whose own config changed as a result.
func propagate(ctx context.Context, runner Runner, store Store, pkgId model.PackageId, newConfig map[string]any, res *Result, visited map[model.PackageId]bool) error {
	for _, depId := range store.AllInstalledIds() {
		if depId == pkgId {
			continue
		}
		dependentEntry, ok := store.Get(depId)
		if !ok {
			continue
		}
		dep, declares := dependentEntry.Manifest.Dependencies[pkgId]
		if !declares {
			continue
		}

		changed, err := reconcileDependent(ctx, runner, store, depId, dependentEntry, pkgId, dep, newConfig, res)
		if err != nil {
			return err
		}
		if changed {
			if err := configureOne(ctx, runner, store, depId, nil, res, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

// reconcileDependent checks depId's declared requirement on pkgId against
// pkgId's new config, repairs it if possible, and reports whether depId's
// own config was mutated as a side effect (which requires a further
// recursive Configure pass to re-propagate from depId).
func reconcileDependent(ctx context.Context, runner Runner, store Store, depId model.PackageId, dependentEntry *model.InstalledPackageDataEntry, pkgId model.PackageId, dep model.Dependency, newConfig map[string]any, res *Result) (bool, error) {
	changed := false

	if dep.Config != nil {
		err := runner.CheckConfig(ctx, depId, pkgId, dep.Config.Check, newConfig)
		if err != nil {
			if !apperr.KindIs(err, apperr.ConfigRulesViolation) {
				return false, apperr.New(apperr.ConfigGen, "checking "+string(depId)+"'s config against "+string(pkgId), err)
			}
			if dep.Config.AutoConfigure == nil {
				breakDependent(store, dependentEntry, depId, pkgId, err.Error(), res)
				return false, nil
			}
			repaired, autoErr := runner.AutoConfigure(ctx, depId, pkgId, *dep.Config.AutoConfigure, dependentEntry.Config)
			if autoErr != nil {
				breakDependent(store, dependentEntry, depId, pkgId, autoErr.Error(), res)
				return false, nil
			}
			if recheckErr := runner.CheckConfig(ctx, depId, pkgId, dep.Config.Check, newConfig); recheckErr != nil {
				breakDependent(store, dependentEntry, depId, pkgId, recheckErr.Error(), res)
				return false, nil
			}
			if !reflect.DeepEqual(repaired, dependentEntry.Config) {
				dependentEntry.Config = repaired
				store.Put(depId, dependentEntry)
				changed = true
			}
			delete(res.Breakages, depId)
		} else {
			delete(res.Breakages, depId)
		}
	}

	// Even with no explicit check, a dependent may hold a Pointer into
	// pkgId's config (e.g. its LAN address); configureOne's pointer-refresh
	// path (candidate==nil branch) will pick that up on the recursive call
	// this function's caller makes whenever it finds one.
	if hasPointerTo(dependentEntry, pkgId) {
		changed = true
	}

	return changed, nil
}

func breakDependent(store Store, dependentEntry *model.InstalledPackageDataEntry, depId, pkgId model.PackageId, detail string, res *Result) {
	derr := &model.DependencyError{Kind: model.DepErrConfigUnsatisfied, ConfigError: detail}
	if dependentEntry.Dependencies == nil {
		dependentEntry.Dependencies = map[model.PackageId]*model.DependencyError{}
	}
	dependentEntry.Dependencies[pkgId] = derr
	store.Put(depId, dependentEntry)
	res.Breakages[depId] = derr
	breakTransitive(store, depId, res, map[model.PackageId]bool{depId: true})
}

// breakTransitive records a NotRunning dependency error against every
// package that (transitively) depends on brokenId: a dependent whose own
// config check failed is ConfigUnsatisfied, but everything downstream of it
// only knows its dependency can no longer be counted on.
func breakTransitive(store Store, brokenId model.PackageId, res *Result, seen map[model.PackageId]bool) {
	for _, id := range store.AllInstalledIds() {
		if seen[id] {
			continue
		}
		entry, ok := store.Get(id)
		if !ok {
			continue
		}
		if _, declares := entry.Manifest.Dependencies[brokenId]; !declares {
			continue
		}
		seen[id] = true
		derr := &model.DependencyError{Kind: model.DepErrNotRunning}
		if entry.Dependencies == nil {
			entry.Dependencies = map[model.PackageId]*model.DependencyError{}
		}
		entry.Dependencies[brokenId] = derr
		store.Put(id, entry)
		if _, already := res.Breakages[id]; !already {
			res.Breakages[id] = derr
		}
		breakTransitive(store, id, res, seen)
	}
}

// hasPointerTo reports whether dependentEntry's compiled config spec
// contains any Pointer node targeting pkgId, without resolving it — used
// purely to decide whether a re-propagation pass is warranted.
func hasPointerTo(dependentEntry *model.InstalledPackageDataEntry, pkgId model.PackageId) bool {
	if dependentEntry.Manifest.ConfigSpec == nil {
		return false
	}
	spec, err := configspec.Compile(dependentEntry.Manifest.ConfigSpec.Raw, noopResolver{})
	if err != nil {
		return false
	}
	for _, ptr := range configspec.CollectPointers(spec) {
		if !ptr.Target.System && ptr.Target.Package == pkgId {
			return true
		}
	}
	return false
}

// noopResolver lets hasPointerTo compile a spec purely to inspect its
// shape; none of its Pointer nodes are ever resolved.
type noopResolver struct{}

func (noopResolver) ResolvePackageConfig(configspec.PointerTarget) (any, error) { return nil, nil }
func (noopResolver) ResolveSystem(string) (any, error)                         { return nil, nil }
