package dependency

import (
	"context"
	"fmt"

	"github.com/start9labs/appmgr/internal/model"
)

// Graph is the minimal view of the installed package set the cascade walk
// needs: every installed package's manifest (to read its dependency map)
// and current status.
type Graph interface {
	Installed(id model.PackageId) (*Installed, bool)
	AllIds() []model.PackageId
}

// Dependents returns every installed package that declares id as a
// dependency.
func Dependents(g Graph, id model.PackageId) []model.PackageId {
	var out []model.PackageId
	for _, candidateId := range g.AllIds() {
		inst, ok := g.Installed(candidateId)
		if !ok {
			continue
		}
		if _, has := inst.Manifest.Dependencies[id]; has {
			out = append(out, candidateId)
		}
	}
	return out
}

// CheckAll recomputes dependency satisfaction for every dependency of pkg,
// returning a map from dependency id to its verdict (nil entries mean
// satisfied). Optional dependencies that are unsatisfied are reported with
// a nil verdict per SatisfiedOptional, so only required-dependency
// breakage ever reaches the broken-packages set. A
// non-nil error means one dependency's check failed fatally; the
// partial map built so far is returned alongside it but callers must not
// persist it as pkg's new dependency state.
func CheckAll(ctx context.Context, checker ConfigChecker, g Graph, pkgId model.PackageId, pkg *Installed) (map[model.PackageId]*model.DependencyError, error) {
	out := make(map[model.PackageId]*model.DependencyError, len(pkg.Manifest.Dependencies))
	for depId, dep := range pkg.Manifest.Dependencies {
		depInstalled, _ := g.Installed(depId)
		verdict, err := Satisfied(ctx, checker, pkgId, depId, dep, depInstalled)
		if err != nil {
			return out, err
		}
		out[depId] = SatisfiedOptional(dep, verdict)
	}
	return out, nil
}

// Broken reports whether any entry of verdicts is non-nil, i.e. whether pkg
// should be added to the database's broken_packages set.
func Broken(verdicts map[model.PackageId]*model.DependencyError) bool {
	for _, v := range verdicts {
		if v != nil {
			return true
		}
	}
	return false
}

// Cascade recomputes dependency satisfaction for id and every package that
// (transitively) depends on it, in breadth-first order starting from id,
// so a single dependency state change is propagated exactly once to each
// affected dependent regardless of how many paths reach it. A fatal error
// checking one package halts the walk at that package: results
// already computed for earlier packages are still returned, but nothing
// past the failure is, since a dependent's own dependent-set may depend on
// state CheckAll couldn't establish.
func Cascade(ctx context.Context, checker ConfigChecker, g Graph, id model.PackageId) (map[model.PackageId]map[model.PackageId]*model.DependencyError, error) {
	results := make(map[model.PackageId]map[model.PackageId]*model.DependencyError)
	visited := map[model.PackageId]bool{}
	queue := []model.PackageId{id}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true

		inst, ok := g.Installed(cur)
		if !ok {
			continue
		}
		verdicts, err := CheckAll(ctx, checker, g, cur, inst)
		if err != nil {
			return results, fmt.Errorf("cascading from %s: checking %s: %w", id, cur, err)
		}
		results[cur] = verdicts

		for _, dependent := range Dependents(g, cur) {
			if !visited[dependent] {
				queue = append(queue, dependent)
			}
		}
	}
	return results, nil
}
