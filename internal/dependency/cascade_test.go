package dependency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/start9labs/appmgr/internal/model"
)

// fakeGraph is an in-memory Graph fixture: a<-b<-c, i.e. b depends on a and
// c depends on b, so a two-hop cascade from a reaches c.
type fakeGraph map[model.PackageId]*Installed

func (g fakeGraph) Installed(id model.PackageId) (*Installed, bool) {
	inst, ok := g[id]
	return inst, ok
}

func (g fakeGraph) AllIds() []model.PackageId {
	ids := make([]model.PackageId, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	return ids
}

func chainGraph() fakeGraph {
	running := model.RunningStatus(fixedTime(), map[string]model.HealthCheckResult{
		"main": {Name: "main", Kind: model.HealthCheckSuccess},
	})
	return fakeGraph{
		"a": {Manifest: model.Manifest{Version: model.MustParseVersion("1.0.0.0")}, Status: running},
		"b": {
			Manifest: model.Manifest{
				Version:      model.MustParseVersion("1.0.0.0"),
				Dependencies: map[model.PackageId]model.Dependency{"a": {Version: model.AnyVersion}},
			},
			Status: running,
		},
		"c": {
			Manifest: model.Manifest{
				Version:      model.MustParseVersion("1.0.0.0"),
				Dependencies: map[model.PackageId]model.Dependency{"b": {Version: model.AnyVersion}},
			},
			Status: running,
		},
	}
}

func TestCascadeReachesDependentsOfDependents(t *testing.T) {
	g := chainGraph()
	byPkg, err := Cascade(context.Background(), noopChecker{}, g, "a")
	assert.NoError(t, err)

	assert.Contains(t, byPkg, model.PackageId("a"))
	assert.Contains(t, byPkg, model.PackageId("b"))
	assert.Contains(t, byPkg, model.PackageId("c"))
	assert.Nil(t, byPkg["b"]["a"])
	assert.Nil(t, byPkg["c"]["b"])
}

func TestCascadeMarksDependentNotRunningWhenDependencyStops(t *testing.T) {
	g := chainGraph()
	a := g["a"]
	a.Status = model.StoppedStatus()

	byPkg, err := Cascade(context.Background(), noopChecker{}, g, "a")
	assert.NoError(t, err)

	assert.Equal(t, model.DepErrNotRunning, byPkg["b"]["a"].Kind)
}

func TestCascadeHaltsOnFatalCheckError(t *testing.T) {
	g := chainGraph()
	checker := noopChecker{}
	g["b"].Manifest.Dependencies["a"] = model.Dependency{
		Version: model.AnyVersion,
		Config:  &model.DependencyConfig{Check: model.DockerAction{Image: "check"}},
	}
	checker.err = assert.AnError

	byPkg, err := Cascade(context.Background(), checker, g, "a")
	assert.Error(t, err)
	assert.Contains(t, byPkg, model.PackageId("a"))
	assert.NotContains(t, byPkg, model.PackageId("b"))
	assert.NotContains(t, byPkg, model.PackageId("c"))
}
