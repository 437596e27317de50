package dependency

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/start9labs/appmgr/internal/model"
)

func manifestDependingOn(ids ...model.PackageId) model.Manifest {
	deps := make(map[model.PackageId]model.Dependency, len(ids))
	for _, id := range ids {
		deps[id] = model.Dependency{Version: model.AnyVersion}
	}
	return model.Manifest{Dependencies: deps}
}

func TestHasCycleNoCycle(t *testing.T) {
	g := BuildGraph(map[model.PackageId]model.Manifest{
		"a": manifestDependingOn("b"),
		"b": manifestDependingOn("c"),
		"c": {},
	}, "d", manifestDependingOn("a"))
	assert.False(t, HasCycle(g))
}

func TestHasCycleDirect(t *testing.T) {
	g := BuildGraph(map[model.PackageId]model.Manifest{
		"a": manifestDependingOn("b"),
	}, "b", manifestDependingOn("a"))
	assert.True(t, HasCycle(g))
}

func TestHasCycleSelfLoop(t *testing.T) {
	g := BuildGraph(nil, "a", manifestDependingOn("a"))
	assert.True(t, HasCycle(g))
}

func TestHasCycleLongerChain(t *testing.T) {
	g := BuildGraph(map[model.PackageId]model.Manifest{
		"a": manifestDependingOn("b"),
		"b": manifestDependingOn("c"),
	}, "c", manifestDependingOn("a"))
	assert.True(t, HasCycle(g))
}

func TestBuildGraphOmitsUninstalledDependencies(t *testing.T) {
	g := BuildGraph(nil, "a", manifestDependingOn("not-installed"))
	assert.False(t, HasCycle(g))
	assert.Empty(t, g["a"])
}
