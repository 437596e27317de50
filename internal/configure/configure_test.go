package configure

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/start9labs/appmgr/internal/apperr"
	"github.com/start9labs/appmgr/internal/model"
)

type fakeStore struct {
	entries map[model.PackageId]*model.InstalledPackageDataEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[model.PackageId]*model.InstalledPackageDataEntry{}}
}

func (s *fakeStore) Get(id model.PackageId) (*model.InstalledPackageDataEntry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

func (s *fakeStore) Put(id model.PackageId, entry *model.InstalledPackageDataEntry) {
	s.entries[id] = entry
}

func (s *fakeStore) AllInstalledIds() []model.PackageId {
	ids := make([]model.PackageId, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

func objectSpec(props map[string]any, order ...string) map[string]any {
	return map[string]any{"kind": "object", "order": toAnySlice(order), "properties": props}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// fakeRunner never touches a real container; CheckFn/AutoFn let each test
// script the exact verdict it wants without standing up a dispatcher.
type fakeRunner struct {
	checkFn func(dependent, dependency model.PackageId, candidate map[string]any) error
	autoFn  func(dependent, dependency model.PackageId, oldConfig map[string]any) (map[string]any, error)
}

func (r *fakeRunner) ConfigGet(ctx context.Context, pkg model.PackageId, action model.DockerAction) (map[string]any, error) {
	return nil, nil
}

func (r *fakeRunner) ConfigSet(ctx context.Context, pkg model.PackageId, action model.DockerAction, cfg map[string]any) error {
	return nil
}

func (r *fakeRunner) CheckConfig(ctx context.Context, dependent, dependency model.PackageId, check model.DockerAction, candidate map[string]any) error {
	if r.checkFn == nil {
		return nil
	}
	return r.checkFn(dependent, dependency, candidate)
}

func (r *fakeRunner) AutoConfigure(ctx context.Context, dependent, dependency model.PackageId, action model.DockerAction, oldConfig map[string]any) (map[string]any, error) {
	if r.autoFn == nil {
		return nil, nil
	}
	return r.autoFn(dependent, dependency, oldConfig)
}

func TestConfigureNoDependents(t *testing.T) {
	store := newFakeStore()
	store.Put("alice", &model.InstalledPackageDataEntry{
		Manifest: model.Manifest{
			Id: "alice",
			ConfigSpec: &model.ConfigSpecRef{Raw: objectSpec(map[string]any{
				"port": map[string]any{"kind": "number", "min": 1.0, "max": 65535.0, "integral": true, "default": 8080.0},
			}, "port")},
		},
	})

	res, err := Configure(context.Background(), &fakeRunner{}, store, "alice", map[string]any{"port": 9090.0})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"port": 9090.0}, res.Config)
	assert.Equal(t, []model.PackageId{"alice"}, res.Configured)
	assert.Empty(t, res.Breakages)
	assert.Equal(t, 9090.0, store.entries["alice"].Config["port"])
}

func TestConfigureRejectsInvalidConfig(t *testing.T) {
	store := newFakeStore()
	store.Put("alice", &model.InstalledPackageDataEntry{
		Manifest: model.Manifest{
			Id: "alice",
			ConfigSpec: &model.ConfigSpecRef{Raw: objectSpec(map[string]any{
				"port": map[string]any{"kind": "number", "min": 1.0, "max": 65535.0},
			}, "port")},
		},
	})

	_, err := Configure(context.Background(), &fakeRunner{}, store, "alice", map[string]any{"port": 99999.0})
	require.Error(t, err)
	assert.Equal(t, apperr.ConfigSpecViolation, apperr.KindOf(err))
}

func TestConfigureRejectsRuleViolation(t *testing.T) {
	store := newFakeStore()
	raw := objectSpec(map[string]any{
		"tor":      map[string]any{"kind": "boolean", "default": false},
		"hostname": map[string]any{"kind": "string", "null": true},
	}, "tor", "hostname")
	raw["rules"] = []any{
		map[string]any{
			"description": "hostname is required when tor is enabled",
			"if":          "tor",
			"then":        "hostname",
		},
	}
	store.Put("alice", &model.InstalledPackageDataEntry{
		Manifest: model.Manifest{Id: "alice", ConfigSpec: &model.ConfigSpecRef{Raw: raw}},
	})

	_, err := Configure(context.Background(), &fakeRunner{}, store, "alice", map[string]any{"tor": true, "hostname": nil})
	require.Error(t, err)
	assert.Equal(t, apperr.ConfigRulesViolation, apperr.KindOf(err))

	res, err := Configure(context.Background(), &fakeRunner{}, store, "alice", map[string]any{"tor": true, "hostname": "example.onion"})
	require.NoError(t, err)
	assert.Equal(t, []model.PackageId{"alice"}, res.Configured)
}

func TestConfigureNoopWhenUnchanged(t *testing.T) {
	store := newFakeStore()
	store.Put("alice", &model.InstalledPackageDataEntry{
		Config: map[string]any{"port": 8080.0},
		Manifest: model.Manifest{
			Id: "alice",
			ConfigSpec: &model.ConfigSpecRef{Raw: objectSpec(map[string]any{
				"port": map[string]any{"kind": "number", "default": 8080.0},
			}, "port")},
		},
	})

	res, err := Configure(context.Background(), &fakeRunner{}, store, "alice", map[string]any{"port": 8080.0})
	require.NoError(t, err)
	assert.Empty(t, res.Configured)
}

func TestConfigureBreaksDependentWhenCheckFails(t *testing.T) {
	store := newFakeStore()
	store.Put("alice", &model.InstalledPackageDataEntry{
		Manifest: model.Manifest{
			Id: "alice",
			ConfigSpec: &model.ConfigSpecRef{Raw: objectSpec(map[string]any{
				"port": map[string]any{"kind": "number", "default": 8080.0},
			}, "port")},
		},
	})
	store.Put("bob", &model.InstalledPackageDataEntry{
		Manifest: model.Manifest{
			Id: "bob",
			Dependencies: map[model.PackageId]model.Dependency{
				"alice": {Version: model.AnyVersion, Config: &model.DependencyConfig{Check: model.DockerAction{}}},
			},
		},
	})

	runner := &fakeRunner{
		checkFn: func(dependent, dependency model.PackageId, candidate map[string]any) error {
			return apperr.New(apperr.ConfigRulesViolation, "port must be 9090", nil)
		},
	}

	res, err := Configure(context.Background(), runner, store, "alice", map[string]any{"port": 9090.0})
	require.NoError(t, err)
	require.Contains(t, res.Breakages, model.PackageId("bob"))
	assert.Equal(t, model.DepErrConfigUnsatisfied, res.Breakages["bob"].Kind)
	assert.Contains(t, store.entries["bob"].Dependencies, model.PackageId("alice"))
}

func TestConfigureBreakageCascadesAsNotRunning(t *testing.T) {
	store := newFakeStore()
	store.Put("alice", &model.InstalledPackageDataEntry{
		Manifest: model.Manifest{
			Id: "alice",
			ConfigSpec: &model.ConfigSpecRef{Raw: objectSpec(map[string]any{
				"port": map[string]any{"kind": "number", "default": 8080.0},
			}, "port")},
		},
	})
	store.Put("bob", &model.InstalledPackageDataEntry{
		Manifest: model.Manifest{
			Id: "bob",
			Dependencies: map[model.PackageId]model.Dependency{
				"alice": {Version: model.AnyVersion, Config: &model.DependencyConfig{Check: model.DockerAction{}}},
			},
		},
	})
	store.Put("carol", &model.InstalledPackageDataEntry{
		Manifest: model.Manifest{
			Id: "carol",
			Dependencies: map[model.PackageId]model.Dependency{
				"bob": {Version: model.AnyVersion},
			},
		},
	})

	runner := &fakeRunner{
		checkFn: func(dependent, dependency model.PackageId, candidate map[string]any) error {
			return apperr.New(apperr.ConfigRulesViolation, "port must be 9090", nil)
		},
	}

	res, err := Configure(context.Background(), runner, store, "alice", map[string]any{"port": 9090.0})
	require.NoError(t, err)
	require.Contains(t, res.Breakages, model.PackageId("bob"))
	assert.Equal(t, model.DepErrConfigUnsatisfied, res.Breakages["bob"].Kind)
	require.Contains(t, res.Breakages, model.PackageId("carol"))
	assert.Equal(t, model.DepErrNotRunning, res.Breakages["carol"].Kind)
	assert.Equal(t, model.DepErrNotRunning, store.entries["carol"].Dependencies["bob"].Kind)
}

func TestConfigureAutoConfiguresDependent(t *testing.T) {
	store := newFakeStore()
	store.Put("alice", &model.InstalledPackageDataEntry{
		Manifest: model.Manifest{
			Id: "alice",
			ConfigSpec: &model.ConfigSpecRef{Raw: objectSpec(map[string]any{
				"port": map[string]any{"kind": "number", "default": 8080.0},
			}, "port")},
		},
	})
	store.Put("bob", &model.InstalledPackageDataEntry{
		Config: map[string]any{"aliceport": 8080.0},
		Manifest: model.Manifest{
			Id: "bob",
			ConfigSpec: &model.ConfigSpecRef{Raw: objectSpec(map[string]any{
				"aliceport": map[string]any{"kind": "number", "default": 8080.0},
			}, "aliceport")},
			Dependencies: map[model.PackageId]model.Dependency{
				"alice": {
					Version: model.AnyVersion,
					Config: &model.DependencyConfig{
						Check:         model.DockerAction{},
						AutoConfigure: &model.DockerAction{},
					},
				},
			},
		},
	})

	calls := 0
	var autoSaw map[string]any
	runner := &fakeRunner{
		checkFn: func(dependent, dependency model.PackageId, candidate map[string]any) error {
			calls++
			if calls == 1 {
				return apperr.New(apperr.ConfigRulesViolation, "port mismatch", nil)
			}
			return nil
		},
		autoFn: func(dependent, dependency model.PackageId, oldConfig map[string]any) (map[string]any, error) {
			autoSaw = oldConfig
			return map[string]any{"aliceport": 9090.0}, nil
		},
	}

	res, err := Configure(context.Background(), runner, store, "alice", map[string]any{"port": 9090.0})
	require.NoError(t, err)
	assert.Empty(t, res.Breakages)
	// The repair action is handed bob's own prior config, not alice's new one.
	assert.Equal(t, map[string]any{"aliceport": 8080.0}, autoSaw)
	assert.Equal(t, 9090.0, store.entries["bob"].Config["aliceport"])
}
