package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/start9labs/appmgr/internal/events"
	"github.com/start9labs/appmgr/internal/model"
)

type fakeStore struct {
	entries map[model.PackageId]*model.InstalledPackageDataEntry
	broken  map[model.PackageId]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries: map[model.PackageId]*model.InstalledPackageDataEntry{},
		broken:  map[model.PackageId]bool{},
	}
}

func (s *fakeStore) Entry(id model.PackageId) (*model.InstalledPackageDataEntry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

func (s *fakeStore) SetEntry(id model.PackageId, entry *model.InstalledPackageDataEntry) {
	s.entries[id] = entry
}

func (s *fakeStore) AllInstalledIds() []model.PackageId {
	ids := make([]model.PackageId, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

func (s *fakeStore) SetBroken(id model.PackageId, broken bool) {
	s.broken[id] = broken
}

type fakeRuntime struct {
	running      map[string]bool
	startCalls   []string
	stopCalls    []string
	restartCalls int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{running: map[string]bool{}}
}

func (r *fakeRuntime) IsRunning(ctx context.Context, containerName string) (bool, error) {
	return r.running[containerName], nil
}

func (r *fakeRuntime) Start(ctx context.Context, containerName string) error {
	r.startCalls = append(r.startCalls, containerName)
	r.running[containerName] = true
	return nil
}

func (r *fakeRuntime) Stop(ctx context.Context, containerName string, timeout time.Duration) error {
	r.stopCalls = append(r.stopCalls, containerName)
	r.running[containerName] = false
	return nil
}

func (r *fakeRuntime) Restart(ctx context.Context) error {
	r.restartCalls++
	return nil
}

type fakeHealthRunner struct {
	exitCode int
}

func (h *fakeHealthRunner) RunHealthCheck(ctx context.Context, packageID, checkName string) (int, string, error) {
	return h.exitCode, "", nil
}

type noopConfigChecker struct{}

func (noopConfigChecker) CheckConfig(ctx context.Context, dependent, dependency model.PackageId, check model.DockerAction) error {
	return nil
}

func manifestFor(id model.PackageId) model.Manifest {
	return model.Manifest{Id: id, Version: model.MustParseVersion("1.0.0.0")}
}

func TestSynchronizeStartsStoppedContainer(t *testing.T) {
	store := newFakeStore()
	store.SetEntry("alice", &model.InstalledPackageDataEntry{
		Manifest: manifestFor("alice"),
		Status:   model.RunningStatus(time.Now(), nil),
	})
	rt := newFakeRuntime()
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	r := New(rt, &fakeHealthRunner{}, noopConfigChecker{}, store, broker)
	r.Synchronize(context.Background())

	assert.Len(t, rt.startCalls, 1)
}

func TestSynchronizeStoppingTransitionsToStopped(t *testing.T) {
	store := newFakeStore()
	store.SetEntry("alice", &model.InstalledPackageDataEntry{
		Manifest: manifestFor("alice"),
		Status:   model.StoppingStatus(),
	})
	rt := newFakeRuntime()
	rt.running["service_alice_1.0.0.0"] = true
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	r := New(rt, &fakeHealthRunner{}, noopConfigChecker{}, store, broker)
	r.Synchronize(context.Background())

	assert.Len(t, rt.stopCalls, 1)
	entry, _ := store.Entry("alice")
	assert.Equal(t, model.MainStatusStopped, entry.Status.Kind)
	assert.Zero(t, rt.restartCalls)
}

func TestSynchronizeStopsRogueContainerForStoppedPackage(t *testing.T) {
	store := newFakeStore()
	store.SetEntry("alice", &model.InstalledPackageDataEntry{
		Manifest: manifestFor("alice"),
		Status:   model.StoppedStatus(),
	})
	rt := newFakeRuntime()
	rt.running["service_alice_1.0.0.0"] = true
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	r := New(rt, &fakeHealthRunner{}, noopConfigChecker{}, store, broker)
	r.Synchronize(context.Background())

	assert.Len(t, rt.stopCalls, 1)
	entry, _ := store.Entry("alice")
	assert.Equal(t, model.MainStatusStopped, entry.Status.Kind)
	assert.Zero(t, rt.restartCalls)
}

func TestSynchronizeRecordsRuntimeAnomaly(t *testing.T) {
	store := newFakeStore()
	store.SetEntry("alice", &model.InstalledPackageDataEntry{
		Manifest: manifestFor("alice"),
		Status:   model.StoppingStatus(),
	})
	rt := &fakeRuntime{running: map[string]bool{"service_alice_1.0.0.0": true}}
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	r := New(&stickyRuntime{fakeRuntime: rt}, &fakeHealthRunner{}, noopConfigChecker{}, store, broker)
	r.Synchronize(context.Background())

	assert.Equal(t, 1, rt.restartCalls)
	entry, _ := store.Entry("alice")
	assert.Equal(t, model.MainStatusStopping, entry.Status.Kind)
}

// stickyRuntime wraps fakeRuntime so Stop leaves the container "running",
// reproducing the anomaly path without special-casing fakeRuntime itself.
type stickyRuntime struct {
	*fakeRuntime
}

func (s *stickyRuntime) Stop(ctx context.Context, containerName string, timeout time.Duration) error {
	s.stopCalls = append(s.stopCalls, containerName)
	return nil
}

func TestHealthTransitionsToStoppingOnCriticalFailure(t *testing.T) {
	store := newFakeStore()
	m := manifestFor("alice")
	m.HealthChecks = []model.HealthCheck{{Name: "main", Critical: true}}
	store.SetEntry("alice", &model.InstalledPackageDataEntry{
		Manifest: m,
		Status:   model.RunningStatus(time.Now(), nil),
	})
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	r := New(newFakeRuntime(), &fakeHealthRunner{exitCode: 1}, noopConfigChecker{}, store, broker)
	r.Health(context.Background())

	entry, _ := store.Entry("alice")
	assert.Equal(t, model.MainStatusStopping, entry.Status.Kind)
	require.Contains(t, entry.Status.Health, "main")
	assert.Equal(t, model.HealthCheckFailure, entry.Status.Health["main"].Kind)

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventHealthCheckCritical, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a health-check.critical event")
	}
}

func TestHealthDisabledCheckDoesNotTransition(t *testing.T) {
	store := newFakeStore()
	m := manifestFor("alice")
	m.HealthChecks = []model.HealthCheck{{Name: "main", Critical: true}}
	store.SetEntry("alice", &model.InstalledPackageDataEntry{
		Manifest: m,
		Status:   model.RunningStatus(time.Now(), nil),
	})
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	r := New(newFakeRuntime(), &fakeHealthRunner{exitCode: 59}, noopConfigChecker{}, store, broker)
	r.Health(context.Background())

	entry, _ := store.Entry("alice")
	assert.Equal(t, model.MainStatusRunning, entry.Status.Kind)
	assert.Equal(t, model.HealthCheckDisabled, entry.Status.Health["main"].Kind)
}
