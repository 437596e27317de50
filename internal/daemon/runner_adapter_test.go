package daemon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/start9labs/appmgr/internal/action"
	"github.com/start9labs/appmgr/internal/apperr"
	"github.com/start9labs/appmgr/internal/model"
)

// fakeRuntime scripts RunEphemeral/Exec's exit code and stdout so each test
// can assert how an adapter classifies it without a real containerd socket.
type fakeRuntime struct {
	stdout   []byte
	exitCode int
	err      error
}

func (f *fakeRuntime) CreateContainer(ctx context.Context, name string, img model.DockerAction, mounts map[string]model.Mount, ip string) error {
	return nil
}

func (f *fakeRuntime) RunEphemeral(ctx context.Context, img model.DockerAction, stdin []byte, mounts map[string]model.Mount) ([]byte, int, error) {
	return f.stdout, f.exitCode, f.err
}

func (f *fakeRuntime) Exec(ctx context.Context, containerName string, args []string, stdin []byte) ([]byte, int, error) {
	return f.stdout, f.exitCode, f.err
}

func (f *fakeRuntime) IsRunning(ctx context.Context, containerName string) (bool, error) {
	return true, nil
}

func manifestOf(m model.Manifest) manifestSource {
	return func(id model.PackageId) (model.Manifest, bool) {
		if id != m.Id {
			return model.Manifest{}, false
		}
		return m, true
	}
}

func TestConfigureRunnerCheckConfigClassifiesNonzeroExitAsConfigRulesViolation(t *testing.T) {
	rt := &fakeRuntime{stdout: []byte("port already in use"), exitCode: 1}
	r := newConfigureRunner(rt, manifestOf(model.Manifest{Id: "dependent"}))

	err := r.CheckConfig(context.Background(), "dependent", "dependency", model.DockerAction{}, map[string]any{"port": 9999})

	require.Error(t, err)
	assert.Equal(t, apperr.ConfigRulesViolation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "port already in use")
}

func TestConfigureRunnerCheckConfigSucceedsOnZeroExit(t *testing.T) {
	rt := &fakeRuntime{exitCode: 0}
	r := newConfigureRunner(rt, manifestOf(model.Manifest{Id: "dependent"}))

	err := r.CheckConfig(context.Background(), "dependent", "dependency", model.DockerAction{}, nil)

	assert.NoError(t, err)
}

func TestConfigureRunnerConfigGetDecodesJSONStdout(t *testing.T) {
	rt := &fakeRuntime{stdout: []byte(`{"port":8080}`), exitCode: 0}
	r := newConfigureRunner(rt, manifestOf(model.Manifest{Id: "pkg"}))

	cfg, err := r.ConfigGet(context.Background(), "pkg", model.DockerAction{IOFormat: "json"})

	require.NoError(t, err)
	assert.Equal(t, float64(8080), cfg["port"])
}

func TestConfigureRunnerAutoConfigureClassifiesNonzeroExit(t *testing.T) {
	rt := &fakeRuntime{exitCode: 3}
	r := newConfigureRunner(rt, manifestOf(model.Manifest{Id: "dependent"}))

	_, err := r.AutoConfigure(context.Background(), "dependent", "dependency", model.DockerAction{}, nil)

	require.Error(t, err)
	assert.Equal(t, apperr.AutoConfigure, apperr.KindOf(err))
}

func TestCommittedConfigCheckerMirrorsConfigureRunnerClassification(t *testing.T) {
	rt := &fakeRuntime{exitCode: 1}
	c := newCommittedConfigChecker(rt, manifestOf(model.Manifest{Id: "dependent"}))

	err := c.CheckConfig(context.Background(), "dependent", "dependency", model.DockerAction{})

	require.Error(t, err)
	assert.Equal(t, apperr.ConfigRulesViolation, apperr.KindOf(err))
}

func TestHealthActionRunnerReturnsDisabledExitCodeUnclassified(t *testing.T) {
	manifest := model.Manifest{
		Id: "pkg",
		HealthChecks: []model.HealthCheck{
			{Name: "balance", Action: model.DockerAction{}},
		},
	}
	rt := &fakeRuntime{stdout: []byte("no channels yet"), exitCode: 59}
	h := newHealthActionRunner(rt, manifestOf(manifest))

	exitCode, stdout, err := h.RunHealthCheck(context.Background(), "pkg", "balance")

	require.NoError(t, err)
	assert.Equal(t, 59, exitCode)
	assert.Equal(t, "no channels yet", stdout)
}

func TestHealthActionRunnerRejectsUndeclaredCheck(t *testing.T) {
	manifest := model.Manifest{Id: "pkg"}
	h := newHealthActionRunner(&fakeRuntime{}, manifestOf(manifest))

	_, _, err := h.RunHealthCheck(context.Background(), "pkg", "missing")

	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestRunActionInjectsIntoOwnersContainer(t *testing.T) {
	rt := &fakeRuntime{exitCode: 0, stdout: []byte("ok")}
	manifest := model.Manifest{Id: "pkg", Version: model.MustParseVersion("1.0.0.0")}
	manifests := manifestOf(manifest)

	act := model.DockerAction{Inject: true, Entrypoint: []string{"check-config"}}
	stdout, exitCode, err := runAction(context.Background(), rt, "pkg", manifests, act, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, "ok", string(stdout))
	_ = action.ContainerName
}
