package dependency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/start9labs/appmgr/internal/apperr"
	"github.com/start9labs/appmgr/internal/model"
)

func fixedTime() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

type noopChecker struct{ err error }

func (c noopChecker) CheckConfig(ctx context.Context, dependent, dependency model.PackageId, check model.DockerAction) error {
	return c.err
}

func TestSatisfiedNotInstalled(t *testing.T) {
	dep := model.Dependency{Version: model.AnyVersion}
	verdict, err := Satisfied(context.Background(), noopChecker{}, "alice", "bob", dep, nil)
	assert.NoError(t, err)
	assert.Equal(t, model.DepErrNotInstalled, verdict.Kind)
	assert.Equal(t, "Not Installed", verdict.Error())
}

func TestSatisfiedIncorrectVersion(t *testing.T) {
	dep := model.Dependency{Version: model.MustParseVersionRange(">=2.0.0.0")}
	installed := &Installed{
		Manifest: model.Manifest{Version: model.MustParseVersion("1.0.0.0")},
		Status:   model.RunningStatus(fixedTime(), nil),
	}
	verdict, err := Satisfied(context.Background(), noopChecker{}, "alice", "bob", dep, installed)
	assert.NoError(t, err)
	assert.Equal(t, model.DepErrIncorrectVersion, verdict.Kind)
}

func TestSatisfiedNotRunning(t *testing.T) {
	dep := model.Dependency{Version: model.AnyVersion}
	installed := &Installed{
		Manifest: model.Manifest{Version: model.MustParseVersion("1.0.0.0")},
		Status:   model.StoppedStatus(),
	}
	verdict, err := Satisfied(context.Background(), noopChecker{}, "alice", "bob", dep, installed)
	assert.NoError(t, err)
	assert.Equal(t, model.DepErrNotRunning, verdict.Kind)
}

func TestSatisfiedHealthy(t *testing.T) {
	dep := model.Dependency{Version: model.AnyVersion}
	installed := &Installed{
		Manifest: model.Manifest{Version: model.MustParseVersion("1.0.0.0")},
		Status: model.RunningStatus(fixedTime(), map[string]model.HealthCheckResult{
			"main": {Name: "main", Kind: model.HealthCheckSuccess},
		}),
	}
	verdict, err := Satisfied(context.Background(), noopChecker{}, "alice", "bob", dep, installed)
	assert.NoError(t, err)
	assert.Nil(t, verdict)
}

func TestSatisfiedConfigRulesViolationIsUnsatisfied(t *testing.T) {
	dep := model.Dependency{
		Version: model.AnyVersion,
		Config:  &model.DependencyConfig{Check: model.DockerAction{Image: "check"}},
	}
	installed := &Installed{
		Manifest: model.Manifest{Version: model.MustParseVersion("1.0.0.0")},
		Status: model.RunningStatus(fixedTime(), map[string]model.HealthCheckResult{
			"main": {Name: "main", Kind: model.HealthCheckSuccess},
		}),
	}
	checker := noopChecker{err: apperr.New(apperr.ConfigRulesViolation, "bob requires alice.foo=true", nil)}
	verdict, err := Satisfied(context.Background(), checker, "alice", "bob", dep, installed)
	assert.NoError(t, err)
	assert.Equal(t, model.DepErrConfigUnsatisfied, verdict.Kind)
}

func TestSatisfiedConfigCheckFatalErrorIsNotAVerdict(t *testing.T) {
	dep := model.Dependency{
		Version: model.AnyVersion,
		Config:  &model.DependencyConfig{Check: model.DockerAction{Image: "check"}},
	}
	installed := &Installed{
		Manifest: model.Manifest{Version: model.MustParseVersion("1.0.0.0")},
		Status: model.RunningStatus(fixedTime(), map[string]model.HealthCheckResult{
			"main": {Name: "main", Kind: model.HealthCheckSuccess},
		}),
	}
	checker := noopChecker{err: errors.New("docker: container runtime unreachable")}
	verdict, err := Satisfied(context.Background(), checker, "alice", "bob", dep, installed)
	assert.Error(t, err)
	assert.Nil(t, verdict)
}

func TestSatisfiedOptionalSuppressesError(t *testing.T) {
	dep := model.Dependency{Version: model.AnyVersion, Optional: true}
	verdict := SatisfiedOptional(dep, &model.DependencyError{Kind: model.DepErrNotInstalled})
	assert.Nil(t, verdict)
}
