package dependency

import (
	"context"
	"fmt"

	"github.com/start9labs/appmgr/internal/apperr"
	"github.com/start9labs/appmgr/internal/model"
)

// ConfigChecker runs a dependent's config-check action against a
// dependency's current config, sandboxed (no mutation of either package).
// internal/daemon's committedConfigChecker implements this.
type ConfigChecker interface {
	CheckConfig(ctx context.Context, dependent, dependency model.PackageId, check model.DockerAction) error
}

// Installed describes the subset of an installed package's state the
// satisfaction check needs, decoupled from internal/db's storage shape.
type Installed struct {
	Manifest model.Manifest
	Status   model.MainStatus
}

// Satisfied computes whether dep is satisfied by the dependency's current
// installed state (nil if not installed at all), checking in order:
// installed, then version, then (if declared) the sandboxed config check,
// then runtime/health state. The second return is non-nil only when the config
// check itself failed for a reason other than the dependency's config
// genuinely violating dep's rules (a Docker/IO error, a bug in the check
// action); that class of error is fatal to the caller's operation, not a
// dependency-satisfaction verdict, and callers must abort rather than
// persist it as a breakage.
func Satisfied(ctx context.Context, checker ConfigChecker, dependentId model.PackageId, dependencyId model.PackageId, dep model.Dependency, installed *Installed) (*model.DependencyError, error) {
	if installed == nil {
		return &model.DependencyError{Kind: model.DepErrNotInstalled}, nil
	}

	if !dep.Version.Satisfies(installed.Manifest.Version) {
		return &model.DependencyError{
			Kind:            model.DepErrIncorrectVersion,
			ExpectedVersion: dep.Version,
			ReceivedVersion: installed.Manifest.Version,
		}, nil
	}

	if dep.Config != nil {
		if err := checker.CheckConfig(ctx, dependentId, dependencyId, dep.Config.Check); err != nil {
			if apperr.KindIs(err, apperr.ConfigRulesViolation) {
				return &model.DependencyError{Kind: model.DepErrConfigUnsatisfied, ConfigError: err.Error()}, nil
			}
			return nil, fmt.Errorf("checking %s's config against %s: %w", dependentId, dependencyId, err)
		}
	}

	switch installed.Status.Kind {
	case model.MainStatusRunning:
		return healthVerdict(installed.Status.Health), nil
	case model.MainStatusBackingUp:
		if installed.Status.Started != nil {
			return healthVerdict(installed.Status.Health), nil
		}
		return &model.DependencyError{Kind: model.DepErrNotRunning}, nil
	default:
		return &model.DependencyError{Kind: model.DepErrNotRunning}, nil
	}
}

// healthVerdict collects every non-success health result into a
// HealthChecksFailed error, or returns nil (satisfied) if all passed.
func healthVerdict(health map[string]model.HealthCheckResult) *model.DependencyError {
	var failed []model.HealthCheckResult
	for _, r := range health {
		if r.Kind != model.HealthCheckSuccess && r.Kind != model.HealthCheckDisabled {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &model.DependencyError{Kind: model.DepErrHealthChecksFailed, FailedHealthChecks: failed}
}

// SatisfiedOptional applies the Optional flag: an unsatisfied optional
// dependency is never reported as an error to the cascade-breakage logic;
// its verdict is dropped and nil returned in its place.
func SatisfiedOptional(dep model.Dependency, verdict *model.DependencyError) *model.DependencyError {
	if dep.Optional {
		return nil
	}
	return verdict
}
