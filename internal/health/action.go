package health

import (
	"context"
	"time"
)

// CheckTypeAction identifies a health check implemented as a manifest
// action container, as opposed to the TCP reachability probe of
// InterfaceChecker.
const CheckTypeAction CheckType = "action"

// ActionRunner executes a package's health-check action and reports its
// exit code. internal/daemon's healthActionRunner implements this; the interface
// lives here (rather than importing internal/action) to avoid a cycle,
// since internal/action's create/execute logic doesn't need to know about
// health semantics.
type ActionRunner interface {
	RunHealthCheck(ctx context.Context, packageID, checkName string) (exitCode int, stdout string, err error)
}

// disabledExitCode is the sentinel exit code a health-check action returns
// to mean "this check does not apply right now" (e.g. a Lightning node's
// channel-balance check before any channels exist) rather than "unhealthy".
// Reported as HealthCheckDisabled instead of a failure so it doesn't count
// against the retry threshold or trip a critical-check transition.
const disabledExitCode = 59

// ActionChecker runs a manifest health-check action through its Runner (in
// a one-shot container, or by exec into the package's main container when
// the action sets Inject) and classifies its exit code.
type ActionChecker struct {
	Runner    ActionRunner
	PackageID string
	CheckName string
	Timeout   time.Duration
}

func NewActionChecker(runner ActionRunner, packageID, checkName string) *ActionChecker {
	return &ActionChecker{
		Runner:    runner,
		PackageID: packageID,
		CheckName: checkName,
		Timeout:   10 * time.Second,
	}
}

func (a *ActionChecker) Type() CheckType { return CheckTypeAction }

func (a *ActionChecker) Check(ctx context.Context) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	exitCode, stdout, err := a.Runner.RunHealthCheck(ctx, a.PackageID, a.CheckName)
	if err != nil {
		return Result{Healthy: false, Message: err.Error(), CheckedAt: start, Duration: time.Since(start)}
	}
	if exitCode == disabledExitCode {
		return Result{Healthy: true, Disabled: true, Message: stdout, CheckedAt: start, Duration: time.Since(start)}
	}
	if exitCode != 0 {
		return Result{Healthy: false, Message: stdout, CheckedAt: start, Duration: time.Since(start)}
	}
	return Result{Healthy: true, Message: stdout, CheckedAt: start, Duration: time.Since(start)}
}
