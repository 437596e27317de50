package model

import "time"

// MainStatusKind discriminates MainStatus. Kept distinct from MainStatus
// itself so manifests can declare AllowedStatuses without embedding a
// started/health payload.
type MainStatusKind string

const (
	MainStatusStopped   MainStatusKind = "stopped"
	MainStatusStopping  MainStatusKind = "stopping"
	MainStatusRunning   MainStatusKind = "running"
	MainStatusBackingUp MainStatusKind = "backing-up"
	MainStatusRestoring MainStatusKind = "restoring"
)

// HealthCheckResult is the outcome of one named health check's most recent run.
type HealthCheckResultKind string

const (
	HealthCheckSuccess  HealthCheckResultKind = "success"
	HealthCheckFailure  HealthCheckResultKind = "failure"
	HealthCheckDisabled HealthCheckResultKind = "disabled"
	HealthCheckStarting HealthCheckResultKind = "starting"
)

type HealthCheckResult struct {
	Name      string                `json:"name"`
	Kind      HealthCheckResultKind `json:"kind"`
	Message   string                `json:"message,omitempty"`
	CheckedAt time.Time             `json:"checkedAt"`
}

// MainStatus is the reconciler's view of a package's runtime lifecycle. Only
// the fields relevant to Kind are meaningful.
type MainStatus struct {
	Kind    MainStatusKind                  `json:"kind"`
	Started *time.Time                      `json:"started,omitempty"` // Running, BackingUp
	Health  map[string]HealthCheckResult    `json:"health,omitempty"`  // Running
	Running bool                            `json:"running,omitempty"` // Restoring
}

func StoppedStatus() MainStatus   { return MainStatus{Kind: MainStatusStopped} }
func StoppingStatus() MainStatus  { return MainStatus{Kind: MainStatusStopping} }

func RunningStatus(started time.Time, health map[string]HealthCheckResult) MainStatus {
	return MainStatus{Kind: MainStatusRunning, Started: &started, Health: health}
}

// BackingUpStatus marks a package as archiving its volumes. started is nil
// when the package was already Stopped before the backup began.
func BackingUpStatus(started *time.Time, health map[string]HealthCheckResult) MainStatus {
	return MainStatus{Kind: MainStatusBackingUp, Started: started, Health: health}
}

// RestoringStatus marks a package as having its volumes overwritten from a
// backup archive. running records whether its main container was running
// immediately before the restore began, so the reconciler knows whether to
// start it back up afterward.
func RestoringStatus(running bool) MainStatus {
	return MainStatus{Kind: MainStatusRestoring, Running: running}
}

// DependencyErrorKind discriminates why a dependency isn't satisfied.
type DependencyErrorKind string

const (
	DepErrNotInstalled      DependencyErrorKind = "not-installed"
	DepErrNotRunning        DependencyErrorKind = "not-running"
	DepErrIncorrectVersion  DependencyErrorKind = "incorrect-version"
	DepErrConfigUnsatisfied DependencyErrorKind = "config-unsatisfied"
	DepErrHealthChecksFailed DependencyErrorKind = "health-checks-failed"
)

// DependencyError explains why a single dependency of a package is not
// currently satisfied. Its Error() string is the human-readable rendering
// the CLI surfaces verbatim at the top of a cause chain.
type DependencyError struct {
	Kind             DependencyErrorKind
	ExpectedVersion  VersionRange
	ReceivedVersion  Version
	ConfigError      string
	FailedHealthChecks []HealthCheckResult
}

func (e *DependencyError) Error() string {
	switch e.Kind {
	case DepErrNotInstalled:
		return "Not Installed"
	case DepErrNotRunning:
		return "Not Running"
	case DepErrIncorrectVersion:
		return "Incorrect Version: Expected " + e.ExpectedVersion.String() + ", Received " + e.ReceivedVersion.String()
	case DepErrConfigUnsatisfied:
		return "Configuration Requirements Not Satisfied: " + e.ConfigError
	case DepErrHealthChecksFailed:
		s := "Failed Health Check(s): "
		for i, hc := range e.FailedHealthChecks {
			if i > 0 {
				s += ", "
			}
			s += hc.Name + " @ " + hc.CheckedAt.Format(time.RFC3339) + " " + string(hc.Kind)
			if hc.Message != "" {
				s += ": " + hc.Message
			}
		}
		return s
	default:
		return "unknown dependency error"
	}
}
