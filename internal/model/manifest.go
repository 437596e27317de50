package model

// IOFormat names a wire encoding an action's stdin/stdout is marshaled with.
type IOFormat string

const (
	IOFormatJSON IOFormat = "json"
	IOFormatYAML IOFormat = "yaml"
	IOFormatCBOR IOFormat = "cbor"
	IOFormatTOML IOFormat = "toml"
)

// DockerAction describes how to invoke one lifecycle hook or action inside a
// package's container image.
type DockerAction struct {
	Image       string              `json:"image"`
	System      bool                `json:"system"`
	Entrypoint  []string            `json:"entrypoint"`
	Args        []string            `json:"args"`
	Mounts      map[VolumeId]string `json:"mounts"`
	IOFormat    IOFormat            `json:"ioFormat,omitempty"`
	Inject      bool                `json:"inject"`
	ShmSizeMb   uint64              `json:"shmSizeMb,omitempty"`
}

// Action is a named, schema-validated operation a manifest exposes (health
// checks, config actions, dependency checks, and user-invoked CLI actions
// all share this shape).
type Action struct {
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	Warning         string       `json:"warning,omitempty"`
	Implementation  DockerAction `json:"implementation"`
	AllowedStatuses []MainStatusKind `json:"allowedStatuses"`
	InputSpec       *ConfigSpecRef `json:"inputSpec,omitempty"`
}

// ConfigSpecRef breaks the import cycle between model and configspec: the
// manifest only needs to carry the raw schema document, not evaluate it.
type ConfigSpecRef struct {
	Raw map[string]any `json:"raw"`
}

// HealthCheck is a manifest-declared periodic liveness probe.
type HealthCheck struct {
	Name     string       `json:"name"`
	Critical bool         `json:"critical"`
	Action   DockerAction `json:"action"`
}

// Dependency is one entry of a manifest's dependency map.
type Dependency struct {
	Version     VersionRange      `json:"version"`
	Optional    bool              `json:"optional"`
	Description string            `json:"description,omitempty"`
	Config      *DependencyConfig `json:"config,omitempty"`
}

// DependencyConfig names the two sandboxed actions used to check and, if
// possible, repair a dependent's configuration against one of its
// dependencies.
type DependencyConfig struct {
	Check         DockerAction  `json:"check"`
	AutoConfigure *DockerAction `json:"autoConfigure,omitempty"`
}

// ConfigActions names the two sandboxed actions a manifest declares for
// reading and writing its own Config document.
type ConfigActions struct {
	Get DockerAction `json:"get"`
	Set DockerAction `json:"set"`
}

// BackupActions names the two actions a manifest declares for archiving
// and restoring its data volumes.
type BackupActions struct {
	Create  DockerAction `json:"create"`
	Restore DockerAction `json:"restore"`
}

// Interface is a manifest-declared network exposure; certificate and
// hidden-service material for it is derived into the matching
// Certificate/HiddenService volume kind.
type Interface struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Port        uint16 `json:"port"`
	HasLan      bool   `json:"hasLan"`
	HasTor      bool   `json:"hasTor"`
}

// Assets names a manifest's icon and license asset paths within its s9pk,
// unpacked into the static-files layout (internal/model.StaticFiles).
// Public and Shared are optional subpaths of the package's data volume the
// package exposes to the host and to its dependents respectively; when both
// are declared, neither may be an ancestor of the other.
type Assets struct {
	IconType string `json:"iconType"`
	License  string `json:"license"`
	Public   string `json:"public,omitempty"`
	Shared   string `json:"shared,omitempty"`
}

// Manifest is a package's static description: identity, version,
// dependencies, volumes, actions, and health checks. It is the thing an
// s9pk's manifest section deserializes into.
type Manifest struct {
	Id                PackageId                `json:"id"`
	Title             string                   `json:"title"`
	Version           Version                  `json:"version"`
	OsVersionRequired VersionRange             `json:"osVersionRequired"`
	Description       string                   `json:"description"`
	Assets            Assets                   `json:"assets"`
	Main              DockerAction             `json:"main"`
	Dependencies      map[PackageId]Dependency `json:"dependencies"`
	Volumes           *Volumes                 `json:"volumes"`
	Interfaces        map[InterfaceId]Interface `json:"interfaces,omitempty"`
	Actions           map[ActionId]Action      `json:"actions"`
	HealthChecks      []HealthCheck            `json:"healthChecks"`
	ConfigSpec        *ConfigSpecRef           `json:"configSpec,omitempty"`
	ConfigActions     *ConfigActions           `json:"configActions,omitempty"`
	BackupActions     *BackupActions           `json:"backupActions,omitempty"`
	Migrations        map[string]DockerAction  `json:"migrations,omitempty"`
}
