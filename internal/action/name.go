package action

import (
	"strings"

	"github.com/start9labs/appmgr/internal/model"
)

const containerPrefix = "service_"

// ContainerName builds the docker container name the runtime creates a
// package's main container under.
func ContainerName(id model.PackageId, version model.Version) string {
	return containerPrefix + string(id) + "_" + version.String()
}

// UncontainerName recovers a package id from a container name produced by
// ContainerName. It is a partial inverse: it strips the "service_" prefix
// and returns everything up to (not including) the next "_", which is
// exactly right for ids containing no underscores (package ids never do —
// they're lowercase alphanumeric-and-hyphen) but cuts any id that does
// contain one short at its first underscore. Returns ok=false for names
// that don't start with the expected prefix or leave an empty id.
func UncontainerName(name string) (id model.PackageId, ok bool) {
	if !strings.HasPrefix(name, containerPrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(name, containerPrefix)
	if idx := strings.IndexByte(rest, '_'); idx >= 0 {
		rest = rest[:idx]
	}
	if rest == "" {
		return "", false
	}
	return model.PackageId(rest), true
}
