package s9pk

import (
	"path/filepath"

	"github.com/start9labs/appmgr/internal/model"
)

// CacheDir is the filesystem root a downloaded s9pk is staged under before
// install, keyed by package id and version so two in-flight installs of
// different versions never collide. Overridden in tests to avoid touching
// real system paths.
var CacheDir = "/mnt/appmgr/cache/packages"

// CachePath returns the path a downloaded archive for pkg@version is
// staged at: CacheDir/{pkg}/{version}/{pkg}.s9pk. The daemon's install
// writes the archive's HashStr to a ".sha256" file beside it and skips
// re-staging when that stored digest already matches; nothing here
// downloads.
func CachePath(pkg model.PackageId, version model.Version) string {
	return filepath.Join(CacheDir, string(pkg), version.String(), string(pkg)+".s9pk")
}
