package model

import (
	"regexp"
)

// PackageId is the unique, human-chosen identifier of a package, e.g. "bitcoind".
// It doubles as the container-name component and the s9pk filename stem.
type PackageId string

var packageIdPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Valid reports whether the id follows appmgr's naming rule: lowercase
// alphanumeric and hyphen, starting with a letter.
func (p PackageId) Valid() bool {
	return packageIdPattern.MatchString(string(p))
}

func (p PackageId) String() string { return string(p) }

// VolumeId names a volume declared by a package's manifest. The reserved
// backup id (model.BackupVolumeId) is synthetic and never appears in a
// manifest's own volume list.
type VolumeId string

// InterfaceId names an interface declared by a package's manifest (used by
// Certificate and HiddenService volumes to select which interface's
// material to mount).
type InterfaceId string

// ActionId names an action declared by a package's manifest.
type ActionId string

// Id is a generic identifier used for action inputs the manifest doesn't
// otherwise constrain (e.g. --expire-id tokens for config set).
type Id string
