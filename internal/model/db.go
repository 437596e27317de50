package model

import "fmt"

// StaticFiles locates a package's license, instructions, and icon assets,
// either on this host (once unpacked from its s9pk) or on a remote registry
// (while still downloading). These are URL-style paths recorded in the
// package's entry; no HTTP server in appmgrd serves them.
type StaticFiles struct {
	License      string `json:"license"`
	Instructions string `json:"instructions"`
	Icon         string `json:"icon"`
}

func LocalStaticFiles(id PackageId, version Version) StaticFiles {
	base := fmt.Sprintf("/public/package-data/%s/%s", id, version)
	return StaticFiles{
		License:      base + "/LICENSE.md",
		Instructions: base + "/INSTRUCTIONS.md",
		Icon:         base + "/icon",
	}
}

func RemoteStaticFiles(id PackageId, version Version) StaticFiles {
	base := fmt.Sprintf("/registry/packages/%s/%s", id, version)
	return StaticFiles{
		License:      base + "/LICENSE.md",
		Instructions: base + "/INSTRUCTIONS.md",
		Icon:         base + "/icon",
	}
}

// InstallProgress tracks a package install/update's download-and-validate
// phase: how much of the s9pk has been downloaded and validated so far, for
// progress reporting to the CLI.
type InstallProgress struct {
	SizeTotal      uint64 `json:"sizeTotal"`
	BytesDownloaded uint64 `json:"bytesDownloaded"`
	Validated      bool   `json:"validated"`
}

// InstalledPackageDataEntry is the durable record of a fully installed
// package: its manifest, runtime status, and dependency satisfaction as of
// the last reconciliation.
type InstalledPackageDataEntry struct {
	Manifest     Manifest                   `json:"manifest"`
	Status       MainStatus                 `json:"status"`
	// Configured records whether the package has ever had a configuration
	// applied; a freshly installed package with a config spec stays
	// unconfigured until its first configure commits.
	Configured   bool                       `json:"configured"`
	Dependencies map[PackageId]*DependencyError `json:"dependencies"`
	Config       map[string]any             `json:"config"`
	// IPAddress is the address the action dispatcher's Create bound the
	// package's main container to, used to
	// address each declared Interface's port for the health loop's
	// interface reachability checks.
	IPAddress string `json:"ipAddress,omitempty"`
}

// PackageDataEntryKind discriminates PackageDataEntry.
type PackageDataEntryKind string

const (
	PackageDataInstalling PackageDataEntryKind = "installing"
	PackageDataUpdating   PackageDataEntryKind = "updating"
	PackageDataRemoving   PackageDataEntryKind = "removing"
	PackageDataInstalled  PackageDataEntryKind = "installed"
)

// PackageDataEntry is the per-package record stored in the database's
// package_data map. Its Kind determines which of Installed/InstallProgress/
// UnverifiedManifest is populated.
type PackageDataEntry struct {
	Kind               PackageDataEntryKind `json:"kind"`
	StaticFiles        StaticFiles          `json:"staticFiles"`
	UnverifiedManifest *Manifest            `json:"unverifiedManifest,omitempty"` // Installing, Updating
	InstallProgress    *InstallProgress     `json:"installProgress,omitempty"`    // Installing, Updating
	Installed          *InstalledPackageDataEntry `json:"installed,omitempty"`    // Updating, Removing, Installed
}

// ServerInfo is host-wide metadata the daemon keeps alongside package data.
type ServerInfo struct {
	Id                       string `json:"id"`
	Version                  Version `json:"version"`
	LanAddress               string `json:"lanAddress"`
	TorAddress               string `json:"torAddress"`
	Updating                 bool   `json:"updating"`
	UnreadNotificationCount  uint64 `json:"unreadNotificationCount"`
}

// BrokenPackages is the set of installed packages the dependency engine has
// marked as having an unsatisfied, non-optional dependency.
type BrokenPackages map[PackageId]struct{}

// Database is the full document the daemon's store persists: one record
// per installed/installing package plus host-wide metadata. It is kept in
// a single bbolt bucket keyed by a fixed key, since appmgr manages exactly
// one host.
type Database struct {
	ServerInfo     ServerInfo                  `json:"serverInfo"`
	PackageData    map[PackageId]*PackageDataEntry `json:"packageData"`
	BrokenPackages BrokenPackages              `json:"brokenPackages"`
}

func NewDatabase() *Database {
	return &Database{
		PackageData:    make(map[PackageId]*PackageDataEntry),
		BrokenPackages: make(BrokenPackages),
	}
}
