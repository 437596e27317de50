package s9pk

import (
	"fmt"
	"path"
	"strings"

	"github.com/start9labs/appmgr/internal/apperr"
	"github.com/start9labs/appmgr/internal/model"
)

// ValidatePath rejects asset and instructions paths that try to escape the
// package's own directory: absolute paths and any ".." segment.
func ValidatePath(p string) error {
	if path.IsAbs(p) {
		return apperr.New(apperr.ValidateS9pk, fmt.Sprintf("path %q must be relative", p), nil)
	}
	for _, seg := range strings.Split(path.Clean(p), "/") {
		if seg == ".." {
			return apperr.New(apperr.ValidateS9pk, fmt.Sprintf("path %q escapes its package directory", p), nil)
		}
	}
	return nil
}

// ValidateManifest checks the rules an installed manifest must satisfy
// before appmgr will accept an s9pk: the manifest's declared id must equal
// the archive's filename stem (so a renamed file can't masquerade as a
// different package), the manifest must declare a version of appmgr this
// install satisfies, and its asset paths must stay inside the package's
// own directory, with the public and shared subpaths never nesting one
// another.
func ValidateManifest(m *model.Manifest, filenameStem string, currentAppmgrVersion model.Version) error {
	if string(m.Id) != filenameStem {
		return apperr.New(apperr.ValidateS9pk, fmt.Sprintf("manifest id %q does not match filename %q", m.Id, filenameStem), nil)
	}
	if !m.Id.Valid() {
		return apperr.New(apperr.ValidateS9pk, fmt.Sprintf("invalid package id %q", m.Id), nil)
	}
	if !m.OsVersionRequired.Satisfies(currentAppmgrVersion) {
		return apperr.New(apperr.VersionIncompatible, fmt.Sprintf(
			"package requires appmgr %s, running %s", m.OsVersionRequired, currentAppmgrVersion,
		), nil)
	}
	for _, p := range []string{m.Assets.License, m.Assets.Public, m.Assets.Shared} {
		if p == "" {
			continue
		}
		if err := ValidatePath(p); err != nil {
			return err
		}
	}
	if m.Assets.Public != "" && m.Assets.Shared != "" {
		pub, shared := path.Clean(m.Assets.Public), path.Clean(m.Assets.Shared)
		if isAncestor(pub, shared) || isAncestor(shared, pub) {
			return apperr.New(apperr.ValidateS9pk, fmt.Sprintf(
				"public path %q and shared path %q may not contain one another", m.Assets.Public, m.Assets.Shared,
			), nil)
		}
	}
	return nil
}

// isAncestor reports whether a is b or a directory above b, comparing
// cleaned slash-separated paths segment-wise.
func isAncestor(a, b string) bool {
	return a == b || strings.HasPrefix(b, a+"/")
}
