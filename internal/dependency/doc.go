/*
Package dependency implements appmgr's dependency satisfaction check: given
a package's declared Dependency (a version range, optional flag, and
optional config-check action) and the current installed state of that
dependency, compute whether it's satisfied, and if not, why.

Satisfaction is checked in a fixed order: not installed,
then version, then (if declared) a sandboxed config-check action, then
runtime health. Each failure reason is a distinct model.DependencyError
variant so the CLI and the cascade-breakage logic in internal/configure can
react to them individually rather than on a string message.
*/
package dependency
