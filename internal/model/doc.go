/*
Package model defines appmgr's core domain types: package identifiers and
versions, manifests, volumes, configuration documents, and the persistent
status/install-progress records the daemon keeps per installed package.

These types are intentionally free of behavior beyond what's needed to
validate and compare them; the engines that act on them (internal/configspec,
internal/dependency, internal/configure, internal/reconciler) live in their
own packages.
*/
package model
