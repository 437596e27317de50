/*
Package action implements appmgr's action dispatcher: the single mechanism
by which the daemon invokes a package's container for every lifecycle hook,
health check, and user-triggered action. Every such invocation is a
DockerAction (see internal/model) run either as an ephemeral `docker run
--rm` or, when the action sets Inject, a `docker exec` into the package's
already-running main container; its stdin and stdout are marshaled through one of four
interchangeable codecs (JSON, YAML, CBOR, TOML) selected by the manifest.

Container naming follows a fixed, reversible pattern:
ContainerName(id, version) = "service_" + id + "_" + version, and
UncontainerName inverts it (partially: it returns everything up to the
first remaining underscore, since a package id can itself contain hyphens
but never underscores).
*/
package action
