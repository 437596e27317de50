/*
Package volume resolves a package's manifest-declared volumes to host
filesystem paths and ensures the directories a package owns (its data and
backup volumes) exist before the action dispatcher mounts them into a
container.

Volumes aren't a storage abstraction with swappable backends:
model.Volume's Kind already fixes exactly how each kind resolves (see
model.Volume.PathFor), so this package's job is narrow:
create the directories a package is allowed to write into, and resolve
every declared volume (including pointers into a dependency's volumes,
and interface-scoped certificate/hidden-service material) to the absolute
path the runtime bind-mounts.
*/
package volume
