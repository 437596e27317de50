/*
Package runtime implements appmgr's container operations against a real
containerd socket: creating a package's main container with its declared
mounts and address, running a DockerAction to completion and capturing its
output, execing into an already-running container for an injected action,
and reporting whether a container's task is currently alive.

appmgr doesn't implement a container runtime, it drives one. Client wraps
containerd's client API with one long-lived connection, one containerd
namespace ("appmgr"), and OCI specs generated per call.

Containers are named via internal/action.ContainerName
("service_<id>_<version>") so a restart of appmgrd can re-attach to
already-running packages by name alone, without any separate ID-mapping
table.
*/
package runtime
