package model

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// Filesystem roots volume paths resolve under. A single-node install places
// all package state on one host, so these are fixed by default rather than
// configured per package; tests override them to avoid touching real
// system paths.
var (
	PkgVolumeDir = "/mnt/appmgr/volumes/package-data"
	BackupDir    = "/mnt/appmgr-backups/AppMgrBackups"
	PublicDir    = "/mnt/appmgr/public/package-data"
)

// VolumeKind discriminates the Volume tagged union.
type VolumeKind string

const (
	VolumeKindData          VolumeKind = "data"
	VolumeKindPointer       VolumeKind = "pointer"
	VolumeKindCertificate   VolumeKind = "certificate"
	VolumeKindHiddenService VolumeKind = "hidden-service"
	VolumeKindBackup        VolumeKind = "backup"
)

// BackupVolumeId is the synthetic volume id injected into a manifest's own
// declared volumes when invoking its backup create/restore actions; it
// never appears in a manifest's declared volume list.
const BackupVolumeId VolumeId = "BACKUP"

// Mount is a resolved volume ready to bind-mount into a container: a host
// path plus the read-only polarity the runtime must enforce. Invariant:
// read-only volumes must never be mounted writable.
type Mount struct {
	HostPath string
	ReadOnly bool
}

// Volume is a manifest-declared mount point. Exactly one of the Kind-specific
// fields is meaningful; Go has no sum type, so Kind discriminates and the
// constructors below enforce which fields apply.
type Volume struct {
	Kind VolumeKind

	// Data, Backup
	readOnly bool

	// Pointer
	PackageId PackageId
	VolumeId  VolumeId
	Path      string

	// Certificate, HiddenService
	InterfaceId InterfaceId
}

// volumeWire is Volume's serialized shape, shared by the JSON documents the
// database stores and the CBOR manifest section an s9pk carries. The
// read-only flag must ride along explicitly: it is unexported on Volume (the
// ReadOnly method folds in the always-read-only kinds) and would otherwise
// be dropped on every round trip.
type volumeWire struct {
	Kind        VolumeKind  `json:"kind" cbor:"kind"`
	ReadOnly    bool        `json:"readOnly,omitempty" cbor:"readOnly,omitempty"`
	PackageId   PackageId   `json:"packageId,omitempty" cbor:"packageId,omitempty"`
	VolumeId    VolumeId    `json:"volumeId,omitempty" cbor:"volumeId,omitempty"`
	Path        string      `json:"path,omitempty" cbor:"path,omitempty"`
	InterfaceId InterfaceId `json:"interfaceId,omitempty" cbor:"interfaceId,omitempty"`
}

func (v Volume) wire() volumeWire {
	return volumeWire{
		Kind:        v.Kind,
		ReadOnly:    v.readOnly,
		PackageId:   v.PackageId,
		VolumeId:    v.VolumeId,
		Path:        v.Path,
		InterfaceId: v.InterfaceId,
	}
}

func (v *Volume) fromWire(w volumeWire) {
	*v = Volume{
		Kind:        w.Kind,
		readOnly:    w.ReadOnly,
		PackageId:   w.PackageId,
		VolumeId:    w.VolumeId,
		Path:        w.Path,
		InterfaceId: w.InterfaceId,
	}
}

func (v Volume) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.wire())
}

func (v *Volume) UnmarshalJSON(data []byte) error {
	var w volumeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v.fromWire(w)
	return nil
}

func (v Volume) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(v.wire())
}

func (v *Volume) UnmarshalCBOR(data []byte) error {
	var w volumeWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	v.fromWire(w)
	return nil
}

func DataVolume(readOnly bool) Volume {
	return Volume{Kind: VolumeKindData, readOnly: readOnly}
}

func PointerVolume(pkg PackageId, vol VolumeId, path string, readOnly bool) Volume {
	return Volume{Kind: VolumeKindPointer, PackageId: pkg, VolumeId: vol, Path: path, readOnly: readOnly}
}

func CertificateVolume(iface InterfaceId) Volume {
	return Volume{Kind: VolumeKindCertificate, InterfaceId: iface}
}

func HiddenServiceVolume(iface InterfaceId) Volume {
	return Volume{Kind: VolumeKindHiddenService, InterfaceId: iface}
}

func BackupVolume(readOnly bool) Volume {
	return Volume{Kind: VolumeKindBackup, readOnly: readOnly}
}

// ReadOnly reports whether the volume must be mounted read-only. Certificate
// and HiddenService volumes are always read-only: a package has no business
// writing into material appmgr derived for it.
func (v Volume) ReadOnly() bool {
	switch v.Kind {
	case VolumeKindCertificate, VolumeKindHiddenService:
		return true
	default:
		return v.readOnly
	}
}

// WithReadOnly returns a copy of v with its read-only flag forced to true,
// used when a dependent is only allowed to read a dependency's volume.
func (v Volume) WithReadOnly() Volume {
	c := v
	c.readOnly = true
	return c
}

// PathFor resolves the host filesystem path a volume mounts into a package's
// container, given the id of the package that declares it and the id it is
// declared under (each Data volume gets its own directory keyed by that id).
func (v Volume) PathFor(pkg PackageId, id VolumeId) (string, error) {
	switch v.Kind {
	case VolumeKindData:
		return filepath.Join(PkgVolumeDir, string(pkg), "volumes", string(id)), nil
	case VolumeKindPointer:
		return filepath.Join(PkgVolumeDir, string(v.PackageId), "volumes", string(v.VolumeId), v.Path), nil
	case VolumeKindCertificate:
		return filepath.Join(PkgVolumeDir, string(pkg), "certificates", string(v.InterfaceId)), nil
	case VolumeKindHiddenService:
		return filepath.Join(PkgVolumeDir, string(pkg), "hidden-services", string(v.InterfaceId)), nil
	case VolumeKindBackup:
		return filepath.Join(BackupDir, string(pkg)), nil
	default:
		return "", fmt.Errorf("model: unknown volume kind %q", v.Kind)
	}
}

// Volumes is the ordered collection of volumes a manifest declares, keyed by
// the VolumeId each is mounted under.
type Volumes struct {
	order []VolumeId
	byId  map[VolumeId]Volume
}

func NewVolumes() *Volumes {
	return &Volumes{byId: make(map[VolumeId]Volume)}
}

func (vs *Volumes) Set(id VolumeId, v Volume) {
	if _, ok := vs.byId[id]; !ok {
		vs.order = append(vs.order, id)
	}
	vs.byId[id] = v
}

func (vs *Volumes) Get(id VolumeId) (Volume, bool) {
	v, ok := vs.byId[id]
	return v, ok
}

func (vs *Volumes) Ids() []VolumeId {
	out := make([]VolumeId, len(vs.order))
	copy(out, vs.order)
	return out
}

// ToReadOnly returns a copy of vs with every volume's read-only flag forced
// true, used when building mounts for a dependent that may only read a
// dependency's volumes.
func (vs *Volumes) ToReadOnly() *Volumes {
	out := NewVolumes()
	for _, id := range vs.order {
		out.Set(id, vs.byId[id].WithReadOnly())
	}
	return out
}

func (vs Volumes) MarshalJSON() ([]byte, error) {
	m := make(map[string]Volume, len(vs.byId))
	for id, v := range vs.byId {
		m[string(id)] = v
	}
	return json.Marshal(m)
}

func (vs *Volumes) UnmarshalJSON(data []byte) error {
	var m map[string]Volume
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*vs = *NewVolumes()
	for id, v := range m {
		vs.Set(VolumeId(id), v)
	}
	return nil
}

func (vs Volumes) MarshalCBOR() ([]byte, error) {
	m := make(map[string]Volume, len(vs.byId))
	for id, v := range vs.byId {
		m[string(id)] = v
	}
	return cbor.Marshal(m)
}

func (vs *Volumes) UnmarshalCBOR(data []byte) error {
	var m map[string]Volume
	if err := cbor.Unmarshal(data, &m); err != nil {
		return err
	}
	*vs = *NewVolumes()
	for id, v := range m {
		vs.Set(VolumeId(id), v)
	}
	return nil
}
