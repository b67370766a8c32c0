// Package pathmap translates paths between the local device's filesystem
// namespace and the workstation's namespace.
package pathmap

import (
	"path/filepath"
	"strings"
)

// Mapper performs bidirectional prefix translation between two base paths.
// When both bases are empty or equal, every operation is the identity
// (passthrough mode).
type Mapper struct {
	// PiBase is the projects base path on the local device
	PiBase string

	// MacBase is the projects base path on the workstation
	MacBase string
}

// New creates a Mapper. Trailing slashes on the bases are stripped on ingest.
func New(piBase, macBase string) *Mapper {
	return &Mapper{
		PiBase:  trimBase(piBase),
		MacBase: trimBase(macBase),
	}
}

func trimBase(base string) string {
	if base == "/" {
		return base
	}
	return strings.TrimRight(base, "/")
}

// Passthrough reports whether translation is disabled.
func (m *Mapper) Passthrough() bool {
	return (m.PiBase == "" && m.MacBase == "") || m.PiBase == m.MacBase
}

// PiToMac rewrites a local-device path into the workstation namespace.
// Paths outside the local base are returned unchanged.
func (m *Mapper) PiToMac(p string) string {
	if m.Passthrough() {
		return p
	}
	return swapPrefix(p, m.PiBase, m.MacBase)
}

// MacToPi rewrites a workstation path into the local-device namespace.
func (m *Mapper) MacToPi(p string) string {
	if m.Passthrough() {
		return p
	}
	return swapPrefix(p, m.MacBase, m.PiBase)
}

// ToRelative strips whichever configured base prefixes the path.
// Paths under neither base are returned unchanged.
func (m *Mapper) ToRelative(p string) string {
	if under, rel := splitBase(p, m.PiBase); under {
		return rel
	}
	if under, rel := splitBase(p, m.MacBase); under {
		return rel
	}
	return p
}

// ResolveForLocal returns p expressed in the local namespace: absolute
// workstation paths are translated, relative paths are joined with the
// local base.
func (m *Mapper) ResolveForLocal(p string) string {
	if p == "" {
		return m.PiBase
	}
	if filepath.IsAbs(p) {
		return m.MacToPi(p)
	}
	if m.PiBase == "" {
		return p
	}
	return filepath.Join(m.PiBase, p)
}

// ResolveForWorkstation is the workstation-side counterpart of ResolveForLocal.
func (m *Mapper) ResolveForWorkstation(p string) string {
	if p == "" {
		return m.MacBase
	}
	if filepath.IsAbs(p) {
		return m.PiToMac(p)
	}
	if m.MacBase == "" {
		return p
	}
	return filepath.Join(m.MacBase, p)
}

// swapPrefix replaces the from prefix with to. The prefix must end at a
// path boundary so /home/pi-data does not match base /home/pi.
func swapPrefix(p, from, to string) string {
	if from == "" {
		return p
	}
	if p == from {
		return to
	}
	if strings.HasPrefix(p, from+"/") {
		return to + p[len(from):]
	}
	return p
}

func splitBase(p, base string) (bool, string) {
	if base == "" {
		return false, ""
	}
	if p == base {
		return true, ""
	}
	if strings.HasPrefix(p, base+"/") {
		return true, p[len(base)+1:]
	}
	return false, ""
}
