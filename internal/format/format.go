// Package format implements the on-disk binary program format: a
// fixed header, a section table, and a sequence of independently
// versioned sections carrying everything the runtime needs to load a
// compiled program without its front-end — types, POU bodies, I/O
// bindings, variable and retain metadata, and a debug map.
package format

import (
	"fmt"

	"golang.org/x/mod/semver"
)

// FormatVersion is the semantic version this package writes and the
// baseline it accepts on load, compared with golang.org/x/mod/semver
// so a loader can reject programs compiled for an incompatible major
// line while tolerating newer minor/patch revisions.
const FormatVersion = "v1.0.0"

var magic = [4]byte{'S', 'T', 'C', '1'}

// Header is the fixed 16-byte prologue: magic, a major/minor version
// pair, flags reserved for future use, and the byte offset of the
// section table that follows.
type Header struct {
	Magic              [4]byte
	VersionMajor       uint16
	VersionMinor       uint16
	Flags              uint16
	SectionCount       uint16
	SectionTableOffset uint32
}

const headerSize = 16

// SectionID names one of the fixed section kinds a module carries.
type SectionID uint16

const (
	SecStringTable SectionID = iota
	SecTypeTable
	SecConstPool
	SecRefTable
	SecPouIndex
	SecPouBodies
	SecResourceMeta
	SecIoMap
	SecVarMeta
	SecRetainInit
	SecDebugMap
	SecDebugStringTable
)

func (s SectionID) String() string {
	switch s {
	case SecStringTable:
		return "StringTable"
	case SecTypeTable:
		return "TypeTable"
	case SecConstPool:
		return "ConstPool"
	case SecRefTable:
		return "RefTable"
	case SecPouIndex:
		return "PouIndex"
	case SecPouBodies:
		return "PouBodies"
	case SecResourceMeta:
		return "ResourceMeta"
	case SecIoMap:
		return "IoMap"
	case SecVarMeta:
		return "VarMeta"
	case SecRetainInit:
		return "RetainInit"
	case SecDebugMap:
		return "DebugMap"
	case SecDebugStringTable:
		return "DebugStringTable"
	default:
		return fmt.Sprintf("Section(%d)", int(s))
	}
}

// sectionEntry is one fixed-size (12-byte) row of the section table.
type sectionEntry struct {
	ID     uint16
	Flags  uint16
	Length uint32
	Offset uint32
}

const sectionEntrySize = 12

const digestSize = 32

func checkVersion(major, minor uint16) error {
	v := fmt.Sprintf("v%d.%d.0", major, minor)
	if !semver.IsValid(v) {
		return fmt.Errorf("format: malformed version v%d.%d", major, minor)
	}
	if semver.Major(v) != semver.Major(FormatVersion) {
		return fmt.Errorf("format: incompatible major version %s, runtime supports %s",
			semver.Major(v), semver.Major(FormatVersion))
	}
	return nil
}
