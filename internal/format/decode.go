package format

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Decode parses a binary program file produced by Encode, validating
// the magic, version, section table bounds, and trailing digest before
// returning the decoded Module.
func Decode(data []byte) (*Module, error) {
	if err := validateDigest(data); err != nil {
		return nil, err
	}
	body := data[:len(data)-digestSize]

	if len(body) < headerSize {
		return nil, fmt.Errorf("format: truncated header (%d bytes)", len(body))
	}
	var hdr Header
	if err := binary.Read(bytes.NewReader(body[:headerSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("format: read header: %w", err)
	}
	if hdr.Magic != magic {
		return nil, fmt.Errorf("format: bad magic %q", hdr.Magic)
	}
	if err := checkVersion(hdr.VersionMajor, hdr.VersionMinor); err != nil {
		return nil, err
	}

	tableEnd := int(hdr.SectionTableOffset) + int(hdr.SectionCount)*sectionEntrySize
	if int(hdr.SectionTableOffset) < headerSize || tableEnd > len(body) {
		return nil, fmt.Errorf("format: section table out of bounds")
	}

	sections := make(map[SectionID][]byte, hdr.SectionCount)
	r := bytes.NewReader(body[hdr.SectionTableOffset:tableEnd])
	for i := 0; i < int(hdr.SectionCount); i++ {
		var e sectionEntry
		if err := binary.Read(r, binary.LittleEndian, &e); err != nil {
			return nil, fmt.Errorf("format: read section table entry %d: %w", i, err)
		}
		end := int(e.Offset) + int(e.Length)
		if int(e.Offset) < tableEnd || end > len(body) {
			return nil, fmt.Errorf("format: section %s out of bounds", SectionID(e.ID))
		}
		sections[SectionID(e.ID)] = body[e.Offset:end]
	}

	m := &Module{VersionMajor: hdr.VersionMajor, VersionMinor: hdr.VersionMinor}
	var err error
	if m.Strings, err = decodeStrings(sections[SecStringTable]); err != nil {
		return nil, fmt.Errorf("format: decode %s: %w", SecStringTable, err)
	}
	if m.DebugStrings, err = decodeStrings(sections[SecDebugStringTable]); err != nil {
		return nil, fmt.Errorf("format: decode %s: %w", SecDebugStringTable, err)
	}
	if err := gobDecode(sections[SecTypeTable], &m.Types); err != nil {
		return nil, fmt.Errorf("format: decode %s: %w", SecTypeTable, err)
	}
	if err := gobDecode(sections[SecConstPool], &m.Consts); err != nil {
		return nil, fmt.Errorf("format: decode %s: %w", SecConstPool, err)
	}
	if err := gobDecode(sections[SecRefTable], &m.Refs); err != nil {
		return nil, fmt.Errorf("format: decode %s: %w", SecRefTable, err)
	}
	if err := gobDecode(sections[SecPouBodies], &m.Pous); err != nil {
		return nil, fmt.Errorf("format: decode %s: %w", SecPouBodies, err)
	}
	if err := gobDecode(sections[SecResourceMeta], &m.Resource); err != nil {
		return nil, fmt.Errorf("format: decode %s: %w", SecResourceMeta, err)
	}
	if err := gobDecode(sections[SecIoMap], &m.IoMap); err != nil {
		return nil, fmt.Errorf("format: decode %s: %w", SecIoMap, err)
	}
	if err := gobDecode(sections[SecVarMeta], &m.VarMeta); err != nil {
		return nil, fmt.Errorf("format: decode %s: %w", SecVarMeta, err)
	}
	if err := gobDecode(sections[SecRetainInit], &m.RetainInit); err != nil {
		return nil, fmt.Errorf("format: decode %s: %w", SecRetainInit, err)
	}
	if err := gobDecode(sections[SecDebugMap], &m.DebugMap); err != nil {
		return nil, fmt.Errorf("format: decode %s: %w", SecDebugMap, err)
	}
	// SecPouIndex is a derived, scan-only convenience section; it is
	// not decoded back into Module because PouBodies already carries
	// everything it summarizes.

	return m, nil
}

func validateDigest(data []byte) error {
	if len(data) < digestSize {
		return fmt.Errorf("format: file too short to carry a digest")
	}
	want := data[len(data)-digestSize:]
	got := blake2b.Sum256(data[:len(data)-digestSize])
	if !bytes.Equal(want, got[:]) {
		return fmt.Errorf("format: digest mismatch, file is corrupt or truncated")
	}
	return nil
}

func decodeStrings(b []byte) ([]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	r := bytes.NewReader(b)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	out := make([]string, count)
	for i := range out {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		if _, err := r.Read(buf); err != nil {
			return nil, err
		}
		out[i] = string(buf)
	}
	return out, nil
}

func gobDecode(b []byte, v interface{}) error {
	if len(b) == 0 {
		return nil
	}
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
