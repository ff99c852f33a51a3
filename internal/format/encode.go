package format

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Encode serializes m into the on-disk binary program format: a
// 16-byte header, a section table, each section's payload, and a
// trailing blake2b-256 digest covering everything before it.
//
// String/debug-string sections are written as a literal length-prefixed
// UTF-8 pool, matching the format's visible contract; every other
// section's payload is gob-encoded — an opaque representation private
// to this loader, since nothing outside the runtime ever reads it.
func Encode(m *Module) ([]byte, error) {
	sections := []struct {
		id      SectionID
		payload []byte
	}{}

	add := func(id SectionID, payload []byte, err error) error {
		if err != nil {
			return fmt.Errorf("format: encode %s: %w", id, err)
		}
		sections = append(sections, struct {
			id      SectionID
			payload []byte
		}{id, payload})
		return nil
	}

	strPayload, err := encodeStrings(m.Strings)
	if err := add(SecStringTable, strPayload, err); err != nil {
		return nil, err
	}
	dbgStrPayload, err := encodeStrings(m.DebugStrings)
	if err := add(SecDebugStringTable, dbgStrPayload, err); err != nil {
		return nil, err
	}

	typesPayload, err := gobEncode(m.Types)
	if err := add(SecTypeTable, typesPayload, err); err != nil {
		return nil, err
	}
	constsPayload, err := gobEncode(m.Consts)
	if err := add(SecConstPool, constsPayload, err); err != nil {
		return nil, err
	}
	refsPayload, err := gobEncode(m.Refs)
	if err := add(SecRefTable, refsPayload, err); err != nil {
		return nil, err
	}
	pouIndexPayload, err := gobEncode(pouIndexOf(m.Pous))
	if err := add(SecPouIndex, pouIndexPayload, err); err != nil {
		return nil, err
	}
	pouBodiesPayload, err := gobEncode(m.Pous)
	if err := add(SecPouBodies, pouBodiesPayload, err); err != nil {
		return nil, err
	}
	resourcePayload, err := gobEncode(m.Resource)
	if err := add(SecResourceMeta, resourcePayload, err); err != nil {
		return nil, err
	}
	ioPayload, err := gobEncode(m.IoMap)
	if err := add(SecIoMap, ioPayload, err); err != nil {
		return nil, err
	}
	varMetaPayload, err := gobEncode(m.VarMeta)
	if err := add(SecVarMeta, varMetaPayload, err); err != nil {
		return nil, err
	}
	retainPayload, err := gobEncode(m.RetainInit)
	if err := add(SecRetainInit, retainPayload, err); err != nil {
		return nil, err
	}
	debugPayload, err := gobEncode(m.DebugMap)
	if err := add(SecDebugMap, debugPayload, err); err != nil {
		return nil, err
	}

	sectionTableOffset := uint32(headerSize)
	payloadStart := sectionTableOffset + uint32(len(sections))*sectionEntrySize

	offset := payloadStart
	entries := make([]sectionEntry, len(sections))
	var payloads bytes.Buffer
	for i, s := range sections {
		entries[i] = sectionEntry{
			ID:     uint16(s.id),
			Length: uint32(len(s.payload)),
			Offset: offset,
		}
		offset += uint32(len(s.payload))
		payloads.Write(s.payload)
	}

	hdr := Header{
		Magic:              magic,
		VersionMajor:       1,
		VersionMinor:       0,
		SectionCount:       uint16(len(sections)),
		SectionTableOffset: sectionTableOffset,
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, fmt.Errorf("format: write header: %w", err)
	}
	for _, e := range entries {
		if err := binary.Write(&buf, binary.LittleEndian, e); err != nil {
			return nil, fmt.Errorf("format: write section table: %w", err)
		}
	}
	buf.Write(payloads.Bytes())

	digest := blake2b.Sum256(buf.Bytes())
	buf.Write(digest[:])

	return buf.Bytes(), nil
}

func encodeStrings(ss []string) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(ss))); err != nil {
		return nil, err
	}
	for _, s := range ss {
		if err := binary.Write(&buf, binary.LittleEndian, uint32(len(s))); err != nil {
			return nil, err
		}
		buf.WriteString(s)
	}
	return buf.Bytes(), nil
}

func gobEncode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pouIndexEntry is the lightweight PouIndex section: name/kind pairs
// a loader can scan without decoding the (much larger) PouBodies blob.
type pouIndexEntry struct {
	Name string
	Kind string
}

func pouIndexOf(p PouSet) []pouIndexEntry {
	idx := make([]pouIndexEntry, 0, len(p.Functions)+len(p.FunctionBlocks)+len(p.Classes)+len(p.Programs))
	for _, f := range p.Functions {
		idx = append(idx, pouIndexEntry{f.Name, "function"})
	}
	for _, f := range p.FunctionBlocks {
		idx = append(idx, pouIndexEntry{f.Name, "function_block"})
	}
	for _, c := range p.Classes {
		idx = append(idx, pouIndexEntry{c.Name, "class"})
	}
	for _, p2 := range p.Programs {
		idx = append(idx, pouIndexEntry{p2.Name, "program"})
	}
	return idx
}
