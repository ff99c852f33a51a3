// Package io implements IEC 61131-3 address parsing, the driver
// composition contract, variable binding, forcing, and snapshot/diff
// reporting over the three memory areas (input, output, memory) that
// back a VariableStorage's IoImage.
package io

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ironrail/stcore/internal/storage"
	"github.com/ironrail/stcore/internal/vmerr"
)

// SizeSelector is the {X|B|W|D|L} size class of a direct address.
type SizeSelector int

const (
	SizeBit SizeSelector = iota
	SizeByte
	SizeWord
	SizeDWord
	SizeLWord
)

func (s SizeSelector) String() string {
	switch s {
	case SizeBit:
		return "X"
	case SizeByte:
		return "B"
	case SizeWord:
		return "W"
	case SizeDWord:
		return "D"
	case SizeLWord:
		return "L"
	default:
		return "?"
	}
}

func (s SizeSelector) byteWidth() uint32 {
	switch s {
	case SizeBit, SizeByte:
		return 1
	case SizeWord:
		return 2
	case SizeDWord:
		return 4
	case SizeLWord:
		return 8
	default:
		return 1
	}
}

// Address is a parsed %{I|Q|M}{X|B|W|D|L}byte[.bit] direct address, or
// the wildcard form %{I|Q|M}* used by a driver to claim an entire area.
type Address struct {
	Area     storage.IoArea
	Size     SizeSelector
	Byte     uint32
	Bit      int8 // -1 when Size != SizeBit
	Wildcard bool
}

func (a Address) String() string {
	letter := areaLetter(a.Area)
	if a.Wildcard {
		return fmt.Sprintf("%%%s*", letter)
	}
	if a.Size == SizeBit {
		return fmt.Sprintf("%%%s%s%d.%d", letter, a.Size, a.Byte, a.Bit)
	}
	return fmt.Sprintf("%%%s%s%d", letter, a.Size, a.Byte)
}

func areaLetter(a storage.IoArea) string {
	switch a {
	case storage.AreaInput:
		return "I"
	case storage.AreaOutput:
		return "Q"
	default:
		return "M"
	}
}

// ParseAddress parses a direct address in the canonical IEC form, e.g.
// "%IX2.3", "%QW10", "%MD0", "%I*".
func ParseAddress(s string) (Address, error) {
	if !strings.HasPrefix(s, "%") {
		return Address{}, vmerr.New(vmerr.InvalidConfig, "address %q must start with %%", s)
	}
	rest := s[1:]
	if rest == "" {
		return Address{}, vmerr.New(vmerr.InvalidConfig, "address %q missing area letter", s)
	}
	var area storage.IoArea
	switch rest[0] {
	case 'I':
		area = storage.AreaInput
	case 'Q':
		area = storage.AreaOutput
	case 'M':
		area = storage.AreaMemory
	default:
		return Address{}, vmerr.New(vmerr.InvalidConfig, "address %q has unknown area %q", s, rest[0:1])
	}
	rest = rest[1:]
	if rest == "*" {
		return Address{Area: area, Wildcard: true, Bit: -1}, nil
	}
	if rest == "" {
		return Address{}, vmerr.New(vmerr.InvalidConfig, "address %q missing size selector", s)
	}
	var size SizeSelector
	switch rest[0] {
	case 'X':
		size = SizeBit
	case 'B':
		size = SizeByte
	case 'W':
		size = SizeWord
	case 'D':
		size = SizeDWord
	case 'L':
		size = SizeLWord
	default:
		return Address{}, vmerr.New(vmerr.InvalidConfig, "address %q has unknown size selector %q", s, rest[0:1])
	}
	rest = rest[1:]
	if size == SizeBit {
		parts := strings.SplitN(rest, ".", 2)
		if len(parts) != 2 {
			return Address{}, vmerr.New(vmerr.InvalidConfig, "address %q: bit selector requires byte.bit", s)
		}
		byteIdx, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return Address{}, vmerr.New(vmerr.InvalidConfig, "address %q: bad byte index: %v", s, err)
		}
		bit, err := strconv.Atoi(parts[1])
		if err != nil || bit < 0 || bit > 7 {
			return Address{}, vmerr.New(vmerr.InvalidConfig, "address %q: bad bit index", s)
		}
		return Address{Area: area, Size: size, Byte: uint32(byteIdx), Bit: int8(bit)}, nil
	}
	byteIdx, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return Address{}, vmerr.New(vmerr.InvalidConfig, "address %q: bad byte index: %v", s, err)
	}
	return Address{Area: area, Size: size, Byte: uint32(byteIdx), Bit: -1}, nil
}

// EndByte returns the last byte index this address touches (inclusive),
// used to size an IoImage region to fit every address ever observed.
func (a Address) EndByte() uint32 {
	if a.Wildcard {
		return a.Byte
	}
	w := a.Size.byteWidth()
	if w == 0 {
		w = 1
	}
	return a.Byte + w - 1
}
