package io

import (
	"encoding/binary"

	"github.com/ironrail/stcore/internal/storage"
	"github.com/ironrail/stcore/internal/value"
	"github.com/ironrail/stcore/internal/vmerr"
)

func region(img *storage.IoImage, area storage.IoArea) []byte {
	switch area {
	case storage.AreaInput:
		return img.Input
	case storage.AreaOutput:
		return img.Output
	default:
		return img.Memory
	}
}

// ReadAddress decodes the bytes at addr into a Value of kind k.
func ReadAddress(img *storage.IoImage, addr Address, k value.Kind) (value.Value, error) {
	img.EnsureByte(addr.Area, addr.EndByte())
	buf := region(img, addr.Area)
	if addr.Size == SizeBit {
		byteVal := buf[addr.Byte]
		bit := (byteVal >> uint(addr.Bit)) & 1
		return value.Bool(bit != 0), nil
	}
	w := int(addr.Size.byteWidth())
	if int(addr.Byte)+w > len(buf) {
		return value.Value{}, vmerr.New(vmerr.IndexOutOfBounds, "address %s exceeds image length %d", addr, len(buf))
	}
	raw := readUint(buf[addr.Byte:addr.Byte+uint32(w)], w)
	return value.Int(k, int64(raw)), nil
}

// WriteAddress encodes v's integer/bool payload into the bytes at addr.
func WriteAddress(img *storage.IoImage, addr Address, v value.Value) error {
	img.EnsureByte(addr.Area, addr.EndByte())
	buf := region(img, addr.Area)
	if addr.Size == SizeBit {
		mask := byte(1) << uint(addr.Bit)
		if boolOf(v) {
			buf[addr.Byte] |= mask
		} else {
			buf[addr.Byte] &^= mask
		}
		return nil
	}
	w := int(addr.Size.byteWidth())
	if int(addr.Byte)+w > len(buf) {
		return vmerr.New(vmerr.IndexOutOfBounds, "address %s exceeds image length %d", addr, len(buf))
	}
	writeUint(buf[addr.Byte:addr.Byte+uint32(w)], w, uint64(v.Int))
	return nil
}

func boolOf(v value.Value) bool {
	if v.Kind == value.KindBool {
		return v.Bool
	}
	return v.Int != 0
}

func readUint(b []byte, w int) uint64 {
	switch w {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	default:
		return 0
	}
}

func writeUint(b []byte, w int, n uint64) {
	switch w {
	case 1:
		b[0] = byte(n)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(n))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(n))
	case 8:
		binary.LittleEndian.PutUint64(b, n)
	}
}
