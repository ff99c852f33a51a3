package retain

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const digestSize = 32

// Encode serializes snap with a trailing blake2b-256 digest, the same
// integrity scheme internal/format uses for compiled programs, so a
// half-written retain file is detected rather than silently loaded.
func Encode(snap Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, fmt.Errorf("retain: encode: %w", err)
	}
	digest := blake2b.Sum256(buf.Bytes())
	buf.Write(digest[:])
	return buf.Bytes(), nil
}

// Decode verifies the trailing digest and gob-decodes the snapshot.
func Decode(data []byte) (Snapshot, error) {
	if len(data) < digestSize {
		return Snapshot{}, fmt.Errorf("retain: file too short to carry a digest")
	}
	body, want := data[:len(data)-digestSize], data[len(data)-digestSize:]
	got := blake2b.Sum256(body)
	if !bytes.Equal(want, got[:]) {
		return Snapshot{}, fmt.Errorf("retain: digest mismatch, file is corrupt or truncated")
	}
	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("retain: decode: %w", err)
	}
	return snap, nil
}
