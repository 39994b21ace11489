// Package checksum provides the running CRC32 digest used to fingerprint
// store content. CRC32 (IEEE polynomial) is fast and detects accidental
// divergence well; it is not a cryptographic hash and is never used for
// tamper detection.
package checksum

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
)

var table = crc32.MakeTable(crc32.IEEE)

// Digest accumulates a CRC32 checksum over a stream of typed values.
type Digest struct {
	hash hash.Hash32
	buf  [8]byte
}

// New returns an empty digest.
func New() *Digest {
	return &Digest{hash: crc32.New(table)}
}

// WriteBytes folds raw bytes into the digest.
func (d *Digest) WriteBytes(p []byte) {
	d.hash.Write(p)
}

// WriteString folds a string into the digest, length-prefixed so adjacent
// fields cannot alias each other.
func (d *Digest) WriteString(s string) {
	d.WriteInt(int64(len(s)))
	d.hash.Write([]byte(s))
}

// WriteInt folds a little-endian int64 into the digest.
func (d *Digest) WriteInt(v int64) {
	binary.LittleEndian.PutUint64(d.buf[:], uint64(v))
	d.hash.Write(d.buf[:])
}

// Sum32 returns the checksum accumulated so far.
func (d *Digest) Sum32() uint32 {
	return d.hash.Sum32()
}

// String returns the checksum formatted as 8 lowercase hex digits.
func (d *Digest) String() string {
	return fmt.Sprintf("%08x", d.Sum32())
}

// Reset restores the digest to its initial state.
func (d *Digest) Reset() {
	d.hash.Reset()
}
