package embedding

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode encodes a vector into the BLOB representation stored in SQLite. The
// encoding is a little-endian sequence of IEEE 754 float32 values without a
// length prefix; the dimensionality is derived from the BLOB size on decode.
func Encode(vec []float32) ([]byte, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b, nil
}

// Decode decodes a BLOB produced by Encode back into a float32 vector.
func Decode(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding: invalid blob length %d (not multiple of 4)", len(b))
	}
	n := len(b) / 4
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
