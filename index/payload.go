package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/imglens/imglens/embedding"
)

// EncodeRows serializes the (row index, vector) pairs every implementation
// persists: metric(uint8), dim(uint32), n(uint32), then per row id(uint32)
// followed by float32[dim], all little-endian. Implementations prepend their
// own 4-byte magic.
func EncodeRows(metric embedding.Metric, ids []int, vectors [][]float32) ([]byte, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("index: ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	out := make([]byte, 0, 9+len(ids)*(4+4*dim))
	out = append(out, byte(metric))
	out = binary.LittleEndian.AppendUint32(out, uint32(dim))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(ids)))
	for j, id := range ids {
		if id < 0 || int64(id) > math.MaxUint32 {
			return nil, fmt.Errorf("index: row index %d out of range", id)
		}
		if len(vectors[j]) != dim {
			return nil, fmt.Errorf("index: inconsistent vector dims %d vs %d", len(vectors[j]), dim)
		}
		out = binary.LittleEndian.AppendUint32(out, uint32(id))
		for _, v := range vectors[j] {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
	}
	return out, nil
}

// DecodeRows reverses EncodeRows.
func DecodeRows(data []byte) (embedding.Metric, []int, [][]float32, error) {
	if len(data) < 9 {
		return 0, nil, nil, errors.New("index: truncated payload")
	}
	metric := embedding.Metric(data[0])
	if metric != embedding.MetricCosine && metric != embedding.MetricL2 {
		return 0, nil, nil, fmt.Errorf("index: unknown metric byte %d", data[0])
	}
	dim := int(binary.LittleEndian.Uint32(data[1:5]))
	n := int(binary.LittleEndian.Uint32(data[5:9]))
	off := 9
	if len(data)-off != n*(4+4*dim) {
		return 0, nil, nil, fmt.Errorf("index: payload size %d does not match %d rows of dim %d", len(data), n, dim)
	}
	ids := make([]int, n)
	vecs := make([][]float32, n)
	for r := 0; r < n; r++ {
		ids[r] = int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		vecs[r] = vec
	}
	return metric, ids, vecs, nil
}
