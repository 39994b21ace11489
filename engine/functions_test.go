package engine

import (
	"database/sql"
	"math"
	"testing"

	"github.com/imglens/imglens/embedding"
)

func mustEncode(t *testing.T, vec []float32) []byte {
	t.Helper()
	b, err := embedding.Encode(vec)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return b
}

func TestVectorFunctions(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer db.Close()

	aBlob := mustEncode(t, []float32{1, 0})
	bBlob := mustEncode(t, []float32{0, 1})
	cBlob := mustEncode(t, []float32{1, 0})

	// vec_cosine orthogonal -> 0
	var sim float64
	if err := db.QueryRow(`SELECT vec_cosine(?, ?)`, aBlob, bBlob).Scan(&sim); err != nil {
		t.Fatalf("vec_cosine(a,b) query failed: %v", err)
	}
	if sim != 0 {
		t.Fatalf("vec_cosine(a,b) = %v, want 0", sim)
	}

	// vec_cosine identical -> 1
	if err := db.QueryRow(`SELECT vec_cosine(?, ?)`, aBlob, cBlob).Scan(&sim); err != nil {
		t.Fatalf("vec_cosine(a,c) query failed: %v", err)
	}
	if math.Abs(sim-1) > 1e-9 {
		t.Fatalf("vec_cosine(a,c) = %v, want 1", sim)
	}

	// vec_cosine_dist orthogonal -> 1
	var dist float64
	if err := db.QueryRow(`SELECT vec_cosine_dist(?, ?)`, aBlob, bBlob).Scan(&dist); err != nil {
		t.Fatalf("vec_cosine_dist(a,b) query failed: %v", err)
	}
	if math.Abs(dist-1) > 1e-9 {
		t.Fatalf("vec_cosine_dist(a,b) = %v, want 1", dist)
	}

	// vec_l2 between (0,0) and (3,4) -> 5
	zeroBlob := mustEncode(t, []float32{0, 0})
	threeFourBlob := mustEncode(t, []float32{3, 4})
	if err := db.QueryRow(`SELECT vec_l2(?, ?)`, zeroBlob, threeFourBlob).Scan(&dist); err != nil {
		t.Fatalf("vec_l2 query failed: %v", err)
	}
	if math.Abs(dist-5) > 1e-9 {
		t.Fatalf("vec_l2 = %v, want 5", dist)
	}
}

func TestVectorFunctions_ZeroMagnitudeIsNull(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer db.Close()

	zeroBlob := mustEncode(t, []float32{0, 0})
	aBlob := mustEncode(t, []float32{1, 0})

	var sim sql.NullFloat64
	if err := db.QueryRow(`SELECT vec_cosine(?, ?)`, zeroBlob, aBlob).Scan(&sim); err != nil {
		t.Fatalf("vec_cosine(zero,a) query failed: %v", err)
	}
	if sim.Valid {
		t.Fatalf("vec_cosine(zero,a) = %v, want NULL", sim.Float64)
	}

	if err := db.QueryRow(`SELECT vec_cosine_dist(?, NULL)`, aBlob).Scan(&sim); err != nil {
		t.Fatalf("vec_cosine_dist(a,NULL) query failed: %v", err)
	}
	if sim.Valid {
		t.Fatalf("vec_cosine_dist(a,NULL) = %v, want NULL", sim.Float64)
	}
}

func TestVectorFunctions_DimensionMismatch(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer db.Close()

	aBlob := mustEncode(t, []float32{1, 0})
	bBlob := mustEncode(t, []float32{1, 0, 0})

	var sim float64
	if err := db.QueryRow(`SELECT vec_cosine(?, ?)`, aBlob, bBlob).Scan(&sim); err == nil {
		t.Fatal("expected error for mismatched dimensions")
	}
}
