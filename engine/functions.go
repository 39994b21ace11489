package engine

import (
	"database/sql/driver"
	"errors"
	"fmt"

	sqlite "modernc.org/sqlite"

	"github.com/imglens/imglens/embedding"
)

// RegisterVectorFunctions registers the vec_* scalar functions with the
// driver so they are available on connections opened after this call. Open
// does this automatically; the function exists for callers that construct
// their *sql.DB elsewhere.
//
//	vec_cosine(a, b)       cosine similarity of two embedding BLOBs
//	vec_cosine_dist(a, b)  1 - vec_cosine(a, b)
//	vec_l2(a, b)           Euclidean distance of two embedding BLOBs
//
// All three return NULL when either argument is NULL. The cosine pair also
// returns NULL when either vector has zero magnitude, so a query can rank
// with ORDER BY ... NULLS LAST and unrankable rows fall out of the way.
func RegisterVectorFunctions() error {
	// Registration is process-wide; duplicates from repeated calls are
	// rejected by the driver and safely ignored.
	_ = sqlite.RegisterDeterministicScalarFunction("vec_cosine", 2, vecCosineImpl)
	_ = sqlite.RegisterDeterministicScalarFunction("vec_cosine_dist", 2, vecCosineDistImpl)
	_ = sqlite.RegisterDeterministicScalarFunction("vec_l2", 2, vecL2Impl)
	return nil
}

func asEmbedding(fn string, arg driver.Value) ([]float32, error) {
	switch v := arg.(type) {
	case nil:
		return nil, nil
	case []byte:
		vec, err := embedding.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		return vec, nil
	default:
		return nil, fmt.Errorf("%s: unsupported argument type %T, want BLOB", fn, arg)
	}
}

func vecCosineImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	sim, err := cosineArgs("vec_cosine", args)
	if err != nil || sim == nil {
		return nil, err
	}
	return *sim, nil
}

func vecCosineDistImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	sim, err := cosineArgs("vec_cosine_dist", args)
	if err != nil || sim == nil {
		return nil, err
	}
	return 1 - *sim, nil
}

func cosineArgs(fn string, args []driver.Value) (*float64, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%s: expected 2 arguments, got %d", fn, len(args))
	}
	a, err := asEmbedding(fn, args[0])
	if err != nil {
		return nil, err
	}
	b, err := asEmbedding(fn, args[1])
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, nil
	}
	sim, err := embedding.CosineSimilarity(a, b)
	if err != nil {
		if errors.Is(err, embedding.ErrZeroMagnitude) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return &sim, nil
}

func vecL2Impl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vec_l2: expected 2 arguments, got %d", len(args))
	}
	a, err := asEmbedding("vec_l2", args[0])
	if err != nil {
		return nil, err
	}
	b, err := asEmbedding("vec_l2", args[1])
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, nil
	}
	d, err := embedding.L2Distance(a, b)
	if err != nil {
		return nil, fmt.Errorf("vec_l2: %w", err)
	}
	return d, nil
}
