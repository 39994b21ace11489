package query

// Schema declares the queryable fields of a store and their kinds. Stores
// compose it from the built-in item columns plus the metadata fields
// declared at build time.
type Schema map[string]Kind

// kindAccepts reports whether an operand of kind val may be compared against
// a field of kind field. Int and float are interchangeable; everything else
// must match exactly.
func kindAccepts(field, val Kind) bool {
	if field == KindInt || field == KindFloat {
		return val == KindInt || val == KindFloat
	}
	return val == field
}
