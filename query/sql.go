package query

import (
	"fmt"
	"strings"
)

// ColumnFunc maps a queryable field to the SQL expression producing its
// value, and reports whether that expression can evaluate to NULL. Metadata
// fields extracted from a JSON column can be NULL; built-in columns cannot.
type ColumnFunc func(field string) (expr string, nullable bool)

type sqlWriter struct {
	b    strings.Builder
	args []any
	col  ColumnFunc
}

// ToSQL compiles p into a SQL boolean expression with ? placeholders and the
// matching argument list. The predicate is validated against the schema
// first. A nil predicate compiles to the empty string, meaning no WHERE
// clause at all.
//
// Comparisons on NULL-able expressions are wrapped in COALESCE(..., 0) so
// that rows missing a metadata field behave exactly like the in-process
// Matches evaluation: they never satisfy a comparison, and NOT over them
// matches.
func ToSQL(p Predicate, s Schema, col ColumnFunc) (string, []any, error) {
	if err := Validate(p, s); err != nil {
		return "", nil, err
	}
	if p == nil {
		return "", nil, nil
	}
	w := &sqlWriter{col: col}
	if err := p.appendSQL(w, s); err != nil {
		return "", nil, err
	}
	return w.b.String(), w.args, nil
}

func (c *comparison) appendSQL(w *sqlWriter, s Schema) error {
	kind := s[c.field]
	expr, nullable := w.col(c.field)
	if expr == "" {
		return fmt.Errorf("%w: field %q has no column mapping", ErrInvalidPredicate, c.field)
	}

	if kind == KindArray {
		// Array fields are stored as JSON arrays; match element-wise.
		arr := expr
		if nullable {
			arr = "COALESCE(" + expr + ", '[]')"
		}
		switch c.op {
		case OpContains:
			w.b.WriteString("EXISTS (SELECT 1 FROM json_each(" + arr + ") WHERE json_each.value = ?)")
			w.args = append(w.args, bindScalar(c.value))
		case OpLike:
			w.b.WriteString("EXISTS (SELECT 1 FROM json_each(" + arr + ") WHERE json_each.value LIKE ?)")
			w.args = append(w.args, c.value.S)
		default:
			return fmt.Errorf("%w: %s not supported on array field %q", ErrInvalidPredicate, c.op, c.field)
		}
		return nil
	}

	var cond string
	switch c.op {
	case OpEqual:
		cond = expr + " = ?"
		w.args = append(w.args, bindScalar(c.value))
	case OpNotEqual:
		cond = expr + " <> ?"
		w.args = append(w.args, bindScalar(c.value))
	case OpGreaterThan:
		cond = expr + " > ?"
		w.args = append(w.args, bindScalar(c.value))
	case OpGreaterEqual:
		cond = expr + " >= ?"
		w.args = append(w.args, bindScalar(c.value))
	case OpLessThan:
		cond = expr + " < ?"
		w.args = append(w.args, bindScalar(c.value))
	case OpLessEqual:
		cond = expr + " <= ?"
		w.args = append(w.args, bindScalar(c.value))
	case OpLike:
		cond = expr + " LIKE ?"
		w.args = append(w.args, c.value.S)
	case OpContains:
		cond = "instr(" + expr + ", ?) > 0"
		w.args = append(w.args, c.value.S)
	case OpIn:
		cond = expr + " IN (" + placeholders(len(c.value.A)) + ")"
		for _, el := range c.value.A {
			w.args = append(w.args, bindScalar(el))
		}
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidPredicate, c.op)
	}
	if nullable {
		cond = "COALESCE(" + cond + ", 0)"
	}
	w.b.WriteString(cond)
	return nil
}

func (c *conjunction) appendSQL(w *sqlWriter, s Schema) error {
	return appendJoined(w, s, c.preds, " AND ")
}

func (d *disjunction) appendSQL(w *sqlWriter, s Schema) error {
	return appendJoined(w, s, d.preds, " OR ")
}

func (n *negation) appendSQL(w *sqlWriter, s Schema) error {
	w.b.WriteString("NOT (")
	if err := n.pred.appendSQL(w, s); err != nil {
		return err
	}
	w.b.WriteString(")")
	return nil
}

func appendJoined(w *sqlWriter, s Schema, preds []Predicate, sep string) error {
	w.b.WriteString("(")
	for i, p := range preds {
		if i > 0 {
			w.b.WriteString(sep)
		}
		if err := p.appendSQL(w, s); err != nil {
			return err
		}
	}
	w.b.WriteString(")")
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func bindScalar(v Value) any {
	switch v.Kind {
	case KindInt:
		return v.I64
	case KindFloat:
		return v.F64
	case KindString:
		return v.S
	case KindBool:
		// JSON booleans surface as 0/1 through json_extract.
		if v.B {
			return int64(1)
		}
		return int64(0)
	default:
		return nil
	}
}
