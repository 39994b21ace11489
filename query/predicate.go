package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidPredicate reports a structurally invalid predicate: an unknown
// field, an operator applied to an incompatible kind, or an empty combinator.
var ErrInvalidPredicate = errors.New("query: invalid predicate")

// Operator represents a comparison operator appearing at a predicate leaf.
type Operator string

const (
	// OpEqual matches values equal to the operand.
	OpEqual Operator = "eq"
	// OpNotEqual matches values different from the operand.
	OpNotEqual Operator = "ne"
	// OpGreaterThan matches numeric values greater than the operand.
	OpGreaterThan Operator = "gt"
	// OpGreaterEqual matches numeric values greater than or equal to the operand.
	OpGreaterEqual Operator = "gte"
	// OpLessThan matches numeric values less than the operand.
	OpLessThan Operator = "lt"
	// OpLessEqual matches numeric values less than or equal to the operand.
	OpLessEqual Operator = "lte"
	// OpIn matches values equal to any element of the operand array.
	OpIn Operator = "in"
	// OpContains matches strings containing the operand as a substring
	// (case-sensitive) and arrays containing an element equal to the operand.
	OpContains Operator = "contains"
	// OpLike matches strings against a SQL LIKE pattern with % and _
	// wildcards (case-insensitive). On arrays it matches when any element
	// matches the pattern.
	OpLike Operator = "like"
)

// Predicate is a node in a filter tree. Implementations are private; build
// trees through the constructors in this package.
type Predicate interface {
	validate(s Schema) error
	matches(doc Document) bool
	appendSQL(w *sqlWriter, s Schema) error
}

type comparison struct {
	field string
	op    Operator
	value Value
	re    *regexp.Regexp // compiled LIKE pattern, set for OpLike only
}

type conjunction struct{ preds []Predicate }

type disjunction struct{ preds []Predicate }

type negation struct{ pred Predicate }

// Eq matches items whose field equals v.
func Eq(field string, v Value) Predicate { return &comparison{field: field, op: OpEqual, value: v} }

// Ne matches items whose field is present and differs from v.
func Ne(field string, v Value) Predicate { return &comparison{field: field, op: OpNotEqual, value: v} }

// Gt matches items whose numeric field is greater than v.
func Gt(field string, v Value) Predicate {
	return &comparison{field: field, op: OpGreaterThan, value: v}
}

// Ge matches items whose numeric field is greater than or equal to v.
func Ge(field string, v Value) Predicate {
	return &comparison{field: field, op: OpGreaterEqual, value: v}
}

// Lt matches items whose numeric field is less than v.
func Lt(field string, v Value) Predicate { return &comparison{field: field, op: OpLessThan, value: v} }

// Le matches items whose numeric field is less than or equal to v.
func Le(field string, v Value) Predicate {
	return &comparison{field: field, op: OpLessEqual, value: v}
}

// Contains matches string fields containing v as a substring, and array
// fields containing an element equal to v.
func Contains(field string, v Value) Predicate {
	return &comparison{field: field, op: OpContains, value: v}
}

// Like matches string fields against a SQL LIKE pattern where % matches any
// run of characters and _ matches a single character. On array fields it
// matches when any element matches the pattern.
func Like(field, pattern string) Predicate {
	return &comparison{field: field, op: OpLike, value: String(pattern), re: likeRegexp(pattern)}
}

// In matches items whose field equals any of the given values.
func In(field string, vs ...Value) Predicate {
	return &comparison{field: field, op: OpIn, value: Array(vs...)}
}

// And matches items satisfying every child predicate.
func And(preds ...Predicate) Predicate { return &conjunction{preds: preds} }

// Or matches items satisfying at least one child predicate.
func Or(preds ...Predicate) Predicate { return &disjunction{preds: preds} }

// Not matches items the child predicate rejects.
func Not(p Predicate) Predicate { return &negation{pred: p} }

// Validate checks p against the schema. A nil predicate is valid and matches
// everything. All validation failures wrap ErrInvalidPredicate.
func Validate(p Predicate, s Schema) error {
	if p == nil {
		return nil
	}
	return p.validate(s)
}

// Matches evaluates p against one item's fields. A nil predicate matches.
// The predicate must have been validated first; unknown fields simply fail
// to match here.
func Matches(p Predicate, doc Document) bool {
	if p == nil {
		return true
	}
	return p.matches(doc)
}

func (c *comparison) validate(s Schema) error {
	if c.field == "" {
		return fmt.Errorf("%w: empty field name", ErrInvalidPredicate)
	}
	kind, ok := s[c.field]
	if !ok {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidPredicate, c.field)
	}
	v := c.value
	switch c.op {
	case OpEqual, OpNotEqual:
		if kind == KindArray {
			return fmt.Errorf("%w: %s not supported on array field %q, use contains", ErrInvalidPredicate, c.op, c.field)
		}
		if !kindAccepts(kind, v.Kind) {
			return fmt.Errorf("%w: field %q is %s, operand is %s", ErrInvalidPredicate, c.field, kind, v.Kind)
		}
	case OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual:
		if kind != KindInt && kind != KindFloat {
			return fmt.Errorf("%w: %s requires a numeric field, %q is %s", ErrInvalidPredicate, c.op, c.field, kind)
		}
		if !isNumber(v) {
			return fmt.Errorf("%w: %s requires a numeric operand, got %s", ErrInvalidPredicate, c.op, v.Kind)
		}
	case OpLike:
		if kind != KindString && kind != KindArray {
			return fmt.Errorf("%w: like requires a string or array field, %q is %s", ErrInvalidPredicate, c.field, kind)
		}
		if v.Kind != KindString {
			return fmt.Errorf("%w: like requires a string pattern, got %s", ErrInvalidPredicate, v.Kind)
		}
	case OpContains:
		switch kind {
		case KindString:
			if v.Kind != KindString {
				return fmt.Errorf("%w: contains on string field %q requires a string operand, got %s", ErrInvalidPredicate, c.field, v.Kind)
			}
		case KindArray:
			if v.Kind == KindArray || v.Kind == KindNull || v.Kind == KindInvalid {
				return fmt.Errorf("%w: contains on array field %q requires a scalar operand, got %s", ErrInvalidPredicate, c.field, v.Kind)
			}
		default:
			return fmt.Errorf("%w: contains requires a string or array field, %q is %s", ErrInvalidPredicate, c.field, kind)
		}
	case OpIn:
		if kind == KindArray {
			return fmt.Errorf("%w: in not supported on array field %q", ErrInvalidPredicate, c.field)
		}
		if v.Kind != KindArray || len(v.A) == 0 {
			return fmt.Errorf("%w: in requires a non-empty value list for field %q", ErrInvalidPredicate, c.field)
		}
		for _, el := range v.A {
			if !kindAccepts(kind, el.Kind) {
				return fmt.Errorf("%w: in list element is %s, field %q is %s", ErrInvalidPredicate, el.Kind, c.field, kind)
			}
		}
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidPredicate, c.op)
	}
	return nil
}

func (c *conjunction) validate(s Schema) error {
	if len(c.preds) == 0 {
		return fmt.Errorf("%w: empty and()", ErrInvalidPredicate)
	}
	for _, p := range c.preds {
		if p == nil {
			return fmt.Errorf("%w: nil child in and()", ErrInvalidPredicate)
		}
		if err := p.validate(s); err != nil {
			return err
		}
	}
	return nil
}

func (d *disjunction) validate(s Schema) error {
	if len(d.preds) == 0 {
		return fmt.Errorf("%w: empty or()", ErrInvalidPredicate)
	}
	for _, p := range d.preds {
		if p == nil {
			return fmt.Errorf("%w: nil child in or()", ErrInvalidPredicate)
		}
		if err := p.validate(s); err != nil {
			return err
		}
	}
	return nil
}

func (n *negation) validate(s Schema) error {
	if n.pred == nil {
		return fmt.Errorf("%w: nil child in not()", ErrInvalidPredicate)
	}
	return n.pred.validate(s)
}

func (c *comparison) matches(doc Document) bool {
	value, exists := doc[c.field]
	if !exists || value.Kind == KindNull {
		// An absent field never satisfies a comparison, including ne.
		return false
	}
	switch c.op {
	case OpEqual:
		return compareEqual(value, c.value)
	case OpNotEqual:
		return !compareEqual(value, c.value)
	case OpGreaterThan:
		return compareGreater(value, c.value)
	case OpGreaterEqual:
		return compareGreater(value, c.value) || compareEqual(value, c.value)
	case OpLessThan:
		return compareLess(value, c.value)
	case OpLessEqual:
		return compareLess(value, c.value) || compareEqual(value, c.value)
	case OpIn:
		for _, el := range c.value.A {
			if compareEqual(value, el) {
				return true
			}
		}
		return false
	case OpContains:
		if value.Kind == KindArray {
			for _, el := range value.A {
				if compareEqual(el, c.value) {
					return true
				}
			}
			return false
		}
		return value.Kind == KindString && c.value.Kind == KindString &&
			strings.Contains(value.S, c.value.S)
	case OpLike:
		if value.Kind == KindArray {
			for _, el := range value.A {
				if el.Kind == KindString && c.re.MatchString(el.S) {
					return true
				}
			}
			return false
		}
		return value.Kind == KindString && c.re.MatchString(value.S)
	default:
		return false
	}
}

func (c *conjunction) matches(doc Document) bool {
	for _, p := range c.preds {
		if !p.matches(doc) {
			return false
		}
	}
	return true
}

func (d *disjunction) matches(doc Document) bool {
	for _, p := range d.preds {
		if p.matches(doc) {
			return true
		}
	}
	return false
}

func (n *negation) matches(doc Document) bool {
	return !n.pred.matches(doc)
}

// likeRegexp translates a SQL LIKE pattern into an anchored case-insensitive
// regular expression. Everything except % and _ is matched literally.
func likeRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}
