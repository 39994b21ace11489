package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/imglens/imglens/query"
)

// parseFilters combines command-line filter expressions into a single
// predicate. All expressions must match.
func parseFilters(exprs []string) (query.Predicate, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	preds := make([]query.Predicate, 0, len(exprs))
	for _, expr := range exprs {
		p, err := parseFilter(expr)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	if len(preds) == 1 {
		return preds[0], nil
	}
	return query.And(preds...), nil
}

// parseFilter parses a single "field op value" expression. The value may be
// quoted to preserve spaces or force string interpretation.
func parseFilter(expr string) (query.Predicate, error) {
	field, rest := splitToken(expr)
	op, raw := splitToken(rest)
	if field == "" || op == "" || raw == "" {
		return nil, fmt.Errorf("filter %q: want \"field op value\"", expr)
	}
	switch op {
	case "=", "==":
		return query.Eq(field, parseValue(raw)), nil
	case "!=":
		return query.Ne(field, parseValue(raw)), nil
	case ">":
		return query.Gt(field, parseValue(raw)), nil
	case ">=":
		return query.Ge(field, parseValue(raw)), nil
	case "<":
		return query.Lt(field, parseValue(raw)), nil
	case "<=":
		return query.Le(field, parseValue(raw)), nil
	case "~", "like":
		return query.Like(field, unquote(raw)), nil
	case "contains":
		return query.Contains(field, parseValue(raw)), nil
	case "in":
		var vs []query.Value
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			vs = append(vs, parseValue(part))
		}
		return query.In(field, vs...), nil
	default:
		return nil, fmt.Errorf("filter %q: unknown operator %q", expr, op)
	}
}

// splitToken cuts the first whitespace-separated token off expr.
func splitToken(expr string) (token, rest string) {
	expr = strings.TrimSpace(expr)
	i := strings.IndexAny(expr, " \t")
	if i < 0 {
		return expr, ""
	}
	return expr[:i], strings.TrimSpace(expr[i+1:])
}

// parseValue infers the value kind from its literal form. Quoted literals
// are always strings.
func parseValue(raw string) query.Value {
	if s, ok := tryUnquote(raw); ok {
		return query.String(s)
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return query.Int(i)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return query.Float(f)
	}
	switch raw {
	case "true":
		return query.Bool(true)
	case "false":
		return query.Bool(false)
	}
	return query.String(raw)
}

func unquote(raw string) string {
	if s, ok := tryUnquote(raw); ok {
		return s
	}
	return raw
}

func tryUnquote(raw string) (string, bool) {
	if len(raw) < 2 {
		return "", false
	}
	if (raw[0] == '\'' && raw[len(raw)-1] == '\'') || (raw[0] == '"' && raw[len(raw)-1] == '"') {
		return raw[1 : len(raw)-1], true
	}
	return "", false
}

// parseVector parses a comma-separated float list into an embedding vector.
func parseVector(raw string) ([]float32, error) {
	var vec []float32
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 32)
		if err != nil {
			return nil, fmt.Errorf("vector component %q: %w", part, err)
		}
		vec = append(vec, float32(f))
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("vector is empty")
	}
	return vec, nil
}

// parseIndices converts positional arguments to store indices.
func parseIndices(args []string) ([]int, error) {
	indices := make([]int, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("index %q: %w", arg, err)
		}
		indices = append(indices, n)
	}
	return indices, nil
}
