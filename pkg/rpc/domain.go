package rpc

import (
	"fmt"
)

// Domain is a predicate expression over records: an ordered sequence of
// `[field, operator, value]` triples and prefix logical connective tokens in
// Polish notation, serialized in the ERP's native nested-list form.
type Domain []interface{}

// Logical connective tokens. "&" applies to the following two operands,
// "|" to the following two, "!" to the following one.
const (
	OpAnd = "&"
	OpOr  = "|"
	OpNot = "!"
)

// validOperators is the fixed comparison operator set accepted in triples.
var validOperators = map[string]bool{
	"=":        true,
	"!=":       true,
	">":        true,
	">=":       true,
	"<":        true,
	"<=":       true,
	"in":       true,
	"not in":   true,
	"like":     true,
	"ilike":    true,
	"not like": true,
	"child_of": true,
}

// Triple builds a single `[field, operator, value]` condition.
func Triple(field, operator string, value interface{}) []interface{} {
	return []interface{}{field, operator, value}
}

// Eq builds an equality condition.
func Eq(field string, value interface{}) []interface{} {
	return Triple(field, "=", value)
}

// NotEq builds an inequality condition.
func NotEq(field string, value interface{}) []interface{} {
	return Triple(field, "!=", value)
}

// In builds a set-membership condition.
func In(field string, values []interface{}) []interface{} {
	return Triple(field, "in", values)
}

// Like builds a case-sensitive pattern condition.
func Like(field, pattern string) []interface{} {
	return Triple(field, "like", pattern)
}

// ILike builds a case-insensitive pattern condition.
func ILike(field, pattern string) []interface{} {
	return Triple(field, "ilike", pattern)
}

// ChildOf builds a hierarchy-descendant condition.
func ChildOf(field string, id interface{}) []interface{} {
	return Triple(field, "child_of", id)
}

// And prefixes two operands with the conjunction token.
func And(domain Domain) Domain {
	return append(Domain{OpAnd}, domain...)
}

// Or prefixes two operands with the disjunction token.
func Or(domain Domain) Domain {
	return append(Domain{OpOr}, domain...)
}

// Not prefixes one operand with the negation token.
func Not(domain Domain) Domain {
	return append(Domain{OpNot}, domain...)
}

// Validate checks the domain's shape: every element must be a logical token
// or a well-formed triple with a known operator, and every token must have
// enough following operands.
func (d Domain) Validate() error {
	operands := 0
	needed := 0
	for i, elem := range d {
		switch t := elem.(type) {
		case string:
			switch t {
			case OpAnd, OpOr:
				needed += 2
			case OpNot:
				needed++
			default:
				return NewInvalidInputError(fmt.Sprintf("domain element %d: unknown token %q", i, t))
			}
		case []interface{}:
			if err := validateTriple(i, t); err != nil {
				return err
			}
			operands++
		default:
			return NewInvalidInputError(fmt.Sprintf("domain element %d: expected triple or token, got %T", i, elem))
		}
	}
	if needed > 0 && operands < needed {
		return NewInvalidInputError(fmt.Sprintf("domain has %d connective operand(s) missing", needed-operands))
	}
	return nil
}

func validateTriple(pos int, t []interface{}) error {
	if len(t) != 3 {
		return NewInvalidInputError(fmt.Sprintf("domain element %d: triple must have 3 elements, got %d", pos, len(t)))
	}
	field, ok := t[0].(string)
	if !ok || field == "" {
		return NewInvalidInputError(fmt.Sprintf("domain element %d: field name must be a non-empty string", pos))
	}
	op, ok := t[1].(string)
	if !ok || !validOperators[op] {
		return NewInvalidInputError(fmt.Sprintf("domain element %d: invalid operator %v", pos, t[1]))
	}
	return nil
}
