// Package keyexpr implements the Key Expression tree (spec Β§4.3): a small
// algebraic description of how to extract one or more index-key tuples
// from a record. Field(name) yields the record's value(s) for a named
// field (possibly many, for a multi-valued field); Concat(children) takes
// the Cartesian product of its children's evaluations; Empty yields a
// single zero-length tuple.
package keyexpr

import (
	"fmt"

	"github.com/jpl-au/recordlayer/tuple"
)

// FieldExtractor is the callback a record type supplies to resolve a
// named field to its tuple-element list. It is the seam between a Key
// Expression and a concrete record access (spec Β§4.5's Record Access
// trait); Field.Evaluate never knows the record's concrete Go type.
type FieldExtractor func(fieldName string) ([]tuple.Element, error)

// Expression is the shared interface of Field, Concat, and Empty.
type Expression interface {
	// Evaluate extracts the list of output tuples this expression
	// produces for one record, given a way to resolve named fields.
	Evaluate(extract FieldExtractor) ([]tuple.Tuple, error)
	// ColumnCount is the static arity every tuple Evaluate returns must
	// share.
	ColumnCount() int
	// FieldNames returns every Field name reachable in this expression,
	// in evaluation order, for validation and covering-index analysis.
	FieldNames() []string
}

// Field extracts the named field's value(s) from a record. If the field
// is multi-valued (e.g. a list), Evaluate returns one single-element
// tuple per value, fanning out downstream Concat products (spec Β§4.3).
type Field struct {
	Name string
}

func (f Field) ColumnCount() int { return 1 }

func (f Field) FieldNames() []string { return []string{f.Name} }

func (f Field) Evaluate(extract FieldExtractor) ([]tuple.Tuple, error) {
	values, err := extract(f.Name)
	if err != nil {
		return nil, fmt.Errorf("keyexpr: field %q: %w", f.Name, err)
	}
	out := make([]tuple.Tuple, len(values))
	for i, v := range values {
		out[i] = tuple.Tuple{v}
	}
	return out, nil
}

// Concat evaluates every child and returns the Cartesian product of their
// tuples, concatenated element-wise. A child yielding N tuples while
// siblings yield 1 produces N combined output tuples (spec Β§4.3).
type Concat struct {
	Children []Expression
}

func (c Concat) ColumnCount() int {
	n := 0
	for _, child := range c.Children {
		n += child.ColumnCount()
	}
	return n
}

func (c Concat) FieldNames() []string {
	var names []string
	for _, child := range c.Children {
		names = append(names, child.FieldNames()...)
	}
	return names
}

func (c Concat) Evaluate(extract FieldExtractor) ([]tuple.Tuple, error) {
	product := []tuple.Tuple{{}}
	for _, child := range c.Children {
		childTuples, err := child.Evaluate(extract)
		if err != nil {
			return nil, err
		}
		var next []tuple.Tuple
		for _, prefix := range product {
			for _, ct := range childTuples {
				combined := make(tuple.Tuple, 0, len(prefix)+len(ct))
				combined = append(combined, prefix...)
				combined = append(combined, ct...)
				next = append(next, combined)
			}
		}
		product = next
	}
	return product, nil
}

// Empty yields exactly one zero-length tuple; it is the identity element
// for Concat and the primary-key expression of record types with no
// natural key fields.
type Empty struct{}

func (Empty) ColumnCount() int { return 0 }

func (Empty) FieldNames() []string { return nil }

func (Empty) Evaluate(FieldExtractor) ([]tuple.Tuple, error) {
	return []tuple.Tuple{{}}, nil
}
