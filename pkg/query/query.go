// Package query describes store filters, sorts and projections as small typed
// values so they can be built and tested without a database, then rendered to
// BSON for the Mongo driver.
package query

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Operator string

const (
	OpEq    Operator = "$eq"
	OpIn    Operator = "$in"
	OpRegex Operator = "$regex"
)

// Condition is a single (field, operator, value) tuple.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// Filter is a conjunction of conditions. A nil Filter matches every document.
type Filter []Condition

func Eq(field string, value any) Condition {
	return Condition{Field: field, Op: OpEq, Value: value}
}

func In(field string, values ...any) Condition {
	return Condition{Field: field, Op: OpIn, Value: values}
}

// Contains matches documents whose field holds substr anywhere, ignoring case.
// substr is matched literally.
func Contains(field, substr string) Condition {
	return Condition{
		Field: field,
		Op:    OpRegex,
		Value: primitive.Regex{Pattern: regexp.QuoteMeta(substr), Options: "i"},
	}
}

func Where(conditions ...Condition) Filter {
	return Filter(conditions)
}

func (f Filter) And(conditions ...Condition) Filter {
	out := make(Filter, 0, len(f)+len(conditions))
	out = append(out, f...)
	return append(out, conditions...)
}

func (f Filter) IsEmpty() bool {
	return len(f) == 0
}

// BSON renders the filter. Equality is emitted in the short {field: value}
// form so indexes and the server's plan cache see the usual shape.
func (f Filter) BSON() bson.D {
	doc := bson.D{}
	for _, c := range f {
		switch c.Op {
		case OpEq:
			doc = append(doc, bson.E{Key: c.Field, Value: c.Value})
		case OpRegex:
			re, _ := c.Value.(primitive.Regex)
			doc = append(doc, bson.E{Key: c.Field, Value: bson.D{
				{Key: "$regex", Value: re.Pattern},
				{Key: "$options", Value: re.Options},
			}})
		default:
			doc = append(doc, bson.E{Key: c.Field, Value: bson.D{{Key: string(c.Op), Value: c.Value}}})
		}
	}
	return doc
}

// Matches evaluates the filter against an in-memory document.
func (f Filter) Matches(doc map[string]any) bool {
	for _, c := range f {
		if !c.matches(doc) {
			return false
		}
	}
	return true
}

func (c Condition) matches(doc map[string]any) bool {
	// A missing field compares as null, so Eq(f, nil) and In(f, nil) match it.
	actual, ok := doc[c.Field]
	switch c.Op {
	case OpEq:
		return equal(actual, c.Value)
	case OpIn:
		values, _ := c.Value.([]any)
		for _, v := range values {
			if equal(actual, v) {
				return true
			}
		}
		return false
	case OpRegex:
		s, isString := actual.(string)
		if !ok || !isString {
			return false
		}
		re, _ := c.Value.(primitive.Regex)
		compiled, err := regexp.Compile(goRegexFlags(re.Options) + re.Pattern)
		if err != nil {
			return false
		}
		return compiled.MatchString(s)
	default:
		return false
	}
}

func goRegexFlags(options string) string {
	if strings.Contains(options, "i") {
		return "(?i)"
	}
	return ""
}

func equal(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

type SortField struct {
	Field     string
	Direction Direction
}

type Sort []SortField

func SortBy(field string, direction Direction) Sort {
	return Sort{{Field: field, Direction: direction}}
}

func (s Sort) BSON() bson.D {
	doc := bson.D{}
	for _, f := range s {
		doc = append(doc, bson.E{Key: f.Field, Value: int(f.Direction)})
	}
	return doc
}

// Compare orders two in-memory documents the way the sort would.
// Numbers sort before strings; missing fields sort first.
func (s Sort) Compare(a, b map[string]any) int {
	for _, f := range s {
		c := compareValues(a[f.Field], b[f.Field])
		if c != 0 {
			return c * int(f.Direction)
		}
	}
	return 0
}

func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	switch {
	case aNum && bNum:
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Projection lists the fields a lookup returns. _id is always included by the store.
type Projection []string

func Fields(fields ...string) Projection {
	return Projection(fields)
}

func (p Projection) BSON() bson.D {
	doc := bson.D{}
	for _, f := range p {
		doc = append(doc, bson.E{Key: f, Value: 1})
	}
	return doc
}

// Apply trims an in-memory document to the projected fields plus _id.
func (p Projection) Apply(doc map[string]any) map[string]any {
	if len(p) == 0 {
		return doc
	}
	out := make(map[string]any, len(p)+1)
	if id, ok := doc["_id"]; ok {
		out["_id"] = id
	}
	for _, f := range p {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}
