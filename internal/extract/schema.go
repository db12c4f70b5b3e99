package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"budgetchat/internal/core"
)

// Problem names the way a field failed validation.
type Problem string

const (
	ProblemNotArray  Problem = "not_array"
	ProblemNotObject Problem = "not_object"
	ProblemMissing   Problem = "missing"
	ProblemWrongType Problem = "wrong_type"
	ProblemBadFormat Problem = "bad_format"
)

const maxViolations = 10

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Violation is a single schema failure. Index is -1 for the top-level value.
type Violation struct {
	Index   int
	Field   string
	Problem Problem
}

func (v Violation) String() string {
	switch {
	case v.Index < 0:
		return "top-level value: " + string(v.Problem)
	case v.Field == "":
		return fmt.Sprintf("item %d: %s", v.Index, v.Problem)
	default:
		return fmt.Sprintf("item %d: field %q: %s", v.Index, v.Field, v.Problem)
	}
}

// SchemaError reports why decoded model output was rejected. Index, Field and
// Problem describe the first violation. The raw payload is never included.
type SchemaError struct {
	Index      int
	Field      string
	Problem    Problem
	Violations []Violation
}

func (e *SchemaError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return strings.Join(parts, "; ")
}

type violations []Violation

func (vs *violations) add(index int, field string, p Problem) {
	if len(*vs) < maxViolations {
		*vs = append(*vs, Violation{Index: index, Field: field, Problem: p})
	}
}

func (vs violations) err() *SchemaError {
	if len(vs) == 0 {
		return nil
	}
	return &SchemaError{Index: vs[0].Index, Field: vs[0].Field, Problem: vs[0].Problem, Violations: vs}
}

// ValidateItems checks a decoded JSON value against the expense item schema
// and converts it to entries without IDs.
//
// The value must be an array of objects with a numeric amount, string
// currency and category, and a date shaped like YYYY-MM-DD. The date is not
// checked against the calendar. time and note are optional strings and
// unknown fields are ignored. Validation is all-or-nothing.
func ValidateItems(v any) ([]core.ExpenseEntry, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, &SchemaError{
			Index:      -1,
			Problem:    ProblemNotArray,
			Violations: []Violation{{Index: -1, Problem: ProblemNotArray}},
		}
	}

	var vs violations
	entries := make([]core.ExpenseEntry, 0, len(arr))
	for i, elem := range arr {
		obj, ok := elem.(map[string]any)
		if !ok {
			vs.add(i, "", ProblemNotObject)
			continue
		}
		entry, ok := validateItem(i, obj, &vs)
		if ok {
			entries = append(entries, entry)
		}
	}
	if se := vs.err(); se != nil {
		return nil, se
	}
	return entries, nil
}

func validateItem(i int, obj map[string]any, vs *violations) (core.ExpenseEntry, bool) {
	before := len(*vs)
	var entry core.ExpenseEntry

	if raw, present := obj["amount"]; !present {
		vs.add(i, "amount", ProblemMissing)
	} else if amount, ok := toDecimal(raw); !ok {
		vs.add(i, "amount", ProblemWrongType)
	} else {
		entry.Amount = amount
	}

	entry.Currency = requiredString(i, obj, "currency", vs)
	entry.Category = requiredString(i, obj, "category", vs)

	if raw, present := obj["date"]; !present {
		vs.add(i, "date", ProblemMissing)
	} else if date, ok := raw.(string); !ok {
		vs.add(i, "date", ProblemWrongType)
	} else if !datePattern.MatchString(date) {
		vs.add(i, "date", ProblemBadFormat)
	} else {
		entry.Date = date
	}

	entry.Time = optionalString(i, obj, "time", vs)
	entry.Note = optionalString(i, obj, "note", vs)

	return entry, len(*vs) == before
}

func requiredString(i int, obj map[string]any, field string, vs *violations) string {
	raw, present := obj[field]
	if !present {
		vs.add(i, field, ProblemMissing)
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		vs.add(i, field, ProblemWrongType)
		return ""
	}
	return s
}

func optionalString(i int, obj map[string]any, field string, vs *violations) string {
	raw, present := obj[field]
	if !present {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		vs.add(i, field, ProblemWrongType)
		return ""
	}
	return s
}

// toDecimal accepts the number representations produced by encoding/json.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case float64:
		return decimal.NewFromFloat(n), true
	default:
		return decimal.Zero, false
	}
}
