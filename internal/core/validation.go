package core

// validation.go checks a parsed dataset and the raw weights/impacts strings
// before any ranking is attempted.
//
// Rules run in a fixed order and validation stops at the first violation:
//  1. Column count: at least one label column and two criteria
//  2. Count alignment: weights, impacts and criteria columns agree
//  3. Impact symbols: every token is "+" or "-" after trimming
//  4. Numeric typing: every criteria cell is a number
//
// Weight values are not inspected here; ParseWeights handles them.

import (
	"fmt"
	"strings"
)

// Rule identifies which validation rule rejected the input.
type Rule int

const (
	RuleColumnCount Rule = iota + 1
	RuleCountMismatch
	RuleImpactSymbol
	RuleNonNumeric
)

func (r Rule) String() string {
	switch r {
	case RuleColumnCount:
		return "column_count"
	case RuleCountMismatch:
		return "count_mismatch"
	case RuleImpactSymbol:
		return "impact_symbol"
	case RuleNonNumeric:
		return "non_numeric"
	default:
		return "unknown"
	}
}

// MinColumns is the smallest accepted table: one label and two criteria.
const MinColumns = 3

// ValidationError describes the first rule an input violated. Message is the
// exact text shown to the user.
type ValidationError struct {
	Rule    Rule
	Message string

	Column string // RuleNonNumeric: offending column name

	// RuleCountMismatch: token and column counts
	Weights int
	Impacts int
	Columns int
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validate returns nil when the dataset and parameter strings are well-formed,
// or a *ValidationError for the first rule violated.
func Validate(ds *Dataset, weights, impacts string) error {
	if ds.ColumnCount() < MinColumns {
		return &ValidationError{
			Rule:    RuleColumnCount,
			Message: "Error: Input file must contain at least three columns.",
		}
	}

	w := strings.Split(weights, ",")
	i := strings.Split(impacts, ",")
	c := ds.CriteriaCount()
	if len(w) != len(i) || len(w) != c {
		return &ValidationError{
			Rule: RuleCountMismatch,
			Message: fmt.Sprintf(
				"Error: Number of weights (%d), impacts (%d), and data columns (%d) must be equal.",
				len(w), len(i), c),
			Weights: len(w),
			Impacts: len(i),
			Columns: c,
		}
	}

	for _, tok := range i {
		if _, ok := impactSymbols[strings.TrimSpace(tok)]; !ok {
			return &ValidationError{
				Rule:    RuleImpactSymbol,
				Message: "Error: Impacts must be either '+' or '-'.",
			}
		}
	}

	for col := 1; col < ds.ColumnCount(); col++ {
		if !columnNumeric(ds, col) {
			name := ds.Header[col]
			return &ValidationError{
				Rule:    RuleNonNumeric,
				Message: fmt.Sprintf("Error: Column '%s' contains non-numeric values.", name),
				Column:  name,
			}
		}
	}

	return nil
}

// columnNumeric reports whether every cell of column col is numeric. A column
// without data rows has no numeric type and fails.
func columnNumeric(ds *Dataset, col int) bool {
	if ds.RowCount() == 0 {
		return false
	}
	for _, row := range ds.Rows {
		if !IsNumeric(row[col]) {
			return false
		}
	}
	return true
}
