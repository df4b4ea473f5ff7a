// Package grading holds the grade rules shared by every editing surface:
// per-field ranges, input validation and department aggregation.
package grading

import (
	"regexp"
	"strconv"

	"learnopt/internal/domain"
)

// Range bounds a grade field. Both ends are inclusive.
type Range struct {
	Min  float64
	Max  float64
	Step float64
}

// Context selects which overall-score range applies.
type Context int

const (
	// ContextHistory is the generated-file editor: overall scores are 0-5.
	ContextHistory Context = iota
	// ContextPerformance is the performance cell of a fresh upload: 0-100.
	ContextPerformance
)

// ParseContext maps a config value to a Context.
func ParseContext(s string) (Context, bool) {
	switch s {
	case "history":
		return ContextHistory, true
	case "performance":
		return ContextPerformance, true
	}
	return ContextHistory, false
}

func (c Context) String() string {
	if c == ContextPerformance {
		return "performance"
	}
	return "history"
}

var (
	overallHistory     = Range{Min: 0, Max: 5, Step: 0.1}
	overallPerformance = Range{Min: 0, Max: 100, Step: 0.1}
	defaultRange       = Range{Min: 0, Max: 10, Step: 1}
)

// fieldRanges is keyed by exact field name. "Supp" (the SUPPORT schema
// column) is not "SUPP" and falls through to defaultRange.
var fieldRanges = map[string]Range{
	// NTOP
	"WI":  {0, 10, 1},
	"CO":  {0, 10, 1},
	"5S":  {0, 5, 1},
	"BO":  {0, 10, 1},
	"CBO": {0, 5, 1},
	"SDG": {0, 5, 1},

	// WVS
	"OHSA": {0, 20, 1},
	"WE":   {0, 10, 1},
	"UJC":  {0, 15, 1},
	"ISO":  {0, 10, 1},
	"PO":   {0, 15, 1},
	"HR":   {0, 10, 1},

	// EQUIP
	"AppDev": {0, 20, 1},
	"PerDev": {0, 10, 1},
	"WI2":    {0, 5, 1},
	"ELEX":   {0, 10, 1},
	"CM":     {0, 10, 1},
	"SPC":    {0, 10, 1},

	// ASSESSMENT
	"SUPP": {0, 40, 1},
	"Tech": {0, 46, 1},
	"PROD": {0, 40, 1},
	"DS":   {0, 10, 1},
}

var (
	decimalShape = regexp.MustCompile(`^\d*\.?\d?$`)
	integerShape = regexp.MustCompile(`^\d+$`)
)

// Validator checks raw text edits against the field range table.
type Validator struct {
	ctx Context
}

func NewValidator(ctx Context) *Validator {
	return &Validator{ctx: ctx}
}

func (v *Validator) Context() Context {
	return v.ctx
}

// RangeFor returns the bounds for field. Unknown names get {0,10,1}.
func (v *Validator) RangeFor(field string) Range {
	if field == domain.FieldOverall {
		if v.ctx == ContextPerformance {
			return overallPerformance
		}
		return overallHistory
	}
	if r, ok := fieldRanges[field]; ok {
		return r
	}
	return defaultRange
}

// Accept validates raw for field and returns the value to store.
// Empty input is accepted and clears the field. Anything else that is
// malformed or out of range returns ok=false and must not be stored.
func (v *Validator) Accept(field, raw string) (value string, ok bool) {
	if raw == "" {
		return "", true
	}
	r := v.RangeFor(field)

	if field == domain.FieldOverall {
		if !decimalShape.MatchString(raw) {
			return "", false
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil || n < r.Min || n > r.Max {
			return "", false
		}
		return strconv.FormatFloat(n, 'f', -1, 64), true
	}

	if !integerShape.MatchString(raw) {
		return "", false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || float64(n) < r.Min || float64(n) > r.Max {
		return "", false
	}
	return strconv.Itoa(n), true
}
