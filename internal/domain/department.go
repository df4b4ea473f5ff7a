package domain

import "strings"

// Department is one of the three canonical departments used for schema
// lookup and aggregation.
type Department string

const (
	Technical  Department = "TECHNICAL"
	Production Department = "PRODUCTION"
	Support    Department = "SUPPORT"
)

// Departments lists the canonical departments in display order.
var Departments = []Department{Technical, Production, Support}

// Classify maps a raw department value to its canonical department.
// SUPPORT is the closed-world fallback: empty, misspelled or unknown values
// all land there. Adding a department is a schema change, not a new token.
func Classify(raw string) Department {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "TECHNICAL", "IT":
		return Technical
	case "PRODUCTION", "PROD":
		return Production
	default:
		return Support
	}
}

func (d Department) String() string {
	return string(d)
}
