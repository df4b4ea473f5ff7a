package domain

// FieldGroup is a labelled, ordered set of grade fields.
type FieldGroup struct {
	Label  string
	Fields []string
}

// FieldOverall is the wire name of the overall performance score.
const FieldOverall = "over_all"

var (
	ntopFields = []string{"WI", "CO", "5S", "BO", "CBO", "SDG"}
	wvsFields  = []string{"OHSA", "WE", "UJC", "ISO", "PO", "HR"}
)

var schemas = map[Department][]FieldGroup{
	Technical: {
		{Label: "NTOP", Fields: ntopFields},
		{Label: "WVS", Fields: wvsFields},
		{Label: "EQUIP", Fields: []string{"AppDev"}},
		{Label: "ASSESSMENT", Fields: []string{"Tech", "DS"}},
	},
	Production: {
		{Label: "NTOP", Fields: ntopFields},
		{Label: "WVS", Fields: wvsFields},
		{Label: "EQUIP", Fields: []string{"WI2", "ELEX", "CM", "SPC"}},
		{Label: "ASSESSMENT", Fields: []string{"PROD", "DS"}},
	},
	Support: {
		{Label: "NTOP", Fields: ntopFields},
		{Label: "WVS", Fields: wvsFields},
		{Label: "EQUIP", Fields: []string{"PerDev"}},
		{Label: "ASSESSMENT", Fields: []string{"Supp", "DS"}},
	},
}

// SchemaFor returns a copy of the field groups graded for dept.
func SchemaFor(dept Department) []FieldGroup {
	groups := schemas[dept]
	out := make([]FieldGroup, len(groups))
	for i, g := range groups {
		out[i] = FieldGroup{Label: g.Label, Fields: append([]string(nil), g.Fields...)}
	}
	return out
}

// FieldsFor flattens the schema of dept into column order.
func FieldsFor(dept Department) []string {
	var fields []string
	for _, g := range schemas[dept] {
		fields = append(fields, g.Fields...)
	}
	return fields
}

// GradeFields returns every grade field named by any department schema,
// each once, in first-seen order.
func GradeFields() []string {
	seen := make(map[string]bool)
	var fields []string
	for _, dept := range Departments {
		for _, f := range FieldsFor(dept) {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	return fields
}
