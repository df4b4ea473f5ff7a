package grading

import "learnopt/internal/domain"

// DepartmentSummary is the headcount and mean qualifying overall score of
// one department.
type DepartmentSummary struct {
	Department domain.Department
	Students   int
	Graded     int
	Average    float64
}

// Summarize counts students per canonical department and averages the
// overall scores that are present and above zero. Departments are returned
// in domain.Departments order.
func Summarize(records []domain.StudentRecord) []DepartmentSummary {
	idx := make(map[domain.Department]int, len(domain.Departments))
	out := make([]DepartmentSummary, len(domain.Departments))
	for i, dept := range domain.Departments {
		idx[dept] = i
		out[i].Department = dept
	}

	sums := make([]float64, len(out))
	for _, r := range records {
		i := idx[r.Canonical()]
		out[i].Students++
		if score, ok := OverallScore(r); ok && score > 0 {
			out[i].Graded++
			sums[i] += score
		}
	}
	for i := range out {
		if out[i].Graded > 0 {
			out[i].Average = sums[i] / float64(out[i].Graded)
		}
	}
	return out
}
