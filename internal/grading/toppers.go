package grading

import (
	"math"
	"strconv"
	"strings"

	"learnopt/internal/domain"
)

// Toppers maps each canonical department to its best record, or nil when no
// record in that department has a qualifying score.
type Toppers map[domain.Department]*domain.StudentRecord

// For returns the topper of dept and whether one exists.
func (t Toppers) For(dept domain.Department) (domain.StudentRecord, bool) {
	r := t[dept]
	if r == nil {
		return domain.StudentRecord{}, false
	}
	return *r, true
}

// OverallScore parses the overall value of r. Blank, unparsable, NaN and
// infinite values report ok=false.
func OverallScore(r domain.StudentRecord) (float64, bool) {
	s := strings.TrimSpace(r.Overall)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// ComputeToppers picks, per department, the record with the highest overall
// score above zero. Ties go to the earliest record. Returned records are
// copies.
func ComputeToppers(records []domain.StudentRecord) Toppers {
	best := make(map[domain.Department]int, len(domain.Departments))
	bestScore := make(map[domain.Department]float64, len(domain.Departments))

	for i, r := range records {
		score, ok := OverallScore(r)
		if !ok || score <= 0 {
			continue
		}
		dept := r.Canonical()
		if _, seen := best[dept]; !seen || score > bestScore[dept] {
			best[dept] = i
			bestScore[dept] = score
		}
	}

	out := make(Toppers, len(domain.Departments))
	for _, dept := range domain.Departments {
		idx, ok := best[dept]
		if !ok {
			out[dept] = nil
			continue
		}
		c := records[idx].Clone()
		out[dept] = &c
	}
	return out
}
