package filesync

import (
	"fmt"
	"sort"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"learnopt/internal/domain"
)

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// text flattens a JSON value to the engine's string form. Absent and null
// values become "".
func text(v gjson.Result) string {
	if !v.Exists() || v.Type == gjson.Null {
		return ""
	}
	return v.String()
}

func decodeFile(v gjson.Result) domain.GeneratedFile {
	f := domain.GeneratedFile{
		ID:                 text(v.Get("id")),
		Filename:           text(v.Get("filename")),
		OriginalFilename:   text(v.Get("original_filename")),
		School:             text(v.Get("school")),
		Batch:              text(v.Get("batch")),
		DateOfImmersion:    text(v.Get("date_of_immersion")),
		StudentCount:       int(v.Get("student_count").Int()),
		AveragePerformance: text(v.Get("average_performance")),
		FileSize:           v.Get("file_size").Int(),
	}
	if raw := text(v.Get("created_at")); raw != "" {
		for _, layout := range createdAtLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				f.CreatedAt = t
				break
			}
		}
	}
	return f
}

func decodeFiles(v gjson.Result) []domain.GeneratedFile {
	files := []domain.GeneratedFile{}
	if !v.IsArray() {
		return files
	}
	v.ForEach(func(_, item gjson.Result) bool {
		files = append(files, decodeFile(item))
		return true
	})
	return files
}

// decodeStudent materializes every schema field so an unset grade is
// always "" and never zero or null.
func decodeStudent(v gjson.Result) domain.StudentRecord {
	r := domain.StudentRecord{
		ID:         text(v.Get("id")),
		FirstName:  text(v.Get("first_name")),
		MiddleName: text(v.Get("middle_name")),
		LastName:   text(v.Get("last_name")),
		Strand:     text(v.Get("strand")),
		Department: text(v.Get("department")),
		Overall:    text(v.Get(domain.FieldOverall)),
		Scores:     make(map[string]string),
	}
	for _, f := range domain.GradeFields() {
		r.Scores[f] = text(v.Get(f))
	}
	if v.IsObject() {
		r.Raw = []byte(v.Raw)
	}
	return r
}

func decodeStudents(v gjson.Result) []domain.StudentRecord {
	students := []domain.StudentRecord{}
	if !v.IsArray() {
		return students
	}
	v.ForEach(func(_, item gjson.Result) bool {
		students = append(students, decodeStudent(item))
		return true
	})
	return students
}

// encodeStudent writes r over its original payload. Values that did not
// change keep their original JSON type.
func encodeStudent(r domain.StudentRecord) ([]byte, error) {
	out := []byte("{}")
	if len(r.Raw) > 0 && gjson.ValidBytes(r.Raw) && gjson.ParseBytes(r.Raw).IsObject() {
		out = append([]byte(nil), r.Raw...)
	}

	var err error
	set := func(path, value string) {
		if err != nil {
			return
		}
		cur := gjson.GetBytes(out, path)
		if cur.Exists() && text(cur) == value {
			return
		}
		out, err = sjson.SetBytes(out, path, value)
	}

	if r.ID != "" && !gjson.GetBytes(out, "id").Exists() {
		set("id", r.ID)
	}
	set("first_name", r.FirstName)
	set("middle_name", r.MiddleName)
	set("last_name", r.LastName)
	set("strand", r.Strand)
	set("department", r.Department)
	set(domain.FieldOverall, r.Overall)

	fields := make([]string, 0, len(r.Scores))
	for f := range r.Scores {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		set(f, r.Scores[f])
	}
	if err != nil {
		return nil, fmt.Errorf("encoding student %s: %w", r.ID, err)
	}
	return out, nil
}

func encodeStudents(records []domain.StudentRecord) ([][]byte, error) {
	out := make([][]byte, 0, len(records))
	for _, r := range records {
		b, err := encodeStudent(r)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
