package domain

import (
	"bytes"
	"time"
)

// StudentRecord is one trainee row of a grade file. Grade values are kept as
// normalized decimal text; "" means the field is unset.
type StudentRecord struct {
	ID         string
	FirstName  string
	MiddleName string
	LastName   string
	Strand     string
	Department string // raw value as entered, see Canonical
	Overall    string
	Scores     map[string]string

	// Raw is the payload the record was decoded from. Keys the engine does
	// not model are sent back untouched on update.
	Raw []byte
}

// Canonical classifies the raw department on every call so the result
// always tracks the current raw value.
func (r StudentRecord) Canonical() Department {
	return Classify(r.Department)
}

// Value returns the stored text for field, including FieldOverall.
func (r StudentRecord) Value(field string) string {
	if field == FieldOverall {
		return r.Overall
	}
	return r.Scores[field]
}

// Set stores value for field without validation. Callers outside the editor
// store should not use it on live records.
func (r *StudentRecord) Set(field, value string) {
	if field == FieldOverall {
		r.Overall = value
		return
	}
	if r.Scores == nil {
		r.Scores = make(map[string]string)
	}
	r.Scores[field] = value
}

// FullName joins the present name parts with single spaces.
func (r StudentRecord) FullName() string {
	name := r.FirstName
	for _, part := range []string{r.MiddleName, r.LastName} {
		if part == "" {
			continue
		}
		if name != "" {
			name += " "
		}
		name += part
	}
	return name
}

// Clone returns a structurally independent copy.
func (r StudentRecord) Clone() StudentRecord {
	out := r
	if r.Scores != nil {
		out.Scores = make(map[string]string, len(r.Scores))
		for k, v := range r.Scores {
			out.Scores[k] = v
		}
	}
	if r.Raw != nil {
		out.Raw = append([]byte(nil), r.Raw...)
	}
	return out
}

// Equal reports whether two records hold the same identity and values.
// A missing score and an empty score are the same thing.
func (r StudentRecord) Equal(o StudentRecord) bool {
	if r.ID != o.ID || r.FirstName != o.FirstName || r.MiddleName != o.MiddleName ||
		r.LastName != o.LastName || r.Strand != o.Strand || r.Department != o.Department ||
		r.Overall != o.Overall {
		return false
	}
	for k, v := range r.Scores {
		if o.Scores[k] != v {
			return false
		}
	}
	for k, v := range o.Scores {
		if r.Scores[k] != v {
			return false
		}
	}
	return bytes.Equal(r.Raw, o.Raw)
}

// CloneRecords deep-copies a record sequence, preserving order.
func CloneRecords(records []StudentRecord) []StudentRecord {
	if records == nil {
		return nil
	}
	out := make([]StudentRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// GeneratedFile is a report file owned by the remote service.
type GeneratedFile struct {
	ID                 string
	Filename           string
	OriginalFilename   string
	School             string
	Batch              string
	DateOfImmersion    string
	StudentCount       int
	AveragePerformance string
	FileSize           int64
	CreatedAt          time.Time
}

// Metadata is the file-level data sent with an update.
type Metadata struct {
	Batch           string
	School          string
	DateOfImmersion string
}

func (f GeneratedFile) Metadata() Metadata {
	return Metadata{Batch: f.Batch, School: f.School, DateOfImmersion: f.DateOfImmersion}
}

// JournalEntry records the outcome of one remote operation.
type JournalEntry struct {
	ID        int64
	RequestID string
	Op        string
	FileID    string
	OK        bool
	Message   string
	CreatedAt time.Time
}
