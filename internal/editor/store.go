// Package editor owns the live grade records of one file and the edit
// session that guards them.
package editor

import (
	"time"

	"learnopt/internal/domain"
	"learnopt/internal/grading"
)

// Outcome is the result of a field write.
type Outcome int

const (
	Accepted Outcome = iota
	Rejected
)

func (o Outcome) String() string {
	if o == Accepted {
		return "accepted"
	}
	return "rejected"
}

// Snapshot is a detached copy of a record sequence used for rollback.
type Snapshot struct {
	records []domain.StudentRecord
	takenAt time.Time
}

// Records returns a copy of the snapshotted sequence.
func (s Snapshot) Records() []domain.StudentRecord {
	return domain.CloneRecords(s.records)
}

func (s Snapshot) TakenAt() time.Time {
	return s.takenAt
}

func (s Snapshot) Len() int {
	return len(s.records)
}

// Entry pairs a record with its position in the full sequence so a filtered
// view can still address writes.
type Entry struct {
	Index  int
	Record domain.StudentRecord
}

// Store holds the ordered records of the active file. SetField is the only
// mutation path for grade values. Store is not safe for concurrent use;
// Session serializes access.
type Store struct {
	validator *grading.Validator
	records   []domain.StudentRecord
}

// NewStore copies records into a new store.
func NewStore(v *grading.Validator, records []domain.StudentRecord) *Store {
	return &Store{validator: v, records: domain.CloneRecords(records)}
}

func (s *Store) Validator() *grading.Validator {
	return s.validator
}

func (s *Store) Len() int {
	return len(s.records)
}

// Records returns a copy of the live sequence.
func (s *Store) Records() []domain.StudentRecord {
	return domain.CloneRecords(s.records)
}

// Record returns a copy of the record at i.
func (s *Store) Record(i int) (domain.StudentRecord, bool) {
	if i < 0 || i >= len(s.records) {
		return domain.StudentRecord{}, false
	}
	return s.records[i].Clone(), true
}

// SetField validates raw for field and stores it on record i. A rejected
// edit, including an out-of-bounds index, leaves the store unchanged.
func (s *Store) SetField(i int, field, raw string) Outcome {
	if i < 0 || i >= len(s.records) {
		return Rejected
	}
	value, ok := s.validator.Accept(field, raw)
	if !ok {
		return Rejected
	}
	s.records[i].Set(field, value)
	return Accepted
}

// FilterByDepartment returns the records classified as dept in their
// original order.
func (s *Store) FilterByDepartment(dept domain.Department) []Entry {
	var out []Entry
	for i, r := range s.records {
		if r.Canonical() == dept {
			out = append(out, Entry{Index: i, Record: r.Clone()})
		}
	}
	return out
}

// Snapshot takes a full structural copy of the live sequence.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{records: domain.CloneRecords(s.records), takenAt: time.Now()}
}

// Restore replaces the live sequence with a copy of snap.
func (s *Store) Restore(snap Snapshot) {
	s.records = domain.CloneRecords(snap.records)
}

// Replace swaps in a new sequence wholesale, e.g. after a fresh fetch.
func (s *Store) Replace(records []domain.StudentRecord) {
	s.records = domain.CloneRecords(records)
}

// Matches reports whether the live sequence equals snap record for record.
func (s *Store) Matches(snap Snapshot) bool {
	if len(s.records) != len(snap.records) {
		return false
	}
	for i := range s.records {
		if !s.records[i].Equal(snap.records[i]) {
			return false
		}
	}
	return true
}
