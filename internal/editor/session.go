package editor

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"learnopt/internal/domain"
	"learnopt/internal/grading"
)

// State is the edit-session state.
type State int

const (
	Viewing State = iota
	Editing
)

func (s State) String() string {
	if s == Editing {
		return "editing"
	}
	return "viewing"
}

var (
	ErrNotEditing     = errors.New("session is not in editing state")
	ErrSaveInProgress = errors.New("a save is already in progress")
)

// Updater persists a full record sequence for a file.
type Updater interface {
	Update(ctx context.Context, id string, records []domain.StudentRecord, meta domain.Metadata) error
}

// Session coordinates edits to one file: when writes are allowed, when the
// rollback snapshot is taken and how Cancel and Save resolve.
type Session struct {
	mu      sync.Mutex
	file    domain.GeneratedFile
	store   *Store
	snap    Snapshot
	state   State
	saving  bool
	toppers grading.Toppers

	updater Updater
	logger  *zap.Logger
}

// NewSession opens file in Viewing state with records as both the live
// sequence and the initial snapshot.
func NewSession(file domain.GeneratedFile, records []domain.StudentRecord, v *grading.Validator, updater Updater, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := NewStore(v, records)
	s := &Session{
		file:    file,
		store:   store,
		snap:    store.Snapshot(),
		state:   Viewing,
		updater: updater,
		logger:  logger.With(zap.String("file_id", file.ID)),
	}
	s.toppers = grading.ComputeToppers(store.records)
	return s
}

func (s *Session) File() domain.GeneratedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dirty is true from BeginEdit until Save or Cancel resolves the session.
func (s *Session) Dirty() bool {
	return s.State() == Editing
}

// Modified reports whether the live records differ from the last snapshot.
func (s *Session) Modified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.store.Matches(s.snap)
}

func (s *Session) Saving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

func (s *Session) Records() []domain.StudentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Records()
}

func (s *Session) Filter(dept domain.Department) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.FilterByDepartment(dept)
}

// Toppers returns the aggregation over the current records.
func (s *Session) Toppers() grading.Toppers {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(grading.Toppers, len(s.toppers))
	for dept, r := range s.toppers {
		if r == nil {
			out[dept] = nil
			continue
		}
		c := r.Clone()
		out[dept] = &c
	}
	return out
}

func (s *Session) Summary() []grading.DepartmentSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return grading.Summarize(s.store.records)
}

// BeginEdit moves Viewing to Editing and snapshots the records. Calling it
// while already Editing keeps the existing snapshot.
func (s *Session) BeginEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Editing {
		return
	}
	s.snap = s.store.Snapshot()
	s.state = Editing
	s.logger.Debug("edit begin", zap.Int("records", s.store.Len()))
}

// SetField writes one grade while Editing. Outside Editing, and while a
// save is outstanding, every write is rejected. Toppers are recomputed
// after each accepted write.
func (s *Session) SetField(i int, field, raw string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Editing || s.saving {
		return Rejected
	}
	out := s.store.SetField(i, field, raw)
	if out == Accepted {
		s.toppers = grading.ComputeToppers(s.store.records)
	}
	return out
}

// Cancel restores the last snapshot and returns to Viewing. It does
// nothing while a save is outstanding.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Editing || s.saving {
		return
	}
	s.store.Restore(s.snap)
	s.toppers = grading.ComputeToppers(s.store.records)
	s.state = Viewing
	s.logger.Debug("edit cancelled")
}

// Save sends the current records to the remote service. On success the
// snapshot becomes the sequence that was sent and the session returns to
// Viewing. On failure the session stays in Editing with edits intact and
// the error is returned. The lock is not held during the remote call.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Editing {
		s.mu.Unlock()
		return ErrNotEditing
	}
	if s.saving {
		s.mu.Unlock()
		return ErrSaveInProgress
	}
	s.saving = true
	sent := s.store.Snapshot()
	file := s.file
	s.mu.Unlock()

	s.logger.Info("save start", zap.Int("records", sent.Len()))
	err := s.updater.Update(ctx, file.ID, sent.Records(), file.Metadata())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if err != nil {
		s.logger.Warn("save failed", zap.Error(err))
		return err
	}
	s.snap = sent
	s.state = Viewing
	s.logger.Info("save done")
	return nil
}
