package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"learnopt/internal/domain"
	"learnopt/internal/grading"
)

type fakeUpdater struct {
	mu      sync.Mutex
	err     error
	calls   int
	gotID   string
	gotMeta domain.Metadata
	got     []domain.StudentRecord
	block   chan struct{}
}

func (f *fakeUpdater) Update(ctx context.Context, id string, records []domain.StudentRecord, meta domain.Metadata) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotID = id
	f.gotMeta = meta
	f.got = records
	return f.err
}

func newTestSession(u Updater) *Session {
	file := domain.GeneratedFile{ID: "f1", Batch: "B1", School: "NHS", DateOfImmersion: "2025-03-01"}
	return NewSession(file, sampleRecords(), grading.NewValidator(grading.ContextHistory), u, nil)
}

func TestSetFieldRejectedWhileViewing(t *testing.T) {
	s := newTestSession(&fakeUpdater{})
	if out := s.SetField(0, "WI", "1"); out != Rejected {
		t.Fatalf("SetField while viewing = %s, want rejected", out)
	}
	if s.Modified() {
		t.Fatal("records changed while viewing")
	}
}

func TestBeginEditCancelIsIdentity(t *testing.T) {
	s := newTestSession(&fakeUpdater{})
	before := s.Records()
	beforeTop, _ := s.Toppers().For(domain.Technical)

	s.BeginEdit()
	if !s.Dirty() {
		t.Fatal("expected dirty after BeginEdit")
	}
	s.SetField(3, domain.FieldOverall, "5")
	s.SetField(0, "WI", "")
	if top, _ := s.Toppers().For(domain.Technical); top.ID != "4" {
		t.Fatalf("topper after edit = %s, want 4", top.ID)
	}

	s.Cancel()
	if s.State() != Viewing || s.Dirty() {
		t.Fatalf("state after cancel = %s", s.State())
	}
	after := s.Records()
	for i := range before {
		if !after[i].Equal(before[i]) {
			t.Fatalf("record %d differs after cancel", i)
		}
	}
	if top, _ := s.Toppers().For(domain.Technical); top.ID != beforeTop.ID {
		t.Fatalf("topper after cancel = %s, want %s", top.ID, beforeTop.ID)
	}
}

func TestSaveSuccessAdvancesSnapshot(t *testing.T) {
	u := &fakeUpdater{}
	s := newTestSession(u)
	s.BeginEdit()
	s.SetField(0, "WI", "10")

	if err := s.Save(context.Background()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if s.State() != Viewing {
		t.Fatalf("state after save = %s, want viewing", s.State())
	}
	if u.gotID != "f1" || u.gotMeta.Batch != "B1" || u.gotMeta.School != "NHS" || u.gotMeta.DateOfImmersion != "2025-03-01" {
		t.Fatalf("unexpected update call id=%s meta=%+v", u.gotID, u.gotMeta)
	}
	if len(u.got) != 4 || u.got[0].Value("WI") != "10" {
		t.Fatalf("unexpected saved records: %+v", u.got)
	}

	s.BeginEdit()
	s.SetField(0, "WI", "1")
	s.Cancel()
	r := s.Records()[0]
	if r.Value("WI") != "10" {
		t.Fatalf("cancel after save restored WI=%q, want saved value 10", r.Value("WI"))
	}
}

func TestSaveFailureKeepsEdits(t *testing.T) {
	u := &fakeUpdater{err: errors.New("duplicate batch")}
	s := newTestSession(u)
	s.BeginEdit()
	s.SetField(0, "WI", "3")

	err := s.Save(context.Background())
	if err == nil || err.Error() != "duplicate batch" {
		t.Fatalf("Save error = %v, want duplicate batch", err)
	}
	if s.State() != Editing {
		t.Fatalf("state after failed save = %s, want editing", s.State())
	}
	if s.Records()[0].Value("WI") != "3" {
		t.Fatal("in-progress edit lost after failed save")
	}
	if !s.Modified() {
		t.Fatal("expected records to differ from snapshot")
	}
}

func TestSaveRequiresEditing(t *testing.T) {
	u := &fakeUpdater{}
	s := newTestSession(u)
	if err := s.Save(context.Background()); !errors.Is(err, ErrNotEditing) {
		t.Fatalf("Save while viewing = %v, want ErrNotEditing", err)
	}
	if u.calls != 0 {
		t.Fatal("updater called while viewing")
	}
}

func TestSaveRejectsConcurrentSave(t *testing.T) {
	u := &fakeUpdater{block: make(chan struct{})}
	s := newTestSession(u)
	s.BeginEdit()

	done := make(chan error, 1)
	go func() { done <- s.Save(context.Background()) }()

	for !s.Saving() {
		time.Sleep(time.Millisecond)
	}
	if err := s.Save(context.Background()); !errors.Is(err, ErrSaveInProgress) {
		t.Fatalf("second Save = %v, want ErrSaveInProgress", err)
	}
	close(u.block)
	if err := <-done; err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
}

func TestStoreFrozenWhileSaving(t *testing.T) {
	u := &fakeUpdater{block: make(chan struct{})}
	s := newTestSession(u)
	s.BeginEdit()
	if out := s.SetField(0, "WI", "1"); out != Accepted {
		t.Fatalf("SetField before save = %s, want accepted", out)
	}

	done := make(chan error, 1)
	go func() { done <- s.Save(context.Background()) }()
	for !s.Saving() {
		time.Sleep(time.Millisecond)
	}

	if out := s.SetField(0, "WI", "2"); out != Rejected {
		t.Fatalf("SetField during save = %s, want rejected", out)
	}
	s.Cancel()
	if s.State() != Editing {
		t.Fatalf("Cancel during save changed state to %s", s.State())
	}
	if got := s.Records()[0].Value("WI"); got != "1" {
		t.Fatalf("WI during save = %q, want 1", got)
	}

	close(u.block)
	if err := <-done; err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if s.State() != Viewing || s.Modified() {
		t.Fatalf("state = %s modified = %v, want viewing and unmodified", s.State(), s.Modified())
	}
	u.mu.Lock()
	sent := u.got[0].Value("WI")
	u.mu.Unlock()
	if live := s.Records()[0].Value("WI"); live != sent || sent != "1" {
		t.Fatalf("live WI = %q, sent WI = %q, want both 1", live, sent)
	}
}

func TestBeginEditTwiceKeepsSnapshot(t *testing.T) {
	s := newTestSession(&fakeUpdater{})
	s.BeginEdit()
	s.SetField(0, "WI", "1")
	s.BeginEdit()
	s.Cancel()
	if s.Records()[0].Value("WI") != "7" {
		t.Fatal("second BeginEdit replaced the snapshot")
	}
}
