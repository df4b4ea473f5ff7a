// Package workbench holds the generated-file list, the selected file's
// edit session and the upload draft, and reports every remote outcome as a
// Notice and a journal entry.
package workbench

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"learnopt/internal/domain"
	"learnopt/internal/editor"
	"learnopt/internal/filesync"
	"learnopt/internal/grading"
	"learnopt/internal/httpx"
)

var (
	ErrNoSelection = errors.New("no file selected")
	ErrEmptyDraft  = errors.New("draft has no students")
	ErrNoStudents  = errors.New("no student data received from upload")
)

type Deps struct {
	Remote    Remote
	Validator *grading.Validator
	Notifier  Notifier
	Journal   Recorder
	Logger    *zap.Logger
}

// Workbench is safe for concurrent use. Remote calls run without holding
// its lock and their results are applied in arrival order.
type Workbench struct {
	mu       sync.Mutex
	files    []GeneratedFile
	selected *editor.Session

	remote    Remote
	validator *grading.Validator
	notifier  Notifier
	journal   Recorder
	logger    *zap.Logger
}

func New(d Deps) *Workbench {
	w := &Workbench{
		remote:    d.Remote,
		validator: d.Validator,
		notifier:  d.Notifier,
		journal:   d.Journal,
		logger:    d.Logger,
	}
	if w.validator == nil {
		w.validator = grading.NewValidator(grading.ContextHistory)
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	if w.notifier == nil {
		w.notifier = LogNotifier{Logger: w.logger}
	}
	if w.journal == nil {
		w.journal = nopRecorder{}
	}
	return w
}

// call carries the request id of one remote operation.
type call struct {
	ctx    context.Context
	op     string
	fileID string
	start  time.Time
}

func (w *Workbench) begin(ctx context.Context, op, fileID string) call {
	id := httpx.RequestID(ctx)
	if id == "" {
		id = httpx.NewRequestID()
		ctx = httpx.WithRequestID(ctx, id)
	}
	w.logger.Debug(op+" start", zap.String("file_id", fileID), zap.String("request_id", id))
	return call{ctx: ctx, op: op, fileID: fileID, start: time.Now()}
}

// finish journals the outcome and notifies on failure, or with success
// when it is non-empty.
func (w *Workbench) finish(c call, err error, success string) {
	reqID := httpx.RequestID(c.ctx)
	entry := domain.JournalEntry{
		RequestID: reqID,
		Op:        c.op,
		FileID:    c.fileID,
		OK:        err == nil,
		CreatedAt: time.Now().UTC(),
	}
	if err != nil {
		entry.Message = errorMessage(c.op, err)
	} else {
		entry.Message = success
	}
	// Journal writes outlive the caller's cancellation.
	if jerr := w.journal.Record(context.WithoutCancel(c.ctx), entry); jerr != nil {
		w.logger.Warn("journal write failed", zap.String("op", c.op), zap.Error(jerr))
	}

	w.logger.Debug(c.op+" done",
		zap.String("file_id", c.fileID),
		zap.String("request_id", reqID),
		zap.Bool("ok", err == nil),
		zap.Duration("elapsed", time.Since(c.start)))

	switch {
	case err != nil:
		w.notifier.Notify(c.ctx, Notice{Level: NoticeError, Op: c.op, FileID: c.fileID, RequestID: reqID, Message: entry.Message})
	case success != "":
		w.notifier.Notify(c.ctx, Notice{Level: NoticeInfo, Op: c.op, FileID: c.fileID, RequestID: reqID, Message: success})
	}
}

// errorMessage drops the leading op name filesync puts on transport errors,
// since Notice.Text adds it back.
func errorMessage(op string, err error) string {
	var rerr *filesync.RemoteError
	if errors.As(err, &rerr) {
		return rerr.Message
	}
	return strings.TrimPrefix(err.Error(), op+": ")
}

// Refresh reloads the file list. On failure the cached list is kept.
func (w *Workbench) Refresh(ctx context.Context) ([]GeneratedFile, error) {
	c := w.begin(ctx, filesync.OpList, "")
	files, err := w.remote.List(c.ctx)
	w.finish(c, err, "")
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.files = files
	w.mu.Unlock()
	return append([]GeneratedFile(nil), files...), nil
}

func (w *Workbench) Files() []GeneratedFile {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]GeneratedFile(nil), w.files...)
}

// Select loads file id and makes it the current selection. Any session
// open on another file is discarded, including unsaved edits.
func (w *Workbench) Select(ctx context.Context, id string) (*editor.Session, error) {
	c := w.begin(ctx, filesync.OpDetail, id)
	file, records, err := w.remote.FetchDetail(c.ctx, id)
	w.finish(c, err, "")
	if err != nil {
		return nil, err
	}

	s := editor.NewSession(file, records, w.validator, w.remote, w.logger)
	w.mu.Lock()
	prev := w.selected
	w.selected = s
	w.mu.Unlock()
	if prev != nil && prev.Dirty() {
		w.logger.Info("discarding unsaved session", zap.String("file_id", prev.File().ID))
	}
	return s, nil
}

// Selected returns the open session, or nil.
func (w *Workbench) Selected() *editor.Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selected
}

func (w *Workbench) session() (*editor.Session, error) {
	s := w.Selected()
	if s == nil {
		return nil, ErrNoSelection
	}
	return s, nil
}

func (w *Workbench) BeginEdit() error {
	s, err := w.session()
	if err != nil {
		return err
	}
	s.BeginEdit()
	return nil
}

func (w *Workbench) SetField(i int, field, raw string) (editor.Outcome, error) {
	s, err := w.session()
	if err != nil {
		return editor.Rejected, err
	}
	return s.SetField(i, field, raw), nil
}

func (w *Workbench) Cancel() error {
	s, err := w.session()
	if err != nil {
		return err
	}
	s.Cancel()
	return nil
}

// Save persists the selected session and then refreshes the file list.
// A failed save leaves the session in Editing with its edits intact.
func (w *Workbench) Save(ctx context.Context) error {
	s, err := w.session()
	if err != nil {
		return err
	}

	c := w.begin(ctx, filesync.OpUpdate, s.File().ID)
	err = s.Save(c.ctx)
	if errors.Is(err, editor.ErrNotEditing) || errors.Is(err, editor.ErrSaveInProgress) {
		return err
	}
	w.finish(c, err, "File updated successfully")
	if err != nil {
		return err
	}

	if _, err := w.Refresh(ctx); err != nil {
		w.logger.Warn("refresh after save failed", zap.Error(err))
	}
	return nil
}

// Delete removes file id on the server, drops it from the cached list and
// clears the selection if it was selected.
func (w *Workbench) Delete(ctx context.Context, id string) error {
	c := w.begin(ctx, filesync.OpRemove, id)
	err := w.remote.Remove(c.ctx, id)
	w.finish(c, err, "File deleted successfully")
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	kept := make([]GeneratedFile, 0, len(w.files))
	for _, f := range w.files {
		if f.ID != id {
			kept = append(kept, f)
		}
	}
	w.files = kept
	if w.selected != nil && w.selected.File().ID == id {
		w.selected = nil
	}
	return nil
}

func (w *Workbench) lookup(id string) GeneratedFile {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selected != nil && w.selected.File().ID == id {
		return w.selected.File()
	}
	for _, f := range w.files {
		if f.ID == id {
			return f
		}
	}
	return GeneratedFile{ID: id}
}

// Download fetches the stored report of file id.
func (w *Workbench) Download(ctx context.Context, id string) (Artifact, error) {
	file := w.lookup(id)
	c := w.begin(ctx, filesync.OpDownload, id)
	a, err := w.remote.DownloadArtifact(c.ctx, file)
	w.finish(c, err, "")
	return a, err
}

// Regenerate rebuilds the report of the selected file from its current
// records, with the file's metadata stamped onto every student.
func (w *Workbench) Regenerate(ctx context.Context) (Artifact, error) {
	s, err := w.session()
	if err != nil {
		return Artifact{}, err
	}
	file := s.File()
	meta := file.Metadata()
	original := file.OriginalFilename
	if original == "" {
		original = trimExt(file.Filename)
	}

	c := w.begin(ctx, filesync.OpGenerate, file.ID)
	a, err := w.remote.GenerateArtifact(c.ctx, GenerateRequest{
		Students:         s.Records(),
		OriginalFileName: original,
		DateOfImmersion:  meta.DateOfImmersion,
		Batch:            meta.Batch,
		School:           meta.School,
		StampMetadata:    true,
	})
	w.finish(c, err, "Report regenerated")
	return a, err
}

func (w *Workbench) Toppers() (grading.Toppers, error) {
	s, err := w.session()
	if err != nil {
		return nil, err
	}
	return s.Toppers(), nil
}

func (w *Workbench) Filter(dept domain.Department) ([]editor.Entry, error) {
	s, err := w.session()
	if err != nil {
		return nil, err
	}
	return s.Filter(dept), nil
}

func (w *Workbench) Summary() ([]grading.DepartmentSummary, error) {
	s, err := w.session()
	if err != nil {
		return nil, err
	}
	return s.Summary(), nil
}
