package workbench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"learnopt/internal/domain"
	"learnopt/internal/editor"
	"learnopt/internal/filesync"
	"learnopt/internal/grading"
)

// Placeholder grade columns seeded on ingest, named "1G".."NG".
const (
	productionPlaceholders = 18
	defaultPlaceholders    = 15
)

// Draft is a freshly ingested upload that has not been generated yet. Its
// edits are validated in the performance context and are always allowed.
type Draft struct {
	mu       sync.Mutex
	store    *editor.Store
	filename string

	wb *Workbench
}

// NewDraft starts an empty draft sharing the workbench's remote, notifier
// and journal.
func (w *Workbench) NewDraft() *Draft {
	return &Draft{
		store: editor.NewStore(grading.NewValidator(grading.ContextPerformance), nil),
		wb:    w,
	}
}

func trimExt(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func placeholderCount(dept string) int {
	if strings.EqualFold(strings.TrimSpace(dept), string(domain.Production)) {
		return productionPlaceholders
	}
	return defaultPlaceholders
}

func seedPlaceholders(r *domain.StudentRecord) {
	if r.Scores == nil {
		r.Scores = make(map[string]string)
	}
	for i := 1; i <= placeholderCount(r.Department); i++ {
		key := strconv.Itoa(i) + "G"
		if _, ok := r.Scores[key]; !ok {
			r.Scores[key] = ""
		}
	}
}

// Ingest uploads a trainee spreadsheet and replaces the draft with the
// parsed students. It returns the number of students. An upload that
// yields no students fails with ErrNoStudents and leaves the draft as is.
func (d *Draft) Ingest(ctx context.Context, filename string, content io.Reader) (int, error) {
	w := d.wb
	c := w.begin(ctx, filesync.OpIngest, "")
	students, err := w.remote.IngestUpload(c.ctx, filename, content)
	if err != nil {
		w.finish(c, err, "")
		return 0, err
	}
	if len(students) == 0 {
		w.finish(c, ErrNoStudents, "")
		return 0, ErrNoStudents
	}
	for i := range students {
		seedPlaceholders(&students[i])
	}
	w.finish(c, nil, fmt.Sprintf("Loaded %d students from %s", len(students), filename))

	d.mu.Lock()
	defer d.mu.Unlock()
	d.store.Replace(students)
	d.filename = filename
	return len(students), nil
}

func (d *Draft) Filename() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filename
}

func (d *Draft) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.Len()
}

func (d *Draft) Records() []StudentRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.Records()
}

func (d *Draft) SetField(i int, field, raw string) editor.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.SetField(i, field, raw)
}

func (d *Draft) Filter(dept domain.Department) []editor.Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store.FilterByDepartment(dept)
}

func (d *Draft) Toppers() grading.Toppers {
	return grading.ComputeToppers(d.Records())
}

// metadata reads batch, school and date of immersion from the first
// student's payload.
func (d *Draft) metadata(records []StudentRecord) domain.Metadata {
	if len(records) == 0 {
		return domain.Metadata{}
	}
	raw := records[0].Raw
	return domain.Metadata{
		Batch:           gjson.GetBytes(raw, "batch").String(),
		School:          gjson.GetBytes(raw, "school").String(),
		DateOfImmersion: gjson.GetBytes(raw, "date_of_immersion").String(),
	}
}

// Generate asks the server to build and store a report from the draft.
func (d *Draft) Generate(ctx context.Context) (GenerateResult, error) {
	records := d.Records()
	if len(records) == 0 {
		return GenerateResult{}, ErrEmptyDraft
	}
	meta := d.metadata(records)
	original := trimExt(d.Filename())

	w := d.wb
	c := w.begin(ctx, filesync.OpGenerate, "")
	res, err := w.remote.GenerateReport(c.ctx, GenerateRequest{
		Students:         records,
		OriginalFileName: original,
		DateOfImmersion:  meta.DateOfImmersion,
		Batch:            meta.Batch,
		School:           meta.School,
	})
	if err == nil && res.Message == "" {
		err = errors.New("server response has no message")
	}
	if err != nil {
		w.finish(c, err, "")
		return GenerateResult{}, err
	}
	w.finish(c, nil, res.Message)
	w.logger.Info("draft generated",
		zap.String("filename", res.Filename),
		zap.Int("students_processed", res.StudentsProcessed))
	return res, nil
}
