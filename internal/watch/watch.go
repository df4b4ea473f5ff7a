// Package watch polls the persistence service on a cron schedule and posts
// a digest for every generated file it has not seen before.
package watch

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"learnopt/internal/domain"
	"learnopt/internal/grading"
	llm "learnopt/internal/integrations/llm"
	"learnopt/internal/storage/sqlite"
)

type Remote interface {
	List(ctx context.Context) ([]domain.GeneratedFile, error)
	FetchDetail(ctx context.Context, id string) (domain.GeneratedFile, []domain.StudentRecord, error)
}

// Publisher delivers a formatted digest.
type Publisher interface {
	PostDigest(ctx context.Context, text string) error
}

type Summarizer interface {
	Summarize(ctx context.Context, in llm.DigestInput) (string, llm.Usage, error)
}

// LogPublisher writes digests to the log when no chat channel is set up.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) PostDigest(_ context.Context, text string) error {
	p.Logger.Info("file digest", zap.String("text", text))
	return nil
}

type Watcher struct {
	remote     Remote
	db         *sql.DB
	publisher  Publisher
	summarizer Summarizer
	loc        *time.Location
	logger     *zap.Logger
}

// New builds a watcher. summarizer may be nil.
func New(remote Remote, db *sql.DB, publisher Publisher, summarizer Summarizer, loc *time.Location, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	if publisher == nil {
		publisher = LogPublisher{Logger: logger}
	}
	return &Watcher{
		remote:     remote,
		db:         db,
		publisher:  publisher,
		summarizer: summarizer,
		loc:        loc,
		logger:     logger,
	}
}

type Result struct {
	Listed int
	New    int
	Posted int
	// Baselined counts files recorded without a digest on the first run.
	Baselined int
	Errors    []string
}

func FormatRunSummary(r Result) string {
	if r.Listed == 0 && len(r.Errors) > 0 {
		return fmt.Sprintf("failed: %s", strings.Join(r.Errors, "; "))
	}
	if r.Baselined > 0 {
		return fmt.Sprintf("%d files, %d recorded as already seen", r.Listed, r.Baselined)
	}
	if r.New == 0 {
		return fmt.Sprintf("%d files, nothing new", r.Listed)
	}
	s := fmt.Sprintf("%d files, %d new, %d digests posted", r.Listed, r.New, r.Posted)
	if len(r.Errors) > 0 {
		s += fmt.Sprintf(" (%d errors: %s)", len(r.Errors), strings.Join(r.Errors, "; "))
	}
	return s
}

// FormatDigest renders the per-department counts and toppers of one file.
func FormatDigest(file domain.GeneratedFile, toppers grading.Toppers, summary []grading.DepartmentSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*New report: %s*", file.Filename)
	var meta []string
	for _, v := range []string{file.School, file.Batch, file.DateOfImmersion} {
		if v != "" {
			meta = append(meta, v)
		}
	}
	if len(meta) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(meta, ", "))
	}
	b.WriteString("\n")
	for _, s := range summary {
		fmt.Fprintf(&b, "• %s: %d students", s.Department, s.Students)
		if s.Graded > 0 {
			fmt.Fprintf(&b, ", avg %.2f", s.Average)
		}
		if top, ok := toppers.For(s.Department); ok {
			fmt.Fprintf(&b, ", top %s (%s)", top.FullName(), top.Overall)
		} else {
			b.WriteString(", no top performer")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// RunOnce lists files and posts a digest for each one not yet in the
// seen-file ledger. A file is only marked seen once its digest is posted.
// While the ledger is empty, every listed file is marked seen without a
// digest, so existing reports are not announced.
func (w *Watcher) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	files, err := w.remote.List(ctx)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, err
	}
	res.Listed = len(files)

	known, err := sqlite.CountSeenFiles(ctx, w.db)
	if err != nil {
		return res, fmt.Errorf("counting seen files: %w", err)
	}
	if known == 0 {
		for _, f := range files {
			if _, err := sqlite.MarkFileSeen(ctx, w.db, f.ID, f.Filename); err != nil {
				return res, fmt.Errorf("marking file %s seen: %w", f.ID, err)
			}
			res.Baselined++
		}
		w.logger.Info("watch ledger seeded", zap.Int("files", res.Baselined))
		return res, nil
	}

	for _, f := range files {
		seen, err := sqlite.FileSeen(ctx, w.db, f.ID)
		if err != nil {
			return res, fmt.Errorf("checking seen file %s: %w", f.ID, err)
		}
		if seen {
			continue
		}
		res.New++
		if err := w.digest(ctx, f); err != nil {
			w.logger.Warn("watch digest failed", zap.String("file_id", f.ID), zap.Error(err))
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", f.ID, err))
			continue
		}
		if _, err := sqlite.MarkFileSeen(ctx, w.db, f.ID, f.Filename); err != nil {
			return res, fmt.Errorf("marking file %s seen: %w", f.ID, err)
		}
		res.Posted++
	}
	return res, nil
}

func (w *Watcher) digest(ctx context.Context, f domain.GeneratedFile) error {
	file, records, err := w.remote.FetchDetail(ctx, f.ID)
	if err != nil {
		return err
	}
	if file.Filename == "" {
		file.Filename = f.Filename
	}
	toppers := grading.ComputeToppers(records)
	summary := grading.Summarize(records)
	text := FormatDigest(file, toppers, summary)

	if w.summarizer != nil {
		prose, _, err := w.summarizer.Summarize(ctx, llm.DigestInput{File: file, Toppers: toppers, Summary: summary})
		if err != nil {
			w.logger.Warn("llm digest skipped", zap.String("file_id", f.ID), zap.Error(err))
		} else if prose != "" {
			text += "\n\n" + prose
		}
	}
	return w.publisher.PostDigest(ctx, text)
}

// Start runs RunOnce on the 5-field cron schedule until ctx is done. An
// empty schedule disables the watcher.
// Examples: "*/15 * * * *" (every 15 minutes), "0 8 * * 1-5" (weekdays 8am).
func (w *Watcher) Start(ctx context.Context, schedule string) error {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		w.logger.Info("file watcher disabled (watch_schedule not set)")
		return nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid watch_schedule '%s': %w", schedule, err)
	}
	w.logger.Info("file watcher scheduled", zap.String("cron", schedule))

	go func() {
		for {
			now := time.Now().In(w.loc)
			next := sched.Next(now)
			w.logger.Debug("next watch run", zap.Time("at", next))

			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				w.logger.Info("file watcher stopped")
				return
			case <-timer.C:
			}

			res, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.Warn("watch run error", zap.Error(err))
			}
			w.logger.Info("watch run complete", zap.String("summary", FormatRunSummary(res)))
		}
	}()
	return nil
}
