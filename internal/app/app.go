package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"learnopt/internal/config"
	"learnopt/internal/filesync"
	"learnopt/internal/grading"
	"learnopt/internal/httpx"
	llm "learnopt/internal/integrations/llm"
	slackbot "learnopt/internal/integrations/slack"
	"learnopt/internal/logger"
	"learnopt/internal/storage/sqlite"
	"learnopt/internal/watch"
	"learnopt/internal/workbench"
)

const usage = `usage: learnopt [command]

commands:
  serve              run the file watcher until interrupted (default)
  list               list generated files
  show <file-id>     print department summary and top performers of a file
  journal [file-id]  print recent remote operations
`

var errUsage = errors.New("invalid arguments")

type App struct {
	cfg     config.Config
	logger  *zap.Logger
	db      *sql.DB
	client  *filesync.Client
	wb      *workbench.Workbench
	watcher *watch.Watcher
}

// New wires every component from cfg.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	scale, ok := grading.ParseContext(cfg.OverallScale)
	if !ok {
		return nil, fmt.Errorf("unknown overall_scale %q", cfg.OverallScale)
	}

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	logger.Info("database initialized", zap.String("path", cfg.DBPath))

	client := filesync.NewClient(cfg.APIBaseURL, httpx.ExternalHTTPClient(), logger.Named("filesync"))

	notifiers := workbench.Notifiers{workbench.LogNotifier{Logger: logger.Named("notice")}}
	var publisher watch.Publisher
	if cfg.SlackConfigured() {
		api := slack.New(cfg.SlackBotToken)
		sn := slackbot.NewNotifier(api, cfg.SlackChannelID, workbench.NoticeError, logger.Named("slack"))
		notifiers = append(notifiers, sn)
		publisher = sn
		logger.Info("slack notifications enabled", zap.String("channel", cfg.SlackChannelID))
	}

	var summarizer watch.Summarizer
	if cfg.LLMDigestEnabled {
		summarizer = llm.NewSummarizer(cfg.AnthropicAPIKey, cfg.LLMModel, logger.Named("llm"))
		logger.Info("llm digests enabled", zap.String("model", cfg.LLMModel))
	}

	wb := workbench.New(workbench.Deps{
		Remote:    client,
		Validator: grading.NewValidator(scale),
		Notifier:  notifiers,
		Journal:   sqlite.Journal{DB: db},
		Logger:    logger.Named("workbench"),
	})

	return &App{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		client:  client,
		wb:      wb,
		watcher: watch.New(client, db, publisher, summarizer, cfg.Location, logger.Named("watch")),
	}, nil
}

func (a *App) Close() error {
	return a.db.Close()
}

// Run executes one command. out receives command output.
func (a *App) Run(ctx context.Context, args []string, out io.Writer) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		return a.serve(ctx)
	case "list":
		return a.list(ctx, out)
	case "show":
		if len(args) != 1 {
			return errUsage
		}
		return a.show(ctx, args[0], out)
	case "journal":
		fileID := ""
		if len(args) > 0 {
			fileID = args[0]
		}
		return a.journal(ctx, fileID, out)
	default:
		return errUsage
	}
}

func (a *App) serve(ctx context.Context) error {
	if _, err := a.wb.Refresh(ctx); err != nil {
		a.logger.Warn("initial file list failed", zap.Error(err))
	} else {
		a.logger.Info("file list loaded", zap.Int("files", len(a.wb.Files())))
	}
	if !a.cfg.WatchEnabled() {
		a.logger.Info("nothing to serve: watch_schedule not set")
		return nil
	}
	if err := a.watcher.Start(ctx, a.cfg.WatchSchedule); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (a *App) list(ctx context.Context, out io.Writer) error {
	files, err := a.wb.Refresh(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILENAME\tSCHOOL\tBATCH\tSTUDENTS\tAVERAGE")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", f.ID, f.Filename, f.School, f.Batch, f.StudentCount, f.AveragePerformance)
	}
	return tw.Flush()
}

func (a *App) show(ctx context.Context, id string, out io.Writer) error {
	s, err := a.wb.Select(ctx, id)
	if err != nil {
		return err
	}
	file := s.File()
	fmt.Fprintf(out, "%s (%d students)\n", file.Filename, len(s.Records()))

	toppers := s.Toppers()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPARTMENT\tSTUDENTS\tGRADED\tAVERAGE\tTOP")
	for _, sum := range s.Summary() {
		top := "-"
		if r, ok := toppers.For(sum.Department); ok {
			top = fmt.Sprintf("%s (%s)", r.FullName(), r.Overall)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%s\n", sum.Department, sum.Students, sum.Graded, sum.Average, top)
	}
	return tw.Flush()
}

func (a *App) journal(ctx context.Context, fileID string, out io.Writer) error {
	entries, err := sqlite.ListJournal(ctx, a.db, fileID, 20)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tOP\tFILE\tOK\tMESSAGE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", e.CreatedAt.In(a.cfg.Location).Format("2006-01-02 15:04:05"), e.Op, e.FileID, e.OK, e.Message)
	}
	return tw.Flush()
}

func Main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync()

	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	zl.Info("config loaded",
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.String("overall_scale", cfg.OverallScale),
		zap.String("timezone", cfg.Timezone),
		zap.String("watch_schedule", cfg.WatchSchedule),
		zap.Bool("slack", cfg.SlackConfigured()),
		zap.Bool("llm_digest", cfg.LLMDigestEnabled),
		zap.Duration("external_http_timeout", appliedHTTPTimeout))

	a, err := New(cfg, zl)
	if err != nil {
		zl.Error("startup failed", zap.Error(err))
		return 1
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			return 2
		}
		zl.Error("command failed", zap.Error(err))
		return 1
	}
	return 0
}
