// Command extractd runs LLM extraction over parsed excavation report
// folders: one folder per run, or a whole directory of reports batched
// across the credential pool.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hanlin-zhu/relicdig"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	reportDir := flag.String("report", "", "Path to one parsed report folder")
	batchDir := flag.String("batch", "", "Directory whose subdirectories are report folders")
	siteTpl := flag.String("site-template", "", "Site field workbook (overrides config)")
	periodTpl := flag.String("period-template", "", "Period field workbook (overrides config)")
	potteryTpl := flag.String("pottery-template", "", "Pottery field workbook (overrides config)")
	jadeTpl := flag.String("jade-template", "", "Jade field workbook (overrides config)")
	concurrency := flag.Int("concurrency", 0, "Worker count for batch mode (capped by credential pool)")
	abortTask := flag.String("abort", "", "Abort the task with this ID and exit")
	listTasks := flag.Bool("tasks", false, "List known tasks and exit")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := relicdig.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			slog.Error("opening config", "error", err)
			os.Exit(1)
		}
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			f.Close()
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
		f.Close()
	}

	// Override from environment variables.
	if v := os.Getenv("RELICDIG_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("RELICDIG_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("RELICDIG_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("RELICDIG_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}

	// Fallback: check well-known provider env vars for API keys.
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "gemini":
			cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		case "anthropic":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "coze":
			cfg.LLM.APIKey = os.Getenv("COZE_API_KEY")
		}
	}

	if *siteTpl != "" {
		cfg.Templates.Site = *siteTpl
	}
	if *periodTpl != "" {
		cfg.Templates.Period = *periodTpl
	}
	if *potteryTpl != "" {
		cfg.Templates.Pottery = *potteryTpl
	}
	if *jadeTpl != "" {
		cfg.Templates.Jade = *jadeTpl
	}
	if *concurrency > 0 {
		cfg.Concurrency = *concurrency
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *abortTask != "":
		if err := abort(ctx, cfg, *abortTask); err != nil {
			slog.Error("aborting task", "task_id", *abortTask, "error", err)
			os.Exit(1)
		}
		slog.Info("task flagged for abort", "task_id", *abortTask)

	case *listTasks:
		if err := printTasks(ctx, cfg); err != nil {
			slog.Error("listing tasks", "error", err)
			os.Exit(1)
		}

	case *reportDir != "":
		if err := runOne(ctx, cfg, *reportDir); err != nil {
			os.Exit(1)
		}

	case *batchDir != "":
		if err := runBatch(ctx, cfg, *batchDir); err != nil {
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "extractd: one of -report, -batch, -abort or -tasks is required")
		flag.Usage()
		os.Exit(2)
	}
}

func runOne(ctx context.Context, cfg relicdig.Config, folder string) error {
	wf, err := relicdig.NewWorkflow(cfg)
	if err != nil {
		slog.Error("creating workflow", "error", err)
		return err
	}
	defer wf.Close()

	summary, err := wf.Run(ctx, relicdig.Job{ReportFolder: folder})
	if err != nil {
		slog.Error("extraction failed", "report", folder, "error", err)
		return err
	}
	slog.Info("extraction completed",
		"task_id", summary.TaskID,
		"site_id", summary.SiteID,
		"pottery", summary.Stats.TotalPottery,
		"jade", summary.Stats.TotalJade,
		"periods", summary.Stats.TotalPeriods,
		"images", summary.Stats.TotalImages)
	return nil
}

func runBatch(ctx context.Context, cfg relicdig.Config, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Error("reading batch directory", "error", err)
		return err
	}
	var jobs []relicdig.Job
	for _, e := range entries {
		if e.IsDir() {
			jobs = append(jobs, relicdig.Job{ReportFolder: filepath.Join(dir, e.Name())})
		}
	}
	if len(jobs) == 0 {
		return errors.New("no report folders found")
	}

	sched, err := relicdig.NewScheduler(cfg)
	if err != nil {
		slog.Error("creating scheduler", "error", err)
		return err
	}
	results, err := sched.Run(ctx, jobs)
	if err != nil {
		slog.Error("batch failed", "error", err)
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			slog.Error("report failed", "report", r.ReportFolder, "task_id", r.TaskID, "error", r.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d reports failed", failed, len(results))
	}
	return nil
}

func abort(ctx context.Context, cfg relicdig.Config, taskID string) error {
	sched, err := relicdig.NewScheduler(cfg)
	if err != nil {
		// Abort only needs the database; fall back to a direct workflow
		// when no credential pool is configured.
		wf, werr := relicdig.NewWorkflow(cfg)
		if werr != nil {
			return err
		}
		defer wf.Close()
		return wf.Abort(ctx, taskID)
	}
	return sched.Abort(ctx, taskID)
}

func printTasks(ctx context.Context, cfg relicdig.Config) error {
	wf, err := relicdig.NewWorkflow(cfg)
	if err != nil {
		return err
	}
	defer wf.Close()

	tasks, err := wf.Store().ListTasks(ctx)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		fmt.Printf("%s  %-9s  %s  (pottery=%d jade=%d periods=%d images=%d)\n",
			t.ID, t.Status, t.ReportName,
			t.TotalPottery, t.TotalJade, t.TotalPeriods, t.TotalImages)
	}
	return nil
}
