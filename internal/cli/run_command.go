package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"sra-harvest/internal/fastqc"
	"sra-harvest/internal/fetch"
	"sra-harvest/internal/harvest"
	"sra-harvest/internal/model"
	"sra-harvest/internal/sra"
	"sra-harvest/internal/workspace"
)

const (
	defaultTarget        = 3
	defaultCleanDir      = "clean_datasets"
	defaultAssessTimeout = 5 * time.Minute
)

type harvestConfig struct {
	Term          string
	Target        int
	Workers       int
	MaxCandidates int
	FetchRetries  int
	RetryDelay    time.Duration
	AssessTimeout time.Duration
	CleanDir      string
	ScratchDir    string
	FastQCPath    string
	Email         string
	APIKey        string
	PageSize      int
}

func runHarvest(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	term := fs.String("term", "", "SRA search term, e.g. \"mouse chip-seq\"")
	target := fs.Int("target", defaultTarget, "number of clean datasets to collect")
	workers := fs.Int("workers", harvest.DefaultWorkers, "concurrent pipeline workers")
	maxCandidates := fs.Int("max-candidates", 0, "cap on catalog candidates to consider (0 = no cap)")
	fetchRetries := fs.Int("fetch-retries", harvest.DefaultFetchRetries, "retries per candidate for transient download failures")
	retryDelay := fs.Duration("retry-delay", harvest.DefaultRetryDelay, "delay between download retries")
	assessTimeout := fs.Duration("assess-timeout", defaultAssessTimeout, "per-dataset FastQC time limit")
	cleanDir := fs.String("clean-dir", defaultCleanDir, "directory for datasets that pass the quality gate")
	scratchDir := fs.String("scratch-dir", "", "scratch directory for in-flight downloads (default: under the system temp dir)")
	fastqcPath := fs.String("fastqc", "", "fastqc binary (default: $FASTQC_PATH, then PATH lookup)")
	email := fs.String("email", "", "contact email sent to NCBI (default: $NCBI_EMAIL)")
	apiKey := fs.String("api-key", "", "NCBI API key (default: $NCBI_API_KEY)")
	pageSize := fs.Int("page-size", sra.DefaultPageSize, "catalog page size per esearch request")
	progress := fs.Bool("progress", true, "print per-transition progress lines")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*term) == "" {
		fs.Usage()
		return errors.New("--term is required")
	}

	cfg := harvestConfig{
		Term:          strings.TrimSpace(*term),
		Target:        *target,
		Workers:       *workers,
		MaxCandidates: *maxCandidates,
		FetchRetries:  *fetchRetries,
		RetryDelay:    *retryDelay,
		AssessTimeout: *assessTimeout,
		CleanDir:      strings.TrimSpace(*cleanDir),
		ScratchDir:    strings.TrimSpace(*scratchDir),
		FastQCPath:    envOr(strings.TrimSpace(*fastqcPath), "FASTQC_PATH"),
		Email:         envOr(strings.TrimSpace(*email), "NCBI_EMAIL"),
		APIKey:        envOr(strings.TrimSpace(*apiKey), "NCBI_API_KEY"),
		PageSize:      *pageSize,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, cleanup, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	if *progress && !*jsonOut {
		opts.Reporter = harvest.NewLogReporter(os.Stdout)
	}

	summary, err := harvest.Run(ctx, opts)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(summary)
	}
	printSummary(summary)
	if summary.Outcome == model.OutcomeFailed {
		return fmt.Errorf("harvest failed: %s", summary.FatalReason)
	}
	return nil
}

// buildPipeline wires catalog search, fetcher, quality gate and workspace
// into run options. The returned cleanup releases the clean-store lock and
// must run after the harvest finishes.
func buildPipeline(ctx context.Context, cfg harvestConfig) (harvest.RunOptions, func(), error) {
	if cfg.Target <= 0 {
		return harvest.RunOptions{}, nil, errors.New("--target must be positive")
	}

	gate := fastqc.NewClient(cfg.FastQCPath)
	gate.Timeout = cfg.AssessTimeout
	if status := gate.CheckDependencies(ctx); !status.Found {
		return harvest.RunOptions{}, nil, fmt.Errorf("fastqc not usable (%s); run `sra-harvest doctor`", status.ProblemMsg)
	}

	client := sra.NewClient(cfg.Email, cfg.APIKey)
	if cfg.PageSize > 0 {
		client.PageSize = cfg.PageSize
	}
	stream, err := client.Search(ctx, cfg.Term, cfg.MaxCandidates)
	if err != nil {
		if errors.Is(err, sra.ErrNoResults) {
			return harvest.RunOptions{}, nil, fmt.Errorf("no SRA runs match %q", cfg.Term)
		}
		return harvest.RunOptions{}, nil, err
	}

	scratch := cfg.ScratchDir
	if scratch == "" {
		scratch = filepath.Join(os.TempDir(), "sra-harvest")
	}
	manager, err := workspace.NewManager(scratch, cfg.CleanDir)
	if err != nil {
		return harvest.RunOptions{}, nil, err
	}
	lock, err := workspace.AcquireStoreLock(manager.CleanRoot)
	if err != nil {
		return harvest.RunOptions{}, nil, err
	}
	cleanup := func() {
		_ = lock.Release()
	}

	opts := harvest.RunOptions{
		Term:         cfg.Term,
		Target:       cfg.Target,
		Workers:      cfg.Workers,
		FetchRetries: cfg.FetchRetries,
		RetryDelay:   cfg.RetryDelay,
		CleanDir:     manager.CleanRoot,
		Source:       stream,
		Fetcher:      fetch.NewHTTPFetcher(cfg.Email),
		Gate:         gate,
		Workspace:    manager,
	}
	return opts, cleanup, nil
}

func printSummary(s model.RunSummary) {
	fmt.Printf("run_id: %s\n", s.RunID)
	fmt.Printf("outcome: %s\n", s.Outcome)
	if s.FatalReason != "" {
		fmt.Printf("fatal_reason: %s\n", s.FatalReason)
	}
	fmt.Printf("clean: %d/%d\n", s.State.Clean, s.State.Target)
	fmt.Printf("attempted: %d\n", s.State.Attempted)
	fmt.Printf("fetch_failed: %d\n", s.State.FetchFailed)
	fmt.Printf("quality_failed: %d\n", s.State.QualityFailed)
	fmt.Printf("failed: %d\n", s.State.Failed)
	fmt.Printf("fetched: %s", formatBytesIEC(s.BytesFetched))
	if s.BytesExpected > 0 {
		fmt.Printf(" (catalog estimate %s)", formatBytesIEC(s.BytesExpected))
	}
	fmt.Println()
	fmt.Printf("clean_dir: %s\n", s.CleanDir)
	if len(s.Promoted) > 0 {
		fmt.Printf("promoted: %s\n", strings.Join(s.Promoted, ", "))
	}
	fmt.Printf("elapsed: %s\n", s.Elapsed.Round(time.Millisecond))
}
