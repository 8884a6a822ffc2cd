package fastqc

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// installFakeFastQC drops a shell script named fastqc on PATH that writes
// the given summary body into the extract directory fastqc would create.
func installFakeFastQC(t *testing.T, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary harness requires a POSIX shell")
	}
	binDir := t.TempDir()
	path := filepath.Join(binDir, "fastqc")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func writePayload(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	payload := filepath.Join(dir, "SRR1.fastq.gz")
	if err := os.WriteFile(payload, []byte("reads"), 0o644); err != nil {
		t.Fatal(err)
	}
	return payload
}

// summaryScript emulates `fastqc <file> -o <dir> --extract` far enough to
// produce <dir>/<base>_fastqc/summary.txt with the given rows.
func summaryScript(rows string) string {
	return `
payload="$1"
outdir="$3"
base=$(basename "$payload" .fastq.gz)
mkdir -p "$outdir/${base}_fastqc"
printf '` + rows + `' > "$outdir/${base}_fastqc/summary.txt"
`
}

func TestAssess_PassesWithoutFailRows(t *testing.T) {
	installFakeFastQC(t, summaryScript(
		"PASS\tBasic Statistics\tSRR1.fastq.gz\nWARN\tPer base GC content\tSRR1.fastq.gz\n"))
	payload := writePayload(t)

	verdict, err := NewClient("").Assess(context.Background(), payload)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if !verdict.Passed {
		t.Fatalf("expected pass, got reason %q", verdict.Reason)
	}
	if verdict.Metrics["Per base GC content"] != "WARN" {
		t.Fatalf("metrics not captured: %+v", verdict.Metrics)
	}
	if verdict.ReportPath == "" {
		t.Fatalf("expected report path to be recorded")
	}
}

func TestAssess_FailRowRejects(t *testing.T) {
	installFakeFastQC(t, summaryScript(
		"PASS\tBasic Statistics\tSRR1.fastq.gz\nFAIL\tPer base sequence quality\tSRR1.fastq.gz\n"))
	payload := writePayload(t)

	verdict, err := NewClient("").Assess(context.Background(), payload)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if verdict.Passed {
		t.Fatalf("expected rejection")
	}
	if verdict.Reason != "failed module: Per base sequence quality" {
		t.Fatalf("unexpected reason %q", verdict.Reason)
	}
}

func TestAssess_TimeoutIsFailedVerdictNotError(t *testing.T) {
	installFakeFastQC(t, "sleep 5\n")
	payload := writePayload(t)

	c := NewClient("")
	c.Timeout = 100 * time.Millisecond
	verdict, err := c.Assess(context.Background(), payload)
	if err != nil {
		t.Fatalf("timeout must not surface as an error: %v", err)
	}
	if verdict.Passed {
		t.Fatalf("timed-out assessment must fail the candidate")
	}
}

func TestAssess_NonzeroExitIsFailedVerdict(t *testing.T) {
	installFakeFastQC(t, "echo 'Failed to process file' >&2\nexit 1\n")
	payload := writePayload(t)

	verdict, err := NewClient("").Assess(context.Background(), payload)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if verdict.Passed {
		t.Fatalf("expected rejection for tool failure")
	}
}

func TestAssess_MissingBinaryIsEnvError(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	payload := writePayload(t)

	_, err := NewClient("fastqc").Assess(context.Background(), payload)
	if !IsEnvError(err) {
		t.Fatalf("expected environment error, got %v", err)
	}
}

func TestCheckDependencies_ReportsVersion(t *testing.T) {
	installFakeFastQC(t, `if [ "$1" = "--version" ]; then echo "FastQC v0.12.1"; exit 0; fi`+"\n")

	status := NewClient("").CheckDependencies(context.Background())
	if !status.Found {
		t.Fatalf("expected binary to be found: %+v", status)
	}
	if status.Version != "FastQC v0.12.1" {
		t.Fatalf("unexpected version %q", status.Version)
	}
}
