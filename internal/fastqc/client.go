package fastqc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"sra-harvest/internal/model"
)

const DefaultTimeout = 5 * time.Minute

// EnvError means the assessment tool itself is broken (missing binary,
// not executable). It is fatal for the whole run, unlike a bad verdict
// which only rejects one candidate.
type EnvError struct {
	Reason string
	Err    error
}

func (e *EnvError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fastqc environment: %s: %v", e.Reason, e.Err)
	}
	return "fastqc environment: " + e.Reason
}

func (e *EnvError) Unwrap() error { return e.Err }

func IsEnvError(err error) bool {
	var ee *EnvError
	return errors.As(err, &ee)
}

// Client runs the fastqc binary against a downloaded payload and parses
// its summary into a verdict.
type Client struct {
	BinaryPath string
	Timeout    time.Duration
}

func NewClient(binaryPath string) *Client {
	if strings.TrimSpace(binaryPath) == "" {
		binaryPath = "fastqc"
	}
	return &Client{BinaryPath: binaryPath, Timeout: DefaultTimeout}
}

// DependencyStatus describes whether the assessment binary is usable.
type DependencyStatus struct {
	Binary     string `json:"binary"`
	Found      bool   `json:"found"`
	Path       string `json:"path,omitempty"`
	Version    string `json:"version,omitempty"`
	ProblemMsg string `json:"problem,omitempty"`
}

// CheckDependencies probes for the fastqc binary without running an
// assessment. Used by the doctor command.
func (c *Client) CheckDependencies(ctx context.Context) DependencyStatus {
	status := DependencyStatus{Binary: c.BinaryPath}
	path, err := exec.LookPath(c.BinaryPath)
	if err != nil {
		status.ProblemMsg = err.Error()
		return status
	}
	status.Found = true
	status.Path = path

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		status.ProblemMsg = fmt.Sprintf("--version failed: %v", err)
		return status
	}
	status.Version = strings.TrimSpace(string(out))
	return status
}

// Assess runs fastqc on payloadPath and returns the verdict. A timeout
// produces a failed verdict, not an error; a broken tool environment
// produces an EnvError.
func (c *Client) Assess(ctx context.Context, payloadPath string) (model.Verdict, error) {
	if _, err := os.Stat(payloadPath); err != nil {
		return model.Verdict{}, fmt.Errorf("stat payload: %w", err)
	}
	binary, err := exec.LookPath(c.BinaryPath)
	if err != nil {
		return model.Verdict{}, &EnvError{Reason: "binary not found", Err: err}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outDir := filepath.Dir(payloadPath)
	cmd := exec.CommandContext(runCtx, binary, payloadPath, "-o", outDir, "--extract")
	output, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return model.Verdict{}, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return model.Verdict{
			Passed: false,
			Reason: fmt.Sprintf("assessment timed out after %s", timeout),
		}, nil
	}
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return model.Verdict{}, &EnvError{Reason: "binary not executable", Err: err}
		}
		return model.Verdict{
			Passed: false,
			Reason: fmt.Sprintf("fastqc exited with error: %v: %s", err, firstLine(output)),
		}, nil
	}

	summaryPath := summaryFile(payloadPath)
	verdict, err := parseSummary(summaryPath)
	if err != nil {
		return model.Verdict{
			Passed: false,
			Reason: fmt.Sprintf("fastqc produced no readable summary: %v", err),
		}, nil
	}
	return verdict, nil
}

// summaryFile maps <dir>/<name>.fastq.gz to <dir>/<name>_fastqc/summary.txt,
// the layout fastqc --extract produces.
func summaryFile(payloadPath string) string {
	base := filepath.Base(payloadPath)
	base = strings.TrimSuffix(base, ".gz")
	base = strings.TrimSuffix(base, ".fastq")
	return filepath.Join(filepath.Dir(payloadPath), base+"_fastqc", "summary.txt")
}

// parseSummary reads the tab-separated summary (STATUS\tModule\tFile per
// line). Any FAIL row fails the verdict; WARN rows pass.
func parseSummary(path string) (model.Verdict, error) {
	file, err := os.Open(path)
	if err != nil {
		return model.Verdict{}, err
	}
	defer func() {
		_ = file.Close()
	}()

	verdict := model.Verdict{
		Passed:     true,
		Metrics:    map[string]string{},
		ReportPath: path,
	}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) < 2 {
			continue
		}
		status, module := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		verdict.Metrics[module] = status
		if status == "FAIL" && verdict.Passed {
			verdict.Passed = false
			verdict.Reason = "failed module: " + module
		}
	}
	if err := scanner.Err(); err != nil {
		return model.Verdict{}, err
	}
	if len(verdict.Metrics) == 0 {
		return model.Verdict{}, fmt.Errorf("summary %s has no module rows", path)
	}
	return verdict, nil
}

func firstLine(output []byte) string {
	text := strings.TrimSpace(string(output))
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return text
}
