package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sra-harvest/internal/fastqc"
)

type doctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type doctorResult struct {
	OK     bool          `json:"ok"`
	Checks []doctorCheck `json:"checks"`
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	cleanDir := fs.String("clean-dir", defaultCleanDir, "clean store directory to check")
	fastqcPath := fs.String("fastqc", "", "fastqc binary (default: $FASTQC_PATH, then PATH lookup)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	res := doctor(context.Background(), envOr(strings.TrimSpace(*fastqcPath), "FASTQC_PATH"), strings.TrimSpace(*cleanDir))
	if *jsonOut {
		return printJSON(res)
	}

	for _, c := range res.Checks {
		status := "ok"
		if !c.OK {
			status = "fail"
		}
		fmt.Printf("%s: %s (%s)\n", c.Name, status, c.Message)
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	fmt.Println("doctor: all checks passed")
	return nil
}

func doctor(ctx context.Context, fastqcPath, cleanDir string) doctorResult {
	res := doctorResult{OK: true}
	add := func(name string, ok bool, message string) {
		res.Checks = append(res.Checks, doctorCheck{Name: name, OK: ok, Message: message})
		if !ok {
			res.OK = false
		}
	}

	status := fastqc.NewClient(fastqcPath).CheckDependencies(ctx)
	switch {
	case !status.Found:
		add("fastqc", false, status.ProblemMsg)
	case status.Version == "":
		add("fastqc", false, fmt.Sprintf("%s: %s", status.Path, status.ProblemMsg))
	default:
		add("fastqc", true, fmt.Sprintf("%s (%s)", status.Path, status.Version))
	}

	if msg, err := checkWritableDir(cleanDir); err != nil {
		add("clean_dir", false, err.Error())
	} else {
		add("clean_dir", true, msg)
	}
	if msg, err := checkWritableDir(filepath.Join(os.TempDir(), "sra-harvest")); err != nil {
		add("scratch_dir", false, err.Error())
	} else {
		add("scratch_dir", true, msg)
	}

	if os.Getenv("NCBI_API_KEY") != "" {
		add("ncbi_api_key", true, "set (higher catalog rate limit)")
	} else {
		add("ncbi_api_key", true, "not set (catalog requests are rate limited harder)")
	}
	return res
}

func checkWritableDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".doctor-probe-*")
	if err != nil {
		return "", fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return abs + " is writable", nil
}
