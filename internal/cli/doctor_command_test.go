package cli

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func installFakeFastQC(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary harness requires a POSIX shell")
	}
	binDir := t.TempDir()
	script := "#!/bin/sh\nif [ \"$1\" = \"--version\" ]; then echo \"FastQC v0.12.1\"; fi\n"
	if err := os.WriteFile(filepath.Join(binDir, "fastqc"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestDoctor_AllChecksPass(t *testing.T) {
	installFakeFastQC(t)
	cleanDir := filepath.Join(t.TempDir(), "clean")

	res := doctor(context.Background(), "", cleanDir)
	if !res.OK {
		t.Fatalf("expected all checks to pass: %+v", res.Checks)
	}
	for _, c := range res.Checks {
		if c.Name == "fastqc" && c.Message == "" {
			t.Fatalf("fastqc check should report path and version")
		}
	}
}

func TestDoctor_MissingBinaryFails(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	res := doctor(context.Background(), "fastqc", filepath.Join(t.TempDir(), "clean"))
	if res.OK {
		t.Fatalf("expected doctor to fail without fastqc")
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	if err := Run([]string{"no-such-command"}); err == nil {
		t.Fatalf("expected an error for an unknown command")
	}
}

func TestFormatBytesIEC(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{3 * 1024 * 1024, "3.0 MiB"},
	}
	for _, c := range cases {
		if got := formatBytesIEC(c.in); got != c.want {
			t.Fatalf("formatBytesIEC(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}
