package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"sra-harvest/internal/model"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	root := t.TempDir()
	m, err := NewManager(filepath.Join(root, "scratch"), filepath.Join(root, "clean"))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNewManager_RejectsSharedNamespace(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewManager(dir, dir); err == nil {
		t.Fatalf("expected shared scratch/clean dir to be rejected")
	}
}

func TestAllocateRelease_RemovesScratchAndContents(t *testing.T) {
	m := newTestManager(t)
	cand := model.Candidate{Accession: "SRR1000001"}

	scratch, err := m.Allocate(cand)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	payload := m.PayloadPath(scratch, cand)
	if err := os.WriteFile(payload, []byte("reads"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := m.Release(scratch); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Fatalf("expected scratch dir to be gone, stat err=%v", err)
	}
}

func TestRelease_RefusesPathsOutsideScratchRoot(t *testing.T) {
	m := newTestManager(t)
	outside := t.TempDir()

	if err := m.Release(outside); err == nil {
		t.Fatalf("expected release outside scratch root to fail")
	}
	if err := m.Release(m.ScratchRoot); err == nil {
		t.Fatalf("expected release of scratch root itself to fail")
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("outside dir must survive: %v", err)
	}
}

func TestPromote_MovesPayloadAndReport(t *testing.T) {
	m := newTestManager(t)
	cand := model.Candidate{Accession: "SRR1000002"}

	scratch, err := m.Allocate(cand)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	payload := m.PayloadPath(scratch, cand)
	if err := os.WriteFile(payload, []byte("reads"), 0o644); err != nil {
		t.Fatal(err)
	}
	report := filepath.Join(scratch, "summary.txt")
	if err := os.WriteFile(report, []byte("PASS\tBasic Statistics\tSRR1000002.fastq.gz\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	dest, err := m.Promote(scratch, cand, model.Verdict{Passed: true, ReportPath: report})
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if dest != filepath.Join(m.CleanRoot, cand.Accession) {
		t.Fatalf("unexpected promoted path: %s", dest)
	}
	if _, err := os.Stat(filepath.Join(dest, "SRR1000002.fastq.gz")); err != nil {
		t.Fatalf("payload not promoted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "fastqc_summary.txt")); err != nil {
		t.Fatalf("report not retained: %v", err)
	}
	if _, err := os.Stat(payload); !os.IsNotExist(err) {
		t.Fatalf("payload must be moved out of scratch, stat err=%v", err)
	}
}

func TestPromote_ConflictsOnExistingEntry(t *testing.T) {
	m := newTestManager(t)
	cand := model.Candidate{Accession: "SRR1000003"}

	for i := 0; i < 2; i++ {
		scratch, err := m.Allocate(cand)
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		if err := os.WriteFile(m.PayloadPath(scratch, cand), []byte("reads"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err = m.Promote(scratch, cand, model.Verdict{Passed: true})
		if i == 0 && err != nil {
			t.Fatalf("first promote: %v", err)
		}
		if i == 1 {
			if !errors.Is(err, ErrPromotionConflict) {
				t.Fatalf("expected ErrPromotionConflict, got %v", err)
			}
		}
		if err := m.Release(scratch); err != nil {
			t.Fatalf("release: %v", err)
		}
	}
}

func TestPromote_FailsWithoutPayload(t *testing.T) {
	m := newTestManager(t)
	cand := model.Candidate{Accession: "SRR1000004"}

	scratch, err := m.Allocate(cand)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if _, err := m.Promote(scratch, cand, model.Verdict{Passed: true}); err == nil {
		t.Fatalf("expected promote without payload to fail")
	}
}
