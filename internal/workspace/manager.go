package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"sra-harvest/internal/model"
)

// ErrPromotionConflict means the clean store already holds an entry for the
// candidate's accession. Re-runs never overwrite promoted datasets.
var ErrPromotionConflict = errors.New("clean store entry already exists")

// Manager owns the two storage namespaces of a run: per-candidate scratch
// directories and the durable clean store. Promotion is the only path from
// one to the other.
type Manager struct {
	ScratchRoot string
	CleanRoot   string
}

func NewManager(scratchRoot, cleanRoot string) (*Manager, error) {
	scratch := strings.TrimSpace(scratchRoot)
	clean := strings.TrimSpace(cleanRoot)
	if scratch == "" || clean == "" {
		return nil, fmt.Errorf("scratch and clean directories are required")
	}
	scratchAbs, err := filepath.Abs(scratch)
	if err != nil {
		return nil, fmt.Errorf("resolve scratch dir %s: %w", scratch, err)
	}
	cleanAbs, err := filepath.Abs(clean)
	if err != nil {
		return nil, fmt.Errorf("resolve clean dir %s: %w", clean, err)
	}
	if scratchAbs == cleanAbs {
		return nil, fmt.Errorf("scratch and clean directories must differ: %s", scratchAbs)
	}
	if err := Mkdir(scratchAbs); err != nil {
		return nil, err
	}
	if err := Mkdir(cleanAbs); err != nil {
		return nil, err
	}
	return &Manager{ScratchRoot: scratchAbs, CleanRoot: cleanAbs}, nil
}

// Allocate creates an isolated scratch directory for one candidate and
// returns its path. The caller must Release it on every exit path.
func (m *Manager) Allocate(cand model.Candidate) (string, error) {
	dir, err := os.MkdirTemp(m.ScratchRoot, cand.Accession+"-")
	if err != nil {
		return "", fmt.Errorf("allocate scratch for %s: %w", cand.Accession, err)
	}
	return dir, nil
}

// Release removes a scratch directory and everything in it. Paths outside
// the scratch root are refused.
func (m *Manager) Release(scratchDir string) error {
	dir := strings.TrimSpace(scratchDir)
	if dir == "" {
		return nil
	}
	rel, err := filepath.Rel(m.ScratchRoot, dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("refusing to release %s: outside scratch root %s", dir, m.ScratchRoot)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("release scratch %s: %w", dir, err)
	}
	return nil
}

// PayloadPath is the deterministic location of a candidate's payload inside
// its scratch directory.
func (m *Manager) PayloadPath(scratchDir string, cand model.Candidate) string {
	return filepath.Join(scratchDir, cand.Accession+".fastq.gz")
}

// Promote moves the validated payload out of scratch into
// <clean>/<accession>/ and brings the quality report along when the verdict
// carries one. The destination directory doubles as the presence check:
// creating it fails with ErrPromotionConflict when the accession was
// already promoted.
func (m *Manager) Promote(scratchDir string, cand model.Candidate, verdict model.Verdict) (string, error) {
	payload := m.PayloadPath(scratchDir, cand)
	if _, err := os.Stat(payload); err != nil {
		return "", fmt.Errorf("promote %s: payload missing: %w", cand.Accession, err)
	}

	dest := filepath.Join(m.CleanRoot, cand.Accession)
	if err := os.Mkdir(dest, 0o755); err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("promote %s: %w", cand.Accession, ErrPromotionConflict)
		}
		return "", fmt.Errorf("promote %s: %w", cand.Accession, err)
	}

	if err := moveFile(payload, filepath.Join(dest, filepath.Base(payload))); err != nil {
		_ = os.RemoveAll(dest)
		return "", fmt.Errorf("promote %s: %w", cand.Accession, err)
	}
	if strings.TrimSpace(verdict.ReportPath) != "" {
		if data, err := os.ReadFile(verdict.ReportPath); err == nil {
			// Report retention is diagnostic only; a failed copy does not
			// undo the promotion.
			_ = WriteBytes(filepath.Join(dest, "fastqc_summary.txt"), data)
		}
	}
	return dest, nil
}

// moveFile renames src to dst, copying when the two live on different
// filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() {
		_ = in.Close()
	}()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return os.Remove(src)
}
