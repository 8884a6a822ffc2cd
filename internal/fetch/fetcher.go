package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sra-harvest/internal/model"
)

const DefaultTraceBaseURL = "https://trace.ncbi.nlm.nih.gov/Traces/sra-reads-be/fastq?acc="

// Error is a typed fetch failure. Transient failures may be retried by the
// worker; permanent ones (bad accession, gone upstream) may not.
type Error struct {
	Accession string
	Reason    string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.Accession, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.Accession, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a fetch failure worth retrying.
func IsTransient(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Transient
}

// Result reports a completed fetch.
type Result struct {
	Path         string
	BytesWritten int64
}

// HTTPFetcher downloads one payload per call from the SRA trace endpoint.
// It is a single-attempt primitive; the retry budget lives in the worker.
type HTTPFetcher struct {
	BaseURL   string
	Client    *http.Client
	UserAgent string
}

func NewHTTPFetcher(contactEmail string) *HTTPFetcher {
	ua := "sra-harvest"
	if strings.TrimSpace(contactEmail) != "" {
		ua = "sra-harvest (contact: " + strings.TrimSpace(contactEmail) + ")"
	}
	return &HTTPFetcher{
		BaseURL:   DefaultTraceBaseURL,
		Client:    &http.Client{Timeout: 30 * time.Minute},
		UserAgent: ua,
	}
}

// Fetch streams the payload for cand into destDir as <accession>.fastq.gz
// and returns the byte count. Partial files are removed on failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, cand model.Candidate, destDir string) (Result, error) {
	acc := strings.TrimSpace(cand.Accession)
	if acc == "" {
		return Result{}, &Error{Reason: "missing accession"}
	}
	if strings.TrimSpace(destDir) == "" {
		return Result{}, &Error{Accession: acc, Reason: "missing destination"}
	}

	base := strings.TrimSpace(f.BaseURL)
	if base == "" {
		base = DefaultTraceBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+acc, nil)
	if err != nil {
		return Result{}, &Error{Accession: acc, Reason: "build request", Err: err}
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{}, &Error{Accession: acc, Reason: "transport error", Transient: true, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return Result{}, statusError(acc, resp.StatusCode)
	}

	path := filepath.Join(destDir, acc+".fastq.gz")
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return Result{}, &Error{Accession: acc, Reason: "create payload file", Err: err}
	}

	written, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		err := copyErr
		if err == nil {
			err = closeErr
		}
		return Result{}, &Error{Accession: acc, Reason: "write payload", Transient: true, Err: err}
	}
	if resp.ContentLength > 0 && written < resp.ContentLength {
		_ = os.Remove(path)
		return Result{}, &Error{
			Accession: acc,
			Reason:    fmt.Sprintf("short payload: %d of %d bytes", written, resp.ContentLength),
			Transient: true,
		}
	}

	return Result{Path: path, BytesWritten: written}, nil
}

func statusError(acc string, status int) *Error {
	switch {
	case status == http.StatusNotFound || status == http.StatusForbidden || status == http.StatusGone:
		return &Error{Accession: acc, Reason: "not found", Transient: false}
	case status == http.StatusTooManyRequests || status >= 500:
		return &Error{Accession: acc, Reason: fmt.Sprintf("upstream status %d", status), Transient: true}
	default:
		return &Error{Accession: acc, Reason: fmt.Sprintf("unexpected status %d", status), Transient: false}
	}
}
