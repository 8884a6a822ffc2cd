package model

import "time"

// Candidate is one downloadable SRA run discovered by the catalog search.
// Immutable once produced by the source.
type Candidate struct {
	Accession       string `json:"accession"`
	UID             string `json:"uid,omitempty"`
	Order           int    `json:"order"`
	SizeMB          int64  `json:"size_mb,omitempty"`
	DownloadURL     string `json:"download_url,omitempty"`
	Organism        string `json:"organism,omitempty"`
	LibraryStrategy string `json:"library_strategy,omitempty"`
	Spots           int64  `json:"spots,omitempty"`
	AvgLength       int64  `json:"avg_length,omitempty"`
}

// Verdict is the quality-gate outcome for one downloaded payload.
type Verdict struct {
	Passed     bool              `json:"passed"`
	Reason     string            `json:"reason,omitempty"`
	Metrics    map[string]string `json:"metrics,omitempty"`
	ReportPath string            `json:"report_path,omitempty"`
}

// WorkItem tracks one candidate through the pipeline. It is owned by the
// coordinator; workers report transitions as messages, never mutate it.
type WorkItem struct {
	Candidate    Candidate `json:"candidate"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	ScratchDir   string    `json:"scratch_dir,omitempty"`
	Attempts     int       `json:"attempts,omitempty"`
	BytesWritten int64     `json:"bytes_written,omitempty"`
	Verdict      *Verdict  `json:"verdict,omitempty"`
	PromotedPath string    `json:"promoted_path,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// RunState is the live counter set for one run. Only the coordinator's
// control loop reads or writes it.
type RunState struct {
	Target        int `json:"target"`
	Clean         int `json:"clean"`
	Attempted     int `json:"attempted"`
	FetchFailed   int `json:"fetch_failed"`
	QualityFailed int `json:"quality_failed"`
	Failed        int `json:"failed"`
	Active        int `json:"active"`
}

const (
	OutcomeCompleted = "completed"
	OutcomePartial   = "partial"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// RunSummary is the final report of one harvest run.
type RunSummary struct {
	RunID         string        `json:"run_id"`
	Term          string        `json:"term"`
	Outcome       string        `json:"outcome"`
	FatalReason   string        `json:"fatal_reason,omitempty"`
	State         RunState      `json:"state"`
	Promoted      []string      `json:"promoted"`
	CleanDir      string        `json:"clean_dir"`
	Elapsed       time.Duration `json:"elapsed_ns"`
	BytesFetched  int64         `json:"bytes_fetched"`
	BytesExpected int64         `json:"bytes_expected,omitempty"`
}
