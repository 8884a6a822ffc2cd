package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sra-harvest/internal/fetch"
	"sra-harvest/internal/model"
)

const (
	DefaultWorkers      = 3
	DefaultFetchRetries = 2
	DefaultRetryDelay   = 2 * time.Second
)

// CandidateSource streams candidates in catalog order. Next returns io.EOF
// when the source is exhausted.
type CandidateSource interface {
	Next(ctx context.Context) (model.Candidate, error)
}

// Fetcher downloads one payload into destDir. A single call is a single
// attempt; retries are the worker's concern.
type Fetcher interface {
	Fetch(ctx context.Context, cand model.Candidate, destDir string) (fetch.Result, error)
}

// QualityGate assesses a downloaded payload. A failing payload is a
// verdict, not an error; errors mean the gate itself could not run.
type QualityGate interface {
	Assess(ctx context.Context, payloadPath string) (model.Verdict, error)
}

// Workspace hands out scratch space and owns promotion into the clean store.
type Workspace interface {
	Allocate(cand model.Candidate) (string, error)
	Release(scratchDir string) error
	Promote(scratchDir string, cand model.Candidate, verdict model.Verdict) (string, error)
}

type RunOptions struct {
	Term         string
	Target       int
	Workers      int
	FetchRetries int
	RetryDelay   time.Duration
	CleanDir     string
	Source       CandidateSource
	Fetcher      Fetcher
	Gate         QualityGate
	Workspace    Workspace
	Reporter     Reporter
}

// Run drives one harvest: it pulls candidates from the source, fans them
// out to a bounded worker pool and stops once Target candidates have been
// promoted clean. The control loop here is the only goroutine that touches
// RunState and the per-candidate work items; workers communicate through
// the transition channel.
//
// Cancelling ctx stops dispatch but lets in-flight candidates finish, so
// scratch space is always released and the clean store never holds a
// half-promoted entry.
func Run(ctx context.Context, opts RunOptions) (model.RunSummary, error) {
	if opts.Source == nil || opts.Fetcher == nil || opts.Gate == nil || opts.Workspace == nil {
		return model.RunSummary{}, fmt.Errorf("source, fetcher, gate and workspace are required")
	}
	if opts.Target <= 0 {
		return model.RunSummary{}, fmt.Errorf("target must be positive")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	retries := opts.FetchRetries
	if retries < 0 {
		retries = DefaultFetchRetries
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = NullReporter{}
	}

	runID := uuid.NewString()
	started := time.Now()

	workCh := make(chan model.Candidate)
	msgCh := make(chan transition, workers*8)
	var wg sync.WaitGroup

	// Workers run detached from the external cancel signal: once a
	// candidate is dispatched it is finished and reported, whatever
	// happens to ctx.
	workerCtx := context.WithoutCancel(ctx)
	w := &worker{
		fetcher:      opts.Fetcher,
		gate:         opts.Gate,
		workspace:    opts.Workspace,
		fetchRetries: retries,
		retryDelay:   opts.RetryDelay,
		msgCh:        msgCh,
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cand := range workCh {
				w.process(workerCtx, cand)
			}
		}()
	}

	state := model.RunState{Target: opts.Target}
	items := map[string]*model.WorkItem{}
	seen := map[string]bool{}
	var estimator sizeEstimator
	var bytesFetched int64
	promoted := map[string]string{}

	cancelled := false
	exhausted := false
	fatalReason := ""

	emit := func(acc, status, reason string) {
		reporter.Publish(Event{
			Time:          time.Now(),
			RunID:         runID,
			Accession:     acc,
			Status:        status,
			Reason:        reason,
			State:         state,
			BytesFetched:  bytesFetched,
			BytesExpected: estimator.expectedBytes,
		})
	}

	apply := func(msg transition) {
		item, ok := items[msg.Accession]
		if !ok {
			return
		}
		prevStatus := item.Status
		if err := model.TransitionWorkItem(item, msg.Status, msg.Reason); err != nil {
			// A worker reporting an impossible transition is a bug,
			// not a recoverable run condition.
			if fatalReason == "" {
				fatalReason = err.Error()
			}
			return
		}
		if msg.ScratchDir != "" {
			item.ScratchDir = msg.ScratchDir
		}
		if msg.Attempts > item.Attempts {
			item.Attempts = msg.Attempts
		}
		if msg.Verdict != nil {
			item.Verdict = msg.Verdict
		}
		if msg.Status == model.StatusAssessing && msg.BytesWritten > 0 {
			item.BytesWritten = msg.BytesWritten
			bytesFetched += msg.BytesWritten
		}
		if msg.PromotedPath != "" {
			item.PromotedPath = msg.PromotedPath
		}

		if model.IsTerminal(msg.Status) {
			state.Active--
			switch msg.Status {
			case model.StatusClean:
				state.Clean++
				promoted[msg.Accession] = msg.PromotedPath
			case model.StatusRejected:
				state.QualityFailed++
			case model.StatusFailed:
				item.LastError = msg.Reason
				if prevStatus == model.StatusFetching {
					state.FetchFailed++
				} else {
					state.Failed++
				}
				if msg.Fatal && fatalReason == "" {
					fatalReason = msg.Reason
				}
			}
		}
		emit(msg.Accession, msg.Status, msg.Reason)
	}

	dispatch := func() bool {
		for !cancelled && !exhausted && fatalReason == "" &&
			state.Active < workers && state.Clean+state.Active < opts.Target {
			cand, err := opts.Source.Next(ctx)
			if errors.Is(err, io.EOF) {
				exhausted = true
				break
			}
			if err != nil {
				if ctx.Err() != nil {
					cancelled = true
					break
				}
				fatalReason = fmt.Sprintf("candidate source: %v", err)
				break
			}
			if seen[cand.Accession] {
				continue
			}
			seen[cand.Accession] = true
			items[cand.Accession] = &model.WorkItem{Candidate: cand, Status: model.StatusPending}
			estimator.add(cand)
			state.Attempted++
			state.Active++
			emit(cand.Accession, model.StatusPending, "")
			workCh <- cand
		}
		return state.Active > 0
	}

	for dispatch() {
		select {
		case msg := <-msgCh:
			apply(msg)
		case <-ctx.Done():
			if !cancelled {
				cancelled = true
				emit("", "cancelling", "draining in-flight work")
			}
			// From here on only drain; dispatch() will refuse new work.
			for state.Active > 0 {
				apply(<-msgCh)
			}
		}
	}
	close(workCh)
	wg.Wait()

	summary := model.RunSummary{
		RunID:         runID,
		Term:          opts.Term,
		State:         state,
		CleanDir:      opts.CleanDir,
		Elapsed:       time.Since(started),
		BytesFetched:  bytesFetched,
		BytesExpected: estimator.expectedBytes,
	}
	for acc := range promoted {
		summary.Promoted = append(summary.Promoted, acc)
	}
	sort.Strings(summary.Promoted)

	switch {
	case fatalReason != "":
		summary.Outcome = model.OutcomeFailed
		summary.FatalReason = fatalReason
	case cancelled:
		summary.Outcome = model.OutcomeCancelled
	case state.Clean >= opts.Target:
		summary.Outcome = model.OutcomeCompleted
	default:
		// Source exhausted below target. Per-candidate failures are
		// never fatal, so this is a partial result even at zero clean.
		summary.Outcome = model.OutcomePartial
	}
	return summary, nil
}
