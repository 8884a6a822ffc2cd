package harvest

import (
	"context"
	"time"

	"sra-harvest/internal/fastqc"
	"sra-harvest/internal/fetch"
	"sra-harvest/internal/model"
)

// transition is one state-change message from a worker to the control
// loop. The loop is the only writer of RunState and WorkItems; workers
// report, they never mutate shared state.
type transition struct {
	Accession    string
	Status       string
	Reason       string
	ScratchDir   string
	Attempts     int
	BytesWritten int64
	Verdict      *model.Verdict
	PromotedPath string
	Fatal        bool
}

type worker struct {
	fetcher      Fetcher
	gate         QualityGate
	workspace    Workspace
	fetchRetries int
	retryDelay   time.Duration
	msgCh        chan<- transition
}

// process walks one candidate through fetch, assess and promote, reporting
// every transition. The scratch dir is released exactly once, always before
// the terminal message goes out.
func (w *worker) process(ctx context.Context, cand model.Candidate) {
	acc := cand.Accession

	scratch, err := w.workspace.Allocate(cand)
	if err != nil {
		w.msgCh <- transition{Accession: acc, Status: model.StatusFailed, Reason: "allocate scratch: " + err.Error()}
		return
	}
	released := false
	release := func() {
		if !released {
			released = true
			_ = w.workspace.Release(scratch)
		}
	}
	defer release()

	res, attempts, err := w.fetchWithRetry(ctx, cand, scratch)
	if err != nil {
		release()
		w.msgCh <- transition{
			Accession: acc,
			Status:    model.StatusFailed,
			Reason:    err.Error(),
			Attempts:  attempts,
		}
		return
	}

	w.msgCh <- transition{
		Accession:    acc,
		Status:       model.StatusAssessing,
		Attempts:     attempts,
		BytesWritten: res.BytesWritten,
	}
	verdict, err := w.gate.Assess(ctx, res.Path)
	if err != nil {
		release()
		w.msgCh <- transition{
			Accession: acc,
			Status:    model.StatusFailed,
			Reason:    err.Error(),
			Fatal:     fastqc.IsEnvError(err),
		}
		return
	}
	if !verdict.Passed {
		release()
		w.msgCh <- transition{
			Accession: acc,
			Status:    model.StatusRejected,
			Reason:    verdict.Reason,
			Verdict:   &verdict,
		}
		return
	}

	w.msgCh <- transition{Accession: acc, Status: model.StatusPromoting}
	promoted, err := w.workspace.Promote(scratch, cand, verdict)
	if err != nil {
		release()
		w.msgCh <- transition{Accession: acc, Status: model.StatusFailed, Reason: err.Error(), Verdict: &verdict}
		return
	}

	release()
	w.msgCh <- transition{
		Accession:    acc,
		Status:       model.StatusClean,
		Verdict:      &verdict,
		PromotedPath: promoted,
		BytesWritten: res.BytesWritten,
	}
}

// fetchWithRetry makes the single-attempt fetcher into a bounded retry
// loop. Only transient failures are retried; the fixed delay between
// attempts mirrors how the upstream rate-limits recover.
func (w *worker) fetchWithRetry(ctx context.Context, cand model.Candidate, scratch string) (fetch.Result, int, error) {
	attempts := 0
	for {
		attempts++
		w.msgCh <- transition{
			Accession:  cand.Accession,
			Status:     model.StatusFetching,
			ScratchDir: scratch,
			Attempts:   attempts,
		}
		res, err := w.fetcher.Fetch(ctx, cand, scratch)
		if err == nil {
			return res, attempts, nil
		}
		if !fetch.IsTransient(err) || attempts > w.fetchRetries {
			return fetch.Result{}, attempts, err
		}
		if w.retryDelay > 0 {
			time.Sleep(w.retryDelay)
		}
	}
}
