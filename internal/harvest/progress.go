package harvest

import (
	"fmt"
	"io"
	"sync"
	"time"

	"sra-harvest/internal/model"
)

// Event is one observable pipeline transition. Events are emitted by the
// control loop after it has applied the transition, so the embedded state
// snapshot is always consistent with the status change.
type Event struct {
	Time          time.Time      `json:"time"`
	RunID         string         `json:"run_id"`
	Accession     string         `json:"accession,omitempty"`
	Status        string         `json:"status,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	State         model.RunState `json:"state"`
	BytesFetched  int64          `json:"bytes_fetched"`
	BytesExpected int64          `json:"bytes_expected,omitempty"`
}

type Reporter interface {
	Publish(Event)
}

// NullReporter drops all events.
type NullReporter struct{}

func (NullReporter) Publish(Event) {}

// LogReporter prints one line per transition, serialized so concurrent
// summaries do not interleave.
type LogReporter struct {
	Out io.Writer
	mu  sync.Mutex
}

func NewLogReporter(out io.Writer) *LogReporter {
	return &LogReporter{Out: out}
}

func (r *LogReporter) Publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	verb := statusVerb(ev.Status)
	if ev.Reason != "" {
		fmt.Fprintf(r.Out, "[%d/%d] %s %s (%s)\n", ev.State.Clean, ev.State.Target, verb, ev.Accession, ev.Reason)
		return
	}
	fmt.Fprintf(r.Out, "[%d/%d] %s %s\n", ev.State.Clean, ev.State.Target, verb, ev.Accession)
}

func statusVerb(status string) string {
	switch status {
	case model.StatusPending:
		return "queue"
	case model.StatusFetching:
		return "fetch"
	case model.StatusAssessing:
		return "check"
	case model.StatusPromoting:
		return "store"
	case model.StatusClean:
		return "clean"
	case model.StatusRejected:
		return "rejct"
	case model.StatusFailed:
		return "fail "
	default:
		return status
	}
}

// ChannelReporter forwards events to a channel without ever blocking the
// control loop; a slow consumer loses events rather than stalling the run.
type ChannelReporter struct {
	C chan Event
}

func NewChannelReporter(buffer int) *ChannelReporter {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelReporter{C: make(chan Event, buffer)}
}

func (r *ChannelReporter) Publish(ev Event) {
	select {
	case r.C <- ev:
	default:
	}
}
