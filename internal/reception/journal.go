package reception

import (
	"context"
	"time"

	"github.com/binaryelements/becaller/internal/apiclient"
	"github.com/binaryelements/becaller/internal/observability/metrics"
	"github.com/binaryelements/becaller/pkg/logging"
)

// Journal persists call records, transcripts and events to the private API
// off the audio path. Writes for a call are applied in submission order by a
// single worker; failures are logged and counted, never surfaced to the
// caller. The conversation must keep flowing when the control plane is slow.
type Journal struct {
	api     privateAPI
	log     *logging.Logger
	metrics *metrics.CallMetrics
	timeout time.Duration

	ops  chan journalOp
	done chan struct{}
}

type journalOp struct {
	name string
	fn   func(ctx context.Context) error
}

// NewJournal starts the journal worker.
func NewJournal(api privateAPI, log *logging.Logger, m *metrics.CallMetrics, timeout time.Duration) *Journal {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	j := &Journal{
		api:     api,
		log:     log,
		metrics: m,
		timeout: timeout,
		ops:     make(chan journalOp, 256),
		done:    make(chan struct{}),
	}
	go j.run()
	return j
}

func (j *Journal) run() {
	defer close(j.done)
	for op := range j.ops {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		if err := op.fn(ctx); err != nil {
			j.log.Warn("journal write failed", "op", op.name, "error", err)
			j.metrics.ObserveJournalFailure(op.name)
		}
		cancel()
	}
}

func (j *Journal) enqueue(name string, fn func(ctx context.Context) error) {
	select {
	case j.ops <- journalOp{name: name, fn: fn}:
	default:
		j.log.Warn("journal queue full, dropping write", "op", name)
		j.metrics.ObserveJournalFailure(name)
	}
}

// CreateCall opens the call record synchronously at answer time and returns
// its id, or 0 when creation fails. Later updates are keyed by call SID, so
// a missing record degrades to logged no-ops rather than an error.
func (j *Journal) CreateCall(ctx context.Context, data apiclient.CallCreate) int {
	call, err := j.api.CreateCall(ctx, data)
	if err != nil {
		j.log.Error("failed to create call record", "call_sid", data.CallSID, "error", err)
		j.metrics.ObserveJournalFailure("create_call")
		return 0
	}
	return call.ID
}

// UpdateCall applies a partial update to the call record.
func (j *Journal) UpdateCall(callSID string, update apiclient.CallUpdate) {
	j.enqueue("update_call", func(ctx context.Context) error {
		return j.api.UpdateCall(ctx, callSID, update)
	})
}

// AppendTranscript records one conversation turn.
func (j *Journal) AppendTranscript(callSID string, turn apiclient.TranscriptTurn) {
	j.enqueue("append_transcript", func(ctx context.Context) error {
		return j.api.AddTranscripts(ctx, callSID, []apiclient.TranscriptTurn{turn})
	})
}

// AppendEvent records a lifecycle or engine event.
func (j *Journal) AppendEvent(callSID, eventType string, payload any) {
	j.enqueue("append_event", func(ctx context.Context) error {
		return j.api.AddEvent(ctx, callSID, eventType, payload)
	})
}

// Flush blocks until every write submitted before the call has been applied.
func (j *Journal) Flush() {
	flushed := make(chan struct{})
	j.ops <- journalOp{name: "flush", fn: func(context.Context) error {
		close(flushed)
		return nil
	}}
	<-flushed
}

// Close drains remaining writes and stops the worker.
func (j *Journal) Close() {
	close(j.ops)
	<-j.done
}
