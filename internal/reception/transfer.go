package reception

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/binaryelements/becaller/internal/apiclient"
	"github.com/binaryelements/becaller/internal/jambonz"
	"github.com/binaryelements/becaller/internal/livecalls"
)

// Dial leg statuses reported on the dial action hook.
const (
	dialStatusInProgress = "in-progress"
	dialStatusCompleted  = "completed"
	dialStatusFailed     = "failed"
	dialStatusBusy       = "busy"
	dialStatusNoAnswer   = "no-answer"
	dialStatusCanceled   = "canceled"
)

// dialResult is the payload of the dial action hook.
type dialResult struct {
	DialCallStatus string `json:"dial_call_status"`
	DialCallSID    string `json:"dial_call_sid"`
}

// maybeAnnounceTransfer fires on each completed assistant utterance. The
// first one after transfer_call is the spoken hand-off; the dial is then
// scheduled after a settle delay so the caller hears the announcement in
// full before ringing starts.
func (s *Service) maybeAnnounceTransfer(sess *jambonz.Session, cs *CallSession) {
	td := cs.TakePendingForAnnounce()
	if td == nil {
		return
	}
	s.log.Info("transfer announced, dialing shortly",
		"call_sid", cs.CallSID, "department", td.Department, "number", td.TransferNumber)

	if s.live != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.live.SetStatus(ctx, cs.CallSID, livecalls.StatusTransferring, td.Department); err != nil {
				s.log.Warn("failed to mark live call transferring", "call_sid", cs.CallSID, "error", err)
			}
		}()
	}

	cs.ScheduleSettle(s.cfg.TransferSettleDelay, func() {
		s.executeTransfer(sess, cs)
	})
}

// executeTransfer places the deferred dial. It runs on the settle timer's
// goroutine and must tolerate the session having closed meanwhile.
func (s *Service) executeTransfer(sess *jambonz.Session, cs *CallSession) {
	td := cs.PendingTransfer()
	if td == nil || cs.IsClosed() {
		return
	}
	// Clear before writing so a late announcement event cannot dial twice.
	cs.ClearPending()

	_, span := s.tracer.Start(context.Background(), "transfer.dial",
		trace.WithAttributes(
			attribute.String("call_sid", cs.CallSID),
			attribute.String("department", td.Department),
		))
	defer span.End()

	s.log.Info("executing transfer dial",
		"call_sid", cs.CallSID, "department", td.Department, "number", td.TransferNumber)

	companyName := "our office"
	if cs.Config != nil && cs.Config.Company != nil && cs.Config.Company.Name != "" {
		companyName = cs.Config.Company.Name
	}

	err := sess.
		Pause(float64(s.cfg.PreDialPauseSecs)).
		Dial(jambonz.DialOptions{
			Target:         []jambonz.DialTarget{{Type: "phone", Number: td.TransferNumber}},
			AnswerOnBridge: true,
			ActionHook:     hookDialAction,
			CallerID:       s.cfg.CallerID,
			Headers: map[string]string{
				"X-Conversation-Summary": td.Summary,
				"X-Department":           td.Department,
				"X-Transfer-Reason":      td.Reason,
				"X-Caller-Info":          td.CallerInfo,
				"X-Company":              companyName,
			},
		}).
		Send()
	if err != nil {
		s.log.Error("failed to issue transfer dial", "call_sid", cs.CallSID, "error", err)
		cs.SetTransferActive(false)
	}
}

// onDialAction handles the outcome of a transfer dial. An in-progress report
// is informational; completed and the failure family are terminal for the
// dial leg.
func (s *Service) onDialAction(sess *jambonz.Session, cs *CallSession, data json.RawMessage) {
	var result dialResult
	if err := json.Unmarshal(data, &result); err != nil {
		s.log.Warn("unparseable dial action payload", "call_sid", cs.CallSID, "error", err)
		sess.Reply()
		return
	}

	status := result.DialCallStatus
	s.log.Info("dial action result", "call_sid", cs.CallSID, "status", status)

	if status == dialStatusInProgress {
		sess.Reply()
		return
	}

	switch status {
	case dialStatusCompleted:
		s.metrics.ObserveTransfer(cs.Department(), "completed")
		s.journal.UpdateCall(cs.CallSID, apiclient.CallUpdate{
			Status: apiclient.CallStatusTransferred,
			Metadata: map[string]any{
				"transfer_completed": true,
				"transfer_status":    status,
			},
		})
		s.endLiveCall(cs, "transferred")

	case dialStatusFailed, dialStatusBusy, dialStatusNoAnswer, dialStatusCanceled:
		s.metrics.ObserveTransfer(cs.Department(), status)
		s.journal.UpdateCall(cs.CallSID, apiclient.CallUpdate{
			Status: apiclient.CallStatusTransferFailed,
			Metadata: map[string]any{
				"transfer_failed":         true,
				"transfer_failure_reason": status,
			},
		})

		// Pivot the conversation into the callback-offer sub-flow.
		cs.SetOfferCallback(true)
		if err := sess.
			Pause(0.5).
			Llm(s.callbackEngineConfig(cs)).
			Reply(); err != nil {
			s.log.Error("failed to start callback sub-session", "call_sid", cs.CallSID, "error", err)
		}
		cs.SetTransferActive(false)
		return
	}

	cs.SetTransferActive(false)
	sess.Reply()
}

// onEnqueueResult reports queue placement outcomes for the warm-transfer
// flow; it requires no response beyond the ack.
func (s *Service) onEnqueueResult(sess *jambonz.Session, cs *CallSession, data json.RawMessage) {
	var evt struct {
		EnqueueResult string `json:"enqueue_result"`
	}
	if err := json.Unmarshal(data, &evt); err == nil && evt.EnqueueResult != "" && evt.EnqueueResult != "ok" {
		s.log.Error(fmt.Sprintf("enqueue failed: %s", evt.EnqueueResult), "call_sid", cs.CallSID)
	}
	sess.Reply()
}
