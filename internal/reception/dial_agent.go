package reception

import (
	"encoding/json"

	"github.com/binaryelements/becaller/internal/jambonz"
	"github.com/binaryelements/becaller/pkg/logging"
)

// handleDialAgentSession serves the agent leg placed by a REST-initiated
// transfer. The agent hears the conversation summary, then is bridged to the
// waiting caller leg.
func (s *Service) handleDialAgentSession(sess *jambonz.Session) {
	info := sess.Info
	log := s.log.WithCall(info.CallSID, info.Caller())
	log.Info("new agent leg", "parent_call_sid", info.ParentCallSID)

	summary := "You have an incoming customer call. If you are available, please stay on the line and I will connect you now."
	if v, ok := info.CustomerData["conversation_summary"].(string); ok && v != "" {
		summary = v
	}

	sess.
		OnHook(hookDequeue, s.hook(log, "dequeue", func(data json.RawMessage) { s.onAgentDequeue(sess, log, data) })).
		OnClose(func(code int, reason string) {
			log.Info("agent leg closed", "code", code, "reason", reason)
		}).
		OnError(func(err error) { log.Info("agent leg error", "error", err) })

	err := sess.
		Answer().
		Tag(map[string]any{"conversation_summary": summary}).
		Pause(1).
		Say(summary).
		Bridge(jambonz.BridgeOptions{
			CallSID:     info.ParentCallSID,
			WhisperHook: "/whisper",
		}).
		Send()
	if err != nil {
		log.Error("failed to set up agent leg", "error", err)
		sess.Close()
	}
}

// dequeueResult is the outcome payload on a dequeue action hook.
type dequeueResult struct {
	DequeueResult string `json:"dequeue_result"`
}

func (s *Service) onAgentDequeue(sess *jambonz.Session, log *logging.Logger, data json.RawMessage) {
	var result dequeueResult
	if err := json.Unmarshal(data, &result); err != nil {
		log.Warn("unparseable dequeue result", "error", err)
		sess.Reply()
		return
	}
	log.Info("dequeue result", "result", result.DequeueResult)

	if result.DequeueResult == "timeout" {
		if err := sess.
			Say("I'm sorry, the caller hung up.").
			Hangup().
			Reply(); err != nil {
			log.Error("failed to wind down agent leg", "error", err)
		}
		return
	}
	if err := sess.Hangup().Reply(); err != nil {
		log.Error("failed to hang up agent leg", "error", err)
	}
}
