package reception

import (
	"encoding/json"

	"github.com/binaryelements/becaller/internal/jambonz"
	"github.com/binaryelements/becaller/pkg/logging"
)

const warmTransferInstructions = `You are a friendly receptionist. Help callers with their inquiries and transfer them to specialists when needed.

When transferring the call to a specialist, FIRST inform them that you are transferring them to a specialist, and ONLY THEN, after you finish speaking, invoke the transfer_call_to_agent tool. Do not say anything else after invoking the tool.`

const summaryDescription = `A brief summary of the conversation. The summary should be no more than 100 words. If the caller provided their name, include it in the summary. Highlight their interests and needs as well as any specific concerns they may have stated. If they are interested in a specific product or service, include that in the summary. Do not speak the summary`

// handleWarmTransferSession runs the consultative transfer flow: the engine
// gathers context from the caller, then the caller is parked in a queue
// while a fresh specialist leg is dialed out of band. The specialist hears
// the summary before being joined to the caller.
func (s *Service) handleWarmTransferSession(sess *jambonz.Session) {
	info := sess.Info
	log := s.log.WithCall(info.CallSID, info.Caller())
	log.Info("new warm-transfer call", "called", info.Called())

	ctx, cancel := contextWithAPITimeout(s.cfg.PrivateAPITimeout)
	cfg, _ := s.configs.Resolve(ctx, info.Called())
	cancel()
	voice := sessionVoice(cfg, s.cfg.DefaultVoice)

	sess.
		OnHook(hookEvent, s.hook(log, "event", func(json.RawMessage) { sess.Reply() })).
		OnHook(hookFinal, s.hook(log, "final", func(data json.RawMessage) { s.onWarmTransferFinal(sess, log, data) })).
		OnHook(hookToolCall, s.hook(log, "toolCall", func(data json.RawMessage) { s.onWarmTransferTool(sess, log, data) })).
		OnHook("/consultationDone", s.hook(log, "consultationDone", func(data json.RawMessage) {
			log.Info("consultation done")
			sess.Reply()
		})).
		OnClose(func(code int, reason string) {
			log.Info("warm-transfer session closed", "code", code, "reason", reason)
		}).
		OnError(func(err error) { log.Info("warm-transfer session error", "error", err) })

	if s.cfg.OpenAIAPIKey == "" {
		log.Warn("missing engine API key, hanging up")
		if err := sess.Hangup().Send(); err != nil {
			log.Error("failed to hang up", "error", err)
		}
		return
	}

	err := sess.
		Answer().
		Pause(1).
		Llm(jambonz.LlmConfig{
			Vendor:     engineVendor,
			Model:      s.cfg.CallbackModel,
			Auth:       jambonz.LlmAuth{APIKey: s.cfg.OpenAIAPIKey},
			ActionHook: hookFinal,
			EventHook:  hookEvent,
			ToolHook:   hookToolCall,
			Events:     engineEvents,
			LlmOptions: jambonz.LlmOptions{
				ResponseCreate: jambonz.ResponseCreate{
					Modalities:        []string{"text", "audio"},
					Instructions:      warmTransferInstructions,
					Voice:             voice,
					OutputAudioFormat: "pcm16",
					Temperature:       s.cfg.DefaultTemperature,
					MaxOutputTokens:   s.cfg.MaxOutputTokens,
				},
				SessionUpdate: jambonz.SessionUpdate{
					Tools: []jambonz.Tool{
						{
							Name:        "transfer_call_to_agent",
							Type:        "function",
							Description: "Transfers the call to a specialist",
							Parameters: jambonz.ToolParameters{
								Type: "object",
								Properties: map[string]jambonz.ToolProperty{
									"conversation_summary": {Type: "string", Description: summaryDescription},
								},
								Required: []string{"conversation_summary"},
							},
						},
					},
					ToolChoice: "auto",
					InputAudioTranscription: &jambonz.InputAudioTranscription{
						Model: "whisper-1",
					},
					TurnDetection: s.turnDetection(),
				},
			},
		}).
		Hangup().
		Send()
	if err != nil {
		log.Error("failed to answer warm-transfer call", "error", err)
		sess.Close()
	}
}

func (s *Service) onWarmTransferFinal(sess *jambonz.Session, log *logging.Logger, data json.RawMessage) {
	var evt finalEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		sess.Reply()
		return
	}
	log.Info("warm-transfer engine session completed", "reason", evt.CompletionReason)

	if evt.CompletionReason == "server failure" || evt.CompletionReason == "server error" {
		if evt.Error != nil && evt.Error.Code == "rate_limit_exceeded" {
			text := "Sorry, the assistant is over capacity."
			if hint := retryAfterHint(evt.Error.Message); hint != "" {
				text += " Please try again in " + hint + " seconds."
			}
			sess.Say(text)
		} else {
			sess.Say("Sorry, there was an error processing your request.")
		}
		sess.Hangup()
	}
	sess.Reply()
}

// onWarmTransferTool handles transfer_call_to_agent: park the caller in a
// queue named after their call SID, then dial a brand-new specialist leg
// carrying the conversation summary in its tag.
func (s *Service) onWarmTransferTool(sess *jambonz.Session, log *logging.Logger, data json.RawMessage) {
	var evt toolCallEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		log.Warn("unparseable tool call", "error", err)
		sess.Reply()
		return
	}
	var args struct {
		ConversationSummary string `json:"conversation_summary"`
	}
	if err := json.Unmarshal(evt.Args, &args); err != nil {
		log.Warn("unparseable tool arguments", "tool", evt.Name, "error", err)
	}
	log.Info("tool called", "tool", evt.Name, "tool_call_id", evt.ToolCallID)
	sess.Reply()

	if err := sess.SendToolOutput(evt.ToolCallID, map[string]any{
		"type":          "client_tool_result",
		"invocation_id": evt.ToolCallID,
		"result":        "Successfully initiated transfer to specialist.",
	}); err != nil {
		log.Error("failed to send tool output", "error", err)
		return
	}

	if err := sess.
		Say("Please hold while we connect you to a specialist.").
		Enqueue(jambonz.EnqueueOptions{
			Name:       sess.Info.CallSID,
			ActionHook: "/consultationDone",
		}).
		Send(); err != nil {
		log.Error("failed to enqueue caller", "error", err)
		return
	}

	callerID := s.cfg.CallerID
	if callerID == "" {
		callerID = sess.Info.From
	}
	if err := sess.SendCommand("dial", jambonz.OutboundDial{
		CallHook: "/dial-specialist",
		From:     callerID,
		To:       dialDestination(s.cfg.AgentNumber, s.cfg.TransferTrunk),
		Tag: map[string]any{
			"conversation_summary": args.ConversationSummary,
			"queue":                sess.Info.CallSID,
		},
	}); err != nil {
		log.Error("failed to dial specialist", "error", err)
	}
}

// handleDialSpecialistSession serves the specialist leg of a warm transfer:
// read out the summary, then pull the waiting caller from their queue.
func (s *Service) handleDialSpecialistSession(sess *jambonz.Session) {
	info := sess.Info
	log := s.log.WithCall(info.CallSID, info.Caller())
	log.Info("new specialist leg")

	summary := "Incoming call transferred to specialist."
	if v, ok := info.CustomerData["conversation_summary"].(string); ok && v != "" {
		summary = v
	}
	queue, _ := info.CustomerData["queue"].(string)

	sess.
		OnHook(hookDequeue, s.hook(log, "dequeue", func(data json.RawMessage) { s.onSpecialistDequeue(sess, log, data) })).
		OnClose(func(code int, reason string) {
			log.Info("specialist leg closed", "code", code, "reason", reason)
		}).
		OnError(func(err error) { log.Info("specialist leg error", "error", err) })

	err := sess.
		Say(summary).
		Say("Now you will be connected to the caller.").
		Dequeue(jambonz.DequeueOptions{
			Name:        queue,
			Beep:        true,
			TimeoutSecs: 2,
			ActionHook:  hookDequeue,
		}).
		Send()
	if err != nil {
		log.Error("failed to set up specialist leg", "error", err)
		sess.Close()
	}
}

func (s *Service) onSpecialistDequeue(sess *jambonz.Session, log *logging.Logger, data json.RawMessage) {
	var result dequeueResult
	if err := json.Unmarshal(data, &result); err != nil {
		log.Warn("unparseable dequeue result", "error", err)
		sess.Reply()
		return
	}
	log.Info("dequeue result", "result", result.DequeueResult)

	switch result.DequeueResult {
	case "timeout":
		if err := sess.
			Say("I'm sorry, the caller hung up.").
			Hangup().
			Reply(); err != nil {
			log.Error("failed to wind down specialist leg", "error", err)
		}
	case "bridged":
		log.Info("caller connected to specialist")
		sess.Reply()
	default:
		sess.Reply()
	}
}

// dialDestination renders a dial target, routing through the SIP trunk when
// one is configured.
func dialDestination(number, trunk string) string {
	if trunk != "" {
		return number + "@" + trunk
	}
	return number
}
