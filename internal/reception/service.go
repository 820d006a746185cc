// Package reception implements the AI voice reception call flow: it answers
// inbound calls over the telephony WebSocket, drives a realtime
// conversational engine on the call, dispatches the engine's tool calls
// against the private API, and orchestrates transfers and callbacks.
package reception

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/binaryelements/becaller/internal/apiclient"
	"github.com/binaryelements/becaller/internal/config"
	"github.com/binaryelements/becaller/internal/jambonz"
	"github.com/binaryelements/becaller/internal/livecalls"
	"github.com/binaryelements/becaller/internal/observability/metrics"
	"github.com/binaryelements/becaller/pkg/logging"
)

const toolCallTimeout = 15 * time.Second

func contextWithAPITimeout(d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), d)
}

// Service is the voice reception application. One Service handles every
// concurrent call; per-call state lives in CallSession.
type Service struct {
	cfg      *config.Config
	api      privateAPI
	journal  *Journal
	live     *livecalls.Store
	metrics  *metrics.CallMetrics
	log      *logging.Logger
	tracer   trace.Tracer
	configs  *ConfigResolver
	contacts *ContactResolver
}

// Options configures a Service. Live and Metrics are optional.
type Options struct {
	Config  *config.Config
	API     privateAPI
	Journal *Journal
	Live    *livecalls.Store
	Metrics *metrics.CallMetrics
	Logger  *logging.Logger
}

func New(opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	journal := opts.Journal
	if journal == nil {
		journal = NewJournal(opts.API, log, opts.Metrics, opts.Config.PrivateAPITimeout)
	}
	return &Service{
		cfg:      opts.Config,
		api:      opts.API,
		journal:  journal,
		live:     opts.Live,
		metrics:  opts.Metrics,
		log:      log,
		tracer:   otel.Tracer("becaller/reception"),
		configs:  NewConfigResolver(opts.API, opts.Config, log),
		contacts: NewContactResolver(opts.API, log),
	}
}

// Register mounts the call flows on the WebSocket endpoint.
func (s *Service) Register(ep *jambonz.Endpoint) {
	ep.MakeService("/main").OnSession(s.handleMainSession)
	ep.MakeService("/dial-agent").OnSession(s.handleDialAgentSession)
	ep.MakeService("/warm-transfer").OnSession(s.handleWarmTransferSession)
	ep.MakeService("/dial-specialist").OnSession(s.handleDialSpecialistSession)
}

// handleMainSession answers an inbound call: resolve tenant config, identify
// the caller, open the call record, then hand the conversation to the
// realtime engine.
func (s *Service) handleMainSession(sess *jambonz.Session) {
	info := sess.Info
	log := s.log.WithCall(info.CallSID, info.Caller())

	ctx, span := s.tracer.Start(context.Background(), "session.answer",
		trace.WithAttributes(
			attribute.String("call_sid", info.CallSID),
			attribute.String("called", info.Called()),
		))
	defer span.End()

	cfg, source := s.configs.Resolve(ctx, info.Called())
	span.SetAttributes(attribute.String("config_source", string(source)))

	cs := newCallSession(info.CallSID, info.Caller(), info.Called())
	cs.Config = cfg
	cs.ConfigSource = source
	cs.Voice = sessionVoice(cfg, s.cfg.DefaultVoice)
	cs.Temperature = sessionTemperature(cfg, s.cfg.DefaultTemperature)
	cs.PhoneNumberID = cfg.ID
	if cfg.Company != nil {
		cs.CompanyID = cfg.Company.ID
	}
	cs.Contact = s.contacts.Resolve(ctx, cs.CompanyID, cs.CallerNumber)
	if cs.Contact != nil {
		log.Info("known caller", "contact_id", cs.Contact.ID, "name", cs.Contact.Name)
	}

	cs.CallID = s.journal.CreateCall(ctx, apiclient.CallCreate{
		CallSID:       cs.CallSID,
		CompanyID:     cs.CompanyID,
		PhoneNumberID: cs.PhoneNumberID,
		PhoneNumber:   cs.CallerNumber,
		CalledNumber:  cs.CalledNumber,
		Status:        apiclient.CallStatusInProgress,
		Metadata: map[string]any{
			"config_source": string(source),
			"direction":     info.Direction,
		},
	})
	if cs.CallID != 0 {
		log.Info("call record created", "call_id", cs.CallID)
	}

	s.metrics.ObserveCallStarted(string(source))
	if s.live != nil {
		if err := s.live.Save(ctx, &livecalls.CallState{
			CallSID:      cs.CallSID,
			CompanyID:    cs.CompanyID,
			CallerNumber: cs.CallerNumber,
			CalledNumber: cs.CalledNumber,
			ConfigSource: string(source),
			Status:       livecalls.StatusInProgress,
			StartedAt:    cs.StartedAt,
			LastActivity: cs.StartedAt,
		}); err != nil {
			log.Warn("failed to register live call", "error", err)
		}
	}

	sess.
		OnHook(hookEvent, s.hook(log, "event", func(data json.RawMessage) { s.onEvent(sess, cs, data) })).
		OnHook(hookToolCall, s.hook(log, "toolCall", func(data json.RawMessage) { s.onToolCall(sess, cs, data) })).
		OnHook(hookFinal, s.hook(log, "final", func(data json.RawMessage) { s.onFinal(sess, cs, data) })).
		OnHook(hookDialAction, s.hook(log, "dialAction", func(data json.RawMessage) { s.onDialAction(sess, cs, data) })).
		OnHook(hookEnqueueResult, s.hook(log, "enqueueResult", func(data json.RawMessage) { s.onEnqueueResult(sess, cs, data) })).
		OnClose(func(code int, reason string) { s.onClose(cs, log, code, reason) }).
		OnError(func(err error) { log.Info("session error", "error", err) })

	if s.cfg.OpenAIAPIKey == "" {
		log.Warn("missing engine API key, hanging up")
		if err := sess.Hangup().Send(); err != nil {
			log.Error("failed to hang up", "error", err)
		}
		return
	}

	summary := "New customer inquiry"
	if v, ok := info.CustomerData["conversation_summary"].(string); ok && v != "" {
		summary = v
	}

	s.armIdle(sess, cs)

	err := sess.
		Answer().
		Pause(2).
		Tag(map[string]any{
			"phone_num":            s.cfg.AgentNumber,
			"conversation_summary": summary,
			"llm_enabled":          true,
		}).
		Llm(s.mainEngineConfig(cs)).
		Send()
	if err != nil {
		log.Error("failed to answer call", "error", err)
	}
}

// hook wraps a handler so a panic in one call's flow is contained to that
// call instead of tearing down the whole gateway.
func (s *Service) hook(log *logging.Logger, name string, fn func(json.RawMessage)) jambonz.HookHandler {
	return func(data json.RawMessage) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in hook handler",
					"hook", name, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn(data)
	}
}

// engineEvent is the slice of engine events the gateway inspects.
type engineEvent struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}

func (s *Service) onEvent(sess *jambonz.Session, cs *CallSession, data json.RawMessage) {
	var evt engineEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		s.log.Warn("unparseable engine event", "call_sid", cs.CallSID, "error", err)
		sess.Reply()
		return
	}

	s.armIdle(sess, cs)

	switch evt.Type {
	case eventUserTranscript:
		s.recordTurn(cs, "user", evt.Transcript)
	case eventAssistantTranscript:
		s.recordTurn(cs, "assistant", evt.Transcript)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err == nil {
		s.journal.AppendEvent(cs.CallSID, evt.Type, raw)
	}

	sess.Reply()

	if evt.Type == eventAssistantTranscript {
		s.maybeAnnounceTransfer(sess, cs)
	}
}

func (s *Service) recordTurn(cs *CallSession, role, text string) {
	if text == "" {
		return
	}
	now := time.Now().UTC()
	s.journal.AppendTranscript(cs.CallSID, apiclient.TranscriptTurn{
		Role:      role,
		Text:      text,
		Timestamp: now,
	})
	if s.live != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.live.AppendTranscript(ctx, cs.CallSID, livecalls.TranscriptEntry{
				Role:      role,
				Text:      text,
				Timestamp: now,
			}); err != nil {
				s.log.Warn("failed to cache transcript turn", "call_sid", cs.CallSID, "error", err)
			}
			if err := s.live.Touch(ctx, cs.CallSID); err != nil {
				s.log.Warn("failed to touch live call", "call_sid", cs.CallSID, "error", err)
			}
		}()
	}
}

func (s *Service) onToolCall(sess *jambonz.Session, cs *CallSession, data json.RawMessage) {
	var evt toolCallEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		s.log.Warn("unparseable tool call", "call_sid", cs.CallSID, "error", err)
		sess.Reply()
		return
	}
	s.log.Info("tool called", "call_sid", cs.CallSID, "tool", evt.Name, "tool_call_id", evt.ToolCallID)
	sess.Reply()

	s.armIdle(sess, cs)

	kind, ok := ParseToolKind(evt.Name)
	if !ok {
		s.metrics.ObserveToolCall(evt.Name, "unknown")
		s.sendToolError(sess, cs, evt.ToolCallID, "unknown function: "+evt.Name)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), toolCallTimeout)
	defer cancel()

	result, err := s.dispatchTool(ctx, cs, kind, evt.Args)
	if err != nil {
		s.log.Error("tool failed", "call_sid", cs.CallSID, "tool", evt.Name, "error", err)
		s.metrics.ObserveToolCall(evt.Name, "error")
		s.sendToolError(sess, cs, evt.ToolCallID, err.Error())
		return
	}
	s.metrics.ObserveToolCall(evt.Name, "ok")

	output, err := json.Marshal(result)
	if err != nil {
		s.sendToolError(sess, cs, evt.ToolCallID, "failed to encode tool result")
		return
	}
	payload := map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": evt.ToolCallID,
			"output":  string(output),
		},
	}
	if err := sess.SendToolOutput(evt.ToolCallID, payload); err != nil {
		s.log.Error("failed to send tool output", "call_sid", cs.CallSID, "error", err)
	}
}

func (s *Service) sendToolError(sess *jambonz.Session, cs *CallSession, toolCallID, message string) {
	if err := sess.SendToolOutput(toolCallID, map[string]any{"error": message}); err != nil {
		s.log.Error("failed to send tool error", "call_sid", cs.CallSID, "error", err)
	}
}

// finalEvent is the engine completion report on the action hook.
type finalEvent struct {
	CompletionReason string `json:"completion_reason"`
	Error            *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// onFinal applies the completion-reason policy: engine-side failures end the
// call; a normal conversation end keeps the session alive unless the caller
// asked to hang up, and never disturbs an in-flight transfer.
func (s *Service) onFinal(sess *jambonz.Session, cs *CallSession, data json.RawMessage) {
	var evt finalEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		s.log.Warn("unparseable completion report", "call_sid", cs.CallSID, "error", err)
		sess.Reply()
		return
	}
	s.log.Info("engine session completed", "call_sid", cs.CallSID, "reason", evt.CompletionReason)

	switch evt.CompletionReason {
	case "server failure", "server error":
		if evt.Error != nil && evt.Error.Code == "rate_limit_exceeded" {
			s.log.Error("engine rate limit exceeded",
				"call_sid", cs.CallSID,
				"retry_after_secs", retryAfterHint(evt.Error.Message),
				"error", evt.Error.Message)
		} else {
			msg := "unknown error"
			if evt.Error != nil {
				msg = evt.Error.Message
			}
			s.log.Error("engine failure", "call_sid", cs.CallSID, "error", msg)
		}
		sess.Hangup()
	case "normal conversation end":
		switch {
		case cs.EndRequested():
			s.log.Info("ending call as requested", "call_sid", cs.CallSID)
			sess.Hangup()
		case cs.TransferActive():
			s.log.Info("transfer in flight, keeping session for dial", "call_sid", cs.CallSID)
		default:
			s.log.Info("keeping session alive for continued conversation", "call_sid", cs.CallSID)
		}
	}

	sess.Reply()
}

// onClose finalizes the call record exactly once, regardless of how many
// close notifications the transport delivers.
func (s *Service) onClose(cs *CallSession, log *logging.Logger, code int, reason string) {
	if !cs.MarkClosed() {
		return
	}
	duration := int(time.Since(cs.StartedAt).Seconds())
	log.Info("session closed", "code", code, "reason", reason, "duration_secs", duration)

	endedAt := time.Now().UTC().Format(time.RFC3339)
	s.journal.UpdateCall(cs.CallSID, apiclient.CallUpdate{
		Status:   apiclient.CallStatusDisconnected,
		EndedAt:  endedAt,
		Duration: &duration,
		Metadata: map[string]any{
			"close_code":   code,
			"close_reason": reason,
		},
	})
	s.metrics.ObserveCallEnded(apiclient.CallStatusDisconnected, float64(duration))
	s.endLiveCall(cs, "disconnected")
}

func (s *Service) endLiveCall(cs *CallSession, outcome string) {
	if s.live == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.live.End(ctx, cs.CallSID, outcome); err != nil {
			s.log.Warn("failed to end live call", "call_sid", cs.CallSID, "error", err)
		}
	}()
}

// armIdle re-arms the abandonment timer. A call with no engine activity for
// the idle window is hung up, unless a transfer dial is in flight.
func (s *Service) armIdle(sess *jambonz.Session, cs *CallSession) {
	cs.ResetIdle(s.cfg.IdleTimeout, func() {
		if cs.IsClosed() || cs.TransferActive() {
			return
		}
		s.log.Info("idle timeout, hanging up", "call_sid", cs.CallSID)
		if err := sess.Hangup().Send(); err != nil {
			s.log.Error("failed to hang up idle call", "call_sid", cs.CallSID, "error", err)
		}
	})
}
