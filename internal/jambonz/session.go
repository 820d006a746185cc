package jambonz

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/binaryelements/becaller/pkg/logging"
)

// FrameWriter writes one outbound frame to the call's WebSocket. The real
// implementation wraps a websocket connection; tests substitute a recorder.
type FrameWriter interface {
	WriteJSON(v any) error
}

// HookHandler processes one inbound webhook frame for a call.
type HookHandler func(data json.RawMessage)

// Session is one phone call's leg on the telephony platform. Verbs queue up
// on the session and are flushed as a single batch by Send or Reply; inbound
// hook frames for a session are dispatched sequentially in arrival order.
type Session struct {
	Info SessionInfo

	writer FrameWriter
	closer func() error
	log    *logging.Logger

	mu           sync.Mutex
	queue        []any
	hooks        map[string]HookHandler
	closeHandler func(code int, reason string)
	errorHandler func(err error)
	pendingMsgID string
	closed       bool
}

// NewSession builds a session around a frame writer. The closer, when
// non-nil, tears down the underlying connection on Close.
func NewSession(w FrameWriter, info SessionInfo, log *logging.Logger, closer func() error) *Session {
	if log == nil {
		log = logging.Default()
	}
	return &Session{
		Info:   info,
		writer: w,
		closer: closer,
		log:    log,
		hooks:  make(map[string]HookHandler),
	}
}

// OnHook registers a handler for a webhook path ("/event", "/toolCall", ...).
func (s *Session) OnHook(path string, h HookHandler) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[path] = h
	return s
}

// OnClose registers the close handler.
func (s *Session) OnClose(h func(code int, reason string)) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeHandler = h
	return s
}

// OnError registers the transport-error handler.
func (s *Session) OnError(h func(err error)) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = h
	return s
}

// ---- verb builders ----

func (s *Session) enqueueVerb(v any) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, v)
	return s
}

// Answer answers the inbound call.
func (s *Session) Answer() *Session {
	return s.enqueueVerb(map[string]any{"verb": "answer"})
}

// Say speaks text to the connected party.
func (s *Session) Say(text string) *Session {
	return s.enqueueVerb(map[string]any{"verb": "say", "text": text})
}

// Pause waits for the given number of seconds.
func (s *Session) Pause(seconds float64) *Session {
	return s.enqueueVerb(map[string]any{"verb": "pause", "length": seconds})
}

// Tag attaches customer data to the call, visible to later legs.
func (s *Session) Tag(data map[string]any) *Session {
	return s.enqueueVerb(map[string]any{"verb": "tag", "data": data})
}

// Hangup terminates the call.
func (s *Session) Hangup() *Session {
	return s.enqueueVerb(map[string]any{"verb": "hangup"})
}

// Dial bridges the active leg to an outbound destination.
func (s *Session) Dial(opts DialOptions) *Session {
	return s.enqueueVerb(map[string]any{
		"verb":           "dial",
		"target":         opts.Target,
		"answerOnBridge": opts.AnswerOnBridge,
		"actionHook":     opts.ActionHook,
		"callerId":       opts.CallerID,
		"timeout":        opts.TimeoutSecs,
		"headers":        opts.Headers,
	})
}

// Enqueue places the caller into a waiting queue.
func (s *Session) Enqueue(opts EnqueueOptions) *Session {
	return s.enqueueVerb(map[string]any{
		"verb":       "enqueue",
		"name":       opts.Name,
		"actionHook": opts.ActionHook,
	})
}

// Dequeue connects this leg to a queued caller.
func (s *Session) Dequeue(opts DequeueOptions) *Session {
	return s.enqueueVerb(map[string]any{
		"verb":       "dequeue",
		"name":       opts.Name,
		"beep":       opts.Beep,
		"timeout":    opts.TimeoutSecs,
		"actionHook": opts.ActionHook,
	})
}

// Bridge joins this leg to another live call.
func (s *Session) Bridge(opts BridgeOptions) *Session {
	return s.enqueueVerb(map[string]any{
		"verb":        "bridge",
		"call_sid":    opts.CallSID,
		"whisperHook": opts.WhisperHook,
	})
}

// Llm starts a realtime conversational engine session on the call.
func (s *Session) Llm(cfg LlmConfig) *Session {
	return s.enqueueVerb(map[string]any{
		"verb":       "llm",
		"vendor":     cfg.Vendor,
		"model":      cfg.Model,
		"auth":       cfg.Auth,
		"actionHook": cfg.ActionHook,
		"eventHook":  cfg.EventHook,
		"toolHook":   cfg.ToolHook,
		"events":     cfg.Events,
		"llmOptions": cfg.LlmOptions,
	})
}

// ---- flushing ----

// Send flushes queued verbs. When a platform frame is awaiting a response the
// batch rides on its ack; otherwise it goes out as a queued redirect command.
func (s *Session) Send() error {
	return s.flush(true)
}

// Reply acknowledges the frame being handled, carrying any queued verbs.
// Safe to call with an empty queue.
func (s *Session) Reply() error {
	return s.flush(false)
}

func (s *Session) flush(allowCommand bool) error {
	s.mu.Lock()
	if s.closed {
		s.queue = nil
		s.mu.Unlock()
		return nil
	}
	verbs := s.queue
	s.queue = nil
	msgid := s.pendingMsgID
	s.pendingMsgID = ""
	s.mu.Unlock()

	if msgid != "" {
		return s.write(ackFrame{Type: "ack", MsgID: msgid, Data: verbs})
	}
	if len(verbs) == 0 {
		return nil
	}
	if !allowCommand {
		return fmt.Errorf("jambonz: no frame to reply to on call %s", s.Info.CallSID)
	}
	return s.write(commandFrame{Type: "command", Command: "redirect", QueueCommand: true, Data: verbs})
}

// SendToolOutput returns a tool handler's result to the engine, keyed by the
// originating tool call id.
func (s *Session) SendToolOutput(toolCallID string, data any) error {
	return s.write(commandFrame{
		Type:       "command",
		Command:    "llm:tool-output",
		ToolCallID: toolCallID,
		Data:       data,
	})
}

// SendCommand issues an out-of-band command (e.g. dialing a new agent leg).
func (s *Session) SendCommand(command string, data any) error {
	return s.write(commandFrame{Type: "command", Command: command, Data: data})
}

func (s *Session) write(v any) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}
	if err := s.writer.WriteJSON(v); err != nil {
		return fmt.Errorf("jambonz: write to call %s: %w", s.Info.CallSID, err)
	}
	return nil
}

// Close tears down the underlying connection. The close handler fires via
// the read loop observing the closed socket, not here.
func (s *Session) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

// ---- inbound dispatch (invoked by the endpoint's read loop, and by tests) ----

// HandleHook dispatches an inbound webhook frame to the registered handler.
// Unregistered hooks are logged and dropped. The frame's msgid becomes the
// pending reply target for Send/Reply.
func (s *Session) HandleHook(path, msgid string, data json.RawMessage) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pendingMsgID = msgid
	h := s.hooks[path]
	s.mu.Unlock()

	if h == nil {
		s.log.Debug("no handler for hook", "hook", path, "call_sid", s.Info.CallSID)
		// Ack anyway so the platform does not stall waiting on us.
		_ = s.Reply()
		return
	}
	h(data)
}

// HandleClose invokes the close handler exactly once.
func (s *Session) HandleClose(code int, reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	h := s.closeHandler
	s.mu.Unlock()

	if h != nil {
		h(code, reason)
	}
}

// HandleError invokes the error handler.
func (s *Session) HandleError(err error) {
	s.mu.Lock()
	h := s.errorHandler
	s.mu.Unlock()
	if h != nil {
		h(err)
	}
}

// Closed reports whether the call has ended.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
