package jambonz

import "encoding/json"

// inboundFrame is the envelope the telephony platform sends over the
// per-call WebSocket.
type inboundFrame struct {
	Type    string          `json:"type"`
	MsgID   string          `json:"msgid,omitempty"`
	Hook    string          `json:"hook,omitempty"`
	CallSID string          `json:"call_sid,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// Frame types exchanged with the platform.
const (
	frameSessionNew = "session:new"
	frameVerbHook   = "verb:hook"
	frameCallStatus = "call:status"
	frameError      = "error"
)

// ackFrame acknowledges an inbound frame, optionally carrying a verb batch.
type ackFrame struct {
	Type  string `json:"type"` // "ack"
	MsgID string `json:"msgid"`
	Data  []any  `json:"data,omitempty"`
}

// commandFrame is an unsolicited outbound instruction.
type commandFrame struct {
	Type         string `json:"type"` // "command"
	Command      string `json:"command"`
	QueueCommand bool   `json:"queueCommand,omitempty"`
	ToolCallID   string `json:"tool_call_id,omitempty"`
	Data         any    `json:"data,omitempty"`
}

// SessionInfo describes one phone call as delivered in the session:new frame.
type SessionInfo struct {
	CallSID       string         `json:"call_sid"`
	ParentCallSID string         `json:"parent_call_sid,omitempty"`
	From          string         `json:"from,omitempty"`
	To            string         `json:"to,omitempty"`
	CalledNumber  string         `json:"called_number,omitempty"`
	CallerID      string         `json:"caller_id,omitempty"`
	Direction     string         `json:"direction,omitempty"`
	CustomerData  map[string]any `json:"customerData,omitempty"`
}

// Called returns the dialed number, preferring the to field.
func (i SessionInfo) Called() string {
	if i.To != "" {
		return i.To
	}
	return i.CalledNumber
}

// Caller returns the originating number, or "unknown" when absent.
func (i SessionInfo) Caller() string {
	if i.From != "" {
		return i.From
	}
	if i.CallerID != "" {
		return i.CallerID
	}
	return "unknown"
}

// DialTarget is a destination for the dial verb.
type DialTarget struct {
	Type   string `json:"type"` // "phone", "sip", "user"
	Number string `json:"number,omitempty"`
	SipURI string `json:"sipUri,omitempty"`
}

// DialOptions configures an outbound bridge from the active call leg.
type DialOptions struct {
	Target         []DialTarget      `json:"target"`
	AnswerOnBridge bool              `json:"answerOnBridge,omitempty"`
	ActionHook     string            `json:"actionHook,omitempty"`
	CallerID       string            `json:"callerId,omitempty"`
	TimeoutSecs    int               `json:"timeout,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
}

// EnqueueOptions places the caller into a named waiting queue.
type EnqueueOptions struct {
	Name       string `json:"name"`
	ActionHook string `json:"actionHook,omitempty"`
}

// DequeueOptions connects this leg to a queued caller.
type DequeueOptions struct {
	Name        string `json:"name"`
	Beep        bool   `json:"beep,omitempty"`
	TimeoutSecs int    `json:"timeout,omitempty"`
	ActionHook  string `json:"actionHook,omitempty"`
}

// BridgeOptions joins this leg to another live call.
type BridgeOptions struct {
	CallSID     string `json:"call_sid"`
	WhisperHook string `json:"whisperHook,omitempty"`
}

// OutboundDial is the payload for the out-of-band dial command used to place
// a brand new call leg (agent consultation legs).
type OutboundDial struct {
	CallHook string         `json:"call_hook"`
	From     string         `json:"from,omitempty"`
	To       string         `json:"to"`
	Tag      map[string]any `json:"tag,omitempty"`
}

// LlmConfig starts a realtime conversational engine session on the call.
// LlmOptions is opaque to the transport; its wire format belongs to the
// engine vendor.
type LlmConfig struct {
	Vendor     string     `json:"vendor"`
	Model      string     `json:"model"`
	Auth       LlmAuth    `json:"auth"`
	ActionHook string     `json:"actionHook"`
	EventHook  string     `json:"eventHook"`
	ToolHook   string     `json:"toolHook"`
	Events     []string   `json:"events,omitempty"`
	LlmOptions LlmOptions `json:"llmOptions"`
}

type LlmAuth struct {
	APIKey string `json:"apiKey"`
}

type LlmOptions struct {
	ResponseCreate ResponseCreate `json:"response_create"`
	SessionUpdate  SessionUpdate  `json:"session_update"`
}

type ResponseCreate struct {
	Modalities        []string `json:"modalities"`
	Instructions      string   `json:"instructions"`
	Voice             string   `json:"voice"`
	OutputAudioFormat string   `json:"output_audio_format"`
	Temperature       float64  `json:"temperature"`
	MaxOutputTokens   int      `json:"max_output_tokens,omitempty"`
}

type SessionUpdate struct {
	Tools                   []Tool                   `json:"tools,omitempty"`
	ToolChoice              string                   `json:"tool_choice,omitempty"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription,omitempty"`
	Voice                   string                   `json:"voice,omitempty"`
	TurnDetection           *TurnDetection           `json:"turn_detection,omitempty"`
}

// Tool is a function definition offered to the engine.
type Tool struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"` // "function"
	Description string         `json:"description,omitempty"`
	Parameters  ToolParameters `json:"parameters"`
}

type ToolParameters struct {
	Type       string                  `json:"type"` // "object"
	Properties map[string]ToolProperty `json:"properties,omitempty"`
	Required   []string                `json:"required,omitempty"`
}

type ToolProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

type InputAudioTranscription struct {
	Model string `json:"model"`
}

// TurnDetection tunes server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"` // "server_vad"
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}
