package reception

import (
	"regexp"

	"github.com/binaryelements/becaller/internal/apiclient"
	"github.com/binaryelements/becaller/internal/jambonz"
)

const engineVendor = "openai"

// Engine events the gateway subscribes to. Transcript-done events drive both
// journaling and the transfer announcement gate.
var engineEvents = []string{
	"conversation.item.*",
	"response.audio_transcript.done",
	"input_audio_buffer.committed",
}

const (
	eventUserTranscript      = "conversation.item.input_audio_transcription.completed"
	eventAssistantTranscript = "response.audio_transcript.done"
)

// Engine hook paths on the per-call socket.
const (
	hookFinal         = "/final"
	hookEvent         = "/event"
	hookToolCall      = "/toolCall"
	hookDialAction    = "/dialAction"
	hookEnqueueResult = "/enqueue-result"
	hookDequeue       = "/dequeue"
)

func sessionVoice(cfg *apiclient.PhoneConfig, fallback string) string {
	if cfg != nil && cfg.Metadata.VoiceSettings != nil && cfg.Metadata.VoiceSettings.Voice != "" {
		return cfg.Metadata.VoiceSettings.Voice
	}
	return fallback
}

func sessionTemperature(cfg *apiclient.PhoneConfig, fallback float64) float64 {
	if cfg != nil && cfg.Metadata.VoiceSettings != nil && cfg.Metadata.VoiceSettings.Temperature > 0 {
		return cfg.Metadata.VoiceSettings.Temperature
	}
	return fallback
}

// mainEngineConfig assembles the llm verb for the primary reception session.
func (s *Service) mainEngineConfig(cs *CallSession) jambonz.LlmConfig {
	return jambonz.LlmConfig{
		Vendor:     engineVendor,
		Model:      s.cfg.RealtimeModel,
		Auth:       jambonz.LlmAuth{APIKey: s.cfg.OpenAIAPIKey},
		ActionHook: hookFinal,
		EventHook:  hookEvent,
		ToolHook:   hookToolCall,
		Events:     engineEvents,
		LlmOptions: jambonz.LlmOptions{
			ResponseCreate: jambonz.ResponseCreate{
				Modalities:        []string{"text", "audio"},
				Instructions:      buildInstructions(cs.Config, cs.CallerNumber, cs.Contact),
				Voice:             cs.Voice,
				OutputAudioFormat: "pcm16",
				Temperature:       cs.Temperature,
				MaxOutputTokens:   s.cfg.MaxOutputTokens,
			},
			SessionUpdate: jambonz.SessionUpdate{
				Tools:      mainTools(cs.CallerNumber),
				ToolChoice: "auto",
				InputAudioTranscription: &jambonz.InputAudioTranscription{
					Model: "whisper-1",
				},
				Voice:         cs.Voice,
				TurnDetection: s.turnDetection(),
			},
		},
	}
}

// callbackEngineConfig assembles the llm verb for the post-transfer-failure
// sub-session. The toolset narrows to schedule_callback only.
func (s *Service) callbackEngineConfig(cs *CallSession) jambonz.LlmConfig {
	return jambonz.LlmConfig{
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
				Instructions:      buildCallbackInstructions(cs.CallerNumber),
				Voice:             cs.Voice,
				OutputAudioFormat: "pcm16",
				Temperature:       s.cfg.DefaultTemperature,
				MaxOutputTokens:   s.cfg.MaxOutputTokens,
			},
			SessionUpdate: jambonz.SessionUpdate{
				Tools:      callbackTools(cs.CallerNumber),
				ToolChoice: "auto",
				InputAudioTranscription: &jambonz.InputAudioTranscription{
					Model: "whisper-1",
				},
				Voice:         cs.Voice,
				TurnDetection: s.turnDetection(),
			},
		},
	}
}

// turnDetection is tuned for phone audio: patient VAD so callers can pause
// mid-sentence without being cut off.
func (s *Service) turnDetection() *jambonz.TurnDetection {
	return &jambonz.TurnDetection{
		Type:              "server_vad",
		Threshold:         s.cfg.VADThreshold,
		PrefixPaddingMs:   s.cfg.VADPrefixPaddingMs,
		SilenceDurationMs: s.cfg.VADSilenceDurationMs,
	}
}

func mainTools(caller string) []jambonz.Tool {
	return []jambonz.Tool{
		{
			Name:        "search_contacts",
			Type:        "function",
			Description: "Search for contacts in the database by name, phone, or company",
			Parameters: jambonz.ToolParameters{
				Type: "object",
				Properties: map[string]jambonz.ToolProperty{
					"query":       {Type: "string", Description: "General search query (searches across name, phone, email, company)"},
					"name":        {Type: "string", Description: "Contact name to search for"},
					"phoneNumber": {Type: "string", Description: "Phone number to search for"},
					"email":       {Type: "string", Description: "Email to search for"},
				},
			},
		},
		{
			Name:        "collect_caller_data",
			Type:        "function",
			Description: "Collect and store caller information with custom fields",
			Parameters: jambonz.ToolParameters{
				Type: "object",
				Properties: map[string]jambonz.ToolProperty{
					"caller_name":        {Type: "string", Description: "Name of the caller"},
					"company_name":       {Type: "string", Description: "Company or venue name"},
					"contact_number":     {Type: "string", Description: "Phone number to call back to"},
					"email":              {Type: "string", Description: "Email address of the caller"},
					"department":         {Type: "string", Description: "Department or role of the caller"},
					"reason_for_calling": {Type: "string", Description: "Detailed reason for the call"},
					"custom_fields":      {Type: "object", Description: "Any additional custom fields collected"},
				},
				Required: []string{"caller_name", "reason_for_calling"},
			},
		},
		{
			Name:        "gather_caller_info",
			Type:        "function",
			Description: "Gather and confirm caller information (legacy - use collect_caller_data instead)",
			Parameters: jambonz.ToolParameters{
				Type: "object",
				Properties: map[string]jambonz.ToolProperty{
					"caller_name":       {Type: "string", Description: "Name of the caller"},
					"company_name":      {Type: "string", Description: "Company or venue name"},
					"contact_number":    {Type: "string", Description: "Phone number to call back to"},
					"issue_description": {Type: "string", Description: "Brief description of the issue"},
				},
				Required: []string{"caller_name", "company_name", "contact_number", "issue_description"},
			},
		},
		scheduleCallbackTool(caller),
		{
			Name:        "transfer_call",
			Type:        "function",
			Description: "Transfer caller to appropriate department (sales, support, billing, etc.)",
			Parameters: jambonz.ToolParameters{
				Type: "object",
				Properties: map[string]jambonz.ToolProperty{
					"department": {
						Type:        "string",
						Enum:        []string{"sales", "support", "billing", "technical", "general"},
						Description: "Department to transfer the call to",
					},
					"reason":      {Type: "string", Description: "Reason for the transfer (pricing inquiry, technical issue, etc.)"},
					"caller_info": {Type: "string", Description: "Brief summary of caller information to pass to the department"},
				},
				Required: []string{"department", "reason", "caller_info"},
			},
		},
	}
}

func callbackTools(caller string) []jambonz.Tool {
	return []jambonz.Tool{scheduleCallbackTool(caller)}
}

func scheduleCallbackTool(caller string) jambonz.Tool {
	return jambonz.Tool{
		Name:        "schedule_callback",
		Type:        "function",
		Description: "Schedule a callback for the customer when no one is immediately available",
		Parameters: jambonz.ToolParameters{
			Type: "object",
			Properties: map[string]jambonz.ToolProperty{
				"preferred_time": {
					Type:        "string",
					Description: "Customer preferred callback time in ISO 8601 format (e.g., 2024-01-01T14:00:00)",
				},
				"phone_number": {
					Type:        "string",
					Description: "Phone number for callback. Use " + caller + " if the customer says \"this number\" or \"same number\". Otherwise use the specific number they provide.",
				},
				"topic": {Type: "string", Description: "Topic for the callback"},
			},
			Required: []string{"preferred_time", "phone_number", "topic"},
		},
	}
}

var retryAfterPattern = regexp.MustCompile(`try again in (\d+)`)

// retryAfterHint extracts the retry window from a rate-limit error message,
// or "" when the message carries none.
func retryAfterHint(message string) string {
	m := retryAfterPattern.FindStringSubmatch(message)
	if m == nil {
		return ""
	}
	return m[1]
}
