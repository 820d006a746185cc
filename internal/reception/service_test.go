package reception

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binaryelements/becaller/internal/apiclient"
)

func TestMainSessionAnswersWithEngine(t *testing.T) {
	api := &fakeAPI{phoneConfig: &apiclient.PhoneConfig{
		ID:          3,
		PhoneNumber: "+15551230000",
		Company:     &apiclient.Company{ID: 9, Name: "Acme Corp"},
		Metadata: apiclient.PhoneMetadata{
			VoiceSettings: &apiclient.VoiceSettings{Voice: "sage", Temperature: 0.6},
		},
	}}
	svc := newTestService(t, api, nil)
	_, sink := newMainCall(t, svc)

	frames := sink.all()
	require.Len(t, frames, 1)
	assert.Equal(t, []string{"answer", "pause", "tag", "llm"}, frameVerbs(frames[0]))

	llm := llmVerb(frames[0])
	require.NotNil(t, llm)
	assert.Equal(t, "openai", llm["vendor"])
	assert.Equal(t, "gpt-realtime", llm["model"])

	opts := llm["llmOptions"].(map[string]any)
	create := opts["response_create"].(map[string]any)
	assert.Equal(t, "sage", create["voice"])
	assert.InDelta(t, 0.6, create["temperature"].(float64), 0.001)
	assert.Equal(t, "pcm16", create["output_audio_format"])
	assert.Contains(t, create["instructions"], "Acme Corp")
	assert.Contains(t, create["instructions"], "+14155551212")

	update := opts["session_update"].(map[string]any)
	tools := update["tools"].([]any)
	require.Len(t, tools, 5)
	vad := update["turn_detection"].(map[string]any)
	assert.Equal(t, "server_vad", vad["type"])
	assert.InDelta(t, 0.8, vad["threshold"].(float64), 0.001)
	assert.InDelta(t, 1100, vad["silence_duration_ms"].(float64), 0.001)

	// The call record opened with the resolved tenant.
	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.createdCalls, 1)
	created := api.createdCalls[0]
	assert.Equal(t, "CA-test-1", created.CallSID)
	assert.Equal(t, 9, created.CompanyID)
	assert.Equal(t, apiclient.CallStatusInProgress, created.Status)
	assert.Equal(t, "resolved", created.Metadata["config_source"])
}

func TestMainSessionFallsBackWhenConfigMissing(t *testing.T) {
	api := &fakeAPI{} // no phone config registered
	svc := newTestService(t, api, nil)
	_, sink := newMainCall(t, svc)

	llm := llmVerb(sink.all()[0])
	require.NotNil(t, llm)
	create := llm["llmOptions"].(map[string]any)["response_create"].(map[string]any)
	assert.Equal(t, "alloy", create["voice"])

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.createdCalls, 1)
	assert.Equal(t, "fallback", api.createdCalls[0].Metadata["config_source"])
}

func TestMainSessionHangsUpWithoutEngineKey(t *testing.T) {
	cfg := testConfig()
	cfg.OpenAIAPIKey = ""
	svc := newTestService(t, &fakeAPI{}, cfg)
	_, sink := newMainCall(t, svc)

	frames := sink.all()
	require.Len(t, frames, 1)
	assert.Equal(t, []string{"hangup"}, frameVerbs(frames[0]))
}

func TestTranscriptTurnsAreJournaled(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(t, api, nil)
	sess, _ := newMainCall(t, svc)

	sess.HandleHook(hookEvent, "m1", eventJSON(t, eventUserTranscript, "I need help with my invoice"))
	sess.HandleHook(hookEvent, "m2", eventJSON(t, eventAssistantTranscript, "Happy to help with that."))
	sess.HandleHook(hookEvent, "m3", eventJSON(t, "input_audio_buffer.committed", ""))
	svc.journal.Flush()

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.transcripts, 2)
	assert.Equal(t, "user", api.transcripts[0].Role)
	assert.Equal(t, "I need help with my invoice", api.transcripts[0].Text)
	assert.Equal(t, "assistant", api.transcripts[1].Role)
	// Every engine event is journaled, transcript or not.
	assert.Len(t, api.events, 3)
}

func TestFinalReasonPolicy(t *testing.T) {
	finalJSON := func(reason, code, message string) json.RawMessage {
		payload := map[string]any{"completion_reason": reason}
		if code != "" || message != "" {
			payload["error"] = map[string]any{"code": code, "message": message}
		}
		b, _ := json.Marshal(payload)
		return b
	}

	t.Run("server failure hangs up", func(t *testing.T) {
		svc := newTestService(t, &fakeAPI{}, nil)
		sess, sink := newMainCall(t, svc)

		sess.HandleHook(hookFinal, "m1", finalJSON("server failure", "internal_error", "boom"))
		assert.Len(t, sink.framesWithVerb("hangup"), 1)
	})

	t.Run("rate limit hangs up", func(t *testing.T) {
		svc := newTestService(t, &fakeAPI{}, nil)
		sess, sink := newMainCall(t, svc)

		sess.HandleHook(hookFinal, "m1", finalJSON("server error", "rate_limit_exceeded",
			"Rate limit reached, please try again in 20 seconds"))
		assert.Len(t, sink.framesWithVerb("hangup"), 1)
	})

	t.Run("normal end keeps session alive", func(t *testing.T) {
		svc := newTestService(t, &fakeAPI{}, nil)
		sess, sink := newMainCall(t, svc)

		before := len(sink.all())
		sess.HandleHook(hookFinal, "m1", finalJSON("normal conversation end", "", ""))
		frames := sink.all()
		// Just the empty ack; no hangup.
		require.Len(t, frames, before+1)
		assert.Empty(t, sink.framesWithVerb("hangup"))
	})
}

func TestCloseFinalizesExactlyOnce(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(t, api, nil)
	sess, _ := newMainCall(t, svc)

	sess.HandleClose(1000, "caller hung up")
	sess.HandleClose(1000, "caller hung up")
	svc.journal.Flush()

	terminal := api.updatesWithStatus(apiclient.CallStatusDisconnected)
	require.Len(t, terminal, 1, "duplicate close must not produce duplicate terminal writes")
	u := terminal[0].Update
	assert.Equal(t, "CA-test-1", terminal[0].CallSID)
	require.NotNil(t, u.Duration)
	assert.GreaterOrEqual(t, *u.Duration, 0)
	assert.NotEmpty(t, u.EndedAt)
	assert.Equal(t, 1000, u.Metadata["close_code"])
}

func TestUnknownToolReturnsErrorPayload(t *testing.T) {
	svc := newTestService(t, &fakeAPI{}, nil)
	sess, sink := newMainCall(t, svc)

	sess.HandleHook(hookToolCall, "m1", toolCallJSON(t, "reboot_pbx", "tc-9", map[string]any{}))

	var found map[string]any
	for _, frame := range sink.all() {
		if frame["command"] == "llm:tool-output" {
			found = frame
		}
	}
	require.NotNil(t, found, "expected a tool-output frame")
	assert.Equal(t, "tc-9", found["tool_call_id"])
	data := found["data"].(map[string]any)
	assert.Contains(t, data["error"], "unknown function")
}

func TestToolResultWrappedForEngine(t *testing.T) {
	api := &fakeAPI{searchResults: []apiclient.Contact{{Name: "Dana Banks"}}}
	api.phoneConfig = &apiclient.PhoneConfig{
		Company: &apiclient.Company{ID: 9, Name: "Acme"},
	}
	svc := newTestService(t, api, nil)
	sess, sink := newMainCall(t, svc)

	sess.HandleHook(hookToolCall, "m1", toolCallJSON(t, "search_contacts", "tc-1", map[string]any{
		"name": "Dana",
	}))

	var found map[string]any
	for _, frame := range sink.all() {
		if frame["command"] == "llm:tool-output" {
			found = frame
		}
	}
	require.NotNil(t, found)
	data := found["data"].(map[string]any)
	assert.Equal(t, "conversation.item.create", data["type"])
	item := data["item"].(map[string]any)
	assert.Equal(t, "function_call_output", item["type"])
	assert.Equal(t, "tc-1", item["call_id"])
	assert.Contains(t, item["output"], "Dana Banks")
}

func TestIdleSessionIsHungUp(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 20 * time.Millisecond
	svc := newTestService(t, &fakeAPI{}, cfg)
	_, sink := newMainCall(t, svc)

	sink.waitForVerb(t, "hangup", time.Second)
}
