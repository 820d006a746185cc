package reception

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/binaryelements/becaller/internal/apiclient"
	"github.com/binaryelements/becaller/internal/config"
	"github.com/binaryelements/becaller/internal/jambonz"
	"github.com/binaryelements/becaller/pkg/logging"
)

// fakeAPI is an in-memory private API double recording every write.
type fakeAPI struct {
	mu sync.Mutex

	phoneConfig    *apiclient.PhoneConfig
	phoneConfigErr error

	contactByPhone    *apiclient.Contact
	contactByPhoneErr error

	searchResults []apiclient.Contact
	searchErr     error

	upsertResult *apiclient.Contact
	upsertErr    error
	upserts      []apiclient.ContactUpsert

	createCallErr error
	createdCalls  []apiclient.CallCreate

	callbackResult *apiclient.Callback
	callbackErr    error
	callbacks      []apiclient.CallbackCreate

	updates     []callUpdate
	transcripts []apiclient.TranscriptTurn
	events      []string
}

type callUpdate struct {
	CallSID string
	Update  apiclient.CallUpdate
}

func (f *fakeAPI) GetPhoneNumberConfig(_ context.Context, _ string) (*apiclient.PhoneConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phoneConfigErr != nil {
		return nil, f.phoneConfigErr
	}
	if f.phoneConfig == nil {
		return nil, apiclient.ErrNotFound
	}
	return f.phoneConfig, nil
}

func (f *fakeAPI) CreateCall(_ context.Context, data apiclient.CallCreate) (*apiclient.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createCallErr != nil {
		return nil, f.createCallErr
	}
	f.createdCalls = append(f.createdCalls, data)
	return &apiclient.Call{ID: 42, CallSID: data.CallSID}, nil
}

func (f *fakeAPI) UpdateCall(_ context.Context, callSID string, update apiclient.CallUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, callUpdate{CallSID: callSID, Update: update})
	return nil
}

func (f *fakeAPI) AddTranscripts(_ context.Context, _ string, turns []apiclient.TranscriptTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, turns...)
	return nil
}

func (f *fakeAPI) AddEvent(_ context.Context, _ string, eventType string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

func (f *fakeAPI) CreateCallback(_ context.Context, data apiclient.CallbackCreate) (*apiclient.Callback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callbackErr != nil {
		return nil, f.callbackErr
	}
	f.callbacks = append(f.callbacks, data)
	if f.callbackResult != nil {
		return f.callbackResult, nil
	}
	return &apiclient.Callback{CallbackID: "CB-001"}, nil
}

func (f *fakeAPI) SearchContacts(_ context.Context, _ int, _ apiclient.ContactSearch) ([]apiclient.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResults, nil
}

func (f *fakeAPI) GetContactByPhone(_ context.Context, _ int, _ string) (*apiclient.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.contactByPhoneErr != nil {
		return nil, f.contactByPhoneErr
	}
	if f.contactByPhone == nil {
		return nil, apiclient.ErrNotFound
	}
	return f.contactByPhone, nil
}

func (f *fakeAPI) CreateOrUpdateContact(_ context.Context, data apiclient.ContactUpsert) (*apiclient.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.upserts = append(f.upserts, data)
	if f.upsertResult != nil {
		return f.upsertResult, nil
	}
	return &apiclient.Contact{ID: 7, Name: data.Name, PhoneNumber: data.PhoneNumber}, nil
}

func (f *fakeAPI) updatesWithStatus(status string) []callUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []callUpdate
	for _, u := range f.updates {
		if u.Update.Status == status {
			out = append(out, u)
		}
	}
	return out
}

// frameSink captures outbound frames as generic JSON for assertions.
type frameSink struct {
	mu     sync.Mutex
	frames []map[string]any
}

func (f *frameSink) WriteJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	f.mu.Lock()
	f.frames = append(f.frames, m)
	f.mu.Unlock()
	return nil
}

func (f *frameSink) all() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, len(f.frames))
	copy(out, f.frames)
	return out
}

// frameVerbs extracts the verb names from a frame's data array.
func frameVerbs(frame map[string]any) []string {
	data, _ := frame["data"].([]any)
	var verbs []string
	for _, v := range data {
		if m, ok := v.(map[string]any); ok {
			if name, ok := m["verb"].(string); ok {
				verbs = append(verbs, name)
			}
		}
	}
	return verbs
}

func (f *frameSink) framesWithVerb(verb string) []map[string]any {
	var out []map[string]any
	for _, frame := range f.all() {
		for _, v := range frameVerbs(frame) {
			if v == verb {
				out = append(out, frame)
				break
			}
		}
	}
	return out
}

// waitForVerb polls until a frame carrying the verb shows up. Used for
// frames produced by timers rather than directly by a hook.
func (f *frameSink) waitForVerb(t *testing.T, verb string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if frames := f.framesWithVerb(verb); len(frames) > 0 {
			return frames[0]
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("no %q verb sent within %v", verb, timeout)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		LogLevel:             "error",
		PrivateAPITimeout:    time.Second,
		OpenAIAPIKey:         "sk-test",
		RealtimeModel:        "gpt-realtime",
		CallbackModel:        "gpt-4o-realtime-preview-2025-06-03",
		DefaultVoice:         "alloy",
		DefaultTemperature:   0.8,
		MaxOutputTokens:      4096,
		VADThreshold:         0.8,
		VADPrefixPaddingMs:   600,
		VADSilenceDurationMs: 1100,
		AgentNumber:          "8811001",
		TransferSettleDelay:  10 * time.Millisecond,
		PreDialPauseSecs:     1,
	}
}

func newTestService(t *testing.T, api *fakeAPI, cfg *config.Config) *Service {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	svc := New(Options{
		Config: cfg,
		API:    api,
		Logger: logging.New("error"),
	})
	t.Cleanup(svc.journal.Close)
	return svc
}

func newMainCall(t *testing.T, svc *Service) (*jambonz.Session, *frameSink) {
	t.Helper()
	sink := &frameSink{}
	sess := jambonz.NewSession(sink, jambonz.SessionInfo{
		CallSID:   "CA-test-1",
		From:      "+14155551212",
		To:        "+15551230000",
		Direction: "inbound",
	}, logging.New("error"), nil)
	svc.handleMainSession(sess)
	return sess, sink
}

func toolCallJSON(t *testing.T, name, toolCallID string, args any) json.RawMessage {
	t.Helper()
	rawArgs, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	b, err := json.Marshal(map[string]any{
		"name":         name,
		"args":         json.RawMessage(rawArgs),
		"tool_call_id": toolCallID,
	})
	if err != nil {
		t.Fatalf("marshal tool call: %v", err)
	}
	return b
}

func eventJSON(t *testing.T, eventType, transcript string) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"type":       eventType,
		"transcript": transcript,
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return b
}
