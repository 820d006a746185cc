// Package livecalls keeps a Redis-backed registry of calls currently being
// handled by the gateway, plus a short-lived transcript cache. The private
// API remains the durable record; this store exists so operators (and other
// gateway instances) can see live state without touching the database.
package livecalls

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	callKeyPrefix       = "livecall:"
	transcriptKeyPrefix = "livecall:transcript:"
	callTTL             = 12 * time.Hour
)

// Call lifecycle states tracked in the registry.
const (
	StatusInProgress   = "in_progress"
	StatusTransferring = "transferring"
	StatusEnded        = "ended"
)

// CallState is the live view of one call.
type CallState struct {
	CallSID      string    `json:"call_sid"`
	CompanyID    int       `json:"company_id,omitempty"`
	CallerNumber string    `json:"caller_number"`
	CalledNumber string    `json:"called_number"`
	ConfigSource string    `json:"config_source,omitempty"`
	Department   string    `json:"department,omitempty"`
	Status       string    `json:"status"`
	TurnCount    int       `json:"turn_count"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity_at"`
	Outcome      string    `json:"outcome,omitempty"`
}

// TranscriptEntry is a single cached conversation turn.
type TranscriptEntry struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Store manages live call state in Redis.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a live-call store backed by Redis.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func callKey(callSID string) string {
	return callKeyPrefix + callSID
}

func transcriptKey(callSID string) string {
	return transcriptKeyPrefix + callSID
}

// Save persists or updates a call's live state.
func (s *Store) Save(ctx context.Context, state *CallState) error {
	if state == nil || state.CallSID == "" {
		return fmt.Errorf("livecalls: call_sid required")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("livecalls: marshal: %w", err)
	}
	return s.rdb.Set(ctx, callKey(state.CallSID), data, callTTL).Err()
}

// Get retrieves a call's live state; nil when the call is unknown.
func (s *Store) Get(ctx context.Context, callSID string) (*CallState, error) {
	data, err := s.rdb.Get(ctx, callKey(callSID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("livecalls: get: %w", err)
	}
	var state CallState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("livecalls: unmarshal: %w", err)
	}
	return &state, nil
}

// Touch bumps the turn counter and activity timestamp.
func (s *Store) Touch(ctx context.Context, callSID string) error {
	state, err := s.Get(ctx, callSID)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("livecalls: call %s not found", callSID)
	}
	state.TurnCount++
	state.LastActivity = time.Now().UTC()
	return s.Save(ctx, state)
}

// SetStatus updates the call's lifecycle status and optional department.
func (s *Store) SetStatus(ctx context.Context, callSID, status, department string) error {
	state, err := s.Get(ctx, callSID)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("livecalls: call %s not found", callSID)
	}
	state.Status = status
	if department != "" {
		state.Department = department
	}
	state.LastActivity = time.Now().UTC()
	return s.Save(ctx, state)
}

// End marks the call ended with an outcome.
func (s *Store) End(ctx context.Context, callSID, outcome string) error {
	state, err := s.Get(ctx, callSID)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("livecalls: call %s not found", callSID)
	}
	state.Status = StatusEnded
	state.Outcome = outcome
	state.LastActivity = time.Now().UTC()
	return s.Save(ctx, state)
}

// AppendTranscript caches a transcript turn for the call.
func (s *Store) AppendTranscript(ctx context.Context, callSID string, entry TranscriptEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("livecalls: marshal transcript: %w", err)
	}
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, transcriptKey(callSID), data)
	pipe.Expire(ctx, transcriptKey(callSID), callTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Transcript returns the cached transcript for a call, oldest first.
func (s *Store) Transcript(ctx context.Context, callSID string) ([]TranscriptEntry, error) {
	data, err := s.rdb.LRange(ctx, transcriptKey(callSID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("livecalls: transcript: %w", err)
	}
	entries := make([]TranscriptEntry, 0, len(data))
	for _, d := range data {
		var entry TranscriptEntry
		if err := json.Unmarshal([]byte(d), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
