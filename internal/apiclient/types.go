package apiclient

import "time"

// PhoneConfig is the tenant configuration resolved for a dialed number.
type PhoneConfig struct {
	ID            int           `json:"id,omitempty"`
	PhoneNumber   string        `json:"phoneNumber"`
	Instructions  string        `json:"instructions,omitempty"`
	SupportNumber string        `json:"supportNumber,omitempty"`
	Company       *Company      `json:"company,omitempty"`
	Metadata      PhoneMetadata `json:"metadata"`
}

// Company is the tenant that owns a phone number.
type Company struct {
	ID                   int                   `json:"id"`
	Name                 string                `json:"name"`
	DataCollectionFields *DataCollectionFields `json:"dataCollectionFields,omitempty"`
}

// DataCollectionFields describes tenant-defined fields the assistant should
// collect during a call.
type DataCollectionFields struct {
	CustomFields []CustomField `json:"customFields,omitempty"`
}

type CustomField struct {
	Label    string `json:"label"`
	Required bool   `json:"required"`
	AIPrompt string `json:"aiPrompt,omitempty"`
}

// PhoneMetadata carries per-number routing and voice settings.
type PhoneMetadata struct {
	Departments       []Department   `json:"departments,omitempty"`
	VoiceSettings     *VoiceSettings `json:"voiceSettings,omitempty"`
	TranscribeEnabled bool           `json:"transcribeEnabled,omitempty"`
	SummarizeEnabled  bool           `json:"summarizeEnabled,omitempty"`
}

// Department is a named transfer destination.
type Department struct {
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	TransferNumber string `json:"transferNumber,omitempty"`
}

type VoiceSettings struct {
	Voice       string  `json:"voice,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Contact is a known caller record scoped to a company.
type Contact struct {
	ID              int            `json:"id"`
	CompanyID       int            `json:"companyId,omitempty"`
	Name            string         `json:"name"`
	PhoneNumber     string         `json:"phoneNumber,omitempty"`
	Email           string         `json:"email,omitempty"`
	CompanyName     string         `json:"companyName,omitempty"`
	Department      string         `json:"department,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	IsVip           bool           `json:"isVip,omitempty"`
	TotalCalls      int            `json:"totalCalls,omitempty"`
	LastContactedAt string         `json:"lastContactedAt,omitempty"`
	CustomFields    map[string]any `json:"customFields,omitempty"`
}

// ContactUpsert creates or updates a contact keyed by company + phone number.
type ContactUpsert struct {
	CompanyID    int            `json:"companyId"`
	Name         string         `json:"name"`
	PhoneNumber  string         `json:"phoneNumber"`
	Email        string         `json:"email,omitempty"`
	CompanyName  string         `json:"companyName,omitempty"`
	Department   string         `json:"department,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	CustomFields map[string]any `json:"customFields,omitempty"`
}

// ContactSearch holds search parameters for the contact index.
type ContactSearch struct {
	Query       string
	Name        string
	PhoneNumber string
	Email       string
}

// Call statuses persisted by the private API. Transitions are monotonic
// toward a terminal state.
const (
	CallStatusInProgress     = "in_progress"
	CallStatusCompleted      = "completed"
	CallStatusTransferred    = "transferred"
	CallStatusTransferFailed = "transfer_failed"
	CallStatusDisconnected   = "disconnected"
)

// CallCreate is the payload for creating a call record at answer time.
type CallCreate struct {
	CallSID       string         `json:"callSid"`
	CompanyID     int            `json:"companyId,omitempty"`
	PhoneNumberID int            `json:"phoneNumberId,omitempty"`
	PhoneNumber   string         `json:"phoneNumber,omitempty"`
	CalledNumber  string         `json:"calledNumber,omitempty"`
	Status        string         `json:"status,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Call is the persisted call record.
type Call struct {
	ID      int    `json:"id"`
	CallSID string `json:"callSid"`
	Status  string `json:"status,omitempty"`
}

// CallUpdate is a partial update applied to a call record. Nil fields are
// omitted from the request.
type CallUpdate struct {
	Status              string         `json:"status,omitempty"`
	Department          string         `json:"department,omitempty"`
	TransferReason      string         `json:"transferReason,omitempty"`
	Resolution          string         `json:"resolution,omitempty"`
	CustomerSatisfied   *bool          `json:"customerSatisfied,omitempty"`
	ConversationSummary string         `json:"conversationSummary,omitempty"`
	ContactID           int            `json:"contactId,omitempty"`
	CollectedData       map[string]any `json:"collectedData,omitempty"`
	EndedAt             string         `json:"endedAt,omitempty"`
	Duration            *int           `json:"duration,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// TranscriptTurn is one conversation turn, ordered by timestamp.
type TranscriptTurn struct {
	Role      string         `json:"role"` // "user" or "assistant"
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// CallbackCreate schedules a callback for a caller.
type CallbackCreate struct {
	CallID       int    `json:"callId,omitempty"`
	PhoneNumber  string `json:"phoneNumber"`
	PreferredTime string `json:"preferredTime"`
	Topic        string `json:"topic"`
	ScheduledFor string `json:"scheduledFor,omitempty"`
}

// Callback is the persisted callback request.
type Callback struct {
	CallbackID string `json:"callbackId"`
	Status     string `json:"status,omitempty"`
}
