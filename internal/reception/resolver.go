package reception

import (
	"context"
	"errors"

	"github.com/binaryelements/becaller/internal/apiclient"
	"github.com/binaryelements/becaller/internal/config"
	"github.com/binaryelements/becaller/pkg/logging"
)

// privateAPI is the slice of the private API client the call flow depends on.
type privateAPI interface {
	GetPhoneNumberConfig(ctx context.Context, number string) (*apiclient.PhoneConfig, error)
	CreateCall(ctx context.Context, data apiclient.CallCreate) (*apiclient.Call, error)
	UpdateCall(ctx context.Context, callSID string, update apiclient.CallUpdate) error
	AddTranscripts(ctx context.Context, callSID string, turns []apiclient.TranscriptTurn) error
	AddEvent(ctx context.Context, callSID, eventType string, payload any) error
	CreateCallback(ctx context.Context, data apiclient.CallbackCreate) (*apiclient.Callback, error)
	SearchContacts(ctx context.Context, companyID int, query apiclient.ContactSearch) ([]apiclient.Contact, error)
	GetContactByPhone(ctx context.Context, companyID int, phone string) (*apiclient.Contact, error)
	CreateOrUpdateContact(ctx context.Context, data apiclient.ContactUpsert) (*apiclient.Contact, error)
}

// ConfigResolver maps a dialed number to its tenant configuration, falling
// back to a built-in generic reception profile when the lookup fails. A call
// is never rejected because the control plane is down.
type ConfigResolver struct {
	api privateAPI
	env *config.Config
	log *logging.Logger
}

func NewConfigResolver(api privateAPI, env *config.Config, log *logging.Logger) *ConfigResolver {
	return &ConfigResolver{api: api, env: env, log: log}
}

// Resolve looks up the dialed number and reports where the configuration
// came from.
func (r *ConfigResolver) Resolve(ctx context.Context, calledNumber string) (*apiclient.PhoneConfig, ConfigSource) {
	cfg, err := r.api.GetPhoneNumberConfig(ctx, calledNumber)
	if err != nil {
		if errors.Is(err, apiclient.ErrNotFound) {
			r.log.Warn("no configuration for dialed number, using fallback", "called", calledNumber)
		} else {
			r.log.Error("phone number lookup failed, using fallback", "called", calledNumber, "error", err)
		}
		return r.Fallback(calledNumber), SourceFallback
	}
	return cfg, SourceResolved
}

// Fallback is the generic reception profile: every department routes to the
// standing agent number and the caller gets a neutral greeting.
func (r *ConfigResolver) Fallback(calledNumber string) *apiclient.PhoneConfig {
	agent := r.env.AgentNumber
	return &apiclient.PhoneConfig{
		PhoneNumber:   calledNumber,
		SupportNumber: agent,
		Company:       &apiclient.Company{Name: "our office"},
		Metadata: apiclient.PhoneMetadata{
			Departments: []apiclient.Department{
				{Name: "sales", Description: "Sales inquiries", TransferNumber: agent},
				{Name: "support", Description: "General support", TransferNumber: agent},
				{Name: "billing", Description: "Billing questions", TransferNumber: agent},
				{Name: "technical", Description: "Technical assistance", TransferNumber: agent},
			},
			VoiceSettings: &apiclient.VoiceSettings{
				Voice:       r.env.DefaultVoice,
				Temperature: r.env.DefaultTemperature,
			},
		},
	}
}

// ContactResolver identifies the caller by their line before the
// conversation starts so the prompt can greet known callers by name.
type ContactResolver struct {
	api privateAPI
	log *logging.Logger
}

func NewContactResolver(api privateAPI, log *logging.Logger) *ContactResolver {
	return &ContactResolver{api: api, log: log}
}

// Resolve returns the known contact for the caller's number, or nil when the
// caller is unknown or the lookup fails. Failures never block the call.
func (r *ContactResolver) Resolve(ctx context.Context, companyID int, caller string) *apiclient.Contact {
	if companyID == 0 || caller == "" {
		return nil
	}
	contact, err := r.api.GetContactByPhone(ctx, companyID, caller)
	if err != nil {
		if !errors.Is(err, apiclient.ErrNotFound) {
			r.log.Warn("contact lookup failed", "caller", caller, "error", err)
		}
		return nil
	}
	return contact
}
