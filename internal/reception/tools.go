package reception

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/binaryelements/becaller/internal/apiclient"
)

// ToolKind enumerates the functions exposed to the realtime engine. Tool
// names arrive as strings on the wire; they are parsed into this closed set
// before dispatch so an unknown name is rejected in exactly one place.
type ToolKind int

const (
	ToolUnknown ToolKind = iota
	ToolSearchContacts
	ToolCollectCallerData
	ToolGatherCallerInfo
	ToolScheduleCallback
	ToolTransferCall
)

var toolKindNames = map[string]ToolKind{
	"search_contacts":     ToolSearchContacts,
	"collect_caller_data": ToolCollectCallerData,
	"gather_caller_info":  ToolGatherCallerInfo,
	"schedule_callback":   ToolScheduleCallback,
	"transfer_call":       ToolTransferCall,
}

// ParseToolKind maps a wire-level function name to its kind.
func ParseToolKind(name string) (ToolKind, bool) {
	k, ok := toolKindNames[name]
	return k, ok
}

func (k ToolKind) String() string {
	for name, kind := range toolKindNames {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// toolCallEvent is the tool invocation payload delivered on the tool hook.
type toolCallEvent struct {
	Name       string          `json:"name"`
	Args       json.RawMessage `json:"args"`
	ToolCallID string          `json:"tool_call_id"`
}

// dispatchTool runs one tool call and returns the result object handed back
// to the engine. A returned error becomes an {error} payload for the model
// to recover from conversationally; it is never thrown into the transport.
func (s *Service) dispatchTool(ctx context.Context, cs *CallSession, kind ToolKind, args json.RawMessage) (any, error) {
	switch kind {
	case ToolSearchContacts:
		var a searchContactsArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("invalid search_contacts arguments: %w", err)
		}
		return s.handleSearchContacts(ctx, cs, a), nil
	case ToolCollectCallerData:
		var a collectCallerDataArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("invalid collect_caller_data arguments: %w", err)
		}
		return s.handleCollectCallerData(ctx, cs, a), nil
	case ToolGatherCallerInfo:
		var a gatherCallerInfoArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("invalid gather_caller_info arguments: %w", err)
		}
		return s.handleGatherCallerInfo(cs, a), nil
	case ToolScheduleCallback:
		var a scheduleCallbackArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("invalid schedule_callback arguments: %w", err)
		}
		return s.handleScheduleCallback(ctx, cs, a), nil
	case ToolTransferCall:
		var a transferCallArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("invalid transfer_call arguments: %w", err)
		}
		return s.handleTransferCall(cs, a), nil
	default:
		return nil, fmt.Errorf("unknown function: %s", kind)
	}
}

type searchContactsArgs struct {
	Query       string `json:"query"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
}

func (s *Service) handleSearchContacts(ctx context.Context, cs *CallSession, args searchContactsArgs) any {
	if cs.CompanyID == 0 {
		return map[string]any{
			"success":  false,
			"message":  "Company not configured for contact search",
			"contacts": []any{},
		}
	}

	contacts, err := s.api.SearchContacts(ctx, cs.CompanyID, apiclient.ContactSearch{
		Query:       args.Query,
		Name:        args.Name,
		PhoneNumber: args.PhoneNumber,
		Email:       args.Email,
	})
	if err != nil {
		s.log.Error("contact search failed", "call_sid", cs.CallSID, "error", err)
		return map[string]any{
			"success":  false,
			"message":  "Unable to search contacts at this time",
			"contacts": []any{},
		}
	}
	if len(contacts) == 0 {
		return map[string]any{
			"success":  true,
			"message":  "No contacts found matching your search criteria",
			"contacts": []any{},
		}
	}

	summaries := make([]map[string]any, 0, len(contacts))
	for _, c := range contacts {
		summaries = append(summaries, map[string]any{
			"name":            c.Name,
			"phoneNumber":     c.PhoneNumber,
			"companyName":     c.CompanyName,
			"department":      c.Department,
			"email":           c.Email,
			"isVip":           c.IsVip,
			"lastContactedAt": c.LastContactedAt,
		})
	}
	return map[string]any{
		"success":  true,
		"message":  fmt.Sprintf("Found %d contact(s) matching your search", len(contacts)),
		"contacts": summaries,
	}
}

type collectCallerDataArgs struct {
	CallerName       string         `json:"caller_name"`
	CompanyName      string         `json:"company_name"`
	ContactNumber    string         `json:"contact_number"`
	Email            string         `json:"email"`
	Department       string         `json:"department"`
	ReasonForCalling string         `json:"reason_for_calling"`
	CustomFields     map[string]any `json:"custom_fields"`
}

func (s *Service) handleCollectCallerData(ctx context.Context, cs *CallSession, args collectCallerDataArgs) any {
	number := NormalizeContactNumber(args.ContactNumber, cs.CallerNumber)

	collected := map[string]any{
		"callerName":       args.CallerName,
		"companyName":      args.CompanyName,
		"contactNumber":    number,
		"email":            args.Email,
		"department":       args.Department,
		"reasonForCalling": args.ReasonForCalling,
		"customFields":     args.CustomFields,
		"collectedAt":      time.Now().UTC().Format(time.RFC3339),
	}
	cs.SetCollected(collected)

	if cs.CompanyID != 0 {
		contact, err := s.api.CreateOrUpdateContact(ctx, apiclient.ContactUpsert{
			CompanyID:    cs.CompanyID,
			Name:         args.CallerName,
			PhoneNumber:  number,
			Email:        args.Email,
			CompanyName:  args.CompanyName,
			Department:   args.Department,
			Notes:        args.ReasonForCalling,
			CustomFields: args.CustomFields,
		})
		if err != nil {
			s.log.Error("contact upsert failed", "call_sid", cs.CallSID, "error", err)
		} else {
			cs.ContactID = contact.ID
			s.journal.UpdateCall(cs.CallSID, apiclient.CallUpdate{
				ContactID:     contact.ID,
				CollectedData: collected,
			})
		}
	}

	s.journal.UpdateCall(cs.CallSID, apiclient.CallUpdate{
		CollectedData: collected,
		Metadata: map[string]any{
			"data_collected": true,
		},
	})

	return map[string]any{
		"success":        true,
		"message":        fmt.Sprintf("Thank you %s. I've recorded that you're calling from %s about %s. Let me help you with that.", args.CallerName, args.CompanyName, args.ReasonForCalling),
		"collected_data": collected,
	}
}

type gatherCallerInfoArgs struct {
	CallerName       string `json:"caller_name"`
	CompanyName      string `json:"company_name"`
	ContactNumber    string `json:"contact_number"`
	IssueDescription string `json:"issue_description"`
}

// handleGatherCallerInfo is the legacy collection path: it annotates the call
// record but never creates or updates a contact.
func (s *Service) handleGatherCallerInfo(cs *CallSession, args gatherCallerInfoArgs) any {
	number := NormalizeContactNumber(args.ContactNumber, cs.CallerNumber)

	s.journal.UpdateCall(cs.CallSID, apiclient.CallUpdate{
		Metadata: map[string]any{
			"caller_info_collected": true,
			"caller_name":           args.CallerName,
			"company_name":          args.CompanyName,
			"contact_number":        number,
			"issue_description":     args.IssueDescription,
		},
	})

	return map[string]any{
		"success": true,
		"message": fmt.Sprintf("Got it! So I have %s from %s, and I can reach you back at %s. Let me get this escalated to our second level support team right away.", args.CallerName, args.CompanyName, number),
		"caller_info": map[string]any{
			"name":    args.CallerName,
			"company": args.CompanyName,
			"contact": number,
			"issue":   args.IssueDescription,
		},
	}
}

type scheduleCallbackArgs struct {
	PreferredTime string `json:"preferred_time"`
	PhoneNumber   string `json:"phone_number"`
	Topic         string `json:"topic"`
}

func (s *Service) handleScheduleCallback(ctx context.Context, cs *CallSession, args scheduleCallbackArgs) any {
	number := NormalizeCallbackNumber(args.PhoneNumber, cs.CallerNumber)

	callback, err := s.api.CreateCallback(ctx, apiclient.CallbackCreate{
		CallID:        cs.CallID,
		PhoneNumber:   number,
		PreferredTime: args.PreferredTime,
		Topic:         args.Topic,
		ScheduledFor:  args.PreferredTime,
	})
	if err != nil {
		s.log.Error("failed to save callback", "call_sid", cs.CallSID, "error", err)
		// Hand the caller a local reference anyway; losing the booking is
		// better than confusing them mid-call.
		ref := "CB" + strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))
		return map[string]any{
			"success":        true,
			"callback_id":    ref,
			"message":        fmt.Sprintf("I've noted your callback request for %s at %s regarding %s. Your reference number is %s. Our team will contact you as scheduled.", args.PreferredTime, number, args.Topic, ref),
			"scheduled_time": args.PreferredTime,
			"phone_number":   number,
			"topic":          args.Topic,
			"priority":       "high",
		}
	}

	return map[string]any{
		"success":        true,
		"callback_id":    callback.CallbackID,
		"message":        fmt.Sprintf("Perfect! I've scheduled a priority callback for %s at %s. Our team will call you about %s. Your reference number is %s. Is there anything else I can help you with while we have you on the line?", args.PreferredTime, number, args.Topic, callback.CallbackID),
		"scheduled_time": args.PreferredTime,
		"phone_number":   number,
		"topic":          args.Topic,
		"priority":       "high",
	}
}

type transferCallArgs struct {
	Department string `json:"department"`
	Reason     string `json:"reason"`
	CallerInfo string `json:"caller_info"`
}

// handleTransferCall records the transfer decision and holds the dial until
// the assistant's spoken hand-off completes. The engine receives a response
// message to read out; the dial itself is placed by the transfer
// orchestrator once that announcement lands.
func (s *Service) handleTransferCall(cs *CallSession, args transferCallArgs) any {
	summary := fmt.Sprintf("Transfer to %s department. Reason: %s. Caller info: %s", args.Department, args.Reason, args.CallerInfo)

	s.journal.UpdateCall(cs.CallSID, apiclient.CallUpdate{
		Department:          args.Department,
		TransferReason:      args.Reason,
		ConversationSummary: summary,
		Status:              "transferred_to_" + args.Department,
		Metadata: map[string]any{
			"transferred_to":  args.Department,
			"transfer_reason": args.Reason,
			"caller_summary":  args.CallerInfo,
		},
	})

	number := s.transferNumber(cs, args.Department)
	s.log.Info("transfer requested", "call_sid", cs.CallSID, "department", args.Department, "number", number)

	cs.SetDepartment(args.Department)
	cs.SetTransferPending(&TransferDescriptor{
		Department:     args.Department,
		Reason:         args.Reason,
		CallerInfo:     args.CallerInfo,
		TransferNumber: number,
		Summary:        summary,
	})

	var message string
	switch args.Department {
	case "sales":
		message = fmt.Sprintf("I'll connect you with our sales team for your %s. Please stay on the line while I connect you. Thanks for your patience.", args.Reason)
	case "support", "technical":
		message = fmt.Sprintf("Let me connect you with our %s team who can help with your %s. Please stay on the line while I connect you. Thanks for your patience.", args.Department, args.Reason)
	case "billing":
		message = fmt.Sprintf("I'll transfer you to our billing department to help with your %s. Please stay on the line while I connect you. Thanks for your patience.", args.Reason)
	default:
		message = fmt.Sprintf("I'm connecting you with our %s department for your %s. Please stay on the line while I connect you. Thanks for your patience.", args.Department, args.Reason)
	}

	return map[string]any{
		"success": true,
		"message": message,
		"transfer": map[string]any{
			"department":      args.Department,
			"reason":          args.Reason,
			"caller_info":     args.CallerInfo,
			"transfer_number": number,
		},
	}
}

// transferNumber resolves a department to its dial destination: tenant
// configuration first, environment-configured numbers second, the standing
// agent number last.
func (s *Service) transferNumber(cs *CallSession, department string) string {
	if cs.Config != nil {
		for _, d := range cs.Config.Metadata.Departments {
			if d.Name == department && d.TransferNumber != "" {
				return d.TransferNumber
			}
		}
	}
	return s.cfg.DepartmentNumber(department)
}
