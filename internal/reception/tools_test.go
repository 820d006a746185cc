package reception

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binaryelements/becaller/internal/apiclient"
)

func TestParseToolKindClosedSet(t *testing.T) {
	for _, name := range []string{
		"search_contacts", "collect_caller_data", "gather_caller_info",
		"schedule_callback", "transfer_call",
	} {
		kind, ok := ParseToolKind(name)
		require.True(t, ok, "expected %s to parse", name)
		assert.Equal(t, name, kind.String())
	}

	_, ok := ParseToolKind("delete_all_records")
	assert.False(t, ok)
}

func TestDispatchRejectsUnknownTool(t *testing.T) {
	svc := newTestService(t, &fakeAPI{}, nil)
	cs := newCallSession("CA1", "+14155551212", "+15551230000")

	_, err := svc.dispatchTool(context.Background(), cs, ToolUnknown, json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown function")
}

func TestSearchContacts(t *testing.T) {
	t.Run("results", func(t *testing.T) {
		api := &fakeAPI{searchResults: []apiclient.Contact{
			{Name: "James Edwards", Department: "sales"},
			{Name: "James Monty", Department: "support"},
		}}
		svc := newTestService(t, api, nil)
		cs := newCallSession("CA1", "+14155551212", "+15551230000")
		cs.CompanyID = 9

		result := svc.handleSearchContacts(context.Background(), cs, searchContactsArgs{Name: "James"})
		m := result.(map[string]any)
		assert.Equal(t, true, m["success"])
		assert.Len(t, m["contacts"], 2)
	})

	t.Run("no company configured", func(t *testing.T) {
		svc := newTestService(t, &fakeAPI{}, nil)
		cs := newCallSession("CA1", "+14155551212", "+15551230000")

		result := svc.handleSearchContacts(context.Background(), cs, searchContactsArgs{Query: "anyone"})
		m := result.(map[string]any)
		assert.Equal(t, false, m["success"])
	})

	t.Run("api failure degrades to message", func(t *testing.T) {
		api := &fakeAPI{searchErr: errDown}
		svc := newTestService(t, api, nil)
		cs := newCallSession("CA1", "+14155551212", "+15551230000")
		cs.CompanyID = 9

		result := svc.handleSearchContacts(context.Background(), cs, searchContactsArgs{Query: "x"})
		m := result.(map[string]any)
		assert.Equal(t, false, m["success"])
		assert.Len(t, m["contacts"], 0)
	})
}

func TestCollectCallerDataUpsertsContact(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(t, api, nil)
	cs := newCallSession("CA1", "+14155551212", "+15551230000")
	cs.CompanyID = 9

	result := svc.handleCollectCallerData(context.Background(), cs, collectCallerDataArgs{
		CallerName:       "Dana Banks",
		CompanyName:      "Acme Corp",
		ContactNumber:    "this number",
		ReasonForCalling: "billing question",
	})
	svc.journal.Flush()

	m := result.(map[string]any)
	assert.Equal(t, true, m["success"])

	api.mu.Lock()
	require.Len(t, api.upserts, 1)
	upsert := api.upserts[0]
	api.mu.Unlock()

	assert.Equal(t, 9, upsert.CompanyID)
	assert.Equal(t, "Dana Banks", upsert.Name)
	// Self-referential phrase resolves to the caller's line.
	assert.Equal(t, "+14155551212", upsert.PhoneNumber)
	assert.Equal(t, "billing question", upsert.Notes)

	assert.Equal(t, 7, cs.ContactID)
	collected := cs.Collected()
	assert.Equal(t, "+14155551212", collected["contactNumber"])
}

func TestCollectCallerDataWithoutCompanySkipsUpsert(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(t, api, nil)
	cs := newCallSession("CA1", "+14155551212", "+15551230000")

	svc.handleCollectCallerData(context.Background(), cs, collectCallerDataArgs{
		CallerName:       "Dana Banks",
		ReasonForCalling: "question",
	})
	svc.journal.Flush()

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Empty(t, api.upserts)
	// The call record still receives the collected data.
	require.NotEmpty(t, api.updates)
}

func TestGatherCallerInfoNeverTouchesContacts(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(t, api, nil)
	cs := newCallSession("CA1", "+14155551212", "+15551230000")
	cs.CompanyID = 9

	result := svc.handleGatherCallerInfo(cs, gatherCallerInfoArgs{
		CallerName:       "Lee Chan",
		CompanyName:      "Globex",
		ContactNumber:    "my number",
		IssueDescription: "VPN down",
	})
	svc.journal.Flush()

	m := result.(map[string]any)
	assert.Equal(t, true, m["success"])
	info := m["caller_info"].(map[string]any)
	assert.Equal(t, "+14155551212", info["contact"])

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Empty(t, api.upserts, "legacy path must not create contacts")
	require.Len(t, api.updates, 1)
	assert.Equal(t, "VPN down", api.updates[0].Update.Metadata["issue_description"])
}

func TestScheduleCallback(t *testing.T) {
	t.Run("persists and returns reference", func(t *testing.T) {
		api := &fakeAPI{}
		svc := newTestService(t, api, nil)
		cs := newCallSession("CA1", "+14155551212", "+15551230000")
		cs.CallID = 42

		result := svc.handleScheduleCallback(context.Background(), cs, scheduleCallbackArgs{
			PreferredTime: "2026-09-01T14:00:00",
			PhoneNumber:   "same number",
			Topic:         "pricing",
		})

		m := result.(map[string]any)
		assert.Equal(t, true, m["success"])
		assert.Equal(t, "CB-001", m["callback_id"])
		assert.Equal(t, "+14155551212", m["phone_number"])

		api.mu.Lock()
		defer api.mu.Unlock()
		require.Len(t, api.callbacks, 1)
		assert.Equal(t, 42, api.callbacks[0].CallID)
		assert.Equal(t, "+14155551212", api.callbacks[0].PhoneNumber)
	})

	t.Run("persistence failure still hands the caller a reference", func(t *testing.T) {
		api := &fakeAPI{callbackErr: errDown}
		svc := newTestService(t, api, nil)
		cs := newCallSession("CA1", "+14155551212", "+15551230000")

		result := svc.handleScheduleCallback(context.Background(), cs, scheduleCallbackArgs{
			PreferredTime: "2026-09-01T14:00:00",
			PhoneNumber:   "+15557770000",
			Topic:         "pricing",
		})

		m := result.(map[string]any)
		assert.Equal(t, true, m["success"])
		ref := m["callback_id"].(string)
		assert.True(t, strings.HasPrefix(ref, "CB"), "reference %q should carry the CB prefix", ref)
		assert.Greater(t, len(ref), 2)
	})
}

func TestTransferCallDefersDial(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(t, api, nil)
	cs := newCallSession("CA1", "+14155551212", "+15551230000")
	cs.Config = &apiclient.PhoneConfig{
		Metadata: apiclient.PhoneMetadata{
			Departments: []apiclient.Department{
				{Name: "sales", TransferNumber: "8811005"},
			},
		},
	}

	result := svc.handleTransferCall(cs, transferCallArgs{
		Department: "sales",
		Reason:     "pricing inquiry",
		CallerInfo: "Dana Banks from Acme",
	})
	svc.journal.Flush()

	m := result.(map[string]any)
	assert.Equal(t, true, m["success"])
	assert.Contains(t, m["message"], "sales team")

	// The dial is deferred; only the descriptor is installed here.
	td := cs.PendingTransfer()
	require.NotNil(t, td)
	assert.Equal(t, "sales", td.Department)
	assert.Equal(t, "8811005", td.TransferNumber)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.updates, 1)
	assert.Equal(t, "transferred_to_sales", api.updates[0].Update.Status)
}

func TestTransferNumberPrecedence(t *testing.T) {
	cfg := testConfig()
	cfg.SalesNumber = "8811002"
	svc := newTestService(t, &fakeAPI{}, cfg)

	tenant := &apiclient.PhoneConfig{
		Metadata: apiclient.PhoneMetadata{
			Departments: []apiclient.Department{
				{Name: "sales", TransferNumber: "8811005"},
				{Name: "billing"},
			},
		},
	}

	tests := []struct {
		name       string
		config     *apiclient.PhoneConfig
		department string
		want       string
	}{
		{"tenant config wins", tenant, "sales", "8811005"},
		{"tenant without number falls to env", tenant, "billing", "8811001"},
		{"env number for department", nil, "sales", "8811002"},
		{"technical shares support number", nil, "technical", "8811001"},
		{"unknown department gets agent", nil, "general", "8811001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := newCallSession("CA1", "+14155551212", "+15551230000")
			cs.Config = tt.config
			assert.Equal(t, tt.want, svc.transferNumber(cs, tt.department))
		})
	}
}

func TestTransferOverwriteIsLastWins(t *testing.T) {
	svc := newTestService(t, &fakeAPI{}, nil)
	cs := newCallSession("CA1", "+14155551212", "+15551230000")

	svc.handleTransferCall(cs, transferCallArgs{Department: "sales", Reason: "a", CallerInfo: "x"})
	svc.handleTransferCall(cs, transferCallArgs{Department: "billing", Reason: "b", CallerInfo: "x"})

	td := cs.PendingTransfer()
	require.NotNil(t, td)
	assert.Equal(t, "billing", td.Department)
}
